// relationship.go - 名字空间的关系解析
// 把各文件的抽取事实汇总为组件节点与关系边，数据库ID的落定交给对账阶段
package resolver

import (
	"fmt"
	"strings"

	"metadb-builder/internal/analyzer"
	"metadb-builder/internal/config"
	"metadb-builder/internal/model"
	"metadb-builder/pkg/logger"
)

// ComponentKey 跨文件唯一的组件定位
type ComponentKey struct {
	FilePath string
	Name     string
}

// ComponentNode 待持久化的组件节点
type ComponentNode struct {
	FilePath   string
	Name       string
	Kind       model.ComponentKind
	ParentName string
	StartLine  int
	EndLine    int
	Layer      string
}

// Edge 组件间关系边
type Edge struct {
	Src           ComponentKey
	Dst           ComponentKey
	Type          model.RelType
	IsConditional bool
	Condition     string
	Confidence    float64
}

// TableUse 组件对表/列的使用
type TableUse struct {
	Src           ComponentKey
	TableName     string
	TableOwner    string
	Columns       []string
	DML           model.DMLKind
	IsConditional bool
	Condition     string
	Confidence    float64
}

// JoinUse 同一语句内两张表的关联
type JoinUse struct {
	Src           ComponentKey
	LeftName      string
	LeftOwner     string
	RightName     string
	RightOwner    string
	IsConditional bool
	Condition     string
	Confidence    float64
}

// Graph 关系解析结果
type Graph struct {
	Components []*ComponentNode
	Edges      []*Edge
	TableUses  []*TableUse
	Joins      []*JoinUse
	// ClassParents 类继承的解析结果，superclass组件键 -> 子类组件键
	ClassParents map[ComponentKey]ComponentKey
}

// KnownComponent 已持久化的组件视图，用于跨文件目标解析
type KnownComponent struct {
	FilePath string
	Name     string
	Kind     model.ComponentKind
}

// RelationshipResolver 名字引用解析器
type RelationshipResolver struct {
	layerConfig *config.LayerConfig
	logger      logger.Logger
}

func NewRelationshipResolver(layerConfig *config.LayerConfig, logger logger.Logger) *RelationshipResolver {
	return &RelationshipResolver{
		layerConfig: layerConfig,
		logger:      logger,
	}
}

// Resolve 汇总文件事实为图。known提供本轮未重新分析文件的既有组件，
// 名字解析优先匹配本轮事实，其次匹配既有组件
func (r *RelationshipResolver) Resolve(files []*analyzer.FileFacts, known []KnownComponent) *Graph {
	g := &Graph{ClassParents: make(map[ComponentKey]ComponentKey)}

	classIndex := make(map[string]ComponentKey)
	methodIndex := make(map[string][]ComponentKey)

	for _, kc := range known {
		switch kc.Kind {
		case model.ComponentKindClass:
			if _, ok := classIndex[kc.Name]; !ok {
				classIndex[kc.Name] = ComponentKey{FilePath: kc.FilePath, Name: kc.Name}
			}
		case model.ComponentKindMethod:
			methodIndex[methodSimpleName(kc.Name)] = append(methodIndex[methodSimpleName(kc.Name)],
				ComponentKey{FilePath: kc.FilePath, Name: kc.Name})
		}
	}

	// 第一遍：登记全部组件节点并建立名字索引，本轮事实覆盖既有视图
	for _, facts := range files {
		layer := r.layerConfig.LayerForPath(facts.FilePath)
		for _, cf := range facts.Classes {
			key := ComponentKey{FilePath: facts.FilePath, Name: cf.Name}
			classIndex[cf.Name] = key
			g.Components = append(g.Components, &ComponentNode{
				FilePath:  facts.FilePath,
				Name:      cf.Name,
				Kind:      model.ComponentKindClass,
				StartLine: cf.StartLine,
				EndLine:   cf.EndLine,
				Layer:     layer,
			})
			for _, mf := range cf.Methods {
				name := cf.Name + "." + mf.Name
				methodIndex[mf.Name] = append(methodIndex[mf.Name],
					ComponentKey{FilePath: facts.FilePath, Name: name})
				g.Components = append(g.Components, &ComponentNode{
					FilePath:   facts.FilePath,
					Name:       name,
					Kind:       model.ComponentKindMethod,
					ParentName: cf.Name,
					StartLine:  mf.StartLine,
					EndLine:    mf.EndLine,
					Layer:      layer,
				})
			}
		}
		for _, ff := range facts.Fragments {
			g.Components = append(g.Components, &ComponentNode{
				FilePath:  facts.FilePath,
				Name:      ff.Name,
				Kind:      model.ComponentKindTemplateFragment,
				StartLine: ff.StartLine,
				EndLine:   ff.EndLine,
				Layer:     layer,
			})
		}
		for _, su := range facts.SqlUnits {
			g.Components = append(g.Components, &ComponentNode{
				FilePath:  facts.FilePath,
				Name:      sqlUnitName(su),
				Kind:      model.ComponentKindSqlUnit,
				StartLine: su.StartLine,
				Layer:     layer,
			})
		}
	}

	// 第二遍：解析名字引用为边
	for _, facts := range files {
		for _, cf := range facts.Classes {
			srcClass := ComponentKey{FilePath: facts.FilePath, Name: cf.Name}

			if cf.Superclass != "" {
				if target, ok := classIndex[simpleTypeName(cf.Superclass)]; ok {
					g.Edges = append(g.Edges, &Edge{
						Src:        srcClass,
						Dst:        target,
						Type:       model.RelTypeExtends,
						Confidence: 1.0,
					})
					g.ClassParents[srcClass] = target
				} else {
					r.logger.Debug("relationship resolver: superclass %s of %s not found in project", cf.Superclass, cf.Name)
				}
			}

			for _, mf := range cf.Methods {
				src := ComponentKey{FilePath: facts.FilePath, Name: cf.Name + "." + mf.Name}
				for _, call := range mf.Calls {
					r.resolveCall(g, src, call, classIndex, methodIndex)
				}
				for _, sf := range mf.SqlFacts {
					r.collectTableUses(g, src, sf)
				}
			}
		}

		for _, ff := range facts.Fragments {
			src := ComponentKey{FilePath: facts.FilePath, Name: ff.Name}
			for _, call := range ff.Calls {
				r.resolveCall(g, src, call, classIndex, methodIndex)
			}
			for _, sf := range ff.SqlFacts {
				r.collectTableUses(g, src, sf)
			}
			for _, typeName := range ff.UsedTypes {
				if target, ok := classIndex[simpleTypeName(typeName)]; ok && target != src {
					g.Edges = append(g.Edges, &Edge{
						Src:        src,
						Dst:        target,
						Type:       model.RelTypeCalls,
						Confidence: 1.0,
					})
				}
			}
		}

		for _, su := range facts.SqlUnits {
			src := ComponentKey{FilePath: facts.FilePath, Name: sqlUnitName(su)}
			r.collectTableUses(g, src, &analyzer.SqlFact{Statement: su.Statement, StartLine: su.StartLine})
		}
	}

	return g
}

// resolveCall 解析调用点。接收者是已知类名时按 类.方法 精确匹配，
// 否则按方法名匹配且仅在无歧义时建边
func (r *RelationshipResolver) resolveCall(g *Graph, src ComponentKey, call *analyzer.CallFact,
	classIndex map[string]ComponentKey, methodIndex map[string][]ComponentKey) {

	var target ComponentKey
	found := false

	if call.Receiver != "" {
		if classKey, ok := classIndex[call.Receiver]; ok {
			candidate := ComponentKey{FilePath: classKey.FilePath, Name: call.Receiver + "." + call.MethodName}
			for _, mk := range methodIndex[call.MethodName] {
				if mk == candidate {
					target = candidate
					found = true
					break
				}
			}
		}
	}

	if !found {
		candidates := methodIndex[call.MethodName]
		if len(candidates) == 1 {
			target = candidates[0]
			found = true
		} else if len(candidates) > 1 {
			r.logger.Debug("relationship resolver: ambiguous call %s from %s, %d candidates skipped",
				call.MethodName, src.Name, len(candidates))
		}
	}

	if !found || target == src {
		return
	}

	confidence := 1.0
	if call.IsConditional {
		confidence = 0.8
	}
	g.Edges = append(g.Edges, &Edge{
		Src:           src,
		Dst:           target,
		Type:          model.RelTypeCalls,
		IsConditional: call.IsConditional,
		Condition:     call.Condition,
		Confidence:    confidence,
	})
}

// collectTableUses 把SQL语句的表/列引用转为使用关系与JOIN关系
func (r *RelationshipResolver) collectTableUses(g *Graph, src ComponentKey, sf *analyzer.SqlFact) {
	st := sf.Statement
	for _, ref := range st.Tables {
		g.TableUses = append(g.TableUses, &TableUse{
			Src:           src,
			TableName:     ref.Name,
			TableOwner:    ref.Owner,
			Columns:       ref.Columns,
			DML:           st.DML,
			IsConditional: ref.IsConditional,
			Condition:     ref.Condition,
			Confidence:    ref.Confidence,
		})
	}

	// 同一语句引用的表两两建立JOIN关系
	for i := 0; i < len(st.Tables); i++ {
		for j := i + 1; j < len(st.Tables); j++ {
			left, right := st.Tables[i], st.Tables[j]
			confidence := left.Confidence
			conditional := left.IsConditional
			condition := left.Condition
			if right.Confidence < confidence {
				confidence = right.Confidence
			}
			if right.IsConditional {
				conditional = true
				if condition == "" {
					condition = right.Condition
				}
			}
			g.Joins = append(g.Joins, &JoinUse{
				Src:           src,
				LeftName:      left.Name,
				LeftOwner:     left.Owner,
				RightName:     right.Name,
				RightOwner:    right.Owner,
				IsConditional: conditional,
				Condition:     condition,
				Confidence:    confidence,
			})
		}
	}
}

func sqlUnitName(su *analyzer.SqlUnitFact) string {
	if su.Namespace != "" {
		return fmt.Sprintf("%s.%s", su.Namespace, su.ID)
	}
	return su.ID
}

func methodSimpleName(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func simpleTypeName(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
