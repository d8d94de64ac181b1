// mapping.go - SQL映射描述文件分析器
package analyzer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"metadb-builder/internal/config"
	"metadb-builder/internal/model"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/sqltext"
	"metadb-builder/pkg/logger"
)

// MappingAnalyzer SQL映射描述文件分析器。
// 语句块内的动态标签按条件/循环片段建模，<sql>可复用片段支持<include>引用
type MappingAnalyzer struct {
	scanConfig  *config.ScanConfig
	sqlConfig   *config.SqlConfig
	sqlResolver *sqltext.Resolver
	logger      logger.Logger

	statementTags map[string]bool
	dynamicTags   map[string]bool
	loopTags      map[string]bool
}

func NewMappingAnalyzer(analyzerConfig *config.AnalyzerConfig, sqlResolver *sqltext.Resolver, logger logger.Logger) *MappingAnalyzer {
	a := &MappingAnalyzer{
		scanConfig:    &analyzerConfig.Scan,
		sqlConfig:     &analyzerConfig.Sql,
		sqlResolver:   sqlResolver,
		logger:        logger,
		statementTags: make(map[string]bool),
		dynamicTags:   make(map[string]bool),
		loopTags:      make(map[string]bool),
	}
	for _, t := range analyzerConfig.Sql.StatementTags {
		a.statementTags[strings.ToLower(t)] = true
	}
	for _, t := range analyzerConfig.Sql.DynamicTags {
		a.dynamicTags[strings.ToLower(t)] = true
	}
	for _, t := range analyzerConfig.Sql.LoopTags {
		a.loopTags[strings.ToLower(t)] = true
	}
	return a
}

// CanHandle 仅接受根元素为mapper的XML文件
func (a *MappingAnalyzer) CanHandle(file *scanner.ScannedFile) bool {
	ext := strings.ToLower(filepath.Ext(file.Name))
	supported := false
	for _, e := range a.scanConfig.MappingExts {
		if ext == e {
			supported = true
			break
		}
	}
	if !supported {
		return false
	}
	return rootElementName(file.Content) == "mapper"
}

func (a *MappingAnalyzer) Extract(ctx context.Context, file *scanner.ScannedFile) (*FileFacts, error) {
	facts := &FileFacts{
		FileName: file.Name,
		FilePath: file.RelPath,
		FileHash: file.Hash,
		Kind:     model.FileKindMappingDescriptor,
	}

	decoder := xml.NewDecoder(bytes.NewReader(file.Content))
	decoder.Strict = false

	var namespace string
	type rawStatement struct {
		tag       string
		id        string
		line      int
		fragments []*sqltext.Fragment
	}
	var statements []*rawStatement
	reusable := make(map[string][]*sqltext.Fragment)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse mapping descriptor %s: %w", file.RelPath, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		name := strings.ToLower(start.Name.Local)
		if name == "mapper" {
			namespace = attrValue(start, "namespace")
			continue
		}

		if !a.statementTags[name] {
			continue
		}

		id := attrValue(start, "id")
		line := lineAt(string(file.Content), int(decoder.InputOffset()))
		frags, err := a.parseElement(decoder, start)
		if err != nil {
			return nil, fmt.Errorf("failed to parse statement block %s in %s: %w", id, file.RelPath, err)
		}

		if name == "sql" {
			// 可复用片段，不单独构成语句
			reusable[id] = frags
			continue
		}
		statements = append(statements, &rawStatement{tag: name, id: id, line: line, fragments: frags})
	}

	for _, raw := range statements {
		frags := expandIncludes(raw.fragments, reusable)
		st, err := a.sqlResolver.ResolveFragments(frags)
		if err != nil {
			a.logger.Warn("mapping analyzer: statement %s.%s rejected: %v", namespace, raw.id, err)
			continue
		}
		facts.SqlUnits = append(facts.SqlUnits, &SqlUnitFact{
			ID:        raw.id,
			Namespace: namespace,
			StartLine: raw.line,
			Statement: st,
		})
	}

	return facts, nil
}

// includeMarker include引用在片段树中的占位前缀，展开时替换
const includeMarker = "\x00include:"

// parseElement 递归解析元素内容为片段树
func (a *MappingAnalyzer) parseElement(decoder *xml.Decoder, start xml.StartElement) ([]*sqltext.Fragment, error) {
	var frags []*sqltext.Fragment
	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) != "" {
				frags = append(frags, sqltext.Literal(text))
			}
		case xml.StartElement:
			child, err := a.parseChild(decoder, t)
			if err != nil {
				return nil, err
			}
			frags = append(frags, child...)
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return frags, nil
			}
		}
	}
}

// parseChild 解析动态标签子元素
func (a *MappingAnalyzer) parseChild(decoder *xml.Decoder, start xml.StartElement) ([]*sqltext.Fragment, error) {
	name := strings.ToLower(start.Name.Local)

	if name == "include" {
		refid := attrValue(start, "refid")
		if err := decoder.Skip(); err != nil {
			return nil, err
		}
		return []*sqltext.Fragment{sqltext.Literal(includeMarker + refid)}, nil
	}

	inner, err := a.parseElement(decoder, start)
	if err != nil {
		return nil, err
	}

	switch {
	case a.loopTags[name]:
		condition := attrValue(start, "collection")
		if condition == "" {
			condition = attrValue(start, "item")
		}
		// 集合展开的分隔符与常见的开闭括号按代表性形态补全
		open := attrValue(start, "open")
		close := attrValue(start, "close")
		var frags []*sqltext.Fragment
		if open != "" {
			frags = append(frags, sqltext.Literal(open))
		}
		frags = append(frags, sqltext.Loop(condition, inner...))
		if close != "" {
			frags = append(frags, sqltext.Literal(close))
		}
		return frags, nil
	case name == "if" || name == "when":
		return []*sqltext.Fragment{sqltext.Conditional(attrValue(start, "test"), inner...)}, nil
	case name == "choose":
		return inner, nil
	case name == "otherwise":
		return []*sqltext.Fragment{sqltext.Conditional("otherwise", inner...)}, nil
	case name == "where":
		return append([]*sqltext.Fragment{sqltext.Literal(" WHERE 1 = 1 ")}, inner...), nil
	case name == "set":
		return append([]*sqltext.Fragment{sqltext.Literal(" SET ")}, inner...), nil
	case name == "trim":
		var frags []*sqltext.Fragment
		if prefix := attrValue(start, "prefix"); prefix != "" {
			frags = append(frags, sqltext.Literal(" "+prefix+" "))
		}
		return append(frags, inner...), nil
	case a.dynamicTags[name]:
		return inner, nil
	default:
		// 未知标签透传其内容
		return inner, nil
	}
}

// expandIncludes 替换include引用为对应的可复用片段
func expandIncludes(frags []*sqltext.Fragment, reusable map[string][]*sqltext.Fragment) []*sqltext.Fragment {
	var out []*sqltext.Fragment
	for _, f := range frags {
		if f.Kind == sqltext.FragmentLiteral && strings.HasPrefix(f.Text, includeMarker) {
			refid := strings.TrimPrefix(f.Text, includeMarker)
			if ref, ok := reusable[refid]; ok {
				out = append(out, expandIncludes(ref, reusable)...)
			}
			continue
		}
		if len(f.Children) > 0 {
			expanded := *f
			expanded.Children = expandIncludes(f.Children, reusable)
			out = append(out, &expanded)
			continue
		}
		out = append(out, f)
	}
	return out
}

// rootElementName 嗅探XML根元素名
func rootElementName(content []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.Strict = false
	for {
		tok, err := decoder.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok {
			return strings.ToLower(start.Name.Local)
		}
	}
}

func attrValue(start xml.StartElement, name string) string {
	for _, attr := range start.Attr {
		if strings.EqualFold(attr.Name.Local, name) {
			return attr.Value
		}
	}
	return ""
}
