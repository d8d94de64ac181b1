// fragment.go - 动态SQL片段表达式树
// 运行期通过字符串拼接、条件分支、循环组装的SQL在这里建模为一棵小的表达式树，
// 由单个求值器展开为候选语句文本，并保留每段文本的条件归属。
package sqltext

import "strings"

// FragmentKind 片段类型
type FragmentKind string

const (
	FragmentLiteral     FragmentKind = "literal"
	FragmentPlaceholder FragmentKind = "placeholder"
	FragmentConditional FragmentKind = "conditional"
	FragmentLoop        FragmentKind = "loop"
)

// Fragment SQL片段树节点
type Fragment struct {
	Kind      FragmentKind
	Text      string      // literal的文本，placeholder的参数名
	Condition string      // conditional/loop生效的条件表达式
	Children  []*Fragment // conditional/loop的子片段
}

// Literal 创建静态文本片段
func Literal(text string) *Fragment {
	return &Fragment{Kind: FragmentLiteral, Text: text}
}

// Placeholder 创建参数占位片段，命名与位置参数统一视为不透明标记
func Placeholder(name string) *Fragment {
	return &Fragment{Kind: FragmentPlaceholder, Text: name}
}

// Conditional 创建条件分支片段
func Conditional(condition string, children ...*Fragment) *Fragment {
	return &Fragment{Kind: FragmentConditional, Condition: condition, Children: children}
}

// Loop 创建循环合成片段，展开时仅生成单个代表性片段
func Loop(condition string, children ...*Fragment) *Fragment {
	return &Fragment{Kind: FragmentLoop, Condition: condition, Children: children}
}

// segment 展平后的文本段，携带条件归属信息
type segment struct {
	text        string
	conditional bool
	loop        bool
	condition   string
}

// flatten 单次求值展开片段树，按源码顺序拼接
func flatten(fragments []*Fragment) []segment {
	var segments []segment
	for _, f := range fragments {
		segments = appendFragment(segments, f, false, false, "")
	}
	return segments
}

func appendFragment(segments []segment, f *Fragment, conditional, loop bool, condition string) []segment {
	if f == nil {
		return segments
	}

	switch f.Kind {
	case FragmentLiteral:
		segments = append(segments, segment{
			text:        f.Text,
			conditional: conditional,
			loop:        loop,
			condition:   condition,
		})
	case FragmentPlaceholder:
		// 占位符永远不参与表/列抽取，以"?"统一保持语句形状
		segments = append(segments, segment{
			text:        " ? ",
			conditional: conditional,
			loop:        loop,
			condition:   condition,
		})
	case FragmentConditional:
		for _, child := range f.Children {
			segments = appendFragment(segments, child, true, loop, joinCondition(condition, f.Condition))
		}
	case FragmentLoop:
		// 循环体只展开一次作为代表性片段，实际表集合仅运行期可知
		for _, child := range f.Children {
			segments = appendFragment(segments, child, true, true, joinCondition(condition, f.Condition))
		}
	}

	return segments
}

func joinCondition(outer, inner string) string {
	outer = strings.TrimSpace(outer)
	inner = strings.TrimSpace(inner)
	if outer == "" {
		return inner
	}
	if inner == "" {
		return outer
	}
	return outer + " AND " + inner
}
