// java.go - 基于tree-sitter的类源码分析器
package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	sitterjava "github.com/tree-sitter/tree-sitter-java/bindings/go"

	"metadb-builder/internal/config"
	"metadb-builder/internal/model"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/sqltext"
	"metadb-builder/pkg/logger"
)

// JavaAnalyzer 类源码分析器。抽取类、方法、调用点，
// 并从字符串拼接中重建方法内组装的SQL语句
type JavaAnalyzer struct {
	scanConfig  *config.ScanConfig
	sqlResolver *sqltext.Resolver
	logger      logger.Logger
}

func NewJavaAnalyzer(analyzerConfig *config.AnalyzerConfig, sqlResolver *sqltext.Resolver, logger logger.Logger) *JavaAnalyzer {
	return &JavaAnalyzer{
		scanConfig:  &analyzerConfig.Scan,
		sqlResolver: sqlResolver,
		logger:      logger,
	}
}

func (a *JavaAnalyzer) CanHandle(file *scanner.ScannedFile) bool {
	ext := strings.ToLower(filepath.Ext(file.Name))
	for _, e := range a.scanConfig.ClassSourceExts {
		if ext == e {
			return true
		}
	}
	return false
}

func (a *JavaAnalyzer) Extract(ctx context.Context, file *scanner.ScannedFile) (*FileFacts, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(sitterjava.Language())); err != nil {
		return nil, fmt.Errorf("failed to set parser language: %w", err)
	}

	tree := parser.Parse(file.Content, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse class source file: %s", file.RelPath)
	}
	defer tree.Close()

	facts := &FileFacts{
		FileName: file.Name,
		FilePath: file.RelPath,
		FileHash: file.Hash,
		Kind:     model.FileKindClassSource,
	}

	a.collectClasses(ctx, tree.RootNode(), file.Content, facts)
	return facts, nil
}

// collectClasses 递归收集类声明，嵌套类与顶层类同级记录
func (a *JavaAnalyzer) collectClasses(ctx context.Context, node *sitter.Node, content []byte, facts *FileFacts) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "class_declaration", "interface_declaration", "enum_declaration":
			cf := a.extractClass(ctx, child, content)
			if cf != nil {
				facts.Classes = append(facts.Classes, cf)
			}
			// 类体内的嵌套类
			if body := child.ChildByFieldName("body"); body != nil {
				a.collectClasses(ctx, body, content, facts)
			}
		default:
			a.collectClasses(ctx, child, content, facts)
		}
	}
}

func (a *JavaAnalyzer) extractClass(ctx context.Context, node *sitter.Node, content []byte) *ClassFact {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	cf := &ClassFact{
		Name:      nameNode.Utf8Text(content),
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}

	// superclass节点形如 "extends Foo"
	if super := node.ChildByFieldName("superclass"); super != nil {
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(super.Utf8Text(content)), "extends"))
		cf.Superclass = stripTypeArguments(text)
	}

	if body := node.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.NamedChildCount(); i++ {
			member := body.NamedChild(i)
			switch member.Kind() {
			case "method_declaration", "constructor_declaration":
				mf := a.extractMethod(ctx, member, content)
				if mf != nil {
					cf.Methods = append(cf.Methods, mf)
				}
			}
		}
	}
	return cf
}

func (a *JavaAnalyzer) extractMethod(ctx context.Context, node *sitter.Node, content []byte) *MethodFact {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	mf := &MethodFact{
		Name:      nameNode.Utf8Text(content),
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return mf
	}

	mc := &methodCollector{
		content:  content,
		varFrags: make(map[string][]*sqltext.Fragment),
	}
	mc.walk(body, condContext{})

	mf.Calls = mc.calls
	mf.SqlFacts = a.resolveCollected(mc, mf.StartLine)
	return mf
}

// resolveCollected 对方法内收集到的字符串拼接候选做SQL重建，
// 非SQL候选静默丢弃
func (a *JavaAnalyzer) resolveCollected(mc *methodCollector, fallbackLine int) []*SqlFact {
	var sqlFacts []*SqlFact
	seen := make(map[string]bool)
	for _, cand := range mc.candidates {
		st, err := a.sqlResolver.ResolveFragments(cand.fragments)
		if err != nil {
			continue
		}
		if seen[st.Text] {
			continue
		}
		seen[st.Text] = true
		line := cand.line
		if line == 0 {
			line = fallbackLine
		}
		sqlFacts = append(sqlFacts, &SqlFact{Statement: st, StartLine: line})
	}
	return sqlFacts
}

// condContext 语句所处的条件/循环上下文
type condContext struct {
	conditional bool
	loop        bool
	condition   string
}

func (c condContext) nest(condition string, loop bool) condContext {
	next := c
	next.conditional = true
	next.loop = next.loop || loop
	if next.condition == "" {
		next.condition = condition
	} else if condition != "" {
		next.condition = next.condition + " AND " + condition
	}
	return next
}

type sqlCandidate struct {
	fragments []*sqltext.Fragment
	// varName 非空时表示来自局部变量归集，按变量名刷新
	varName string
	line    int
}

// methodCollector 单个方法体的遍历状态：
// 局部字符串变量的片段归集、调用点与SQL候选
type methodCollector struct {
	content    []byte
	varFrags   map[string][]*sqltext.Fragment
	varLine    map[string]int
	calls      []*CallFact
	candidates []sqlCandidate
}

func (mc *methodCollector) walk(node *sitter.Node, ctx condContext) {
	switch node.Kind() {
	case "if_statement":
		cond := ""
		if condNode := node.ChildByFieldName("condition"); condNode != nil {
			cond = trimParens(condNode.Utf8Text(mc.content))
		}
		if consequence := node.ChildByFieldName("consequence"); consequence != nil {
			mc.walk(consequence, ctx.nest(cond, false))
		}
		if alternative := node.ChildByFieldName("alternative"); alternative != nil {
			mc.walk(alternative, ctx.nest("!("+cond+")", false))
		}
		return
	case "for_statement", "enhanced_for_statement", "while_statement", "do_statement":
		cond := ""
		if condNode := node.ChildByFieldName("condition"); condNode != nil {
			cond = trimParens(condNode.Utf8Text(mc.content))
		} else if valueNode := node.ChildByFieldName("value"); valueNode != nil {
			cond = valueNode.Utf8Text(mc.content)
		}
		if body := node.ChildByFieldName("body"); body != nil {
			mc.walk(body, ctx.nest(cond, true))
		}
		return
	case "local_variable_declaration":
		mc.collectDeclaration(node, ctx)
	case "expression_statement":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			mc.collectExpression(node.NamedChild(i), ctx)
		}
		return
	case "method_invocation":
		mc.collectInvocation(node, ctx)
	}

	for i := uint(0); i < node.NamedChildCount(); i++ {
		mc.walk(node.NamedChild(i), ctx)
	}
}

// collectDeclaration 处理 String sql = "..." 形式的声明
func (mc *methodCollector) collectDeclaration(node *sitter.Node, ctx condContext) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		declarator := node.NamedChild(i)
		if declarator.Kind() != "variable_declarator" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		valueNode := declarator.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}
		frags := mc.fragmentsFromExpr(valueNode)
		if len(frags) == 0 {
			continue
		}
		name := nameNode.Utf8Text(mc.content)
		mc.setVar(name, wrapContext(frags, ctx), int(node.StartPosition().Row)+1)
	}
}

// collectExpression 处理赋值表达式与独立的方法调用
func (mc *methodCollector) collectExpression(node *sitter.Node, ctx condContext) {
	switch node.Kind() {
	case "assignment_expression":
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		operator := node.ChildByFieldName("operator")
		if left == nil || right == nil || left.Kind() != "identifier" {
			mc.walk(node, ctx)
			return
		}
		frags := mc.fragmentsFromExpr(right)
		if len(frags) == 0 {
			mc.walk(right, ctx)
			return
		}
		name := left.Utf8Text(mc.content)
		wrapped := wrapContext(frags, ctx)
		if operator != nil && operator.Utf8Text(mc.content) == "+=" {
			mc.appendVar(name, wrapped, int(node.StartPosition().Row)+1)
		} else {
			mc.setVar(name, wrapped, int(node.StartPosition().Row)+1)
		}
	case "method_invocation":
		mc.collectInvocation(node, ctx)
		mc.walkArguments(node, ctx)
	default:
		mc.walk(node, ctx)
	}
}

// collectInvocation 记录调用点，并把字符串字面量实参作为SQL候选
func (mc *methodCollector) collectInvocation(node *sitter.Node, ctx condContext) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	call := &CallFact{
		MethodName:    nameNode.Utf8Text(mc.content),
		IsConditional: ctx.conditional,
		Condition:     ctx.condition,
	}
	if objectNode := node.ChildByFieldName("object"); objectNode != nil {
		call.Receiver = objectNode.Utf8Text(mc.content)
	}
	mc.calls = append(mc.calls, call)

	// 形如 stmt.executeQuery("SELECT ...") 或 execute(sql) 的实参
	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := uint(0); i < args.NamedChildCount(); i++ {
			arg := args.NamedChild(i)
			frags := mc.fragmentsFromExpr(arg)
			if len(frags) > 0 {
				mc.candidates = append(mc.candidates, sqlCandidate{
					fragments: wrapContext(frags, ctx),
					line:      int(arg.StartPosition().Row) + 1,
				})
			}
		}
	}
}

// walkArguments 继续遍历实参中嵌套的调用
func (mc *methodCollector) walkArguments(node *sitter.Node, ctx condContext) {
	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := uint(0); i < args.NamedChildCount(); i++ {
			arg := args.NamedChild(i)
			if arg.Kind() == "method_invocation" {
				mc.collectInvocation(arg, ctx)
			}
		}
	}
	if objectNode := node.ChildByFieldName("object"); objectNode != nil && objectNode.Kind() == "method_invocation" {
		mc.collectInvocation(objectNode, ctx)
	}
}

// fragmentsFromExpr 把字符串表达式转为SQL片段序列。
// 字面量保留文本，拼接进来的变量与调用降级为不透明占位符，
// 已知的本地SQL变量内联其片段
func (mc *methodCollector) fragmentsFromExpr(node *sitter.Node) []*sqltext.Fragment {
	switch node.Kind() {
	case "string_literal":
		return []*sqltext.Fragment{sqltext.Literal(unquoteJavaString(node.Utf8Text(mc.content)))}
	case "binary_expression":
		if op := node.ChildByFieldName("operator"); op == nil || op.Utf8Text(mc.content) != "+" {
			return nil
		}
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		if left == nil || right == nil {
			return nil
		}
		leftFrags := mc.fragmentsFromExpr(left)
		rightFrags := mc.fragmentsFromExpr(right)
		if leftFrags == nil && rightFrags == nil {
			return nil
		}
		if leftFrags == nil {
			leftFrags = []*sqltext.Fragment{sqltext.Placeholder(left.Utf8Text(mc.content))}
		}
		if rightFrags == nil {
			rightFrags = []*sqltext.Fragment{sqltext.Placeholder(right.Utf8Text(mc.content))}
		}
		return append(leftFrags, rightFrags...)
	case "identifier":
		name := node.Utf8Text(mc.content)
		if frags, ok := mc.varFrags[name]; ok {
			return append([]*sqltext.Fragment{}, frags...)
		}
		return nil
	case "parenthesized_expression":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if frags := mc.fragmentsFromExpr(node.NamedChild(i)); frags != nil {
				return frags
			}
		}
		return nil
	}
	return nil
}

func (mc *methodCollector) setVar(name string, frags []*sqltext.Fragment, line int) {
	if mc.varLine == nil {
		mc.varLine = make(map[string]int)
	}
	mc.varFrags[name] = frags
	mc.varLine[name] = line
	mc.refreshCandidate(name)
}

func (mc *methodCollector) appendVar(name string, frags []*sqltext.Fragment, line int) {
	if _, ok := mc.varFrags[name]; !ok {
		mc.setVar(name, frags, line)
		return
	}
	mc.varFrags[name] = append(mc.varFrags[name], frags...)
	mc.refreshCandidate(name)
}

// refreshCandidate 变量每次演进都刷新其候选，保留最终形态
func (mc *methodCollector) refreshCandidate(name string) {
	frags := append([]*sqltext.Fragment{}, mc.varFrags[name]...)
	for i, cand := range mc.candidates {
		if cand.varName == name {
			mc.candidates[i].fragments = frags
			return
		}
	}
	mc.candidates = append(mc.candidates, sqlCandidate{fragments: frags, varName: name, line: mc.varLine[name]})
}

func wrapContext(frags []*sqltext.Fragment, ctx condContext) []*sqltext.Fragment {
	if !ctx.conditional {
		return frags
	}
	if ctx.loop {
		return []*sqltext.Fragment{sqltext.Loop(ctx.condition, frags...)}
	}
	return []*sqltext.Fragment{sqltext.Conditional(ctx.condition, frags...)}
}

func unquoteJavaString(s string) string {
	s = strings.TrimPrefix(s, "\"\"\"")
	s = strings.TrimSuffix(s, "\"\"\"")
	s = strings.TrimPrefix(s, "\"")
	s = strings.TrimSuffix(s, "\"")
	s = strings.ReplaceAll(s, "\\\"", "\"")
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\t", "\t")
	return s
}

func trimParens(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func stripTypeArguments(s string) string {
	if idx := strings.IndexByte(s, '<'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
