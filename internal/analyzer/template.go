// template.go - 服务端模板文件分析器
package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"metadb-builder/internal/config"
	"metadb-builder/internal/model"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/sqltext"
	"metadb-builder/pkg/logger"
)

// TemplateAnalyzer 模板分析器。把模板切分为指令、脚本片段、表达式与动作标签，
// 每个可执行片段登记为组件，片段内的调用与内嵌SQL照常抽取
type TemplateAnalyzer struct {
	scanConfig     *config.ScanConfig
	templateConfig *config.TemplateConfig
	sqlResolver    *sqltext.Resolver
	logger         logger.Logger
}

func NewTemplateAnalyzer(analyzerConfig *config.AnalyzerConfig, sqlResolver *sqltext.Resolver, logger logger.Logger) *TemplateAnalyzer {
	return &TemplateAnalyzer{
		scanConfig:     &analyzerConfig.Scan,
		templateConfig: &analyzerConfig.Template,
		sqlResolver:    sqlResolver,
		logger:         logger,
	}
}

func (a *TemplateAnalyzer) CanHandle(file *scanner.ScannedFile) bool {
	ext := strings.ToLower(filepath.Ext(file.Name))
	for _, e := range a.scanConfig.TemplateExts {
		if ext == e {
			return true
		}
	}
	return false
}

func (a *TemplateAnalyzer) Extract(ctx context.Context, file *scanner.ScannedFile) (*FileFacts, error) {
	facts := &FileFacts{
		FileName: file.Name,
		FilePath: file.RelPath,
		FileHash: file.Hash,
		Kind:     model.FileKindTemplate,
	}

	text := string(file.Content)
	segments := a.segment(text)

	scriptletIdx := 0
	for _, seg := range segments {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch seg.kind {
		case segDirective:
			// 指令中的import列入片段使用类型
			if types := parseDirectiveImports(seg.body); len(types) > 0 {
				facts.Fragments = append(facts.Fragments, &FragmentFact{
					Name:      fmt.Sprintf("directive:%d", seg.line),
					StartLine: seg.line,
					EndLine:   seg.endLine,
					UsedTypes: types,
				})
			}
		case segScriptlet, segExpression:
			scriptletIdx++
			frag := &FragmentFact{
				Name:      fmt.Sprintf("scriptlet:%d", scriptletIdx),
				StartLine: seg.line,
				EndLine:   seg.endLine,
			}
			a.analyzeCode(seg.body, seg.line, frag)
			facts.Fragments = append(facts.Fragments, frag)
		case segActionTag:
			if frag := a.analyzeActionTag(seg); frag != nil {
				facts.Fragments = append(facts.Fragments, frag)
			}
		}
	}

	return facts, nil
}

type segmentKind int

const (
	segStatic segmentKind = iota
	segDirective
	segScriptlet
	segExpression
	segActionTag
)

type templateSegment struct {
	kind    segmentKind
	body    string
	line    int
	endLine int
}

// segment 按配置的界定符切分模板文本
func (a *TemplateAnalyzer) segment(text string) []templateSegment {
	var segments []templateSegment
	cfg := a.templateConfig

	pos := 0
	for pos < len(text) {
		open := strings.Index(text[pos:], cfg.ScriptletOpen)
		action := strings.Index(text[pos:], "<"+cfg.ActionTagPrefix)

		if open < 0 && action < 0 {
			break
		}

		// 取更靠前的界定符
		if action >= 0 && (open < 0 || action < open) {
			start := pos + action
			end := strings.IndexByte(text[start:], '>')
			if end < 0 {
				break
			}
			segments = append(segments, templateSegment{
				kind:    segActionTag,
				body:    text[start : start+end+1],
				line:    lineAt(text, start),
				endLine: lineAt(text, start+end),
			})
			pos = start + end + 1
			continue
		}

		start := pos + open
		rest := text[start:]

		kind := segScriptlet
		bodyStart := start + len(cfg.ScriptletOpen)
		switch {
		case strings.HasPrefix(rest, cfg.DirectiveOpen):
			kind = segDirective
			bodyStart = start + len(cfg.DirectiveOpen)
		case strings.HasPrefix(rest, cfg.ExpressionOpen):
			kind = segExpression
			bodyStart = start + len(cfg.ExpressionOpen)
		}

		close := strings.Index(text[bodyStart:], cfg.ScriptletClose)
		if close < 0 {
			break
		}
		bodyEnd := bodyStart + close
		segments = append(segments, templateSegment{
			kind:    kind,
			body:    text[bodyStart:bodyEnd],
			line:    lineAt(text, start),
			endLine: lineAt(text, bodyEnd),
		})
		pos = bodyEnd + len(cfg.ScriptletClose)
	}
	return segments
}

// analyzeCode 对脚本片段代码做词法级抽取：调用点与字符串内嵌SQL
func (a *TemplateAnalyzer) analyzeCode(code string, baseLine int, frag *FragmentFact) {
	toks := lexScriptlet(code)

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.isString:
			st, err := a.sqlResolver.ResolveText(t.text)
			if err == nil {
				frag.SqlFacts = append(frag.SqlFacts, &SqlFact{
					Statement: st,
					StartLine: baseLine + t.lineOffset,
				})
			}
		case t.text == "new" && i+1 < len(toks) && !toks[i+1].isString:
			frag.UsedTypes = appendUnique(frag.UsedTypes, toks[i+1].text)
		case isJavaIdent(t.text) && i+3 < len(toks) &&
			toks[i+1].text == "." && isJavaIdent(toks[i+2].text) && toks[i+3].text == "(":
			frag.Calls = append(frag.Calls, &CallFact{
				Receiver:   t.text,
				MethodName: toks[i+2].text,
			})
			i += 2
		}
	}
}

// analyzeActionTag 解析动作标签，useBean的class属性列入使用类型
func (a *TemplateAnalyzer) analyzeActionTag(seg templateSegment) *FragmentFact {
	attrs := parseTagAttributes(seg.body)
	frag := &FragmentFact{
		Name:      fmt.Sprintf("action:%d", seg.line),
		StartLine: seg.line,
		EndLine:   seg.endLine,
	}
	if class, ok := attrs["class"]; ok {
		frag.UsedTypes = appendUnique(frag.UsedTypes, class)
	}
	if typ, ok := attrs["type"]; ok {
		frag.UsedTypes = appendUnique(frag.UsedTypes, typ)
	}
	if len(frag.UsedTypes) == 0 {
		return nil
	}
	return frag
}

// parseDirectiveImports 解析page指令的import属性
func parseDirectiveImports(body string) []string {
	attrs := parseTagAttributes(body)
	imports, ok := attrs["import"]
	if !ok {
		return nil
	}
	var types []string
	for _, imp := range strings.Split(imports, ",") {
		imp = strings.TrimSpace(imp)
		if imp != "" && !strings.HasSuffix(imp, ".*") {
			types = append(types, imp)
		}
	}
	return types
}

// parseTagAttributes 解析 name="value" 形式的标签属性
func parseTagAttributes(body string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	for i < len(body) {
		for i < len(body) && !isJavaIdentByte(body[i]) {
			i++
		}
		start := i
		for i < len(body) && (isJavaIdentByte(body[i]) || body[i] == ':' || body[i] == '.') {
			i++
		}
		if start == i {
			break
		}
		name := body[start:i]

		for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\n' || body[i] == '\r') {
			i++
		}
		if i >= len(body) || body[i] != '=' {
			continue
		}
		i++
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || body[i] != '"' {
			continue
		}
		end := strings.IndexByte(body[i+1:], '"')
		if end < 0 {
			break
		}
		attrs[name] = body[i+1 : i+1+end]
		i += end + 2
	}
	return attrs
}

type scriptletToken struct {
	text       string
	isString   bool
	lineOffset int
}

// lexScriptlet 片段代码的轻量词法切分，只为调用点与字符串识别服务
func lexScriptlet(code string) []scriptletToken {
	var toks []scriptletToken
	line := 0
	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '/' && i+1 < len(code) && code[i+1] == '/':
			for i < len(code) && code[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(code) && code[i+1] == '*':
			end := strings.Index(code[i+2:], "*/")
			if end < 0 {
				i = len(code)
			} else {
				line += strings.Count(code[i:i+end+4], "\n")
				i += end + 4
			}
		case c == '"':
			j := i + 1
			for j < len(code) && code[j] != '"' {
				if code[j] == '\\' {
					j++
				}
				j++
			}
			text := ""
			if j <= len(code) {
				text = code[i+1 : min(j, len(code))]
			}
			toks = append(toks, scriptletToken{text: text, isString: true, lineOffset: line})
			i = j + 1
		case isJavaIdentByte(c):
			j := i
			for j < len(code) && isJavaIdentByte(code[j]) {
				j++
			}
			toks = append(toks, scriptletToken{text: code[i:j], lineOffset: line})
			i = j
		default:
			toks = append(toks, scriptletToken{text: string(c), lineOffset: line})
			i++
		}
	}
	return toks
}

func isJavaIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isJavaIdentByte(s[i]) {
			return false
		}
	}
	return s[0] < '0' || s[0] > '9'
}

func isJavaIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '$'
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
