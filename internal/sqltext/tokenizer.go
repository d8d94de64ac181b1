package sqltext

import "strings"

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenKeyword
	tokenNumber
	tokenString
	tokenPlaceholder
	tokenSymbol
)

// token 携带来源片段的条件归属，供表引用的置信度判定使用
type token struct {
	text        string
	upper       string
	kind        tokenKind
	conditional bool
	loop        bool
	condition   string
}

// sqlKeywords 不参与表名/列名识别的SQL保留词
var sqlKeywords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"FROM": true, "INTO": true, "USING": true, "JOIN": true, "ON": true,
	"WHERE": true, "SET": true, "VALUES": true, "AS": true, "AND": true, "OR": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true, "CROSS": true,
	"GROUP": true, "ORDER": true, "BY": true, "HAVING": true, "UNION": true, "ALL": true,
	"DISTINCT": true, "EXISTS": true, "IN": true, "NOT": true, "NULL": true, "IS": true,
	"LIKE": true, "BETWEEN": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true,
	"END": true, "MATCHED": true, "DUAL": true, "ASC": true, "DESC": true, "LIMIT": true,
	"OFFSET": true, "FOR": true, "COUNT": true, "SUM": true, "AVG": true, "MAX": true, "MIN": true,
}

func isPlainIdent(t token) bool {
	return t.kind == tokenIdent
}

// tokenize 将展开后的片段序列切分为token流。
// 注释被丢弃，字符串与数字字面量不参与标识符识别，
// JDBC与MyBatis风格的占位符归一化为不透明的占位token。
func tokenize(segments []segment) []token {
	var toks []token
	for _, seg := range segments {
		toks = append(toks, tokenizeText(seg)...)
	}
	return toks
}

func tokenizeText(seg segment) []token {
	var toks []token
	s := seg.text
	i := 0
	emit := func(text string, kind tokenKind) {
		toks = append(toks, token{
			text:        text,
			upper:       strings.ToUpper(text),
			kind:        kind,
			conditional: seg.conditional,
			loop:        seg.loop,
			condition:   seg.condition,
		})
	}

	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			// 行注释
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			// 块注释
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}
		case c == '\'':
			// 字符串字面量，''转义
			j := i + 1
			for j < len(s) {
				if s[j] == '\'' {
					if j+1 < len(s) && s[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j < len(s) {
				j++
			}
			emit(s[i:j], tokenString)
			i = j
		case c == '"':
			// 引号标识符按普通标识符处理
			j := i + 1
			for j < len(s) && s[j] != '"' {
				j++
			}
			text := s[i+1 : j]
			if j < len(s) {
				j++
			}
			if text != "" {
				emit(text, tokenIdent)
			}
			i = j
		case c == '?':
			emit("?", tokenPlaceholder)
			i++
		case c == ':' && i+1 < len(s) && isIdentStart(s[i+1]):
			// 命名绑定参数 :name
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			emit("?", tokenPlaceholder)
			i = j
		case (c == '#' || c == '$') && i+1 < len(s) && s[i+1] == '{':
			// MyBatis占位符 #{...} / ${...}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				i = len(s)
			} else {
				i += end + 1
			}
			emit("?", tokenPlaceholder)
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			emit(s[i:j], tokenNumber)
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			text := s[i:j]
			kind := tokenIdent
			if sqlKeywords[strings.ToUpper(text)] {
				kind = tokenKeyword
			}
			emit(text, kind)
			i = j
		case c == '|' && i+1 < len(s) && s[i+1] == '|':
			emit("||", tokenSymbol)
			i += 2
		default:
			emit(string(c), tokenSymbol)
			i++
		}
	}
	return toks
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '$' || c == '#'
}
