// resolver.go - SQL文本重建与表/列引用抽取
package sqltext

import (
	"strings"

	"metadb-builder/internal/config"
	"metadb-builder/internal/errs"
	"metadb-builder/internal/model"
	"metadb-builder/pkg/logger"
)

// 置信度取值：静态完整语句1.0，分支依赖0.8，循环合成0.7
const (
	ConfidenceStatic      = 1.0
	ConfidenceConditional = 0.8
	ConfidenceLoop        = 0.7
)

// TableRef 抽取到的表引用
type TableRef struct {
	Name          string
	Owner         string
	Alias         string
	IsConditional bool
	Condition     string
	Confidence    float64
	Columns       []string
}

// Statement 重建后的SQL语句与抽取结果
type Statement struct {
	DML        model.DMLKind
	Text       string
	Tables     []*TableRef
	Confidence float64
}

// Resolver SQL文本解析器
type Resolver struct {
	sqlConfig *config.SqlConfig
	logger    logger.Logger
	dmlSet    map[string]model.DMLKind
}

// NewResolver 创建SQL文本解析器
func NewResolver(sqlConfig *config.SqlConfig, logger logger.Logger) *Resolver {
	dmlSet := make(map[string]model.DMLKind)
	for _, kw := range sqlConfig.DMLKeywords {
		dmlSet[strings.ToUpper(kw)] = model.DMLKind(strings.ToUpper(kw))
	}
	return &Resolver{
		sqlConfig: sqlConfig,
		logger:    logger,
		dmlSet:    dmlSet,
	}
}

// ResolveText 解析静态完整的SQL文本
func (r *Resolver) ResolveText(text string) (*Statement, error) {
	return r.ResolveFragments([]*Fragment{Literal(text)})
}

// ResolveFragments 从片段树重建SQL语句并抽取表/列引用。
// 结构形状校验不通过的候选文本按设计丢弃（返回ErrNotSQL），不视为错误。
func (r *Resolver) ResolveFragments(fragments []*Fragment) (*Statement, error) {
	segments := flatten(fragments)
	toks := tokenize(segments)
	if len(toks) == 0 {
		return nil, errs.ErrNotSQL
	}

	// 按首关键词判定DML类型
	dml, ok := r.dmlSet[toks[0].upper]
	if !ok {
		return nil, errs.ErrNotSQL
	}

	// 结构形状校验：仅包含SQL关键词的普通文本在此被拒绝
	if !shapeValid(dml, toks) {
		return nil, errs.ErrNotSQL
	}

	st := &Statement{
		DML:        dml,
		Text:       joinTokens(toks),
		Confidence: statementConfidence(toks),
	}

	r.extract(dml, toks, st)
	return st, nil
}

// extract 线性扫描token流，抽取表与列引用。
// 子查询无需递归：FROM/JOIN/INTO/USING关键词在任意括号深度都会被命中。
func (r *Resolver) extract(dml model.DMLKind, toks []token, st *Statement) {
	var qualifiedCols []qualifiedCol
	var bareCols []string

	depth := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.text {
		case "(":
			depth++
			continue
		case ")":
			depth--
			continue
		}

		switch t.upper {
		case "FROM", "JOIN", "INTO", "USING":
			i = r.captureTableList(toks, i, dml, st)
		case "UPDATE":
			if i == 0 {
				i = r.captureTableList(toks, i, dml, st)
			}
		case "SET":
			if dml == model.DMLKindUpdate && depth == 0 {
				i = captureSetColumns(toks, i, &bareCols, &qualifiedCols)
			}
		case "SELECT":
			if i == 0 {
				i = captureSelectColumns(toks, i, &bareCols, &qualifiedCols)
			}
		case "INSERT":
			// MERGE的not-matched分支: WHEN NOT MATCHED THEN INSERT (c1, c2, ...)
			if dml == model.DMLKindMerge && i > 0 {
				cols := captureParenColumns(toks, i+1)
				if len(cols) > 0 && len(st.Tables) > 0 {
					st.Tables[0].Columns = mergeColumns(st.Tables[0].Columns, cols)
				}
			}
		}
	}

	// 列归属：别名限定列按别名表归属，未限定列仅在单表语句中归属主表
	aliasMap := make(map[string]*TableRef)
	for _, ref := range st.Tables {
		if ref.Alias != "" {
			aliasMap[strings.ToUpper(ref.Alias)] = ref
		}
		aliasMap[strings.ToUpper(ref.Name)] = ref
	}
	for _, qc := range qualifiedCols {
		if ref, ok := aliasMap[strings.ToUpper(qc.qualifier)]; ok {
			ref.Columns = mergeColumns(ref.Columns, []string{qc.column})
		}
	}
	if len(st.Tables) == 1 && len(bareCols) > 0 {
		st.Tables[0].Columns = mergeColumns(st.Tables[0].Columns, bareCols)
	}
}

// captureTableList 捕获关键词之后的表引用，FROM子句支持逗号分隔的隐式JOIN列表
func (r *Resolver) captureTableList(toks []token, kwIdx int, dml model.DMLKind, st *Statement) int {
	kw := toks[kwIdx].upper
	i := kwIdx + 1
	for {
		if i >= len(toks) {
			return i - 1
		}
		// 占位符出现在表位置：歧义情形记录日志供人工复核，不做猜测
		if toks[i].kind == tokenPlaceholder {
			r.logger.Warn("sql resolver: placeholder in table position after %s, skipped for manual review", kw)
			return i
		}
		// 子查询或列清单在此不消费，内部关键词由外层线性扫描命中
		if toks[i].text == "(" {
			return i - 1
		}

		// INTO/UPDATE目标表后可合法跟随列清单括号，FROM位置的后随括号是函数调用
		allowParen := kw == "INTO" || kw == "UPDATE"
		ref, next, ok := parseTableRef(toks, i, allowParen)
		if !ok {
			return i - 1
		}
		st.addTableRef(ref)

		// INSERT INTO t (c1, c2, ...) 的列清单直接归属目标表
		if dml == model.DMLKindInsert && kw == "INTO" {
			cols := captureParenColumns(toks, next)
			if len(cols) > 0 {
				ref.Columns = mergeColumns(ref.Columns, cols)
			}
		}

		// 逗号分隔的FROM列表视为隐式JOIN
		if kw == "FROM" && next < len(toks) && toks[next].text == "," {
			i = next + 1
			continue
		}
		return next - 1
	}
}

// addTableRef 去重合并表引用，静态引用优先于推断引用
func (st *Statement) addTableRef(ref *TableRef) {
	key := strings.ToUpper(ref.Owner) + "." + strings.ToUpper(ref.Name)
	for _, existing := range st.Tables {
		if strings.ToUpper(existing.Owner)+"."+strings.ToUpper(existing.Name) == key {
			if ref.Confidence > existing.Confidence {
				existing.Confidence = ref.Confidence
				existing.IsConditional = ref.IsConditional
				existing.Condition = ref.Condition
			}
			if existing.Alias == "" {
				existing.Alias = ref.Alias
			}
			existing.Columns = mergeColumns(existing.Columns, ref.Columns)
			return
		}
	}
	st.Tables = append(st.Tables, ref)
}

// parseTableRef 解析 [owner.]table [AS] [alias]
func parseTableRef(toks []token, i int, allowParen bool) (*TableRef, int, bool) {
	if i >= len(toks) || !isPlainIdent(toks[i]) {
		return nil, i, false
	}

	ref := &TableRef{Confidence: ConfidenceStatic}
	if toks[i].loop {
		ref.Confidence = ConfidenceLoop
		ref.IsConditional = true
		ref.Condition = toks[i].condition
	} else if toks[i].conditional {
		ref.Confidence = ConfidenceConditional
		ref.IsConditional = true
		ref.Condition = toks[i].condition
	}

	name := toks[i].text
	next := i + 1
	if next+1 < len(toks) && toks[next].text == "." && isPlainIdent(toks[next+1]) {
		ref.Owner = name
		name = toks[next+1].text
		next += 2
	}

	// 后随左括号的是函数调用，不是表
	if !allowParen && next < len(toks) && toks[next].text == "(" {
		return nil, i, false
	}

	ref.Name = name

	// 可选AS与别名
	if next < len(toks) && toks[next].upper == "AS" {
		next++
	}
	if next < len(toks) && isPlainIdent(toks[next]) {
		ref.Alias = toks[next].text
		next++
	}

	return ref, next, true
}

// captureParenColumns 读取紧随其后的 (c1, c2, ...) 列清单
func captureParenColumns(toks []token, i int) []string {
	if i >= len(toks) || toks[i].text != "(" {
		return nil
	}
	// SELECT子查询不是列清单
	if i+1 < len(toks) && toks[i+1].upper == "SELECT" {
		return nil
	}

	var cols []string
	for j := i + 1; j < len(toks); j++ {
		switch {
		case toks[j].text == ")":
			return cols
		case toks[j].text == ",":
			continue
		case isPlainIdent(toks[j]):
			cols = append(cols, toks[j].text)
		default:
			// 表达式列清单（如VALUES）不做抽取
			return nil
		}
	}
	return nil
}

// qualifiedCol 限定名列引用，待别名表解析后归属
type qualifiedCol struct {
	qualifier string
	column    string
}

// captureSetColumns 捕获UPDATE ... SET赋值目标列
func captureSetColumns(toks []token, setIdx int, bareCols *[]string, qualifiedCols *[]qualifiedCol) int {
	i := setIdx + 1
	for i < len(toks) {
		if toks[i].upper == "WHERE" {
			return i - 1
		}
		if isPlainIdent(toks[i]) && i+1 < len(toks) {
			if toks[i+1].text == "." && i+2 < len(toks) && isPlainIdent(toks[i+2]) && i+3 < len(toks) && toks[i+3].text == "=" {
				*qualifiedCols = append(*qualifiedCols, qualifiedCol{toks[i].text, toks[i+2].text})
				i += 4
				continue
			}
			if toks[i+1].text == "=" {
				*bareCols = append(*bareCols, toks[i].text)
				i += 2
				continue
			}
		}
		i++
	}
	return i - 1
}

// captureSelectColumns 捕获SELECT列表中的列引用，直到顶层FROM
func captureSelectColumns(toks []token, selIdx int, bareCols *[]string, qualifiedCols *[]qualifiedCol) int {
	depth := 0
	for i := selIdx + 1; i < len(toks); i++ {
		switch toks[i].text {
		case "(":
			depth++
			continue
		case ")":
			depth--
			continue
		}
		if toks[i].upper == "FROM" && depth == 0 {
			return i - 1
		}
		if depth != 0 || !isPlainIdent(toks[i]) {
			continue
		}
		if i+2 < len(toks) && toks[i+1].text == "." && isPlainIdent(toks[i+2]) {
			*qualifiedCols = append(*qualifiedCols, qualifiedCol{toks[i].text, toks[i+2].text})
			continue
		}
		// 裸标识符后随左括号的是函数调用
		if i+1 < len(toks) && toks[i+1].text == "(" {
			continue
		}
		if i > 0 && toks[i-1].text == "." {
			continue
		}
		*bareCols = append(*bareCols, toks[i].text)
	}
	return len(toks) - 1
}

// shapeValid 结构形状校验：要求DML关键词之外还具备对应的子句结构且括号配对
func shapeValid(dml model.DMLKind, toks []token) bool {
	if !parensBalanced(toks) {
		return false
	}

	switch dml {
	case model.DMLKindSelect, model.DMLKindDelete:
		return containsKeyword(toks, "FROM")
	case model.DMLKindInsert:
		return len(toks) > 2 && toks[1].upper == "INTO" && isPlainIdent(toks[2])
	case model.DMLKindUpdate:
		return len(toks) > 2 && isPlainIdent(toks[1]) && containsKeyword(toks, "SET")
	case model.DMLKindMerge:
		return containsKeyword(toks, "INTO") && containsKeyword(toks, "USING")
	}
	return false
}

func parensBalanced(toks []token) bool {
	depth := 0
	for _, t := range toks {
		switch t.text {
		case "(":
			depth++
		case ")":
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func containsKeyword(toks []token, kw string) bool {
	for _, t := range toks {
		if t.upper == kw {
			return true
		}
	}
	return false
}

func mergeColumns(existing []string, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[strings.ToUpper(c)] = true
	}
	for _, c := range added {
		if !seen[strings.ToUpper(c)] {
			existing = append(existing, c)
			seen[strings.ToUpper(c)] = true
		}
	}
	return existing
}

// statementConfidence 语句置信度取全部token来源的最小值
func statementConfidence(toks []token) float64 {
	confidence := ConfidenceStatic
	for _, t := range toks {
		switch {
		case t.loop:
			if ConfidenceLoop < confidence {
				confidence = ConfidenceLoop
			}
		case t.conditional:
			if ConfidenceConditional < confidence {
				confidence = ConfidenceConditional
			}
		}
	}
	return confidence
}

func joinTokens(toks []token) string {
	parts := make([]string, 0, len(toks))
	for _, t := range toks {
		parts = append(parts, t.text)
	}
	return strings.Join(parts, " ")
}
