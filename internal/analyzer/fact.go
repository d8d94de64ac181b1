// fact.go - 语言分析器抽取结果的中间表示
package analyzer

import (
	"metadb-builder/internal/model"
	"metadb-builder/internal/sqltext"
)

// FileFacts 单个文件抽取出的全部事实，与持久层ID无关，
// 由关系解析与对账阶段映射到数据库行
type FileFacts struct {
	FileName string
	FilePath string
	FileHash string
	Kind     model.FileKind

	Classes   []*ClassFact
	Fragments []*FragmentFact
	SqlUnits  []*SqlUnitFact
}

// ClassFact 类/接口/枚举抽取结果
type ClassFact struct {
	Name       string
	Superclass string
	StartLine  int
	EndLine    int
	Methods    []*MethodFact
}

// MethodFact 方法抽取结果
type MethodFact struct {
	Name      string
	StartLine int
	EndLine   int
	Calls     []*CallFact
	SqlFacts  []*SqlFact
}

// CallFact 方法调用事实。Receiver为调用点的接收者文本（类名、变量名或空），
// 名字空间的解析推迟到关系解析阶段
type CallFact struct {
	Receiver      string
	MethodName    string
	IsConditional bool
	Condition     string
}

// SqlFact 从代码中重建出的SQL语句事实
type SqlFact struct {
	Statement *sqltext.Statement
	StartLine int
}

// FragmentFact 模板文件中的可执行片段
type FragmentFact struct {
	Name      string
	StartLine int
	EndLine   int
	Calls     []*CallFact
	SqlFacts  []*SqlFact
	UsedTypes []string
}

// SqlUnitFact 映射描述文件中的具名SQL语句块
type SqlUnitFact struct {
	ID        string
	Namespace string
	StartLine int
	Statement *sqltext.Statement
}
