package model

import "time"

// FileKind 文件类型
type FileKind string

const (
	FileKindClassSource       FileKind = "class-source"
	FileKindTemplate          FileKind = "template"
	FileKindMappingDescriptor FileKind = "mapping-descriptor"
)

// ComponentKind 组件类型
type ComponentKind string

const (
	ComponentKindClass            ComponentKind = "class"
	ComponentKindMethod           ComponentKind = "method"
	ComponentKindSqlUnit          ComponentKind = "sql-unit"
	ComponentKindTemplateFragment ComponentKind = "template-fragment"
	ComponentKindTableProxy       ComponentKind = "table-proxy"
	ComponentKindColumnProxy      ComponentKind = "column-proxy"
)

// RelType 组件关系类型
type RelType string

const (
	RelTypeCalls      RelType = "calls"
	RelTypeExtends    RelType = "extends"
	RelTypeUsesTable  RelType = "uses-table"
	RelTypeUsesColumn RelType = "uses-column"
	RelTypeJoin       RelType = "join"
)

// DMLKind SQL语句DML类型
type DMLKind string

const (
	DMLKindSelect DMLKind = "SELECT"
	DMLKindInsert DMLKind = "INSERT"
	DMLKindUpdate DMLKind = "UPDATE"
	DMLKindDelete DMLKind = "DELETE"
	DMLKindMerge  DMLKind = "MERGE"
)

// 软删除与错误标记取值
const (
	FlagYes = "Y"
	FlagNo  = "N"
)

// Project 项目数据模型
type Project struct {
	ID           int64     `json:"id" db:"id"`
	ProjectName  string    `json:"projectName" db:"project_name"`
	ProjectPath  string    `json:"projectPath" db:"project_path"`
	HashValue    string    `json:"hashValue" db:"hash_value"`
	TotalFiles   int       `json:"totalFiles" db:"total_files"`
	HasError     string    `json:"hasError" db:"has_error"`
	ErrorMessage string    `json:"errorMessage" db:"error_message"`
	DelYn        string    `json:"delYn" db:"del_yn"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// File 源文件数据模型
type File struct {
	ID           int64     `json:"id" db:"id"`
	ProjectID    int64     `json:"projectId" db:"project_id"`
	FileName     string    `json:"fileName" db:"file_name"`
	FilePath     string    `json:"filePath" db:"file_path"`
	FileKind     FileKind  `json:"fileKind" db:"file_kind"`
	HashValue    string    `json:"hashValue" db:"hash_value"`
	LineCount    int       `json:"lineCount" db:"line_count"`
	HasError     string    `json:"hasError" db:"has_error"`
	ErrorMessage string    `json:"errorMessage" db:"error_message"`
	DelYn        string    `json:"delYn" db:"del_yn"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Class 类数据模型，ParentClassID为自引用外键，继承关系在二次遍历时回填
type Class struct {
	ID            int64     `json:"id" db:"id"`
	ProjectID     int64     `json:"projectId" db:"project_id"`
	FileID        int64     `json:"fileId" db:"file_id"`
	ClassName     string    `json:"className" db:"class_name"`
	ParentClassID *int64    `json:"parentClassId" db:"parent_class_id"`
	StartLine     int       `json:"startLine" db:"start_line"`
	EndLine       int       `json:"endLine" db:"end_line"`
	HashValue     string    `json:"hashValue" db:"hash_value"`
	HasError      string    `json:"hasError" db:"has_error"`
	ErrorMessage  string    `json:"errorMessage" db:"error_message"`
	DelYn         string    `json:"delYn" db:"del_yn"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// Component 组件数据模型，方法、SQL语句、模板片段以及表/列代理节点
type Component struct {
	ID            int64         `json:"id" db:"id"`
	ProjectID     int64         `json:"projectId" db:"project_id"`
	FileID        *int64        `json:"fileId" db:"file_id"`
	ComponentName string        `json:"componentName" db:"component_name"`
	ComponentKind ComponentKind `json:"componentKind" db:"component_kind"`
	ParentID      *int64        `json:"parentId" db:"parent_id"`
	Layer         string        `json:"layer" db:"layer"`
	StartLine     int           `json:"startLine" db:"start_line"`
	EndLine       int           `json:"endLine" db:"end_line"`
	HashValue     string        `json:"hashValue" db:"hash_value"`
	HasError      string        `json:"hasError" db:"has_error"`
	ErrorMessage  string        `json:"errorMessage" db:"error_message"`
	DelYn         string        `json:"delYn" db:"del_yn"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}

// Table 数据库表数据模型
type Table struct {
	ID           int64     `json:"id" db:"id"`
	ProjectID    int64     `json:"projectId" db:"project_id"`
	TableName    string    `json:"tableName" db:"table_name"`
	TableOwner   string    `json:"tableOwner" db:"table_owner"`
	ComponentID  *int64    `json:"componentId" db:"component_id"`
	TableComment string    `json:"tableComment" db:"table_comment"`
	HashValue    string    `json:"hashValue" db:"hash_value"`
	HasError     string    `json:"hasError" db:"has_error"`
	ErrorMessage string    `json:"errorMessage" db:"error_message"`
	DelYn        string    `json:"delYn" db:"del_yn"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Column 表字段数据模型
type Column struct {
	ID           int64     `json:"id" db:"id"`
	TableID      int64     `json:"tableId" db:"table_id"`
	ColumnName   string    `json:"columnName" db:"column_name"`
	DataType     string    `json:"dataType" db:"data_type"`
	DataLength   int       `json:"dataLength" db:"data_length"`
	Nullable     string    `json:"nullable" db:"nullable"`
	PkPosition   int       `json:"pkPosition" db:"pk_position"`
	DefaultValue string    `json:"defaultValue" db:"default_value"`
	ColumnOwner  string    `json:"columnOwner" db:"column_owner"`
	ComponentID  *int64    `json:"componentId" db:"component_id"`
	HashValue    string    `json:"hashValue" db:"hash_value"`
	HasError     string    `json:"hasError" db:"has_error"`
	ErrorMessage string    `json:"errorMessage" db:"error_message"`
	DelYn        string    `json:"delYn" db:"del_yn"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Relationship 组件间关系数据模型，(src, dst, rel_type)唯一，src != dst
type Relationship struct {
	ID                  int64     `json:"id" db:"id"`
	ProjectID           int64     `json:"projectId" db:"project_id"`
	SrcID               int64     `json:"srcId" db:"src_id"`
	DstID               int64     `json:"dstId" db:"dst_id"`
	RelType             RelType   `json:"relType" db:"rel_type"`
	IsConditional       string    `json:"isConditional" db:"is_conditional"`
	ConditionExpression string    `json:"conditionExpression" db:"condition_expression"`
	Confidence          float64   `json:"confidence" db:"confidence"`
	HasError            string    `json:"hasError" db:"has_error"`
	ErrorMessage        string    `json:"errorMessage" db:"error_message"`
	DelYn               string    `json:"delYn" db:"del_yn"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time `json:"updatedAt" db:"updated_at"`
}
