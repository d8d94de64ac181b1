// catalog.go - 数据库表目录加载，为表提供owner/注释以及列类型信息
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// CatalogColumn 目录中的列定义
type CatalogColumn struct {
	Name         string
	DataType     string
	DataLength   int
	Nullable     string
	PkPosition   int
	DefaultValue string
}

// CatalogTable 目录中的表定义
type CatalogTable struct {
	Name    string
	Owner   string
	Comment string
	Columns []CatalogColumn
}

// TableCatalog 表目录，按表名(大写)索引
type TableCatalog struct {
	tables map[string]*CatalogTable
}

// NewTableCatalog 创建空表目录
func NewTableCatalog() *TableCatalog {
	return &TableCatalog{tables: make(map[string]*CatalogTable)}
}

// LoadTableCatalog 从json文件加载表目录，文件不存在时返回空目录
func LoadTableCatalog(catalogPath string) (*TableCatalog, error) {
	catalog := NewTableCatalog()

	if catalogPath == "" {
		return catalog, nil
	}

	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		return catalog, nil
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read table catalog file: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid table catalog json: %s", catalogPath)
	}

	result := gjson.ParseBytes(data)
	result.Get("tables").ForEach(func(_, tbl gjson.Result) bool {
		table := &CatalogTable{
			Name:    tbl.Get("name").String(),
			Owner:   tbl.Get("owner").String(),
			Comment: tbl.Get("comment").String(),
		}
		if table.Name == "" {
			return true
		}
		tbl.Get("columns").ForEach(func(_, col gjson.Result) bool {
			table.Columns = append(table.Columns, CatalogColumn{
				Name:         col.Get("name").String(),
				DataType:     col.Get("dataType").String(),
				DataLength:   int(col.Get("dataLength").Int()),
				Nullable:     col.Get("nullable").String(),
				PkPosition:   int(col.Get("pkPosition").Int()),
				DefaultValue: col.Get("defaultValue").String(),
			})
			return true
		})
		catalog.tables[strings.ToUpper(table.Name)] = table
		return true
	})

	return catalog, nil
}

// Lookup 按表名查找目录条目
func (c *TableCatalog) Lookup(tableName string) (*CatalogTable, bool) {
	table, ok := c.tables[strings.ToUpper(tableName)]
	return table, ok
}

// Size 目录中的表数量
func (c *TableCatalog) Size() int {
	return len(c.tables)
}
