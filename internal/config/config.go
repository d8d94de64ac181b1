// config.go - 分析器关键词与词汇表配置
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ScanConfig 扫描配置
type ScanConfig struct {
	MaxFileSizeKB        int      `toml:"maxFileSizeKB"`
	MaxFileCount         int      `toml:"maxFileCount"`
	MaxConcurrency       int      `toml:"maxConcurrency"`
	FolderIgnorePatterns []string `toml:"folderIgnorePatterns"`
	ClassSourceExts      []string `toml:"classSourceExts"`
	TemplateExts         []string `toml:"templateExts"`
	MappingExts          []string `toml:"mappingExts"`
}

// TemplateConfig 模板标签词汇表，区分指令、脚本片段、表达式与动作标签
type TemplateConfig struct {
	DirectiveOpen   string `toml:"directiveOpen"`
	ExpressionOpen  string `toml:"expressionOpen"`
	ScriptletOpen   string `toml:"scriptletOpen"`
	ScriptletClose  string `toml:"scriptletClose"`
	ActionTagPrefix string `toml:"actionTagPrefix"`
}

// SqlConfig SQL关键词词汇表
type SqlConfig struct {
	DMLKeywords   []string `toml:"dmlKeywords"`
	StatementTags []string `toml:"statementTags"`
	DynamicTags   []string `toml:"dynamicTags"`
	LoopTags      []string `toml:"loopTags"`
}

// LayerConfig 架构分层标记规则，路径片段 -> 分层标签
type LayerConfig struct {
	PathPatterns map[string]string `toml:"pathPatterns"`
	DefaultLayer string            `toml:"defaultLayer"`
}

// AnalyzerConfig 分析器配置文件结构
type AnalyzerConfig struct {
	Scan     ScanConfig     `toml:"scan"`
	Template TemplateConfig `toml:"template"`
	Sql      SqlConfig      `toml:"sql"`
	Layer    LayerConfig    `toml:"layer"`
}

var DefaultScanConfig = ScanConfig{
	MaxFileSizeKB:  10240,  // 默认最大文件大小(KB)
	MaxFileCount:   100000, // 默认最大文件数量
	MaxConcurrency: 8,      // 默认并发解析数
	FolderIgnorePatterns: []string{
		".*",
		"logs/", "temp/", "tmp/", "node_modules/",
		"bin/", "dist/", "build/", "out/",
		"target/", "vendor/",
	},
	ClassSourceExts: []string{".java"},
	TemplateExts:    []string{".jsp", ".jspx"},
	MappingExts:     []string{".xml"},
}

var DefaultTemplateConfig = TemplateConfig{
	DirectiveOpen:   "<%@",
	ExpressionOpen:  "<%=",
	ScriptletOpen:   "<%",
	ScriptletClose:  "%>",
	ActionTagPrefix: "jsp:",
}

var DefaultSqlConfig = SqlConfig{
	DMLKeywords:   []string{"SELECT", "INSERT", "UPDATE", "DELETE", "MERGE"},
	StatementTags: []string{"select", "insert", "update", "delete", "merge", "sql"},
	DynamicTags:   []string{"if", "choose", "when", "otherwise", "where", "set", "trim", "foreach"},
	LoopTags:      []string{"foreach"},
}

var DefaultLayerConfig = LayerConfig{
	PathPatterns: map[string]string{
		"controller": "controller",
		"service":    "service",
		"dao":        "repository",
		"mapper":     "repository",
		"repository": "repository",
		"jsp":        "view",
		"webapp":     "view",
	},
	DefaultLayer: "unknown",
}

// DefaultAnalyzerConfig 默认分析器配置
func DefaultAnalyzerConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		Scan:     DefaultScanConfig,
		Template: DefaultTemplateConfig,
		Sql:      DefaultSqlConfig,
		Layer:    DefaultLayerConfig,
	}
}

// LoadAnalyzerConfig 从toml文件加载分析器配置，文件不存在时使用默认配置
func LoadAnalyzerConfig(configPath string) (*AnalyzerConfig, error) {
	cfg := DefaultAnalyzerConfig()

	if configPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read analyzer config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse analyzer config file: %w", err)
	}

	return cfg, nil
}

// LayerForPath 根据路径片段匹配架构分层标签
func (c *LayerConfig) LayerForPath(relPath string) string {
	lower := strings.ToLower(relPath)
	for pattern, layer := range c.PathPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return layer
		}
	}
	return c.DefaultLayer
}
