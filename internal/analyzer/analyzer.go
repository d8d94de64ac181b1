// analyzer.go - 语言分析器接口与分发
package analyzer

import (
	"context"

	"metadb-builder/internal/config"
	"metadb-builder/internal/errs"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/sqltext"
	"metadb-builder/pkg/logger"
)

// Analyzer 语言分析器，按文件类型抽取事实
type Analyzer interface {
	// CanHandle 判断是否支持该文件
	CanHandle(file *scanner.ScannedFile) bool
	// Extract 抽取文件事实，解析失败返回错误，由调用方记录到文件行
	Extract(ctx context.Context, file *scanner.ScannedFile) (*FileFacts, error)
}

// Dispatcher 按注册顺序分发文件到首个可处理的分析器
type Dispatcher struct {
	analyzers []Analyzer
	logger    logger.Logger
}

// NewDispatcher 创建带有全部内置分析器的分发器
func NewDispatcher(analyzerConfig *config.AnalyzerConfig, logger logger.Logger) *Dispatcher {
	sqlResolver := sqltext.NewResolver(&analyzerConfig.Sql, logger)
	return &Dispatcher{
		analyzers: []Analyzer{
			NewJavaAnalyzer(analyzerConfig, sqlResolver, logger),
			NewTemplateAnalyzer(analyzerConfig, sqlResolver, logger),
			NewMappingAnalyzer(analyzerConfig, sqlResolver, logger),
		},
		logger: logger,
	}
}

// Analyze 分发文件，无分析器可处理时返回ErrUnsupportedFileKind
func (d *Dispatcher) Analyze(ctx context.Context, file *scanner.ScannedFile) (*FileFacts, error) {
	for _, a := range d.analyzers {
		if a.CanHandle(file) {
			return a.Extract(ctx, file)
		}
	}
	return nil, errs.ErrUnsupportedFileKind
}
