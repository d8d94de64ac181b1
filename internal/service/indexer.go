// indexer.go - 项目索引编排：扫描 -> 并发分析 -> 关系解析 -> 增量对账
package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"metadb-builder/internal/analyzer"
	"metadb-builder/internal/config"
	"metadb-builder/internal/errs"
	"metadb-builder/internal/reconciler"
	"metadb-builder/internal/repository"
	"metadb-builder/internal/resolver"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/utils"
	"metadb-builder/pkg/logger"
	"metadb-builder/pkg/pool"
)

// Indexer 项目索引服务
type Indexer interface {
	// IndexProject 对项目做一轮全量扫描与增量对账
	IndexProject(ctx context.Context, projectPath string) (*reconciler.Stats, error)
}

type indexer struct {
	analyzerConfig *config.AnalyzerConfig
	fileScanner    *scanner.FileScanner
	dispatcher     *analyzer.Dispatcher
	relResolver    *resolver.RelationshipResolver
	rec            *reconciler.Reconciler
	projectRepo    repository.ProjectRepository
	fileRepo       repository.FileRepository
	componentRepo  repository.ComponentRepository
	logger         logger.Logger
}

// NewIndexer 创建索引服务
func NewIndexer(
	analyzerConfig *config.AnalyzerConfig,
	fileScanner *scanner.FileScanner,
	dispatcher *analyzer.Dispatcher,
	relResolver *resolver.RelationshipResolver,
	rec *reconciler.Reconciler,
	projectRepo repository.ProjectRepository,
	fileRepo repository.FileRepository,
	componentRepo repository.ComponentRepository,
	logger logger.Logger,
) Indexer {
	return &indexer{
		analyzerConfig: analyzerConfig,
		fileScanner:    fileScanner,
		dispatcher:     dispatcher,
		relResolver:    relResolver,
		rec:            rec,
		projectRepo:    projectRepo,
		fileRepo:       fileRepo,
		componentRepo:  componentRepo,
		logger:         logger,
	}
}

// IndexProject 对项目做一轮全量扫描与增量对账
func (s *indexer) IndexProject(ctx context.Context, projectPath string) (*reconciler.Stats, error) {
	runID, err := utils.GenerateUUID()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	s.logger.Info("indexer: run %s started for %s", runID, projectPath)

	scanned, err := s.fileScanner.ScanProject(projectPath)
	if err != nil {
		return nil, err
	}
	s.logger.Info("indexer: run %s scanned %d supported files", runID, len(scanned))

	project, err := s.projectRepo.GetOrCreateProject(filepath.Base(projectPath), projectPath)
	if err != nil {
		return nil, err
	}

	plan, err := s.rec.PlanChanges(project.ID, scanned)
	if err != nil {
		return nil, err
	}
	s.logger.Info("indexer: run %s plan: %d changed, %d unchanged, %d deleted",
		runID, len(plan.Changed), len(plan.Unchanged), len(plan.Deleted))

	facts, failures, skipped := s.analyzeChanged(ctx, plan.Changed)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 无分析器可处理的文件不入库
	if len(skipped) > 0 {
		kept := plan.Changed[:0]
		for _, sf := range plan.Changed {
			if !skipped[sf.RelPath] {
				kept = append(kept, sf)
			}
		}
		plan.Changed = kept
	}

	known, err := s.loadKnownComponents(project.ID)
	if err != nil {
		return nil, err
	}

	factList := make([]*analyzer.FileFacts, 0, len(facts))
	for _, sf := range plan.Changed {
		if f, ok := facts[sf.RelPath]; ok {
			factList = append(factList, f)
		}
	}
	graph := s.relResolver.Resolve(factList, known)

	stats, err := s.rec.Apply(ctx, &reconciler.ApplyInput{
		Project:  project,
		Plan:     plan,
		Facts:    facts,
		Failures: failures,
		Graph:    graph,
	})
	if err != nil {
		if markErr := s.projectRepo.MarkProjectError(project.ID, err.Error()); markErr != nil {
			s.logger.Error("indexer: run %s cannot mark project error: %v", runID, markErr)
		}
		return stats, err
	}

	s.logger.Info("indexer: run %s finished in %s: %d changed, %d unchanged, %d deleted, %d failed, "+
		"%d classes, %d components, %d tables, %d columns, %d relationships",
		runID, time.Since(start), stats.FilesChanged, stats.FilesUnchanged, stats.FilesDeleted, stats.FilesFailed,
		stats.Classes, stats.Components, stats.Tables, stats.Columns, stats.Relationships)
	return stats, nil
}

// analyzeChanged 并发分析变更文件，解析屏障保证全部事实就绪后才进入关系解析
func (s *indexer) analyzeChanged(ctx context.Context, changed []*scanner.ScannedFile) (
	map[string]*analyzer.FileFacts, map[string]error, map[string]bool) {

	facts := make(map[string]*analyzer.FileFacts, len(changed))
	failures := make(map[string]error)
	skipped := make(map[string]bool)
	var mu sync.Mutex

	taskPool := pool.NewTaskPool(s.analyzerConfig.Scan.MaxConcurrency, s.logger)
	defer taskPool.Close()

	for _, sf := range changed {
		sf := sf
		err := taskPool.Submit(ctx, func(taskCtx context.Context, taskID uint64) {
			f, err := s.dispatcher.Analyze(taskCtx, sf)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errs.ErrUnsupportedFileKind):
				skipped[sf.RelPath] = true
			case err != nil:
				failures[sf.RelPath] = err
			default:
				facts[sf.RelPath] = f
			}
		})
		if err != nil {
			mu.Lock()
			failures[sf.RelPath] = err
			mu.Unlock()
		}
	}
	taskPool.Wait()

	return facts, failures, skipped
}

// loadKnownComponents 把既有组件视图交给关系解析器做跨文件目标匹配
func (s *indexer) loadKnownComponents(projectID int64) ([]resolver.KnownComponent, error) {
	files, err := s.fileRepo.ListFilesByProject(projectID)
	if err != nil {
		return nil, err
	}
	pathByID := make(map[int64]string, len(files))
	for _, f := range files {
		pathByID[f.ID] = f.FilePath
	}

	components, err := s.componentRepo.ListComponentsByProject(projectID)
	if err != nil {
		return nil, err
	}

	known := make([]resolver.KnownComponent, 0, len(components))
	for _, c := range components {
		if c.FileID == nil {
			continue
		}
		path, ok := pathByID[*c.FileID]
		if !ok {
			continue
		}
		known = append(known, resolver.KnownComponent{
			FilePath: path,
			Name:     c.ComponentName,
			Kind:     c.ComponentKind,
		})
	}
	return known, nil
}
