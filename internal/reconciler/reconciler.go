// reconciler.go - 解析结果与元数据库的增量对账
// 文件哈希做变更门控，变更文件在单个事务内软删后重建，从不物理删除
package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"metadb-builder/internal/analyzer"
	"metadb-builder/internal/config"
	"metadb-builder/internal/database"
	"metadb-builder/internal/model"
	"metadb-builder/internal/repository"
	"metadb-builder/internal/resolver"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/utils"
	"metadb-builder/pkg/logger"
)

// ChangePlan 哈希门控的变更计划
type ChangePlan struct {
	Changed   []*scanner.ScannedFile
	Unchanged []*model.File
	Deleted   []*model.File
}

// ApplyInput 对账输入：变更计划、分析事实与解析后的关系图
type ApplyInput struct {
	Project  *model.Project
	Plan     *ChangePlan
	Facts    map[string]*analyzer.FileFacts
	Failures map[string]error
	Graph    *resolver.Graph
}

// Stats 对账统计
type Stats struct {
	FilesChanged   int
	FilesUnchanged int
	FilesDeleted   int
	FilesFailed    int
	Classes        int
	Components     int
	Tables         int
	Columns        int
	Relationships  int
}

// Reconciler 图谱对账器
type Reconciler struct {
	db            database.DatabaseManager
	fileRepo      repository.FileRepository
	classRepo     repository.ClassRepository
	componentRepo repository.ComponentRepository
	tableRepo     repository.TableRepository
	relRepo       repository.RelationshipRepository
	projectRepo   repository.ProjectRepository
	catalog       *config.TableCatalog
	logger        logger.Logger
}

// NewReconciler 创建对账器，catalog可为nil
func NewReconciler(
	db database.DatabaseManager,
	projectRepo repository.ProjectRepository,
	fileRepo repository.FileRepository,
	classRepo repository.ClassRepository,
	componentRepo repository.ComponentRepository,
	tableRepo repository.TableRepository,
	relRepo repository.RelationshipRepository,
	catalog *config.TableCatalog,
	logger logger.Logger,
) *Reconciler {
	return &Reconciler{
		db:            db,
		projectRepo:   projectRepo,
		fileRepo:      fileRepo,
		classRepo:     classRepo,
		componentRepo: componentRepo,
		tableRepo:     tableRepo,
		relRepo:       relRepo,
		catalog:       catalog,
		logger:        logger,
	}
}

// PlanChanges 对比文件哈希得出变更计划。
// 带错误标记的文件即使哈希未变也重新进入变更集，给瞬态错误重试机会
func (r *Reconciler) PlanChanges(projectID int64, scanned []*scanner.ScannedFile) (*ChangePlan, error) {
	existing, err := r.fileRepo.ListFilesByProject(projectID)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*model.File, len(existing))
	for _, f := range existing {
		byPath[f.FilePath] = f
	}

	plan := &ChangePlan{}
	present := make(map[string]bool, len(scanned))
	for _, sf := range scanned {
		present[sf.RelPath] = true
		ex, ok := byPath[sf.RelPath]
		if ok && ex.DelYn == model.FlagNo && ex.HasError == model.FlagNo && ex.HashValue == sf.Hash {
			plan.Unchanged = append(plan.Unchanged, ex)
			continue
		}
		plan.Changed = append(plan.Changed, sf)
	}

	for _, ex := range existing {
		if ex.DelYn == model.FlagNo && !present[ex.FilePath] {
			plan.Deleted = append(plan.Deleted, ex)
		}
	}
	return plan, nil
}

// Apply 执行对账。文件级失败标记错误后继续，图级失败返回错误
func (r *Reconciler) Apply(ctx context.Context, in *ApplyInput) (*Stats, error) {
	stats := &Stats{FilesUnchanged: len(in.Plan.Unchanged)}

	componentIDs := make(map[resolver.ComponentKey]int64)
	classIDs := make(map[resolver.ComponentKey]int64)

	// 图中的组件按文件分组，供逐文件事务写入
	nodesByFile := make(map[string][]*resolver.ComponentNode)
	for _, node := range in.Graph.Components {
		nodesByFile[node.FilePath] = append(nodesByFile[node.FilePath], node)
	}

	for _, sf := range in.Plan.Changed {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if err := r.applyFile(in, sf, nodesByFile[sf.RelPath], componentIDs, classIDs, stats); err != nil {
			stats.FilesFailed++
			r.logger.Error("reconciler: file %s failed: %v", sf.RelPath, err)
			r.markFileError(in.Project.ID, sf, err)
			continue
		}
		// 分析失败的文件行虽已落盘，但计入失败而非变更
		if in.Failures[sf.RelPath] != nil {
			stats.FilesFailed++
		} else {
			stats.FilesChanged++
		}
	}

	for _, ex := range in.Plan.Deleted {
		if err := r.deleteFile(ex); err != nil {
			r.logger.Error("reconciler: soft delete of %s failed: %v", ex.FilePath, err)
			continue
		}
		stats.FilesDeleted++
	}

	if err := r.loadPersistedIndex(in.Project.ID, componentIDs, classIDs); err != nil {
		return stats, err
	}

	if err := r.applyGraph(ctx, in, componentIDs, classIDs, stats); err != nil {
		return stats, err
	}

	if err := r.updateProjectSummary(in.Project.ID); err != nil {
		return stats, err
	}
	return stats, nil
}

// applyFile 单文件事务：软删既有派生行，重建类与组件
func (r *Reconciler) applyFile(in *ApplyInput, sf *scanner.ScannedFile,
	nodes []*resolver.ComponentNode, componentIDs, classIDs map[resolver.ComponentKey]int64, stats *Stats) error {

	facts := in.Facts[sf.RelPath]
	failure := in.Failures[sf.RelPath]

	file := &model.File{
		ProjectID: in.Project.ID,
		FileName:  sf.Name,
		FilePath:  sf.RelPath,
		HashValue: sf.Hash,
		LineCount: sf.LineCount,
		HasError:  model.FlagNo,
		DelYn:     model.FlagNo,
	}
	if facts != nil {
		file.FileKind = facts.Kind
	}
	if failure != nil {
		file.HasError = model.FlagYes
		file.ErrorMessage = failure.Error()
	}

	tx, err := r.db.BeginTransaction()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.fileRepo.UpsertFileTx(tx, file); err != nil {
		return err
	}
	if err := r.relRepo.SoftDeleteOutboundByFileTx(tx, file.ID); err != nil {
		return err
	}
	if err := r.classRepo.SoftDeleteByFileTx(tx, file.ID); err != nil {
		return err
	}
	if err := r.componentRepo.SoftDeleteByFileTx(tx, file.ID); err != nil {
		return err
	}

	if facts != nil {
		for _, cf := range facts.Classes {
			class := &model.Class{
				ProjectID: in.Project.ID,
				FileID:    file.ID,
				ClassName: cf.Name,
				StartLine: cf.StartLine,
				EndLine:   cf.EndLine,
				HashValue: utils.SumFields(cf.Name, cf.Superclass),
				HasError:  model.FlagNo,
			}
			if err := r.classRepo.UpsertClassTx(tx, class); err != nil {
				return err
			}
			classIDs[resolver.ComponentKey{FilePath: sf.RelPath, Name: cf.Name}] = class.ID
			stats.Classes++
		}

		// 类组件先行，方法组件的parent_id在同一事务内可得
		sort.SliceStable(nodes, func(i, j int) bool {
			return kindOrder(nodes[i].Kind) < kindOrder(nodes[j].Kind)
		})
		for _, node := range nodes {
			component := &model.Component{
				ProjectID:     in.Project.ID,
				FileID:        &file.ID,
				ComponentName: node.Name,
				ComponentKind: node.Kind,
				Layer:         node.Layer,
				StartLine:     node.StartLine,
				EndLine:       node.EndLine,
				HashValue:     utils.SumFields(node.Name, string(node.Kind)),
				HasError:      model.FlagNo,
			}
			if node.ParentName != "" {
				if parentID, ok := componentIDs[resolver.ComponentKey{FilePath: sf.RelPath, Name: node.ParentName}]; ok {
					component.ParentID = &parentID
				}
			}
			if err := r.componentRepo.UpsertComponentTx(tx, component); err != nil {
				return err
			}
			componentIDs[resolver.ComponentKey{FilePath: sf.RelPath, Name: node.Name}] = component.ID
			stats.Components++
		}
	}

	return tx.Commit()
}

func kindOrder(kind model.ComponentKind) int {
	if kind == model.ComponentKindClass {
		return 0
	}
	return 1
}

// markFileError 文件级失败在独立事务中落盘错误标记
func (r *Reconciler) markFileError(projectID int64, sf *scanner.ScannedFile, cause error) {
	tx, err := r.db.BeginTransaction()
	if err != nil {
		r.logger.Error("reconciler: cannot open error-marking transaction: %v", err)
		return
	}
	defer tx.Rollback()

	file := &model.File{
		ProjectID:    projectID,
		FileName:     sf.Name,
		FilePath:     sf.RelPath,
		HashValue:    sf.Hash,
		LineCount:    sf.LineCount,
		HasError:     model.FlagYes,
		ErrorMessage: cause.Error(),
		DelYn:        model.FlagNo,
	}
	if err := r.fileRepo.UpsertFileTx(tx, file); err != nil {
		r.logger.Error("reconciler: cannot mark file error for %s: %v", sf.RelPath, err)
		return
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("reconciler: cannot commit file error for %s: %v", sf.RelPath, err)
	}
}

// deleteFile 磁盘上消失的文件连同其派生行一并软删
func (r *Reconciler) deleteFile(ex *model.File) error {
	tx, err := r.db.BeginTransaction()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.relRepo.SoftDeleteOutboundByFileTx(tx, ex.ID); err != nil {
		return err
	}
	if err := r.classRepo.SoftDeleteByFileTx(tx, ex.ID); err != nil {
		return err
	}
	if err := r.componentRepo.SoftDeleteByFileTx(tx, ex.ID); err != nil {
		return err
	}
	if err := r.fileRepo.SoftDeleteFileTx(tx, ex.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// loadPersistedIndex 把未变更文件的既有组件与类并入ID索引，
// 本轮新写入的条目优先
func (r *Reconciler) loadPersistedIndex(projectID int64, componentIDs, classIDs map[resolver.ComponentKey]int64) error {
	files, err := r.fileRepo.ListFilesByProject(projectID)
	if err != nil {
		return err
	}
	pathByID := make(map[int64]string, len(files))
	for _, f := range files {
		if f.DelYn == model.FlagNo {
			pathByID[f.ID] = f.FilePath
		}
	}

	components, err := r.componentRepo.ListComponentsByProject(projectID)
	if err != nil {
		return err
	}
	for _, c := range components {
		if c.FileID == nil {
			continue
		}
		path, ok := pathByID[*c.FileID]
		if !ok {
			continue
		}
		key := resolver.ComponentKey{FilePath: path, Name: c.ComponentName}
		if _, exists := componentIDs[key]; !exists {
			componentIDs[key] = c.ID
		}
	}

	classes, err := r.classRepo.ListClassesByProject(projectID)
	if err != nil {
		return err
	}
	for _, c := range classes {
		path, ok := pathByID[c.FileID]
		if !ok {
			continue
		}
		key := resolver.ComponentKey{FilePath: path, Name: c.ClassName}
		if _, exists := classIDs[key]; !exists {
			classIDs[key] = c.ID
		}
	}
	return nil
}

// applyGraph 项目级事务：继承回填、表/列及其代理组件、关系边
func (r *Reconciler) applyGraph(ctx context.Context, in *ApplyInput,
	componentIDs, classIDs map[resolver.ComponentKey]int64, stats *Stats) error {

	tx, err := r.db.BeginTransaction()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 继承关系二次遍历回填
	for child, parent := range in.Graph.ClassParents {
		childID, okChild := classIDs[child]
		parentID, okParent := classIDs[parent]
		if !okChild || !okParent {
			r.logger.Debug("reconciler: class parent %s -> %s unresolved, skipped", child.Name, parent.Name)
			continue
		}
		if err := r.classRepo.UpdateClassParentTx(tx, childID, &parentID); err != nil {
			return err
		}
	}

	tableIDs := make(map[string]int64)
	tableProxyIDs := make(map[string]int64)
	columnProxyIDs := make(map[string]int64)

	for _, use := range in.Graph.TableUses {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.applyTableUse(tx, in.Project.ID, use, componentIDs, tableIDs, tableProxyIDs, columnProxyIDs, stats); err != nil {
			return err
		}
	}

	for _, join := range in.Graph.Joins {
		leftProxy, okLeft := tableProxyIDs[tableKey(join.LeftOwner, join.LeftName)]
		rightProxy, okRight := tableProxyIDs[tableKey(join.RightOwner, join.RightName)]
		if !okLeft || !okRight || leftProxy == rightProxy {
			continue
		}
		if err := r.upsertEdge(tx, in.Project.ID, leftProxy, rightProxy, model.RelTypeJoin,
			join.IsConditional, join.Condition, join.Confidence, stats); err != nil {
			return err
		}
	}

	for _, edge := range in.Graph.Edges {
		srcID, okSrc := componentIDs[edge.Src]
		dstID, okDst := componentIDs[edge.Dst]
		if !okSrc || !okDst {
			r.logger.Debug("reconciler: edge %s -> %s unresolved, skipped", edge.Src.Name, edge.Dst.Name)
			continue
		}
		if err := r.upsertEdge(tx, in.Project.ID, srcID, dstID, edge.Type,
			edge.IsConditional, edge.Condition, edge.Confidence, stats); err != nil {
			return err
		}
	}

	if err := r.softDeleteAbsentTables(tx, in.Project.ID, tableIDs); err != nil {
		return err
	}

	return tx.Commit()
}

// applyTableUse 写入表、列、代理组件与uses-table/uses-column边
func (r *Reconciler) applyTableUse(tx *sql.Tx, projectID int64, use *resolver.TableUse,
	componentIDs map[resolver.ComponentKey]int64,
	tableIDs, tableProxyIDs, columnProxyIDs map[string]int64, stats *Stats) error {

	key := tableKey(use.TableOwner, use.TableName)

	tableID, seen := tableIDs[key]
	proxyID := tableProxyIDs[key]
	if !seen {
		table := &model.Table{
			ProjectID:  projectID,
			TableName:  use.TableName,
			TableOwner: use.TableOwner,
			HashValue:  utils.SumFields(use.TableOwner, use.TableName),
			HasError:   model.FlagNo,
		}
		var catalogColumns []config.CatalogColumn
		if r.catalog != nil {
			if ct, ok := r.catalog.Lookup(use.TableName); ok {
				table.TableComment = ct.Comment
				if table.TableOwner == "" {
					table.TableOwner = ct.Owner
				}
				catalogColumns = ct.Columns
			}
		}
		if err := r.tableRepo.UpsertTableTx(tx, table); err != nil {
			return err
		}
		tableID = table.ID
		tableIDs[key] = tableID
		stats.Tables++

		proxy := &model.Component{
			ProjectID:     projectID,
			ComponentName: proxyName(use.TableOwner, use.TableName),
			ComponentKind: model.ComponentKindTableProxy,
			Layer:         "database",
			HashValue:     utils.SumFields(use.TableOwner, use.TableName, string(model.ComponentKindTableProxy)),
			HasError:      model.FlagNo,
		}
		if err := r.componentRepo.UpsertComponentTx(tx, proxy); err != nil {
			return err
		}
		proxyID = proxy.ID
		tableProxyIDs[key] = proxyID
		if err := r.tableRepo.LinkTableComponentTx(tx, tableID, proxyID); err != nil {
			return err
		}

		// 表目录先行补全已知列
		for _, cc := range catalogColumns {
			if err := r.upsertColumn(tx, projectID, tableID, proxyID, use, cc.Name, &cc, columnProxyIDs, stats); err != nil {
				return err
			}
		}
	}

	srcID, ok := componentIDs[use.Src]
	if !ok {
		r.logger.Debug("reconciler: table use source %s unresolved, skipped", use.Src.Name)
		return nil
	}

	if err := r.upsertEdge(tx, projectID, srcID, proxyID, model.RelTypeUsesTable,
		use.IsConditional, use.Condition, use.Confidence, stats); err != nil {
		return err
	}

	for _, col := range use.Columns {
		var catalogColumn *config.CatalogColumn
		if r.catalog != nil {
			if ct, ok := r.catalog.Lookup(use.TableName); ok {
				for i := range ct.Columns {
					if strings.EqualFold(ct.Columns[i].Name, col) {
						catalogColumn = &ct.Columns[i]
						break
					}
				}
			}
		}
		columnProxyID, err := r.ensureColumn(tx, projectID, tableID, proxyID, use, col, catalogColumn, columnProxyIDs, stats)
		if err != nil {
			return err
		}
		if err := r.upsertEdge(tx, projectID, srcID, columnProxyID, model.RelTypeUsesColumn,
			use.IsConditional, use.Condition, use.Confidence, stats); err != nil {
			return err
		}
	}
	return nil
}

// ensureColumn 列及其代理组件仅建一次，返回代理组件ID
func (r *Reconciler) ensureColumn(tx *sql.Tx, projectID, tableID, tableProxyID int64, use *resolver.TableUse,
	columnName string, catalogColumn *config.CatalogColumn, columnProxyIDs map[string]int64, stats *Stats) (int64, error) {

	key := tableKey(use.TableOwner, use.TableName) + "." + strings.ToUpper(columnName)
	if id, ok := columnProxyIDs[key]; ok {
		return id, nil
	}
	if err := r.upsertColumn(tx, projectID, tableID, tableProxyID, use, columnName, catalogColumn, columnProxyIDs, stats); err != nil {
		return 0, err
	}
	return columnProxyIDs[key], nil
}

func (r *Reconciler) upsertColumn(tx *sql.Tx, projectID, tableID, tableProxyID int64, use *resolver.TableUse,
	columnName string, catalogColumn *config.CatalogColumn, columnProxyIDs map[string]int64, stats *Stats) error {

	key := tableKey(use.TableOwner, use.TableName) + "." + strings.ToUpper(columnName)
	if _, ok := columnProxyIDs[key]; ok {
		return nil
	}

	proxy := &model.Component{
		ProjectID:     projectID,
		ComponentName: proxyName(use.TableOwner, use.TableName) + "." + columnName,
		ComponentKind: model.ComponentKindColumnProxy,
		ParentID:      &tableProxyID,
		Layer:         "database",
		HashValue:     utils.SumFields(use.TableOwner, use.TableName, columnName, string(model.ComponentKindColumnProxy)),
		HasError:      model.FlagNo,
	}
	if err := r.componentRepo.UpsertComponentTx(tx, proxy); err != nil {
		return err
	}

	column := &model.Column{
		TableID:     tableID,
		ColumnName:  columnName,
		ColumnOwner: use.TableOwner,
		ComponentID: &proxy.ID,
		HashValue:   utils.SumFields(use.TableOwner, use.TableName, columnName),
		HasError:    model.FlagNo,
		Nullable:    model.FlagYes,
	}
	if catalogColumn != nil {
		column.DataType = catalogColumn.DataType
		column.DataLength = catalogColumn.DataLength
		column.Nullable = catalogColumn.Nullable
		column.PkPosition = catalogColumn.PkPosition
		column.DefaultValue = catalogColumn.DefaultValue
	}
	if err := r.tableRepo.UpsertColumnTx(tx, column); err != nil {
		return err
	}
	columnProxyIDs[key] = proxy.ID
	stats.Columns++
	return nil
}

// upsertEdge 写入关系边。同端点同类型的重复发现在行内更新条件与置信度
func (r *Reconciler) upsertEdge(tx *sql.Tx, projectID, srcID, dstID int64, relType model.RelType,
	conditional bool, condition string, confidence float64, stats *Stats) error {

	if srcID == dstID {
		return nil
	}
	rel := &model.Relationship{
		ProjectID:           projectID,
		SrcID:               srcID,
		DstID:               dstID,
		RelType:             relType,
		IsConditional:       model.FlagNo,
		ConditionExpression: condition,
		Confidence:          confidence,
		HasError:            model.FlagNo,
	}
	if conditional {
		rel.IsConditional = model.FlagYes
	}
	// 单条边的约束冲突不中断整体对账，错误落在源组件行上
	if err := r.relRepo.UpsertRelationshipTx(tx, rel); err != nil {
		r.logger.Warn("reconciler: relationship %d -%s-> %d rejected: %v", srcID, relType, dstID, err)
		if markErr := r.componentRepo.MarkComponentErrorTx(tx, srcID, err.Error()); markErr != nil {
			return markErr
		}
		return nil
	}
	stats.Relationships++
	return nil
}

// softDeleteAbsentTables 存活的表 = 本轮重建的 ∪ 仍有存活uses-table入边的
func (r *Reconciler) softDeleteAbsentTables(tx *sql.Tx, projectID int64, tableIDs map[string]int64) error {
	present := make([]int64, 0, len(tableIDs))
	for _, id := range tableIDs {
		present = append(present, id)
	}

	rows, err := tx.Query(`
		SELECT DISTINCT t.id
		FROM tables t
		JOIN relationships rel ON rel.dst_id = t.component_id
		WHERE t.project_id = ? AND rel.rel_type = ? AND rel.del_yn = 'N'
	`, projectID, model.RelTypeUsesTable)
	if err != nil {
		return fmt.Errorf("[DB] failed to query live table references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("[DB] failed to scan live table id: %w", err)
		}
		present = append(present, id)
	}

	return r.tableRepo.SoftDeleteAbsentTablesTx(tx, projectID, present)
}

// updateProjectSummary 项目哈希取全部存活文件哈希的有序摘要
func (r *Reconciler) updateProjectSummary(projectID int64) error {
	files, err := r.fileRepo.ListFilesByProject(projectID)
	if err != nil {
		return err
	}

	var hashes []string
	for _, f := range files {
		if f.DelYn == model.FlagNo {
			hashes = append(hashes, f.HashValue)
		}
	}
	sort.Strings(hashes)

	return r.projectRepo.UpdateProjectSummary(projectID, utils.SumFields(hashes...), len(hashes))
}

func tableKey(owner, name string) string {
	return strings.ToUpper(owner) + "." + strings.ToUpper(name)
}

func proxyName(owner, name string) string {
	if owner != "" {
		return owner + "." + name
	}
	return name
}
