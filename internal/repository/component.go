package repository

import (
	"database/sql"
	"fmt"
	"time"

	"metadb-builder/internal/database"
	"metadb-builder/internal/model"
	"metadb-builder/pkg/logger"
)

// ComponentRepository 组件数据访问层
type ComponentRepository interface {
	// UpsertComponentTx 插入或更新组件，冲突时按(name, file, project)更新
	UpsertComponentTx(tx *sql.Tx, component *model.Component) error
	// SoftDeleteByFileTx 软删除文件下的所有组件
	SoftDeleteByFileTx(tx *sql.Tx, fileID int64) error
	// MarkComponentErrorTx 记录组件级错误
	MarkComponentErrorTx(tx *sql.Tx, componentID int64, message string) error
	// ListComponentsByProject 列出项目下所有未删除组件
	ListComponentsByProject(projectID int64) ([]*model.Component, error)
}

type componentRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
}

// NewComponentRepository 创建组件Repository
func NewComponentRepository(db database.DatabaseManager, logger logger.Logger) ComponentRepository {
	return &componentRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertComponentTx 插入或更新组件，冲突时按(name, file, project)更新
func (r *componentRepository) UpsertComponentTx(tx *sql.Tx, component *model.Component) error {
	query := `
		INSERT INTO components (project_id, file_id, component_name, component_kind, parent_id,
			layer, start_line, end_line, hash_value, has_error, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(component_name, IFNULL(file_id, 0), project_id) DO UPDATE SET
			component_kind = excluded.component_kind,
			parent_id = excluded.parent_id,
			layer = excluded.layer,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			hash_value = excluded.hash_value,
			has_error = excluded.has_error,
			error_message = excluded.error_message,
			del_yn = 'N',
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	row := tx.QueryRow(query,
		component.ProjectID,
		component.FileID,
		component.ComponentName,
		component.ComponentKind,
		component.ParentID,
		component.Layer,
		component.StartLine,
		component.EndLine,
		component.HashValue,
		component.HasError,
		component.ErrorMessage,
	)

	if err := row.Scan(&component.ID); err != nil {
		return fmt.Errorf("[DB] failed to upsert component: %w", err)
	}

	return nil
}

// SoftDeleteByFileTx 软删除文件下的所有组件
func (r *componentRepository) SoftDeleteByFileTx(tx *sql.Tx, fileID int64) error {
	query := `UPDATE components SET del_yn = 'Y', updated_at = ? WHERE file_id = ?`

	if _, err := tx.Exec(query, time.Now(), fileID); err != nil {
		return fmt.Errorf("[DB] failed to soft delete components by file: %w", err)
	}

	return nil
}

// MarkComponentErrorTx 记录组件级错误
func (r *componentRepository) MarkComponentErrorTx(tx *sql.Tx, componentID int64, message string) error {
	query := `
		UPDATE components
		SET has_error = 'Y', error_message = ?, updated_at = ?
		WHERE id = ?
	`

	if _, err := tx.Exec(query, message, time.Now(), componentID); err != nil {
		return fmt.Errorf("[DB] failed to mark component error: %w", err)
	}

	return nil
}

// ListComponentsByProject 列出项目下所有未删除组件
func (r *componentRepository) ListComponentsByProject(projectID int64) ([]*model.Component, error) {
	query := `
		SELECT id, project_id, file_id, component_name, component_kind, parent_id,
			layer, start_line, end_line, hash_value, has_error, error_message,
			del_yn, created_at, updated_at
		FROM components
		WHERE project_id = ? AND del_yn = 'N'
		ORDER BY file_id, start_line
	`

	return r.queryComponents(query, projectID)
}

func (r *componentRepository) queryComponents(query string, args ...interface{}) ([]*model.Component, error) {
	rows, err := r.db.GetDB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to query components: %w", err)
	}
	defer rows.Close()

	var components []*model.Component
	for rows.Next() {
		var c model.Component
		err := rows.Scan(
			&c.ID,
			&c.ProjectID,
			&c.FileID,
			&c.ComponentName,
			&c.ComponentKind,
			&c.ParentID,
			&c.Layer,
			&c.StartLine,
			&c.EndLine,
			&c.HashValue,
			&c.HasError,
			&c.ErrorMessage,
			&c.DelYn,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("[DB] failed to scan components table row: %w", err)
		}
		components = append(components, &c)
	}

	return components, nil
}
