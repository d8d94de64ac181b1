package repository

import (
	"database/sql"
	"fmt"
	"time"

	"metadb-builder/internal/database"
	"metadb-builder/internal/model"
	"metadb-builder/pkg/logger"
)

// ClassRepository 类数据访问层
type ClassRepository interface {
	// UpsertClassTx 插入或更新类，冲突时按(name, file, project)更新
	UpsertClassTx(tx *sql.Tx, class *model.Class) error
	// UpdateClassParentTx 回填父类自引用外键（二次遍历）
	UpdateClassParentTx(tx *sql.Tx, classID int64, parentClassID *int64) error
	// SoftDeleteByFileTx 软删除文件下的所有类
	SoftDeleteByFileTx(tx *sql.Tx, fileID int64) error
	// ListClassesByProject 列出项目下所有未删除的类
	ListClassesByProject(projectID int64) ([]*model.Class, error)
}

type classRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
}

// NewClassRepository 创建类Repository
func NewClassRepository(db database.DatabaseManager, logger logger.Logger) ClassRepository {
	return &classRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertClassTx 插入或更新类，冲突时按(name, file, project)更新
func (r *classRepository) UpsertClassTx(tx *sql.Tx, class *model.Class) error {
	query := `
		INSERT INTO classes (project_id, file_id, class_name, parent_class_id, start_line, end_line,
			hash_value, has_error, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(class_name, file_id, project_id) DO UPDATE SET
			parent_class_id = excluded.parent_class_id,
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
		class.ProjectID,
		class.FileID,
		class.ClassName,
		class.ParentClassID,
		class.StartLine,
		class.EndLine,
		class.HashValue,
		class.HasError,
		class.ErrorMessage,
	)

	if err := row.Scan(&class.ID); err != nil {
		return fmt.Errorf("[DB] failed to upsert class: %w", err)
	}

	return nil
}

// UpdateClassParentTx 回填父类自引用外键（二次遍历）
func (r *classRepository) UpdateClassParentTx(tx *sql.Tx, classID int64, parentClassID *int64) error {
	query := `UPDATE classes SET parent_class_id = ?, updated_at = ? WHERE id = ?`

	if _, err := tx.Exec(query, parentClassID, time.Now(), classID); err != nil {
		return fmt.Errorf("[DB] failed to update class parent: %w", err)
	}

	return nil
}

// SoftDeleteByFileTx 软删除文件下的所有类
func (r *classRepository) SoftDeleteByFileTx(tx *sql.Tx, fileID int64) error {
	query := `UPDATE classes SET del_yn = 'Y', updated_at = ? WHERE file_id = ?`

	if _, err := tx.Exec(query, time.Now(), fileID); err != nil {
		return fmt.Errorf("[DB] failed to soft delete classes by file: %w", err)
	}

	return nil
}

// ListClassesByProject 列出项目下所有未删除的类
func (r *classRepository) ListClassesByProject(projectID int64) ([]*model.Class, error) {
	query := `
		SELECT id, project_id, file_id, class_name, parent_class_id, start_line, end_line,
			hash_value, has_error, error_message, del_yn, created_at, updated_at
		FROM classes
		WHERE project_id = ? AND del_yn = 'N'
		ORDER BY file_id, start_line
	`

	rows, err := r.db.GetDB().Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to list classes by project: %w", err)
	}
	defer rows.Close()

	var classes []*model.Class
	for rows.Next() {
		var c model.Class
		err := rows.Scan(
			&c.ID,
			&c.ProjectID,
			&c.FileID,
			&c.ClassName,
			&c.ParentClassID,
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
			return nil, fmt.Errorf("[DB] failed to scan classes table row: %w", err)
		}
		classes = append(classes, &c)
	}

	return classes, nil
}
