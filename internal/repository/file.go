package repository

import (
	"database/sql"
	"fmt"
	"time"

	"metadb-builder/internal/database"
	"metadb-builder/internal/model"
	"metadb-builder/pkg/logger"
)

// FileRepository 文件数据访问层
type FileRepository interface {
	// UpsertFileTx 插入或更新文件，冲突时按(name, path, project)更新
	UpsertFileTx(tx *sql.Tx, file *model.File) error
	// ListFilesByProject 列出项目下所有文件（含软删除行，供增量对比）
	ListFilesByProject(projectID int64) ([]*model.File, error)
	// SoftDeleteFileTx 软删除文件
	SoftDeleteFileTx(tx *sql.Tx, fileID int64) error
}

type fileRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
}

// NewFileRepository 创建文件Repository
func NewFileRepository(db database.DatabaseManager, logger logger.Logger) FileRepository {
	return &fileRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertFileTx 插入或更新文件，冲突时按(name, path, project)更新
func (r *fileRepository) UpsertFileTx(tx *sql.Tx, file *model.File) error {
	query := `
		INSERT INTO files (project_id, file_name, file_path, file_kind, hash_value, line_count, has_error, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_name, file_path, project_id) DO UPDATE SET
			file_kind = excluded.file_kind,
			hash_value = excluded.hash_value,
			line_count = excluded.line_count,
			has_error = excluded.has_error,
			error_message = excluded.error_message,
			del_yn = 'N',
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	row := tx.QueryRow(query,
		file.ProjectID,
		file.FileName,
		file.FilePath,
		file.FileKind,
		file.HashValue,
		file.LineCount,
		file.HasError,
		file.ErrorMessage,
	)

	if err := row.Scan(&file.ID); err != nil {
		return fmt.Errorf("[DB] failed to upsert file: %w", err)
	}

	return nil
}

// ListFilesByProject 列出项目下所有文件（含软删除行，供增量对比）
func (r *fileRepository) ListFilesByProject(projectID int64) ([]*model.File, error) {
	query := `
		SELECT id, project_id, file_name, file_path, file_kind, hash_value, line_count,
			has_error, error_message, del_yn, created_at, updated_at
		FROM files
		WHERE project_id = ?
		ORDER BY file_path
	`

	rows, err := r.db.GetDB().Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to list files by project: %w", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		var f model.File
		err := rows.Scan(
			&f.ID,
			&f.ProjectID,
			&f.FileName,
			&f.FilePath,
			&f.FileKind,
			&f.HashValue,
			&f.LineCount,
			&f.HasError,
			&f.ErrorMessage,
			&f.DelYn,
			&f.CreatedAt,
			&f.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("[DB] failed to scan files table row: %w", err)
		}
		files = append(files, &f)
	}

	return files, nil
}

// SoftDeleteFileTx 软删除文件
func (r *fileRepository) SoftDeleteFileTx(tx *sql.Tx, fileID int64) error {
	query := `UPDATE files SET del_yn = 'Y', updated_at = ? WHERE id = ?`

	if _, err := tx.Exec(query, time.Now(), fileID); err != nil {
		return fmt.Errorf("[DB] failed to soft delete file: %w", err)
	}

	return nil
}
