package repository

import (
	"database/sql"
	"fmt"
	"time"

	"metadb-builder/internal/database"
	"metadb-builder/internal/errs"
	"metadb-builder/internal/model"
	"metadb-builder/pkg/logger"
)

// ProjectRepository 项目数据访问层
type ProjectRepository interface {
	// GetOrCreateProject 按(名称,路径)获取项目，不存在时创建
	GetOrCreateProject(name, path string) (*model.Project, error)
	// GetProjectByPath 根据路径获取项目
	GetProjectByPath(path string) (*model.Project, error)
	// UpdateProjectSummary 更新项目树哈希与文件总数
	UpdateProjectSummary(id int64, hashValue string, totalFiles int) error
	// MarkProjectError 记录项目级错误
	MarkProjectError(id int64, message string) error
	// ListProjects 列出所有未删除项目
	ListProjects() ([]*model.Project, error)
}

type projectRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
}

// NewProjectRepository 创建项目Repository
func NewProjectRepository(db database.DatabaseManager, logger logger.Logger) ProjectRepository {
	return &projectRepository{
		db:     db,
		logger: logger,
	}
}

// GetOrCreateProject 按(名称,路径)获取项目，不存在时创建
func (r *projectRepository) GetOrCreateProject(name, path string) (*model.Project, error) {
	project, err := r.GetProjectByPath(path)
	if err == nil && project.ProjectName == name {
		return project, nil
	}

	query := `
		INSERT INTO projects (project_name, project_path)
		VALUES (?, ?)
		ON CONFLICT(project_name, project_path) DO UPDATE SET del_yn = 'N', updated_at = ?
		RETURNING id, project_name, project_path, hash_value, total_files,
			has_error, error_message, del_yn, created_at, updated_at
	`

	row := r.db.GetDB().QueryRow(query, name, path, time.Now())

	var p model.Project
	err = row.Scan(
		&p.ID,
		&p.ProjectName,
		&p.ProjectPath,
		&p.HashValue,
		&p.TotalFiles,
		&p.HasError,
		&p.ErrorMessage,
		&p.DelYn,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to get or create project: %w", err)
	}

	return &p, nil
}

// GetProjectByPath 根据路径获取项目
func (r *projectRepository) GetProjectByPath(path string) (*model.Project, error) {
	query := `
		SELECT id, project_name, project_path, hash_value, total_files,
			has_error, error_message, del_yn, created_at, updated_at
		FROM projects
		WHERE project_path = ?
	`

	row := r.db.GetDB().QueryRow(query, path)

	var p model.Project
	err := row.Scan(
		&p.ID,
		&p.ProjectName,
		&p.ProjectPath,
		&p.HashValue,
		&p.TotalFiles,
		&p.HasError,
		&p.ErrorMessage,
		&p.DelYn,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("[DB] project not found: %s: %w", path, errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("[DB] failed to get project by path: %w", err)
	}

	return &p, nil
}

// UpdateProjectSummary 更新项目树哈希与文件总数
func (r *projectRepository) UpdateProjectSummary(id int64, hashValue string, totalFiles int) error {
	query := `
		UPDATE projects
		SET hash_value = ?, total_files = ?, has_error = 'N', error_message = '', updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.GetDB().Exec(query, hashValue, totalFiles, time.Now(), id)
	if err != nil {
		return fmt.Errorf("[DB] failed to update project summary: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("[DB] failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("[DB] project not found: %d", id)
	}

	return nil
}

// MarkProjectError 记录项目级错误
func (r *projectRepository) MarkProjectError(id int64, message string) error {
	query := `
		UPDATE projects
		SET has_error = 'Y', error_message = ?, updated_at = ?
		WHERE id = ?
	`

	if _, err := r.db.GetDB().Exec(query, message, time.Now(), id); err != nil {
		return fmt.Errorf("[DB] failed to mark project error: %w", err)
	}

	return nil
}

// ListProjects 列出所有未删除项目
func (r *projectRepository) ListProjects() ([]*model.Project, error) {
	query := `
		SELECT id, project_name, project_path, hash_value, total_files,
			has_error, error_message, del_yn, created_at, updated_at
		FROM projects
		WHERE del_yn = 'N'
		ORDER BY created_at DESC
	`

	rows, err := r.db.GetDB().Query(query)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		var p model.Project
		err := rows.Scan(
			&p.ID,
			&p.ProjectName,
			&p.ProjectPath,
			&p.HashValue,
			&p.TotalFiles,
			&p.HasError,
			&p.ErrorMessage,
			&p.DelYn,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("[DB] failed to scan projects table row: %w", err)
		}
		projects = append(projects, &p)
	}

	return projects, nil
}
