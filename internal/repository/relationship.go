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

// RelationshipRepository 组件关系数据访问层
type RelationshipRepository interface {
	// UpsertRelationshipTx 插入或更新关系，冲突时按(src, dst, kind)就地更新置信度与条件
	UpsertRelationshipTx(tx *sql.Tx, rel *model.Relationship) error
	// SoftDeleteOutboundByFileTx 软删除文件所属组件的所有出边
	SoftDeleteOutboundByFileTx(tx *sql.Tx, fileID int64) error
	// ListRelationshipsByProject 列出项目下所有未删除关系
	ListRelationshipsByProject(projectID int64) ([]*model.Relationship, error)
}

type relationshipRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
}

// NewRelationshipRepository 创建关系Repository
func NewRelationshipRepository(db database.DatabaseManager, logger logger.Logger) RelationshipRepository {
	return &relationshipRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertRelationshipTx 插入或更新关系，冲突时按(src, dst, kind)就地更新置信度与条件
func (r *relationshipRepository) UpsertRelationshipTx(tx *sql.Tx, rel *model.Relationship) error {
	// 自环关系在存储层一律拒绝
	if rel.SrcID == rel.DstID {
		return errs.NewInvalidParamErr("relationship src_id == dst_id", rel.SrcID)
	}

	query := `
		INSERT INTO relationships (project_id, src_id, dst_id, rel_type, is_conditional,
			condition_expression, confidence, has_error, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(src_id, dst_id, rel_type) DO UPDATE SET
			is_conditional = excluded.is_conditional,
			condition_expression = excluded.condition_expression,
			confidence = excluded.confidence,
			has_error = excluded.has_error,
			error_message = excluded.error_message,
			del_yn = 'N',
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	row := tx.QueryRow(query,
		rel.ProjectID,
		rel.SrcID,
		rel.DstID,
		rel.RelType,
		rel.IsConditional,
		rel.ConditionExpression,
		rel.Confidence,
		rel.HasError,
		rel.ErrorMessage,
	)

	if err := row.Scan(&rel.ID); err != nil {
		return fmt.Errorf("[DB] failed to upsert relationship: %w", err)
	}

	return nil
}

// SoftDeleteOutboundByFileTx 软删除文件所属组件的所有出边
func (r *relationshipRepository) SoftDeleteOutboundByFileTx(tx *sql.Tx, fileID int64) error {
	query := `
		UPDATE relationships
		SET del_yn = 'Y', updated_at = ?
		WHERE src_id IN (SELECT id FROM components WHERE file_id = ?)
	`

	if _, err := tx.Exec(query, time.Now(), fileID); err != nil {
		return fmt.Errorf("[DB] failed to soft delete outbound relationships: %w", err)
	}

	return nil
}

// ListRelationshipsByProject 列出项目下所有未删除关系
func (r *relationshipRepository) ListRelationshipsByProject(projectID int64) ([]*model.Relationship, error) {
	query := `
		SELECT id, project_id, src_id, dst_id, rel_type, is_conditional,
			condition_expression, confidence, has_error, error_message,
			del_yn, created_at, updated_at
		FROM relationships
		WHERE project_id = ? AND del_yn = 'N'
		ORDER BY src_id, dst_id
	`

	rows, err := r.db.GetDB().Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to list relationships by project: %w", err)
	}
	defer rows.Close()

	var relationships []*model.Relationship
	for rows.Next() {
		var rel model.Relationship
		err := rows.Scan(
			&rel.ID,
			&rel.ProjectID,
			&rel.SrcID,
			&rel.DstID,
			&rel.RelType,
			&rel.IsConditional,
			&rel.ConditionExpression,
			&rel.Confidence,
			&rel.HasError,
			&rel.ErrorMessage,
			&rel.DelYn,
			&rel.CreatedAt,
			&rel.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("[DB] failed to scan relationships table row: %w", err)
		}
		relationships = append(relationships, &rel)
	}

	return relationships, nil
}
