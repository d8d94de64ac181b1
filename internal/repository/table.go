package repository

import (
	"database/sql"
	"fmt"
	"time"

	"metadb-builder/internal/database"
	"metadb-builder/internal/model"
	"metadb-builder/pkg/logger"
)

// TableRepository 表与列数据访问层
type TableRepository interface {
	// UpsertTableTx 插入或更新表，冲突时按(name, owner, project)更新
	UpsertTableTx(tx *sql.Tx, table *model.Table) error
	// UpsertColumnTx 插入或更新列，冲突时按(table, name)更新
	UpsertColumnTx(tx *sql.Tx, column *model.Column) error
	// LinkTableComponentTx 关联表与其代理组件
	LinkTableComponentTx(tx *sql.Tx, tableID, componentID int64) error
	// SoftDeleteAbsentTablesTx 软删除本次全量扫描未出现的表（从不物理删除）
	SoftDeleteAbsentTablesTx(tx *sql.Tx, projectID int64, presentIDs []int64) error
	// ListTablesByProject 列出项目下所有未删除的表
	ListTablesByProject(projectID int64) ([]*model.Table, error)
	// ListColumnsByTable 列出表下所有未删除的列
	ListColumnsByTable(tableID int64) ([]*model.Column, error)
}

type tableRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
}

// NewTableRepository 创建表Repository
func NewTableRepository(db database.DatabaseManager, logger logger.Logger) TableRepository {
	return &tableRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertTableTx 插入或更新表，冲突时按(name, owner, project)更新
func (r *tableRepository) UpsertTableTx(tx *sql.Tx, table *model.Table) error {
	query := `
		INSERT INTO tables (project_id, table_name, table_owner, component_id, table_comment,
			hash_value, has_error, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, table_owner, project_id) DO UPDATE SET
			component_id = COALESCE(excluded.component_id, tables.component_id),
			table_comment = excluded.table_comment,
			hash_value = excluded.hash_value,
			has_error = excluded.has_error,
			error_message = excluded.error_message,
			del_yn = 'N',
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	row := tx.QueryRow(query,
		table.ProjectID,
		table.TableName,
		table.TableOwner,
		table.ComponentID,
		table.TableComment,
		table.HashValue,
		table.HasError,
		table.ErrorMessage,
	)

	if err := row.Scan(&table.ID); err != nil {
		return fmt.Errorf("[DB] failed to upsert table: %w", err)
	}

	return nil
}

// UpsertColumnTx 插入或更新列，冲突时按(table, name)更新
func (r *tableRepository) UpsertColumnTx(tx *sql.Tx, column *model.Column) error {
	query := `
		INSERT INTO columns (table_id, column_name, data_type, data_length, nullable,
			pk_position, default_value, column_owner, component_id, hash_value, has_error, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_id, column_name) DO UPDATE SET
			data_type = excluded.data_type,
			data_length = excluded.data_length,
			nullable = excluded.nullable,
			pk_position = excluded.pk_position,
			default_value = excluded.default_value,
			column_owner = excluded.column_owner,
			component_id = COALESCE(excluded.component_id, columns.component_id),
			hash_value = excluded.hash_value,
			has_error = excluded.has_error,
			error_message = excluded.error_message,
			del_yn = 'N',
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	row := tx.QueryRow(query,
		column.TableID,
		column.ColumnName,
		column.DataType,
		column.DataLength,
		column.Nullable,
		column.PkPosition,
		column.DefaultValue,
		column.ColumnOwner,
		column.ComponentID,
		column.HashValue,
		column.HasError,
		column.ErrorMessage,
	)

	if err := row.Scan(&column.ID); err != nil {
		return fmt.Errorf("[DB] failed to upsert column: %w", err)
	}

	return nil
}

// LinkTableComponentTx 关联表与其代理组件
func (r *tableRepository) LinkTableComponentTx(tx *sql.Tx, tableID, componentID int64) error {
	query := `UPDATE tables SET component_id = ?, updated_at = ? WHERE id = ?`

	if _, err := tx.Exec(query, componentID, time.Now(), tableID); err != nil {
		return fmt.Errorf("[DB] failed to link table component: %w", err)
	}

	return nil
}

// SoftDeleteAbsentTablesTx 软删除本次全量扫描未出现的表（从不物理删除）
func (r *tableRepository) SoftDeleteAbsentTablesTx(tx *sql.Tx, projectID int64, presentIDs []int64) error {
	present := make(map[int64]bool, len(presentIDs))
	for _, id := range presentIDs {
		present[id] = true
	}

	rows, err := tx.Query(`SELECT id FROM tables WHERE project_id = ? AND del_yn = 'N'`, projectID)
	if err != nil {
		return fmt.Errorf("[DB] failed to query tables for soft delete: %w", err)
	}

	var absent []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("[DB] failed to scan table id: %w", err)
		}
		if !present[id] {
			absent = append(absent, id)
		}
	}
	rows.Close()

	// 表软删时其代理组件与列随之软删，避免残留指向已删表的存活代理
	for _, id := range absent {
		now := time.Now()
		if _, err := tx.Exec(`UPDATE tables SET del_yn = 'Y', updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("[DB] failed to soft delete table %d: %w", id, err)
		}
		if _, err := tx.Exec(`
			UPDATE components SET del_yn = 'Y', updated_at = ?
			WHERE id IN (
				SELECT component_id FROM tables WHERE id = ? AND component_id IS NOT NULL
				UNION
				SELECT component_id FROM columns WHERE table_id = ? AND component_id IS NOT NULL
			)`, now, id, id); err != nil {
			return fmt.Errorf("[DB] failed to soft delete proxy components of table %d: %w", id, err)
		}
		if _, err := tx.Exec(`UPDATE columns SET del_yn = 'Y', updated_at = ? WHERE table_id = ?`, now, id); err != nil {
			return fmt.Errorf("[DB] failed to soft delete columns of table %d: %w", id, err)
		}
	}

	return nil
}

// ListTablesByProject 列出项目下所有未删除的表
func (r *tableRepository) ListTablesByProject(projectID int64) ([]*model.Table, error) {
	query := `
		SELECT id, project_id, table_name, table_owner, component_id, table_comment,
			hash_value, has_error, error_message, del_yn, created_at, updated_at
		FROM tables
		WHERE project_id = ? AND del_yn = 'N'
		ORDER BY table_name
	`

	rows, err := r.db.GetDB().Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to list tables by project: %w", err)
	}
	defer rows.Close()

	var tables []*model.Table
	for rows.Next() {
		var t model.Table
		err := rows.Scan(
			&t.ID,
			&t.ProjectID,
			&t.TableName,
			&t.TableOwner,
			&t.ComponentID,
			&t.TableComment,
			&t.HashValue,
			&t.HasError,
			&t.ErrorMessage,
			&t.DelYn,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("[DB] failed to scan tables table row: %w", err)
		}
		tables = append(tables, &t)
	}

	return tables, nil
}

// ListColumnsByTable 列出表下所有未删除的列
func (r *tableRepository) ListColumnsByTable(tableID int64) ([]*model.Column, error) {
	query := `
		SELECT id, table_id, column_name, data_type, data_length, nullable,
			pk_position, default_value, column_owner, component_id,
			hash_value, has_error, error_message, del_yn, created_at, updated_at
		FROM columns
		WHERE table_id = ? AND del_yn = 'N'
		ORDER BY pk_position, column_name
	`

	rows, err := r.db.GetDB().Query(query, tableID)
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to list columns by table: %w", err)
	}
	defer rows.Close()

	var columns []*model.Column
	for rows.Next() {
		var c model.Column
		err := rows.Scan(
			&c.ID,
			&c.TableID,
			&c.ColumnName,
			&c.DataType,
			&c.DataLength,
			&c.Nullable,
			&c.PkPosition,
			&c.DefaultValue,
			&c.ColumnOwner,
			&c.ComponentID,
			&c.HashValue,
			&c.HasError,
			&c.ErrorMessage,
			&c.DelYn,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("[DB] failed to scan columns table row: %w", err)
		}
		columns = append(columns, &c)
	}

	return columns, nil
}
