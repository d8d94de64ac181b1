package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"metadb-builder/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration 迁移结构体
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Migrator 数据库迁移器
type Migrator struct {
	db     *sql.DB
	logger logger.Logger
}

// NewMigrator 创建新的迁移器
func NewMigrator(db *sql.DB, logger logger.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// CreateMigrationTable 创建迁移版本表
func (m *Migrator) CreateMigrationTable() error {
	sql := `
		CREATE TABLE IF NOT EXISTS migrations (
			version VARCHAR(255) PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := m.db.Exec(sql); err != nil {
		return fmt.Errorf("failed to create migrations table: %v", err)
	}

	return nil
}

// GetAppliedMigrations 获取已应用的迁移
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %v", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %v", err)
		}
		applied[version] = true
	}

	return applied, nil
}

// GetAvailableMigrations 从嵌入的文件系统获取可用的迁移文件
func (m *Migrator) GetAvailableMigrations() ([]Migration, error) {
	files, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %v", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		// 解析文件名格式: 20250901000001_create_projects_table.sql
		name := file.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		baseName := strings.TrimSuffix(name, ".sql")
		parts := strings.Split(baseName, "_")
		if len(parts) < 4 {
			continue
		}

		// 第一部分是时间戳版本号 (14位数字)
		version := parts[0]
		if len(version) != 14 {
			continue
		}

		// 第二部分是操作类型 (create/update/delete)
		action := parts[1]
		if action != "create" && action != "update" && action != "delete" {
			continue
		}

		content, err := fs.ReadFile(migrationFS, fmt.Sprintf("migrations/%s", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded migration file %s: %v", name, err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: baseName,
			SQL:         string(content),
		})
	}

	// 按版本号排序（时间戳）
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// ApplyMigration 应用单个迁移
func (m *Migrator) ApplyMigration(migration Migration) error {
	m.logger.Info("Applying migration %s", migration.Description)

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// 执行迁移 SQL
	if _, err = tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %v", err)
	}

	// 记录迁移版本
	_, err = tx.Exec(
		"INSERT INTO migrations (version, description, applied_at) VALUES (?, ?, ?)",
		migration.Version, migration.Description, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration version: %v", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	m.logger.Info("Migration %s applied successfully", migration.Description)
	return nil
}

// AutoMigrate 自动执行所有未应用的迁移
func (m *Migrator) AutoMigrate() error {
	// 确保迁移表存在
	if err := m.CreateMigrationTable(); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return err
	}

	available, err := m.GetAvailableMigrations()
	if err != nil {
		return err
	}

	for _, migration := range available {
		if !applied[migration.Version] {
			if err := m.ApplyMigration(migration); err != nil {
				return fmt.Errorf("failed to apply migration %s: %v", migration.Version, err)
			}
		}
	}

	m.logger.Info("Auto migration completed successfully")
	return nil
}
