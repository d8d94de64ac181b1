package database

import (
	"testing"

	"metadb-builder/internal/config"
	"metadb-builder/test/mocks"

	_ "github.com/mattn/go-sqlite3" // SQLite3驱动
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) DatabaseManager {
	t.Helper()

	dbConfig := config.DefaultDatabaseConfig(t.TempDir())
	dbConfig.DatabaseName = "test-metadb.db"

	dbManager := NewSQLiteManager(dbConfig, mocks.NewMockLogger())
	require.NoError(t, dbManager.Initialize())
	t.Cleanup(func() { dbManager.Close() })

	return dbManager
}

func TestSQLiteManager(t *testing.T) {
	dbManager := newTestManager(t)

	t.Run("Initialize建表", func(t *testing.T) {
		db := dbManager.GetDB()
		require.NoError(t, db.Ping())

		// 验证元数据表已全部创建
		for _, table := range []string{"projects", "files", "classes", "components", "tables", "columns", "relationships"} {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
			require.NoError(t, err)
			assert.Equal(t, table, name)
		}
	})

	t.Run("BeginTransaction", func(t *testing.T) {
		tx, err := dbManager.BeginTransaction()
		require.NoError(t, err)
		require.NotNil(t, tx)
		require.NoError(t, tx.Rollback())
	})

	t.Run("Close后连接不可用", func(t *testing.T) {
		closable := newTestManager(t)
		require.NoError(t, closable.Close())
		assert.Error(t, closable.GetDB().Ping())
	})

	t.Run("InitializeWithInvalidPath", func(t *testing.T) {
		invalidConfig := config.DefaultDatabaseConfig("/proc/invalid/path/that/does/not/exist")
		invalidManager := NewSQLiteManager(invalidConfig, mocks.NewMockLogger())
		assert.Error(t, invalidManager.Initialize())
	})
}

func TestSQLiteManagerForeignKeyToggle(t *testing.T) {
	orphanInsert := "INSERT INTO files (project_id, file_name, file_path, file_kind) VALUES (999, 'a.java', 'src/a.java', 'class-source')"

	t.Run("启用外键时孤儿行被拒", func(t *testing.T) {
		dbManager := newTestManager(t)
		_, err := dbManager.GetDB().Exec(orphanInsert)
		assert.Error(t, err)
	})

	t.Run("关闭外键时不校验", func(t *testing.T) {
		dbConfig := config.DefaultDatabaseConfig(t.TempDir())
		dbConfig.DatabaseName = "test-metadb.db"
		dbConfig.EnableForeignKeys = false

		dbManager := NewSQLiteManager(dbConfig, mocks.NewMockLogger())
		require.NoError(t, dbManager.Initialize())
		t.Cleanup(func() { dbManager.Close() })

		_, err := dbManager.GetDB().Exec(orphanInsert)
		assert.NoError(t, err)
	})
}

func TestSQLiteManagerClearTable(t *testing.T) {
	dbManager := newTestManager(t)
	db := dbManager.GetDB()

	_, err := db.Exec("INSERT INTO projects (project_name, project_path) VALUES ('demo', '/tmp/demo')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO projects (project_name, project_path) VALUES ('demo2', '/tmp/demo2')")
	require.NoError(t, err)

	t.Run("清空表并重置自增ID", func(t *testing.T) {
		require.NoError(t, dbManager.ClearTable("projects"))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count))
		assert.Equal(t, 0, count)

		// 自增序列重置后新行从1开始
		_, err := db.Exec("INSERT INTO projects (project_name, project_path) VALUES ('demo3', '/tmp/demo3')")
		require.NoError(t, err)
		var id int64
		require.NoError(t, db.QueryRow("SELECT id FROM projects WHERE project_name='demo3'").Scan(&id))
		assert.Equal(t, int64(1), id)
	})

	t.Run("非法表名", func(t *testing.T) {
		err := dbManager.ClearTable("sqlite_master")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})
}
