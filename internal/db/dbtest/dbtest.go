// Package dbtest 提供测试用的 sqlite 数据库
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/myysophia/artifact-manager/internal/config"
	"github.com/myysophia/artifact-manager/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// New 在临时目录中创建一个已迁移的 sqlite 数据库
func New(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := db.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(conn))

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
