package repository

import (
	"testing"
	"time"

	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *pg.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), pg.Options())
	require.NoError(t, err)

	// every sqlite :memory: connection is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return pg.New(db, db)
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}
