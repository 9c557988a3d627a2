// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/fadilmartias/bioreport-worker/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewEmptySQLiteDB returns an isolated in-memory database with no tables.
func NewEmptySQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to create in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// NewSQLiteDB returns an isolated in-memory database with the worker tables.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	db := NewEmptySQLiteDB(t)
	err := db.AutoMigrate(&model.PdfJob{}, &model.UploadedDocument{})
	require.NoError(t, err, "Failed to run database migrations")
	return db
}
