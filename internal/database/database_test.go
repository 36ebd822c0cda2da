package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straye-as/invoice-api/internal/config"
	"github.com/straye-as/invoice-api/internal/database"
	"github.com/straye-as/invoice-api/internal/domain"
)

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := database.NewDatabase(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "invoice.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	project := &domain.Project{Title: "Office Refit"}
	require.NoError(t, db.Create(project).Error)

	var count int64
	require.NoError(t, db.Model(&domain.Project{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stats, err := database.HealthCheckWithStats(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	assert.Error(t, database.HealthCheck(context.Background(), db))
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := database.NewDatabase(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
