// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory SQLite database with the schema
// migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to open test database")
	require.NoError(t, db.AutoMigrate(&domain.Project{}, &domain.BudgetItem{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// CreateTestProject creates a test project and returns it
func CreateTestProject(t *testing.T, db *gorm.DB, title string) *domain.Project {
	t.Helper()
	project := &domain.Project{
		Title:         title,
		Company:       "Straye Bygg AS",
		Address:       "Storgata 1\n0155 Oslo",
		ClientName:    "Acme AS",
		ClientAddress: "Postboks 12",
		ClientEmail:   "post@acme.test",
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

// CreateTestBudgetItem creates a budget item on project at position order
func CreateTestBudgetItem(t *testing.T, db *gorm.DB, project *domain.Project, order int, description, invoiceGroup, category, cost string) *domain.BudgetItem {
	t.Helper()
	item := &domain.BudgetItem{
		ProjectID:     project.ID,
		Description:   description,
		Quantity:      "1",
		Unit:          "ea",
		ItemFinalCost: domain.NumericText(cost),
		InvoiceGroup:  invoiceGroup,
		Category:      category,
		DisplayOrder:  order,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}
