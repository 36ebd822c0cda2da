package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/repository"
	"github.com/straye-as/invoice-api/internal/testutil"
)

func TestProjectRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewProjectRepository(db)
	project := testutil.CreateTestProject(t, db, "Office Refit")

	got, err := repo.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office Refit", got.Title)
	assert.Equal(t, "Acme AS", got.ClientName)

	_, err = repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestProjectRepository_UpdateInvoiceBranding(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewProjectRepository(db)
	project := testutil.CreateTestProject(t, db, "Office Refit")

	err := repo.UpdateInvoiceBranding(ctx, project.ID, domain.InvoiceBranding{
		Name:    "Straye Tak",
		Tagline: "Roofs",
		Address: "Havnegata 2",
		Phone:   "+47 900 00 000",
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Straye Tak", got.InvoiceBrandName)
	assert.Equal(t, "Roofs", got.InvoiceBrandTagline)
	assert.Equal(t, "Havnegata 2", got.InvoiceBrandAddress)
	assert.Equal(t, "Office Refit", got.Title, "other columns untouched")

	err = repo.UpdateInvoiceBranding(ctx, uuid.New(), domain.InvoiceBranding{Name: "x"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestBudgetItemRepository_ListByProject(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewBudgetItemRepository(db)
	project := testutil.CreateTestProject(t, db, "Office Refit")
	other := testutil.CreateTestProject(t, db, "Other")

	testutil.CreateTestBudgetItem(t, db, project, 2, "third", "Phase 2", "Plumbing", "30")
	testutil.CreateTestBudgetItem(t, db, project, 0, "first", "Phase 1", "Plumbing", "10")
	testutil.CreateTestBudgetItem(t, db, project, 1, "second", "Phase 1", "Electrical", "not a number")
	testutil.CreateTestBudgetItem(t, db, other, 0, "foreign", "Phase 1", "Plumbing", "99")

	items, err := repo.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first", items[0].Description)
	assert.Equal(t, "second", items[1].Description)
	assert.Equal(t, "third", items[2].Description)
	assert.True(t, items[1].Amount().IsZero())

	count, err := repo.CountByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBudgetItemRepository_CreateBatchAndDelete(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewBudgetItemRepository(db)
	project := testutil.CreateTestProject(t, db, "Office Refit")

	items := []domain.BudgetItem{
		{ProjectID: project.ID, Description: "a", ItemFinalCost: "1"},
		{ProjectID: project.ID, Description: "b", ItemFinalCost: "2", DisplayOrder: 1},
	}
	require.NoError(t, repo.CreateBatch(ctx, items))
	require.NoError(t, repo.CreateBatch(ctx, nil))

	listed, err := repo.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	require.NoError(t, repo.Delete(ctx, listed[0].ID))
	assert.ErrorIs(t, repo.Delete(ctx, listed[0].ID), gorm.ErrRecordNotFound)

	got, err := repo.GetByID(ctx, listed[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Description)
}
