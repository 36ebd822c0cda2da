package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/invoice-api/internal/domain"
	"gorm.io/gorm"
)

// BudgetItemRepository handles database operations for budget items
type BudgetItemRepository struct {
	db *gorm.DB
}

// NewBudgetItemRepository creates a new BudgetItemRepository instance
func NewBudgetItemRepository(db *gorm.DB) *BudgetItemRepository {
	return &BudgetItemRepository{db: db}
}

// Create inserts a new budget item into the database
func (r *BudgetItemRepository) Create(ctx context.Context, item *domain.BudgetItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// CreateBatch inserts several budget items in one transaction
func (r *BudgetItemRepository) CreateBatch(ctx context.Context, items []domain.BudgetItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
}

// GetByID retrieves a budget item by its ID
func (r *BudgetItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetItem, error) {
	var item domain.BudgetItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Update saves changes to an existing budget item
func (r *BudgetItemRepository) Update(ctx context.Context, item *domain.BudgetItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// Delete removes a budget item from the database
func (r *BudgetItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&domain.BudgetItem{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByProject returns all budget items of a project in display order
func (r *BudgetItemRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.BudgetItem, error) {
	var items []domain.BudgetItem
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("display_order ASC, created_at ASC").
		Find(&items).Error
	return items, err
}

// CountByProject returns the count of budget items of a project
func (r *BudgetItemRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.BudgetItem{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return int(count), err
}
