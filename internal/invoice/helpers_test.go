package invoice_test

import (
	"github.com/google/uuid"
	"github.com/straye-as/invoice-api/internal/domain"
)

func item(description, invoiceGroup, category, cost string) domain.BudgetItem {
	return domain.BudgetItem{
		BaseModel:     domain.BaseModel{ID: uuid.New()},
		Description:   description,
		Quantity:      "1",
		Unit:          "ea",
		ItemFinalCost: domain.NumericText(cost),
		InvoiceGroup:  invoiceGroup,
		Category:      category,
	}
}

// twoGroups returns 7 items split 4/3 across "Phase 1" and "Phase 2".
func twoGroups() []domain.BudgetItem {
	return []domain.BudgetItem{
		item("a1", "Phase 1", "Plumbing", "100"),
		item("a2", "Phase 1", "Plumbing", "100"),
		item("b1", "Phase 2", "Electrical", "50"),
		item("a3", "Phase 1", "Electrical", "100"),
		item("b2", "Phase 2", "Electrical", "50"),
		item("a4", "Phase 1", "Plumbing", "100"),
		item("b3", "Phase 2", "Plumbing", "50"),
	}
}
