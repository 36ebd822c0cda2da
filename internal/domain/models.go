package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/invoice-api/internal/format"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate assigns an ID when the caller did not.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Project is the invoicing context of an editing session: who bills whom and
// under which brand.
type Project struct {
	BaseModel
	Title           string `gorm:"type:varchar(200);not null" json:"title"`
	ProjectNumber   string `gorm:"type:varchar(50);index;column:project_number" json:"projectNumber,omitempty"`
	Company         string `gorm:"type:varchar(200)" json:"company"`
	Address         string `gorm:"type:varchar(500)" json:"address,omitempty"`
	ClientName      string `gorm:"type:varchar(200);column:client_name" json:"clientName,omitempty"`
	ClientAddress   string `gorm:"type:varchar(500);column:client_address" json:"clientAddress,omitempty"`
	ClientEmail     string `gorm:"type:varchar(200);column:client_email" json:"clientEmail,omitempty"`
	CurrentRevision *int   `gorm:"column:current_revision" json:"currentRevision,omitempty"`

	InvoiceBrandName    string `gorm:"type:varchar(200);column:invoice_brand_name" json:"invoiceBrandName,omitempty"`
	InvoiceBrandTagline string `gorm:"type:varchar(200);column:invoice_brand_tagline" json:"invoiceBrandTagline,omitempty"`
	InvoiceBrandAddress string `gorm:"type:varchar(500);column:invoice_brand_address" json:"invoiceBrandAddress,omitempty"`
	InvoiceBrandPhone   string `gorm:"type:varchar(50);column:invoice_brand_phone" json:"invoiceBrandPhone,omitempty"`
	InvoiceBrandLogoKey string `gorm:"type:varchar(500);column:invoice_brand_logo_key" json:"invoiceBrandLogoKey,omitempty"`
}

// NumericText is a numeric column that arrives as free text from the budget
// editor. Unparseable values count as zero.
type NumericText string

// Decimal returns the parsed value, or zero.
func (n NumericText) Decimal() decimal.Decimal {
	return format.ParseMoney(string(n))
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (n *NumericText) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*n = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericText(s)
		return nil
	}
	*n = NumericText(raw)
	return nil
}

// BudgetItem is one priced line of a project budget.
type BudgetItem struct {
	BaseModel
	ProjectID     uuid.UUID   `gorm:"type:uuid;not null;index;column:project_id" json:"projectId"`
	Description   string      `gorm:"type:text" json:"description"`
	Quantity      NumericText `gorm:"type:varchar(50)" json:"quantity"`
	Unit          string      `gorm:"type:varchar(50)" json:"unit"`
	ItemFinalCost NumericText `gorm:"type:varchar(50);column:item_final_cost" json:"itemFinalCost"`
	InvoiceGroup  string      `gorm:"type:varchar(200);column:invoice_group" json:"invoiceGroup"`
	AreaGroup     string      `gorm:"type:varchar(200);column:area_group" json:"areaGroup"`
	Category      string      `gorm:"type:varchar(200)" json:"category"`
	DisplayOrder  int         `gorm:"not null;default:0;column:display_order" json:"displayOrder"`
}

// GroupValue returns the trimmed classification value for field.
func (b *BudgetItem) GroupValue(field GroupField) string {
	switch field {
	case GroupFieldInvoiceGroup:
		return strings.TrimSpace(b.InvoiceGroup)
	case GroupFieldAreaGroup:
		return strings.TrimSpace(b.AreaGroup)
	case GroupFieldCategory:
		return strings.TrimSpace(b.Category)
	default:
		return ""
	}
}

// Amount is the final cost of the line.
func (b *BudgetItem) Amount() decimal.Decimal {
	return b.ItemFinalCost.Decimal()
}

// UnitPrice is amount divided by quantity, with zero quantity treated as one.
func (b *BudgetItem) UnitPrice() decimal.Decimal {
	qty := b.Quantity.Decimal()
	if qty.IsZero() {
		return b.Amount()
	}
	return b.Amount().Div(qty)
}

// GroupField names the classification used to group invoice rows.
type GroupField string

const (
	GroupFieldInvoiceGroup GroupField = "invoiceGroup"
	GroupFieldAreaGroup    GroupField = "areaGroup"
	GroupFieldCategory     GroupField = "category"
)

// GroupFields lists the candidates in inference priority order.
var GroupFields = []GroupField{GroupFieldInvoiceGroup, GroupFieldAreaGroup, GroupFieldCategory}

// IsValid checks if the group field is one of the known classifications
func (f GroupField) IsValid() bool {
	switch f {
	case GroupFieldInvoiceGroup, GroupFieldAreaGroup, GroupFieldCategory:
		return true
	}
	return false
}

// Label is the human-readable name shown in grouping pickers.
func (f GroupField) Label() string {
	switch f {
	case GroupFieldInvoiceGroup:
		return "Invoice Group"
	case GroupFieldAreaGroup:
		return "Area Group"
	case GroupFieldCategory:
		return "Category"
	default:
		return string(f)
	}
}

// SavedInvoiceSnapshot identifies a persisted invoice snapshot file.
type SavedInvoiceSnapshot struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// InvoiceBranding is the invoice brand persisted on a project.
type InvoiceBranding struct {
	Name    string `json:"name"`
	Tagline string `json:"tagline"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	LogoKey string `json:"logoKey"`
}
