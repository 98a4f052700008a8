package models

import "github.com/shopspring/decimal"

// Product is a workspace-scoped catalog item. StockQuantity is decremented on
// estimate conversion via conditional updates, never a read-modify-write.
type Product struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;index" json:"workspace_id"`
	CreatedByID string `gorm:"type:uuid" json:"created_by_id"`

	Name          string          `gorm:"not null" json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	StockQuantity int             `gorm:"not null;default:0" json:"stock_quantity"`
}
