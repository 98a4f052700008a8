package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a workspace-scoped spend record with no lifecycle beyond
// create and delete.
type Expense struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;index" json:"workspace_id"`
	CreatedByID string `gorm:"type:uuid" json:"created_by_id"`

	Category    string          `json:"category"`
	Description string          `gorm:"not null" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	IncurredAt  time.Time       `json:"incurred_at"`
}
