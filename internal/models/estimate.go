package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EstimateStatus follows draft → sent → approved/rejected → converted.
type EstimateStatus string

const (
	EstimateDraft     EstimateStatus = "draft"
	EstimateSent      EstimateStatus = "sent"
	EstimateApproved  EstimateStatus = "approved"
	EstimateRejected  EstimateStatus = "rejected"
	EstimateConverted EstimateStatus = "converted"
)

// Estimate is a quote that may be converted into an invoice exactly once.
// LinkedInvoiceID is set at conversion and never changes afterwards.
type Estimate struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;index;uniqueIndex:ux_estimates_workspace_number" json:"workspace_id"`
	CreatedByID string `gorm:"type:uuid" json:"created_by_id"`
	CustomerID  string `gorm:"type:uuid;not null;index" json:"customer_id"`

	Number string         `gorm:"not null;uniqueIndex:ux_estimates_workspace_number" json:"number"`
	Status EstimateStatus `gorm:"not null;default:'draft'" json:"status"`

	LinkedInvoiceID *string `gorm:"type:uuid" json:"linked_invoice_id"`

	Items []EstimateItem `gorm:"foreignKey:EstimateID" json:"items"`

	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_rate"`
	TaxAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`

	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at"`

	Customer *Customer `json:"customer,omitempty"`
}

// EstimateItem mirrors InvoiceItem for quotes.
type EstimateItem struct {
	BaseModel

	EstimateID string  `gorm:"type:uuid;not null;index" json:"estimate_id"`
	ProductID  *string `gorm:"type:uuid" json:"product_id"`

	Description string          `gorm:"not null" json:"description"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
}
