package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle of a billed document.
type InvoiceStatus string

const (
	InvoicePending       InvoiceStatus = "pending"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoiceVoid          InvoiceStatus = "void"
)

// Invoice is a financial document with line items and a payment sub-list.
// Balance due is Total minus the sum of payments; the sum of payments must
// never exceed Total.
type Invoice struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;index;uniqueIndex:ux_invoices_workspace_number" json:"workspace_id"`
	CreatedByID string `gorm:"type:uuid" json:"created_by_id"`
	CustomerID  string `gorm:"type:uuid;not null;index" json:"customer_id"`

	Number string        `gorm:"not null;uniqueIndex:ux_invoices_workspace_number" json:"number"`
	Status InvoiceStatus `gorm:"not null;default:'pending'" json:"status"`

	Items    []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items"`
	Payments []Payment     `gorm:"foreignKey:InvoiceID" json:"payments"`

	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_rate"`
	TaxAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`

	IssuedAt time.Time  `json:"issued_at"`
	DueAt    *time.Time `json:"due_at"`

	Customer *Customer `json:"customer,omitempty"`
}

// PaidAmount sums recorded payments.
func (i *Invoice) PaidAmount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range i.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// BalanceDue returns the outstanding amount on the invoice.
func (i *Invoice) BalanceDue() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount())
}

// InvoiceItem is a single line on an invoice. ProductID is optional; prices
// are frozen at document creation, never re-read from the catalog.
type InvoiceItem struct {
	BaseModel

	InvoiceID string  `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ProductID *string `gorm:"type:uuid" json:"product_id"`

	Description string          `gorm:"not null" json:"description"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
}

// Payment records money received against an invoice.
type Payment struct {
	BaseModel

	InvoiceID string `gorm:"type:uuid;not null;index" json:"invoice_id"`

	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method string          `json:"method"`
	Note   string          `json:"note"`
	PaidAt time.Time       `json:"paid_at"`
}
