package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency controls how a recurring template's NextRun advances.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// KnownFrequency validates a frequency tag.
func KnownFrequency(f string) bool {
	switch Frequency(f) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// RecurringStatus is the template lifecycle. Paused and completed are only
// reachable through explicit edits, never automatically.
type RecurringStatus string

const (
	RecurringActive    RecurringStatus = "active"
	RecurringPaused    RecurringStatus = "paused"
	RecurringCompleted RecurringStatus = "completed"
)

// RecurringInvoice is a schedule + item blueprint from which concrete invoices
// are generated. The template is the sole source of truth for timing; NextRun
// must strictly increase on every successful sweep pass that touches it.
type RecurringInvoice struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;index" json:"workspace_id"`
	CreatedByID string `gorm:"type:uuid" json:"created_by_id"`
	CustomerID  string `gorm:"type:uuid;not null;index" json:"customer_id"`

	Frequency Frequency       `gorm:"not null" json:"frequency"`
	Status    RecurringStatus `gorm:"not null;default:'active';index" json:"status"`
	NextRun   time.Time       `gorm:"not null;index" json:"next_run"`

	TaxRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_rate"`

	Items []RecurringInvoiceItem `gorm:"foreignKey:TemplateID" json:"items"`

	LastRunAt *time.Time `json:"last_run_at"`

	Customer *Customer `json:"customer,omitempty"`
}

// NextRunAfter computes the schedule advance from a given run time. Monthly
// advances preserve the day of month, clamping to the last day of shorter
// months (Jan 31 → Feb 29 on leap years, Feb 28 otherwise).
func (t *RecurringInvoice) NextRunAfter(from time.Time) time.Time {
	switch t.Frequency {
	case FrequencyDaily:
		return from.Add(24 * time.Hour)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthClamped(from)
	default:
		return from.Add(24 * time.Hour)
	}
}

func addMonthClamped(from time.Time) time.Time {
	year, month, day := from.Date()
	firstOfNext := time.Date(year, month+1, 1, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	lastDay := daysInMonth(firstOfNext.Year(), firstOfNext.Month())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RecurringInvoiceItem freezes product, quantity, and price at template
// definition time. Generated invoices copy these values verbatim.
type RecurringInvoiceItem struct {
	BaseModel

	TemplateID string  `gorm:"type:uuid;not null;index" json:"template_id"`
	ProductID  *string `gorm:"type:uuid" json:"product_id"`

	Description string          `gorm:"not null" json:"description"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
}
