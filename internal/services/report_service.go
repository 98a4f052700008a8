package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
)

// ReportService produces workspace financial summaries. All figures are
// derived on demand; nothing is precomputed or cached.
type ReportService struct {
	db *gorm.DB
}

// NewReportService constructs a ReportService instance.
func NewReportService(db *gorm.DB) (*ReportService, error) {
	if db == nil {
		return nil, errors.New("report service: db is required")
	}
	return &ReportService{db: db}, nil
}

// ReportPeriod bounds a summary. From is inclusive, To exclusive.
type ReportPeriod struct {
	From time.Time
	To   time.Time
}

// Summary aggregates a workspace's financial position over a period.
type Summary struct {
	Period ReportPeriod `json:"period"`

	Revenue     decimal.Decimal `json:"revenue"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Expenses    decimal.Decimal `json:"expenses"`
	Net         decimal.Decimal `json:"net"`

	InvoicesIssued   int64                          `json:"invoices_issued"`
	EstimatesIssued  int64                          `json:"estimates_issued"`
	InvoicesByStatus map[models.InvoiceStatus]int64 `json:"invoices_by_status"`
}

// Summarize computes revenue (payments received in the period), outstanding
// balances on open invoices, and expenses for one workspace.
func (s *ReportService) Summarize(ctx context.Context, workspaceID string, period ReportPeriod) (*Summary, error) {
	ctx = ensureContext(ctx)

	if period.From.IsZero() || period.To.IsZero() {
		return nil, apperrors.NewBadRequest("report period is required")
	}
	if !period.To.After(period.From) {
		return nil, apperrors.NewBadRequest("report period end must be after its start")
	}

	summary := &Summary{
		Period:           period,
		InvoicesByStatus: make(map[models.InvoiceStatus]int64),
	}

	revenue, err := s.sumPayments(ctx, workspaceID, period)
	if err != nil {
		return nil, err
	}
	summary.Revenue = revenue

	outstanding, err := s.sumOutstanding(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	summary.Outstanding = outstanding

	expenses, err := s.sumExpenses(ctx, workspaceID, period)
	if err != nil {
		return nil, err
	}
	summary.Expenses = expenses
	summary.Net = revenue.Sub(expenses)

	err = s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("workspace_id = ? AND issued_at >= ? AND issued_at < ?", workspaceID, period.From, period.To).
		Count(&summary.InvoicesIssued).Error
	if err != nil {
		return nil, fmt.Errorf("report service: count invoices: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&models.Estimate{}).
		Where("workspace_id = ? AND issued_at >= ? AND issued_at < ?", workspaceID, period.From, period.To).
		Count(&summary.EstimatesIssued).Error
	if err != nil {
		return nil, fmt.Errorf("report service: count estimates: %w", err)
	}

	type statusCount struct {
		Status models.InvoiceStatus
		Count  int64
	}
	var counts []statusCount
	err = s.db.WithContext(ctx).Model(&models.Invoice{}).
		Select("status, COUNT(*) AS count").
		Where("workspace_id = ?", workspaceID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("report service: invoice status breakdown: %w", err)
	}
	for _, row := range counts {
		summary.InvoicesByStatus[row.Status] = row.Count
	}

	return summary, nil
}

func (s *ReportService) sumPayments(ctx context.Context, workspaceID string, period ReportPeriod) (decimal.Decimal, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("invoices.workspace_id = ? AND payments.paid_at >= ? AND payments.paid_at < ?",
			workspaceID, period.From, period.To).
		Find(&payments).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("report service: sum payments: %w", err)
	}

	total := decimal.Zero
	for _, payment := range payments {
		total = total.Add(payment.Amount)
	}
	return total, nil
}

// sumOutstanding totals balance due across open invoices. Summed in Go rather
// than SQL so decimal arithmetic stays exact across drivers.
func (s *ReportService) sumOutstanding(ctx context.Context, workspaceID string) (decimal.Decimal, error) {
	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Payments").
		Where("workspace_id = ? AND status IN ?", workspaceID,
			[]models.InvoiceStatus{models.InvoicePending, models.InvoicePartiallyPaid, models.InvoiceOverdue}).
		Find(&invoices).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("report service: load open invoices: %w", err)
	}

	total := decimal.Zero
	for i := range invoices {
		total = total.Add(invoices[i].BalanceDue())
	}
	return total, nil
}

func (s *ReportService) sumExpenses(ctx context.Context, workspaceID string, period ReportPeriod) (decimal.Decimal, error) {
	var expenses []models.Expense
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND incurred_at >= ? AND incurred_at < ?", workspaceID, period.From, period.To).
		Find(&expenses).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("report service: sum expenses: %w", err)
	}

	total := decimal.Zero
	for _, expense := range expenses {
		total = total.Add(expense.Amount)
	}
	return total, nil
}
