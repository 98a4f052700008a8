package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billcraft/billcraft/internal/models"
)

func TestReportSummarize(t *testing.T) {
	fx := newFixture(t)
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	period := ReportPeriod{
		From: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	invoices, err := NewInvoiceService(fx.db, WithInvoiceClock(fixedClock(now)))
	require.NoError(t, err)
	expenses, err := NewExpenseService(fx.db)
	require.NoError(t, err)
	reports, err := NewReportService(fx.db)
	require.NoError(t, err)

	// Invoice fully paid inside the period.
	paid, err := invoices.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Paid work", Quantity: 1, UnitPrice: decptr("300")}},
	})
	require.NoError(t, err)
	_, err = invoices.RecordPayment(context.Background(), fx.workspace.ID, paid.ID, PaymentInput{
		Amount: decimal.RequireFromString("300"),
	})
	require.NoError(t, err)

	// Invoice half paid: 100 revenue, 100 outstanding.
	partial, err := invoices.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Partial work", Quantity: 1, UnitPrice: decptr("200")}},
	})
	require.NoError(t, err)
	_, err = invoices.RecordPayment(context.Background(), fx.workspace.ID, partial.ID, PaymentInput{
		Amount: decimal.RequireFromString("100"),
	})
	require.NoError(t, err)

	// Payment outside the period counts toward outstanding, not revenue.
	before := period.From.Add(-24 * time.Hour)
	open, err := invoices.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		IssuedAt:   &before,
		Items:      []DocumentItemInput{{Description: "Old work", Quantity: 1, UnitPrice: decptr("50")}},
	})
	require.NoError(t, err)
	_, err = invoices.RecordPayment(context.Background(), fx.workspace.ID, open.ID, PaymentInput{
		Amount: decimal.RequireFromString("10"),
		PaidAt: &before,
	})
	require.NoError(t, err)

	incurred := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	_, err = expenses.Create(context.Background(), fx.workspace.ID, fx.user.ID, ExpenseInput{
		Description: strptr("Hosting"),
		Amount:      decptr("80"),
		IncurredAt:  &incurred,
	})
	require.NoError(t, err)

	summary, err := reports.Summarize(context.Background(), fx.workspace.ID, period)
	require.NoError(t, err)

	assert.True(t, summary.Revenue.Equal(decimal.RequireFromString("400")), "revenue %s", summary.Revenue)
	assert.True(t, summary.Outstanding.Equal(decimal.RequireFromString("140")), "outstanding %s", summary.Outstanding)
	assert.True(t, summary.Expenses.Equal(decimal.RequireFromString("80")), "expenses %s", summary.Expenses)
	assert.True(t, summary.Net.Equal(decimal.RequireFromString("320")), "net %s", summary.Net)

	assert.EqualValues(t, 2, summary.InvoicesIssued, "only invoices issued inside the period count")
	assert.EqualValues(t, 0, summary.EstimatesIssued)
	assert.EqualValues(t, 1, summary.InvoicesByStatus[models.InvoicePaid])
	assert.EqualValues(t, 2, summary.InvoicesByStatus[models.InvoicePartiallyPaid])
}

func TestReportSummarizeValidatesPeriod(t *testing.T) {
	fx := newFixture(t)
	reports, err := NewReportService(fx.db)
	require.NoError(t, err)

	_, err = reports.Summarize(context.Background(), fx.workspace.ID, ReportPeriod{})
	requireErrCode(t, err, "BAD_REQUEST")

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = reports.Summarize(context.Background(), fx.workspace.ID, ReportPeriod{From: from, To: from})
	requireErrCode(t, err, "BAD_REQUEST")
}

func TestReportScopedToWorkspace(t *testing.T) {
	fx := newFixture(t)
	reports, err := NewReportService(fx.db)
	require.NoError(t, err)
	invoices, err := NewInvoiceService(fx.db)
	require.NoError(t, err)

	_, err = invoices.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Work", Quantity: 1, UnitPrice: decptr("100")}},
	})
	require.NoError(t, err)

	outsider := seedUser(t, fx.db, "outsider@example.com")
	otherWorkspace := seedWorkspace(t, fx.db, outsider, models.RoleOwner)

	period := ReportPeriod{
		From: time.Now().UTC().Add(-24 * time.Hour),
		To:   time.Now().UTC().Add(24 * time.Hour),
	}
	summary, err := reports.Summarize(context.Background(), otherWorkspace.ID, period)
	require.NoError(t, err)
	assert.True(t, summary.Revenue.IsZero())
	assert.True(t, summary.Outstanding.IsZero())
	assert.EqualValues(t, 0, summary.InvoicesIssued)
}
