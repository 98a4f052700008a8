package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billcraft/billcraft/internal/models"
)

func mustInvoiceService(t *testing.T, fx *fixture, opts ...InvoiceOption) *InvoiceService {
	t.Helper()
	svc, err := NewInvoiceService(fx.db, opts...)
	require.NoError(t, err)
	return svc
}

func TestInvoiceCreateComputesTotals(t *testing.T) {
	fx := newFixture(t)
	product := seedProduct(t, fx.db, fx.workspace.ID, "19.99", 100)
	svc := mustInvoiceService(t, fx)

	invoice, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		TaxRate:    decimal.RequireFromString("7.5"),
		Items: []DocumentItemInput{
			{ProductID: &product.ID, Quantity: 3},
			{Description: "Onboarding call", Quantity: 1, UnitPrice: decptr("150")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-000001", invoice.Number)
	assert.Equal(t, models.InvoicePending, invoice.Status)
	require.Len(t, invoice.Items, 2)

	// Catalog lines snapshot name and price at creation time.
	assert.Equal(t, "Widget", invoice.Items[0].Description)
	assert.True(t, invoice.Items[0].UnitPrice.Equal(decimal.RequireFromString("19.99")))

	// 3 x 19.99 + 150 = 209.97; tax 7.5% = 15.75 (rounded); total 225.72.
	assert.True(t, invoice.Subtotal.Equal(decimal.RequireFromString("209.97")), "subtotal %s", invoice.Subtotal)
	assert.True(t, invoice.TaxAmount.Equal(decimal.RequireFromString("15.75")), "tax %s", invoice.TaxAmount)
	assert.True(t, invoice.Total.Equal(decimal.RequireFromString("225.72")), "total %s", invoice.Total)

	second, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Support", Quantity: 1, UnitPrice: decptr("50")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-000002", second.Number)
}

func TestInvoiceCreateRejectsForeignCustomer(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	outsider := seedUser(t, fx.db, "outsider@example.com")
	otherWorkspace := seedWorkspace(t, fx.db, outsider, models.RoleOwner)
	foreign := seedCustomer(t, fx.db, otherWorkspace.ID, "foreign@example.com")

	_, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: foreign.ID,
		Items:      []DocumentItemInput{{Description: "Work", Quantity: 1, UnitPrice: decptr("10")}},
	})
	requireErrCode(t, err, "CUSTOMER_NOT_FOUND")
}

func TestInvoiceCreateValidatesItems(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	_, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
	})
	requireErrCode(t, err, "BAD_REQUEST")

	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Work", Quantity: 0, UnitPrice: decptr("10")}},
	})
	requireErrCode(t, err, "BAD_REQUEST")

	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Work", Quantity: 1, UnitPrice: decptr("-5")}},
	})
	requireErrCode(t, err, "BAD_REQUEST")
}

func TestRecordPaymentConcurrentAttemptsRespectBalance(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	invoice, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Retainer", Quantity: 1, UnitPrice: decptr("100")}},
	})
	require.NoError(t, err)

	// Two racing 60 payments against a 100 total: at most one may land.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
				Amount: decimal.RequireFromString("60"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	assert.LessOrEqual(t, successes, 1)

	var payments []models.Payment
	require.NoError(t, fx.db.Find(&payments, "invoice_id = ?", invoice.ID).Error)
	paid := decimal.Zero
	for _, payment := range payments {
		paid = paid.Add(payment.Amount)
	}
	assert.True(t, paid.LessThanOrEqual(invoice.Total), "paid %s on a %s total", paid, invoice.Total)
}

func TestRecordPayment(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	invoice, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Retainer", Quantity: 1, UnitPrice: decptr("100")}},
	})
	require.NoError(t, err)

	// Partial payment moves the invoice to partially paid.
	invoice, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
		Amount: decimal.RequireFromString("40"),
		Method: "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePartiallyPaid, invoice.Status)
	assert.True(t, invoice.BalanceDue().Equal(decimal.RequireFromString("60")))

	// Paying more than the balance is rejected, state unchanged.
	_, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
		Amount: decimal.RequireFromString("60.01"),
	})
	requireErrCode(t, err, "OVERPAYMENT")

	invoice, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
		Amount: decimal.RequireFromString("60"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, invoice.Status)
	assert.True(t, invoice.BalanceDue().IsZero())

	_, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
		Amount: decimal.RequireFromString("1"),
	})
	requireErrCode(t, err, "INVALID_STATE")
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	invoice, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Retainer", Quantity: 1, UnitPrice: decptr("100")}},
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{Amount: decimal.Zero})
	requireErrCode(t, err, "BAD_REQUEST")
}

func TestVoidInvoice(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	invoice, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Retainer", Quantity: 1, UnitPrice: decptr("100")}},
	})
	require.NoError(t, err)

	voided, err := svc.Void(context.Background(), fx.workspace.ID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceVoid, voided.Status)

	_, err = svc.Void(context.Background(), fx.workspace.ID, invoice.ID)
	requireErrCode(t, err, "INVALID_STATE")

	_, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
		Amount: decimal.RequireFromString("10"),
	})
	requireErrCode(t, err, "INVALID_STATE")
}

func TestVoidPaidInvoiceRejected(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	invoice, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Retainer", Quantity: 1, UnitPrice: decptr("100")}},
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
		Amount: decimal.RequireFromString("100"),
	})
	require.NoError(t, err)

	_, err = svc.Void(context.Background(), fx.workspace.ID, invoice.ID)
	requireErrCode(t, err, "INVALID_STATE")
}

func TestMarkOverdue(t *testing.T) {
	fx := newFixture(t)
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	svc := mustInvoiceService(t, fx, WithInvoiceClock(fixedClock(now)))

	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	late, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		DueAt:      &past,
		Items:      []DocumentItemInput{{Description: "Late", Quantity: 1, UnitPrice: decptr("10")}},
	})
	require.NoError(t, err)

	current, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		DueAt:      &future,
		Items:      []DocumentItemInput{{Description: "Current", Quantity: 1, UnitPrice: decptr("10")}},
	})
	require.NoError(t, err)

	flipped, err := svc.MarkOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, flipped)

	reloaded, err := svc.Get(context.Background(), fx.workspace.ID, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceOverdue, reloaded.Status)

	reloaded, err = svc.Get(context.Background(), fx.workspace.ID, current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePending, reloaded.Status)

	// Idempotent: a second pass has nothing left to flip.
	flipped, err = svc.MarkOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, flipped)
}

func TestOverdueInvoiceStillAcceptsPayment(t *testing.T) {
	fx := newFixture(t)
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	svc := mustInvoiceService(t, fx, WithInvoiceClock(fixedClock(now)))

	past := now.Add(-time.Hour)
	invoice, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		DueAt:      &past,
		Items:      []DocumentItemInput{{Description: "Late", Quantity: 1, UnitPrice: decptr("100")}},
	})
	require.NoError(t, err)

	_, err = svc.MarkOverdue(context.Background(), now)
	require.NoError(t, err)

	invoice, err = svc.RecordPayment(context.Background(), fx.workspace.ID, invoice.ID, PaymentInput{
		Amount: decimal.RequireFromString("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, invoice.Status)
}

func TestFreePlanDocumentQuota(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx, WithDocumentQuota(2))

	input := CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Work", Quantity: 1, UnitPrice: decptr("10")}},
	}

	for i := 0; i < 2; i++ {
		_, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, input)
		require.NoError(t, err)
	}

	_, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, input)
	requireErrCode(t, err, "PLAN_LIMIT")

	// Estimates share the same monthly counter.
	estimates, err := NewEstimateService(fx.db, WithEstimateQuota(2))
	require.NoError(t, err)
	_, err = estimates.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateEstimateInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Quote", Quantity: 1, UnitPrice: decptr("10")}},
	})
	requireErrCode(t, err, "PLAN_LIMIT")

	// Pro workspaces are unlimited.
	require.NoError(t, fx.db.Model(fx.workspace).Update("plan", models.PlanPro).Error)
	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, input)
	require.NoError(t, err)
}

func TestInvoiceListFilters(t *testing.T) {
	fx := newFixture(t)
	svc := mustInvoiceService(t, fx)

	other := seedCustomer(t, fx.db, fx.workspace.ID, "other@example.com")

	for _, customerID := range []string{fx.customer.ID, fx.customer.ID, other.ID} {
		_, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
			CustomerID: customerID,
			Items:      []DocumentItemInput{{Description: "Work", Quantity: 1, UnitPrice: decptr("10")}},
		})
		require.NoError(t, err)
	}

	invoices, total, err := svc.List(context.Background(), fx.workspace.ID, InvoiceFilter{}, ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, invoices, 3)

	invoices, total, err = svc.List(context.Background(), fx.workspace.ID, InvoiceFilter{CustomerID: other.ID}, ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, invoices, 1)
	assert.Equal(t, other.ID, invoices[0].CustomerID)

	// Lookups never cross the workspace boundary.
	_, err = svc.Get(context.Background(), "other-workspace", invoices[0].ID)
	requireErrCode(t, err, "INVOICE_NOT_FOUND")
}
