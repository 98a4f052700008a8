package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billcraft/billcraft/internal/models"
)

func mustEstimateService(t *testing.T, fx *fixture, opts ...EstimateOption) *EstimateService {
	t.Helper()
	svc, err := NewEstimateService(fx.db, opts...)
	require.NoError(t, err)
	return svc
}

func createEstimate(t *testing.T, fx *fixture, svc *EstimateService, items ...DocumentItemInput) *models.Estimate {
	t.Helper()
	if len(items) == 0 {
		items = []DocumentItemInput{{Description: "Consulting", Quantity: 1, UnitPrice: decptr("500")}}
	}
	estimate, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateEstimateInput{
		CustomerID: fx.customer.ID,
		TaxRate:    decimal.RequireFromString("10"),
		Items:      items,
	})
	require.NoError(t, err)
	return estimate
}

func approve(t *testing.T, fx *fixture, svc *EstimateService, id string) {
	t.Helper()
	_, err := svc.Transition(context.Background(), fx.workspace.ID, id, models.EstimateSent)
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), fx.workspace.ID, id, models.EstimateApproved)
	require.NoError(t, err)
}

func TestEstimateCreate(t *testing.T) {
	fx := newFixture(t)
	svc := mustEstimateService(t, fx)

	estimate := createEstimate(t, fx, svc)
	assert.Equal(t, "EST-000001", estimate.Number)
	assert.Equal(t, models.EstimateDraft, estimate.Status)
	assert.True(t, estimate.Subtotal.Equal(decimal.RequireFromString("500")))
	assert.True(t, estimate.TaxAmount.Equal(decimal.RequireFromString("50")))
	assert.True(t, estimate.Total.Equal(decimal.RequireFromString("550")))
}

func TestEstimateTransitions(t *testing.T) {
	fx := newFixture(t)
	svc := mustEstimateService(t, fx)
	estimate := createEstimate(t, fx, svc)

	// Draft cannot jump straight to approved.
	_, err := svc.Transition(context.Background(), fx.workspace.ID, estimate.ID, models.EstimateApproved)
	requireErrCode(t, err, "INVALID_STATE")

	sent, err := svc.Transition(context.Background(), fx.workspace.ID, estimate.ID, models.EstimateSent)
	require.NoError(t, err)
	assert.Equal(t, models.EstimateSent, sent.Status)

	rejected, err := svc.Transition(context.Background(), fx.workspace.ID, estimate.ID, models.EstimateRejected)
	require.NoError(t, err)
	assert.Equal(t, models.EstimateRejected, rejected.Status)

	// Rejected is terminal.
	_, err = svc.Transition(context.Background(), fx.workspace.ID, estimate.ID, models.EstimateSent)
	requireErrCode(t, err, "INVALID_STATE")

	// Converted is never a direct transition target.
	_, err = svc.Transition(context.Background(), fx.workspace.ID, estimate.ID, models.EstimateConverted)
	requireErrCode(t, err, "BAD_REQUEST")
}

func TestEstimateConvert(t *testing.T) {
	fx := newFixture(t)
	product := seedProduct(t, fx.db, fx.workspace.ID, "25", 10)
	svc := mustEstimateService(t, fx)

	estimate := createEstimate(t, fx, svc, DocumentItemInput{ProductID: &product.ID, Quantity: 4})
	approve(t, fx, svc, estimate.ID)

	invoice, err := svc.Convert(context.Background(), fx.workspace.ID, estimate.ID)
	require.NoError(t, err)

	// Totals and items carry over verbatim.
	assert.True(t, invoice.Total.Equal(estimate.Total))
	assert.Equal(t, models.InvoicePending, invoice.Status)
	require.Len(t, invoice.Items, 1)
	assert.Equal(t, 4, invoice.Items[0].Quantity)

	reloaded, err := svc.Get(context.Background(), fx.workspace.ID, estimate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstimateConverted, reloaded.Status)
	require.NotNil(t, reloaded.LinkedInvoiceID)
	assert.Equal(t, invoice.ID, *reloaded.LinkedInvoiceID)

	var stocked models.Product
	require.NoError(t, fx.db.First(&stocked, "id = ?", product.ID).Error)
	assert.Equal(t, 6, stocked.StockQuantity)

	// Conversion is one-shot.
	_, err = svc.Convert(context.Background(), fx.workspace.ID, estimate.ID)
	requireErrCode(t, err, "INVALID_STATE")
}

func TestEstimateConvertRequiresApproval(t *testing.T) {
	fx := newFixture(t)
	svc := mustEstimateService(t, fx)
	estimate := createEstimate(t, fx, svc)

	_, err := svc.Convert(context.Background(), fx.workspace.ID, estimate.ID)
	requireErrCode(t, err, "INVALID_STATE")
}

func TestEstimateConvertStockGuard(t *testing.T) {
	fx := newFixture(t)
	product := seedProduct(t, fx.db, fx.workspace.ID, "25", 5)
	svc := mustEstimateService(t, fx)

	first := createEstimate(t, fx, svc, DocumentItemInput{ProductID: &product.ID, Quantity: 3})
	second := createEstimate(t, fx, svc, DocumentItemInput{ProductID: &product.ID, Quantity: 3})
	approve(t, fx, svc, first.ID)
	approve(t, fx, svc, second.ID)

	_, err := svc.Convert(context.Background(), fx.workspace.ID, first.ID)
	require.NoError(t, err)

	// Only 2 units left; the second conversion must fail and roll back fully.
	_, err = svc.Convert(context.Background(), fx.workspace.ID, second.ID)
	requireErrCode(t, err, "INSUFFICIENT_STOCK")

	var stocked models.Product
	require.NoError(t, fx.db.First(&stocked, "id = ?", product.ID).Error)
	assert.Equal(t, 2, stocked.StockQuantity)

	reloaded, err := svc.Get(context.Background(), fx.workspace.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstimateApproved, reloaded.Status)
	assert.Nil(t, reloaded.LinkedInvoiceID)

	var invoices int64
	require.NoError(t, fx.db.Model(&models.Invoice{}).Count(&invoices).Error)
	assert.EqualValues(t, 1, invoices)
}

func TestEstimateDelete(t *testing.T) {
	fx := newFixture(t)
	svc := mustEstimateService(t, fx)

	draft := createEstimate(t, fx, svc)
	require.NoError(t, svc.Delete(context.Background(), fx.workspace.ID, draft.ID))
	_, err := svc.Get(context.Background(), fx.workspace.ID, draft.ID)
	requireErrCode(t, err, "ESTIMATE_NOT_FOUND")

	sent := createEstimate(t, fx, svc)
	_, err = svc.Transition(context.Background(), fx.workspace.ID, sent.ID, models.EstimateSent)
	require.NoError(t, err)
	err = svc.Delete(context.Background(), fx.workspace.ID, sent.ID)
	requireErrCode(t, err, "INVALID_STATE")

	// Rejected estimates can be cleaned up.
	_, err = svc.Transition(context.Background(), fx.workspace.ID, sent.ID, models.EstimateRejected)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), fx.workspace.ID, sent.ID))
}

func TestEstimateNumbersNeverReissued(t *testing.T) {
	fx := newFixture(t)
	svc := mustEstimateService(t, fx)

	first := createEstimate(t, fx, svc)
	second := createEstimate(t, fx, svc)
	assert.Equal(t, "EST-000001", first.Number)
	assert.Equal(t, "EST-000002", second.Number)

	// Deleting an earlier estimate must not hand its slot to the next create.
	require.NoError(t, svc.Delete(context.Background(), fx.workspace.ID, first.ID))

	third := createEstimate(t, fx, svc)
	assert.Equal(t, "EST-000003", third.Number)
	assert.NotEqual(t, second.Number, third.Number)
}
