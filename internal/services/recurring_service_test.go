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

func mustRecurringService(t *testing.T, fx *fixture, opts ...RecurringOption) *RecurringService {
	t.Helper()
	svc, err := NewRecurringService(fx.db, opts...)
	require.NoError(t, err)
	return svc
}

func TestRecurringCreateValidation(t *testing.T) {
	fx := newFixture(t)
	svc := mustRecurringService(t, fx)
	nextRun := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  "yearly",
		NextRun:    nextRun,
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	requireErrCode(t, err, "BAD_REQUEST")

	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyMonthly,
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	requireErrCode(t, err, "BAD_REQUEST")

	template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyMonthly,
		NextRun:    nextRun,
		TaxRate:    decimal.RequireFromString("20"),
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RecurringActive, template.Status)
	assert.True(t, template.NextRun.Equal(nextRun))
}

func TestRecurringUpdate(t *testing.T) {
	fx := newFixture(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc := mustRecurringService(t, fx, WithRecurringClock(fixedClock(now)))

	template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyMonthly,
		NextRun:    now.AddDate(0, 1, 0),
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	require.NoError(t, err)

	weekly := models.FrequencyWeekly
	rescheduled := now.AddDate(0, 0, 3)
	updated, err := svc.Update(context.Background(), fx.workspace.ID, template.ID, UpdateTemplateInput{
		Frequency: &weekly,
		NextRun:   &rescheduled,
	})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyWeekly, updated.Frequency)
	assert.True(t, updated.NextRun.Equal(rescheduled))
	assert.Equal(t, models.RecurringActive, updated.Status, "omitted fields stay put")

	// Reschedules may only point forward.
	past := now.Add(-time.Hour)
	_, err = svc.Update(context.Background(), fx.workspace.ID, template.ID, UpdateTemplateInput{NextRun: &past})
	requireErrCode(t, err, "BAD_REQUEST")

	bad := models.Frequency("yearly")
	_, err = svc.Update(context.Background(), fx.workspace.ID, template.ID, UpdateTemplateInput{Frequency: &bad})
	requireErrCode(t, err, "BAD_REQUEST")

	// Empty input is a no-op, not an error.
	unchanged, err := svc.Update(context.Background(), fx.workspace.ID, template.ID, UpdateTemplateInput{})
	require.NoError(t, err)
	assert.True(t, unchanged.NextRun.Equal(rescheduled))

	_, err = svc.Update(context.Background(), "other-workspace", template.ID, UpdateTemplateInput{})
	requireErrCode(t, err, "TEMPLATE_NOT_FOUND")
}

func TestRecurringFreezesPrices(t *testing.T) {
	fx := newFixture(t)
	product := seedProduct(t, fx.db, fx.workspace.ID, "30", 100)
	svc := mustRecurringService(t, fx)

	template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyMonthly,
		NextRun:    time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		Items:      []DocumentItemInput{{ProductID: &product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	// Catalog price changes after definition must not affect the template.
	require.NoError(t, fx.db.Model(&product).Update("price", decimal.RequireFromString("99")).Error)

	invoice, err := svc.RunTemplate(context.Background(), template.ID)
	require.NoError(t, err)
	assert.True(t, invoice.Subtotal.Equal(decimal.RequireFromString("60")), "subtotal %s", invoice.Subtotal)
}

func TestRunTemplateAdvancesSchedule(t *testing.T) {
	fx := newFixture(t)
	runAt := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc := mustRecurringService(t, fx, WithRecurringClock(fixedClock(runAt)))

	nextRun := time.Date(2026, 6, 30, 9, 0, 0, 0, time.UTC)
	template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyWeekly,
		NextRun:    nextRun,
		TaxRate:    decimal.RequireFromString("20"),
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	require.NoError(t, err)

	invoice, err := svc.RunTemplate(context.Background(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePending, invoice.Status)
	assert.True(t, invoice.Subtotal.Equal(decimal.RequireFromString("30")))
	assert.True(t, invoice.TaxAmount.Equal(decimal.RequireFromString("6")))
	assert.True(t, invoice.Total.Equal(decimal.RequireFromString("36")))

	reloaded, err := svc.Get(context.Background(), fx.workspace.ID, template.ID)
	require.NoError(t, err)

	// NextRun advances from the scheduled slot, not from the run time.
	assert.True(t, reloaded.NextRun.Equal(nextRun.AddDate(0, 0, 7)), "next run %s", reloaded.NextRun)
	require.NotNil(t, reloaded.LastRunAt)
	assert.True(t, reloaded.LastRunAt.Equal(runAt))
}

func TestRunTemplateRejectsInactive(t *testing.T) {
	fx := newFixture(t)
	svc := mustRecurringService(t, fx)

	template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyDaily,
		NextRun:    time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), fx.workspace.ID, template.ID, models.RecurringPaused)
	require.NoError(t, err)

	_, err = svc.RunTemplate(context.Background(), template.ID)
	requireErrCode(t, err, "INVALID_STATE")
}

func TestRunTemplateSingleEmissionPerOccurrence(t *testing.T) {
	fx := newFixture(t)
	svc := mustRecurringService(t, fx)

	nextRun := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyDaily,
		NextRun:    nextRun,
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	require.NoError(t, err)

	_, err = svc.RunTemplate(context.Background(), template.ID)
	require.NoError(t, err)

	// The occurrence is consumed: the template is no longer due at the old
	// slot, so a second sweep at the same instant emits nothing.
	due, err := svc.ListDue(context.Background(), nextRun)
	require.NoError(t, err)
	assert.Empty(t, due)

	var invoices int64
	require.NoError(t, fx.db.Model(&models.Invoice{}).Count(&invoices).Error)
	assert.EqualValues(t, 1, invoices)
}

func TestListDue(t *testing.T) {
	fx := newFixture(t)
	svc := mustRecurringService(t, fx)

	asOf := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	mk := func(next time.Time) *models.RecurringInvoice {
		template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
			CustomerID: fx.customer.ID,
			Frequency:  models.FrequencyDaily,
			NextRun:    next,
			Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
		})
		require.NoError(t, err)
		return template
	}

	older := mk(asOf.Add(-48 * time.Hour))
	newer := mk(asOf.Add(-time.Hour))
	mk(asOf.Add(time.Hour)) // future, not due

	paused := mk(asOf.Add(-time.Hour))
	_, err := svc.SetStatus(context.Background(), fx.workspace.ID, paused.ID, models.RecurringPaused)
	require.NoError(t, err)

	due, err := svc.ListDue(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, older.ID, due[0].ID)
	assert.Equal(t, newer.ID, due[1].ID)
	require.NotEmpty(t, due[0].Items, "due templates carry their items")
}

func TestRecurringDelete(t *testing.T) {
	fx := newFixture(t)
	svc := mustRecurringService(t, fx)

	template, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateTemplateInput{
		CustomerID: fx.customer.ID,
		Frequency:  models.FrequencyDaily,
		NextRun:    time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		Items:      []DocumentItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: decptr("30")}},
	})
	require.NoError(t, err)

	invoice, err := svc.RunTemplate(context.Background(), template.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), fx.workspace.ID, template.ID))
	_, err = svc.Get(context.Background(), fx.workspace.ID, template.ID)
	requireErrCode(t, err, "TEMPLATE_NOT_FOUND")

	// Invoices generated earlier survive the template deletion.
	var count int64
	require.NoError(t, fx.db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
