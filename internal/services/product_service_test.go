package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductCRUD(t *testing.T) {
	fx := newFixture(t)
	svc, err := NewProductService(fx.db)
	require.NoError(t, err)

	stock := 12
	product, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, ProductInput{
		Name:          strptr("Widget"),
		Price:         decptr("19.99"),
		StockQuantity: &stock,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, product.StockQuantity)

	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, ProductInput{
		Name:  strptr("Freebie"),
		Price: decptr("-1"),
	})
	requireErrCode(t, err, "BAD_REQUEST")

	negative := -1
	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, ProductInput{
		Name:          strptr("Ghost"),
		Price:         decptr("1"),
		StockQuantity: &negative,
	})
	requireErrCode(t, err, "BAD_REQUEST")

	updated, err := svc.Update(context.Background(), fx.workspace.ID, product.ID, ProductInput{
		Price: decptr("24.99"),
	})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("24.99")))
	assert.Equal(t, 12, updated.StockQuantity)

	require.NoError(t, svc.Delete(context.Background(), fx.workspace.ID, product.ID))
	_, err = svc.Get(context.Background(), fx.workspace.ID, product.ID)
	requireErrCode(t, err, "PRODUCT_NOT_FOUND")
}

func TestExpenseCRUD(t *testing.T) {
	fx := newFixture(t)
	svc, err := NewExpenseService(fx.db)
	require.NoError(t, err)

	expense, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, ExpenseInput{
		Category:    strptr("software"),
		Description: strptr("Accounting tool subscription"),
		Amount:      decptr("49"),
	})
	require.NoError(t, err)
	assert.False(t, expense.IncurredAt.IsZero(), "incurred_at defaults to now")

	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, ExpenseInput{
		Description: strptr("Negative"),
		Amount:      decptr("-5"),
	})
	requireErrCode(t, err, "BAD_REQUEST")

	updated, err := svc.Update(context.Background(), fx.workspace.ID, expense.ID, ExpenseInput{
		Amount: decptr("59"),
	})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("59")))

	require.NoError(t, svc.Delete(context.Background(), fx.workspace.ID, expense.ID))
	err = svc.Delete(context.Background(), fx.workspace.ID, expense.ID)
	requireErrCode(t, err, "EXPENSE_NOT_FOUND")
}

func TestStaffCRUD(t *testing.T) {
	fx := newFixture(t)
	svc, err := NewStaffService(fx.db)
	require.NoError(t, err)

	member, err := svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, StaffInput{
		Name:     strptr("Casey Nguyen"),
		Email:    strptr("casey@example.com"),
		Position: strptr("Accountant"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Accountant", member.Position)

	_, err = svc.Create(context.Background(), fx.workspace.ID, fx.user.ID, StaffInput{})
	requireErrCode(t, err, "BAD_REQUEST")

	updated, err := svc.Update(context.Background(), fx.workspace.ID, member.ID, StaffInput{
		Phone: strptr("555-0199"),
	})
	require.NoError(t, err)
	assert.Equal(t, "555-0199", updated.Phone)

	require.NoError(t, svc.Delete(context.Background(), fx.workspace.ID, member.ID))
	_, err = svc.Get(context.Background(), fx.workspace.ID, member.ID)
	requireErrCode(t, err, "STAFF_NOT_FOUND")
}
