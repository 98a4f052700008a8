package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/billcraft/billcraft/internal/services"
	"github.com/billcraft/billcraft/pkg/response"
)

// ExpenseHandler exposes expense tracking endpoints.
type ExpenseHandler struct {
	expenses *services.ExpenseService
}

// NewExpenseHandler constructs an ExpenseHandler.
func NewExpenseHandler(expenses *services.ExpenseService) (*ExpenseHandler, error) {
	if expenses == nil {
		return nil, errors.New("expense handler: expense service is required")
	}
	return &ExpenseHandler{expenses: expenses}, nil
}

type expenseRequest struct {
	Category    *string          `json:"category" validate:"omitempty,max=120"`
	Description *string          `json:"description" validate:"omitempty,min=1,max=2000"`
	Amount      *decimal.Decimal `json:"amount"`
	IncurredAt  *time.Time       `json:"incurred_at"`
}

func (r expenseRequest) toInput() services.ExpenseInput {
	return services.ExpenseInput{
		Category:    r.Category,
		Description: r.Description,
		Amount:      r.Amount,
		IncurredAt:  r.IncurredAt,
	}
}

// Create records an expense in the active workspace.
func (h *ExpenseHandler) Create(c *gin.Context) {
	workspaceID, userID, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req expenseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	expense, err := h.expenses.Create(requestContext(c), workspaceID, userID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, expense)
}

// List returns the workspace's expenses.
func (h *ExpenseHandler) List(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	opts := listOptions(c)
	expenses, total, err := h.expenses.List(requestContext(c), workspaceID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, expenses, listMeta(opts, total))
}

// Get returns a single expense.
func (h *ExpenseHandler) Get(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	expense, err := h.expenses.Get(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, expense)
}

// Update changes expense fields.
func (h *ExpenseHandler) Update(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req expenseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	expense, err := h.expenses.Update(requestContext(c), workspaceID, c.Param("id"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, expense)
}

// Delete removes an expense.
func (h *ExpenseHandler) Delete(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if err := h.expenses.Delete(requestContext(c), workspaceID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
