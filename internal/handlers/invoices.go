package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/internal/services"
	"github.com/billcraft/billcraft/pkg/response"
)

// InvoiceHandler exposes invoice lifecycle endpoints.
type InvoiceHandler struct {
	invoices *services.InvoiceService
}

// NewInvoiceHandler constructs an InvoiceHandler.
func NewInvoiceHandler(invoices *services.InvoiceService) (*InvoiceHandler, error) {
	if invoices == nil {
		return nil, errors.New("invoice handler: invoice service is required")
	}
	return &InvoiceHandler{invoices: invoices}, nil
}

type documentItemRequest struct {
	ProductID   *string          `json:"product_id"`
	Description string           `json:"description" validate:"omitempty,max=2000"`
	Quantity    int              `json:"quantity" validate:"required,min=1"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
}

func toItemInputs(items []documentItemRequest) []services.DocumentItemInput {
	inputs := make([]services.DocumentItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, services.DocumentItemInput{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return inputs
}

type createInvoiceRequest struct {
	CustomerID string                `json:"customer_id" validate:"required"`
	TaxRate    decimal.Decimal       `json:"tax_rate"`
	IssuedAt   *time.Time            `json:"issued_at"`
	DueAt      *time.Time            `json:"due_at"`
	Items      []documentItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Create issues a new invoice with server-computed totals.
func (h *InvoiceHandler) Create(c *gin.Context) {
	workspaceID, userID, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invoice, err := h.invoices.Create(requestContext(c), workspaceID, userID, services.CreateInvoiceInput{
		CustomerID: req.CustomerID,
		TaxRate:    req.TaxRate,
		IssuedAt:   req.IssuedAt,
		DueAt:      req.DueAt,
		Items:      toItemInputs(req.Items),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invoice)
}

// List returns workspace invoices, filterable by status and customer.
func (h *InvoiceHandler) List(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	opts := listOptions(c)
	filter := services.InvoiceFilter{
		Status:     models.InvoiceStatus(c.Query("status")),
		CustomerID: c.Query("customer_id"),
	}

	invoices, total, err := h.invoices.List(requestContext(c), workspaceID, filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, invoices, listMeta(opts, total))
}

// Get returns a single invoice with items and payments.
func (h *InvoiceHandler) Get(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	invoice, err := h.invoices.Get(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}

type recordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Method string          `json:"method" validate:"omitempty,max=60"`
	Note   string          `json:"note" validate:"omitempty,max=500"`
	PaidAt *time.Time      `json:"paid_at"`
}

// RecordPayment appends a payment to an invoice.
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req recordPaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invoice, err := h.invoices.RecordPayment(requestContext(c), workspaceID, c.Param("id"), services.PaymentInput{
		Amount: req.Amount,
		Method: req.Method,
		Note:   req.Note,
		PaidAt: req.PaidAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}

// Void cancels an invoice.
func (h *InvoiceHandler) Void(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	invoice, err := h.invoices.Void(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}
