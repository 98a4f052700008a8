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

// EstimateHandler exposes estimate lifecycle endpoints.
type EstimateHandler struct {
	estimates *services.EstimateService
}

// NewEstimateHandler constructs an EstimateHandler.
func NewEstimateHandler(estimates *services.EstimateService) (*EstimateHandler, error) {
	if estimates == nil {
		return nil, errors.New("estimate handler: estimate service is required")
	}
	return &EstimateHandler{estimates: estimates}, nil
}

type createEstimateRequest struct {
	CustomerID string                `json:"customer_id" validate:"required"`
	TaxRate    decimal.Decimal       `json:"tax_rate"`
	IssuedAt   *time.Time            `json:"issued_at"`
	ExpiresAt  *time.Time            `json:"expires_at"`
	Items      []documentItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Create issues a new draft estimate.
func (h *EstimateHandler) Create(c *gin.Context) {
	workspaceID, userID, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req createEstimateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	estimate, err := h.estimates.Create(requestContext(c), workspaceID, userID, services.CreateEstimateInput{
		CustomerID: req.CustomerID,
		TaxRate:    req.TaxRate,
		IssuedAt:   req.IssuedAt,
		ExpiresAt:  req.ExpiresAt,
		Items:      toItemInputs(req.Items),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, estimate)
}

// List returns workspace estimates, filterable by status and customer.
func (h *EstimateHandler) List(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	opts := listOptions(c)
	filter := services.EstimateFilter{
		Status:     models.EstimateStatus(c.Query("status")),
		CustomerID: c.Query("customer_id"),
	}

	estimates, total, err := h.estimates.List(requestContext(c), workspaceID, filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, estimates, listMeta(opts, total))
}

// Get returns a single estimate with items.
func (h *EstimateHandler) Get(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	estimate, err := h.estimates.Get(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, estimate)
}

type transitionEstimateRequest struct {
	Status string `json:"status" validate:"required,oneof=sent approved rejected"`
}

// Transition moves an estimate along its lifecycle.
func (h *EstimateHandler) Transition(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req transitionEstimateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	estimate, err := h.estimates.Transition(requestContext(c), workspaceID, c.Param("id"), models.EstimateStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, estimate)
}

// Convert turns an approved estimate into an invoice.
func (h *EstimateHandler) Convert(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	invoice, err := h.estimates.Convert(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invoice)
}

// Delete removes a draft or rejected estimate.
func (h *EstimateHandler) Delete(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if err := h.estimates.Delete(requestContext(c), workspaceID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
