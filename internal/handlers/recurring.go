package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/billcraft/billcraft/internal/app/scheduler"
	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/internal/services"
	"github.com/billcraft/billcraft/pkg/response"
)

// RecurringHandler exposes recurring invoice template endpoints.
type RecurringHandler struct {
	recurring *services.RecurringService
	sweeper   *scheduler.Sweeper
}

// NewRecurringHandler constructs a RecurringHandler. The sweeper is optional;
// without it the manual run endpoint is unavailable.
func NewRecurringHandler(recurring *services.RecurringService, sweeper *scheduler.Sweeper) (*RecurringHandler, error) {
	if recurring == nil {
		return nil, errors.New("recurring handler: recurring service is required")
	}
	return &RecurringHandler{recurring: recurring, sweeper: sweeper}, nil
}

type createTemplateRequest struct {
	CustomerID string                `json:"customer_id" validate:"required"`
	Frequency  string                `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	NextRun    time.Time             `json:"next_run" validate:"required"`
	TaxRate    decimal.Decimal       `json:"tax_rate"`
	Items      []documentItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Create defines a new recurring template.
func (h *RecurringHandler) Create(c *gin.Context) {
	workspaceID, userID, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req createTemplateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	template, err := h.recurring.Create(requestContext(c), workspaceID, userID, services.CreateTemplateInput{
		CustomerID: req.CustomerID,
		Frequency:  models.Frequency(req.Frequency),
		NextRun:    req.NextRun,
		TaxRate:    req.TaxRate,
		Items:      toItemInputs(req.Items),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, template)
}

// List returns the workspace's recurring templates.
func (h *RecurringHandler) List(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	opts := listOptions(c)
	templates, total, err := h.recurring.List(requestContext(c), workspaceID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, templates, listMeta(opts, total))
}

// Get returns a single template with items.
func (h *RecurringHandler) Get(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	template, err := h.recurring.Get(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, template)
}

type updateTemplateRequest struct {
	Status    *string    `json:"status" validate:"omitempty,oneof=active paused completed"`
	Frequency *string    `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	NextRun   *time.Time `json:"next_run"`
}

// Update reschedules a template: status, frequency, or the next run time.
func (h *RecurringHandler) Update(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req updateTemplateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateTemplateInput{NextRun: req.NextRun}
	if req.Status != nil {
		status := models.RecurringStatus(*req.Status)
		input.Status = &status
	}
	if req.Frequency != nil {
		frequency := models.Frequency(*req.Frequency)
		input.Frequency = &frequency
	}

	template, err := h.recurring.Update(requestContext(c), workspaceID, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, template)
}

type templateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused completed"`
}

// SetStatus pauses, resumes, or completes a template.
func (h *RecurringHandler) SetStatus(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req templateStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	template, err := h.recurring.SetStatus(requestContext(c), workspaceID, c.Param("id"), models.RecurringStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, template)
}

// Run generates the template's next invoice immediately.
func (h *RecurringHandler) Run(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if h.sweeper == nil {
		response.Error(c, errors.New("manual runs are unavailable"))
		return
	}

	invoice, err := h.sweeper.RunTemplateNow(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invoice)
}

// Delete removes a template.
func (h *RecurringHandler) Delete(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if err := h.recurring.Delete(requestContext(c), workspaceID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
