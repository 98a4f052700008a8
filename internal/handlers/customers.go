package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/billcraft/billcraft/internal/services"
	"github.com/billcraft/billcraft/pkg/response"
)

// CustomerHandler exposes customer CRUD endpoints.
type CustomerHandler struct {
	customers *services.CustomerService
}

// NewCustomerHandler constructs a CustomerHandler.
func NewCustomerHandler(customers *services.CustomerService) (*CustomerHandler, error) {
	if customers == nil {
		return nil, errors.New("customer handler: customer service is required")
	}
	return &CustomerHandler{customers: customers}, nil
}

type customerRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone" validate:"omitempty,max=40"`
	Address *string `json:"address" validate:"omitempty,max=500"`
}

func (r customerRequest) toInput() services.CustomerInput {
	return services.CustomerInput{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Address: r.Address,
	}
}

// Create adds a customer to the active workspace.
func (h *CustomerHandler) Create(c *gin.Context) {
	workspaceID, userID, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req customerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	customer, err := h.customers.Create(requestContext(c), workspaceID, userID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, customer)
}

// List returns the workspace's customers.
func (h *CustomerHandler) List(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	opts := listOptions(c)
	customers, total, err := h.customers.List(requestContext(c), workspaceID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, customers, listMeta(opts, total))
}

// Get returns a single customer.
func (h *CustomerHandler) Get(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	customer, err := h.customers.Get(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, customer)
}

// Update changes customer fields.
func (h *CustomerHandler) Update(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req customerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	customer, err := h.customers.Update(requestContext(c), workspaceID, c.Param("id"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, customer)
}

// Delete removes a customer.
func (h *CustomerHandler) Delete(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if err := h.customers.Delete(requestContext(c), workspaceID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
