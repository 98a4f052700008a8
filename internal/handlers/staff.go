package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/billcraft/billcraft/internal/services"
	"github.com/billcraft/billcraft/pkg/response"
)

// StaffHandler exposes staff directory endpoints.
type StaffHandler struct {
	staff *services.StaffService
}

// NewStaffHandler constructs a StaffHandler.
func NewStaffHandler(staff *services.StaffService) (*StaffHandler, error) {
	if staff == nil {
		return nil, errors.New("staff handler: staff service is required")
	}
	return &StaffHandler{staff: staff}, nil
}

type staffRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,max=40"`
	Position *string `json:"position" validate:"omitempty,max=120"`
}

func (r staffRequest) toInput() services.StaffInput {
	return services.StaffInput{
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone,
		Position: r.Position,
	}
}

// Create adds a staff member to the workspace directory.
func (h *StaffHandler) Create(c *gin.Context) {
	workspaceID, userID, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req staffRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.staff.Create(requestContext(c), workspaceID, userID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, member)
}

// List returns the workspace's staff members.
func (h *StaffHandler) List(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	opts := listOptions(c)
	members, total, err := h.staff.List(requestContext(c), workspaceID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, members, listMeta(opts, total))
}

// Get returns a single staff member.
func (h *StaffHandler) Get(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	member, err := h.staff.Get(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, member)
}

// Update changes staff member fields.
func (h *StaffHandler) Update(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req staffRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.staff.Update(requestContext(c), workspaceID, c.Param("id"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, member)
}

// Delete removes a staff member.
func (h *StaffHandler) Delete(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if err := h.staff.Delete(requestContext(c), workspaceID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
