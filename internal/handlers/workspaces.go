package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/billcraft/billcraft/internal/middleware"
	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/internal/services"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/response"
)

// WorkspaceHandler exposes workspace and member management endpoints.
type WorkspaceHandler struct {
	workspaces *services.WorkspaceService
}

// NewWorkspaceHandler constructs a WorkspaceHandler.
func NewWorkspaceHandler(workspaces *services.WorkspaceService) (*WorkspaceHandler, error) {
	if workspaces == nil {
		return nil, errors.New("workspace handler: workspace service is required")
	}
	return &WorkspaceHandler{workspaces: workspaces}, nil
}

type createWorkspaceRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// Create provisions a new workspace owned by the caller.
func (h *WorkspaceHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req createWorkspaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	workspace, err := h.workspaces.Create(requestContext(c), userID, services.CreateWorkspaceInput{Name: req.Name})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, workspace)
}

// Current returns the caller's active workspace.
func (h *WorkspaceHandler) Current(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	workspace, err := h.workspaces.Get(requestContext(c), workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, workspace)
}

type updateWorkspaceRequest struct {
	Name     *string        `json:"name" validate:"omitempty,min=1,max=120"`
	Settings datatypes.JSON `json:"settings"`
}

// Update changes the active workspace's name or settings.
func (h *WorkspaceHandler) Update(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req updateWorkspaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	workspace, err := h.workspaces.Update(requestContext(c), workspaceID, services.UpdateWorkspaceInput{
		Name:     req.Name,
		Settings: req.Settings,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, workspace)
}

// ListMembers returns the active workspace's memberships.
func (h *WorkspaceHandler) ListMembers(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	members, err := h.workspaces.ListMembers(requestContext(c), workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, members)
}

type addMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=owner admin staff"`
}

// AddMember invites an existing account into the workspace.
func (h *WorkspaceHandler) AddMember(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req addMemberRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.workspaces.AddMember(requestContext(c), workspaceID, services.AddMemberInput{
		Email: req.Email,
		Role:  models.Role(req.Role),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, member)
}

type updateMemberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=owner admin staff"`
}

// UpdateMemberRole changes a member's workspace role.
func (h *WorkspaceHandler) UpdateMemberRole(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req updateMemberRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.workspaces.UpdateMemberRole(requestContext(c), workspaceID, c.Param("userID"), models.Role(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, member)
}

// RemoveMember detaches a member from the workspace.
func (h *WorkspaceHandler) RemoveMember(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if err := h.workspaces.RemoveMember(requestContext(c), workspaceID, c.Param("userID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
