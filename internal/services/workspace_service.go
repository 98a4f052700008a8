package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
)

var (
	// ErrWorkspaceNotFound indicates the workspace does not exist.
	ErrWorkspaceNotFound = apperrors.New("WORKSPACE_NOT_FOUND", "Workspace not found", http.StatusNotFound)
	// ErrMemberNotFound indicates no membership matches the request.
	ErrMemberNotFound = apperrors.New("MEMBER_NOT_FOUND", "Member not found", http.StatusNotFound)
	// ErrAlreadyMember signals the user already belongs to the workspace.
	ErrAlreadyMember = apperrors.New("ALREADY_MEMBER", "User is already a member", http.StatusConflict)
	// ErrLastOwner blocks removing or demoting a workspace's only owner.
	ErrLastOwner = apperrors.New("LAST_OWNER", "Workspace must retain at least one owner", http.StatusConflict)
)

// WorkspaceService manages workspaces and their memberships.
type WorkspaceService struct {
	db *gorm.DB
}

// NewWorkspaceService constructs a WorkspaceService instance.
func NewWorkspaceService(db *gorm.DB) (*WorkspaceService, error) {
	if db == nil {
		return nil, errors.New("workspace service: db is required")
	}
	return &WorkspaceService{db: db}, nil
}

// CreateInput captures a new workspace request.
type CreateWorkspaceInput struct {
	Name string
}

// Create provisions a workspace owned by the given user, along with the owner
// membership.
func (s *WorkspaceService) Create(ctx context.Context, ownerID string, input CreateWorkspaceInput) (*models.Workspace, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("workspace name is required")
	}

	workspace := &models.Workspace{
		Name:    name,
		OwnerID: ownerID,
		Plan:    models.PlanFree,
		Status:  models.WorkspaceActive,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(workspace).Error; err != nil {
			return fmt.Errorf("workspace service: create workspace: %w", err)
		}
		membership := &models.Membership{
			UserID:      ownerID,
			WorkspaceID: workspace.ID,
			Role:        models.RoleOwner,
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("workspace service: create membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return workspace, nil
}

// Get loads a workspace by ID.
func (s *WorkspaceService) Get(ctx context.Context, id string) (*models.Workspace, error) {
	ctx = ensureContext(ctx)

	var workspace models.Workspace
	err := s.db.WithContext(ctx).First(&workspace, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("workspace service: get workspace: %w", err)
	}

	return &workspace, nil
}

// UpdateWorkspaceInput carries optional workspace updates. Nil fields are
// left unchanged.
type UpdateWorkspaceInput struct {
	Name     *string
	Settings datatypes.JSON
}

// Update applies name and settings changes to a workspace.
func (s *WorkspaceService) Update(ctx context.Context, id string, input UpdateWorkspaceInput) (*models.Workspace, error) {
	ctx = ensureContext(ctx)

	workspace, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("workspace name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Settings != nil {
		updates["settings"] = input.Settings
	}

	if len(updates) == 0 {
		return workspace, nil
	}

	if err := s.db.WithContext(ctx).Model(workspace).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("workspace service: update workspace: %w", err)
	}

	return s.Get(ctx, id)
}

// ListMembers returns all memberships of a workspace with user details.
func (s *WorkspaceService) ListMembers(ctx context.Context, workspaceID string) ([]models.Membership, error) {
	ctx = ensureContext(ctx)

	var members []models.Membership
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("workspace service: list members: %w", err)
	}

	return members, nil
}

// AddMemberInput identifies the invitee by email and assigns an initial role.
type AddMemberInput struct {
	Email string
	Role  models.Role
}

// AddMember attaches an existing user to the workspace. The invitee must
// already hold a BillCraft account.
func (s *WorkspaceService) AddMember(ctx context.Context, workspaceID string, input AddMemberInput) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if !validRole(input.Role) {
		return nil, apperrors.NewBadRequest("role must be owner, admin, or staff")
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("workspace service: find invitee: %w", err)
	}

	membership := &models.Membership{
		UserID:      user.ID,
		WorkspaceID: workspaceID,
		Role:        input.Role,
	}
	if err := s.db.WithContext(ctx).Create(membership).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("workspace service: add member: %w", err)
	}

	return membership, nil
}

// UpdateMemberRole changes a member's role. Demoting the last owner is
// rejected so the workspace always keeps at least one owner.
func (s *WorkspaceService) UpdateMemberRole(ctx context.Context, workspaceID, userID string, role models.Role) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	if !validRole(role) {
		return nil, apperrors.NewBadRequest("role must be owner, admin, or staff")
	}

	var membership models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&membership, "workspace_id = ? AND user_id = ?", workspaceID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("workspace service: find member: %w", err)
		}

		if membership.Role == models.RoleOwner && role != models.RoleOwner {
			owners, err := s.countOwners(tx, workspaceID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return ErrLastOwner
			}
		}

		if err := tx.Model(&membership).Update("role", role).Error; err != nil {
			return fmt.Errorf("workspace service: update role: %w", err)
		}
		membership.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &membership, nil
}

// RemoveMember detaches a user from the workspace. Removing the last owner is
// rejected. If the removed user had this workspace active, the pointer is
// cleared so stale access cannot persist.
func (s *WorkspaceService) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var membership models.Membership
		err := tx.First(&membership, "workspace_id = ? AND user_id = ?", workspaceID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("workspace service: find member: %w", err)
		}

		if membership.Role == models.RoleOwner {
			owners, err := s.countOwners(tx, workspaceID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return ErrLastOwner
			}
		}

		if err := tx.Delete(&membership).Error; err != nil {
			return fmt.Errorf("workspace service: remove member: %w", err)
		}

		err = tx.Model(&models.User{}).
			Where("id = ? AND active_workspace_id = ?", userID, workspaceID).
			Update("active_workspace_id", nil).Error
		if err != nil {
			return fmt.Errorf("workspace service: clear active workspace: %w", err)
		}
		return nil
	})
}

func (s *WorkspaceService) countOwners(tx *gorm.DB, workspaceID string) (int64, error) {
	var owners int64
	err := tx.Model(&models.Membership{}).
		Where("workspace_id = ? AND role = ?", workspaceID, models.RoleOwner).
		Count(&owners).Error
	if err != nil {
		return 0, fmt.Errorf("workspace service: count owners: %w", err)
	}
	return owners, nil
}

func validRole(role models.Role) bool {
	switch role {
	case models.RoleOwner, models.RoleAdmin, models.RoleStaff:
		return true
	}
	return false
}
