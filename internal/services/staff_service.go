package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
)

// ErrStaffNotFound indicates no staff member matches within the workspace.
var ErrStaffNotFound = apperrors.New("STAFF_NOT_FOUND", "Staff member not found", http.StatusNotFound)

// StaffService manages workspace personnel records. These are directory
// entries, not platform accounts.
type StaffService struct {
	db *gorm.DB
}

// NewStaffService constructs a StaffService instance.
func NewStaffService(db *gorm.DB) (*StaffService, error) {
	if db == nil {
		return nil, errors.New("staff service: db is required")
	}
	return &StaffService{db: db}, nil
}

// StaffInput carries staff member fields for create and update.
type StaffInput struct {
	Name     *string
	Email    *string
	Phone    *string
	Position *string
}

// Create inserts a staff member into the workspace directory.
func (s *StaffService) Create(ctx context.Context, workspaceID, createdBy string, input StaffInput) (*models.StaffMember, error) {
	ctx = ensureContext(ctx)

	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.NewBadRequest("staff member name is required")
	}

	member := &models.StaffMember{
		WorkspaceID: workspaceID,
		CreatedByID: createdBy,
		Name:        strings.TrimSpace(*input.Name),
	}
	if input.Email != nil {
		member.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		member.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Position != nil {
		member.Position = strings.TrimSpace(*input.Position)
	}

	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, fmt.Errorf("staff service: create: %w", err)
	}
	return member, nil
}

// Get loads a staff member by ID within the workspace.
func (s *StaffService) Get(ctx context.Context, workspaceID, id string) (*models.StaffMember, error) {
	ctx = ensureContext(ctx)

	var member models.StaffMember
	err := s.db.WithContext(ctx).
		First(&member, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStaffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("staff service: get: %w", err)
	}
	return &member, nil
}

// List returns workspace staff members with pagination and optional search.
func (s *StaffService) List(ctx context.Context, workspaceID string, opts ListOptions) ([]models.StaffMember, int64, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()

	query := s.db.WithContext(ctx).Model(&models.StaffMember{}).
		Where("workspace_id = ?", workspaceID)
	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		query = query.Where("name LIKE ? OR position LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("staff service: count: %w", err)
	}

	var members []models.StaffMember
	err := paginate(query, opts).Order("created_at DESC").Find(&members).Error
	if err != nil {
		return nil, 0, fmt.Errorf("staff service: list: %w", err)
	}
	return members, total, nil
}

// Update applies the given fields to a staff member.
func (s *StaffService) Update(ctx context.Context, workspaceID, id string, input StaffInput) (*models.StaffMember, error) {
	ctx = ensureContext(ctx)

	member, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("staff member name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Position != nil {
		updates["position"] = strings.TrimSpace(*input.Position)
	}

	if len(updates) == 0 {
		return member, nil
	}
	if err := s.db.WithContext(ctx).Model(member).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("staff service: update: %w", err)
	}
	return s.Get(ctx, workspaceID, id)
}

// Delete removes a staff member from the workspace directory.
func (s *StaffService) Delete(ctx context.Context, workspaceID, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Delete(&models.StaffMember{})
	if result.Error != nil {
		return fmt.Errorf("staff service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaffNotFound
	}
	return nil
}
