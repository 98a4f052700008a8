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

// ErrCustomerNotFound indicates no customer matches within the workspace.
var ErrCustomerNotFound = apperrors.New("CUSTOMER_NOT_FOUND", "Customer not found", http.StatusNotFound)

// CustomerService manages workspace-scoped customer records.
type CustomerService struct {
	db *gorm.DB
}

// NewCustomerService constructs a CustomerService instance.
func NewCustomerService(db *gorm.DB) (*CustomerService, error) {
	if db == nil {
		return nil, errors.New("customer service: db is required")
	}
	return &CustomerService{db: db}, nil
}

// CustomerInput carries customer fields for create and update. On update, nil
// pointers leave the field unchanged.
type CustomerInput struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
}

// Create inserts a customer into the workspace.
func (s *CustomerService) Create(ctx context.Context, workspaceID, createdBy string, input CustomerInput) (*models.Customer, error) {
	ctx = ensureContext(ctx)

	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.NewBadRequest("customer name is required")
	}

	customer := &models.Customer{
		WorkspaceID: workspaceID,
		CreatedByID: createdBy,
		Name:        strings.TrimSpace(*input.Name),
	}
	if input.Email != nil {
		customer.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		customer.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Address != nil {
		customer.Address = strings.TrimSpace(*input.Address)
	}

	if err := s.db.WithContext(ctx).Create(customer).Error; err != nil {
		return nil, fmt.Errorf("customer service: create: %w", err)
	}
	return customer, nil
}

// Get loads a customer by ID within the workspace.
func (s *CustomerService) Get(ctx context.Context, workspaceID, id string) (*models.Customer, error) {
	ctx = ensureContext(ctx)

	var customer models.Customer
	err := s.db.WithContext(ctx).
		First(&customer, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("customer service: get: %w", err)
	}
	return &customer, nil
}

// List returns workspace customers with pagination and optional name/email search.
func (s *CustomerService) List(ctx context.Context, workspaceID string, opts ListOptions) ([]models.Customer, int64, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()

	query := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("workspace_id = ?", workspaceID)
	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		query = query.Where("name LIKE ? OR email LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("customer service: count: %w", err)
	}

	var customers []models.Customer
	err := paginate(query, opts).Order("created_at DESC").Find(&customers).Error
	if err != nil {
		return nil, 0, fmt.Errorf("customer service: list: %w", err)
	}
	return customers, total, nil
}

// Update applies the given fields to a workspace customer.
func (s *CustomerService) Update(ctx context.Context, workspaceID, id string, input CustomerInput) (*models.Customer, error) {
	ctx = ensureContext(ctx)

	customer, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("customer name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Address != nil {
		updates["address"] = strings.TrimSpace(*input.Address)
	}

	if len(updates) == 0 {
		return customer, nil
	}
	if err := s.db.WithContext(ctx).Model(customer).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("customer service: update: %w", err)
	}
	return s.Get(ctx, workspaceID, id)
}

// Delete removes a customer from the workspace. Historical invoices retain
// their customer reference through the invoice's own snapshot fields.
func (s *CustomerService) Delete(ctx context.Context, workspaceID, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Delete(&models.Customer{})
	if result.Error != nil {
		return fmt.Errorf("customer service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
