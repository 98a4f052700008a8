package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
)

// ErrExpenseNotFound indicates no expense matches within the workspace.
var ErrExpenseNotFound = apperrors.New("EXPENSE_NOT_FOUND", "Expense not found", http.StatusNotFound)

// ExpenseService manages workspace spend records.
type ExpenseService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewExpenseService constructs an ExpenseService instance.
func NewExpenseService(db *gorm.DB) (*ExpenseService, error) {
	if db == nil {
		return nil, errors.New("expense service: db is required")
	}
	return &ExpenseService{db: db, now: time.Now}, nil
}

// ExpenseInput carries expense fields for create and update.
type ExpenseInput struct {
	Category    *string
	Description *string
	Amount      *decimal.Decimal
	IncurredAt  *time.Time
}

// Create records an expense against the workspace. IncurredAt defaults to now
// when omitted.
func (s *ExpenseService) Create(ctx context.Context, workspaceID, createdBy string, input ExpenseInput) (*models.Expense, error) {
	ctx = ensureContext(ctx)

	if input.Description == nil || strings.TrimSpace(*input.Description) == "" {
		return nil, apperrors.NewBadRequest("expense description is required")
	}
	if input.Amount == nil || !input.Amount.IsPositive() {
		return nil, apperrors.NewBadRequest("expense amount must be positive")
	}

	expense := &models.Expense{
		WorkspaceID: workspaceID,
		CreatedByID: createdBy,
		Description: strings.TrimSpace(*input.Description),
		Amount:      *input.Amount,
		IncurredAt:  s.now(),
	}
	if input.Category != nil {
		expense.Category = strings.TrimSpace(*input.Category)
	}
	if input.IncurredAt != nil {
		expense.IncurredAt = *input.IncurredAt
	}

	if err := s.db.WithContext(ctx).Create(expense).Error; err != nil {
		return nil, fmt.Errorf("expense service: create: %w", err)
	}
	return expense, nil
}

// Get loads an expense by ID within the workspace.
func (s *ExpenseService) Get(ctx context.Context, workspaceID, id string) (*models.Expense, error) {
	ctx = ensureContext(ctx)

	var expense models.Expense
	err := s.db.WithContext(ctx).
		First(&expense, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("expense service: get: %w", err)
	}
	return &expense, nil
}

// List returns workspace expenses with pagination and optional category or
// description search.
func (s *ExpenseService) List(ctx context.Context, workspaceID string, opts ListOptions) ([]models.Expense, int64, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()

	query := s.db.WithContext(ctx).Model(&models.Expense{}).
		Where("workspace_id = ?", workspaceID)
	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		query = query.Where("category LIKE ? OR description LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("expense service: count: %w", err)
	}

	var expenses []models.Expense
	err := paginate(query, opts).Order("incurred_at DESC").Find(&expenses).Error
	if err != nil {
		return nil, 0, fmt.Errorf("expense service: list: %w", err)
	}
	return expenses, total, nil
}

// Update applies the given fields to a workspace expense.
func (s *ExpenseService) Update(ctx context.Context, workspaceID, id string, input ExpenseInput) (*models.Expense, error) {
	ctx = ensureContext(ctx)

	expense, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Category != nil {
		updates["category"] = strings.TrimSpace(*input.Category)
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if desc == "" {
			return nil, apperrors.NewBadRequest("expense description cannot be empty")
		}
		updates["description"] = desc
	}
	if input.Amount != nil {
		if !input.Amount.IsPositive() {
			return nil, apperrors.NewBadRequest("expense amount must be positive")
		}
		updates["amount"] = *input.Amount
	}
	if input.IncurredAt != nil {
		updates["incurred_at"] = *input.IncurredAt
	}

	if len(updates) == 0 {
		return expense, nil
	}
	if err := s.db.WithContext(ctx).Model(expense).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("expense service: update: %w", err)
	}
	return s.Get(ctx, workspaceID, id)
}

// Delete removes an expense from the workspace.
func (s *ExpenseService) Delete(ctx context.Context, workspaceID, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Delete(&models.Expense{})
	if result.Error != nil {
		return fmt.Errorf("expense service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}
