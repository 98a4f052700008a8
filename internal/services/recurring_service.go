package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/metrics"
)

var (
	// ErrTemplateNotFound indicates no recurring template matches.
	ErrTemplateNotFound = apperrors.New("TEMPLATE_NOT_FOUND", "Recurring invoice not found", http.StatusNotFound)
	// ErrTemplateAdvanced signals another pass already processed this
	// occurrence; the caller should treat the run as a no-op.
	ErrTemplateAdvanced = apperrors.New("TEMPLATE_ADVANCED", "Template already processed for this occurrence", http.StatusConflict)
)

// RecurringOption customises the RecurringService.
type RecurringOption func(*RecurringService)

// WithRecurringClock injects a custom time source, primarily for testing.
func WithRecurringClock(clock func() time.Time) RecurringOption {
	return func(s *RecurringService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RecurringService manages recurring invoice templates and generates concrete
// invoices from them.
type RecurringService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRecurringService constructs a RecurringService instance.
func NewRecurringService(db *gorm.DB, opts ...RecurringOption) (*RecurringService, error) {
	if db == nil {
		return nil, errors.New("recurring service: db is required")
	}

	service := &RecurringService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateTemplateInput captures a new recurring template. Item prices are
// frozen at definition time.
type CreateTemplateInput struct {
	CustomerID string
	Frequency  models.Frequency
	NextRun    time.Time
	TaxRate    decimal.Decimal
	Items      []DocumentItemInput
}

// Create defines a recurring invoice template.
func (s *RecurringService) Create(ctx context.Context, workspaceID, createdBy string, input CreateTemplateInput) (*models.RecurringInvoice, error) {
	ctx = ensureContext(ctx)

	if input.CustomerID == "" {
		return nil, apperrors.NewBadRequest("customer id is required")
	}
	if !models.KnownFrequency(string(input.Frequency)) {
		return nil, apperrors.NewBadRequest("frequency must be daily, weekly, or monthly")
	}
	if input.NextRun.IsZero() {
		return nil, apperrors.NewBadRequest("next run time is required")
	}
	if input.TaxRate.IsNegative() {
		return nil, apperrors.NewBadRequest("tax rate cannot be negative")
	}

	var template *models.RecurringInvoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		err := tx.First(&customer, "id = ? AND workspace_id = ?", input.CustomerID, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCustomerNotFound
		}
		if err != nil {
			return fmt.Errorf("recurring service: load customer: %w", err)
		}

		lines, err := resolveLines(tx, workspaceID, input.Items)
		if err != nil {
			return err
		}

		template = &models.RecurringInvoice{
			WorkspaceID: workspaceID,
			CreatedByID: createdBy,
			CustomerID:  customer.ID,
			Frequency:   input.Frequency,
			Status:      models.RecurringActive,
			NextRun:     input.NextRun,
			TaxRate:     input.TaxRate,
		}
		if err := tx.Create(template).Error; err != nil {
			return fmt.Errorf("recurring service: create template: %w", err)
		}

		for _, line := range lines {
			item := models.RecurringInvoiceItem{
				TemplateID:  template.ID,
				ProductID:   line.ProductID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("recurring service: create item: %w", err)
			}
			template.Items = append(template.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return template, nil
}

// Get loads a template with items and customer.
func (s *RecurringService) Get(ctx context.Context, workspaceID, id string) (*models.RecurringInvoice, error) {
	ctx = ensureContext(ctx)

	var template models.RecurringInvoice
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Customer").
		First(&template, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recurring service: get: %w", err)
	}
	return &template, nil
}

// List returns workspace templates.
func (s *RecurringService) List(ctx context.Context, workspaceID string, opts ListOptions) ([]models.RecurringInvoice, int64, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()

	query := s.db.WithContext(ctx).Model(&models.RecurringInvoice{}).
		Where("workspace_id = ?", workspaceID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("recurring service: count: %w", err)
	}

	var templates []models.RecurringInvoice
	err := paginate(query, opts).
		Preload("Items").
		Order("next_run ASC").
		Find(&templates).Error
	if err != nil {
		return nil, 0, fmt.Errorf("recurring service: list: %w", err)
	}
	return templates, total, nil
}

// UpdateTemplateInput carries optional schedule changes; nil fields are left
// untouched. Items are frozen at creation and cannot be edited here.
type UpdateTemplateInput struct {
	Status    *models.RecurringStatus
	Frequency *models.Frequency
	NextRun   *time.Time
}

// Update reschedules a template. A rescheduled NextRun must lie in the
// future; the sweeper owns all backward-looking runs.
func (s *RecurringService) Update(ctx context.Context, workspaceID, id string, input UpdateTemplateInput) (*models.RecurringInvoice, error) {
	ctx = ensureContext(ctx)

	updates := map[string]any{}
	if input.Status != nil {
		switch *input.Status {
		case models.RecurringActive, models.RecurringPaused, models.RecurringCompleted:
		default:
			return nil, apperrors.NewBadRequest("status must be active, paused, or completed")
		}
		updates["status"] = *input.Status
	}
	if input.Frequency != nil {
		if !models.KnownFrequency(string(*input.Frequency)) {
			return nil, apperrors.NewBadRequest("frequency must be daily, weekly, or monthly")
		}
		updates["frequency"] = *input.Frequency
	}
	if input.NextRun != nil {
		if !input.NextRun.After(s.now()) {
			return nil, apperrors.NewBadRequest("next run time must be in the future")
		}
		updates["next_run"] = *input.NextRun
	}

	template, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return template, nil
	}

	if err := s.db.WithContext(ctx).Model(template).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("recurring service: update: %w", err)
	}
	return s.Get(ctx, workspaceID, id)
}

// SetStatus pauses, resumes, or completes a template.
func (s *RecurringService) SetStatus(ctx context.Context, workspaceID, id string, status models.RecurringStatus) (*models.RecurringInvoice, error) {
	return s.Update(ctx, workspaceID, id, UpdateTemplateInput{Status: &status})
}

// Delete removes a template and its items. Invoices already generated from it
// are untouched.
func (s *RecurringService) Delete(ctx context.Context, workspaceID, id string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.RecurringInvoice
		err := tx.First(&template, "id = ? AND workspace_id = ?", id, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		if err != nil {
			return fmt.Errorf("recurring service: load template: %w", err)
		}

		if err := tx.Where("template_id = ?", template.ID).Delete(&models.RecurringInvoiceItem{}).Error; err != nil {
			return fmt.Errorf("recurring service: delete items: %w", err)
		}
		if err := tx.Delete(&template).Error; err != nil {
			return fmt.Errorf("recurring service: delete: %w", err)
		}
		return nil
	})
}

// ListDue returns active templates whose NextRun is at or before the given
// instant, ordered oldest first.
func (s *RecurringService) ListDue(ctx context.Context, asOf time.Time) ([]models.RecurringInvoice, error) {
	ctx = ensureContext(ctx)

	var templates []models.RecurringInvoice
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND next_run <= ?", models.RecurringActive, asOf).
		Order("next_run ASC").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("recurring service: list due: %w", err)
	}
	return templates, nil
}

// RunTemplate emits one invoice from the template and advances NextRun. The
// advance is a compare-and-swap on the observed NextRun value, so if another
// pass already processed this occurrence the whole transaction rolls back and
// no duplicate invoice survives.
func (s *RecurringService) RunTemplate(ctx context.Context, templateID string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	var invoice *models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.RecurringInvoice
		err := tx.Preload("Items").First(&template, "id = ?", templateID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		if err != nil {
			return fmt.Errorf("recurring service: load template: %w", err)
		}

		if template.Status != models.RecurringActive {
			return apperrors.ErrInvalidState.WithMessage("template is not active")
		}
		if len(template.Items) == 0 {
			return apperrors.ErrInvalidState.WithMessage("template has no items")
		}

		subtotal := decimal.Zero
		for _, item := range template.Items {
			subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		taxAmount := subtotal.Mul(template.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
		total := subtotal.Add(taxAmount)

		number, err := nextDocumentNumber(tx, template.WorkspaceID, invoiceNumberPrefix)
		if err != nil {
			return err
		}

		runAt := s.now()
		invoice = &models.Invoice{
			WorkspaceID: template.WorkspaceID,
			CreatedByID: template.CreatedByID,
			CustomerID:  template.CustomerID,
			Number:      number,
			Status:      models.InvoicePending,
			Subtotal:    subtotal,
			TaxRate:     template.TaxRate,
			TaxAmount:   taxAmount,
			Total:       total,
			IssuedAt:    runAt,
		}
		if err := tx.Create(invoice).Error; err != nil {
			return fmt.Errorf("recurring service: create invoice: %w", err)
		}

		for _, item := range template.Items {
			invItem := models.InvoiceItem{
				InvoiceID:   invoice.ID,
				ProductID:   item.ProductID,
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				LineTotal:   item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			}
			if err := tx.Create(&invItem).Error; err != nil {
				return fmt.Errorf("recurring service: copy item: %w", err)
			}
			invoice.Items = append(invoice.Items, invItem)
		}

		next := template.NextRunAfter(template.NextRun)
		result := tx.Model(&models.RecurringInvoice{}).
			Where("id = ? AND next_run = ?", template.ID, template.NextRun).
			Updates(map[string]any{
				"next_run":    next,
				"last_run_at": runAt,
			})
		if result.Error != nil {
			return fmt.Errorf("recurring service: advance schedule: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTemplateAdvanced
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.InvoicesGenerated.Inc()

	return invoice, nil
}
