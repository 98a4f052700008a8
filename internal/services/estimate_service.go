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
)

const estimateNumberPrefix = "EST"

// ErrEstimateNotFound indicates no estimate matches within the workspace.
var ErrEstimateNotFound = apperrors.New("ESTIMATE_NOT_FOUND", "Estimate not found", http.StatusNotFound)

// estimateTransitions lists the allowed status moves. Converted is terminal
// and only reachable through Convert.
var estimateTransitions = map[models.EstimateStatus][]models.EstimateStatus{
	models.EstimateDraft:    {models.EstimateSent},
	models.EstimateSent:     {models.EstimateApproved, models.EstimateRejected},
	models.EstimateApproved: {models.EstimateRejected},
	models.EstimateRejected: {},
}

// EstimateOption customises the EstimateService.
type EstimateOption func(*EstimateService)

// WithEstimateClock injects a custom time source, primarily for testing.
func WithEstimateClock(clock func() time.Time) EstimateOption {
	return func(s *EstimateService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithEstimateQuota sets the free plan's monthly document allowance.
func WithEstimateQuota(limit int) EstimateOption {
	return func(s *EstimateService) {
		s.quota = limit
	}
}

// EstimateService manages quotes and their one-shot conversion to invoices.
type EstimateService struct {
	db    *gorm.DB
	quota int
	now   func() time.Time
}

// NewEstimateService constructs an EstimateService instance.
func NewEstimateService(db *gorm.DB, opts ...EstimateOption) (*EstimateService, error) {
	if db == nil {
		return nil, errors.New("estimate service: db is required")
	}

	service := &EstimateService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateEstimateInput captures a new estimate request.
type CreateEstimateInput struct {
	CustomerID string
	TaxRate    decimal.Decimal
	IssuedAt   *time.Time
	ExpiresAt  *time.Time
	Items      []DocumentItemInput
}

// Create issues a new draft estimate with server-computed totals.
func (s *EstimateService) Create(ctx context.Context, workspaceID, createdBy string, input CreateEstimateInput) (*models.Estimate, error) {
	ctx = ensureContext(ctx)

	if input.CustomerID == "" {
		return nil, apperrors.NewBadRequest("customer id is required")
	}
	if input.TaxRate.IsNegative() {
		return nil, apperrors.NewBadRequest("tax rate cannot be negative")
	}

	var estimate *models.Estimate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkDocumentQuota(tx, workspaceID, s.quota, s.now()); err != nil {
			return err
		}

		var customer models.Customer
		err := tx.First(&customer, "id = ? AND workspace_id = ?", input.CustomerID, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCustomerNotFound
		}
		if err != nil {
			return fmt.Errorf("estimate service: load customer: %w", err)
		}

		lines, err := resolveLines(tx, workspaceID, input.Items)
		if err != nil {
			return err
		}
		subtotal, taxAmount, total := documentTotals(lines, input.TaxRate)

		number, err := nextDocumentNumber(tx, workspaceID, estimateNumberPrefix)
		if err != nil {
			return err
		}

		issuedAt := s.now()
		if input.IssuedAt != nil {
			issuedAt = *input.IssuedAt
		}

		estimate = &models.Estimate{
			WorkspaceID: workspaceID,
			CreatedByID: createdBy,
			CustomerID:  customer.ID,
			Number:      number,
			Status:      models.EstimateDraft,
			Subtotal:    subtotal,
			TaxRate:     input.TaxRate,
			TaxAmount:   taxAmount,
			Total:       total,
			IssuedAt:    issuedAt,
			ExpiresAt:   input.ExpiresAt,
		}
		if err := tx.Create(estimate).Error; err != nil {
			return fmt.Errorf("estimate service: create estimate: %w", err)
		}

		for _, line := range lines {
			item := models.EstimateItem{
				EstimateID:  estimate.ID,
				ProductID:   line.ProductID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				LineTotal:   line.LineTotal,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("estimate service: create item: %w", err)
			}
			estimate.Items = append(estimate.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return estimate, nil
}

// Get loads an estimate with items and customer.
func (s *EstimateService) Get(ctx context.Context, workspaceID, id string) (*models.Estimate, error) {
	ctx = ensureContext(ctx)

	var estimate models.Estimate
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Customer").
		First(&estimate, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEstimateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("estimate service: get: %w", err)
	}
	return &estimate, nil
}

// EstimateFilter narrows List results.
type EstimateFilter struct {
	Status     models.EstimateStatus
	CustomerID string
}

// List returns workspace estimates, newest first.
func (s *EstimateService) List(ctx context.Context, workspaceID string, filter EstimateFilter, opts ListOptions) ([]models.Estimate, int64, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()

	query := s.db.WithContext(ctx).Model(&models.Estimate{}).
		Where("workspace_id = ?", workspaceID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if opts.Search != "" {
		query = query.Where("number LIKE ?", "%"+opts.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("estimate service: count: %w", err)
	}

	var estimates []models.Estimate
	err := paginate(query, opts).
		Preload("Items").
		Order("issued_at DESC").
		Find(&estimates).Error
	if err != nil {
		return nil, 0, fmt.Errorf("estimate service: list: %w", err)
	}
	return estimates, total, nil
}

// Transition moves an estimate along draft → sent → approved/rejected.
// Conversion is excluded; it goes through Convert.
func (s *EstimateService) Transition(ctx context.Context, workspaceID, id string, target models.EstimateStatus) (*models.Estimate, error) {
	ctx = ensureContext(ctx)

	if target == models.EstimateConverted {
		return nil, apperrors.NewBadRequest("conversion must go through the convert endpoint")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var estimate models.Estimate
		err := tx.First(&estimate, "id = ? AND workspace_id = ?", id, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEstimateNotFound
		}
		if err != nil {
			return fmt.Errorf("estimate service: load estimate: %w", err)
		}

		if !transitionAllowed(estimate.Status, target) {
			return apperrors.ErrInvalidState.WithMessage(
				fmt.Sprintf("cannot move estimate from %s to %s", estimate.Status, target))
		}

		if err := tx.Model(&estimate).Update("status", target).Error; err != nil {
			return fmt.Errorf("estimate service: transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, workspaceID, id)
}

func transitionAllowed(from, to models.EstimateStatus) bool {
	for _, allowed := range estimateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Convert turns an approved estimate into an invoice exactly once. The status
// check, stock decrements, invoice creation, and back-link all share one
// transaction; any failure rolls back everything.
//
// Stock decrements are conditional UPDATEs guarded by stock_quantity >=
// quantity, so two concurrent conversions competing for the same stock cannot
// both succeed.
func (s *EstimateService) Convert(ctx context.Context, workspaceID, id string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	var invoice *models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var estimate models.Estimate
		err := tx.Preload("Items").
			First(&estimate, "id = ? AND workspace_id = ?", id, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEstimateNotFound
		}
		if err != nil {
			return fmt.Errorf("estimate service: load estimate: %w", err)
		}

		if estimate.Status != models.EstimateApproved || estimate.LinkedInvoiceID != nil {
			return apperrors.ErrInvalidState.WithMessage("only approved, unconverted estimates can be converted")
		}

		for _, item := range estimate.Items {
			if item.ProductID == nil {
				continue
			}
			result := tx.Model(&models.Product{}).
				Where("id = ? AND workspace_id = ? AND stock_quantity >= ?", *item.ProductID, workspaceID, item.Quantity).
				Update("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity))
			if result.Error != nil {
				return fmt.Errorf("estimate service: decrement stock: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return apperrors.ErrInsufficientStock.WithMessage(
					fmt.Sprintf("insufficient stock for %q", item.Description))
			}
		}

		number, err := nextDocumentNumber(tx, workspaceID, invoiceNumberPrefix)
		if err != nil {
			return err
		}

		invoice = &models.Invoice{
			WorkspaceID: workspaceID,
			CreatedByID: estimate.CreatedByID,
			CustomerID:  estimate.CustomerID,
			Number:      number,
			Status:      models.InvoicePending,
			Subtotal:    estimate.Subtotal,
			TaxRate:     estimate.TaxRate,
			TaxAmount:   estimate.TaxAmount,
			Total:       estimate.Total,
			IssuedAt:    s.now(),
		}
		if err := tx.Create(invoice).Error; err != nil {
			return fmt.Errorf("estimate service: create invoice: %w", err)
		}

		for _, item := range estimate.Items {
			invItem := models.InvoiceItem{
				InvoiceID:   invoice.ID,
				ProductID:   item.ProductID,
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				LineTotal:   item.LineTotal,
			}
			if err := tx.Create(&invItem).Error; err != nil {
				return fmt.Errorf("estimate service: copy item: %w", err)
			}
			invoice.Items = append(invoice.Items, invItem)
		}

		updates := map[string]any{
			"status":            models.EstimateConverted,
			"linked_invoice_id": invoice.ID,
		}
		if err := tx.Model(&estimate).Updates(updates).Error; err != nil {
			return fmt.Errorf("estimate service: link invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return invoice, nil
}

// Delete removes a draft or rejected estimate. Sent, approved, and converted
// estimates are part of the business record and cannot be deleted.
func (s *EstimateService) Delete(ctx context.Context, workspaceID, id string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var estimate models.Estimate
		err := tx.First(&estimate, "id = ? AND workspace_id = ?", id, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEstimateNotFound
		}
		if err != nil {
			return fmt.Errorf("estimate service: load estimate: %w", err)
		}

		if estimate.Status != models.EstimateDraft && estimate.Status != models.EstimateRejected {
			return apperrors.ErrInvalidState.WithMessage("only draft or rejected estimates can be deleted")
		}

		if err := tx.Where("estimate_id = ?", estimate.ID).Delete(&models.EstimateItem{}).Error; err != nil {
			return fmt.Errorf("estimate service: delete items: %w", err)
		}
		if err := tx.Delete(&estimate).Error; err != nil {
			return fmt.Errorf("estimate service: delete: %w", err)
		}
		return nil
	})
}
