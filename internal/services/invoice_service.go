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

const invoiceNumberPrefix = "INV"

var (
	// ErrInvoiceNotFound indicates no invoice matches within the workspace.
	ErrInvoiceNotFound = apperrors.New("INVOICE_NOT_FOUND", "Invoice not found", http.StatusNotFound)
	// ErrOverpayment rejects payments that would push the paid sum past the total.
	ErrOverpayment = apperrors.New("OVERPAYMENT", "Payment exceeds the invoice balance", http.StatusConflict)
)

// InvoiceOption customises the InvoiceService.
type InvoiceOption func(*InvoiceService)

// WithInvoiceClock injects a custom time source, primarily for testing.
func WithInvoiceClock(clock func() time.Time) InvoiceOption {
	return func(s *InvoiceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithDocumentQuota sets the free plan's monthly allowance shared between
// invoices and estimates. Zero disables the check.
func WithDocumentQuota(limit int) InvoiceOption {
	return func(s *InvoiceService) {
		s.quota = limit
	}
}

// InvoiceService manages invoices, line items, and payments.
type InvoiceService struct {
	db    *gorm.DB
	quota int
	now   func() time.Time
}

// NewInvoiceService constructs an InvoiceService instance.
func NewInvoiceService(db *gorm.DB, opts ...InvoiceOption) (*InvoiceService, error) {
	if db == nil {
		return nil, errors.New("invoice service: db is required")
	}

	service := &InvoiceService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateInvoiceInput captures a new invoice request. Totals are computed
// server-side from the items and tax rate.
type CreateInvoiceInput struct {
	CustomerID string
	TaxRate    decimal.Decimal
	IssuedAt   *time.Time
	DueAt      *time.Time
	Items      []DocumentItemInput
}

// Create issues a new invoice. Numbering, price freezing, total computation,
// and the plan quota check all happen inside one transaction.
func (s *InvoiceService) Create(ctx context.Context, workspaceID, createdBy string, input CreateInvoiceInput) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	if input.CustomerID == "" {
		return nil, apperrors.NewBadRequest("customer id is required")
	}
	if input.TaxRate.IsNegative() {
		return nil, apperrors.NewBadRequest("tax rate cannot be negative")
	}

	var invoice *models.Invoice
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
			return fmt.Errorf("invoice service: load customer: %w", err)
		}

		lines, err := resolveLines(tx, workspaceID, input.Items)
		if err != nil {
			return err
		}
		subtotal, taxAmount, total := documentTotals(lines, input.TaxRate)

		number, err := nextDocumentNumber(tx, workspaceID, invoiceNumberPrefix)
		if err != nil {
			return err
		}

		issuedAt := s.now()
		if input.IssuedAt != nil {
			issuedAt = *input.IssuedAt
		}

		invoice = &models.Invoice{
			WorkspaceID: workspaceID,
			CreatedByID: createdBy,
			CustomerID:  customer.ID,
			Number:      number,
			Status:      models.InvoicePending,
			Subtotal:    subtotal,
			TaxRate:     input.TaxRate,
			TaxAmount:   taxAmount,
			Total:       total,
			IssuedAt:    issuedAt,
			DueAt:       input.DueAt,
		}
		if err := tx.Create(invoice).Error; err != nil {
			return fmt.Errorf("invoice service: create invoice: %w", err)
		}

		for _, line := range lines {
			item := models.InvoiceItem{
				InvoiceID:   invoice.ID,
				ProductID:   line.ProductID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				LineTotal:   line.LineTotal,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("invoice service: create item: %w", err)
			}
			invoice.Items = append(invoice.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return invoice, nil
}

// Get loads an invoice with items, payments, and customer.
func (s *InvoiceService) Get(ctx context.Context, workspaceID, id string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	var invoice models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		Preload("Customer").
		First(&invoice, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invoice service: get: %w", err)
	}
	return &invoice, nil
}

// InvoiceFilter narrows List results.
type InvoiceFilter struct {
	Status     models.InvoiceStatus
	CustomerID string
}

// List returns workspace invoices, newest first.
func (s *InvoiceService) List(ctx context.Context, workspaceID string, filter InvoiceFilter, opts ListOptions) ([]models.Invoice, int64, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()

	query := s.db.WithContext(ctx).Model(&models.Invoice{}).
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
		return nil, 0, fmt.Errorf("invoice service: count: %w", err)
	}

	var invoices []models.Invoice
	err := paginate(query, opts).
		Preload("Items").
		Preload("Payments").
		Order("issued_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, 0, fmt.Errorf("invoice service: list: %w", err)
	}
	return invoices, total, nil
}

// PaymentInput records money received against an invoice.
type PaymentInput struct {
	Amount decimal.Decimal
	Method string
	Note   string
	PaidAt *time.Time
}

// RecordPayment appends a payment and advances the invoice status. The
// balance check and insert share a transaction so the payment sum can never
// exceed the invoice total, regardless of concurrent requests.
func (s *InvoiceService) RecordPayment(ctx context.Context, workspaceID, invoiceID string, input PaymentInput) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	if !input.Amount.IsPositive() {
		return nil, apperrors.NewBadRequest("payment amount must be positive")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The invoice row is locked until commit so concurrent payments
		// serialise and the balance check stays truthful.
		var invoice models.Invoice
		err := lockForUpdate(tx).Preload("Payments").
			First(&invoice, "id = ? AND workspace_id = ?", invoiceID, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvoiceNotFound
		}
		if err != nil {
			return fmt.Errorf("invoice service: load invoice: %w", err)
		}

		if invoice.Status == models.InvoiceVoid {
			return apperrors.ErrInvalidState.WithMessage("cannot record payment on a void invoice")
		}
		if invoice.Status == models.InvoicePaid {
			return apperrors.ErrInvalidState.WithMessage("invoice is already fully paid")
		}

		if input.Amount.GreaterThan(invoice.BalanceDue()) {
			return ErrOverpayment
		}

		paidAt := s.now()
		if input.PaidAt != nil {
			paidAt = *input.PaidAt
		}

		payment := models.Payment{
			InvoiceID: invoice.ID,
			Amount:    input.Amount,
			Method:    input.Method,
			Note:      input.Note,
			PaidAt:    paidAt,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("invoice service: create payment: %w", err)
		}

		status := models.InvoicePartiallyPaid
		if invoice.PaidAmount().Add(input.Amount).Equal(invoice.Total) {
			status = models.InvoicePaid
		}
		if err := tx.Model(&invoice).Update("status", status).Error; err != nil {
			return fmt.Errorf("invoice service: update status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, workspaceID, invoiceID)
}

// Void cancels an invoice. Paid invoices cannot be voided; existing partial
// payments are kept for the audit trail.
func (s *InvoiceService) Void(ctx context.Context, workspaceID, id string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		err := tx.First(&invoice, "id = ? AND workspace_id = ?", id, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvoiceNotFound
		}
		if err != nil {
			return fmt.Errorf("invoice service: load invoice: %w", err)
		}

		switch invoice.Status {
		case models.InvoicePaid:
			return apperrors.ErrInvalidState.WithMessage("cannot void a paid invoice")
		case models.InvoiceVoid:
			return apperrors.ErrInvalidState.WithMessage("invoice is already void")
		}

		if err := tx.Model(&invoice).Update("status", models.InvoiceVoid).Error; err != nil {
			return fmt.Errorf("invoice service: void: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, workspaceID, id)
}

// MarkOverdue flips pending and partially paid invoices whose due date has
// passed to overdue. A single conditional UPDATE keeps the sweep idempotent.
func (s *InvoiceService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("status IN ? AND due_at IS NOT NULL AND due_at < ?",
			[]models.InvoiceStatus{models.InvoicePending, models.InvoicePartiallyPaid}, asOf).
		Update("status", models.InvoiceOverdue)
	if result.Error != nil {
		return 0, fmt.Errorf("invoice service: mark overdue: %w", result.Error)
	}
	return result.RowsAffected, nil
}
