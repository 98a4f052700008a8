package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/auth"
	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/pkg/crypto"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/logger"
	"github.com/billcraft/billcraft/pkg/mail"
)

const portalTokenBytes = 32

// ErrPortalTokenInvalid covers unknown, expired, and already-consumed magic
// links. One message for all three keeps the endpoint unenumerable.
var ErrPortalTokenInvalid = apperrors.New("PORTAL_TOKEN_INVALID", "This link is invalid or has expired", http.StatusUnauthorized)

// PortalOption customises the PortalService.
type PortalOption func(*PortalService)

// WithPortalClock injects a custom time source, primarily for testing.
func WithPortalClock(clock func() time.Time) PortalOption {
	return func(s *PortalService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPortalLinkTTL overrides how long a magic link stays valid.
func WithPortalLinkTTL(ttl time.Duration) PortalOption {
	return func(s *PortalService) {
		if ttl > 0 {
			s.linkTTL = ttl
		}
	}
}

// PortalService implements the customer portal: magic-link issuance,
// verification, and grant-scoped document reads.
type PortalService struct {
	db      *gorm.DB
	jwt     *auth.JWTService
	mailer  mail.Mailer
	baseURL string

	linkTTL time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewPortalService constructs a PortalService instance.
func NewPortalService(db *gorm.DB, jwtService *auth.JWTService, mailer mail.Mailer, baseURL string, opts ...PortalOption) (*PortalService, error) {
	if db == nil {
		return nil, errors.New("portal service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("portal service: jwt service is required")
	}

	service := &PortalService{
		db:      db,
		jwt:     jwtService,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		linkTTL: 30 * time.Minute,
		now:     time.Now,
		log:     logger.WithModule("portal"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RequestLink issues a one-time magic link for every customer record matching
// the email, across all workspaces. The grant list is captured now; later
// customer edits do not widen or narrow an issued token. Returns successfully
// even when no customer matches so the endpoint cannot be used to probe for
// registered addresses.
func (s *PortalService) RequestLink(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperrors.NewBadRequest("email is required")
	}

	var customers []models.Customer
	err := s.db.WithContext(ctx).Where("email = ?", email).Find(&customers).Error
	if err != nil {
		return fmt.Errorf("portal service: find customers: %w", err)
	}
	if len(customers) == 0 {
		return nil
	}

	token, err := crypto.GenerateToken(portalTokenBytes)
	if err != nil {
		return fmt.Errorf("portal service: generate token: %w", err)
	}

	record := &models.PortalToken{
		Email:     email,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: s.now().Add(s.linkTTL),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("portal service: create token: %w", err)
		}
		for _, customer := range customers {
			grant := models.CustomerGrant{
				PortalTokenID: record.ID,
				CustomerID:    customer.ID,
				WorkspaceID:   customer.WorkspaceID,
			}
			if err := tx.Create(&grant).Error; err != nil {
				return fmt.Errorf("portal service: create grant: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.sendLink(ctx, email, token)
	return nil
}

// VerifyResult carries the session issued after a successful magic-link
// verification.
type VerifyResult struct {
	SessionToken string   `json:"session_token"`
	CustomerIDs  []string `json:"customer_ids"`
}

// Verify consumes a magic link and issues a portal session JWT carrying the
// token's grant list. Consumption is a conditional update on consumed_at, so a
// link can be redeemed at most once even under concurrent requests.
func (s *PortalService) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(token) == "" {
		return nil, ErrPortalTokenInvalid
	}

	var record models.PortalToken
	err := s.db.WithContext(ctx).
		Preload("Grants").
		First(&record, "token_hash = ?", crypto.HashToken(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPortalTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("portal service: load token: %w", err)
	}

	now := s.now()
	if record.ConsumedAt != nil || now.After(record.ExpiresAt) {
		return nil, ErrPortalTokenInvalid
	}
	if len(record.Grants) == 0 {
		return nil, ErrPortalTokenInvalid
	}

	result := s.db.WithContext(ctx).Model(&models.PortalToken{}).
		Where("id = ? AND consumed_at IS NULL", record.ID).
		Update("consumed_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("portal service: consume token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrPortalTokenInvalid
	}

	customerIDs := make([]string, 0, len(record.Grants))
	for _, grant := range record.Grants {
		customerIDs = append(customerIDs, grant.CustomerID)
	}

	session, err := s.jwt.GeneratePortalToken(customerIDs)
	if err != nil {
		return nil, fmt.Errorf("portal service: issue session: %w", err)
	}

	return &VerifyResult{SessionToken: session, CustomerIDs: customerIDs}, nil
}

// ListInvoices returns the invoices visible to a portal session. Visibility is
// exactly the session's grant list; workspace roles play no part here.
func (s *PortalService) ListInvoices(ctx context.Context, customerIDs []string) ([]models.Invoice, error) {
	ctx = ensureContext(ctx)

	customerIDs = normaliseIDs(customerIDs)
	if len(customerIDs) == 0 {
		return nil, apperrors.ErrForbidden
	}

	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		Where("customer_id IN ?", customerIDs).
		Order("issued_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("portal service: list invoices: %w", err)
	}
	return invoices, nil
}

// ListEstimates returns the estimates visible to a portal session.
func (s *PortalService) ListEstimates(ctx context.Context, customerIDs []string) ([]models.Estimate, error) {
	ctx = ensureContext(ctx)

	customerIDs = normaliseIDs(customerIDs)
	if len(customerIDs) == 0 {
		return nil, apperrors.ErrForbidden
	}

	var estimates []models.Estimate
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id IN ?", customerIDs).
		Order("issued_at DESC").
		Find(&estimates).Error
	if err != nil {
		return nil, fmt.Errorf("portal service: list estimates: %w", err)
	}
	return estimates, nil
}

// GetInvoice returns one invoice when the session's grants cover its customer.
func (s *PortalService) GetInvoice(ctx context.Context, customerIDs []string, invoiceID string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	customerIDs = normaliseIDs(customerIDs)
	if len(customerIDs) == 0 {
		return nil, apperrors.ErrForbidden
	}

	var invoice models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		First(&invoice, "id = ? AND customer_id IN ?", invoiceID, customerIDs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("portal service: get invoice: %w", err)
	}
	return &invoice, nil
}

// sendLink delivers the magic link. Delivery failures are logged, never
// surfaced, so the response stays uniform for callers.
func (s *PortalService) sendLink(ctx context.Context, email, token string) {
	if s.mailer == nil {
		return
	}

	link := fmt.Sprintf("%s/portal/verify/%s", s.baseURL, token)
	msg := mail.Message{
		To:      []string{email},
		Subject: "Your BillCraft portal link",
		Body: fmt.Sprintf("Use the link below to view your invoices. It expires in %d minutes and can be used once.\n\n%s\n",
			int(s.linkTTL.Minutes()), link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("portal link delivery failed", zap.String("email", email), zap.Error(err))
	}
}
