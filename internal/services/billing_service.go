package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/logger"
	"github.com/billcraft/billcraft/pkg/metrics"
)

// ErrBillingDisabled signals that no Stripe credentials are configured.
var ErrBillingDisabled = apperrors.New("BILLING_DISABLED", "Billing is not configured", http.StatusNotImplemented)

// subscriptionStatusMap reduces Stripe subscription statuses to the local
// enum. Anything absent here is treated as an upstream failure rather than
// stored verbatim.
var subscriptionStatusMap = map[stripeapi.SubscriptionStatus]models.WorkspaceStatus{
	stripeapi.SubscriptionStatusActive:            models.WorkspaceActive,
	stripeapi.SubscriptionStatusTrialing:          models.WorkspaceActive,
	stripeapi.SubscriptionStatusPastDue:           models.WorkspacePastDue,
	stripeapi.SubscriptionStatusUnpaid:            models.WorkspaceCanceled,
	stripeapi.SubscriptionStatusCanceled:          models.WorkspaceCanceled,
	stripeapi.SubscriptionStatusIncomplete:        models.WorkspaceIncomplete,
	stripeapi.SubscriptionStatusIncompleteExpired: models.WorkspaceIncomplete,
}

// BillingConfig carries the Stripe settings the service needs at runtime.
type BillingConfig struct {
	SecretKey     string
	WebhookSecret string
	ProPriceID    string
	SuccessURL    string
	CancelURL     string
}

// eventParser verifies and decodes a raw webhook payload. Swappable in tests.
type eventParser func(payload []byte, signature, secret string) (stripeapi.Event, error)

// BillingService connects workspaces to Stripe subscriptions and reconciles
// provider state back through webhooks.
type BillingService struct {
	db     *gorm.DB
	cfg    BillingConfig
	client *stripeapi.Client

	parseEvent eventParser
	now        func() time.Time
	log        *zap.Logger
}

// BillingOption customises the BillingService.
type BillingOption func(*BillingService)

// WithEventParser replaces signature verification, primarily for testing.
func WithEventParser(parser eventParser) BillingOption {
	return func(s *BillingService) {
		if parser != nil {
			s.parseEvent = parser
		}
	}
}

// WithBillingClock injects a custom time source.
func WithBillingClock(clock func() time.Time) BillingOption {
	return func(s *BillingService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewBillingService constructs a BillingService. An empty secret key leaves
// checkout disabled; webhook processing still works if the webhook secret is
// set.
func NewBillingService(db *gorm.DB, cfg BillingConfig, opts ...BillingOption) (*BillingService, error) {
	if db == nil {
		return nil, errors.New("billing service: db is required")
	}

	service := &BillingService{
		db:  db,
		cfg: cfg,
		parseEvent: func(payload []byte, signature, secret string) (stripeapi.Event, error) {
			return webhook.ConstructEventWithOptions(payload, signature, secret,
				webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		},
		now: time.Now,
		log: logger.WithModule("billing"),
	}
	if cfg.SecretKey != "" {
		service.client = stripeapi.NewClient(cfg.SecretKey, nil)
	}

	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CheckoutSession is the client-facing result of starting an upgrade.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCheckoutSession starts a Stripe subscription checkout for upgrading a
// workspace to the pro plan. The workspace ID rides along as the client
// reference so the completion webhook can find its way back.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, workspaceID string) (*CheckoutSession, error) {
	ctx = ensureContext(ctx)

	if s.client == nil || s.cfg.ProPriceID == "" {
		return nil, ErrBillingDisabled
	}

	var workspace models.Workspace
	err := s.db.WithContext(ctx).First(&workspace, "id = ?", workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing service: load workspace: %w", err)
	}

	if workspace.Plan == models.PlanPro && workspace.Status == models.WorkspaceActive {
		return nil, apperrors.ErrInvalidState.WithMessage("workspace is already on the pro plan")
	}

	params := &stripeapi.CheckoutSessionCreateParams{
		Mode: stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		LineItems: []*stripeapi.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripeapi.String(s.cfg.ProPriceID),
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL:        stripeapi.String(s.cfg.SuccessURL),
		CancelURL:         stripeapi.String(s.cfg.CancelURL),
		ClientReferenceID: stripeapi.String(workspace.ID),
		Metadata: map[string]string{
			"workspace_id": workspace.ID,
		},
	}
	if workspace.StripeCustomerID != "" {
		params.Customer = stripeapi.String(workspace.StripeCustomerID)
	}

	session, err := s.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		s.log.Error("create checkout session failed", zap.String("workspace_id", workspace.ID), zap.Error(err))
		return nil, apperrors.ErrUpstream.WithMessage("could not start checkout")
	}

	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// HandleWebhook verifies a raw Stripe payload and applies the event to local
// workspace state. Unrecognised event types are acknowledged without action;
// replaying a processed event converges on the same state.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx = ensureContext(ctx)

	if s.cfg.WebhookSecret == "" {
		return ErrBillingDisabled
	}

	event, err := s.parseEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return apperrors.ErrUnauthorized.WithMessage("invalid webhook signature")
	}

	eventType := string(event.Type)
	if err := s.processEvent(ctx, event); err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "failure").Inc()
		return err
	}

	metrics.WebhookEvents.WithLabelValues(eventType, "success").Inc()
	return nil
}

func (s *BillingService) processEvent(ctx context.Context, event stripeapi.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		s.log.Debug("unhandled webhook event", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, event stripeapi.Event) error {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return apperrors.ErrBadRequest.WithMessage("malformed checkout session payload")
	}

	workspaceID := session.ClientReferenceID
	if workspaceID == "" {
		workspaceID = session.Metadata["workspace_id"]
	}
	if workspaceID == "" {
		return apperrors.ErrUpstream.WithMessage("checkout session carries no workspace reference")
	}

	updates := map[string]any{
		"plan":   models.PlanPro,
		"status": models.WorkspaceActive,
	}
	if session.Customer != nil {
		updates["stripe_customer_id"] = session.Customer.ID
	}
	if session.Subscription != nil {
		updates["stripe_subscription_id"] = session.Subscription.ID
	}

	result := s.db.WithContext(ctx).Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("billing service: apply checkout: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWorkspaceNotFound
	}

	s.log.Info("workspace upgraded", zap.String("workspace_id", workspaceID))
	return nil
}

func (s *BillingService) handleSubscriptionUpdated(ctx context.Context, event stripeapi.Event) error {
	var subscription stripeapi.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return apperrors.ErrBadRequest.WithMessage("malformed subscription payload")
	}

	status, ok := subscriptionStatusMap[subscription.Status]
	if !ok {
		return apperrors.ErrUpstream.WithMessage(
			fmt.Sprintf("unrecognised subscription status %q", subscription.Status))
	}

	updates := map[string]any{"status": status}
	if status == models.WorkspaceCanceled {
		// Canceled and unpaid subscriptions lose pro entitlements.
		updates["plan"] = models.PlanFree
	}

	result := s.db.WithContext(ctx).Model(&models.Workspace{}).
		Where("stripe_subscription_id = ?", subscription.ID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("billing service: apply subscription update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Subscription may precede checkout completion; acknowledge and let
		// Stripe's retry ordering converge.
		s.log.Warn("subscription update for unknown workspace", zap.String("subscription_id", subscription.ID))
	}
	return nil
}

func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, event stripeapi.Event) error {
	var subscription stripeapi.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return apperrors.ErrBadRequest.WithMessage("malformed subscription payload")
	}

	result := s.db.WithContext(ctx).Model(&models.Workspace{}).
		Where("stripe_subscription_id = ?", subscription.ID).
		Updates(map[string]any{
			"plan":   models.PlanFree,
			"status": models.WorkspaceCanceled,
		})
	if result.Error != nil {
		return fmt.Errorf("billing service: apply subscription delete: %w", result.Error)
	}
	return nil
}
