package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/billcraft/billcraft/internal/services"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/response"
)

// BillingHandler exposes subscription upgrade and webhook endpoints.
type BillingHandler struct {
	billing *services.BillingService
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(billing *services.BillingService) (*BillingHandler, error) {
	if billing == nil {
		return nil, errors.New("billing handler: billing service is required")
	}
	return &BillingHandler{billing: billing}, nil
}

// CreateCheckoutSession starts a pro-plan checkout for the active workspace.
func (h *BillingHandler) CreateCheckoutSession(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	session, err := h.billing.CreateCheckoutSession(requestContext(c), workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// Webhook receives Stripe events. The raw body is read before any binding so
// signature verification sees the exact bytes Stripe signed.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("could not read webhook payload"))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := h.billing.HandleWebhook(requestContext(c), payload, signature); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}
