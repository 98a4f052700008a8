package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/billcraft/billcraft/internal/middleware"
	"github.com/billcraft/billcraft/internal/services"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/response"
)

// PortalHandler exposes the customer portal endpoints: the public magic-link
// pair, and the grant-scoped document reads behind portal auth.
type PortalHandler struct {
	portal *services.PortalService
}

// NewPortalHandler constructs a PortalHandler.
func NewPortalHandler(portal *services.PortalService) (*PortalHandler, error) {
	if portal == nil {
		return nil, errors.New("portal handler: portal service is required")
	}
	return &PortalHandler{portal: portal}, nil
}

type portalLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestLink issues a magic link. The response is identical whether or not
// the address matches any customer records.
func (h *PortalHandler) RequestLink(c *gin.Context) {
	var req portalLinkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.portal.RequestLink(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "If we found matching invoices, a sign-in link is on its way",
	})
}

// Verify redeems a magic link and returns a portal session token.
func (h *PortalHandler) Verify(c *gin.Context) {
	result, err := h.portal.Verify(requestContext(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ListInvoices returns the invoices covered by the session's grants.
func (h *PortalHandler) ListInvoices(c *gin.Context) {
	grants := middleware.PortalGrants(c)
	if len(grants) == 0 {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	invoices, err := h.portal.ListInvoices(requestContext(c), grants)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invoices)
}

// ListEstimates returns the estimates covered by the session's grants.
func (h *PortalHandler) ListEstimates(c *gin.Context) {
	grants := middleware.PortalGrants(c)
	if len(grants) == 0 {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	estimates, err := h.portal.ListEstimates(requestContext(c), grants)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, estimates)
}

// GetInvoice returns one invoice when covered by the session's grants.
func (h *PortalHandler) GetInvoice(c *gin.Context) {
	grants := middleware.PortalGrants(c)
	if len(grants) == 0 {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	invoice, err := h.portal.GetInvoice(requestContext(c), grants, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}
