package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billcraft/billcraft/internal/auth"
	"github.com/billcraft/billcraft/internal/models"
)

var portalLinkPattern = regexp.MustCompile(`/portal/verify/(\S+)`)

func testJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "billcraft-test"})
	require.NoError(t, err)
	return svc
}

func lastPortalLinkToken(t *testing.T, mailer *captureMailer) string {
	t.Helper()
	sent := mailer.sent()
	require.NotEmpty(t, sent, "expected a portal link email")
	match := portalLinkPattern.FindStringSubmatch(sent[len(sent)-1].Body)
	require.NotNil(t, match, "no link found in email body: %s", sent[len(sent)-1].Body)
	return match[1]
}

func mustPortalService(t *testing.T, fx *fixture, mailer *captureMailer, opts ...PortalOption) *PortalService {
	t.Helper()
	svc, err := NewPortalService(fx.db, testJWTService(t), mailer, "https://app.example.com", opts...)
	require.NoError(t, err)
	return svc
}

func TestPortalRequestLinkUnknownEmail(t *testing.T) {
	fx := newFixture(t)
	mailer := &captureMailer{}
	svc := mustPortalService(t, fx, mailer)

	// Uniform success for unknown addresses, and nothing is sent.
	require.NoError(t, svc.RequestLink(context.Background(), "stranger@example.com"))
	assert.Empty(t, mailer.sent())

	var tokens int64
	require.NoError(t, fx.db.Model(&models.PortalToken{}).Count(&tokens).Error)
	assert.EqualValues(t, 0, tokens)
}

func TestPortalLinkLifecycle(t *testing.T) {
	fx := newFixture(t)
	mailer := &captureMailer{}
	svc := mustPortalService(t, fx, mailer)

	// The same email exists as a customer in a second workspace; one link
	// grants access to both records.
	other := seedUser(t, fx.db, "other-owner@example.com")
	otherWorkspace := seedWorkspace(t, fx.db, other, models.RoleOwner)
	sibling := seedCustomer(t, fx.db, otherWorkspace.ID, fx.customer.Email)

	require.NoError(t, svc.RequestLink(context.Background(), fx.customer.Email))
	token := lastPortalLinkToken(t, mailer)

	result, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionToken)
	assert.ElementsMatch(t, []string{fx.customer.ID, sibling.ID}, result.CustomerIDs)

	// The issued session validates as a portal token carrying the grants.
	claims, err := testJWTService(t).ValidatePortalToken(result.SessionToken)
	require.NoError(t, err)
	assert.ElementsMatch(t, result.CustomerIDs, claims.CustomerIDs)

	// Links are one-shot.
	_, err = svc.Verify(context.Background(), token)
	requireErrCode(t, err, "PORTAL_TOKEN_INVALID")
}

func TestPortalVerifyRejectsExpiredAndUnknown(t *testing.T) {
	fx := newFixture(t)
	mailer := &captureMailer{}
	clock := newTestClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	svc := mustPortalService(t, fx, mailer, WithPortalClock(clock.Now), WithPortalLinkTTL(30*time.Minute))

	_, err := svc.Verify(context.Background(), "not-a-real-token")
	requireErrCode(t, err, "PORTAL_TOKEN_INVALID")

	require.NoError(t, svc.RequestLink(context.Background(), fx.customer.Email))
	token := lastPortalLinkToken(t, mailer)

	clock.Advance(31 * time.Minute)
	_, err = svc.Verify(context.Background(), token)
	requireErrCode(t, err, "PORTAL_TOKEN_INVALID")
}

func TestPortalDocumentScoping(t *testing.T) {
	fx := newFixture(t)
	svc := mustPortalService(t, fx, nil)

	invoices, err := NewInvoiceService(fx.db)
	require.NoError(t, err)

	mine, err := invoices.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: fx.customer.ID,
		Items:      []DocumentItemInput{{Description: "Mine", Quantity: 1, UnitPrice: decptr("10")}},
	})
	require.NoError(t, err)

	stranger := seedCustomer(t, fx.db, fx.workspace.ID, "stranger@example.com")
	theirs, err := invoices.Create(context.Background(), fx.workspace.ID, fx.user.ID, CreateInvoiceInput{
		CustomerID: stranger.ID,
		Items:      []DocumentItemInput{{Description: "Theirs", Quantity: 1, UnitPrice: decptr("20")}},
	})
	require.NoError(t, err)

	grants := []string{fx.customer.ID}

	listed, err := svc.ListInvoices(context.Background(), grants)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, mine.ID, listed[0].ID)

	_, err = svc.GetInvoice(context.Background(), grants, mine.ID)
	require.NoError(t, err)

	// A document outside the grant list is indistinguishable from a missing one.
	_, err = svc.GetInvoice(context.Background(), grants, theirs.ID)
	requireErrCode(t, err, "INVOICE_NOT_FOUND")

	// No grants, no access.
	_, err = svc.ListInvoices(context.Background(), nil)
	requireErrCode(t, err, "FORBIDDEN")
	_, err = svc.ListEstimates(context.Background(), []string{"  "})
	requireErrCode(t, err, "FORBIDDEN")
}
