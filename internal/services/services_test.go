package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/database/testutil"
	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/pkg/crypto"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/mail"
)

const testPassword = "correct-horse-battery"

var (
	testPasswordHashOnce sync.Once
	testPasswordHash     string
)

// bcrypt is deliberately slow; hash the shared test password once per process.
func passwordHash(t *testing.T) string {
	t.Helper()
	testPasswordHashOnce.Do(func() {
		hash, err := crypto.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("hash test password: %v", err)
		}
		testPasswordHash = hash
	})
	return testPasswordHash
}

// requireErrCode asserts err carries the given application error code.
func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	require.Equal(t, code, appErr.Code, "unexpected error: %v", err)
}

// testClock is a settable time source for services that take a clock option.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{t: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// captureMailer records outbound messages instead of delivering them.
type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		Name:     "Test User",
		Email:    email,
		Password: passwordHash(t),
		Verified: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedWorkspace(t *testing.T, db *gorm.DB, owner *models.User, role models.Role) *models.Workspace {
	t.Helper()

	workspace := &models.Workspace{
		Name:    "Acme",
		OwnerID: owner.ID,
		Plan:    models.PlanFree,
		Status:  models.WorkspaceActive,
	}
	require.NoError(t, db.Create(workspace).Error)
	require.NoError(t, db.Create(&models.Membership{
		UserID:      owner.ID,
		WorkspaceID: workspace.ID,
		Role:        role,
	}).Error)
	require.NoError(t, db.Model(owner).Update("active_workspace_id", workspace.ID).Error)
	return workspace
}

func seedCustomer(t *testing.T, db *gorm.DB, workspaceID, email string) *models.Customer {
	t.Helper()

	customer := &models.Customer{
		WorkspaceID: workspaceID,
		Name:        "Jordan Blake",
		Email:       email,
	}
	require.NoError(t, db.Create(customer).Error)
	return customer
}

func seedProduct(t *testing.T, db *gorm.DB, workspaceID string, price string, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		WorkspaceID:   workspaceID,
		Name:          "Widget",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// fixture bundles the common single-tenant test setup.
type fixture struct {
	db        *gorm.DB
	user      *models.User
	workspace *models.Workspace
	customer  *models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	workspace := seedWorkspace(t, db, user, models.RoleOwner)
	customer := seedCustomer(t, db, workspace.ID, "jordan@example.com")

	return &fixture{db: db, user: user, workspace: workspace, customer: customer}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func strptr(s string) *string { return &s }

func decptr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
