package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billcraft/billcraft/internal/database/testutil"
	"github.com/billcraft/billcraft/internal/models"
)

var otpCodePattern = regexp.MustCompile(`\b(\d{6})\b`)

func lastOTPCode(t *testing.T, mailer *captureMailer) string {
	t.Helper()

	sent := mailer.sent()
	require.NotEmpty(t, sent, "expected at least one email")
	match := otpCodePattern.FindStringSubmatch(sent[len(sent)-1].Body)
	require.NotNil(t, match, "no code found in email body: %s", sent[len(sent)-1].Body)
	return match[1]
}

func TestSignupProvisionsWorkspace(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc, err := NewUserService(db, mailer)
	require.NoError(t, err)

	user, err := svc.Signup(context.Background(), SignupInput{
		Name:          "Sam Carter",
		Email:         "Sam@Example.com",
		Password:      testPassword,
		WorkspaceName: "Carter Consulting",
	})
	require.NoError(t, err)

	assert.Equal(t, "sam@example.com", user.Email)
	assert.False(t, user.Verified)
	require.NotNil(t, user.ActiveWorkspaceID)

	var workspace models.Workspace
	require.NoError(t, db.First(&workspace, "id = ?", *user.ActiveWorkspaceID).Error)
	assert.Equal(t, "Carter Consulting", workspace.Name)
	assert.Equal(t, models.PlanFree, workspace.Plan)
	assert.Equal(t, user.ID, workspace.OwnerID)

	var membership models.Membership
	require.NoError(t, db.First(&membership, "user_id = ? AND workspace_id = ?", user.ID, workspace.ID).Error)
	assert.Equal(t, models.RoleOwner, membership.Role)

	require.Len(t, mailer.sent(), 1)
}

func TestSignupDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)

	input := SignupInput{Name: "Sam", Email: "sam@example.com", Password: testPassword}
	_, err = svc.Signup(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), input)
	requireErrCode(t, err, "EMAIL_TAKEN")

	// A failed signup must not leave an orphan workspace behind.
	var workspaces int64
	require.NoError(t, db.Model(&models.Workspace{}).Count(&workspaces).Error)
	assert.EqualValues(t, 1, workspaces)
}

func TestVerifyOTP(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc, err := NewUserService(db, mailer)
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{Name: "Sam", Email: "sam@example.com", Password: testPassword})
	require.NoError(t, err)
	code := lastOTPCode(t, mailer)

	_, err = svc.VerifyOTP(context.Background(), "sam@example.com", "000000")
	requireErrCode(t, err, "OTP_INVALID")

	user, err := svc.VerifyOTP(context.Background(), "sam@example.com", code)
	require.NoError(t, err)
	assert.True(t, user.Verified)

	// Codes are one-shot; the stored hash is cleared on success.
	_, err = svc.VerifyOTP(context.Background(), "sam@example.com", code)
	requireErrCode(t, err, "OTP_INVALID")
}

func TestVerifyOTPExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	clock := newTestClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, err := NewUserService(db, mailer, WithUserClock(clock.Now))
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{Name: "Sam", Email: "sam@example.com", Password: testPassword})
	require.NoError(t, err)
	code := lastOTPCode(t, mailer)

	clock.Advance(11 * time.Minute)
	_, err = svc.VerifyOTP(context.Background(), "sam@example.com", code)
	requireErrCode(t, err, "OTP_EXPIRED")

	// A fresh request issues a working code again.
	require.NoError(t, svc.RequestOTP(context.Background(), "sam@example.com"))
	_, err = svc.VerifyOTP(context.Background(), "sam@example.com", lastOTPCode(t, mailer))
	require.NoError(t, err)
}

func TestRequestOTPUnknownEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc, err := NewUserService(db, mailer)
	require.NoError(t, err)

	// Silent success: the endpoint must not reveal which addresses exist.
	require.NoError(t, svc.RequestOTP(context.Background(), "nobody@example.com"))
	assert.Empty(t, mailer.sent())
}

func TestLogin(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	seedUser(t, db, "owner@example.com")

	user, err := svc.Login(context.Background(), "owner@example.com", testPassword, "")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", user.Email)

	_, err = svc.Login(context.Background(), "owner@example.com", "wrong-password", "")
	requireErrCode(t, err, "INVALID_CREDENTIALS")

	_, err = svc.Login(context.Background(), "nobody@example.com", testPassword, "")
	requireErrCode(t, err, "INVALID_CREDENTIALS")
}

func TestLoginUnverified(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{Name: "Sam", Email: "sam@example.com", Password: testPassword})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "sam@example.com", testPassword, "")
	requireErrCode(t, err, "EMAIL_NOT_VERIFIED")
}

func TestTOTPLifecycle(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	user := seedUser(t, db, "owner@example.com")

	enrolment, err := svc.EnrollTOTP(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrolment.Secret)
	require.NotEmpty(t, enrolment.QRCodePNG)

	// Enrolment alone must not change login behaviour.
	_, err = svc.Login(context.Background(), "owner@example.com", testPassword, "")
	require.NoError(t, err)

	err = svc.ConfirmTOTP(context.Background(), user.ID, "000000")
	requireErrCode(t, err, "TOTP_INVALID")

	code, err := totp.GenerateCode(enrolment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmTOTP(context.Background(), user.ID, code))

	_, err = svc.Login(context.Background(), "owner@example.com", testPassword, "")
	requireErrCode(t, err, "TOTP_REQUIRED")

	_, err = svc.Login(context.Background(), "owner@example.com", testPassword, "123456")
	requireErrCode(t, err, "TOTP_INVALID")

	code, err = totp.GenerateCode(enrolment.Secret, time.Now())
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "owner@example.com", testPassword, code)
	require.NoError(t, err)

	code, err = totp.GenerateCode(enrolment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.DisableTOTP(context.Background(), user.ID, code))

	_, err = svc.Login(context.Background(), "owner@example.com", testPassword, "")
	require.NoError(t, err)
}

func TestSwitchWorkspace(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)

	user := seedUser(t, db, "owner@example.com")
	seedWorkspace(t, db, user, models.RoleOwner)

	other := seedUser(t, db, "other@example.com")
	otherWorkspace := seedWorkspace(t, db, other, models.RoleOwner)

	// No membership in the target workspace.
	err = svc.SwitchWorkspace(context.Background(), user.ID, otherWorkspace.ID)
	requireErrCode(t, err, "NOT_A_MEMBER")

	require.NoError(t, db.Create(&models.Membership{
		UserID:      user.ID,
		WorkspaceID: otherWorkspace.ID,
		Role:        models.RoleStaff,
	}).Error)

	require.NoError(t, svc.SwitchWorkspace(context.Background(), user.ID, otherWorkspace.ID))

	refreshed, err := svc.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.ActiveWorkspaceID)
	assert.Equal(t, otherWorkspace.ID, *refreshed.ActiveWorkspaceID)
}
