package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/pkg/crypto"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/logger"
	"github.com/billcraft/billcraft/pkg/mail"
	"github.com/billcraft/billcraft/pkg/metrics"
)

const (
	defaultOTPDigits = 6
	defaultOTPExpiry = 10 * time.Minute
	defaultQRSize    = 256
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrEmailTaken signals the email address is already registered.
	ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "Email address already registered", http.StatusConflict)
	// ErrOTPInvalid indicates the supplied one-time code does not match.
	ErrOTPInvalid = apperrors.New("OTP_INVALID", "Invalid verification code", http.StatusUnauthorized)
	// ErrOTPExpired indicates the one-time code has lapsed.
	ErrOTPExpired = apperrors.New("OTP_EXPIRED", "Verification code expired", http.StatusUnauthorized)
	// ErrNotVerified blocks login before email verification completes.
	ErrNotVerified = apperrors.New("EMAIL_NOT_VERIFIED", "Email address not verified", http.StatusForbidden)
	// ErrTOTPRequired signals the account has authenticator 2FA enabled.
	ErrTOTPRequired = apperrors.New("TOTP_REQUIRED", "Two-factor code required", http.StatusUnauthorized)
	// ErrTOTPInvalid indicates the supplied authenticator code is wrong.
	ErrTOTPInvalid = apperrors.New("TOTP_INVALID", "Invalid two-factor code", http.StatusUnauthorized)
	// ErrNotAMember indicates the user holds no membership in the workspace.
	ErrNotAMember = apperrors.New("NOT_A_MEMBER", "Not a member of this workspace", http.StatusForbidden)
)

// UserOption customises the UserService.
type UserOption func(*UserService)

// WithUserClock injects a custom time source, primarily for testing.
func WithUserClock(clock func() time.Time) UserOption {
	return func(s *UserService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOTPDigits overrides the email one-time code length.
func WithOTPDigits(digits int) UserOption {
	return func(s *UserService) {
		if digits > 0 {
			s.otpDigits = digits
		}
	}
}

// WithOTPExpiry overrides the email one-time code lifetime.
func WithOTPExpiry(d time.Duration) UserOption {
	return func(s *UserService) {
		if d > 0 {
			s.otpExpiry = d
		}
	}
}

// WithTOTPIssuer overrides the issuer encoded in provisioning URIs.
func WithTOTPIssuer(issuer string) UserOption {
	return func(s *UserService) {
		if strings.TrimSpace(issuer) != "" {
			s.totpIssuer = issuer
		}
	}
}

// UserService handles account lifecycle: signup, verification, login,
// two-factor enrolment, and active-workspace selection.
type UserService struct {
	db     *gorm.DB
	mailer mail.Mailer

	otpDigits  int
	otpExpiry  time.Duration
	totpIssuer string
	now        func() time.Time
	log        *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, mailer mail.Mailer, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}

	service := &UserService{
		db:         db,
		mailer:     mailer,
		otpDigits:  defaultOTPDigits,
		otpExpiry:  defaultOTPExpiry,
		totpIssuer: "BillCraft",
		now:        time.Now,
		log:        logger.WithModule("users"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// SignupInput captures new account registration data.
type SignupInput struct {
	Name          string
	Email         string
	Password      string
	WorkspaceName string
}

// Signup registers a user, provisions their first workspace with an owner
// membership, and dispatches a verification code. The created workspace
// becomes the user's active workspace.
func (s *UserService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters")
	}

	workspaceName := strings.TrimSpace(input.WorkspaceName)
	if workspaceName == "" {
		workspaceName = strings.TrimSpace(input.Name) + "'s workspace"
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	code, err := crypto.GenerateNumericCode(s.otpDigits)
	if err != nil {
		return nil, fmt.Errorf("user service: generate otp: %w", err)
	}

	now := s.now()
	expires := now.Add(s.otpExpiry)

	user := &models.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		Password:     hash,
		OTPHash:      crypto.HashToken(code),
		OTPExpiresAt: &expires,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("user service: create user: %w", err)
		}

		workspace := &models.Workspace{
			Name:    workspaceName,
			OwnerID: user.ID,
			Plan:    models.PlanFree,
			Status:  models.WorkspaceActive,
		}
		if err := tx.Create(workspace).Error; err != nil {
			return fmt.Errorf("user service: create workspace: %w", err)
		}

		membership := &models.Membership{
			UserID:      user.ID,
			WorkspaceID: workspace.ID,
			Role:        models.RoleOwner,
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("user service: create membership: %w", err)
		}

		if err := tx.Model(user).Update("active_workspace_id", workspace.ID).Error; err != nil {
			return fmt.Errorf("user service: set active workspace: %w", err)
		}
		user.ActiveWorkspaceID = &workspace.ID

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendOTP(ctx, email, code)

	return user, nil
}

// RequestOTP issues a fresh verification code for the given email. Succeeds
// silently for unknown addresses to avoid account enumeration.
func (s *UserService) RequestOTP(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("user service: load user: %w", err)
	}

	code, err := crypto.GenerateNumericCode(s.otpDigits)
	if err != nil {
		return fmt.Errorf("user service: generate otp: %w", err)
	}

	expires := s.now().Add(s.otpExpiry)
	updates := map[string]any{
		"otp_hash":       crypto.HashToken(code),
		"otp_expires_at": expires,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("user service: store otp: %w", err)
	}

	s.sendOTP(ctx, email, code)
	return nil
}

// VerifyOTP consumes a verification code and marks the account verified.
func (s *UserService) VerifyOTP(ctx context.Context, email, code string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOTPInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if user.OTPHash == "" || !crypto.TokenEqual(user.OTPHash, code) {
		return nil, ErrOTPInvalid
	}
	if user.OTPExpiresAt == nil || s.now().After(*user.OTPExpiresAt) {
		return nil, ErrOTPExpired
	}

	updates := map[string]any{
		"verified":       true,
		"otp_hash":       "",
		"otp_expires_at": nil,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: mark verified: %w", err)
	}
	user.Verified = true

	return &user, nil
}

// Login authenticates email + password, enforcing email verification and the
// authenticator challenge when 2FA is enabled.
func (s *UserService) Login(ctx context.Context, email, password, totpCode string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.Verified {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrNotVerified
	}

	if user.TOTPEnabled {
		if strings.TrimSpace(totpCode) == "" {
			return nil, ErrTOTPRequired
		}
		if !totp.Validate(totpCode, user.TOTPSecret) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, ErrTOTPInvalid
		}
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		s.log.Warn("record last login failed", zap.Error(err))
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &user, nil
}

// GetByID loads a user with memberships and the active workspace.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Memberships.Workspace").
		Preload("ActiveWorkspace").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}

	return &user, nil
}

// SwitchWorkspace changes the user's active workspace. The membership check
// and pointer update run in one transaction so the active pointer can never
// reference a workspace the user does not belong to.
func (s *UserService) SwitchWorkspace(ctx context.Context, userID, workspaceID string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(workspaceID) == "" {
		return apperrors.NewBadRequest("workspace id is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var membership models.Membership
		err := tx.First(&membership, "user_id = ? AND workspace_id = ?", userID, workspaceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotAMember
		}
		if err != nil {
			return fmt.Errorf("user service: check membership: %w", err)
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("active_workspace_id", workspaceID).Error; err != nil {
			return fmt.Errorf("user service: switch workspace: %w", err)
		}
		return nil
	})
}

// TOTPEnrolment carries provisioning material returned from EnrollTOTP.
type TOTPEnrolment struct {
	Secret    string `json:"secret"`
	URL       string `json:"url"`
	QRCodePNG string `json:"qr_code_png"`
}

// EnrollTOTP provisions an authenticator secret for the user. The secret only
// takes effect once ConfirmTOTP validates a code generated from it.
func (s *UserService) EnrollTOTP(ctx context.Context, userID string) (*TOTPEnrolment, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if user.TOTPEnabled {
		return nil, apperrors.ErrInvalidState.WithMessage("two-factor auth already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("user service: generate totp key: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("totp_secret", key.Secret()).Error; err != nil {
		return nil, fmt.Errorf("user service: store totp secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, defaultQRSize)
	if err != nil {
		return nil, fmt.Errorf("user service: encode qr: %w", err)
	}

	return &TOTPEnrolment{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRCodePNG: base64.StdEncoding.EncodeToString(png),
	}, nil
}

// ConfirmTOTP activates authenticator 2FA after validating a first code.
func (s *UserService) ConfirmTOTP(ctx context.Context, userID, code string) error {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user service: load user: %w", err)
	}

	if user.TOTPSecret == "" {
		return apperrors.ErrInvalidState.WithMessage("no pending two-factor enrolment")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return ErrTOTPInvalid
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("totp_enabled", true).Error; err != nil {
		return fmt.Errorf("user service: enable totp: %w", err)
	}
	return nil
}

// DisableTOTP turns off authenticator 2FA after a final code check.
func (s *UserService) DisableTOTP(ctx context.Context, userID, code string) error {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user service: load user: %w", err)
	}

	if !user.TOTPEnabled {
		return apperrors.ErrInvalidState.WithMessage("two-factor auth not enabled")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return ErrTOTPInvalid
	}

	updates := map[string]any{
		"totp_enabled": false,
		"totp_secret":  "",
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("user service: disable totp: %w", err)
	}
	return nil
}

// sendOTP delivers a verification code. Delivery is fire-and-forget; failures
// are logged, never surfaced to the caller.
func (s *UserService) sendOTP(ctx context.Context, email, code string) {
	if s.mailer == nil {
		return
	}

	msg := mail.Message{
		To:      []string{email},
		Subject: "Your BillCraft verification code",
		Body:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.otpExpiry.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("otp email delivery failed", zap.String("email", email), zap.Error(err))
	}
}
