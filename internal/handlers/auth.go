package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/billcraft/billcraft/internal/auth"
	"github.com/billcraft/billcraft/internal/middleware"
	"github.com/billcraft/billcraft/internal/services"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/response"
)

// AuthHandler exposes account lifecycle endpoints.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) (*AuthHandler, error) {
	if users == nil || jwt == nil {
		return nil, errors.New("auth handler: users service and jwt service are required")
	}
	return &AuthHandler{users: users, jwt: jwt}, nil
}

type signupRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=120"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=8,max=128"`
	WorkspaceName string `json:"workspace_name" validate:"omitempty,max=120"`
}

// Signup registers a new account and dispatches a verification code.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Signup(requestContext(c), services.SignupInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		WorkspaceName: req.WorkspaceName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":    user,
		"message": "Check your email for a verification code",
	})
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,min=4,max=10"`
}

// VerifyOTP confirms a verification code and returns a session token.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.VerifyOTP(requestContext(c), req.Email, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token, "user": user})
}

type requestOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestOTP re-issues a verification code. Always responds 200 to avoid
// revealing which addresses hold accounts.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req requestOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.RequestOTP(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "If the address is registered, a code is on its way"})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code" validate:"omitempty,min=6,max=8"`
}

// Login authenticates and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Login(requestContext(c), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated user's profile with memberships.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

type switchWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
}

// SwitchWorkspace changes the active workspace for subsequent requests.
func (h *AuthHandler) SwitchWorkspace(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req switchWorkspaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.SwitchWorkspace(requestContext(c), userID, req.WorkspaceID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"active_workspace_id": req.WorkspaceID})
}

// EnrollTOTP provisions an authenticator secret for the current user.
func (h *AuthHandler) EnrollTOTP(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	enrolment, err := h.users.EnrollTOTP(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, enrolment)
}

type totpCodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

// ConfirmTOTP activates authenticator 2FA after a first valid code.
func (h *AuthHandler) ConfirmTOTP(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req totpCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.ConfirmTOTP(requestContext(c), userID, req.Code); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"totp_enabled": true})
}

// DisableTOTP turns off authenticator 2FA.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req totpCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.DisableTOTP(requestContext(c), userID, req.Code); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"totp_enabled": false})
}
