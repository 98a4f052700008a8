package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// DefaultPortalTokenTTL defines the fallback validity period for portal sessions.
const DefaultPortalTokenTTL = 12 * time.Hour

// Token scopes distinguish user sessions from customer portal sessions.
const (
	ScopeUser   = "user"
	ScopePortal = "portal"
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	PortalTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs. User sessions
// carry UserID; portal sessions instead carry the explicit list of customer
// records the holder may read.
type Claims struct {
	UserID      string   `json:"uid,omitempty"`
	Scope       string   `json:"scope"`
	CustomerIDs []string `json:"grants,omitempty"`
	jwt.RegisteredClaims
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	portalTTL time.Duration
	now       func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	portalTTL := cfg.PortalTokenTTL
	if portalTTL <= 0 {
		portalTTL = DefaultPortalTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		ttl:       ttl,
		portalTTL: portalTTL,
		now:       now,
	}, nil
}

// GenerateAccessToken issues a signed JWT for an authenticated user session.
func (s *JWTService) GenerateAccessToken(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("jwt: user id is required")
	}

	now := s.now()
	claims := &Claims{
		UserID: userID,
		Scope:  ScopeUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	return s.sign(claims)
}

// GeneratePortalToken issues a signed JWT carrying an explicit customer grant
// list for a portal session. Grants are capabilities: each entry is one
// customer record the holder may read, possibly spanning workspaces.
func (s *JWTService) GeneratePortalToken(customerIDs []string) (string, error) {
	if len(customerIDs) == 0 {
		return "", errors.New("jwt: at least one customer grant is required")
	}

	now := s.now()
	claims := &Claims{
		Scope:       ScopePortal,
		CustomerIDs: append([]string(nil), customerIDs...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.portalTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	return s.sign(claims)
}

// ValidateAccessToken parses and validates a user-session JWT.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Scope != ScopeUser {
		return nil, errors.New("jwt: not a user session token")
	}
	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}

	return claims, nil
}

// ValidatePortalToken parses and validates a portal-session JWT.
func (s *JWTService) ValidatePortalToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Scope != ScopePortal {
		return nil, errors.New("jwt: not a portal session token")
	}
	if len(claims.CustomerIDs) == 0 {
		return nil, errors.New("jwt: missing customer grants")
	}

	return claims, nil
}

func (s *JWTService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}

	return &claims, nil
}
