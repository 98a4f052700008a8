package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/billcraft/billcraft/internal/auth"
	"github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/response"
)

const (
	CtxUserIDKey       = "userID"
	CtxWorkspaceIDKey  = "workspaceID"
	CtxRoleKey         = "workspaceRole"
	CtxPortalGrantsKey = "portalGrants"
)

// Auth enforces JWT authentication using the supplied JWT service. Tokens are
// accepted from the Authorization header or the legacy x-auth-token header.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}

// PortalAuth validates customer portal session tokens and propagates the
// customer grant list into the request context.
func PortalAuth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidatePortalToken(token)
		if err != nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxPortalGrantsKey, claims.CustomerIDs)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(c.GetHeader("x-auth-token"))
}

// PortalGrants returns the customer grant list attached by PortalAuth.
func PortalGrants(c *gin.Context) []string {
	v, ok := c.Get(CtxPortalGrantsKey)
	if !ok {
		return nil
	}
	grants, _ := v.([]string)
	return grants
}
