package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/metrics"
	"github.com/billcraft/billcraft/pkg/response"
)

// Workspace resolves the authenticated user's active workspace and membership
// role into the request context. The membership is re-fetched on every request
// so role changes take effect immediately, without re-authentication.
//
// A user without an active workspace is not rejected here; handlers that need
// one go through RequireWorkspace and fail with a precondition error.
func Workspace(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxUserIDKey)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		userID, _ := v.(string)

		var user models.User
		err := db.WithContext(c.Request.Context()).
			Select("id", "active_workspace_id").
			First(&user, "id = ?", userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.Error(c, apperrors.ErrUnauthorized)
			} else {
				response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
			}
			c.Abort()
			return
		}

		if user.ActiveWorkspaceID == nil || *user.ActiveWorkspaceID == "" {
			c.Next()
			return
		}

		var membership models.Membership
		err = db.WithContext(c.Request.Context()).
			First(&membership, "user_id = ? AND workspace_id = ?", userID, *user.ActiveWorkspaceID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Active pointer references a workspace the user no longer
				// belongs to. Treat as no workspace rather than crash.
				c.Next()
				return
			}
			response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
			c.Abort()
			return
		}

		c.Set(CtxWorkspaceIDKey, membership.WorkspaceID)
		c.Set(CtxRoleKey, membership.Role)
		c.Next()
	}
}

// RequireWorkspace rejects requests that reach a tenant-scoped route without a
// resolved workspace.
func RequireWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CtxWorkspaceIDKey); !ok {
			response.Error(c, apperrors.ErrNoWorkspace)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole gates a route on an explicit allow-list of workspace roles.
// Matching is exact: there is no role hierarchy beyond the enumeration.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := c.Get(CtxWorkspaceIDKey); !ok {
			response.Error(c, apperrors.ErrNoWorkspace)
			c.Abort()
			return
		}

		v, ok := c.Get(CtxRoleKey)
		if !ok {
			metrics.RoleChecks.WithLabelValues("denied").Inc()
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		role, _ := v.(models.Role)
		if _, ok := allowed[role]; !ok {
			metrics.RoleChecks.WithLabelValues("denied").Inc()
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		metrics.RoleChecks.WithLabelValues("allowed").Inc()
		c.Next()
	}
}

// WorkspaceID returns the resolved workspace for the current request.
func WorkspaceID(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxWorkspaceIDKey)
	if !ok {
		return "", false
	}
	id, _ := v.(string)
	return id, id != ""
}

// UserID returns the authenticated user for the current request.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return "", false
	}
	id, _ := v.(string)
	return id, id != ""
}
