package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/billcraft/billcraft/internal/middleware"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// workspaceScope extracts the resolved workspace and user for a tenant route.
// The middleware chain guarantees both on gated routes; the fallback error
// covers handlers wired without it.
func workspaceScope(c *gin.Context) (workspaceID, userID string, ok bool) {
	workspaceID, wok := middleware.WorkspaceID(c)
	userID, uok := middleware.UserID(c)
	if !wok || !uok {
		response.Error(c, apperrors.ErrNoWorkspace)
		return "", "", false
	}
	return workspaceID, userID, true
}
