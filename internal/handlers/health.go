package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/pkg/response"
)

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	db      *gorm.DB
	started time.Time
	version string
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now(), version: version}
}

// Health returns service status. Database failure degrades the status but the
// endpoint still answers 200 so probes can distinguish down from degraded.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(requestContext(c))
		}
		if err != nil {
			status = "degraded"
			dbStatus = "unreachable"
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":   status,
		"database": dbStatus,
		"version":  h.version,
		"uptime":   time.Since(h.started).Truncate(time.Second).String(),
	})
}
