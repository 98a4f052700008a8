package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/billcraft/billcraft/internal/services"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/response"
)

// ReportHandler exposes financial summary endpoints.
type ReportHandler struct {
	reports *services.ReportService
	now     func() time.Time
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports *services.ReportService) (*ReportHandler, error) {
	if reports == nil {
		return nil, errors.New("report handler: report service is required")
	}
	return &ReportHandler{reports: reports, now: time.Now}, nil
}

// Summary returns the workspace financial summary. The period defaults to the
// current calendar month; from/to accept RFC 3339 or YYYY-MM-DD values.
func (h *ReportHandler) Summary(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	now := h.now()
	period := services.ReportPeriod{
		From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		To:   now,
	}

	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		parsed, err := parseTimeQuery(raw)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("from must be an RFC 3339 timestamp or YYYY-MM-DD date"))
			return
		}
		period.From = parsed
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		parsed, err := parseTimeQuery(raw)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("to must be an RFC 3339 timestamp or YYYY-MM-DD date"))
			return
		}
		period.To = parsed
	}

	summary, err := h.reports.Summarize(requestContext(c), workspaceID, period)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

func parseTimeQuery(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}
