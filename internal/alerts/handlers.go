package alerts

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scamshield/scamshield/internal/pagination"
	"github.com/scamshield/scamshield/internal/risk"
)

// Handler provides HTTP endpoints for the alert queue.
type Handler struct {
	service *Service
}

// NewHandler creates a new alerts handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up alert routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/alerts", h.ListAlerts)
	r.GET("/alerts/export.csv", h.ExportCSV)
	r.GET("/alerts/:id", h.GetAlert)
	r.POST("/alerts/:id/decision", h.DecideAlert)
	r.GET("/stats", h.GetStats)
}

// ListAlerts handles GET /v1/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	f, ok := filterFromQuery(c)
	if !ok {
		return
	}

	alerts, next, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list alerts",
		})
		return
	}

	resp := gin.H{
		"alerts":  alerts,
		"count":   len(alerts),
		"hasMore": next != "",
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// GetAlert handles GET /v1/alerts/:id
func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Alert not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load alert",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

// DecideAlert handles POST /v1/alerts/:id/decision
func (h *Handler) DecideAlert(c *gin.Context) {
	var req struct {
		Decision Decision `json:"decision"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	alert, applied, err := h.service.Decide(c.Request.Context(), c.Param("id"), req.Decision)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidDecision):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_decision",
				"message": "Decision must be release or cancel",
			})
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Alert not found",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to apply decision",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alert":           alert,
		"applied":         applied,
		"decision":        alert.Decision,
		"resultingAction": alert.Decision.ResultingAction(),
	})
}

// ExportCSV handles GET /v1/alerts/export.csv
func (h *Handler) ExportCSV(c *gin.Context) {
	f, ok := filterFromQuery(c)
	if !ok {
		return
	}
	// export everything matching the filter unless the caller capped it
	if c.Query("limit") == "" {
		f.Limit = 0
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="alerts.csv"`)
	if err := h.service.ExportCSV(c.Request.Context(), c.Writer, f); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func filterFromQuery(c *gin.Context) (ListFilter, bool) {
	f := ListFilter{Limit: 50}

	if l := c.Query("level"); l != "" {
		level := risk.Level(l)
		if !level.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Unknown risk level filter",
			})
			return f, false
		}
		f.Level = level
	}
	f.DstContains = c.Query("dst")
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "since must be RFC3339",
			})
			return f, false
		}
		f.Since = t
	}
	f.Undecided = c.Query("undecided") == "true"
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			f.Limit = parsed
			if f.Limit > 500 {
				f.Limit = 500
			}
		}
	}
	if cur := c.Query("cursor"); cur != "" {
		decoded, err := pagination.Decode(cur)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid cursor",
			})
			return f, false
		}
		f.Cursor = decoded
	}
	return f, true
}
