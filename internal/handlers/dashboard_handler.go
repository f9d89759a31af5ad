package handlers

import (
	"net/http"
	"strings"
	"time"

	"incentives-backend/internal/config"
	"incentives-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the public dashboard endpoints.
type DashboardHandler struct {
	dashboard *services.DashboardService
	push      *services.WebSocketPushService
	startedAt time.Time
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(dashboard *services.DashboardService, push *services.WebSocketPushService) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		push:      push,
		startedAt: time.Now(),
	}
}

// GetDashboardHandler returns the full snapshot. With no date (or
// today's date) a cache miss triggers an on-demand refresh; a refresh
// already running maps to 503, a failed one to 502. Past dates are
// served from cache only.
// GET /api/dashboard (latest) and GET /api/dashboard/:date
func (h *DashboardHandler) GetDashboardHandler(c *gin.Context) {
	date := c.Param("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "INVALID_DATE",
			})
			return
		}
	}

	snapshot, err := h.dashboard.LoadOrRefresh(c.Request.Context(), date)
	if err != nil {
		today := time.Now().UTC().Format("2006-01-02")
		switch {
		case strings.Contains(err.Error(), "already in progress"):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "dashboard refresh in progress, retry shortly",
				"code":    "REFRESH_IN_PROGRESS",
			})
		case date == "" || date == today:
			// The error came out of the on-demand refresh itself, so
			// the upstream APIs are to blame, not the client.
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "REFRESH_FAILED",
			})
		default:
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "SNAPSHOT_NOT_FOUND",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    snapshot,
	})
}

// GetMarketsHandler returns the latest snapshot flattened to market
// rows, for table views that don't want the grouped tree. An optional
// ?platform= query filters to one platform (case-insensitive).
// GET /api/markets
func (h *DashboardHandler) GetMarketsHandler(c *gin.Context) {
	snapshot, err := h.dashboard.Load(c.Request.Context(), "")
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "SNAPSHOT_NOT_FOUND",
		})
		return
	}

	markets := snapshot.Aggregate.Markets()
	if platform := c.Query("platform"); platform != "" {
		filtered := markets[:0]
		for _, m := range markets {
			if strings.EqualFold(m.Platform, platform) {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"date":    snapshot.Date,
			"markets": markets,
			"count":   len(markets),
		},
	})
}

// GetStatusHandler reports pipeline status.
// GET /api/status
func (h *DashboardHandler) GetStatusHandler(c *gin.Context) {
	status := gin.H{
		"service":        "incentives-backend",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"refreshing":     h.dashboard.Refreshing(),
		"ws_clients":     h.push.GetActiveConnections(),
	}
	if cfg := config.AppConfig; cfg != nil {
		status["chain"] = gin.H{"id": cfg.Chain.ID, "name": cfg.Chain.Name}
		status["llm_provider"] = cfg.LLM.Provider
		status["refresh_interval"] = cfg.Dashboard.RefreshIntervalDuration().String()
	}

	if snapshot, err := h.dashboard.Load(c.Request.Context(), ""); err == nil {
		status["last_refresh"] = gin.H{
			"date":         snapshot.Date,
			"generated_at": snapshot.GeneratedAt,
			"duration_ms":  snapshot.DurationMS,
			"markets":      len(snapshot.Aggregate.Markets()),
			"has_report":   snapshot.Report != nil,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
	})
}
