package handlers

import (
	"context"
	"net/http"
	"time"

	"incentives-backend/internal/cache"
	"incentives-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler exposes the privileged operations: forcing a refresh
// and flushing the cache.
type AdminHandler struct {
	scheduler *services.SchedulerService
	cache     cache.Cache
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(scheduler *services.SchedulerService, c cache.Cache) *AdminHandler {
	return &AdminHandler{scheduler: scheduler, cache: c}
}

// TriggerRefreshHandler starts a refresh outside the schedule. The
// refresh runs in the background; 202 means it was accepted, not that
// it finished.
// POST /api/admin/refresh
func (h *AdminHandler) TriggerRefreshHandler(c *gin.Context) {
	username := c.GetString("admin_username")
	logrus.WithField("admin", username).Info("🔧 Manual refresh requested")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := h.scheduler.ManualRefresh(ctx); err != nil {
			logrus.WithError(err).Error("❌ Manual refresh failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Refresh started",
	})
}

// FlushCacheHandler drops every cached entry, forcing the next refresh
// to hit the upstream APIs.
// DELETE /api/admin/cache
func (h *AdminHandler) FlushCacheHandler(c *gin.Context) {
	username := c.GetString("admin_username")

	if err := h.cache.Flush(c.Request.Context()); err != nil {
		logrus.WithError(err).Error("❌ Cache flush failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to flush cache",
			"code":    "CACHE_FLUSH_FAILED",
		})
		return
	}

	logrus.WithField("admin", username).Info("🧹 Cache flushed")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cache flushed",
	})
}
