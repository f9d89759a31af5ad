package router

import (
	"incentives-backend/internal/app"
	"incentives-backend/internal/handlers"
	"incentives-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupAPIRoutes registers the /api route tree.
func SetupAPIRoutes(r *gin.Engine, container *app.ServiceContainer, localhostOnly *middleware.LocalhostOnly, logger *logrus.Logger) {
	dashboardHandler := handlers.NewDashboardHandler(container.DashboardService, container.WebSocketPushService)
	adminAuthHandler := handlers.NewAdminAuthHandler()
	adminHandler := handlers.NewAdminHandler(container.SchedulerService, container.Cache)
	wsHandler := handlers.NewWebSocketHandler(container.WebSocketPushService)
	adminAuth := middleware.NewAdminAuthMiddleware(logger)

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheckHandler)
		api.GET("/status", dashboardHandler.GetStatusHandler)

		// Dashboard
		api.GET("/dashboard", dashboardHandler.GetDashboardHandler)
		api.GET("/dashboard/:date", dashboardHandler.GetDashboardHandler)
		api.GET("/markets", dashboardHandler.GetMarketsHandler)

		// Refresh push stream
		api.GET("/ws", wsHandler.HandleConnection)

		// Admin: login is IP-restricted, the rest needs the admin JWT.
		admin := api.Group("/admin")
		admin.Use(localhostOnly.Restrict())
		{
			admin.POST("/login", adminAuthHandler.AdminLoginHandler)
			admin.POST("/totp/generate", adminAuthHandler.GenerateTOTPSecretHandler)

			protected := admin.Group("")
			protected.Use(adminAuth.RequireAdminAuth())
			{
				protected.POST("/refresh", adminHandler.TriggerRefreshHandler)
				protected.DELETE("/cache", adminHandler.FlushCacheHandler)
			}
		}
	}
}
