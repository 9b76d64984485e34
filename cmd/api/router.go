package api

import (
	"net/http"

	alertDelivery "plateping-backend/internal/alert/delivery"
	alertUsecase "plateping-backend/internal/alert/usecase"
	"plateping-backend/internal/auth/delivery"
	authUsecase "plateping-backend/internal/auth/usecase"
	"plateping-backend/internal/notification"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUc authUsecase.AuthUsecase, alertUc alertUsecase.AlertUsecase, dispatcher *notification.Dispatcher) {
	authHandler := delivery.NewAuthHandler(authUc)
	alertHandler := alertDelivery.NewAlertHandler(alertUc, dispatcher)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", delivery.AuthMiddleware(authUc), authHandler.Me)
		}

		// Device token routes (protected)
		devices := api.Group("/devices")
		devices.Use(delivery.AuthMiddleware(authUc))
		{
			devices.POST("", authHandler.RegisterDevice)
			devices.DELETE("/:token", authHandler.UnregisterDevice)
		}

		// Plate registration routes (protected)
		plates := api.Group("/plates")
		plates.Use(delivery.AuthMiddleware(authUc))
		{
			plates.POST("", alertHandler.RegisterPlate)
			plates.GET("", alertHandler.ListPlates)
			plates.DELETE("/:fingerprint", alertHandler.UnregisterPlate)
		}

		// Alert routes (protected)
		alerts := api.Group("/alerts")
		alerts.Use(delivery.AuthMiddleware(authUc))
		{
			alerts.POST("", alertHandler.Report)
			alerts.GET("/sent", alertHandler.ListSent)
			alerts.GET("/received", alertHandler.ListReceived)
			alerts.GET("/:id", alertHandler.GetAlert)
			alerts.POST("/:id/respond", alertHandler.Respond)
			alerts.POST("/:id/resolve", alertHandler.Resolve)
			alerts.POST("/:id/cancel", alertHandler.Cancel)
			alerts.POST("/:id/ignore", alertHandler.Ignore)
		}

		// Stats (protected)
		api.GET("/me/stats", delivery.AuthMiddleware(authUc), alertHandler.GetStats)
	}
}
