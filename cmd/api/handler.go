package api

import (
	alertUsecasePkg "plateping-backend/internal/alert/usecase"
	authUsecasePkg "plateping-backend/internal/auth/usecase"
	"plateping-backend/internal/notification"
	"plateping-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase  authUsecasePkg.AuthUsecase
	alertUsecase alertUsecasePkg.AlertUsecase
	dispatcher   *notification.Dispatcher
	config       *config.Config
}

func NewHandler(authUc authUsecasePkg.AuthUsecase, alertUc alertUsecasePkg.AlertUsecase, dispatcher *notification.Dispatcher, cfg *config.Config) *Handler {
	return &Handler{
		authUsecase:  authUc,
		alertUsecase: alertUc,
		dispatcher:   dispatcher,
		config:       cfg,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	SetupRoutes(r, h.authUsecase, h.alertUsecase, h.dispatcher)

	return r.Run(addr)
}
