package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/config"
	"github.com/macrolens/productcheck/internal/usecase"
)

// slowRequest marks access log lines at warn
const slowRequest = 2 * time.Second

// RouterDeps are the collaborators the router mounts
type RouterDeps struct {
	Handler  *Handler
	Sessions *usecase.SessionRegistry
	Metrics  HTTPMetrics
	// MetricsHandler serves /metrics when set
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	RegisterValidators()

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(deps.Logger))
	router.Use(LoggerMiddleware(deps.Logger, slowRequest))
	if deps.Metrics != nil {
		router.Use(MetricsMiddleware(deps.Metrics))
	}
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", deps.Handler.HealthCheck)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/sessions/:id/events", deps.Handler.SessionEvents)

		withSession := v1.Group("", SessionMiddleware(deps.Sessions))
		{
			withSession.GET("/suggestions", deps.Handler.GetSuggestions)
			withSession.POST("/verify", deps.Handler.VerifyProduct)
			withSession.POST("/select", deps.Handler.SelectSuggestion)
			withSession.POST("/input", deps.Handler.TypeInput)
			withSession.POST("/scan", deps.Handler.ScanBarcode)
		}
	}

	return router
}
