package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/valuematch/valuematch-backend/internal/handlers"
	"github.com/valuematch/valuematch-backend/internal/observability"
	"github.com/valuematch/valuematch-backend/internal/utils"
)

type RouterConfig struct {
	RecommendationHandler *handlers.RecommendationHandler
	CompanyHandler        *handlers.CompanyHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	if observability.Enabled() {
		router.Use(otelgin.Middleware("valuematch-backend"))
	}

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/recommendations/stream", cfg.RecommendationHandler.StreamRecommendations)
		api.POST("/recommendations/:id/feedback", cfg.RecommendationHandler.SetFeedback)
		api.GET("/companies/:id", cfg.CompanyHandler.GetCompany)
	}

	return router
}

func allowedOrigins() []string {
	raw := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", nil)
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
