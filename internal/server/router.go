package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vidyabase/vidya-backend/internal/handlers"
)

type RouterConfig struct {
	HydrationHandler *handlers.HydrationHandler
	WorkersHandler   *handlers.WorkersHandler
	HealthHandler    *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/healthz", cfg.HealthHandler.Liveness)
	router.GET("/metrics", cfg.HealthHandler.Metrics)

	api := router.Group("/api")
	{
		api.POST("/hydration", cfg.HydrationHandler.Submit)
		api.GET("/hydration", cfg.HydrationHandler.List)
		api.GET("/hydration/:id", cfg.HydrationHandler.Status)

		api.POST("/workers", cfg.WorkersHandler.Spawn)
		api.POST("/workers/:id/drain", cfg.WorkersHandler.Drain)
	}

	return router
}
