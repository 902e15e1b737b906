package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
  "github.com/docpress/docpress-backend/internal/handlers"
  "github.com/docpress/docpress-backend/internal/middleware"
)

type RouterConfig struct {
  ServiceName      string
  AllowOrigins     []string
  DocumentHandler  *handlers.DocumentHandler
  AnalyticsHandler *handlers.AnalyticsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  router.Use(otelgin.Middleware(cfg.ServiceName))

  // Cors
  origins := cfg.AllowOrigins
  if len(origins) == 0 {
    origins = []string{"http://localhost:3000"}
  }
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

  router.GET("/healthcheck", handlers.HealthCheck)

  document := router.Group("/document")
  document.Use(middleware.RequestInfo())
  {
    document.POST("", cfg.DocumentHandler.Upload)
    document.POST("/convert", cfg.DocumentHandler.Convert)
    document.POST("/merge", cfg.DocumentHandler.Merge)
    document.POST("/split", cfg.DocumentHandler.Split)
    document.POST("/compress", cfg.DocumentHandler.Compress)
  }

  router.POST("/analytics", cfg.AnalyticsHandler.Report)

  return router
}
