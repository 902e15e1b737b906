package main

import (
  "context"
  "fmt"
  "os"
  "strings"
  "time"
  "github.com/docpress/docpress-backend/internal/convert"
  "github.com/docpress/docpress-backend/internal/db"
  "github.com/docpress/docpress-backend/internal/handlers"
  "github.com/docpress/docpress-backend/internal/logger"
  "github.com/docpress/docpress-backend/internal/observability"
  "github.com/docpress/docpress-backend/internal/pdftools"
  "github.com/docpress/docpress-backend/internal/repos"
  "github.com/docpress/docpress-backend/internal/server"
  "github.com/docpress/docpress-backend/internal/services"
  "github.com/docpress/docpress-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx := context.Background()

  // Tracing (no-op unless OTEL_ENABLED)
  otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
    ServiceName: "docpress-backend",
    Environment: utils.GetEnv("APP_ENV", "development", log),
    Version:     utils.GetEnv("APP_VERSION", "dev", log),
  })
  if otelShutdown != nil {
    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      _ = otelShutdown(shutdownCtx)
    }()
  }

  // Env
  maxUploadBytes := utils.GetEnvAsInt64("MAX_UPLOAD_BYTES", 64<<20, log)
  retentionSeconds := utils.GetEnvAsInt("RETENTION_WINDOW_SECONDS", 3600, log)
  sweepSeconds := utils.GetEnvAsInt("SWEEP_INTERVAL_SECONDS", 1800, log)
  deleteBatchSize := utils.GetEnvAsInt("DELETE_BATCH_SIZE", 1000, log)
  analyticsUser := utils.GetEnv("ANALYTICS_USERNAME", "", log)
  analyticsPass := utils.GetEnv("ANALYTICS_PASSWORD", "", log)
  allowOrigins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",")

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Error("Postgres auto migration failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  operationRecordRepo := repos.NewOperationRecordRepo(thePG, log)

  // Services
  log.Info("Setting up Services from main...")
  bucketService, err := services.NewBucketService(log)
  if err != nil {
    log.Error("Could not init BucketService", "error", err)
    os.Exit(1)
  }
  tools := pdftools.New(log)
  if err := tools.AssertReady(ctx); err != nil {
    log.Warn("Document toolchain incomplete, some operations will fail", "error", err)
  }
  registry := convert.DefaultRegistry(tools)
  fetcher := services.NewHTTPSourceFetcher(log, maxUploadBytes*4)
  documentService := services.NewDocumentService(thePG, log, operationRecordRepo, bucketService, fetcher, registry, tools, maxUploadBytes)
  analyticsService := services.NewAnalyticsService(thePG, log, operationRecordRepo)

  // Retention sweeper
  sweeper := services.NewRetentionSweeper(
    thePG,
    log,
    operationRecordRepo,
    bucketService,
    time.Duration(retentionSeconds)*time.Second,
    time.Duration(sweepSeconds)*time.Second,
    deleteBatchSize,
  )
  sweeper.Start(ctx)

  // Handlers
  documentHandler := handlers.NewDocumentHandler(documentService)
  analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, analyticsUser, analyticsPass)

  // Router
  router := server.NewRouter(server.RouterConfig{
    ServiceName:      "docpress-backend",
    AllowOrigins:     allowOrigins,
    DocumentHandler:  documentHandler,
    AnalyticsHandler: analyticsHandler,
  })

  port := utils.GetEnv("PORT", "3000", log)
  log.Info("Starting server", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Fatal("Server exited", "error", err)
  }
}
