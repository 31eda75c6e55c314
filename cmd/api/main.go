package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/api/handlers"
	"github.com/urbanfix/backend/internal/bootstrap"
	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/internal/middleware/ratelimit"
	"github.com/urbanfix/backend/internal/middleware/security"
	"github.com/urbanfix/backend/internal/middleware/validation"
	"github.com/urbanfix/backend/pkg/config"
	appLogger "github.com/urbanfix/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting UrbanFix complaint analysis API")

	metrics.Init()

	components, err := bootstrap.Build(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := components.SeedDepartments(context.Background()); err != nil {
		appLogger.Warn("Failed to seed departments", zap.Error(err))
	}

	// Load the detector eagerly so the first road complaint does not pay for it.
	go components.Detector.Ready(context.Background())

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: func() string { return uuid.New().String() }}))
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	predictionHandler := handlers.NewPredictionHandler(components.Predictions)
	departmentHandler := handlers.NewDepartmentHandler(components.Suggester, components.SQLite)
	wsHandler := handlers.NewWebSocketHandler(components.Predictions)

	checks := map[string]handlers.Check{"sqlite": components.SQLite.Ping}
	if components.Redis != nil {
		checks["redis"] = components.Redis.Ping
	}
	healthHandler := handlers.NewHealthHandler(checks).WithCircuit("llm", components.LLM.CircuitState)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/predictions", websocket.New(wsHandler.HandleConnection))

	guarded := api.Group("", limiter.Middleware(), validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	guarded.Post("/predictions", predictionHandler.CreatePrediction)
	guarded.Get("/predictions/:complaintID", predictionHandler.GetPrediction)

	guarded.Post("/departments/suggest", departmentHandler.Suggest)
	guarded.Get("/departments", departmentHandler.ListDepartments)
	guarded.Post("/departments", departmentHandler.CreateDepartment)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
