package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/foxxcyber/dyslexia-ar/internal/analytics"
	"github.com/foxxcyber/dyslexia-ar/internal/config"
	"github.com/foxxcyber/dyslexia-ar/internal/database"
	"github.com/foxxcyber/dyslexia-ar/internal/handlers"
	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/ocr"
	"github.com/foxxcyber/dyslexia-ar/internal/pipeline"
	"github.com/foxxcyber/dyslexia-ar/internal/services"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.Configure(cfg.LogLevel)

	// Connect to the usage store
	store, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open usage store")
	}
	defer store.Close()

	// Analytics hub starts from the durable total
	hub := analytics.NewHub(analytics.HubConfig{
		IdleWindow:   cfg.HeartbeatInterval,
		SendBuffer:   cfg.HubSendBuffer,
		WriteTimeout: cfg.HubWriteTimeout,
	})
	if stats, err := store.GetStats(context.Background()); err != nil {
		logger.WithError(err).Warn("Could not load usage totals, analytics start at zero")
		hub.SetHealth(analytics.HealthDegraded)
	} else {
		hub.Seed(stats.Analyses)
	}

	// OCR workers, one tesseract client each
	ocrPool := ocr.NewPool(cfg.OCRWorkers, ocr.NewTesseract)
	defer ocrPool.Close()
	logger.WithField("workers", ocrPool.Workers()).Info("OCR pool started")

	// Optional capture archive
	opts := pipeline.Options{
		SideEffectTimeout: cfg.SideEffectTimeout,
		MaxPixels:         cfg.MaxImagePixels,
	}
	if cfg.ArchiveEnabled && cfg.ArchiveConfigured() {
		archive, err := services.NewCaptureArchive(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Region, cfg.S3UseSSL)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize capture archive, archiving disabled")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.SideEffectTimeout)
			if err := archive.EnsureBucket(ctx); err != nil {
				logger.WithError(err).Warn("Failed to ensure S3 bucket exists")
			}
			cancel()
			opts.Archiver = archive
			logger.WithField("bucket", archive.GetBucketName()).Info("Capture archive enabled")
		}
	}

	coordinator := pipeline.New(store, ocrPool, hub, opts)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler,
		BodyLimit:             cfg.MaxUploadBytes,
		DisableStartupMessage: cfg.IsProduction(),
		EnablePrintRoutes:     cfg.IsDevelopment(),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	handlers.New(store, hub, coordinator).Register(app)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.WithField("signal", sig.String()).Info("Shutting down")

		// Observers first so their handlers return and the server can drain
		hub.Close()
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			logger.WithError(err).Warn("Server shutdown incomplete")
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
		"memory":      cfg.UsesMemoryStore(),
	}).Info("Server starting")

	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.WithError(err).Error("Server stopped")
	}

	coordinator.Close()
	logger.Logger.Info("Server exited")
}
