package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/dyslexia-ar/internal/analytics"
	"github.com/foxxcyber/dyslexia-ar/internal/database"
	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/models"
	"github.com/foxxcyber/dyslexia-ar/internal/services"
)

// CaptureProcessor runs the capture-to-text pipeline
type CaptureProcessor interface {
	ProcessCapture(ctx context.Context, raw []byte) (*models.CaptureResult, error)
}

// Handler holds all handler dependencies
type Handler struct {
	store   database.Store
	hub     *analytics.Hub
	capture CaptureProcessor
	speech  *services.SpeechService
}

// New creates a new Handler instance
func New(store database.Store, hub *analytics.Hub, capture CaptureProcessor) *Handler {
	return &Handler{
		store:   store,
		hub:     hub,
		capture: capture,
		speech:  services.NewSpeechService("/tts/audio"),
	}
}

// Register mounts every route on app
func (h *Handler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/stats", h.GetStats)

	app.Post("/process-video", h.ProcessVideo)

	app.Post("/feedback", h.SubmitFeedback)
	app.Get("/feedback", h.ListFeedback)

	app.Post("/tts", h.TextToSpeech)
	app.Get("/tts/audio/:id", h.GetSpeechAudio)

	h.registerAnalytics(app)
}

// ErrorHandler is a custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Default to 500
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else {
		logger.WithError(err).WithField("path", c.Path()).Error("Unhandled request error")
	}

	return Error(c, code, message)
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// Health reports liveness
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":             "ok",
		"active_connections": h.hub.ActiveConnections(),
	})
}
