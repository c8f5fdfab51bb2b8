package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/dyslexia-ar/internal/analytics"
	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/middleware"
)

func (h *Handler) registerAnalytics(app fiber.Router) {
	app.Get("/ws/analytics", middleware.WebSocketRequired(), websocket.New(h.AnalyticsSocket))
}

// AnalyticsSocket hands an upgraded connection to the hub until it closes
func (h *Handler) AnalyticsSocket(conn *websocket.Conn) {
	err := h.hub.Serve(context.Background(), conn)
	switch {
	case err == nil:
	case errors.Is(err, analytics.ErrHubClosed):
		logger.Component("analytics").Debug("Analytics connection closed by shutdown")
	default:
		logger.Component("analytics").WithError(err).Info("Analytics connection dropped")
	}
}
