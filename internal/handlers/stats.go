package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

// GetStats merges durable usage counts with the live analytics snapshot
func (h *Handler) GetStats(c *fiber.Ctx) error {
	stats, err := h.store.GetStats(c.UserContext())
	if err != nil {
		logger.WithError(err).Error("Failed to load usage stats")
		return Error(c, fiber.StatusInternalServerError, "failed to load stats")
	}

	snap := h.hub.Snapshot()
	return c.JSON(models.StatsResponse{
		Analyses:      stats.Analyses,
		FeedbackCount: stats.FeedbackCount,
		TotalAnalyses: snap.TotalAnalyses,
		AnalysesToday: snap.AnalysesToday,
		ActiveUsers:   snap.ActiveConnections,
		SystemHealth:  string(snap.SystemHealth),
		LastUpdated:   time.Now().UTC(),
	})
}
