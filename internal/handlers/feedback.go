package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

const (
	defaultFeedbackLimit = 20
	maxFeedbackLimit     = 100
)

// SubmitFeedback stores a rating with optional comments and user id, then
// broadcasts it. Form values alias the request buffer, so strings that outlive
// the handler are copied.
func (h *Handler) SubmitFeedback(c *fiber.Ctx) error {
	ratingStr := strings.TrimSpace(c.FormValue("rating"))
	if ratingStr == "" {
		return Error(c, fiber.StatusBadRequest, "rating is required")
	}
	rating, err := strconv.Atoi(ratingStr)
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "rating must be an integer")
	}

	req := &models.CreateFeedbackRequest{Rating: rating}
	if comments := c.FormValue("comments"); comments != "" {
		comments = utils.CopyString(comments)
		req.Comments = &comments
	}
	if userID := strings.TrimSpace(c.FormValue("user_id")); userID != "" {
		userID = utils.CopyString(userID)
		req.UserID = &userID
	}

	fb, err := h.store.AddFeedback(c.UserContext(), req)
	if err != nil {
		logger.WithError(err).Error("Failed to store feedback")
		return Error(c, fiber.StatusInternalServerError, "failed to store feedback")
	}

	h.hub.RecordFeedback(*fb)

	return c.JSON(fiber.Map{
		"status":      "ok",
		"feedback_id": fb.ID,
	})
}

// ListFeedback returns the most recent feedback, newest first
func (h *Handler) ListFeedback(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultFeedbackLimit)
	if limit <= 0 {
		limit = defaultFeedbackLimit
	}
	if limit > maxFeedbackLimit {
		limit = maxFeedbackLimit
	}

	feedback, err := h.store.RecentFeedback(c.UserContext(), limit)
	if err != nil {
		logger.WithError(err).Error("Failed to list feedback")
		return Error(c, fiber.StatusInternalServerError, "failed to list feedback")
	}

	return c.JSON(fiber.Map{"feedback": feedback})
}
