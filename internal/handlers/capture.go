package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/preprocess"
)

// ProcessVideo runs one captured frame through the pipeline and returns the
// normalized text
func (h *Handler) ProcessVideo(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "image file is required")
	}

	f, err := file.Open()
	if err != nil {
		logger.WithError(err).Error("Failed to open uploaded capture")
		return Error(c, fiber.StatusInternalServerError, "failed to read upload")
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		logger.WithError(err).Error("Failed to read uploaded capture")
		return Error(c, fiber.StatusInternalServerError, "failed to read upload")
	}

	result, err := h.capture.ProcessCapture(c.UserContext(), raw)
	if err != nil {
		if errors.Is(err, preprocess.ErrDecode) || errors.Is(err, preprocess.ErrInvalidImage) {
			logger.WithError(err).WithField("filename", file.Filename).Warn("Rejected capture")
			return Error(c, fiber.StatusInternalServerError, err.Error())
		}
		logger.WithError(err).Error("Capture processing failed")
		return Error(c, fiber.StatusInternalServerError, "failed to process capture")
	}

	return c.JSON(result)
}
