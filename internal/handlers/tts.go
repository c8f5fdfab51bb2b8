package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

// TextToSpeech returns placeholder speech metadata for the submitted text
func (h *Handler) TextToSpeech(c *fiber.Ctx) error {
	text := c.FormValue("text")
	if text == "" {
		return Error(c, fiber.StatusBadRequest, "text is required")
	}

	return c.JSON(h.speech.Synthesize(models.SpeechRequest{
		Text:  text,
		Voice: c.FormValue("voice"),
	}))
}

// GetSpeechAudio is a placeholder for serving generated audio
func (h *Handler) GetSpeechAudio(c *fiber.Ctx) error {
	id := c.Params("id")
	return c.JSON(fiber.Map{
		"message":   fmt.Sprintf("Audio file %s would be served here", id),
		"audio_url": h.speech.AudioURL(id),
	})
}
