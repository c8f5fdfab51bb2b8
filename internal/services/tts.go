package services

import (
	"fmt"
	"hash/fnv"
	"unicode/utf8"

	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

// DefaultVoice is used when a speech request names none
const DefaultVoice = "en-US-Standard-A"

// secondsPerChar approximates spoken duration for the placeholder renderer
const secondsPerChar = 0.1

// SpeechService returns synthetic speech metadata. No audio is produced.
type SpeechService struct {
	basePath string
}

// NewSpeechService creates a speech stub whose audio URLs live under basePath
func NewSpeechService(basePath string) *SpeechService {
	return &SpeechService{basePath: basePath}
}

// Synthesize describes the audio that would be generated for req
func (s *SpeechService) Synthesize(req models.SpeechRequest) *models.SpeechResult {
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	return &models.SpeechResult{
		AudioURL: s.AudioURL(AudioID(req.Text)),
		Text:     req.Text,
		Voice:    voice,
		Duration: float64(utf8.RuneCountInString(req.Text)) * secondsPerChar,
		Status:   "generated",
	}
}

// AudioURL returns the URL an audio id would be served from
func (s *SpeechService) AudioURL(id string) string {
	return fmt.Sprintf("%s/%s.mp3", s.basePath, id)
}

// AudioID derives a stable id for text
func AudioID(text string) string {
	h := fnv.New32a()
	h.Write([]byte(text))
	return fmt.Sprintf("%d", h.Sum32()%1000000)
}
