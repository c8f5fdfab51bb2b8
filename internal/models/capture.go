package models

import (
	"time"
)

// CaptureResult is the outcome of one capture-to-text pipeline run
type CaptureResult struct {
	TransformedText string    `json:"transformed_text"`
	WordCount       int       `json:"word_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// SpeechRequest is the form input for the speech stub
type SpeechRequest struct {
	Text  string
	Voice string
}

// SpeechResult describes a synthetic speech rendition of some text
type SpeechResult struct {
	AudioURL string  `json:"audio_url"`
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Duration float64 `json:"duration"`
	Status   string  `json:"status"`
}
