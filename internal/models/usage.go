package models

import (
	"time"
)

// UsageStats is the durable view of completed analyses and stored feedback
type UsageStats struct {
	Analyses      int64 `json:"analyses"`
	FeedbackCount int64 `json:"feedback_count"`
}

// Feedback is a single stored feedback submission. Records are append-only.
type Feedback struct {
	ID        int64     `json:"id"`
	Rating    int       `json:"rating"`
	Comments  *string   `json:"comments"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateFeedbackRequest is the request for storing feedback
type CreateFeedbackRequest struct {
	Rating   int
	Comments *string
	UserID   *string
}

// StatsResponse merges durable usage counts with the live analytics snapshot
type StatsResponse struct {
	Analyses      int64     `json:"analyses"`
	FeedbackCount int64     `json:"feedback_count"`
	TotalAnalyses int64     `json:"total_analyses"`
	AnalysesToday int64     `json:"analyses_today"`
	ActiveUsers   int       `json:"active_users"`
	SystemHealth  string    `json:"system_health"`
	LastUpdated   time.Time `json:"last_updated"`
}
