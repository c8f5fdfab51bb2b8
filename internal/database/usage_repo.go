package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

// ErrUsageRowMissing means the single usage_stats row was deleted out from under the service
var ErrUsageRowMissing = errors.New("usage counter row missing")

// IncrementUsage adds one completed analysis and returns the new total.
// The single UPDATE is atomic with respect to concurrent increments.
func (db *DB) IncrementUsage(ctx context.Context) (int64, error) {
	var analyses int64
	err := db.Pool.QueryRow(ctx,
		"UPDATE usage_stats SET analyses = analyses + 1 WHERE id = 1 RETURNING analyses",
	).Scan(&analyses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUsageRowMissing
		}
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return analyses, nil
}

// GetStats reads the analyses counter and feedback count in one statement
func (db *DB) GetStats(ctx context.Context) (*models.UsageStats, error) {
	stats := &models.UsageStats{}
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT analyses FROM usage_stats WHERE id = 1), 0),
			(SELECT COUNT(*) FROM feedback)
	`).Scan(&stats.Analyses, &stats.FeedbackCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return stats, nil
}

// AddFeedback appends a feedback record
func (db *DB) AddFeedback(ctx context.Context, req *models.CreateFeedbackRequest) (*models.Feedback, error) {
	fb := &models.Feedback{
		Rating:   req.Rating,
		Comments: req.Comments,
		UserID:   req.UserID,
	}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO feedback (rating, comments, user_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, req.Rating, req.Comments, req.UserID).Scan(&fb.ID, &fb.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store feedback: %w", err)
	}
	return fb, nil
}

// RecentFeedback returns the newest feedback records first
func (db *DB) RecentFeedback(ctx context.Context, limit int) ([]*models.Feedback, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, rating, comments, user_id, created_at
		FROM feedback
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Feedback, 0, limit)
	for rows.Next() {
		fb := &models.Feedback{}
		if err := rows.Scan(&fb.ID, &fb.Rating, &fb.Comments, &fb.UserID, &fb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
