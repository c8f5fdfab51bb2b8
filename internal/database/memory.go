package database

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

// MemoryStore keeps usage and feedback in process memory. It honours the
// same contract as DB: increments are serialized and reads see the latest write.
type MemoryStore struct {
	mu       sync.RWMutex
	analyses int64
	feedback []models.Feedback
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) IncrementUsage(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses++
	return m.analyses, nil
}

func (m *MemoryStore) AddFeedback(ctx context.Context, req *models.CreateFeedbackRequest) (*models.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fb := models.Feedback{
		ID:        int64(len(m.feedback) + 1),
		Rating:    req.Rating,
		Comments:  cloneString(req.Comments),
		UserID:    cloneString(req.UserID),
		CreatedAt: m.now().UTC(),
	}
	m.feedback = append(m.feedback, fb)

	out := fb
	return &out, nil
}

func (m *MemoryStore) GetStats(ctx context.Context) (*models.UsageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &models.UsageStats{
		Analyses:      m.analyses,
		FeedbackCount: int64(len(m.feedback)),
	}, nil
}

func (m *MemoryStore) RecentFeedback(ctx context.Context, limit int) ([]*models.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.feedback) {
		limit = len(m.feedback)
	}
	out := make([]*models.Feedback, 0, limit)
	for i := len(m.feedback) - 1; i >= 0 && len(out) < limit; i-- {
		fb := m.feedback[i]
		out = append(out, &fb)
	}
	return out, nil
}

// cloneString detaches s from the caller's backing memory.
func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := strings.Clone(*s)
	return &c
}

// Close is a no-op
func (m *MemoryStore) Close() {}
