package memory

import (
	"context"
	"sort"
	"sync"

	"studyguide-quiz/internal/domain"
)

// HistoryStore keeps completed attempts in memory.
type HistoryStore struct {
	mu       sync.RWMutex
	attempts map[string][]domain.Attempt
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{attempts: make(map[string][]domain.Attempt)}
}

func (h *HistoryStore) RecordAttempt(_ context.Context, attempt domain.Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[attempt.Subject] = append(h.attempts[attempt.Subject], attempt)
	return nil
}

// ListAttempts returns up to limit attempts for subject, newest first.
func (h *HistoryStore) ListAttempts(_ context.Context, subject string, limit int) ([]domain.Attempt, error) {
	h.mu.RLock()
	out := append([]domain.Attempt(nil), h.attempts[subject]...)
	h.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
