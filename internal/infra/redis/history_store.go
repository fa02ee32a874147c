package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"studyguide-quiz/internal/domain"
)

// HistoryStore keeps completed attempts per subject in a sorted set scored by completion time:
//
//	ZADD quiz:history:{subject} {completedAt-unix-ms} {attempt-json}
//
// Only the newest maxEntries attempts are kept, and the set expires after ttl of inactivity.
type HistoryStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxEntries int64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewHistoryStore(client *redis.Client, ttl time.Duration, maxEntries int) *HistoryStore {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &HistoryStore{
		client:     client,
		ttl:        ttl,
		maxEntries: int64(maxEntries),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (h *HistoryStore) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	key := h.key(attempt.Subject)

	pipe := h.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(attempt.CompletedAt.UnixMilli()), Member: data})
	// Drop everything but the newest maxEntries.
	pipe.ZRemRangeByRank(ctx, key, 0, -h.maxEntries-1)
	if ttl := h.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (h *HistoryStore) ListAttempts(ctx context.Context, subject string, limit int) ([]domain.Attempt, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := h.client.ZRevRange(ctx, h.key(subject), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	attempts := make([]domain.Attempt, 0, len(members))
	for _, m := range members {
		var a domain.Attempt
		if err := json.Unmarshal([]byte(m), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func (h *HistoryStore) key(subject string) string {
	return "quiz:history:" + subject
}

// ttlWithJitter adds up to 10% jitter to spread expirations.
func (h *HistoryStore) ttlWithJitter() time.Duration {
	if h.ttl <= 0 {
		return 0
	}
	jitterMax := int64(h.ttl) / 10
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ttl + time.Duration(h.rnd.Int63n(jitterMax+1))
}
