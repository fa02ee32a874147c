package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguide-quiz/internal/domain"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), time.Minute)

	snap := domain.SessionSnapshot{
		ID:        "s1",
		Subject:   "u1",
		Filename:  "notes.txt",
		Questions: sampleQuestions(),
		Answers:   map[domain.QuestionID]string{"1": "4"},
		Cursor:    1,
	}
	require.NoError(t, store.Save(ctx, snap))
	require.True(t, mr.Exists("quiz:session:s1"))
	assert.Equal(t, time.Minute, mr.TTL("quiz:session:s1"))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snap.Answers, loaded.Answers)
	assert.Equal(t, 1, loaded.Cursor)
	assert.Equal(t, snap.Questions, loaded.Questions)

	require.NoError(t, store.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("quiz:session:s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStoreExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), time.Minute)

	require.NoError(t, store.Save(ctx, domain.SessionSnapshot{ID: "s1", Questions: sampleQuestions()}))
	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "1", Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
		{ID: "2", Prompt: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
	}
}
