package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
)

func TestRequestStateJSON(t *testing.T) {
	cases := []struct {
		name  string
		state RequestState[int]
		want  string
	}{
		{"zero value is idle", RequestState[int]{}, `{"status":"idle"}`},
		{"pending", Pending[int](), `{"status":"pending"}`},
		{"succeeded", Succeeded(7), `{"status":"succeeded","data":7}`},
		{
			"provider failure is retryable",
			Failed[int](&domain.ProviderError{StatusCode: 500, Message: "No relevant content found"}),
			`{"status":"failed","error":"No relevant content found","retryable":true}`,
		},
		{
			"contract failure is not",
			Failed[int](domain.ErrInvalidInput),
			`{"status":"failed","error":"invalid question set"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.state)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestRequestStateAccessors(t *testing.T) {
	v, ok := Succeeded("quiz").Value()
	assert.True(t, ok)
	assert.Equal(t, "quiz", v)

	_, ok = Idle[string]().Value()
	assert.False(t, ok)

	boom := errors.New("boom")
	assert.Equal(t, StatusFailed, Failed[string](boom).Status())
	assert.Same(t, boom, Failed[string](boom).Err())
}

func TestRequestGuardDiscardsStaleTokens(t *testing.T) {
	guard := NewRequestGuard()

	first := guard.Begin("s1")
	second := guard.Begin("s1")
	other := guard.Begin("s2")

	assert.False(t, guard.IsCurrent("s1", first))
	assert.True(t, guard.IsCurrent("s1", second))
	assert.True(t, guard.IsCurrent("s2", other))

	guard.Forget("s1")
	assert.False(t, guard.IsCurrent("s1", second))
	third := guard.Begin("s1")
	assert.Greater(t, third, second)
}

func TestDiscardForgetsExpiredSession(t *testing.T) {
	service := NewQuizService(nil, expiredSessions{}, nil)
	service.guard.Begin("gone")
	require.Equal(t, 1, service.guard.Len())

	err := service.Discard(context.Background(), auth.Credentials{Token: "t", Subject: "u1"}, "gone")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Zero(t, service.guard.Len())
}

// expiredSessions behaves like a store whose entries have all timed out.
type expiredSessions struct{}

func (expiredSessions) Save(context.Context, domain.SessionSnapshot) error { return nil }

func (expiredSessions) Load(context.Context, string) (domain.SessionSnapshot, error) {
	return domain.SessionSnapshot{}, domain.ErrSessionNotFound
}

func (expiredSessions) Delete(context.Context, string) error { return nil }
