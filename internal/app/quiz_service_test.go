package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguide-quiz/internal/app"
	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
	"studyguide-quiz/internal/infra/memory"
)

var alice = auth.Credentials{Token: "token-a", Subject: "alice"}

func TestPlayThroughAndScoring(t *testing.T) {
	ctx := context.Background()
	service, _, history := newTestService(t)

	view, err := service.Start(ctx, alice, "notes.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, view.State)
	assert.Equal(t, 2, view.Total)
	assert.False(t, view.CanAdvance)

	view, err = service.Answer(ctx, alice, view.ID, "1", "4")
	require.NoError(t, err)
	assert.True(t, view.CanAdvance)
	assert.Equal(t, "4", view.Selected)

	view, err = service.Advance(ctx, alice, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Cursor)
	assert.Equal(t, "Capital of France?", view.Current.Prompt)

	_, err = service.Finalize(ctx, alice, view.ID)
	assert.ErrorIs(t, err, domain.ErrIncomplete)

	view, err = service.Answer(ctx, alice, view.ID, "2", "Lyon")
	require.NoError(t, err)
	assert.True(t, view.CanSubmit)

	view, err = service.Finalize(ctx, alice, view.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Score)
	assert.Equal(t, domain.Score{Correct: 1, Total: 2, Percentage: 50}, *view.Score)
	require.Len(t, view.Review, 2)
	assert.True(t, view.Review[0].Correct)
	assert.Equal(t, "Paris", view.Review[1].CorrectAnswer)

	// A second finalize returns the same score without a second history entry.
	again, err := service.Finalize(ctx, alice, view.ID)
	require.NoError(t, err)
	assert.Equal(t, *view.Score, *again.Score)

	attempts, err := history.ListAttempts(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "notes.txt", attempts[0].Filename)
	assert.Equal(t, 50.0, attempts[0].Score.Percentage)

	_, err = service.Answer(ctx, alice, view.ID, "2", "Paris")
	assert.ErrorIs(t, err, domain.ErrSessionFinalized)
}

func TestStartRequiresCredentials(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Start(context.Background(), auth.Credentials{Subject: "alice"}, "notes.txt", 0)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestStartSurfacesProviderErrors(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Start(context.Background(), alice, "missing.pdf", 0)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

func TestStartRejectsMalformedQuestionSet(t *testing.T) {
	provider := memory.NewStaticProvider(map[string][]domain.Question{
		"bad.txt": {{ID: "1", Options: []string{"A", "B"}, CorrectAnswer: "C"}},
	})
	service := app.NewQuizService(provider, memory.NewSessionStore(), memory.NewHistoryStore())

	_, err := service.Start(context.Background(), alice, "bad.txt", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, domain.IsRetryable(err))
}

func TestStartUsesDefaultQuestionCount(t *testing.T) {
	provider := memory.NewStaticProvider(map[string][]domain.Question{"notes.txt": sampleQuestions()})
	service := app.NewQuizService(provider, memory.NewSessionStore(), memory.NewHistoryStore(),
		app.WithDefaultQuestionCount(1))

	view, err := service.Start(context.Background(), alice, "notes.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Total)

	view, err = service.Start(context.Background(), alice, "notes.txt", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Total)
}

func TestSessionsAreScopedToSubject(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	view, err := service.Start(ctx, alice, "notes.txt", 0)
	require.NoError(t, err)

	bob := auth.Credentials{Token: "token-b", Subject: "bob"}
	_, err = service.Answer(ctx, bob, view.ID, "1", "4")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRegenerateDiscardsPriorSession(t *testing.T) {
	ctx := context.Background()
	service, provider, _ := newTestService(t)

	view, err := service.Start(ctx, alice, "notes.txt", 0)
	require.NoError(t, err)
	_, err = service.Answer(ctx, alice, view.ID, "1", "4")
	require.NoError(t, err)

	provider.Set("notes.txt", []domain.Question{
		{ID: "7", Prompt: "New question", Options: []string{"yes", "no"}, CorrectAnswer: "yes"},
	})
	fresh, err := service.Regenerate(ctx, alice, view.ID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, fresh.ID)
	assert.Equal(t, domain.StateInProgress, fresh.State)
	assert.Empty(t, fresh.Answers)
	assert.Equal(t, 1, fresh.Total)
	assert.Equal(t, domain.QuestionID("7"), fresh.Current.ID)
}

func TestRegenerateDropsSupersededResponse(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	static := memory.NewStaticProvider(map[string][]domain.Question{"notes.txt": sampleQuestions()})
	gated := &gatedProvider{next: static, release: make(chan struct{}), entered: make(chan struct{}, 2)}
	service := app.NewQuizService(gated, sessions, memory.NewHistoryStore())

	view, err := service.Start(ctx, alice, "notes.txt", 0)
	require.NoError(t, err)

	gated.block(true)
	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = service.Regenerate(ctx, alice, view.ID)
	}()
	<-gated.entered

	// A second request for the same document supersedes the first while it is
	// still in flight, and gets its own provider call.
	gated.block(false)
	static.Set("notes.txt", sampleQuestions()[:1])
	fresh, err := service.Regenerate(ctx, alice, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Total)

	close(gated.release)
	wg.Wait()
	assert.ErrorIs(t, slowErr, domain.ErrStaleRequest)

	current, err := service.Get(ctx, alice, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Total, "stale response must not replace the newer session")
}

func TestStartSurvivesCancelledSharedCaller(t *testing.T) {
	static := memory.NewStaticProvider(map[string][]domain.Question{"notes.txt": sampleQuestions()})
	gated := &gatedProvider{next: static, release: make(chan struct{}), entered: make(chan struct{}, 2), honorCtx: true}
	gated.block(true)
	service := app.NewQuizService(gated, memory.NewSessionStore(), memory.NewHistoryStore())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := service.Start(ctxA, alice, "notes.txt", 0)
		errA <- err
	}()
	<-gated.entered

	type result struct {
		view app.SessionView
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		view, err := service.Start(context.Background(), alice, "notes.txt", 0)
		resB <- result{view, err}
	}()
	// Give B time to join the in-flight fetch before A goes away.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(gated.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 2, b.view.Total)
}

func TestDiscardRemovesSession(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	view, err := service.Start(ctx, alice, "notes.txt", 0)
	require.NoError(t, err)
	require.NoError(t, service.Discard(ctx, alice, view.ID))

	_, err = service.Get(ctx, alice, view.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestObserverSeesLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	provider := memory.NewStaticProvider(map[string][]domain.Question{"notes.txt": sampleQuestions()})
	service := app.NewQuizService(provider, memory.NewSessionStore(), memory.NewHistoryStore(),
		app.WithObserver(obs),
		app.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
		app.WithIDGenerator(func() string { return "fixed-id" }),
	)

	view, err := service.Start(ctx, alice, "notes.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", view.ID)
	_, _ = service.Answer(ctx, alice, view.ID, "1", "4")
	_, _ = service.Answer(ctx, alice, view.ID, "2", "Paris")
	_, err = service.Finalize(ctx, alice, view.ID)
	require.NoError(t, err)
	_, _ = service.Start(ctx, alice, "missing.pdf", 0)

	assert.Equal(t, 1, obs.started)
	assert.Equal(t, []float64{100}, obs.scores)
	assert.Equal(t, 1, obs.failures)
}

func newTestService(t *testing.T) (*app.QuizService, *memory.StaticProvider, *memory.HistoryStore) {
	t.Helper()
	provider := memory.NewStaticProvider(map[string][]domain.Question{"notes.txt": sampleQuestions()})
	history := memory.NewHistoryStore()
	return app.NewQuizService(provider, memory.NewSessionStore(), history), provider, history
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		{ID: "2", Prompt: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
	}
}

// gatedProvider holds requests until release is closed while blocking is on.
type gatedProvider struct {
	next    app.QuizProvider
	release chan struct{}
	entered chan struct{}

	// honorCtx makes a held request fail once its context is cancelled.
	honorCtx bool

	mu       sync.Mutex
	blocking bool
}

func (p *gatedProvider) block(on bool) {
	p.mu.Lock()
	p.blocking = on
	p.mu.Unlock()
}

func (p *gatedProvider) GenerateQuiz(ctx context.Context, creds auth.Credentials, req domain.QuizRequest) ([]domain.Question, error) {
	p.mu.Lock()
	blocking := p.blocking
	p.mu.Unlock()
	// Resolve before holding so a held response reflects the set at request time.
	questions, err := p.next.GenerateQuiz(ctx, creds, req)
	if blocking {
		p.entered <- struct{}{}
		if p.honorCtx {
			select {
			case <-p.release:
			case <-ctx.Done():
				return nil, &domain.ProviderError{Message: domain.DefaultProviderMessage, Err: ctx.Err()}
			}
		} else {
			<-p.release
		}
	}
	return questions, err
}

type recordingObserver struct {
	started  int
	scores   []float64
	failures int
}

func (o *recordingObserver) SessionStarted(string) { o.started++ }

func (o *recordingObserver) SessionCompleted(score domain.Score) {
	o.scores = append(o.scores, score.Percentage)
}

func (o *recordingObserver) ProviderFailed(error) { o.failures++ }
