package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
)

// QuizProvider generates questions for a previously uploaded document.
type QuizProvider interface {
	GenerateQuiz(ctx context.Context, creds auth.Credentials, req domain.QuizRequest) ([]domain.Question, error)
}

// SessionRepository abstracts where quiz sessions live between events (in-memory, Redis).
type SessionRepository interface {
	Save(ctx context.Context, snap domain.SessionSnapshot) error
	Load(ctx context.Context, id string) (domain.SessionSnapshot, error)
	Delete(ctx context.Context, id string) error
}

// HistoryRepository keeps completed attempts.
type HistoryRepository interface {
	RecordAttempt(ctx context.Context, attempt domain.Attempt) error
	ListAttempts(ctx context.Context, subject string, limit int) ([]domain.Attempt, error)
}

// Observer is notified of session lifecycle events (metrics).
type Observer interface {
	SessionStarted(filename string)
	SessionCompleted(score domain.Score)
	ProviderFailed(err error)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(string)         {}
func (nopObserver) SessionCompleted(domain.Score) {}
func (nopObserver) ProviderFailed(error)          {}

// QuizService contains the quiz use cases: fetch questions, drive the session, record history.
type QuizService struct {
	provider QuizProvider
	sessions SessionRepository
	history  HistoryRepository
	observer Observer
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
	// defaultCount is requested when Start is called without a count; zero leaves it to the provider.
	defaultCount int

	guard *RequestGuard
	sf    singleflight.Group
	// mu serializes load-mutate-save so one session never sees interleaved events.
	mu sync.Mutex
}

type Option func(*QuizService)

func WithLogger(log *zap.Logger) Option {
	return func(s *QuizService) { s.log = log }
}

func WithObserver(o Observer) Option {
	return func(s *QuizService) { s.observer = o }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *QuizService) { s.newID = newID }
}

func WithDefaultQuestionCount(n int) Option {
	return func(s *QuizService) { s.defaultCount = n }
}

func NewQuizService(provider QuizProvider, sessions SessionRepository, history HistoryRepository, opts ...Option) *QuizService {
	s := &QuizService{
		provider: provider,
		sessions: sessions,
		history:  history,
		observer: nopObserver{},
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		guard:    NewRequestGuard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fetches a question set for filename and opens a new session over it.
func (s *QuizService) Start(ctx context.Context, creds auth.Credentials, filename string, numQuestions int) (SessionView, error) {
	if filename == "" {
		return SessionView{}, fmt.Errorf("%w: missing filename", domain.ErrInvalidInput)
	}
	if numQuestions <= 0 {
		numQuestions = s.defaultCount
	}
	id := s.newID()
	token := s.guard.Begin(id)

	questions, err := s.fetch(ctx, creds, domain.QuizRequest{Filename: filename, NumQuestions: numQuestions})
	if err != nil {
		s.guard.Forget(id)
		return SessionView{}, err
	}
	session, err := NewQuizSession(questions)
	if err != nil {
		s.guard.Forget(id)
		s.log.Warn("provider returned invalid question set", zap.String("filename", filename), zap.Error(err))
		return SessionView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guard.IsCurrent(id, token) {
		return SessionView{}, domain.ErrStaleRequest
	}
	snap := s.snapshot(domain.SessionSnapshot{
		ID:        id,
		Subject:   creds.Subject,
		Filename:  filename,
		Count:     numQuestions,
		CreatedAt: s.now(),
	}, session)
	if err := s.sessions.Save(ctx, snap); err != nil {
		return SessionView{}, fmt.Errorf("save session: %w", err)
	}

	s.observer.SessionStarted(filename)
	s.log.Info("quiz session started",
		zap.String("session", id),
		zap.String("filename", filename),
		zap.Int("questions", session.Len()))
	return NewSessionView(id, filename, session), nil
}

// Regenerate replaces a session with a freshly generated question set for the
// same document. Prior answers and score are discarded. If another Regenerate
// for the session starts before this one returns, this result is dropped.
func (s *QuizService) Regenerate(ctx context.Context, creds auth.Credentials, id string) (SessionView, error) {
	prev, err := s.load(ctx, creds, id)
	if err != nil {
		return SessionView{}, err
	}
	token := s.guard.Begin(id)

	questions, err := s.fetchFresh(ctx, creds, domain.QuizRequest{Filename: prev.Filename, NumQuestions: prev.Count})
	if err != nil {
		return SessionView{}, err
	}
	session, err := NewQuizSession(questions)
	if err != nil {
		s.log.Warn("provider returned invalid question set", zap.String("filename", prev.Filename), zap.Error(err))
		return SessionView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guard.IsCurrent(id, token) {
		s.log.Debug("dropping superseded quiz", zap.String("session", id), zap.Uint64("token", token))
		return SessionView{}, domain.ErrStaleRequest
	}
	snap := s.snapshot(domain.SessionSnapshot{
		ID:        id,
		Subject:   prev.Subject,
		Filename:  prev.Filename,
		Count:     prev.Count,
		CreatedAt: s.now(),
	}, session)
	if err := s.sessions.Save(ctx, snap); err != nil {
		return SessionView{}, fmt.Errorf("save session: %w", err)
	}
	s.observer.SessionStarted(prev.Filename)
	s.log.Info("quiz session regenerated", zap.String("session", id), zap.Int("questions", session.Len()))
	return NewSessionView(id, prev.Filename, session), nil
}

// Get returns the current view of a session.
func (s *QuizService) Get(ctx context.Context, creds auth.Credentials, id string) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, session, err := s.restore(ctx, creds, id)
	if err != nil {
		return SessionView{}, err
	}
	return NewSessionView(id, snap.Filename, session), nil
}

// Answer records the chosen option for a question.
func (s *QuizService) Answer(ctx context.Context, creds auth.Credentials, id string, questionID domain.QuestionID, option string) (SessionView, error) {
	return s.mutate(ctx, creds, id, func(session *QuizSession) error {
		return session.RecordAnswer(questionID, option)
	})
}

func (s *QuizService) Advance(ctx context.Context, creds auth.Credentials, id string) (SessionView, error) {
	return s.mutate(ctx, creds, id, (*QuizSession).Advance)
}

func (s *QuizService) Retreat(ctx context.Context, creds auth.Credentials, id string) (SessionView, error) {
	return s.mutate(ctx, creds, id, (*QuizSession).Retreat)
}

// Finalize scores the session. The first successful call records the attempt in history.
func (s *QuizService) Finalize(ctx context.Context, creds auth.Credentials, id string) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, session, err := s.restore(ctx, creds, id)
	if err != nil {
		return SessionView{}, err
	}
	wasCompleted := session.State() == domain.StateCompleted
	score, err := session.Finalize()
	if err != nil {
		return SessionView{}, err
	}
	view := NewSessionView(id, snap.Filename, session)
	if wasCompleted {
		return view, nil
	}

	if err := s.sessions.Save(ctx, s.snapshot(snap, session)); err != nil {
		return SessionView{}, fmt.Errorf("save session: %w", err)
	}
	s.observer.SessionCompleted(score)

	attempt := domain.Attempt{
		ID:          id,
		Subject:     snap.Subject,
		Filename:    snap.Filename,
		Questions:   session.Questions(),
		Answers:     session.Answers(),
		Score:       score,
		CompletedAt: s.now(),
	}
	if err := s.history.RecordAttempt(ctx, attempt); err != nil {
		// The score stands even if history is unavailable.
		s.log.Error("record attempt", zap.String("session", id), zap.Error(err))
	}
	s.log.Info("quiz session completed",
		zap.String("session", id),
		zap.Int("correct", score.Correct),
		zap.Int("total", score.Total),
		zap.Float64("percentage", score.Percentage))
	return view, nil
}

// Discard drops a session; any in-flight regeneration for it is ignored.
func (s *QuizService) Discard(ctx context.Context, creds auth.Credentials, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guard.Forget(id)
	if _, err := s.loadLocked(ctx, creds, id); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, id)
}

// History lists the caller's completed attempts, newest first.
func (s *QuizService) History(ctx context.Context, creds auth.Credentials, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.history.ListAttempts(ctx, creds.Subject, limit)
}

// fetch collapses concurrent identical requests into one provider call. The
// shared call is detached from any single caller's context, so a caller that
// goes away only abandons its own wait.
func (s *QuizService) fetch(ctx context.Context, creds auth.Credentials, req domain.QuizRequest) ([]domain.Question, error) {
	if !creds.Valid() {
		return nil, domain.ErrUnauthenticated
	}
	key := creds.Subject + "\x00" + req.Filename + "\x00" + strconv.Itoa(req.NumQuestions)
	ch := s.sf.DoChan(key, func() (interface{}, error) {
		return s.provider.GenerateQuiz(context.WithoutCancel(ctx), creds, req)
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.log.Debug("shared in-flight quiz request", zap.String("filename", req.Filename))
		}
		questions, _ := res.Val.([]domain.Question)
		return s.fetched(req, questions, res.Err)
	case <-ctx.Done():
		return nil, fmt.Errorf("generate quiz for %q: %w", req.Filename, ctx.Err())
	}
}

// fetchFresh always issues its own provider call. Regenerate uses it so a new
// request never joins an older in-flight one.
func (s *QuizService) fetchFresh(ctx context.Context, creds auth.Credentials, req domain.QuizRequest) ([]domain.Question, error) {
	if !creds.Valid() {
		return nil, domain.ErrUnauthenticated
	}
	questions, err := s.provider.GenerateQuiz(ctx, creds, req)
	return s.fetched(req, questions, err)
}

func (s *QuizService) fetched(req domain.QuizRequest, questions []domain.Question, err error) ([]domain.Question, error) {
	if err != nil {
		if domain.IsRetryable(err) {
			s.observer.ProviderFailed(err)
			s.log.Warn("quiz provider failed", zap.String("filename", req.Filename), zap.Error(err))
		}
		return nil, fmt.Errorf("generate quiz for %q: %w", req.Filename, err)
	}
	return questions, nil
}

func (s *QuizService) mutate(ctx context.Context, creds auth.Credentials, id string, fn func(*QuizSession) error) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, session, err := s.restore(ctx, creds, id)
	if err != nil {
		return SessionView{}, err
	}
	if err := fn(session); err != nil {
		return SessionView{}, err
	}
	if err := s.sessions.Save(ctx, s.snapshot(snap, session)); err != nil {
		return SessionView{}, fmt.Errorf("save session: %w", err)
	}
	return NewSessionView(id, snap.Filename, session), nil
}

func (s *QuizService) load(ctx context.Context, creds auth.Credentials, id string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, creds, id)
}

func (s *QuizService) loadLocked(ctx context.Context, creds auth.Credentials, id string) (domain.SessionSnapshot, error) {
	snap, err := s.sessions.Load(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	// Sessions of other subjects are indistinguishable from missing ones.
	if snap.Subject != creds.Subject {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return snap, nil
}

func (s *QuizService) restore(ctx context.Context, creds auth.Credentials, id string) (domain.SessionSnapshot, *QuizSession, error) {
	snap, err := s.loadLocked(ctx, creds, id)
	if err != nil {
		return domain.SessionSnapshot{}, nil, err
	}
	session, err := RestoreSession(snap)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.log.Error("corrupt session snapshot", zap.String("session", id), zap.Error(err))
		}
		return domain.SessionSnapshot{}, nil, err
	}
	return snap, session, nil
}

// snapshot combines the identity fields of base with the state of session.
func (s *QuizService) snapshot(base domain.SessionSnapshot, session *QuizSession) domain.SessionSnapshot {
	snap := session.Snapshot()
	snap.ID = base.ID
	snap.Subject = base.Subject
	snap.Filename = base.Filename
	snap.Count = base.Count
	snap.CreatedAt = base.CreatedAt
	return snap
}
