package memory

import (
	"context"
	"sync"

	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
)

// StaticProvider serves fixed question sets keyed by filename (useful for tests/demos).
// A set larger than the requested count is truncated.
type StaticProvider struct {
	mu      sync.Mutex
	quizzes map[string][]domain.Question
	calls   int
}

func NewStaticProvider(quizzes map[string][]domain.Question) *StaticProvider {
	return &StaticProvider{quizzes: quizzes}
}

func (p *StaticProvider) GenerateQuiz(_ context.Context, _ auth.Credentials, req domain.QuizRequest) ([]domain.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	questions, ok := p.quizzes[req.Filename]
	if !ok {
		return nil, &domain.ProviderError{StatusCode: 404, Message: "File not found", Err: domain.ErrDocumentNotFound}
	}
	if req.NumQuestions > 0 && req.NumQuestions < len(questions) {
		questions = questions[:req.NumQuestions]
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}

// Set replaces the question set for filename.
func (p *StaticProvider) Set(filename string, questions []domain.Question) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quizzes[filename] = questions
}

// Calls reports how many requests were served.
func (p *StaticProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
