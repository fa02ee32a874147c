package app

import (
	"fmt"

	"studyguide-quiz/internal/domain"
)

// QuizSession holds one attempt at a fixed question set. It is not safe for
// concurrent use; callers serialize access per session.
type QuizSession struct {
	questions []domain.Question
	index     map[domain.QuestionID]int
	answers   map[domain.QuestionID]string
	cursor    int
	score     *domain.Score
}

// NewQuizSession validates questions and starts a session at the first question.
func NewQuizSession(questions []domain.Question) (*QuizSession, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", domain.ErrInvalidInput)
	}

	index := make(map[domain.QuestionID]int, len(questions))
	for i, q := range questions {
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		if _, dup := index[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", domain.ErrInvalidInput, q.ID)
		}
		index[q.ID] = i
	}

	owned := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		owned[i] = q
	}

	return &QuizSession{
		questions: owned,
		index:     index,
		answers:   make(map[domain.QuestionID]string, len(questions)),
	}, nil
}

func validateQuestion(q domain.Question) error {
	if q.ID == "" {
		return fmt.Errorf("%w: question without id", domain.ErrInvalidInput)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: question %q has %d options", domain.ErrInvalidInput, q.ID, len(q.Options))
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if _, dup := seen[o]; dup {
			return fmt.Errorf("%w: question %q repeats option %q", domain.ErrInvalidInput, q.ID, o)
		}
		seen[o] = struct{}{}
	}
	if !q.HasOption(q.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer of question %q is not among its options", domain.ErrInvalidInput, q.ID)
	}
	return nil
}

// Reset discards this session and returns a fresh one over questions.
// The receiver is left untouched.
func (s *QuizSession) Reset(questions []domain.Question) (*QuizSession, error) {
	return NewQuizSession(questions)
}

// RecordAnswer stores (or overwrites) the chosen option for a question.
func (s *QuizSession) RecordAnswer(questionID domain.QuestionID, option string) error {
	i, ok := s.index[questionID]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownQuestion, questionID)
	}
	if !s.questions[i].HasOption(option) {
		return fmt.Errorf("%w: %q for question %q", domain.ErrInvalidOption, option, questionID)
	}
	if s.score != nil {
		return domain.ErrSessionFinalized
	}
	s.answers[questionID] = option
	return nil
}

// Advance moves to the next question once the current one is answered.
func (s *QuizSession) Advance() error {
	if _, ok := s.answers[s.questions[s.cursor].ID]; !ok {
		return domain.ErrNotAnswered
	}
	if s.cursor == len(s.questions)-1 {
		return domain.ErrAtEnd
	}
	s.cursor++
	return nil
}

// Retreat moves to the previous question.
func (s *QuizSession) Retreat() error {
	if s.cursor == 0 {
		return domain.ErrAtStart
	}
	s.cursor--
	return nil
}

// Finalize scores the session. Every question must be answered; repeated calls
// return the stored score.
func (s *QuizSession) Finalize() (domain.Score, error) {
	if s.score != nil {
		return *s.score, nil
	}
	if len(s.answers) != len(s.questions) {
		return domain.Score{}, fmt.Errorf("%w: %d of %d answered", domain.ErrIncomplete, len(s.answers), len(s.questions))
	}

	correct := 0
	for _, q := range s.questions {
		if s.answers[q.ID] == q.CorrectAnswer {
			correct++
		}
	}
	score, err := domain.NewScore(correct, len(s.questions))
	if err != nil {
		return domain.Score{}, err
	}
	s.score = &score
	return score, nil
}

func (s *QuizSession) State() domain.SessionState {
	if s.score != nil {
		return domain.StateCompleted
	}
	return domain.StateInProgress
}

func (s *QuizSession) Cursor() int { return s.cursor }

func (s *QuizSession) Len() int { return len(s.questions) }

// Current returns the question under the cursor.
func (s *QuizSession) Current() domain.Question { return s.questions[s.cursor] }

// Questions returns a copy of the question list.
func (s *QuizSession) Questions() []domain.Question {
	out := make([]domain.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// Answers returns a copy of the recorded answers.
func (s *QuizSession) Answers() map[domain.QuestionID]string {
	out := make(map[domain.QuestionID]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

func (s *QuizSession) Answer(questionID domain.QuestionID) (string, bool) {
	a, ok := s.answers[questionID]
	return a, ok
}

func (s *QuizSession) AnsweredCount() int { return len(s.answers) }

// CanAdvance mirrors the enabled state of a "next" control.
func (s *QuizSession) CanAdvance() bool {
	_, answered := s.answers[s.questions[s.cursor].ID]
	return answered && s.cursor < len(s.questions)-1
}

// CanSubmit mirrors the enabled state of a "submit" control.
func (s *QuizSession) CanSubmit() bool {
	return s.score == nil && len(s.answers) == len(s.questions)
}

func (s *QuizSession) Score() (domain.Score, bool) {
	if s.score == nil {
		return domain.Score{}, false
	}
	return *s.score, true
}

// Snapshot captures the session for storage. Identity fields are filled by the caller.
func (s *QuizSession) Snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		Questions: s.Questions(),
		Answers:   s.Answers(),
		Cursor:    s.cursor,
	}
	if s.score != nil {
		score := *s.score
		snap.Score = &score
	}
	return snap
}

// RestoreSession rebuilds a session from a snapshot, re-checking every invariant.
func RestoreSession(snap domain.SessionSnapshot) (*QuizSession, error) {
	s, err := NewQuizSession(snap.Questions)
	if err != nil {
		return nil, err
	}
	for id, option := range snap.Answers {
		if err := s.RecordAnswer(id, option); err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
	}
	if snap.Cursor < 0 || snap.Cursor >= len(s.questions) {
		return nil, fmt.Errorf("%w: cursor %d out of range", domain.ErrInvalidInput, snap.Cursor)
	}
	s.cursor = snap.Cursor
	if snap.Score != nil {
		score, err := s.Finalize()
		if err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
		if score != *snap.Score {
			return nil, fmt.Errorf("%w: stored score does not match answers", domain.ErrInvalidInput)
		}
	}
	return s, nil
}
