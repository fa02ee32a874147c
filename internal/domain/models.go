package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// QuestionID identifies a question within a session. Providers send it as
// either a JSON number or a string.
type QuestionID string

func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("question id: %w", err)
	}
	*id = QuestionID(n.String())
	return nil
}

// Question is a multiple-choice question with one correct option.
type Question struct {
	ID            QuestionID `json:"id"`
	Prompt        string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
}

// HasOption reports whether option is one of the question's listed options.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Score summarizes a finalized quiz.
type Score struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// NewScore computes the percentage once; a zero total has no percentage.
func NewScore(correct, total int) (Score, error) {
	if total <= 0 {
		return Score{}, fmt.Errorf("%w: score over %d questions", ErrInvalidInput, total)
	}
	if correct < 0 || correct > total {
		return Score{}, fmt.Errorf("%w: %d correct out of %d", ErrInvalidInput, correct, total)
	}
	return Score{
		Correct:    correct,
		Total:      total,
		Percentage: float64(correct) / float64(total) * 100,
	}, nil
}

// SessionState is the lifecycle state of a quiz session.
type SessionState string

const (
	StateInProgress SessionState = "in_progress"
	StateCompleted  SessionState = "completed"
)

// SessionSnapshot is the storable form of a quiz session.
type SessionSnapshot struct {
	ID        string                `json:"id"`
	Subject   string                `json:"subject"`
	Filename  string                `json:"filename"`
	Count     int                   `json:"count,omitempty"`
	Questions []Question            `json:"questions"`
	Answers   map[QuestionID]string `json:"answers"`
	Cursor    int                   `json:"cursor"`
	Score     *Score                `json:"score,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
}

// Attempt is a completed quiz kept in a user's history.
type Attempt struct {
	ID          string                `json:"id"`
	Subject     string                `json:"subject"`
	Filename    string                `json:"filename"`
	Questions   []Question            `json:"questions"`
	Answers     map[QuestionID]string `json:"answers"`
	Score       Score                 `json:"score"`
	CompletedAt time.Time             `json:"completedAt"`
}

// PositionalID is the id assigned to the i-th (zero-based) question when the provider omits ids.
func PositionalID(i int) QuestionID {
	return QuestionID(strconv.Itoa(i + 1))
}

// QuizRequest asks a provider for questions about one uploaded document.
type QuizRequest struct {
	Filename     string
	NumQuestions int // zero lets the provider choose
}
