package app

import "studyguide-quiz/internal/domain"

// QuestionView is a question as shown to the player; the correct answer is withheld.
type QuestionView struct {
	ID      domain.QuestionID `json:"id"`
	Prompt  string            `json:"question"`
	Options []string          `json:"options"`
}

// ReviewItem pairs a question with the chosen and correct answers after completion.
type ReviewItem struct {
	QuestionView
	Chosen        string `json:"chosen"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
}

// SessionView is the presentation projection of a quiz session.
type SessionView struct {
	ID         string                       `json:"id"`
	Filename   string                       `json:"filename"`
	State      domain.SessionState          `json:"state"`
	Cursor     int                          `json:"cursor"`
	Total      int                          `json:"total"`
	Answered   int                          `json:"answered"`
	Current    QuestionView                 `json:"current"`
	Selected   string                       `json:"selected,omitempty"`
	CanAdvance bool                         `json:"canAdvance"`
	CanRetreat bool                         `json:"canRetreat"`
	CanSubmit  bool                         `json:"canSubmit"`
	Answers    map[domain.QuestionID]string `json:"answers"`
	Score      *domain.Score                `json:"score,omitempty"`
	Review     []ReviewItem                 `json:"review,omitempty"`
}

func viewOf(q domain.Question) QuestionView {
	return QuestionView{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Options: append([]string(nil), q.Options...),
	}
}

// NewSessionView projects a session for display.
func NewSessionView(id, filename string, s *QuizSession) SessionView {
	current := s.Current()
	selected, _ := s.Answer(current.ID)
	view := SessionView{
		ID:         id,
		Filename:   filename,
		State:      s.State(),
		Cursor:     s.Cursor(),
		Total:      s.Len(),
		Answered:   s.AnsweredCount(),
		Current:    viewOf(current),
		Selected:   selected,
		CanAdvance: s.CanAdvance(),
		CanRetreat: s.Cursor() > 0,
		CanSubmit:  s.CanSubmit(),
		Answers:    s.Answers(),
	}

	score, ok := s.Score()
	if !ok {
		return view
	}
	view.Score = &score
	for _, q := range s.Questions() {
		chosen, _ := s.Answer(q.ID)
		view.Review = append(view.Review, ReviewItem{
			QuestionView:  viewOf(q),
			Chosen:        chosen,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       chosen == q.CorrectAnswer,
		})
	}
	return view
}
