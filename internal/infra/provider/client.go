package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
)

const generatePath = "/generate-quiz"

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Client calls the study-guide backend to generate quizzes.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
	log      *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		validate: validator.New(),
		log:      log.Named("provider"),
	}
}

type generateRequest struct {
	Filename     string `json:"filename"`
	NumQuestions int    `json:"num_questions,omitempty"`
}

type generateResponse struct {
	Questions []wireQuestion `json:"questions" validate:"required,dive"`
}

type wireQuestion struct {
	ID            domain.QuestionID `json:"id"`
	Question      string            `json:"question" validate:"required"`
	Options       []string          `json:"options" validate:"required,min=2"`
	CorrectAnswer string            `json:"correct_answer" validate:"required"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GenerateQuiz posts the request and decodes the question list. Non-2xx
// responses and transport failures become *domain.ProviderError; a
// malformed body is domain.ErrInvalidInput.
func (c *Client) GenerateQuiz(ctx context.Context, creds auth.Credentials, req domain.QuizRequest) ([]domain.Question, error) {
	if !creds.Valid() {
		return nil, domain.ErrUnauthenticated
	}
	body, err := json.Marshal(generateRequest{Filename: req.Filename, NumQuestions: req.NumQuestions})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", creds.Bearer())

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderError{Message: domain.DefaultProviderMessage, Err: err}
	}
	defer resp.Body.Close()
	c.log.Debug("generate quiz",
		zap.String("filename", req.Filename),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if ctx.Err() != nil {
			return nil, &domain.ProviderError{Message: domain.DefaultProviderMessage, Err: ctx.Err()}
		}
		return nil, fmt.Errorf("%w: decode quiz response: %v", domain.ErrInvalidInput, err)
	}
	if err := c.validate.Struct(decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid quiz response format: %v", domain.ErrInvalidInput, err)
	}
	return toQuestions(decoded.Questions), nil
}

// toQuestions maps wire questions to domain questions. Backend ids are kept
// only when every question has one; otherwise the whole set is numbered by
// position so a filled-in id can never collide with an explicit one.
func toQuestions(wire []wireQuestion) []domain.Question {
	positional := false
	for _, q := range wire {
		if q.ID == "" {
			positional = true
			break
		}
	}
	out := make([]domain.Question, len(wire))
	for i, q := range wire {
		id := q.ID
		if positional {
			id = domain.PositionalID(i)
		}
		out[i] = domain.Question{
			ID:            id,
			Prompt:        q.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
		}
	}
	return out
}

func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return domain.DefaultProviderMessage
	}
	var decoded errorResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return domain.DefaultProviderMessage
	}
	switch {
	case decoded.Error != "":
		return decoded.Error
	case decoded.Message != "":
		return decoded.Message
	default:
		return domain.DefaultProviderMessage
	}
}
