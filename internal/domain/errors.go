package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a question set is malformed (empty, duplicate ids, bad options).
	ErrInvalidInput = errors.New("invalid question set")
	// ErrUnknownQuestion is returned when an answer references a question outside the session.
	ErrUnknownQuestion = errors.New("question not found in session")
	// ErrInvalidOption is returned when an answer is not one of the question's options.
	ErrInvalidOption = errors.New("option not found for question")
	// ErrNotAnswered is returned when advancing past a question that has no answer yet.
	ErrNotAnswered = errors.New("current question has not been answered")
	// ErrAtEnd is returned when advancing from the last question.
	ErrAtEnd = errors.New("already at last question")
	// ErrAtStart is returned when retreating from the first question.
	ErrAtStart = errors.New("already at first question")
	// ErrIncomplete is returned when finalizing before every question is answered.
	ErrIncomplete = errors.New("quiz has unanswered questions")
	// ErrSessionFinalized is returned when answers are changed after the score was computed.
	ErrSessionFinalized = errors.New("quiz session already finalized")
	// ErrSessionNotFound is returned when a quiz session does not exist or has expired.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrStaleRequest is returned when a provider response was superseded by a newer request.
	ErrStaleRequest = errors.New("quiz request superseded")
	// ErrUnauthenticated is returned when a provider call is attempted without a bearer token.
	ErrUnauthenticated = errors.New("missing bearer token")
	// ErrDocumentNotFound indicates the source document for a quiz does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

// DefaultProviderMessage is shown when the provider gives no usable error text.
const DefaultProviderMessage = "Failed to generate quiz. Please try again."

// ProviderError reports a failed question fetch. It is the only error class
// surfaced to users as retryable.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("quiz provider: status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("quiz provider: %s: %v", e.Message, e.Err)
	}
	return "quiz provider: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UserMessage returns the text shown next to the "try again" action.
func (e *ProviderError) UserMessage() string {
	if e.Message == "" {
		return DefaultProviderMessage
	}
	return e.Message
}

// IsRetryable reports whether err should be shown to the user with a retry action.
func IsRetryable(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr)
}
