package app

import (
	"encoding/json"
	"errors"
	"sync"

	"studyguide-quiz/internal/domain"
)

// RequestStatus tags the variant held by a RequestState.
type RequestStatus string

const (
	StatusIdle      RequestStatus = "idle"
	StatusPending   RequestStatus = "pending"
	StatusSucceeded RequestStatus = "succeeded"
	StatusFailed    RequestStatus = "failed"
)

// RequestState is the state of one async operation: Idle, Pending,
// Succeeded(value) or Failed(err). The zero value is Idle.
type RequestState[T any] struct {
	status RequestStatus
	value  T
	err    error
}

func Idle[T any]() RequestState[T] { return RequestState[T]{status: StatusIdle} }

func Pending[T any]() RequestState[T] { return RequestState[T]{status: StatusPending} }

func Succeeded[T any](value T) RequestState[T] {
	return RequestState[T]{status: StatusSucceeded, value: value}
}

func Failed[T any](err error) RequestState[T] {
	return RequestState[T]{status: StatusFailed, err: err}
}

func (r RequestState[T]) Status() RequestStatus {
	if r.status == "" {
		return StatusIdle
	}
	return r.status
}

// Value returns the result when the request succeeded.
func (r RequestState[T]) Value() (T, bool) {
	return r.value, r.status == StatusSucceeded
}

func (r RequestState[T]) Err() error { return r.err }

func (r RequestState[T]) MarshalJSON() ([]byte, error) {
	out := struct {
		Status    RequestStatus `json:"status"`
		Data      *T            `json:"data,omitempty"`
		Error     string        `json:"error,omitempty"`
		Retryable bool          `json:"retryable,omitempty"`
	}{Status: r.Status()}

	switch r.status {
	case StatusSucceeded:
		v := r.value
		out.Data = &v
	case StatusFailed:
		out.Error = ErrorMessage(r.err)
		out.Retryable = domain.IsRetryable(r.err)
	}
	return json.Marshal(out)
}

// ErrorMessage is the text a presentation layer shows for err. Provider
// failures carry their own message; everything else is reported verbatim.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if perr := providerError(err); perr != nil {
		return perr.UserMessage()
	}
	return err.Error()
}

// RequestGuard hands out monotonically increasing tokens per key so that a
// response can be checked against the latest request before it is applied.
type RequestGuard struct {
	mu     sync.Mutex
	next   uint64
	latest map[string]uint64
}

func NewRequestGuard() *RequestGuard {
	return &RequestGuard{latest: make(map[string]uint64)}
}

// Begin records a new request for key and returns its token.
func (g *RequestGuard) Begin(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.latest[key] = g.next
	return g.next
}

// IsCurrent reports whether token is still the newest request for key.
func (g *RequestGuard) IsCurrent(key string, token uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[key] == token
}

// Forget drops the key; outstanding tokens for it become stale.
func (g *RequestGuard) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.latest, key)
}

// Len reports how many keys have a request on record.
func (g *RequestGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.latest)
}

func providerError(err error) *domain.ProviderError {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return nil
}
