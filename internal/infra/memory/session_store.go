package memory

import (
	"context"
	"encoding/json"
	"sync"

	"studyguide-quiz/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Snapshots are stored encoded so callers never share maps or slices with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string][]byte),
	}
}

func (s *SessionStore) Save(_ context.Context, snap domain.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[snap.ID] = data
	return nil
}

func (s *SessionStore) Load(_ context.Context, id string) (domain.SessionSnapshot, error) {
	s.mu.RLock()
	data, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.SessionSnapshot{}, err
	}
	return snap, nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
