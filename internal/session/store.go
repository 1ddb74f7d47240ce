package session

import (
	"sync"

	"authflow/internal/models"
)

// Store holds the authenticated session. It starts empty, is filled on a successful
// login, register or reset completion, and is emptied on logout.
type Store struct {
	mu      sync.RWMutex
	current models.Session
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Set(session models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = session
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = models.Session{}
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

func (s *Store) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.User, s.current.Token != ""
}

func (s *Store) Current() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}
