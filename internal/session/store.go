// Package session keeps in-progress conversations in memory, one per user.
package session

import (
	"sync"
	"time"

	"github.com/ashureev/intake-bot/internal/domain"
)

// Store is a mutex-guarded map of user ID to session. Sessions are handed out
// and taken back by value so callers never share mutable state with the map.
type Store struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Begin replaces any existing session for the user with an empty one
// positioned at first.
func (s *Store) Begin(user domain.User, first domain.StepID) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := domain.Session{
		User:      user,
		Step:      first,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.sessions[user.ID] = sess
	return sess
}

// Get returns the user's session, if any.
func (s *Store) Get(userID string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	return sess, ok
}

// Save stores sess and stamps its UpdatedAt. Saving for a user whose session
// was removed in the meantime is a no-op and reports false.
func (s *Store) Save(sess domain.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.User.ID]; !ok {
		return false
	}
	sess.UpdatedAt = s.now()
	s.sessions[sess.User.ID] = sess
	return true
}

// Delete removes the user's session and reports whether one existed.
func (s *Store) Delete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	return ok
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Expire removes every session idle for longer than ttl and returns them.
func (s *Store) Expire(ttl time.Duration) []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []domain.Session
	for id, sess := range s.sessions {
		if sess.IdleFor(now) > ttl {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	return expired
}
