package domain

import (
	"time"
)

// StepID names one node of the conversation graph.
type StepID string

// Session holds the in-progress conversation of one user.
type Session struct {
	User      User
	Step      StepID
	Answers   Answers
	StartedAt time.Time
	UpdatedAt time.Time
}

// IdleFor returns how long the session has gone without an accepted answer.
func (s *Session) IdleFor(now time.Time) time.Duration {
	last := s.UpdatedAt
	if last.IsZero() {
		last = s.StartedAt
	}
	if now.Before(last) {
		return 0
	}
	return now.Sub(last)
}
