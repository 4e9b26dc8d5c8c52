package domain

import "time"

// Submission is a completed conversation as appended to the record store.
// Seq is assigned by the store at append time and never changes afterwards.
type Submission struct {
	Seq      int64  `json:"seq"`
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Answers
	SubmittedAt time.Time `json:"timestamp"`
}

// BlockEntry records that a user may no longer start conversations.
type BlockEntry struct {
	UserID    string    `json:"user_id"`
	BlockedAt time.Time `json:"blocked_at"`
	BlockedBy string    `json:"blocked_by"`
}
