// Package store provides the persisted state of the bot: the append-only
// submission log and the block list. Both are whole-file JSON documents that
// are read, modified and written back under one exclusive lock.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/intake-bot/internal/domain"
)

var (
	// ErrAlreadyBlocked is returned when blocking a user that is already blocked.
	ErrAlreadyBlocked = errors.New("user already blocked")
	// ErrNotBlocked is returned when unblocking a user that is not blocked.
	ErrNotBlocked = errors.New("user not blocked")
	// ErrCorrupt marks a persisted file that exists but cannot be decoded.
	ErrCorrupt = errors.New("corrupt data file")
)

// Records is the append-only log of completed submissions.
type Records interface {
	// Append assigns the next sequence number and durably appends sub.
	Append(ctx context.Context, sub domain.Submission) (domain.Submission, error)

	// Count returns the number of stored submissions.
	Count(ctx context.Context) (int, error)

	// Latest returns the timestamp of the most recent submission.
	Latest(ctx context.Context) (time.Time, bool, error)

	// All returns every stored submission in append order.
	All(ctx context.Context) ([]domain.Submission, error)
}

// Blocklist holds users denied entry to new conversations.
type Blocklist interface {
	IsBlocked(userID string) bool
	Block(ctx context.Context, userID, by string) (domain.BlockEntry, error)
	Unblock(ctx context.Context, userID string) error
	List() []domain.BlockEntry
}

var (
	_ Records   = (*RecordStore)(nil)
	_ Blocklist = (*BlockStore)(nil)
)
