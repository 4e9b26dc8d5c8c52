package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/intake-bot/internal/domain"
)

// RecordStore keeps submissions in one JSON array on disk.
type RecordStore struct {
	file   *jsonFile
	logger *slog.Logger
	now    func() time.Time
}

// OpenRecords prepares a record store at path. The file is created on the
// first append.
func OpenRecords(path string, logger *slog.Logger) (*RecordStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := newJSONFile(path, logger)
	if err != nil {
		return nil, err
	}
	return &RecordStore{file: f, logger: logger, now: time.Now}, nil
}

// Path returns the backing file path.
func (s *RecordStore) Path() string { return s.file.path }

// Append assigns sub the next sequence number and writes the whole log back.
//
// An existing log that cannot be read or decoded is moved aside and the
// append proceeds against an empty log: a new submission is never refused
// because of old data.
func (s *RecordStore) Append(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	err := s.file.withLock(ctx, true, func() error {
		var records []domain.Submission
		if err := s.file.decode(&records); err != nil {
			records = nil
			s.recoverUnreadable(err)
		}

		sub.Seq = nextSeq(records)
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		if sub.SubmittedAt.IsZero() {
			sub.SubmittedAt = s.now()
		}
		records = append(records, sub)
		return s.file.write(records)
	})
	if err != nil {
		return domain.Submission{}, fmt.Errorf("append submission: %w", err)
	}
	return sub, nil
}

func (s *RecordStore) recoverUnreadable(cause error) {
	moved, err := s.file.quarantine(s.now())
	if err != nil {
		s.logger.Error("Record log unreadable and could not be moved aside, starting empty",
			"path", s.file.path, "cause", cause, "error", err)
		return
	}
	s.logger.Warn("Record log unreadable, moved aside and starting empty",
		"path", s.file.path, "moved_to", moved, "cause", cause)
}

// nextSeq is one past the record count, bumped past the last stored number
// if an older log was edited by hand.
func nextSeq(records []domain.Submission) int64 {
	next := int64(len(records)) + 1
	if n := len(records); n > 0 && records[n-1].Seq >= next {
		next = records[n-1].Seq + 1
	}
	return next
}

// All returns every stored submission.
func (s *RecordStore) All(ctx context.Context) ([]domain.Submission, error) {
	var records []domain.Submission
	err := s.file.withLock(ctx, false, func() error {
		return s.file.decode(&records)
	})
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	return records, nil
}

// Count returns the number of stored submissions.
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	records, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Latest returns the timestamp of the last appended submission.
func (s *RecordStore) Latest(ctx context.Context) (time.Time, bool, error) {
	records, err := s.All(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(records) == 0 {
		return time.Time{}, false, nil
	}
	return records[len(records)-1].SubmittedAt, true, nil
}

// UserIDs returns the distinct submitters in first-seen order.
func (s *RecordStore) UserIDs(ctx context.Context) ([]string, error) {
	records, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	var ids []string
	for _, r := range records {
		if r.UserID == "" {
			continue
		}
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// IsCorrupt reports whether err was caused by an undecodable data file.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
