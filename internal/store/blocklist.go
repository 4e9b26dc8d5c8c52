package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/intake-bot/internal/domain"
)

// BlockStore persists block entries as a JSON object keyed by user ID and
// serves membership checks from memory. The cache is reloaded whenever the
// file changes on disk, so edits made by intakectl reach a running bot.
type BlockStore struct {
	file   *jsonFile
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]domain.BlockEntry
	loaded  time.Time
}

// OpenBlocklist loads the block list at path. A missing file is an empty
// list; an undecodable one is logged and treated as empty.
func OpenBlocklist(ctx context.Context, path string, logger *slog.Logger) (*BlockStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := newJSONFile(path, logger)
	if err != nil {
		return nil, err
	}
	s := &BlockStore{
		file:    f,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]domain.BlockEntry),
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// reload replaces the cache with the file contents.
func (s *BlockStore) reload(ctx context.Context) error {
	var entries map[string]domain.BlockEntry
	var mod time.Time
	err := s.file.withLock(ctx, false, func() error {
		var err error
		if mod, err = s.file.modTime(); err != nil {
			return err
		}
		entries, err = s.loadLocked()
		return err
	})
	if err != nil {
		return fmt.Errorf("load block list: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.loaded = mod
	s.mu.Unlock()
	return nil
}

// loadLocked decodes the file; the caller holds the file lock.
func (s *BlockStore) loadLocked() (map[string]domain.BlockEntry, error) {
	entries := make(map[string]domain.BlockEntry)
	if err := s.file.decode(&entries); err != nil {
		if !IsCorrupt(err) {
			return nil, err
		}
		s.logger.Warn("Block list unreadable, treating as empty", "path", s.file.path, "error", err)
		entries = make(map[string]domain.BlockEntry)
	}
	for id, e := range entries {
		e.UserID = id
		entries[id] = e
	}
	return entries, nil
}

// refresh reloads the cache if the file was modified since the last load.
func (s *BlockStore) refresh() {
	mod, err := s.file.modTime()
	if err != nil {
		s.logger.Warn("Failed to stat block list", "path", s.file.path, "error", err)
		return
	}
	s.mu.RLock()
	stale := !mod.Equal(s.loaded)
	s.mu.RUnlock()
	if !stale {
		return
	}
	if err := s.reload(context.Background()); err != nil {
		s.logger.Error("Failed to reload block list", "path", s.file.path, "error", err)
	}
}

// IsBlocked reports whether userID is on the block list.
func (s *BlockStore) IsBlocked(userID string) bool {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[userID]
	return ok
}

// Block adds userID to the list on behalf of admin by.
func (s *BlockStore) Block(ctx context.Context, userID, by string) (domain.BlockEntry, error) {
	entry := domain.BlockEntry{UserID: userID, BlockedAt: s.now(), BlockedBy: by}
	err := s.mutate(ctx, func(entries map[string]domain.BlockEntry) error {
		if _, ok := entries[userID]; ok {
			return ErrAlreadyBlocked
		}
		entries[userID] = entry
		return nil
	})
	if err != nil {
		return domain.BlockEntry{}, err
	}
	return entry, nil
}

// Unblock removes userID from the list.
func (s *BlockStore) Unblock(ctx context.Context, userID string) error {
	return s.mutate(ctx, func(entries map[string]domain.BlockEntry) error {
		if _, ok := entries[userID]; !ok {
			return ErrNotBlocked
		}
		delete(entries, userID)
		return nil
	})
}

// mutate re-reads the file, applies fn and writes the result, all under the
// exclusive file lock, then swaps the cache.
func (s *BlockStore) mutate(ctx context.Context, fn func(map[string]domain.BlockEntry) error) error {
	var entries map[string]domain.BlockEntry
	var mod time.Time
	err := s.file.withLock(ctx, true, func() error {
		var err error
		if entries, err = s.loadLocked(); err != nil {
			return err
		}
		if err := fn(entries); err != nil {
			return err
		}
		if err := s.file.write(entries); err != nil {
			return err
		}
		mod, err = s.file.modTime()
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = entries
	s.loaded = mod
	s.mu.Unlock()
	return nil
}

// List returns all entries, oldest block first.
func (s *BlockStore) List() []domain.BlockEntry {
	s.refresh()
	s.mu.RLock()
	out := make([]domain.BlockEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].BlockedAt.Before(out[j].BlockedAt)
	})
	return out
}

// Len returns the number of blocked users.
func (s *BlockStore) Len() int {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
