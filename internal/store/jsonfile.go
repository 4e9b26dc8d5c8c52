package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"
)

const (
	lockTimeout      = 30 * time.Second
	lockPollInterval = 50 * time.Millisecond
)

// jsonFile serialises access to one JSON document. The mutex orders callers
// inside this process; the flock orders this process against others that
// open the same path, such as intakectl.
type jsonFile struct {
	path   string
	mu     sync.Mutex
	lock   *flock.Flock
	logger *slog.Logger
}

func newJSONFile(path string, logger *slog.Logger) (*jsonFile, error) {
	if path == "" {
		return nil, fmt.Errorf("empty data file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &jsonFile{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}, nil
}

// withLock runs fn while holding the file lock for the whole call, so a
// read-modify-write inside fn is never interleaved with another writer.
func (f *jsonFile) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var locked bool
	var err error
	if exclusive {
		locked, err = f.lock.TryLockContext(lockCtx, lockPollInterval)
	} else {
		locked, err = f.lock.TryRLockContext(lockCtx, lockPollInterval)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.path, err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", f.path)
	}
	defer func() {
		if unlockErr := f.lock.Unlock(); unlockErr != nil {
			f.logger.Warn("Failed to release data file lock", "path", f.path, "error", unlockErr)
		}
	}()

	return fn()
}

// read returns the raw document, or nil when the file does not exist yet.
func (f *jsonFile) read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return data, nil
}

// decode reads the document into v. A missing or blank file leaves v
// untouched; undecodable content yields ErrCorrupt.
func (f *jsonFile) decode(v any) error {
	data, err := f.read()
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return nil
}

// write replaces the document atomically.
func (f *jsonFile) write(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if err := atomicwriter.WriteFile(f.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

// quarantine moves an unreadable document aside so that it can be inspected
// later instead of being overwritten.
func (f *jsonFile) quarantine(now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", f.path, now.Unix())
	if err := os.Rename(f.path, dst); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", f.path, err)
	}
	return dst, nil
}

// modTime returns the document's modification time, zero when missing.
func (f *jsonFile) modTime() (time.Time, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", f.path, err)
	}
	return info.ModTime(), nil
}
