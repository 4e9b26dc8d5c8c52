package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/intake-bot/internal/domain"
)

// DefaultSweepInterval is how often the sweeper looks for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// ExpireCallback is called for every session dropped by the sweeper.
type ExpireCallback func(ctx context.Context, sess domain.Session)

// Sweeper periodically drops sessions idle longer than TTL.
type Sweeper struct {
	Store    *Store
	TTL      time.Duration
	Interval time.Duration
	OnExpire ExpireCallback
	// OnTick runs after every sweep; the gate uses it to evict stale cooldowns.
	OnTick func()
	Logger *slog.Logger
}

// Start runs the sweeper in a goroutine until ctx is done. The returned
// channel is closed once the goroutine exits. A zero TTL disables expiry
// but OnTick still runs.
func (w *Sweeper) Start(ctx context.Context) <-chan struct{} {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		logger.Info("Session sweeper started", "interval", interval, "ttl", w.TTL)

		for {
			select {
			case <-ticker.C:
				w.sweep(ctx, logger)
			case <-ctx.Done():
				logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func (w *Sweeper) sweep(ctx context.Context, logger *slog.Logger) {
	if w.OnTick != nil {
		w.OnTick()
	}
	if w.TTL <= 0 {
		return
	}

	expired := w.Store.Expire(w.TTL)
	if len(expired) == 0 {
		return
	}
	logger.Info("Session sweeper expired idle sessions", "count", len(expired))

	for _, sess := range expired {
		logger.Debug("Session expired", "user_id", sess.User.ID, "step", sess.Step, "started_at", sess.StartedAt)
		if w.OnExpire != nil {
			w.OnExpire(ctx, sess)
		}
	}
}
