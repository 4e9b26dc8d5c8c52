// Package delivery sends one message to many recipients, retrying
// transient failures per recipient.
package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/intake-bot/internal/shared"
	"github.com/ashureev/intake-bot/internal/transport"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultConcurrency bounds parallel sends within one fan-out.
	DefaultConcurrency = 4
	// maxRetryAfter caps how long a server-requested wait may stall a send.
	maxRetryAfter = 30 * time.Second
)

// Failure is a recipient that could not be reached.
type Failure struct {
	Recipient string
	Err       error
}

// Result summarizes one fan-out.
type Result struct {
	Attempted int
	Delivered int
	Failures  []Failure
}

// OK reports whether at least one recipient got the message.
func (r Result) OK() bool { return r.Delivered > 0 }

// Options configures a Fanout.
type Options struct {
	MaxRetries  int
	Concurrency int
	Logger      *slog.Logger
	// NewBackOff overrides the retry schedule; tests use it to avoid sleeping.
	NewBackOff func() backoff.BackOff
}

// Fanout delivers messages through a transport.Sender.
type Fanout struct {
	sender      transport.Sender
	maxRetries  int
	concurrency int
	logger      *slog.Logger
	newBackOff  func() backoff.BackOff
}

// New creates a Fanout.
func New(sender transport.Sender, opts Options) *Fanout {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	return &Fanout{
		sender:      sender,
		maxRetries:  opts.MaxRetries,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		newBackOff:  opts.NewBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = time.Minute
	return b
}

// Deliver sends msg to every distinct recipient. A failure for one recipient
// never prevents delivery to the others.
func (f *Fanout) Deliver(ctx context.Context, msg transport.Message, recipients []string) Result {
	targets := dedupe(recipients)
	res := Result{Attempted: len(targets)}
	if len(targets) == 0 {
		return res
	}

	errs := make([]error, len(targets))
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, to := range targets {
		g.Go(func() error {
			errs[i] = f.sendOne(ctx, to, msg)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			res.Delivered++
			continue
		}
		res.Failures = append(res.Failures, Failure{Recipient: targets[i], Err: err})
		f.logger.Warn("Delivery failed", "recipient", targets[i], "error", err)
	}
	return res
}

func (f *Fanout) sendOne(ctx context.Context, to string, msg transport.Message) error {
	var mu sync.Mutex
	attempts := 0
	op := func() error {
		mu.Lock()
		attempts++
		mu.Unlock()

		err := f.sender.Send(ctx, to, msg)
		if err == nil {
			return nil
		}
		if !shared.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if wait := shared.RetryAfter(err); wait > 0 {
			if err := sleep(ctx, min(wait, maxRetryAfter)); err != nil {
				return backoff.Permanent(err)
			}
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.maxRetries)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		f.logger.Debug("Retrying delivery", "recipient", to, "error", err, "backoff", next)
	})
	if err != nil && attempts > 1 {
		f.logger.Debug("Delivery gave up", "recipient", to, "attempts", attempts)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
