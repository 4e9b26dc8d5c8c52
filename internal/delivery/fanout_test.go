package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/intake-bot/internal/transport"
)

type scriptedSender struct {
	mu    sync.Mutex
	plans map[string][]error
	calls map[string]int
}

func newScriptedSender(plans map[string][]error) *scriptedSender {
	return &scriptedSender{plans: plans, calls: map[string]int{}}
}

func (s *scriptedSender) Send(_ context.Context, to string, _ transport.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[to]
	s.calls[to]++
	plan := s.plans[to]
	if n < len(plan) {
		return plan[n]
	}
	return nil
}

func (s *scriptedSender) SendDocument(context.Context, string, transport.Document) error {
	return nil
}

func (s *scriptedSender) count(to string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[to]
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestDeliverPartialFailure(t *testing.T) {
	forbidden := &transport.SendError{Recipient: "b", Status: http.StatusForbidden, Err: errors.New("bot was blocked")}
	s := newScriptedSender(map[string][]error{
		"b": {forbidden},
	})
	f := New(s, Options{MaxRetries: 3, Logger: quiet(), NewBackOff: noWait})

	res := f.Deliver(context.Background(), transport.Message{Text: "report"}, []string{"a", "b", "c"})

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Delivered)
	assert.True(t, res.OK())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].Recipient)
	assert.Equal(t, 1, s.count("b"), "permanent errors are not retried")
}

func TestDeliverRetriesTransient(t *testing.T) {
	busy := &transport.SendError{Recipient: "a", Status: http.StatusBadGateway, Err: errors.New("bad gateway")}
	s := newScriptedSender(map[string][]error{
		"a": {busy, busy},
	})
	f := New(s, Options{MaxRetries: 3, Logger: quiet(), NewBackOff: noWait})

	res := f.Deliver(context.Background(), transport.Message{Text: "x"}, []string{"a"})
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 3, s.count("a"))
}

func TestDeliverGivesUpAfterMaxRetries(t *testing.T) {
	busy := &transport.SendError{Recipient: "a", Status: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
	s := newScriptedSender(map[string][]error{
		"a": {busy, busy, busy, busy, busy},
	})
	f := New(s, Options{MaxRetries: 2, Logger: quiet(), NewBackOff: noWait})

	res := f.Deliver(context.Background(), transport.Message{Text: "x"}, []string{"a"})
	assert.False(t, res.OK())
	assert.Equal(t, 3, s.count("a"))
}

func TestDeliverHonorsRetryAfter(t *testing.T) {
	limited := &transport.SendError{Recipient: "a", Status: http.StatusTooManyRequests, RetryAfter: 20 * time.Millisecond, Err: errors.New("slow down")}
	s := newScriptedSender(map[string][]error{
		"a": {limited},
	})
	f := New(s, Options{MaxRetries: 1, Logger: quiet(), NewBackOff: noWait})

	start := time.Now()
	res := f.Deliver(context.Background(), transport.Message{Text: "x"}, []string{"a"})
	assert.True(t, res.OK())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDeliverDeduplicatesRecipients(t *testing.T) {
	s := newScriptedSender(nil)
	f := New(s, Options{Logger: quiet(), NewBackOff: noWait})

	res := f.Deliver(context.Background(), transport.Message{Text: "x"}, []string{"a", "", "a", "b"})
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 1, s.count("a"))
}

func TestDeliverNoRecipients(t *testing.T) {
	f := New(newScriptedSender(nil), Options{Logger: quiet()})
	res := f.Deliver(context.Background(), transport.Message{Text: "x"}, nil)
	assert.False(t, res.OK())
	assert.Zero(t, res.Attempted)
}
