package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fixedCounter struct {
	n   int
	err error
}

func (c fixedCounter) Count(context.Context) (int, error) { return c.n, c.err }

type fixedSize int

func (s fixedSize) Len() int { return int(s) }

func TestStatusHandler(t *testing.T) {
	h := &StatusHandler{
		Records:   fixedCounter{n: 12},
		Sessions:  fixedSize(3),
		Blocks:    fixedSize(1),
		Connected: func() int { return 2 },
		Telegram:  true,
		Started:   time.Now().Add(-time.Minute),
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Submissions != 12 || got.ActiveSessions != 3 || got.BlockedUsers != 1 {
		t.Errorf("Unexpected counters: %+v", got)
	}
	if !got.WebChat || got.WebChatOnline != 2 || !got.Telegram {
		t.Errorf("Unexpected transport flags: %+v", got)
	}
}

func TestStatusHandlerDegraded(t *testing.T) {
	h := &StatusHandler{
		Records:  fixedCounter{err: errors.New("disk gone")},
		Sessions: fixedSize(0),
		Blocks:   fixedSize(0),
		Started:  time.Now(),
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}
