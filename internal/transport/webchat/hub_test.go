package webchat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/intake-bot/internal/transport"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHub_Register(t *testing.T) {
	h := NewHub(nil, quietLogger())
	conn := &websocket.Conn{}

	h.Register("anon_1", "tab-1", conn)

	got := h.conns("anon_1")
	if len(got) != 1 || got[0] != conn {
		t.Errorf("Expected registered connection, got %v", got)
	}
	if h.Connected() != 1 {
		t.Errorf("Expected 1 connected visitor, got %d", h.Connected())
	}
}

func TestHub_UnregisterStale(t *testing.T) {
	h := NewHub(nil, quietLogger())
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	h.Register("anon_1", "tab-1", conn1)
	h.Register("anon_1", "tab-2", conn2)

	// A stale unregister for a different connection is ignored.
	h.Unregister("anon_1", "tab-2", conn1)
	h.Unregister("anon_1", "tab-1", conn1)

	got := h.conns("anon_1")
	if len(got) != 1 || got[0] != conn2 {
		t.Errorf("Expected only tab-2 to remain, got %v", got)
	}

	h.Unregister("anon_1", "tab-2", conn2)
	if h.Connected() != 0 {
		t.Errorf("Expected no connected visitors, got %d", h.Connected())
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := NewHub(nil, quietLogger())
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := range 500 {
			h.Register("anon_"+strconv.Itoa(i), "tab", &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 500 {
			h.conns("anon_" + strconv.Itoa(i))
			h.Connected()
		}
	}()
	wg.Wait()

	if h.Connected() != 500 {
		t.Errorf("Expected 500 visitors, got %d", h.Connected())
	}
}

func TestHub_SendOfflineQueues(t *testing.T) {
	h := NewHub(NewOutbox(2), quietLogger())
	ctx := context.Background()

	for i := range 3 {
		if err := h.Send(ctx, "anon_1", transport.Message{Text: strconv.Itoa(i)}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	frames := h.Outbox().Drain("anon_1")
	if len(frames) != 2 {
		t.Fatalf("Expected 2 queued frames, got %d", len(frames))
	}
	if frames[0].Text != "1" || frames[1].Text != "2" {
		t.Errorf("Expected oldest frame evicted, got %q, %q", frames[0].Text, frames[1].Text)
	}
	if again := h.Outbox().Drain("anon_1"); again != nil {
		t.Errorf("Expected drained outbox, got %v", again)
	}
}

func TestHub_SendDocumentUnsupported(t *testing.T) {
	h := NewHub(nil, quietLogger())
	err := h.SendDocument(context.Background(), "anon_1", transport.Document{Name: "x.csv"})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestOutbox_Prune(t *testing.T) {
	q := NewOutbox(10)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	q.Enqueue("anon_old", Frame{Text: "old"})
	now = now.Add(2 * time.Hour)
	q.Enqueue("anon_new", Frame{Text: "new"})

	if dropped := q.Prune(time.Hour); dropped != 1 {
		t.Errorf("Expected 1 pruned frame, got %d", dropped)
	}
	if q.Len() != 1 {
		t.Errorf("Expected 1 visitor left, got %d", q.Len())
	}
	if got := q.Drain("anon_new"); len(got) != 1 {
		t.Errorf("Expected new frame kept, got %v", got)
	}
}

func TestOutbox_FlushRequeuesUnsentInOrder(t *testing.T) {
	q := NewOutbox(10)
	for _, text := range []string{"one", "two", "three", "four"} {
		q.Enqueue("anon_1", Frame{Text: text})
	}

	var written []string
	err := q.Flush("anon_1", func(f Frame) error {
		if f.Text == "three" {
			return errors.New("socket closed")
		}
		written = append(written, f.Text)
		return nil
	})
	if err == nil {
		t.Fatal("Expected write error")
	}
	if len(written) != 2 {
		t.Errorf("Expected 2 frames written, got %v", written)
	}

	q.Enqueue("anon_1", Frame{Text: "five"})
	got := q.Drain("anon_1")
	want := []string{"three", "four", "five"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i, f := range got {
		if f.Text != want[i] {
			t.Errorf("Frame %d: expected %q, got %q", i, want[i], f.Text)
		}
	}
}
