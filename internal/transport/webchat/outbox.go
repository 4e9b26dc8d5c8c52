package webchat

import (
	"container/list"
	"sync"
	"time"
)

// DefaultOutboxSize is the per-visitor limit of undelivered frames.
const DefaultOutboxSize = 50

// Outbox buffers frames for visitors with no open connection. Each visitor
// gets its own bounded list so one burst cannot evict another visitor's frames.
type Outbox struct {
	mu      sync.Mutex
	queues  map[string]*list.List
	maxSize int
	now     func() time.Time
}

type queuedFrame struct {
	frame    Frame
	queuedAt time.Time
}

// NewOutbox creates an outbox keeping at most maxSize frames per visitor.
func NewOutbox(maxSize int) *Outbox {
	if maxSize <= 0 {
		maxSize = DefaultOutboxSize
	}
	return &Outbox{
		queues:  make(map[string]*list.List),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Enqueue stores f for userID, evicting that visitor's oldest frame when full.
func (q *Outbox) Enqueue(userID string, f Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.queues[userID]
	if !ok {
		l = list.New()
		q.queues[userID] = l
	}
	l.PushBack(queuedFrame{frame: f, queuedAt: q.now()})
	for l.Len() > q.maxSize {
		l.Remove(l.Front())
	}
}

// Drain removes and returns every frame queued for userID, oldest first.
func (q *Outbox) Drain(userID string) []Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.queues[userID]
	if !ok {
		return nil
	}
	delete(q.queues, userID)
	out := make([]Frame, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(queuedFrame).frame)
	}
	return out
}

// Flush drains userID's frames and writes them in order. When write fails,
// the failed frame and every frame after it go back to the front of the
// queue, ahead of anything queued meanwhile.
func (q *Outbox) Flush(userID string, write func(Frame) error) error {
	frames := q.Drain(userID)
	for i, f := range frames {
		if err := write(f); err != nil {
			q.requeue(userID, frames[i:])
			return err
		}
	}
	return nil
}

func (q *Outbox) requeue(userID string, frames []Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.queues[userID]
	if !ok {
		l = list.New()
		q.queues[userID] = l
	}
	at := q.now()
	for i := len(frames) - 1; i >= 0; i-- {
		l.PushFront(queuedFrame{frame: frames[i], queuedAt: at})
	}
	for l.Len() > q.maxSize {
		l.Remove(l.Front())
	}
}

// Prune drops frames queued longer than maxAge and returns how many went.
func (q *Outbox) Prune(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-maxAge)
	dropped := 0
	for userID, l := range q.queues {
		for e := l.Front(); e != nil; {
			next := e.Next()
			if e.Value.(queuedFrame).queuedAt.Before(cutoff) {
				l.Remove(e)
				dropped++
			}
			e = next
		}
		if l.Len() == 0 {
			delete(q.queues, userID)
		}
	}
	return dropped
}

// Len returns the number of visitors with queued frames.
func (q *Outbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}
