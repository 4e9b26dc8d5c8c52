// Package gate decides whether a user may start a new conversation.
//
// The block list is consulted first and denies regardless of time. Otherwise
// a per-user cooldown applies, measured from the previous allowed start: a
// user who starts and abandons a conversation still consumes the cooldown.
package gate

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum time between two session starts of one user.
const DefaultCooldown = time.Hour

// Decision is the outcome of an entry check.
type Decision int

const (
	Allowed Decision = iota
	Blocked
	Cooling
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Blocked:
		return "blocked"
	case Cooling:
		return "cooling"
	default:
		return "unknown"
	}
}

// Verdict carries the decision and, for Cooling, the time left to wait.
type Verdict struct {
	Decision  Decision
	Remaining time.Duration
}

// BlockChecker reports block-list membership.
type BlockChecker interface {
	IsBlocked(userID string) bool
}

// Gate combines the block list with per-user cooldown stamps.
type Gate struct {
	blocks   BlockChecker
	cooldown time.Duration

	mu     sync.Mutex
	starts map[string]time.Time
	now    func() time.Time
}

// New creates a gate. A zero cooldown disables rate limiting; a negative one
// falls back to DefaultCooldown.
func New(blocks BlockChecker, cooldown time.Duration) *Gate {
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{
		blocks:   blocks,
		cooldown: cooldown,
		starts:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Cooldown returns the configured window.
func (g *Gate) Cooldown() time.Duration { return g.cooldown }

// CheckEntry returns Blocked, Cooling or Allowed for userID. On Allowed the
// start is stamped before returning.
func (g *Gate) CheckEntry(userID string) Verdict {
	if g.blocks != nil && g.blocks.IsBlocked(userID) {
		return Verdict{Decision: Blocked}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cooldown == 0 {
		return Verdict{Decision: Allowed}
	}

	now := g.now()
	if last, ok := g.starts[userID]; ok {
		if elapsed := now.Sub(last); elapsed < g.cooldown {
			return Verdict{Decision: Cooling, Remaining: g.cooldown - elapsed}
		}
	}
	g.starts[userID] = now
	return Verdict{Decision: Allowed}
}

// Reset forgets the cooldown stamp of one user, or of everyone when userID
// is empty. It returns the number of stamps removed.
func (g *Gate) Reset(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if userID == "" {
		n := len(g.starts)
		g.starts = make(map[string]time.Time)
		return n
	}
	if _, ok := g.starts[userID]; !ok {
		return 0
	}
	delete(g.starts, userID)
	return 1
}

// Evict drops stamps whose cooldown has already elapsed so the map does not
// grow with every user ever seen.
func (g *Gate) Evict() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.cooldown)
	n := 0
	for id, t := range g.starts {
		if !t.After(cutoff) {
			delete(g.starts, id)
			n++
		}
	}
	return n
}
