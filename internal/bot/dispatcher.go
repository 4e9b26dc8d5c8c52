// Package bot routes inbound updates: commands and admin actions are handled
// here, everything else goes to the conversation engine. Updates of one user
// are processed in arrival order; different users proceed concurrently.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/intake-bot/internal/flow"
	"github.com/ashureev/intake-bot/internal/gate"
	"github.com/ashureev/intake-bot/internal/identity"
	"github.com/ashureev/intake-bot/internal/session"
	"github.com/ashureev/intake-bot/internal/store"
	"github.com/ashureev/intake-bot/internal/transport"
)

// DefaultQueueSize is the buffer of each user's update queue.
const DefaultQueueSize = 64

// ErrStopped is returned by Submit after Run has returned.
var ErrStopped = errors.New("dispatcher stopped")

// RecordLog is the part of the record store the dispatcher reads.
type RecordLog interface {
	store.Records
	UserIDs(ctx context.Context) ([]string, error)
}

// Config wires a Dispatcher.
type Config struct {
	Engine          *flow.Engine
	Admins          *identity.Admins
	Records         RecordLog
	Blocks          store.Blocklist
	Gate            *gate.Gate
	Sessions        *session.Store
	Sender          transport.Sender
	Delivery        flow.Deliverer
	BroadcastChatID string
	QueueSize       int
	Logger          *slog.Logger
}

// Dispatcher owns the per-user ordered worker queues.
type Dispatcher struct {
	engine    *flow.Engine
	admins    *identity.Admins
	records   RecordLog
	blocks    store.Blocklist
	gate      *gate.Gate
	sessions  *session.Store
	sender    transport.Sender
	delivery  flow.Deliverer
	broadcast string
	logger    *slog.Logger
	now       func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	queueSize int
	lanesMu   sync.Mutex
	lanes     map[string]*lane
	stopped   bool
	workers   sync.WaitGroup
	done      chan struct{}

	pendingMu sync.Mutex
	pending   map[string]pendingAction
}

// New creates a Dispatcher. Call Run to start its workers.
func New(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Dispatcher{
		engine:    cfg.Engine,
		admins:    cfg.Admins,
		records:   cfg.Records,
		blocks:    cfg.Blocks,
		gate:      cfg.Gate,
		sessions:  cfg.Sessions,
		sender:    cfg.Sender,
		delivery:  cfg.Delivery,
		broadcast: cfg.BroadcastChatID,
		logger:    cfg.Logger,
		now:       time.Now,
		queueSize: cfg.QueueSize,
		lanes:     make(map[string]*lane),
		done:      make(chan struct{}),
		pending:   make(map[string]pendingAction),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// lane is the ordered queue of one user. Its worker exits once nothing is
// pending, so idle users hold no goroutine.
type lane struct {
	queue chan transport.Update
	// pending counts updates submitted but not yet taken; guarded by lanesMu.
	pending int
}

// Submit queues an update for its user. Updates of one user are handled in
// submission order; a slow update never delays other users. Submit blocks
// while that user's queue is full.
func (d *Dispatcher) Submit(ctx context.Context, upd transport.Update) error {
	userID := upd.User.ID

	d.lanesMu.Lock()
	if d.stopped {
		d.lanesMu.Unlock()
		return ErrStopped
	}
	l, ok := d.lanes[userID]
	if !ok {
		l = &lane{queue: make(chan transport.Update, d.queueSize)}
		d.lanes[userID] = l
		d.workers.Add(1)
		go d.work(userID, l)
	}
	l.pending++
	d.lanesMu.Unlock()

	select {
	case l.queue <- upd:
		return nil
	case <-ctx.Done():
		d.retract(l)
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	}
}

// retract undoes the pending count of an update that was never queued.
func (d *Dispatcher) retract(l *lane) {
	d.lanesMu.Lock()
	defer d.lanesMu.Unlock()
	l.pending--
	if l.pending == 0 && len(l.queue) == 0 {
		// The worker may be waiting on an empty queue; wake it so it exits.
		select {
		case l.queue <- transport.Update{}:
			l.pending++
		default:
		}
	}
}

func (d *Dispatcher) work(userID string, l *lane) {
	defer d.workers.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case upd := <-l.queue:
			d.lanesMu.Lock()
			l.pending--
			d.lanesMu.Unlock()
			if d.ctx.Err() != nil {
				return
			}
			if upd.User.ID != "" {
				d.Handle(d.ctx, upd)
			}
		}

		d.lanesMu.Lock()
		if l.pending == 0 {
			delete(d.lanes, userID)
			d.lanesMu.Unlock()
			return
		}
		d.lanesMu.Unlock()
	}
}

// Active returns the number of users with queued or running updates.
func (d *Dispatcher) Active() int {
	d.lanesMu.Lock()
	defer d.lanesMu.Unlock()
	return len(d.lanes)
}

// Run blocks until ctx is cancelled, then stops all user workers. Updates
// still queued at that point are dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Dispatcher started", "queue_size", d.queueSize)
	<-ctx.Done()

	d.lanesMu.Lock()
	d.stopped = true
	d.lanesMu.Unlock()
	close(d.done)
	d.cancel()
	d.workers.Wait()

	dropped := 0
	d.lanesMu.Lock()
	for _, l := range d.lanes {
		dropped += len(l.queue)
	}
	d.lanesMu.Unlock()
	d.logger.Info("Dispatcher stopped", "dropped_updates", dropped)
	return nil
}

// Handle processes one update synchronously. A panic is logged and contained
// to this update.
func (d *Dispatcher) Handle(ctx context.Context, upd transport.Update) {
	userID := upd.User.ID
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while handling update",
				"user_id", userID,
				"update_id", upd.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	text := strings.TrimSpace(upd.Text)
	isAdmin := d.admins.Contains(userID)

	if name, arg, ok := parseCommand(text); ok {
		d.clearPending(userID)
		d.runCommand(ctx, upd, name, arg, isAdmin)
		return
	}

	switch text {
	case flow.StartLabel, flow.RestartLabel:
		d.clearPending(userID)
		d.logOutcome(upd, "start")(d.engine.Start(ctx, upd))
		return
	case flow.CancelLabel:
		d.clearPending(userID)
		d.logOutcome(upd, "cancel")(d.engine.Cancel(ctx, upd))
		return
	}

	if isAdmin {
		if action, ok := d.takePending(userID); ok {
			d.completePending(ctx, upd, action, text)
			return
		}
	}

	out, err := d.engine.Handle(ctx, upd)
	if out != flow.NoSession || err != nil {
		d.logOutcome(upd, "answer")(out, err)
		return
	}

	if isAdmin {
		if name, ok := adminButtons[text]; ok {
			d.runCommand(ctx, upd, name, "", true)
			return
		}
	}
	d.reply(ctx, upd, welcome(isAdmin))
}

func (d *Dispatcher) logOutcome(upd transport.Update, action string) func(flow.Outcome, error) {
	return func(out flow.Outcome, err error) {
		if err != nil {
			d.logger.Error("Failed to handle update",
				"user_id", upd.User.ID,
				"action", action,
				"outcome", out.String(),
				"error", err,
			)
			return
		}
		d.logger.Debug("Update handled", "user_id", upd.User.ID, "action", action, "outcome", out.String())
	}
}

func (d *Dispatcher) reply(ctx context.Context, upd transport.Update, msg transport.Message) {
	if err := d.sender.Send(ctx, upd.ReplyTo(), msg); err != nil {
		d.logger.Error("Failed to send reply", "user_id", upd.User.ID, "error", err)
	}
}
