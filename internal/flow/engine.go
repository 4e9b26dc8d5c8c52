package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/intake-bot/internal/delivery"
	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/gate"
	"github.com/ashureev/intake-bot/internal/session"
	"github.com/ashureev/intake-bot/internal/store"
	"github.com/ashureev/intake-bot/internal/transport"
	"github.com/ashureev/intake-bot/internal/validate"
)

// finishTimeout bounds storing and delivering one submission.
const finishTimeout = 2 * time.Minute

// Outcome tells the caller what an engine call did.
type Outcome int

const (
	NoSession Outcome = iota
	Started
	Blocked
	Cooling
	Rejected
	Unrecognized
	Advanced
	Completed
	Cancelled
	NothingToCancel
)

func (o Outcome) String() string {
	switch o {
	case NoSession:
		return "no_session"
	case Started:
		return "started"
	case Blocked:
		return "blocked"
	case Cooling:
		return "cooling"
	case Rejected:
		return "rejected"
	case Unrecognized:
		return "unrecognized"
	case Advanced:
		return "advanced"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case NothingToCancel:
		return "nothing_to_cancel"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Deliverer fans a message out to recipients.
type Deliverer interface {
	Deliver(ctx context.Context, msg transport.Message, recipients []string) delivery.Result
}

// Config wires an Engine.
type Config struct {
	Graph      *Graph
	Sessions   *session.Store
	Gate       *gate.Gate
	Records    store.Records
	Delivery   Deliverer
	Sender     transport.Sender
	Recipients func() []string
	Logger     *slog.Logger
}

// Engine runs conversations. Calls for one user must be serialized by the
// caller; calls for different users may run concurrently.
type Engine struct {
	graph      *Graph
	sessions   *session.Store
	gate       *gate.Gate
	records    store.Records
	delivery   Deliverer
	sender     transport.Sender
	recipients func() []string
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recipients := cfg.Recipients
	if recipients == nil {
		recipients = func() []string { return nil }
	}
	return &Engine{
		graph:      cfg.Graph,
		sessions:   cfg.Sessions,
		gate:       cfg.Gate,
		records:    cfg.Records,
		delivery:   cfg.Delivery,
		sender:     cfg.Sender,
		recipients: recipients,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Active reports whether the user has a conversation in progress.
func (e *Engine) Active(userID string) bool {
	_, ok := e.sessions.Get(userID)
	return ok
}

// Discard drops any conversation in progress without replying.
func (e *Engine) Discard(userID string) bool {
	return e.sessions.Delete(userID)
}

// Start runs the gate and, if allowed, begins a new conversation, replacing
// any existing one.
func (e *Engine) Start(ctx context.Context, upd transport.Update) (Outcome, error) {
	v := e.gate.CheckEntry(upd.User.ID)
	switch v.Decision {
	case gate.Blocked:
		e.logger.Info("Blocked user tried to start", "user_id", upd.User.ID)
		return Blocked, e.reply(ctx, upd, transport.Message{Text: msgBlocked})
	case gate.Cooling:
		return Cooling, e.reply(ctx, upd, transport.Message{Text: cooldownMessage(v.Remaining)})
	}

	sess := e.sessions.Begin(upd.User, e.graph.First())
	first, _ := e.graph.Step(sess.Step)
	msg := promptFor(first)
	msg.Text = msgIntro + msg.Text
	e.logger.Info("Conversation started", "user_id", upd.User.ID)
	return Started, e.reply(ctx, upd, msg)
}

// Cancel ends the user's conversation without storing anything.
func (e *Engine) Cancel(ctx context.Context, upd transport.Update) (Outcome, error) {
	if !e.sessions.Delete(upd.User.ID) {
		return NothingToCancel, e.reply(ctx, upd, transport.Message{Text: msgNothingCancel, Buttons: MainMenu()})
	}
	e.logger.Info("Conversation cancelled", "user_id", upd.User.ID)
	return Cancelled, e.reply(ctx, upd, transport.Message{Text: msgCancelled, Buttons: MainMenu()})
}

// Handle treats text as the answer to the current step. It returns NoSession
// without replying when the user has no conversation.
func (e *Engine) Handle(ctx context.Context, upd transport.Update) (Outcome, error) {
	sess, ok := e.sessions.Get(upd.User.ID)
	if !ok {
		return NoSession, nil
	}
	step, ok := e.graph.Step(sess.Step)
	if !ok {
		e.logger.Error("Session at unknown step", "user_id", upd.User.ID, "step", sess.Step)
		e.sessions.Delete(upd.User.ID)
		return NoSession, e.reply(ctx, upd, transport.Message{Text: msgLost, Buttons: MainMenu()})
	}
	if username := upd.User.Username; username != "" {
		sess.User.Username = username
	}

	choice := validate.Unrecognized
	if step.YesNo {
		choice = validate.ParseYesNo(upd.Text)
		if choice == validate.Unrecognized {
			return Unrecognized, e.reply(ctx, upd, transport.Message{Text: msgChooseYesNo, Buttons: yesNoKeyboard()})
		}
		sess.Answers.SetFlag(step.Field, choice == validate.Yes)
	} else {
		v := step.Rule(upd.Text)
		if !v.Accepted {
			return Rejected, e.reply(ctx, upd, transport.Message{Text: fmt.Sprintf(msgRetry, v.Reason)})
		}
		sess.Answers.SetText(step.Field, v.Value)
	}

	next, err := e.graph.Next(ctx, sess.Step, choice)
	if err != nil {
		return NoSession, fmt.Errorf("advance session for %s: %w", upd.User.ID, err)
	}
	if next == StepDone {
		// Taking the session out first keeps a concurrent expiry from
		// producing both an expiry notice and a stored record.
		if !e.sessions.Delete(upd.User.ID) {
			e.logger.Info("Session expired before completion", "user_id", upd.User.ID)
			return NoSession, nil
		}
		return Completed, e.finish(ctx, upd, sess)
	}

	sess.Step = next
	if !e.sessions.Save(sess) {
		return NoSession, nil
	}
	nextStep, _ := e.graph.Step(next)
	return Advanced, e.reply(ctx, upd, promptFor(nextStep))
}

// finish stores and delivers a completed conversation and acknowledges it
// to the user. The caller has already removed the session.
func (e *Engine) finish(ctx context.Context, upd transport.Update, sess domain.Session) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	sub := domain.Submission{
		UserID:      sess.User.ID,
		Username:    sess.User.Username,
		Answers:     sess.Answers,
		SubmittedAt: e.now(),
	}
	saved, err := e.records.Append(ctx, sub)
	persisted := err == nil
	if persisted {
		sub = saved
		e.logger.Info("Submission stored", "user_id", sub.UserID, "seq", sub.Seq, "id", sub.ID)
	} else {
		e.logger.Error("Failed to store submission", "user_id", sub.UserID, "error", err, "answers", sub.Answers)
	}

	recipients := e.recipients()
	res := e.delivery.Deliver(ctx, transport.Message{Text: FormatReport(sub), HTML: true}, recipients)
	e.logger.Info("Submission delivered",
		"user_id", sub.UserID,
		"delivered", res.Delivered,
		"recipients", res.Attempted,
	)
	if !res.OK() {
		e.logger.Error("Submission reached no recipient", "user_id", sub.UserID, "seq", sub.Seq)
	}

	ack := msgSuccess
	switch {
	case res.OK():
	case persisted:
		ack = msgDegraded
	default:
		ack = msgFailed
	}
	return e.reply(ctx, upd, transport.Message{Text: ack, Buttons: restartMenu()})
}

// Expired notifies a user whose conversation was dropped for inactivity.
// It matches session.ExpireCallback.
func (e *Engine) Expired(ctx context.Context, sess domain.Session) {
	e.logger.Info("Conversation expired", "user_id", sess.User.ID, "step", sess.Step)
	msg := transport.Message{Text: msgExpired, Buttons: MainMenu()}
	if err := e.sender.Send(ctx, sess.User.ID, msg); err != nil {
		e.logger.Debug("Failed to send expiry notice", "user_id", sess.User.ID, "error", err)
	}
}

func (e *Engine) reply(ctx context.Context, upd transport.Update, msg transport.Message) error {
	if err := e.sender.Send(ctx, upd.ReplyTo(), msg); err != nil {
		return fmt.Errorf("reply to %s: %w", upd.ReplyTo(), err)
	}
	return nil
}
