package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/transport"
)

// DefaultPollTimeout is the long-poll wait passed to getUpdates.
const DefaultPollTimeout = 30 * time.Second

type tgUser struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type tgMessage struct {
	MessageID int64   `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Date      int64   `json:"date"`
	Text      string  `json:"text"`
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// getUpdates fetches updates after offset, waiting up to timeout.
func (c *Client) getUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgUpdate, error) {
	var out []tgUpdate
	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}
	if err := c.callJSON(ctx, "getUpdates", req, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Poller long-polls getUpdates and hands each message to a handler.
type Poller struct {
	client  *Client
	timeout time.Duration
	logger  *slog.Logger
	offset  int64
}

// NewPoller creates a Poller.
func NewPoller(client *Client, timeout time.Duration, logger *slog.Logger) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{client: client, timeout: timeout, logger: logger}
}

// Run polls until ctx is cancelled. Handler calls happen on the polling
// goroutine in update order and must not block for long. Failed polls are
// retried with exponential backoff.
func (p *Poller) Run(ctx context.Context, handle func(transport.Update)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	p.logger.Info("Telegram poller started", "timeout", p.timeout)
	for {
		updates, err := p.client.getUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("Telegram poller stopped")
				return nil
			}
			wait := bo.NextBackOff()
			var sendErr *transport.SendError
			if errors.As(err, &sendErr) && sendErr.RetryAfter > wait {
				wait = sendErr.RetryAfter
			}
			p.logger.Warn("getUpdates failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				p.logger.Info("Telegram poller stopped")
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			if upd, ok := toUpdate(u); ok {
				handle(upd)
			}
		}
	}
}

// toUpdate keeps messages from people and drops everything else.
func toUpdate(u tgUpdate) (transport.Update, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return transport.Update{}, false
	}
	return transport.Update{
		ID: uuid.NewString(),
		User: domain.User{
			ID:       strconv.FormatInt(m.From.ID, 10),
			Username: m.From.Username,
		},
		ChatID:     strconv.FormatInt(m.Chat.ID, 10),
		Text:       m.Text,
		ReceivedAt: time.Unix(m.Date, 0),
	}, true
}
