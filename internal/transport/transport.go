// Package transport defines what the bot core needs from a messaging
// channel: inbound updates and outbound messages and documents.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/shared"
)

// ErrNoRoute is returned when no transport serves a recipient.
var ErrNoRoute = errors.New("no transport for recipient")

// Update is one inbound text message.
type Update struct {
	ID         string
	User       domain.User
	ChatID     string
	Text       string
	ReceivedAt time.Time
}

// ReplyTo returns where answers to this update go.
func (u Update) ReplyTo() string {
	if u.ChatID != "" {
		return u.ChatID
	}
	return u.User.ID
}

// Message is an outbound text message. Buttons replaces the reply keyboard;
// RemoveKeyboard hides it. HTML marks Text as rich text whose user-supplied
// parts are already escaped.
type Message struct {
	Text           string
	HTML           bool
	Buttons        [][]string
	RemoveKeyboard bool
}

// Document is an outbound file.
type Document struct {
	Name    string
	Content []byte
	Caption string
}

// Sender delivers messages to a recipient. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
	SendDocument(ctx context.Context, to string, doc Document) error
}

// SendError describes a failed send. Status is the remote status code when
// the failure came from the remote API.
type SendError struct {
	Recipient  string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("send to %s: status %d: %v", e.Recipient, e.Status, e.Err)
	}
	return fmt.Sprintf("send to %s: %v", e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the send may succeed. Without a remote
// status the wrapped error decides.
func (e *SendError) Temporary() bool {
	if e.Status == 0 {
		return shared.IsTransient(e.Err)
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// RetryDelay returns the wait requested by the remote side.
func (e *SendError) RetryDelay() time.Duration { return e.RetryAfter }

type route struct {
	prefix string
	sender Sender
}

// Mux routes sends by recipient ID prefix, falling back to a default sender.
type Mux struct {
	routes   []route
	fallback Sender
}

// Handle routes recipients starting with prefix to s.
func (m *Mux) Handle(prefix string, s Sender) {
	m.routes = append(m.routes, route{prefix: prefix, sender: s})
}

// Default sets the sender for recipients no prefix matches.
func (m *Mux) Default(s Sender) { m.fallback = s }

func (m *Mux) lookup(to string) (Sender, error) {
	for _, r := range m.routes {
		if strings.HasPrefix(to, r.prefix) {
			return r.sender, nil
		}
	}
	if m.fallback == nil {
		return nil, &SendError{Recipient: to, Err: ErrNoRoute}
	}
	return m.fallback, nil
}

// Send implements Sender.
func (m *Mux) Send(ctx context.Context, to string, msg Message) error {
	s, err := m.lookup(to)
	if err != nil {
		return err
	}
	return s.Send(ctx, to, msg)
}

// SendDocument implements Sender.
func (m *Mux) SendDocument(ctx context.Context, to string, doc Document) error {
	s, err := m.lookup(to)
	if err != nil {
		return err
	}
	return s.SendDocument(ctx, to, doc)
}
