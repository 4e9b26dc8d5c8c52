// Package webchat serves the intake conversation over a browser websocket.
package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/intake-bot/internal/transport"
)

const writeTimeout = 5 * time.Second

// ErrUnsupported is returned for operations the browser client cannot handle.
var ErrUnsupported = errors.New("not supported by web chat")

// Frame is one server-to-client websocket message.
type Frame struct {
	Type           string     `json:"type"`
	Text           string     `json:"text,omitempty"`
	HTML           bool       `json:"html,omitempty"`
	Buttons        [][]string `json:"buttons,omitempty"`
	RemoveKeyboard bool       `json:"remove_keyboard,omitempty"`
	At             time.Time  `json:"at"`
}

// Hub tracks open websocket connections per visitor and implements
// transport.Sender for them. Frames for offline visitors go to the outbox.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
	outbox *Outbox
	logger *slog.Logger
}

// NewHub creates a Hub.
func NewHub(outbox *Outbox, logger *slog.Logger) *Hub {
	if outbox == nil {
		outbox = NewOutbox(DefaultOutboxSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
		outbox: outbox,
		logger: logger,
	}
}

// Register adds a connection for a visitor tab, closing any connection it replaces.
func (h *Hub) Register(userID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*websocket.Conn)
	}
	if existing, exists := h.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.active[userID][sessionID] = conn
	h.logger.Info("Web chat connected", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a connection if it is still the current one for the tab.
func (h *Hub) Unregister(userID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, userID)
			}
			h.logger.Info("Web chat disconnected", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Connected returns the number of visitors with at least one open tab.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// Outbox returns the offline buffer.
func (h *Hub) Outbox() *Outbox { return h.outbox }

func (h *Hub) conns(userID string) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(h.active[userID]))
	for _, c := range h.active[userID] {
		out = append(out, c)
	}
	return out
}

// Send implements transport.Sender. The frame goes to every open tab of the
// visitor; if none accepts it, it is queued for the next connection.
func (h *Hub) Send(ctx context.Context, to string, msg transport.Message) error {
	f := Frame{
		Type:           "message",
		Text:           msg.Text,
		HTML:           msg.HTML,
		Buttons:        msg.Buttons,
		RemoveKeyboard: msg.RemoveKeyboard,
		At:             time.Now().UTC(),
	}
	data, err := json.Marshal(f)
	if err != nil {
		return &transport.SendError{Recipient: to, Err: err}
	}

	delivered := 0
	for _, c := range h.conns(to) {
		if err := write(ctx, c, data); err != nil {
			h.logger.Debug("Web chat write failed", "user_id", to, "error", err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		h.outbox.Enqueue(to, f)
	}
	return nil
}

// SendDocument implements transport.Sender.
func (h *Hub) SendDocument(_ context.Context, to string, _ transport.Document) error {
	return &transport.SendError{Recipient: to, Err: ErrUnsupported}
}

func write(ctx context.Context, c *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}

var _ transport.Sender = (*Hub)(nil)
