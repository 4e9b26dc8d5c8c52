package webchat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/identity"
	"github.com/ashureev/intake-bot/internal/transport"
)

// maxFrameBytes bounds one inbound frame.
const maxFrameBytes = 16 << 10

// inbound is one client-to-server websocket message.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Handler upgrades requests to websocket chat sessions. It must run behind
// identity.Middleware.
type Handler struct {
	hub           *Hub
	submit        func(transport.Update)
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a Handler that passes inbound messages to submit.
func NewHandler(hub *Hub, submit func(transport.Update), allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:           hub,
		submit:        submit,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(maxFrameBytes)
	h.logger.Info("Web chat connected", "user_id", userID, "session_id", sessionID, "remote_ip", identity.IPFromRequest(r))

	h.hub.Register(userID, sessionID, ws)
	defer h.hub.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	err = h.hub.outbox.Flush(userID, func(f Frame) error { return h.writeJSON(ctx, ws, f) })
	if err != nil {
		h.logger.Debug("Failed to flush outbox", "error", err, "user_id", userID)
		return
	}

	user := domain.User{ID: userID, Username: identity.UsernameFromContext(r.Context())}
	h.readLoop(ctx, ws, user)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, user domain.User) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "user_id", user.ID)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", user.ID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Ignoring malformed frame", "user_id", user.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "message":
			h.submit(transport.Update{
				ID:         uuid.NewString(),
				User:       user,
				ChatID:     user.ID,
				Text:       msg.Text,
				ReceivedAt: time.Now(),
			})
		case "ping":
			if err := h.writeJSON(ctx, ws, Frame{Type: "pong", At: time.Now().UTC()}); err != nil {
				h.logger.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return write(ctx, ws, data)
}
