package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Counter reports a stored total.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Sizer reports an in-memory size.
type Sizer interface {
	Len() int
}

// StatusHandler reports process health and basic counters.
type StatusHandler struct {
	Records  Counter
	Sessions Sizer
	Blocks   Sizer
	// Connected returns open web chat visitors; nil when web chat is off.
	Connected func() int
	Telegram  bool
	Started   time.Time
	Logger    *slog.Logger
}

type statusResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Submissions    int    `json:"submissions"`
	ActiveSessions int    `json:"active_sessions"`
	BlockedUsers   int    `json:"blocked_users"`
	Telegram       bool   `json:"telegram"`
	WebChat        bool   `json:"webchat"`
	WebChatOnline  int    `json:"webchat_online,omitempty"`
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:         "ok",
		Uptime:         time.Since(h.Started).Round(time.Second).String(),
		ActiveSessions: h.Sessions.Len(),
		BlockedUsers:   h.Blocks.Len(),
		Telegram:       h.Telegram,
		WebChat:        h.Connected != nil,
	}
	if h.Connected != nil {
		resp.WebChatOnline = h.Connected()
	}

	n, err := h.Records.Count(r.Context())
	if err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Status: record store unreadable", "error", err)
		resp.Status = "degraded"
	}
	resp.Submissions = n

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, resp)
}
