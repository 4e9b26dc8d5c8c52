// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// temporary is implemented by errors that know whether a retry may succeed.
type temporary interface {
	Temporary() bool
}

// retryDelayer is implemented by errors carrying a server-requested wait.
type retryDelayer interface {
	RetryDelay() time.Duration
}

// IsTransient reports whether err is worth retrying: a network timeout,
// a dropped connection, or an error that declares itself temporary.
// Cancellation by the caller is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return IsConnectionError(err)
}

// IsConnectionError checks for connection-level failures reported only as
// error text by the standard library.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "unexpected eof", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// RetryAfter returns the wait requested by the remote side, or zero.
func RetryAfter(err error) time.Duration {
	var r retryDelayer
	if errors.As(err, &r) {
		return r.RetryDelay()
	}
	return 0
}
