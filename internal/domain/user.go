// Package domain contains core domain types for the intake bot.
package domain

import "strings"

// User identifies the remote person behind a conversation.
type User struct {
	ID       string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Handle returns the @-prefixed username, or a placeholder when the
// transport did not report one.
func (u User) Handle() string {
	name := strings.TrimPrefix(strings.TrimSpace(u.Username), "@")
	if name == "" {
		return "без username"
	}
	return "@" + name
}
