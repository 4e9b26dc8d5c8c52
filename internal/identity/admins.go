package identity

import (
	"regexp"
	"strings"
)

var numericIDPattern = regexp.MustCompile(`^-?[0-9]{1,20}$`)

// IsValidUserID reports whether id looks like a Telegram user ID or a web
// chat visitor ID.
func IsValidUserID(id string) bool {
	return numericIDPattern.MatchString(id) || isValidAnonID(id)
}

// Admins is the fixed set of privileged user IDs.
type Admins struct {
	ids   []string
	index map[string]struct{}
}

// NewAdmins builds the allow-list, skipping blanks and duplicates.
func NewAdmins(ids []string) *Admins {
	a := &Admins{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := a.index[id]; dup {
			continue
		}
		a.index[id] = struct{}{}
		a.ids = append(a.ids, id)
	}
	return a
}

// Contains reports whether id is privileged.
func (a *Admins) Contains(id string) bool {
	if a == nil {
		return false
	}
	_, ok := a.index[id]
	return ok
}

// IDs returns the admin IDs in configuration order.
func (a *Admins) IDs() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.ids...)
}
