package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session id does not exist
var ErrNotFound = errors.New("session not found")

// ErrExpiredOrInactive is returned by execute on a dead session. There
// is no implicit renewal; the caller must create a new session.
var ErrExpiredOrInactive = errors.New("session expired or inactive")

// ErrPermissionDenied is returned when a caller touches a session owned
// by someone else
var ErrPermissionDenied = errors.New("permission denied")

// Record is the persisted state of a sandbox session. Records are never
// deleted, only deactivated, so they double as an audit trail.
type Record struct {
	ID           string
	OwnerID      string
	ContainerRef string
	ChallengeID  string // empty for a general-purpose session
	CreatedAt    time.Time
	ExpiresAt    time.Time
	IsActive     bool
}

// Expired reports whether the session's lease has run out,
// independently of the stored is_active flag
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Usable reports whether the session may serve executions at the given
// instant
func (r *Record) Usable(now time.Time) bool {
	return r.IsActive && !r.Expired(now)
}
