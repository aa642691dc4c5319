package linking

import (
	"errors"
	"fmt"
	"time"
)

// Method tags how a link was established.
type Method string

const (
	MethodManual Method = "manual"
	MethodAuto   Method = "auto"
	MethodDirect Method = "direct"
	MethodSocket Method = "socket"
)

// ErrInvalidMethod indicates an unrecognized linking method value.
var ErrInvalidMethod = errors.New("linking: invalid method")

// Valid reports whether the method is one of the known tags.
func (m Method) Valid() bool {
	switch m {
	case MethodManual, MethodAuto, MethodDirect, MethodSocket:
		return true
	default:
		return false
	}
}

// ParseMethod validates a raw method value.
func ParseMethod(rawInput string) (Method, error) {
	candidate := Method(rawInput)
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, rawInput)
	}
	return candidate, nil
}

// Link joins exactly one identity to one account. Rows carry an active flag
// rather than being deleted, preserving link history. At most one link per
// identity and one per account may be active at a time.
type Link struct {
	IdentityID      string    `gorm:"column:identity_id;primaryKey;size:190;not null"`
	AccountUsername string    `gorm:"column:account_username;primaryKey;size:64;not null"`
	Method          Method    `gorm:"column:method;size:16;not null"`
	Active          bool      `gorm:"column:active;not null;default:false;index"`
	LinkedAt        time.Time `gorm:"column:linked_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Link) TableName() string {
	return "account_links"
}

// SessionStatus enumerates the sync-session lifecycle states.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionExpired   SessionStatus = "expired"
)

// Terminal reports whether the status rejects further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionExpired
}

// SyncSession is the short-lived record backing the deferred socket linking
// flow. Completion arrives out-of-band bearing the session id.
type SyncSession struct {
	SessionID   string        `gorm:"column:session_id;primaryKey;size:190;not null"`
	IdentityID  string        `gorm:"column:identity_id;size:190;not null;index"`
	Status      SessionStatus `gorm:"column:status;size:16;not null;default:'pending';index"`
	Detail      string        `gorm:"column:detail;size:512"`
	ExpiresAt   time.Time     `gorm:"column:expires_at;not null;index"`
	CompletedAt *time.Time    `gorm:"column:completed_at"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (SyncSession) TableName() string {
	return "sync_sessions"
}
