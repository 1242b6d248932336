// Package session persists per-tenant conversation history.
//
// Each session is one row keyed by (tenant, session id) holding the full
// conversation as a JSON document. Appends are read-modify-write with
// last-write-wins semantics; the chat surface serializes turns within a
// session so overlapping appends are not a practical concern.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Turn is one user message and the answer it received.
type Turn struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
}

// Session is a tenant-scoped conversation.
type Session struct {
	TenantID     int64
	SessionID    string
	History      []Turn
	LastActivity time.Time
}
