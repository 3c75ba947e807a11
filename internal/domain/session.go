package domain

import (
	"strings"
	"time"
)

type SessionDBID int64

const (
	// SessionIDLength is the length of the random part of a session id.
	SessionIDLength = 255

	// SessionIDColumnWidth bounds the stored id. Federated session ids
	// carry a "#cloudID" suffix and are truncated to this width.
	SessionIDColumnWidth = 512
)

const (
	SessionStateActive   = 0
	SessionStateInactive = 1
)

// Session is one device connection of an attendee. An attendee holds
// zero, one or many concurrent sessions.
type Session struct {
	ID         SessionDBID `gorm:"primaryKey"`
	SessionID  string      `gorm:"uniqueIndex;size:512;not null"`
	AttendeeID AttendeeID  `gorm:"not null;index"`

	InCall   CallFlag  `gorm:"not null;default:0"`
	LastPing time.Time `gorm:"index"`
	State    int       `gorm:"not null;default:0"`

	CreatedAt time.Time
}

func (s *Session) IsInCall() bool {
	return s.InCall.InCall()
}

// FederatedSessionID appends the cloud id to a session id so the id stays
// traceable to its origin server without a join, truncated to the column
// width.
func FederatedSessionID(sessionID, cloudID string) string {
	id := sessionID + "#" + cloudID
	if len(id) > SessionIDColumnWidth {
		id = id[:SessionIDColumnWidth]
	}
	return id
}

// CloudIDOfSession extracts the cloud id suffix of a federated session
// id, or "" for a local one.
func CloudIDOfSession(sessionID string) string {
	if i := strings.IndexByte(sessionID, '#'); i >= 0 {
		return sessionID[i+1:]
	}
	return ""
}
