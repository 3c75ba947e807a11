package core

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// RoomStore owns the rooms table. StartCall and EndCall are the two
// conditional updates everything race-sensitive is built on: they return
// false without error when another writer won.
type RoomStore interface {
	// Create inserts a new room. A token collision is ErrDuplicate and is
	// never swallowed here: room creation must create the only row.
	Create(ctx context.Context, room *domain.Room) error

	ByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	ByToken(ctx context.Context, token domain.RoomToken) (*domain.Room, error)

	// BreakoutRooms returns the children of a parent, queried by
	// object type + parent token.
	BreakoutRooms(ctx context.Context, parent domain.RoomToken) ([]*domain.Room, error)

	Delete(ctx context.Context, id domain.RoomID) error

	// StartCall sets active_since and call_flag iff no call is active
	// (`WHERE active_since IS NULL`).
	StartCall(ctx context.Context, id domain.RoomID, since time.Time, flag domain.CallFlag) (bool, error)

	// MergeCallFlag ORs additional media bits into an active call's flag.
	MergeCallFlag(ctx context.Context, id domain.RoomID, flag domain.CallFlag) error

	// EndCall clears active_since and call_flag iff a call is active
	// (`WHERE active_since IS NOT NULL`).
	EndCall(ctx context.Context, id domain.RoomID) (bool, error)

	SetBreakoutMode(ctx context.Context, id domain.RoomID, mode int) error
	SetBreakoutStatus(ctx context.Context, id domain.RoomID, status int) error
	SetLobbyState(ctx context.Context, id domain.RoomID, state int) error
	SetPassword(ctx context.Context, id domain.RoomID, hash string) error
	SetLastMessage(ctx context.Context, id domain.RoomID, messageID int64, at time.Time) error
}

// AttendeeStore persists memberships. The idempotent-vs-must-be-unique
// distinction is explicit: CreateIfAbsent for add operations that swallow
// duplicates, Create for inserts that must own the row.
type AttendeeStore interface {
	Create(ctx context.Context, attendee *domain.Attendee) error
	CreateIfAbsent(ctx context.Context, attendee *domain.Attendee) (created bool, err error)

	ByID(ctx context.Context, id domain.AttendeeID) (*domain.Attendee, error)
	ByActor(ctx context.Context, roomID domain.RoomID, actorType domain.ActorType, actorID string) (*domain.Attendee, error)
	ForRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Attendee, error)
	ForRoomByActorType(ctx context.Context, roomID domain.RoomID, actorType domain.ActorType) ([]*domain.Attendee, error)

	Update(ctx context.Context, attendee *domain.Attendee) error
	Delete(ctx context.Context, id domain.AttendeeID) error
	DeleteByIDs(ctx context.Context, ids []domain.AttendeeID) error

	// GuestsWithoutSessions returns guest attendees of the room that have
	// no session row left, for the second phase of the guest sweep.
	GuestsWithoutSessions(ctx context.Context, roomID domain.RoomID) ([]*domain.Attendee, error)

	CountByParticipantTypes(ctx context.Context, roomID domain.RoomID, types []int) (int64, error)

	// MarkMentioned bumps last_mention_message for the given user actors.
	MarkMentioned(ctx context.Context, roomID domain.RoomID, actorIDs []string, messageID int64) error

	// LastCommonRead is the minimum last_read_message over user attendees
	// with public read privacy.
	LastCommonRead(ctx context.Context, roomID domain.RoomID) (int64, error)
}

// SessionRow pairs a session with its owning attendee for queries that
// join the two tables.
type SessionRow struct {
	Session  *domain.Session
	Attendee *domain.Attendee
}

// SessionStore persists device sessions. HasActiveSessionsInCall is a
// live query on purpose: call-end decisions are never made from cached
// counters.
type SessionStore interface {
	// Create inserts a session; a session-id collision is ErrDuplicate.
	Create(ctx context.Context, session *domain.Session) error

	BySessionID(ctx context.Context, sessionID string) (*domain.Session, error)
	ByAttendee(ctx context.Context, attendeeID domain.AttendeeID) ([]*domain.Session, error)

	UpdateInCall(ctx context.Context, id domain.SessionDBID, flag domain.CallFlag) error
	UpdateLastPing(ctx context.Context, id domain.SessionDBID, at time.Time) error
	UpdateState(ctx context.Context, id domain.SessionDBID, state int) error

	Delete(ctx context.Context, id domain.SessionDBID) error
	DeleteByAttendee(ctx context.Context, attendeeID domain.AttendeeID) error
	DeleteByIDs(ctx context.Context, ids []domain.SessionDBID) error

	// InCallForRoom returns every session of the room whose in_call flag
	// is not disconnected, with its attendee.
	InCallForRoom(ctx context.Context, roomID domain.RoomID) ([]SessionRow, error)

	// DisconnectAllInCall forces every in-call session of the room to
	// disconnected in one bulk update and reports how many were hit.
	DisconnectAllInCall(ctx context.Context, roomID domain.RoomID) (int64, error)

	HasActiveSessions(ctx context.Context, roomID domain.RoomID) (bool, error)
	HasActiveSessionsInCall(ctx context.Context, roomID domain.RoomID) (bool, error)

	// StaleGuestSessions returns session ids of guest attendees whose
	// last ping is at or before the deadline, for the first phase of the
	// guest sweep.
	StaleGuestSessions(ctx context.Context, roomID domain.RoomID, deadline time.Time) ([]domain.SessionDBID, error)
}
