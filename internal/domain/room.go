package domain

import (
	"time"
)

type (
	RoomID    int64
	RoomToken string
)

// Room types. A former one-to-one room is what remains when one side of a
// one-to-one conversation is gone for good.
const (
	RoomTypeOneToOne       = 1
	RoomTypeGroup          = 2
	RoomTypePublic         = 3
	RoomTypeChangelog      = 4
	RoomTypeOneToOneFormer = 5
	RoomTypeNoteToSelf     = 6
)

// Breakout room configuration of a parent room.
const (
	BreakoutModeNotConfigured = 0
	BreakoutModeAutomatic     = 1
	BreakoutModeManual        = 2
	BreakoutModeFree          = 3
)

// Breakout room status. The assistance values are only ever set on child
// rooms, started/stopped only on the parent.
const (
	BreakoutStatusStopped             = 0
	BreakoutStatusStarted             = 1
	BreakoutStatusAssistanceRequested = 2
	BreakoutStatusAssistanceReset     = 3
)

const (
	LobbyNone          = 0
	LobbyNonModerators = 1
)

// ObjectTypeBreakoutRoom links a child room to its parent: ObjectType is
// this constant and ObjectID holds the parent token. The relation is only
// queried through that pair, never stored on the parent row.
const ObjectTypeBreakoutRoom = "breakout_room"

const (
	BreakoutMinimumRooms = 1
	BreakoutMaximumRooms = 20
)

// Room is the conversation aggregate. ActiveSince is non-nil exactly when
// CallFlag is not disconnected; both only change together through the
// conditional updates in the room store.
type Room struct {
	ID         RoomID    `gorm:"primaryKey"`
	Token      RoomToken `gorm:"uniqueIndex;size:64"`
	Name       string    `gorm:"size:255"`
	Type       int       `gorm:"not null;index"`
	ObjectType string    `gorm:"size:64;index:room_object_index"`
	ObjectID   string    `gorm:"size:64;index:room_object_index"`

	CallFlag    CallFlag `gorm:"not null;default:0"`
	ActiveSince *time.Time

	BreakoutRoomMode   int `gorm:"not null;default:0"`
	BreakoutRoomStatus int `gorm:"not null;default:0"`

	LobbyState         int         `gorm:"not null;default:0"`
	Listable           bool        `gorm:"not null;default:false"`
	SIPEnabled         bool        `gorm:"not null;default:false"`
	DefaultPermissions Permissions `gorm:"not null;default:0"`
	PasswordHash       string      `gorm:"size:255"`

	LastMessageID int64 `gorm:"not null;default:0"`
	LastActivity  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasActiveCall reports whether a call is currently running.
func (r *Room) HasActiveCall() bool {
	return r.ActiveSince != nil
}

// SupportsCalls reports whether the room type permits starting or joining
// a call at all.
func (r *Room) SupportsCalls() bool {
	switch r.Type {
	case RoomTypeOneToOneFormer, RoomTypeChangelog, RoomTypeNoteToSelf:
		return false
	}
	return true
}

func (r *Room) IsBreakoutRoom() bool {
	return r.ObjectType == ObjectTypeBreakoutRoom
}

// ParentToken returns the parent room token of a breakout room, or ""
// for a regular room.
func (r *Room) ParentToken() RoomToken {
	if !r.IsBreakoutRoom() {
		return ""
	}
	return RoomToken(r.ObjectID)
}

func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}
