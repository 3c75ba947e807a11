package domain

import (
	"errors"
	"time"
)

type AttendeeID int64

// ActorType identifies what kind of actor an attendee row belongs to.
// Group and circle attendees are virtual: they are expanded to their
// member users when added or removed, the group row itself never joins.
type ActorType string

const (
	ActorUsers          ActorType = "users"
	ActorGroups         ActorType = "groups"
	ActorGuests         ActorType = "guests"
	ActorEmails         ActorType = "emails"
	ActorCircles        ActorType = "circles"
	ActorPhones         ActorType = "phones"
	ActorFederatedUsers ActorType = "federated_users"
)

// Participant types. USER_SELF_JOINED memberships are session scoped: the
// attendee row is dropped together with its last session.
const (
	ParticipantOwner          = 1
	ParticipantModerator      = 2
	ParticipantUser           = 3
	ParticipantGuest          = 4
	ParticipantUserSelfJoined = 5
	ParticipantGuestModerator = 6
)

const (
	ReadPrivacyPublic  = 0
	ReadPrivacyPrivate = 1
)

const (
	NotifyDefault = 0
	NotifyAlways  = 1
	NotifyMention = 2
	NotifyNever   = 3
)

// Removal reasons carried on the remove events.
const (
	ReasonLeft       = "left"
	ReasonRemoved    = "removed"
	ReasonRemovedAll = "removed_all"
)

const MaxDisplayNameLen = 255

var (
	ErrActorIDEmpty       = errors.New("actor id empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// Attendee is the durable membership record of one actor in one room.
// (RoomID, ActorType, ActorID) is unique.
type Attendee struct {
	ID          AttendeeID `gorm:"primaryKey"`
	RoomID      RoomID     `gorm:"not null;uniqueIndex:attendee_actor_index"`
	ActorType   ActorType  `gorm:"size:32;not null;uniqueIndex:attendee_actor_index"`
	ActorID     string     `gorm:"size:255;not null;uniqueIndex:attendee_actor_index"`
	DisplayName string     `gorm:"size:255"`

	ParticipantType int         `gorm:"not null;default:3"`
	Permissions     Permissions `gorm:"not null;default:0"`

	LastReadMessage    int64 `gorm:"not null;default:0"`
	LastMentionMessage int64 `gorm:"not null;default:0"`
	LastJoinedCall     *time.Time

	NotificationLevel int  `gorm:"not null;default:0"`
	Favorite          bool `gorm:"not null;default:false"`
	Archived          bool `gorm:"not null;default:false"`
	Important         bool `gorm:"not null;default:false"`
	ReadPrivacy       int  `gorm:"not null;default:0"`

	// Pin is the SIP dial-in pin, set for users and email guests of
	// SIP-enabled rooms only.
	Pin string `gorm:"size:32"`

	// AccessToken and RemoteServer are set for federated attendees; the
	// token authenticates the remote server's requests back to us.
	AccessToken  string `gorm:"size:128"`
	RemoteServer string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAttendee keeps construction in one place so call sites cannot forget
// the uniqueness key fields.
func NewAttendee(roomID RoomID, actorType ActorType, actorID string) (*Attendee, error) {
	if actorID == "" {
		return nil, ErrActorIDEmpty
	}
	return &Attendee{
		RoomID:    roomID,
		ActorType: actorType,
		ActorID:   actorID,
	}, nil
}

func (a *Attendee) SetDisplayName(name string) error {
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	a.DisplayName = name
	return nil
}

// IsModerator reports whether the participant type carries moderator
// rights.
func (a *Attendee) IsModerator() bool {
	switch a.ParticipantType {
	case ParticipantOwner, ParticipantModerator, ParticipantGuestModerator:
		return true
	}
	return false
}

// IsSelfJoined reports whether the membership lives only as long as its
// sessions do.
func (a *Attendee) IsSelfJoined() bool {
	return a.ParticipantType == ParticipantUserSelfJoined
}

func (a *Attendee) IsFederated() bool {
	return a.ActorType == ActorFederatedUsers
}
