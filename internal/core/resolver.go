package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// UserInfo is a resolved member of a group or circle.
type UserInfo struct {
	ID          string
	DisplayName string
}

// GroupResolver expands virtual group/circle actors into their member
// users at add and remove time.
type GroupResolver interface {
	MembersOf(ctx context.Context, actorType domain.ActorType, groupID string) ([]UserInfo, error)
}

// MembershipResolver answers which of the candidate users have no other
// path of membership to the room (direct invite, another group, another
// circle). Used only by group/circle cascade removal so an independently
// invited user is not swept out with the group.
type MembershipResolver interface {
	UsersWithoutOtherMembership(ctx context.Context, room *domain.Room, userIDs []string) ([]string, error)
}

// BanService is consulted before bulk adds; banned actors are silently
// filtered out. The list is fetched once per operation.
type BanService interface {
	BannedActorIDs(ctx context.Context, roomID domain.RoomID) (map[string]struct{}, error)
}

// ReadPrivacyProvider resolves a user's configured read privacy, used
// when creating attendee rows.
type ReadPrivacyProvider interface {
	ReadPrivacy(ctx context.Context, userID string) int
}

// Notifier batches outbound notifications. Defer suspends delivery and
// reports whether this caller owns the flush; the owner must Flush
// exactly once, even on error paths.
type Notifier interface {
	Defer() bool
	Flush()
}

// ChatMessenger delivers a chat message into a room. The chat subsystem
// itself is out of scope; the breakout broadcast only needs this call.
type ChatMessenger interface {
	SendMessage(ctx context.Context, room *domain.Room, participant *domain.Participant, message string) error
}

// GuestSweepScheduler queues a delayed guest cleanup for a room. Guest
// joins and leaves schedule a sweep so abandoned sessions get collected
// without a global cron.
type GuestSweepScheduler interface {
	ScheduleGuestSweep(ctx context.Context, token domain.RoomToken) error
}
