package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// Change carries an old/new value pair on after-events, and old/proposed
// on before-events.
type Change[T any] struct {
	Old T
	New T
}

// Event is anything published on the bus. Subscriptions match on Name.
type Event interface {
	Name() string
}

// Vetoable is embedded by before-events. A listener cancels the pending
// mutation by calling Veto; the publisher checks Vetoed afterwards.
// After-events never embed it.
type Vetoable struct {
	veto error
}

func (v *Vetoable) Veto(err error) {
	if err == nil {
		err = ErrUnauthorized
	}
	v.veto = err
}

func (v *Vetoable) Vetoed() error { return v.veto }

// Handler is a synchronous, in-process listener. Errors from handlers of
// after-events are logged by the bus and never propagated: a committed
// mutation stays committed.
type Handler func(ctx context.Context, ev Event) error

// EventBus is the synchronous fan-out used around every mutation:
// before-event, mutation, after-event, strictly in that order.
type EventBus interface {
	// Publish delivers ev to all handlers subscribed to its name. For
	// before-events it returns the first veto; for after-events it
	// always returns nil.
	Publish(ctx context.Context, ev Event) error

	Subscribe(name string, h Handler)
}

// AttendeeEntry is one actor in a bulk add.
type AttendeeEntry struct {
	ActorType       domain.ActorType
	ActorID         string
	DisplayName     string
	ParticipantType int
	CloudID         string
}

const (
	EventBeforeJoin             = "room.before_join"
	EventJoined                 = "room.joined"
	EventBeforeLeave            = "room.before_leave"
	EventLeft                   = "room.left"
	EventBeforeAttendeesAdded   = "room.before_attendees_added"
	EventAttendeesAdded         = "room.attendees_added"
	EventBeforeAttendeeRemoved  = "room.before_attendee_removed"
	EventAttendeeRemoved        = "room.attendee_removed"
	EventBeforeInCallChanged    = "call.before_in_call_changed"
	EventInCallChanged          = "call.in_call_changed"
	EventBeforeCallStarted      = "call.before_started"
	EventCallStarted            = "call.started"
	EventBeforeCallEnded        = "call.before_ended"
	EventCallEnded              = "call.ended"
	EventBeforeCallFlagsChanged = "call.before_flags_changed"
	EventCallFlagsChanged       = "call.flags_changed"
	EventCallEndedForEveryone   = "call.ended_for_everyone"
	EventBeforeGuestsCleaned    = "room.before_guests_cleaned"
	EventGuestsCleaned          = "room.guests_cleaned"
)

// BeforeJoinEvent is published before a join mutation; listeners (ban
// lists and the like) may veto it.
type BeforeJoinEvent struct {
	Vetoable
	Room    *domain.Room
	ActorID string

	// PassedPasswordProtection can be raised by a listener that already
	// verified the caller (e.g. an invite link).
	PassedPasswordProtection bool
}

func (*BeforeJoinEvent) Name() string { return EventBeforeJoin }

type JoinedEvent struct {
	Room        *domain.Room
	Participant *domain.Participant
}

func (*JoinedEvent) Name() string { return EventJoined }

type BeforeLeaveEvent struct {
	Room        *domain.Room
	Participant *domain.Participant
}

func (*BeforeLeaveEvent) Name() string { return EventBeforeLeave }

type LeftEvent struct {
	Room        *domain.Room
	Participant *domain.Participant
}

func (*LeftEvent) Name() string { return EventLeft }

type BeforeAttendeesAddedEvent struct {
	Vetoable
	Room    *domain.Room
	Entries []AttendeeEntry
}

func (*BeforeAttendeesAddedEvent) Name() string { return EventBeforeAttendeesAdded }

// AttendeesAddedEvent carries the room's last message id so listeners can
// chain a last-message update for the new members.
type AttendeesAddedEvent struct {
	Room          *domain.Room
	Attendees     []*domain.Attendee
	LastMessageID int64
}

func (*AttendeesAddedEvent) Name() string { return EventAttendeesAdded }

type BeforeAttendeeRemovedEvent struct {
	Vetoable
	Room     *domain.Room
	Attendee *domain.Attendee
	Reason   string
}

func (*BeforeAttendeeRemovedEvent) Name() string { return EventBeforeAttendeeRemoved }

type AttendeeRemovedEvent struct {
	Room     *domain.Room
	Attendee *domain.Attendee
	Reason   string
}

func (*AttendeeRemovedEvent) Name() string { return EventAttendeeRemoved }

// BeforeInCallChangedEvent is published before a session's in-call flags
// move; Flags.New is already permission masked.
type BeforeInCallChangedEvent struct {
	Vetoable
	Room           *domain.Room
	Participant    *domain.Participant
	Flags          Change[domain.CallFlag]
	Silent         bool
	EndForEveryone bool
}

func (*BeforeInCallChangedEvent) Name() string { return EventBeforeInCallChanged }

type InCallChangedEvent struct {
	Room           *domain.Room
	Participant    *domain.Participant
	Flags          Change[domain.CallFlag]
	Silent         bool
	EndForEveryone bool
}

func (*InCallChangedEvent) Name() string { return EventInCallChanged }

type BeforeCallStartedEvent struct {
	Vetoable
	Room   *domain.Room
	Flags  Change[domain.CallFlag]
	Silent bool
}

func (*BeforeCallStartedEvent) Name() string { return EventBeforeCallStarted }

// CallStartedEvent is emitted exactly once per started call: only the
// winner of the conditional update publishes it.
type CallStartedEvent struct {
	Room   *domain.Room
	Flags  Change[domain.CallFlag]
	Silent bool
}

func (*CallStartedEvent) Name() string { return EventCallStarted }

type BeforeCallEndedEvent struct {
	Vetoable
	Room *domain.Room
}

func (*BeforeCallEndedEvent) Name() string { return EventBeforeCallEnded }

type CallEndedEvent struct {
	Room *domain.Room
}

func (*CallEndedEvent) Name() string { return EventCallEnded }

type BeforeCallFlagsChangedEvent struct {
	Vetoable
	Room  *domain.Room
	Flags Change[domain.CallFlag]
}

func (*BeforeCallFlagsChangedEvent) Name() string { return EventBeforeCallFlagsChanged }

// CallFlagsChangedEvent is the "call already running, bitmask upgraded"
// counterpart of CallStartedEvent.
type CallFlagsChangedEvent struct {
	Room  *domain.Room
	Flags Change[domain.CallFlag]
}

func (*CallFlagsChangedEvent) Name() string { return EventCallFlagsChanged }

// CallEndedForEveryoneEvent aggregates one bulk hang-up: every affected
// session and actor in a single event instead of N per-session ones.
type CallEndedForEveryoneEvent struct {
	Room       *domain.Room
	SessionIDs []string
	ActorIDs   []string
}

func (*CallEndedForEveryoneEvent) Name() string { return EventCallEndedForEveryone }

type BeforeGuestsCleanedEvent struct {
	Vetoable
	Room *domain.Room
}

func (*BeforeGuestsCleanedEvent) Name() string { return EventBeforeGuestsCleaned }

type GuestsCleanedEvent struct {
	Room             *domain.Room
	SessionsRemoved  int
	AttendeesRemoved int
}

func (*GuestsCleanedEvent) Name() string { return EventGuestsCleaned }
