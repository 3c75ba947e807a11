package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func seedRoomWithSessions(t *testing.T) (*RoomStore, *AttendeeStore, *SessionStore, *domain.Room) {
	t.Helper()
	rooms, attendees, sessions := newTestDB(t)
	ctx := context.Background()

	room := &domain.Room{Token: "tok1", Type: domain.RoomTypeGroup}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	alice, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "alice")
	bob, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "bob")
	for _, a := range []*domain.Attendee{alice, bob} {
		if err := attendees.Create(ctx, a); err != nil {
			t.Fatalf("create attendee: %v", err)
		}
	}

	for _, s := range []*domain.Session{
		{SessionID: "alice-1", AttendeeID: alice.ID, InCall: domain.CallFlagInCall | domain.CallFlagWithAudio, LastPing: time.Now()},
		{SessionID: "alice-2", AttendeeID: alice.ID, InCall: domain.CallFlagDisconnected, LastPing: time.Now()},
		{SessionID: "bob-1", AttendeeID: bob.ID, InCall: domain.CallFlagInCall, LastPing: time.Now()},
	} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create session %s: %v", s.SessionID, err)
		}
	}
	return rooms, attendees, sessions, room
}

func TestSessionCreateRejectsDuplicateID(t *testing.T) {
	_, _, sessions, _ := seedRoomWithSessions(t)
	ctx := context.Background()

	err := sessions.Create(ctx, &domain.Session{SessionID: "alice-1", AttendeeID: 1, LastPing: time.Now()})
	if err != core.ErrDuplicate {
		t.Fatalf("duplicate session id err = %v, want ErrDuplicate", err)
	}
}

func TestInCallForRoomAndBulkDisconnect(t *testing.T) {
	_, _, sessions, room := seedRoomWithSessions(t)
	ctx := context.Background()

	rows, err := sessions.InCallForRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("in call for room: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d in-call sessions, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Attendee == nil || row.Attendee.ActorID == "" {
			t.Fatalf("row missing attendee: %+v", row)
		}
	}

	n, err := sessions.DisconnectAllInCall(ctx, room.ID)
	if err != nil {
		t.Fatalf("disconnect all: %v", err)
	}
	if n != 2 {
		t.Fatalf("disconnected %d sessions, want 2", n)
	}

	inCall, err := sessions.HasActiveSessionsInCall(ctx, room.ID)
	if err != nil {
		t.Fatalf("has active in call: %v", err)
	}
	if inCall {
		t.Fatal("sessions still in call after bulk disconnect")
	}
	active, err := sessions.HasActiveSessions(ctx, room.ID)
	if err != nil {
		t.Fatalf("has active: %v", err)
	}
	if !active {
		t.Fatal("disconnect must not delete the sessions themselves")
	}
}

func TestStaleGuestSessions(t *testing.T) {
	rooms, attendees, sessions := newTestDB(t)
	ctx := context.Background()

	room := &domain.Room{Token: "tok1", Type: domain.RoomTypePublic}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	guest, _ := domain.NewAttendee(room.ID, domain.ActorGuests, "guest-1")
	user, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "alice")
	for _, a := range []*domain.Attendee{guest, user} {
		if err := attendees.Create(ctx, a); err != nil {
			t.Fatalf("create attendee: %v", err)
		}
	}

	now := time.Now()
	stale := &domain.Session{SessionID: "g-stale", AttendeeID: guest.ID, LastPing: now.Add(-5 * time.Minute)}
	fresh := &domain.Session{SessionID: "g-fresh", AttendeeID: guest.ID, LastPing: now}
	userStale := &domain.Session{SessionID: "u-stale", AttendeeID: user.ID, LastPing: now.Add(-5 * time.Minute)}
	for _, s := range []*domain.Session{stale, fresh, userStale} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	ids, err := sessions.StaleGuestSessions(ctx, room.ID, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("stale guest sessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("stale ids = %v, want only the stale guest session", ids)
	}
}
