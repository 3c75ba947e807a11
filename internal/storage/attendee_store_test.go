package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestCreateIfAbsentIsIdempotent(t *testing.T) {
	rooms, attendees, _ := newTestDB(t)
	ctx := context.Background()

	room := &domain.Room{Token: "tok1", Type: domain.RoomTypeGroup}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	first, err := domain.NewAttendee(room.ID, domain.ActorUsers, "alice")
	if err != nil {
		t.Fatalf("new attendee: %v", err)
	}
	created, err := attendees.CreateIfAbsent(ctx, first)
	if err != nil || !created {
		t.Fatalf("first add: created=%v err=%v", created, err)
	}

	second, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "alice")
	created, err = attendees.CreateIfAbsent(ctx, second)
	if err != nil {
		t.Fatalf("duplicate add must not error: %v", err)
	}
	if created {
		t.Fatal("duplicate add reported created=true")
	}

	// The strict variant reports the same situation as an error.
	third, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "alice")
	if err := attendees.Create(ctx, third); err != core.ErrDuplicate {
		t.Fatalf("strict create err = %v, want ErrDuplicate", err)
	}

	// Same actor in another room is a distinct membership.
	other := &domain.Room{Token: "tok2", Type: domain.RoomTypeGroup}
	if err := rooms.Create(ctx, other); err != nil {
		t.Fatalf("create other room: %v", err)
	}
	elsewhere, _ := domain.NewAttendee(other.ID, domain.ActorUsers, "alice")
	created, err = attendees.CreateIfAbsent(ctx, elsewhere)
	if err != nil || !created {
		t.Fatalf("cross-room add: created=%v err=%v", created, err)
	}
}

func TestGuestsWithoutSessions(t *testing.T) {
	rooms, attendees, sessions := newTestDB(t)
	ctx := context.Background()

	room := &domain.Room{Token: "tok1", Type: domain.RoomTypePublic}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	connected, _ := domain.NewAttendee(room.ID, domain.ActorGuests, "guest-connected")
	orphan, _ := domain.NewAttendee(room.ID, domain.ActorGuests, "guest-orphan")
	user, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "alice")
	for _, a := range []*domain.Attendee{connected, orphan, user} {
		if err := attendees.Create(ctx, a); err != nil {
			t.Fatalf("create attendee: %v", err)
		}
	}
	if err := sessions.Create(ctx, &domain.Session{SessionID: "s1", AttendeeID: connected.ID, LastPing: time.Now()}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	orphans, err := attendees.GuestsWithoutSessions(ctx, room.ID)
	if err != nil {
		t.Fatalf("guests without sessions: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ActorID != "guest-orphan" {
		t.Fatalf("orphans = %+v, want only guest-orphan", orphans)
	}
}

func TestLastCommonReadSkipsPrivateUsers(t *testing.T) {
	rooms, attendees, _ := newTestDB(t)
	ctx := context.Background()

	room := &domain.Room{Token: "tok1", Type: domain.RoomTypeGroup}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	public1, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "alice")
	public1.LastReadMessage = 10
	public2, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "bob")
	public2.LastReadMessage = 7
	private, _ := domain.NewAttendee(room.ID, domain.ActorUsers, "carol")
	private.LastReadMessage = 3
	private.ReadPrivacy = domain.ReadPrivacyPrivate
	for _, a := range []*domain.Attendee{public1, public2, private} {
		if err := attendees.Create(ctx, a); err != nil {
			t.Fatalf("create attendee: %v", err)
		}
	}

	got, err := attendees.LastCommonRead(ctx, room.ID)
	if err != nil {
		t.Fatalf("last common read: %v", err)
	}
	if got != 7 {
		t.Fatalf("last common read = %d, want 7 (private reader ignored)", got)
	}
}
