package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestCreateSessionGeneratesUniqueIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)
	attendee := env.addUser(t, room, "alice", domain.ParticipantUser)

	first, err := env.tracker.CreateSessionForAttendee(ctx, attendee, "")
	if err != nil {
		t.Fatalf("first session: %v", err)
	}
	second, err := env.tracker.CreateSessionForAttendee(ctx, attendee, "")
	if err != nil {
		t.Fatalf("second session: %v", err)
	}

	if len(first.SessionID) != domain.SessionIDLength {
		t.Fatalf("session id length = %d, want %d", len(first.SessionID), domain.SessionIDLength)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("two sessions share an id")
	}
	if first.InCall != domain.CallFlagDisconnected {
		t.Fatalf("new session in-call flag = %d, want disconnected", first.InCall)
	}
}

func TestCreateSessionForcedIDDoesNotSpin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)
	attendee := env.addUser(t, room, "alice", domain.ParticipantUser)

	if _, err := env.tracker.CreateSessionForAttendee(ctx, attendee, "fixed-id"); err != nil {
		t.Fatalf("forced id session: %v", err)
	}
	_, err := env.tracker.CreateSessionForAttendee(ctx, attendee, "fixed-id")
	if err != core.ErrDuplicate {
		t.Fatalf("duplicate forced id err = %v, want ErrDuplicate", err)
	}
}

func TestCreateSessionFederatedSuffix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)

	attendee, err := domain.NewAttendee(room.ID, domain.ActorFederatedUsers, "bob@remote.example")
	if err != nil {
		t.Fatalf("new attendee: %v", err)
	}
	if err := env.attendees.Create(ctx, attendee); err != nil {
		t.Fatalf("create attendee: %v", err)
	}

	session, err := env.tracker.CreateSessionForAttendee(ctx, attendee, "")
	if err != nil {
		t.Fatalf("federated session: %v", err)
	}
	if !strings.HasSuffix(session.SessionID, "#bob@remote.example") {
		t.Fatalf("federated session id %q lacks cloud id suffix", session.SessionID[200:])
	}
	if got := domain.CloudIDOfSession(session.SessionID); got != "bob@remote.example" {
		t.Fatalf("cloud id of session = %q", got)
	}
}

func TestUpdateSessionStateValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)
	p := env.joinedParticipant(t, room, "alice", domain.ParticipantUser)

	if err := env.tracker.UpdateSessionState(ctx, p.Session, domain.SessionStateInactive); err != nil {
		t.Fatalf("set inactive: %v", err)
	}
	if p.Session.State != domain.SessionStateInactive {
		t.Fatal("session struct not updated")
	}

	if err := env.tracker.UpdateSessionState(ctx, p.Session, 42); !core.IsValidation(err) {
		t.Fatalf("bogus state err = %v, want validation error", err)
	}
}

func TestCleanGuestParticipantsTwoPhases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypePublic)

	// Anonymous guest with a stale session: both phases collect it.
	anon, _ := domain.NewAttendee(room.ID, domain.ActorGuests, "guest-anon")
	anon.ParticipantType = domain.ParticipantGuest
	// Named guest with a stale session: the session goes, the attendee
	// stays recognizable for a reconnect.
	named, _ := domain.NewAttendee(room.ID, domain.ActorGuests, "guest-named")
	named.ParticipantType = domain.ParticipantGuest
	named.DisplayName = "Visiting Expert"
	// Anonymous guest with custom permissions: also kept.
	custom, _ := domain.NewAttendee(room.ID, domain.ActorGuests, "guest-custom")
	custom.ParticipantType = domain.ParticipantGuest
	custom.Permissions = domain.PermissionsCustom | domain.PermissionsPublishAudio

	for _, a := range []*domain.Attendee{anon, named, custom} {
		if err := env.attendees.Create(ctx, a); err != nil {
			t.Fatalf("create attendee: %v", err)
		}
	}

	staleAt := time.Now().Add(-time.Hour)
	for i, a := range []*domain.Attendee{anon, named, custom} {
		session := &domain.Session{
			SessionID:  strings.Repeat("x", 10) + string(rune('a'+i)),
			AttendeeID: a.ID,
			LastPing:   staleAt,
		}
		if err := env.sessions.Create(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	cleaned := env.countEvents(core.EventGuestsCleaned)

	if err := env.tracker.CleanGuestParticipants(ctx, room); err != nil {
		t.Fatalf("clean guests: %v", err)
	}
	if *cleaned != 1 {
		t.Fatalf("GuestsCleanedEvent fired %d times, want 1", *cleaned)
	}

	if active, _ := env.sessions.HasActiveSessions(ctx, room.ID); active {
		t.Fatal("stale guest sessions survived the sweep")
	}
	if _, err := env.attendees.ByActor(ctx, room.ID, domain.ActorGuests, "guest-anon"); err != core.ErrNotFound {
		t.Fatalf("anonymous guest survived: err = %v", err)
	}
	if _, err := env.attendees.ByActor(ctx, room.ID, domain.ActorGuests, "guest-named"); err != nil {
		t.Fatalf("named guest swept out: %v", err)
	}
	if _, err := env.attendees.ByActor(ctx, room.ID, domain.ActorGuests, "guest-custom"); err != nil {
		t.Fatalf("custom-permission guest swept out: %v", err)
	}
}

func TestCleanGuestParticipantsEndsAbandonedCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypePublic)

	guest, _ := domain.NewAttendee(room.ID, domain.ActorGuests, "guest-1")
	guest.ParticipantType = domain.ParticipantGuest
	if err := env.attendees.Create(ctx, guest); err != nil {
		t.Fatalf("create guest: %v", err)
	}
	session := &domain.Session{
		SessionID:  "guest-session",
		AttendeeID: guest.ID,
		InCall:     domain.CallFlagInCall,
		LastPing:   time.Now().Add(-time.Hour),
	}
	if err := env.sessions.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := env.calls.SetActiveSince(ctx, room, time.Now(), domain.CallFlagInCall, false); err != nil {
		t.Fatalf("start call: %v", err)
	}

	if err := env.tracker.CleanGuestParticipants(ctx, room); err != nil {
		t.Fatalf("clean guests: %v", err)
	}

	fresh, err := env.rooms.ByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.HasActiveCall() {
		t.Fatal("call stayed active after its last guest was swept")
	}
}
