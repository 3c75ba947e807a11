package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestSetActiveSinceStartsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)

	started := env.countEvents(core.EventCallStarted)
	flagsChanged := env.countEvents(core.EventCallFlagsChanged)

	won, err := env.calls.SetActiveSince(ctx, room, time.Now(), domain.CallFlagInCall|domain.CallFlagWithAudio, false)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if !won {
		t.Fatal("first caller must win the start")
	}

	// The room struct has the call active now; a second caller with more
	// media bits merges instead of starting again.
	won, err = env.calls.SetActiveSince(ctx, room, time.Now(), domain.CallFlagInCall|domain.CallFlagWithVideo, false)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if won {
		t.Fatal("second caller must not win")
	}

	if *started != 1 {
		t.Fatalf("CallStartedEvent fired %d times, want 1", *started)
	}
	if *flagsChanged != 1 {
		t.Fatalf("CallFlagsChangedEvent fired %d times, want 1", *flagsChanged)
	}

	fresh, err := env.rooms.ByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !fresh.CallFlag.WithAudio() || !fresh.CallFlag.WithVideo() {
		t.Fatalf("room flag = %d, want both media bits merged", fresh.CallFlag)
	}
}

func TestSetActiveSinceLostRaceStillMergesFlags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)

	// Another worker starts the call between our read and our write.
	stale := *room
	if _, err := env.rooms.StartCall(ctx, room.ID, time.Now(), domain.CallFlagInCall|domain.CallFlagWithAudio); err != nil {
		t.Fatalf("simulated racing start: %v", err)
	}

	started := env.countEvents(core.EventCallStarted)

	won, err := env.calls.SetActiveSince(ctx, &stale, time.Now(), domain.CallFlagInCall|domain.CallFlagWithVideo, false)
	if err != nil {
		t.Fatalf("losing start: %v", err)
	}
	if won {
		t.Fatal("loser of the start race reported a win")
	}
	if *started != 0 {
		t.Fatal("loser emitted CallStartedEvent")
	}

	fresh, err := env.rooms.ByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !fresh.CallFlag.WithAudio() || !fresh.CallFlag.WithVideo() {
		t.Fatalf("room flag = %d, loser's media bits were dropped", fresh.CallFlag)
	}
	if !stale.HasActiveCall() {
		t.Fatal("loser's room struct not refreshed")
	}
}

func TestSetActiveSinceVeto(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)

	env.bus.Subscribe(core.EventBeforeCallStarted, func(ctx context.Context, ev core.Event) error {
		ev.(*core.BeforeCallStartedEvent).Veto(nil)
		return nil
	})

	_, err := env.calls.SetActiveSince(ctx, room, time.Now(), domain.CallFlagInCall, false)
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("vetoed start err = %v, want ErrUnauthorized", err)
	}

	fresh, _ := env.rooms.ByID(ctx, room.ID)
	if fresh.HasActiveCall() {
		t.Fatal("call started despite veto")
	}
}

func TestResetActiveSinceWaitsForEmptyCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, domain.RoomTypeGroup)
	p := env.joinedParticipant(t, room, "alice", domain.ParticipantUser)

	if _, err := env.calls.SetActiveSince(ctx, room, time.Now(), domain.CallFlagInCall, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.sessions.UpdateInCall(ctx, p.Session.ID, domain.CallFlagInCall); err != nil {
		t.Fatalf("mark in call: %v", err)
	}

	ended := env.countEvents(core.EventCallEnded)

	// Somebody is still in the call; the reset is a no-op.
	won, err := env.calls.ResetActiveSince(ctx, room)
	if err != nil {
		t.Fatalf("reset with live session: %v", err)
	}
	if won {
		t.Fatal("call ended while a session was still in it")
	}

	if err := env.sessions.UpdateInCall(ctx, p.Session.ID, domain.CallFlagDisconnected); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	won, err = env.calls.ResetActiveSince(ctx, room)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !won {
		t.Fatal("reset with empty call did not end it")
	}
	if *ended != 1 {
		t.Fatalf("CallEndedEvent fired %d times, want 1", *ended)
	}

	// Idempotent afterwards.
	won, err = env.calls.ResetActiveSince(ctx, room)
	if err != nil || won {
		t.Fatalf("second reset: won=%v err=%v, want no-op", won, err)
	}
}
