package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// CallStateController owns the room's "call active" bit. All cross-worker
// races are settled by the conditional updates in the room store: exactly
// one caller per race wins and emits the corresponding event.
type CallStateController struct {
	rooms    core.RoomStore
	sessions core.SessionStore
	bus      core.EventBus
}

func NewCallStateController(rooms core.RoomStore, sessions core.SessionStore, bus core.EventBus) *CallStateController {
	return &CallStateController{rooms: rooms, sessions: sessions, bus: bus}
}

// SetActiveSince starts a call, or upgrades the flag bitmask of one that
// is already running. Returns true only for the caller that actually
// started the call; that caller alone emits CallStartedEvent.
func (c *CallStateController) SetActiveSince(ctx context.Context, room *domain.Room, since time.Time, flag domain.CallFlag, silent bool) (bool, error) {
	if room.HasActiveCall() {
		return false, c.mergeFlags(ctx, room, flag)
	}

	before := &core.BeforeCallStartedEvent{
		Room:   room,
		Flags:  core.Change[domain.CallFlag]{Old: room.CallFlag, New: flag},
		Silent: silent,
	}
	if err := c.bus.Publish(ctx, before); err != nil {
		return false, err
	}

	won, err := c.rooms.StartCall(ctx, room.ID, since, flag)
	if err != nil {
		return false, err
	}
	if !won {
		// Another worker started the call between our read and the
		// conditional update. Our write is discarded; the requested
		// media bits still have to reach the room flag.
		log.Debug().Str("module", "app.callstate").Str("room", string(room.Token)).
			Msg("lost call-start race, merging flags instead")
		fresh, ferr := c.rooms.ByID(ctx, room.ID)
		if ferr != nil {
			return false, ferr
		}
		*room = *fresh
		return false, c.mergeFlags(ctx, room, flag)
	}

	oldFlag := room.CallFlag
	room.ActiveSince = &since
	room.CallFlag = flag

	_ = c.bus.Publish(ctx, &core.CallStartedEvent{
		Room:   room,
		Flags:  core.Change[domain.CallFlag]{Old: oldFlag, New: flag},
		Silent: silent,
	})
	log.Info().Str("module", "app.callstate").Str("room", string(room.Token)).
		Int("flags", int(flag)).Bool("silent", silent).Msg("call started")
	return true, nil
}

func (c *CallStateController) mergeFlags(ctx context.Context, room *domain.Room, flag domain.CallFlag) error {
	merged := room.CallFlag.Merge(flag)
	if merged == room.CallFlag {
		return nil
	}

	before := &core.BeforeCallFlagsChangedEvent{
		Room:  room,
		Flags: core.Change[domain.CallFlag]{Old: room.CallFlag, New: merged},
	}
	if err := c.bus.Publish(ctx, before); err != nil {
		return err
	}

	if err := c.rooms.MergeCallFlag(ctx, room.ID, flag); err != nil {
		return err
	}
	old := room.CallFlag
	room.CallFlag = merged

	_ = c.bus.Publish(ctx, &core.CallFlagsChangedEvent{
		Room:  room,
		Flags: core.Change[domain.CallFlag]{Old: old, New: merged},
	})
	return nil
}

// ResetActiveSince ends the room's call if nobody is left in it. It is
// cheap and a correct no-op otherwise, so every path that might have
// dropped call membership to zero calls it defensively. Only the winner
// of the conditional update emits CallEndedEvent.
func (c *CallStateController) ResetActiveSince(ctx context.Context, room *domain.Room) (bool, error) {
	if !room.HasActiveCall() {
		return false, nil
	}

	// Live query on purpose: a cached counter could say zero while a
	// racing join already wrote its in-call flag.
	inCall, err := c.sessions.HasActiveSessionsInCall(ctx, room.ID)
	if err != nil {
		return false, err
	}
	if inCall {
		return false, nil
	}

	before := &core.BeforeCallEndedEvent{Room: room}
	if err := c.bus.Publish(ctx, before); err != nil {
		return false, err
	}

	won, err := c.rooms.EndCall(ctx, room.ID)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	room.ActiveSince = nil
	room.CallFlag = domain.CallFlagDisconnected

	_ = c.bus.Publish(ctx, &core.CallEndedEvent{Room: room})
	log.Info().Str("module", "app.callstate").Str("room", string(room.Token)).Msg("call ended")
	return true, nil
}
