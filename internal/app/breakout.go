package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// BreakoutRoomOrchestrator manages the lifecycle of breakout rooms
// hanging off a parent group room: setup with attendee distribution,
// start/stop via lobby toggling, assistance requests and free-mode
// switching.
type BreakoutRoomOrchestrator struct {
	rooms       core.RoomStore
	attendees   core.AttendeeStore
	registry    *RoomRegistry
	coordinator *ParticipantCoordinator

	notifier core.Notifier
	chat     core.ChatMessenger
	validate *validator.Validate
	enabled  bool
}

func NewBreakoutRoomOrchestrator(rooms core.RoomStore, attendees core.AttendeeStore, registry *RoomRegistry, coordinator *ParticipantCoordinator, notifier core.Notifier, chat core.ChatMessenger, enabled bool) *BreakoutRoomOrchestrator {
	return &BreakoutRoomOrchestrator{
		rooms:       rooms,
		attendees:   attendees,
		registry:    registry,
		coordinator: coordinator,
		notifier:    notifier,
		chat:        chat,
		validate:    validator.New(),
		enabled:     enabled,
	}
}

type breakoutConfig struct {
	Mode   int `validate:"min=1,max=3"`
	Amount int `validate:"min=1,max=20"`
}

// Setup partitions a group room into amount breakout rooms. All
// validation happens before the first child room is created, so a
// rejected setup leaves zero rooms behind. Reconfiguring requires an
// explicit Remove first.
func (o *BreakoutRoomOrchestrator) Setup(ctx context.Context, parent *domain.Room, mode, amount int, attendeeMap string) ([]*domain.Room, error) {
	if !o.enabled {
		return nil, core.NewValidationError("breakout", "breakout rooms are disabled on this server")
	}
	if parent.IsBreakoutRoom() {
		return nil, core.NewValidationError("room", "breakout rooms cannot be nested")
	}
	if parent.Type != domain.RoomTypeGroup {
		return nil, core.NewValidationError("room", "breakout rooms require a group room")
	}
	if parent.BreakoutRoomMode != domain.BreakoutModeNotConfigured {
		return nil, core.NewValidationError("mode", "breakout rooms are already configured")
	}
	if err := o.validate.Struct(breakoutConfig{Mode: mode, Amount: amount}); err != nil {
		return nil, core.NewValidationError("mode", "mode or amount out of range")
	}

	var assignment map[domain.AttendeeID]int
	if mode == domain.BreakoutModeManual {
		var err error
		assignment, err = parseAttendeeMap(attendeeMap, amount)
		if err != nil {
			return nil, err
		}
	}

	// A crashed earlier setup may have left children behind even though
	// the parent mode was never committed.
	if err := o.deleteBreakoutRooms(ctx, parent); err != nil {
		return nil, err
	}

	children := make([]*domain.Room, 0, amount)
	for i := 0; i < amount; i++ {
		child, err := o.registry.CreateConversation(ctx, domain.RoomTypeGroup,
			fmt.Sprintf("Room %d", i+1), domain.ObjectTypeBreakoutRoom, string(parent.Token))
		if err != nil {
			return nil, err
		}
		// Children stay behind a lobby until the session is started.
		if err := o.registry.SetLobby(ctx, child, domain.LobbyNonModerators); err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	members, err := o.attendees.ForRoom(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	var moderators []core.AttendeeEntry
	var regulars []*domain.Attendee
	for _, a := range members {
		switch {
		case a.IsModerator():
			moderators = append(moderators, core.AttendeeEntry{
				ActorType:       a.ActorType,
				ActorID:         a.ActorID,
				DisplayName:     a.DisplayName,
				ParticipantType: a.ParticipantType,
			})
		case a.ActorType == domain.ActorUsers:
			regulars = append(regulars, a)
		}
	}

	// Moderators supervise every breakout room.
	for _, child := range children {
		if _, err := o.coordinator.AddUsers(ctx, child, moderators, ""); err != nil {
			return nil, err
		}
	}

	switch mode {
	case domain.BreakoutModeAutomatic:
		rand.Shuffle(len(regulars), func(i, j int) {
			regulars[i], regulars[j] = regulars[j], regulars[i]
		})
		for i, a := range regulars {
			if err := o.addToChild(ctx, children[i%amount], a); err != nil {
				return nil, err
			}
		}
	case domain.BreakoutModeManual:
		for _, a := range regulars {
			idx, ok := assignment[a.ID]
			if !ok {
				continue
			}
			if err := o.addToChild(ctx, children[idx], a); err != nil {
				return nil, err
			}
		}
	case domain.BreakoutModeFree:
		// Attendees pick their own room later via SwitchBreakoutRoom.
	}

	if err := o.registry.SetBreakoutMode(ctx, parent, mode); err != nil {
		return nil, err
	}

	log.Info().Str("module", "app.breakout").Str("room", string(parent.Token)).
		Int("mode", mode).Int("amount", amount).Msg("breakout rooms configured")
	return children, nil
}

func (o *BreakoutRoomOrchestrator) addToChild(ctx context.Context, child *domain.Room, a *domain.Attendee) error {
	_, err := o.coordinator.AddUsers(ctx, child, []core.AttendeeEntry{{
		ActorType:       a.ActorType,
		ActorID:         a.ActorID,
		DisplayName:     a.DisplayName,
		ParticipantType: domain.ParticipantUser,
	}}, "")
	return err
}

// parseAttendeeMap decodes the manual-mode assignment, a JSON object of
// attendee id to room index. Any out-of-range id or index rejects the
// whole map.
func parseAttendeeMap(raw string, amount int) (map[domain.AttendeeID]int, error) {
	var decoded map[string]int
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, core.NewValidationError("attendeeMap", "invalid JSON")
	}
	assignment := make(map[domain.AttendeeID]int, len(decoded))
	for key, idx := range decoded {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return nil, core.NewValidationError("attendeeMap", "invalid attendee id "+key)
		}
		if idx < 0 || idx >= amount {
			return nil, core.NewValidationError("attendeeMap", "room index out of range for attendee "+key)
		}
		assignment[domain.AttendeeID(id)] = idx
	}
	return assignment, nil
}

// Start opens the breakout rooms: lobbies are lifted from the children
// and the parent status moves to started.
func (o *BreakoutRoomOrchestrator) Start(ctx context.Context, parent *domain.Room) error {
	if parent.BreakoutRoomMode == domain.BreakoutModeNotConfigured {
		return core.NewValidationError("mode", "breakout rooms are not configured")
	}
	children, err := o.rooms.BreakoutRooms(ctx, parent.Token)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := o.registry.SetLobby(ctx, child, domain.LobbyNone); err != nil {
			return err
		}
	}
	return o.registry.SetBreakoutStatus(ctx, parent, domain.BreakoutStatusStarted)
}

// Stop lobbies the children again, clears any pending assistance
// requests and moves the parent status back to stopped.
func (o *BreakoutRoomOrchestrator) Stop(ctx context.Context, parent *domain.Room) error {
	if parent.BreakoutRoomMode == domain.BreakoutModeNotConfigured {
		return core.NewValidationError("mode", "breakout rooms are not configured")
	}
	children, err := o.rooms.BreakoutRooms(ctx, parent.Token)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.BreakoutRoomStatus == domain.BreakoutStatusAssistanceRequested {
			if err := o.registry.SetBreakoutStatus(ctx, child, domain.BreakoutStatusAssistanceReset); err != nil {
				return err
			}
		}
		if err := o.registry.SetLobby(ctx, child, domain.LobbyNonModerators); err != nil {
			return err
		}
	}
	return o.registry.SetBreakoutStatus(ctx, parent, domain.BreakoutStatusStopped)
}

// Remove deletes all breakout rooms and unconfigures the parent.
func (o *BreakoutRoomOrchestrator) Remove(ctx context.Context, parent *domain.Room) error {
	if err := o.deleteBreakoutRooms(ctx, parent); err != nil {
		return err
	}
	if err := o.registry.SetBreakoutStatus(ctx, parent, domain.BreakoutStatusStopped); err != nil {
		return err
	}
	return o.registry.SetBreakoutMode(ctx, parent, domain.BreakoutModeNotConfigured)
}

func (o *BreakoutRoomOrchestrator) deleteBreakoutRooms(ctx context.Context, parent *domain.Room) error {
	children, err := o.rooms.BreakoutRooms(ctx, parent.Token)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := o.registry.DeleteRoom(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// RequestAssistance flags a running breakout room so the moderators see
// a raised hand on the parent. A room still behind its lobby has no
// session going on, so there is nothing to assist with.
func (o *BreakoutRoomOrchestrator) RequestAssistance(ctx context.Context, breakoutRoom *domain.Room) error {
	if !breakoutRoom.IsBreakoutRoom() {
		return core.NewValidationError("room", "not a breakout room")
	}
	if breakoutRoom.LobbyState != domain.LobbyNone {
		return core.NewValidationError("room", "breakout room is not running")
	}
	return o.registry.SetBreakoutStatus(ctx, breakoutRoom, domain.BreakoutStatusAssistanceRequested)
}

// ResetRequestForAssistance withdraws a pending assistance request.
func (o *BreakoutRoomOrchestrator) ResetRequestForAssistance(ctx context.Context, breakoutRoom *domain.Room) error {
	if !breakoutRoom.IsBreakoutRoom() {
		return core.NewValidationError("room", "not a breakout room")
	}
	if breakoutRoom.LobbyState != domain.LobbyNone {
		return core.NewValidationError("room", "breakout room is not running")
	}
	if breakoutRoom.BreakoutRoomStatus != domain.BreakoutStatusAssistanceRequested {
		return core.NewValidationError("room", "no assistance was requested")
	}
	return o.registry.SetBreakoutStatus(ctx, breakoutRoom, domain.BreakoutStatusAssistanceReset)
}

// GetBreakoutRooms lists the breakout rooms visible to a participant:
// moderators see all of them, everyone else only the rooms they are a
// member of.
func (o *BreakoutRoomOrchestrator) GetBreakoutRooms(ctx context.Context, parent *domain.Room, participant *domain.Participant) ([]*domain.Room, error) {
	if parent.BreakoutRoomMode == domain.BreakoutModeNotConfigured {
		return nil, core.NewValidationError("mode", "breakout rooms are not configured")
	}
	children, err := o.rooms.BreakoutRooms(ctx, parent.Token)
	if err != nil {
		return nil, err
	}
	if participant.HasModeratorPermissions() {
		return children, nil
	}

	attendee := participant.Attendee
	visible := make([]*domain.Room, 0, 1)
	for _, child := range children {
		_, err := o.attendees.ByActor(ctx, child.ID, attendee.ActorType, attendee.ActorID)
		if err == core.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		visible = append(visible, child)
	}
	return visible, nil
}

// RemoveAttendeeFromBreakoutRoom drops an actor from whichever breakout
// room currently holds them.
func (o *BreakoutRoomOrchestrator) RemoveAttendeeFromBreakoutRoom(ctx context.Context, parent *domain.Room, actorType domain.ActorType, actorID string) error {
	children, err := o.rooms.BreakoutRooms(ctx, parent.Token)
	if err != nil {
		return err
	}
	for _, child := range children {
		attendee, err := o.attendees.ByActor(ctx, child.ID, actorType, actorID)
		if err == core.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if err := o.coordinator.RemoveAttendee(ctx, child, domain.NewParticipant(child, attendee, nil), domain.ReasonRemoved); err != nil {
			return err
		}
	}
	return nil
}

// SwitchBreakoutRoom moves a non-moderator participant to another
// breakout room in free mode. Membership in the old room and the new
// one changes in a single pass over the children; moderators cannot
// switch since they are in every room already.
func (o *BreakoutRoomOrchestrator) SwitchBreakoutRoom(ctx context.Context, parent *domain.Room, participant *domain.Participant, target domain.RoomToken) (*domain.Room, error) {
	if parent.BreakoutRoomMode != domain.BreakoutModeFree {
		return nil, core.NewValidationError("mode", "switching requires free mode")
	}
	if parent.BreakoutRoomStatus != domain.BreakoutStatusStarted {
		return nil, core.NewValidationError("status", "breakout rooms are not started")
	}
	if participant.HasModeratorPermissions() {
		return nil, core.NewValidationError("moderator", "moderators are in all breakout rooms")
	}

	children, err := o.rooms.BreakoutRooms(ctx, parent.Token)
	if err != nil {
		return nil, err
	}

	var targetRoom *domain.Room
	for _, child := range children {
		if child.Token == target {
			targetRoom = child
			break
		}
	}
	if targetRoom == nil {
		return nil, core.NewValidationError("target", "target is not a breakout room of this conversation")
	}

	attendee := participant.Attendee
	for _, child := range children {
		member, err := o.attendees.ByActor(ctx, child.ID, attendee.ActorType, attendee.ActorID)
		switch {
		case child.ID == targetRoom.ID:
			if err == core.ErrNotFound {
				if err := o.addToChild(ctx, targetRoom, attendee); err != nil {
					return nil, err
				}
			} else if err != nil {
				return nil, err
			}
		case err == nil:
			if err := o.coordinator.RemoveAttendee(ctx, child, domain.NewParticipant(child, member, nil), domain.ReasonLeft); err != nil {
				return nil, err
			}
		case err != core.ErrNotFound:
			return nil, err
		}
	}
	return targetRoom, nil
}

// BroadcastChatMessage sends a moderator's message into every breakout
// room. Notifications are deferred so the fan-out produces one batch
// instead of a burst per room.
func (o *BreakoutRoomOrchestrator) BroadcastChatMessage(ctx context.Context, parent *domain.Room, participant *domain.Participant, message string) error {
	if parent.BreakoutRoomMode == domain.BreakoutModeNotConfigured {
		return core.NewValidationError("mode", "breakout rooms are not configured")
	}
	if !participant.HasModeratorPermissions() {
		return core.ErrUnauthorized
	}
	if o.chat == nil {
		return core.NewValidationError("chat", "no chat messenger configured")
	}

	children, err := o.rooms.BreakoutRooms(ctx, parent.Token)
	if err != nil {
		return err
	}

	if o.notifier != nil && o.notifier.Defer() {
		defer o.notifier.Flush()
	}
	for _, child := range children {
		if err := o.chat.SendMessage(ctx, child, participant, message); err != nil {
			return err
		}
	}
	return nil
}
