package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// RoomRegistry owns the room aggregate: creation, lookup and the
// invariant-preserving metadata mutators. Call-state transitions live in
// CallStateController, membership in ParticipantCoordinator.
type RoomRegistry struct {
	rooms core.RoomStore
	now   func() time.Time
}

func NewRoomRegistry(rooms core.RoomStore) *RoomRegistry {
	return &RoomRegistry{rooms: rooms, now: time.Now}
}

func validRoomType(roomType int) bool {
	switch roomType {
	case domain.RoomTypeOneToOne, domain.RoomTypeGroup, domain.RoomTypePublic,
		domain.RoomTypeChangelog, domain.RoomTypeOneToOneFormer, domain.RoomTypeNoteToSelf:
		return true
	}
	return false
}

// CreateConversation inserts a new room with a fresh token. The strict
// create matters: a token collision must not silently reuse an existing
// conversation, so it is retried with a new token instead.
func (r *RoomRegistry) CreateConversation(ctx context.Context, roomType int, name, objectType, objectID string) (*domain.Room, error) {
	if !validRoomType(roomType) {
		return nil, core.NewValidationError("type", "unknown room type")
	}

	for {
		room := &domain.Room{
			Token:        domain.RoomToken(strings.ReplaceAll(uuid.NewString(), "-", "")),
			Name:         name,
			Type:         roomType,
			ObjectType:   objectType,
			ObjectID:     objectID,
			LastActivity: r.now(),
		}
		err := r.rooms.Create(ctx, room)
		if errors.Is(err, core.ErrDuplicate) {
			log.Warn().Str("module", "app.registry").Str("token", string(room.Token)).
				Msg("room token collision, regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "app.registry").Str("token", string(room.Token)).
			Int("type", roomType).Msg("created conversation")
		return room, nil
	}
}

func (r *RoomRegistry) RoomByToken(ctx context.Context, token domain.RoomToken) (*domain.Room, error) {
	return r.rooms.ByToken(ctx, token)
}

// SetPassword stores a bcrypt hash; empty password clears protection.
func (r *RoomRegistry) SetPassword(ctx context.Context, room *domain.Room, password string) error {
	hash := ""
	if password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash = string(raw)
	}
	if err := r.rooms.SetPassword(ctx, room.ID, hash); err != nil {
		return err
	}
	room.PasswordHash = hash
	return nil
}

// VerifyPassword reports whether password grants entry. Rooms without a
// password accept anything.
func (r *RoomRegistry) VerifyPassword(room *domain.Room, password string) bool {
	if !room.HasPassword() {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)) == nil
}

func (r *RoomRegistry) SetLobby(ctx context.Context, room *domain.Room, state int) error {
	if state != domain.LobbyNone && state != domain.LobbyNonModerators {
		return core.NewValidationError("state", "unknown lobby state")
	}
	if err := r.rooms.SetLobbyState(ctx, room.ID, state); err != nil {
		return err
	}
	room.LobbyState = state
	return nil
}

func (r *RoomRegistry) SetBreakoutMode(ctx context.Context, room *domain.Room, mode int) error {
	if mode < domain.BreakoutModeNotConfigured || mode > domain.BreakoutModeFree {
		return core.NewValidationError("mode", "unknown breakout mode")
	}
	if err := r.rooms.SetBreakoutMode(ctx, room.ID, mode); err != nil {
		return err
	}
	room.BreakoutRoomMode = mode
	return nil
}

func (r *RoomRegistry) SetBreakoutStatus(ctx context.Context, room *domain.Room, status int) error {
	if status < domain.BreakoutStatusStopped || status > domain.BreakoutStatusAssistanceReset {
		return core.NewValidationError("status", "unknown breakout status")
	}
	if err := r.rooms.SetBreakoutStatus(ctx, room.ID, status); err != nil {
		return err
	}
	room.BreakoutRoomStatus = status
	return nil
}

func (r *RoomRegistry) DeleteRoom(ctx context.Context, room *domain.Room) error {
	if err := r.rooms.Delete(ctx, room.ID); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("token", string(room.Token)).Msg("deleted room")
	return nil
}

// SetLastMessage records the newest chat message id and bumps activity.
func (r *RoomRegistry) SetLastMessage(ctx context.Context, room *domain.Room, messageID int64) error {
	at := r.now()
	if err := r.rooms.SetLastMessage(ctx, room.ID, messageID, at); err != nil {
		return err
	}
	room.LastMessageID = messageID
	room.LastActivity = at
	return nil
}
