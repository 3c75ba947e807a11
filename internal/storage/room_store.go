package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type RoomStore struct {
	db *gorm.DB
}

func NewRoomStore(db *gorm.DB) *RoomStore {
	return &RoomStore{db: db}
}

var _ core.RoomStore = (*RoomStore)(nil)

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(room)
	if res.Error != nil {
		return res.Error
	}
	// Room creation must own the row; a swallowed token collision here
	// would hand two callers the same conversation.
	if res.RowsAffected == 0 {
		return core.ErrDuplicate
	}
	return nil
}

func (s *RoomStore) ByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var room domain.Room
	err := s.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *RoomStore) ByToken(ctx context.Context, token domain.RoomToken) (*domain.Room, error) {
	var room domain.Room
	err := s.db.WithContext(ctx).First(&room, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *RoomStore) BreakoutRooms(ctx context.Context, parent domain.RoomToken) ([]*domain.Room, error) {
	var rooms []*domain.Room
	err := s.db.WithContext(ctx).
		Where("object_type = ? AND object_id = ?", domain.ObjectTypeBreakoutRoom, string(parent)).
		Order("id").
		Find(&rooms).Error
	return rooms, err
}

func (s *RoomStore) Delete(ctx context.Context, id domain.RoomID) error {
	// Membership and sessions go with the room; one transaction so a
	// failed teardown leaves no half-deleted conversation.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attendeeIDs []domain.AttendeeID
		if err := tx.Model(&domain.Attendee{}).Where("room_id = ?", id).Pluck("id", &attendeeIDs).Error; err != nil {
			return err
		}
		if len(attendeeIDs) > 0 {
			if err := tx.Where("attendee_id IN ?", attendeeIDs).Delete(&domain.Session{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("room_id = ?", id).Delete(&domain.Attendee{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Room{}, "id = ?", id).Error
	})
}

// StartCall is the call-start CAS: the WHERE on active_since IS NULL is
// the whole concurrency control, no transaction needed.
func (s *RoomStore) StartCall(ctx context.Context, id domain.RoomID, since time.Time, flag domain.CallFlag) (bool, error) {
	res := s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND active_since IS NULL", id).
		Updates(map[string]any{
			"active_since": since,
			"call_flag":    int(flag),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *RoomStore) MergeCallFlag(ctx context.Context, id domain.RoomID, flag domain.CallFlag) error {
	return s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND active_since IS NOT NULL", id).
		UpdateColumn("call_flag", gorm.Expr("call_flag | ?", int(flag))).Error
}

// EndCall is the call-end CAS, the mirror of StartCall.
func (s *RoomStore) EndCall(ctx context.Context, id domain.RoomID) (bool, error) {
	res := s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND active_since IS NOT NULL", id).
		Updates(map[string]any{
			"active_since": nil,
			"call_flag":    int(domain.CallFlagDisconnected),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *RoomStore) SetBreakoutMode(ctx context.Context, id domain.RoomID, mode int) error {
	return s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		UpdateColumn("breakout_room_mode", mode).Error
}

func (s *RoomStore) SetBreakoutStatus(ctx context.Context, id domain.RoomID, status int) error {
	return s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		UpdateColumn("breakout_room_status", status).Error
}

func (s *RoomStore) SetLobbyState(ctx context.Context, id domain.RoomID, state int) error {
	return s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		UpdateColumn("lobby_state", state).Error
}

func (s *RoomStore) SetPassword(ctx context.Context, id domain.RoomID, hash string) error {
	return s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash).Error
}

func (s *RoomStore) SetLastMessage(ctx context.Context, id domain.RoomID, messageID int64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_id": messageID,
			"last_activity":   at,
		}).Error
}
