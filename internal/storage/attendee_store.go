package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type AttendeeStore struct {
	db *gorm.DB
}

func NewAttendeeStore(db *gorm.DB) *AttendeeStore {
	return &AttendeeStore{db: db}
}

var _ core.AttendeeStore = (*AttendeeStore)(nil)

// Create must own the row: a duplicate actor is reported, not swallowed.
func (s *AttendeeStore) Create(ctx context.Context, attendee *domain.Attendee) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(attendee)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrDuplicate
	}
	return nil
}

// CreateIfAbsent is the idempotent add primitive: a duplicate is success
// with created=false, never an error.
func (s *AttendeeStore) CreateIfAbsent(ctx context.Context, attendee *domain.Attendee) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(attendee)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *AttendeeStore) ByID(ctx context.Context, id domain.AttendeeID) (*domain.Attendee, error) {
	var attendee domain.Attendee
	err := s.db.WithContext(ctx).First(&attendee, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attendee, nil
}

func (s *AttendeeStore) ByActor(ctx context.Context, roomID domain.RoomID, actorType domain.ActorType, actorID string) (*domain.Attendee, error) {
	var attendee domain.Attendee
	err := s.db.WithContext(ctx).
		First(&attendee, "room_id = ? AND actor_type = ? AND actor_id = ?", roomID, actorType, actorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attendee, nil
}

func (s *AttendeeStore) ForRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Attendee, error) {
	var attendees []*domain.Attendee
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id").Find(&attendees).Error
	return attendees, err
}

func (s *AttendeeStore) ForRoomByActorType(ctx context.Context, roomID domain.RoomID, actorType domain.ActorType) ([]*domain.Attendee, error) {
	var attendees []*domain.Attendee
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND actor_type = ?", roomID, actorType).
		Order("id").
		Find(&attendees).Error
	return attendees, err
}

func (s *AttendeeStore) Update(ctx context.Context, attendee *domain.Attendee) error {
	return s.db.WithContext(ctx).Save(attendee).Error
}

func (s *AttendeeStore) Delete(ctx context.Context, id domain.AttendeeID) error {
	return s.db.WithContext(ctx).Delete(&domain.Attendee{}, "id = ?", id).Error
}

func (s *AttendeeStore) DeleteByIDs(ctx context.Context, ids []domain.AttendeeID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&domain.Attendee{}, "id IN ?", ids).Error
}

func (s *AttendeeStore) GuestsWithoutSessions(ctx context.Context, roomID domain.RoomID) ([]*domain.Attendee, error) {
	var attendees []*domain.Attendee
	err := s.db.WithContext(ctx).
		Select("attendees.*").
		Joins("LEFT JOIN sessions ON sessions.attendee_id = attendees.id").
		Where("attendees.room_id = ? AND attendees.actor_type = ? AND sessions.id IS NULL",
			roomID, domain.ActorGuests).
		Find(&attendees).Error
	return attendees, err
}

func (s *AttendeeStore) CountByParticipantTypes(ctx context.Context, roomID domain.RoomID, types []int) (int64, error) {
	q := s.db.WithContext(ctx).Model(&domain.Attendee{}).Where("room_id = ?", roomID)
	if len(types) > 0 {
		q = q.Where("participant_type IN ?", types)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (s *AttendeeStore) MarkMentioned(ctx context.Context, roomID domain.RoomID, actorIDs []string, messageID int64) error {
	if len(actorIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&domain.Attendee{}).
		Where("room_id = ? AND actor_type = ? AND actor_id IN ?", roomID, domain.ActorUsers, actorIDs).
		UpdateColumn("last_mention_message", messageID).Error
}

func (s *AttendeeStore) LastCommonRead(ctx context.Context, roomID domain.RoomID) (int64, error) {
	var lastCommon *int64
	err := s.db.WithContext(ctx).Model(&domain.Attendee{}).
		Select("MIN(last_read_message)").
		Where("room_id = ? AND actor_type = ? AND read_privacy = ?",
			roomID, domain.ActorUsers, domain.ReadPrivacyPublic).
		Scan(&lastCommon).Error
	if err != nil || lastCommon == nil {
		return 0, err
	}
	return *lastCommon, nil
}
