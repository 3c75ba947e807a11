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

type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

var _ core.SessionStore = (*SessionStore)(nil)

// Create reports a session-id collision as ErrDuplicate so the tracker
// can retry with a fresh id.
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(session)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrDuplicate
	}
	return nil
}

func (s *SessionStore) BySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.WithContext(ctx).First(&session, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionStore) ByAttendee(ctx context.Context, attendeeID domain.AttendeeID) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := s.db.WithContext(ctx).Where("attendee_id = ?", attendeeID).Order("id").Find(&sessions).Error
	return sessions, err
}

func (s *SessionStore) UpdateInCall(ctx context.Context, id domain.SessionDBID, flag domain.CallFlag) error {
	return s.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		UpdateColumn("in_call", int(flag)).Error
}

func (s *SessionStore) UpdateLastPing(ctx context.Context, id domain.SessionDBID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		UpdateColumn("last_ping", at).Error
}

func (s *SessionStore) UpdateState(ctx context.Context, id domain.SessionDBID, state int) error {
	return s.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		UpdateColumn("state", state).Error
}

func (s *SessionStore) Delete(ctx context.Context, id domain.SessionDBID) error {
	return s.db.WithContext(ctx).Delete(&domain.Session{}, "id = ?", id).Error
}

func (s *SessionStore) DeleteByAttendee(ctx context.Context, attendeeID domain.AttendeeID) error {
	return s.db.WithContext(ctx).Delete(&domain.Session{}, "attendee_id = ?", attendeeID).Error
}

func (s *SessionStore) DeleteByIDs(ctx context.Context, ids []domain.SessionDBID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&domain.Session{}, "id IN ?", ids).Error
}

func (s *SessionStore) InCallForRoom(ctx context.Context, roomID domain.RoomID) ([]core.SessionRow, error) {
	var sessions []*domain.Session
	err := s.db.WithContext(ctx).
		Select("sessions.*").
		Joins("JOIN attendees ON attendees.id = sessions.attendee_id").
		Where("attendees.room_id = ? AND sessions.in_call != ?", roomID, int(domain.CallFlagDisconnected)).
		Order("sessions.id").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	rows := make([]core.SessionRow, 0, len(sessions))
	for _, session := range sessions {
		var attendee domain.Attendee
		if err := s.db.WithContext(ctx).First(&attendee, "id = ?", session.AttendeeID).Error; err != nil {
			return nil, err
		}
		rows = append(rows, core.SessionRow{Session: session, Attendee: &attendee})
	}
	return rows, nil
}

// DisconnectAllInCall is one bulk UPDATE instead of N per-session writes,
// so a room-wide hang-up does not race itself.
func (s *SessionStore) DisconnectAllInCall(ctx context.Context, roomID domain.RoomID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&domain.Session{}).
		Where("attendee_id IN (?)",
			s.db.Model(&domain.Attendee{}).Select("id").Where("room_id = ?", roomID)).
		Where("in_call != ?", int(domain.CallFlagDisconnected)).
		UpdateColumn("in_call", int(domain.CallFlagDisconnected))
	return res.RowsAffected, res.Error
}

func (s *SessionStore) HasActiveSessions(ctx context.Context, roomID domain.RoomID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Session{}).
		Joins("JOIN attendees ON attendees.id = sessions.attendee_id").
		Where("attendees.room_id = ?", roomID).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// HasActiveSessionsInCall is always a live query; call-end decisions are
// never made from a cached counter.
func (s *SessionStore) HasActiveSessionsInCall(ctx context.Context, roomID domain.RoomID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Session{}).
		Joins("JOIN attendees ON attendees.id = sessions.attendee_id").
		Where("attendees.room_id = ? AND sessions.in_call != ?", roomID, int(domain.CallFlagDisconnected)).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (s *SessionStore) StaleGuestSessions(ctx context.Context, roomID domain.RoomID, deadline time.Time) ([]domain.SessionDBID, error) {
	var ids []domain.SessionDBID
	err := s.db.WithContext(ctx).Model(&domain.Session{}).
		Joins("JOIN attendees ON attendees.id = sessions.attendee_id").
		Where("attendees.room_id = ? AND attendees.actor_type = ? AND sessions.last_ping <= ?",
			roomID, domain.ActorGuests, deadline).
		Pluck("sessions.id", &ids).Error
	return ids, err
}
