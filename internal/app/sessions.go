package app

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SessionTracker manages the ephemeral per-device session records:
// id generation, ping bookkeeping and the stale-guest sweep.
type SessionTracker struct {
	sessions  core.SessionStore
	attendees core.AttendeeStore
	calls     *CallStateController
	bus       core.EventBus

	// GuestKillTimeout is how long a guest session may go without a ping
	// before the sweep collects it.
	guestKillTimeout time.Duration
	now              func() time.Time
}

func NewSessionTracker(sessions core.SessionStore, attendees core.AttendeeStore, calls *CallStateController, bus core.EventBus, guestKillTimeout time.Duration) *SessionTracker {
	return &SessionTracker{
		sessions:         sessions,
		attendees:        attendees,
		calls:            calls,
		bus:              bus,
		guestKillTimeout: guestKillTimeout,
		now:              time.Now,
	}
}

// CreateSessionForAttendee creates a new device session. Without a forced
// id it generates a random one and retries on collision; the loop has no
// upper bound, collisions are cryptographically implausible but the retry
// exists anyway. Federated attendees get their cloud id appended so the
// session stays traceable to its origin server without a join.
func (t *SessionTracker) CreateSessionForAttendee(ctx context.Context, attendee *domain.Attendee, forceSessionID string) (*domain.Session, error) {
	for {
		sessionID := forceSessionID
		if sessionID == "" {
			sessionID = randomString(domain.SessionIDLength)
		}
		if attendee.IsFederated() {
			sessionID = domain.FederatedSessionID(sessionID, attendee.ActorID)
		}

		session := &domain.Session{
			SessionID:  sessionID,
			AttendeeID: attendee.ID,
			InCall:     domain.CallFlagDisconnected,
			LastPing:   t.now(),
			State:      domain.SessionStateActive,
		}
		err := t.sessions.Create(ctx, session)
		if errors.Is(err, core.ErrDuplicate) {
			if forceSessionID != "" {
				// A forced id is the caller's to own; do not spin.
				return nil, core.ErrDuplicate
			}
			log.Warn().Str("module", "app.sessions").Msg("session id collision, regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func (t *SessionTracker) UpdateLastPing(ctx context.Context, session *domain.Session) error {
	at := t.now()
	if err := t.sessions.UpdateLastPing(ctx, session.ID, at); err != nil {
		return err
	}
	session.LastPing = at
	return nil
}

func (t *SessionTracker) UpdateSessionState(ctx context.Context, session *domain.Session, state int) error {
	if state != domain.SessionStateActive && state != domain.SessionStateInactive {
		return core.NewValidationError("state", "unknown session state")
	}
	if err := t.sessions.UpdateState(ctx, session.ID, state); err != nil {
		return err
	}
	session.State = state
	return nil
}

// CleanGuestParticipants is the two-phase guest sweep: first drop guest
// sessions whose ping went stale, then drop guest attendees that now have
// no session, no display name and no custom permissions. Guests with a
// name or adjusted permissions are kept so they are recognized when they
// reconnect. Re-evaluates call end afterwards.
func (t *SessionTracker) CleanGuestParticipants(ctx context.Context, room *domain.Room) error {
	before := &core.BeforeGuestsCleanedEvent{Room: room}
	if err := t.bus.Publish(ctx, before); err != nil {
		return err
	}

	deadline := t.now().Add(-t.guestKillTimeout)
	staleIDs, err := t.sessions.StaleGuestSessions(ctx, room.ID, deadline)
	if err != nil {
		return err
	}
	if err := t.sessions.DeleteByIDs(ctx, staleIDs); err != nil {
		return err
	}

	orphaned, err := t.attendees.GuestsWithoutSessions(ctx, room.ID)
	if err != nil {
		return err
	}
	var removable []domain.AttendeeID
	for _, guest := range orphaned {
		if guest.DisplayName == "" && !guest.Permissions.IsCustom() {
			removable = append(removable, guest.ID)
		}
	}
	if err := t.attendees.DeleteByIDs(ctx, removable); err != nil {
		return err
	}

	_ = t.bus.Publish(ctx, &core.GuestsCleanedEvent{
		Room:             room,
		SessionsRemoved:  len(staleIDs),
		AttendeesRemoved: len(removable),
	})

	if len(staleIDs) > 0 {
		log.Info().Str("module", "app.sessions").Str("room", string(room.Token)).
			Int("sessions", len(staleIDs)).Int("attendees", len(removable)).
			Msg("swept stale guests")
	}

	_, err = t.calls.ResetActiveSince(ctx, room)
	return err
}

// randomString draws from crypto/rand; session ids double as bearer
// capabilities so math/rand is not enough here.
func randomString(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(sessionIDAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform RNG is broken;
			// there is nothing sensible to degrade to.
			panic(err)
		}
		out[i] = sessionIDAlphabet[idx.Int64()]
	}
	return string(out)
}
