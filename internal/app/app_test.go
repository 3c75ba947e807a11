package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/storage"
)

// testEnv wires the full service stack on an in-memory database.
type testEnv struct {
	rooms     core.RoomStore
	attendees core.AttendeeStore
	sessions  core.SessionStore

	bus         *Bus
	registry    *RoomRegistry
	calls       *CallStateController
	tracker     *SessionTracker
	coordinator *ParticipantCoordinator

	bridge *fakeBridge
	groups *fakeGroups
	bans   *fakeBans
	sweeps *fakeSweeps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	env := &testEnv{
		rooms:     storage.NewRoomStore(db),
		attendees: storage.NewAttendeeStore(db),
		sessions:  storage.NewSessionStore(db),
		bus:       NewBus(),
		bridge:    &fakeBridge{},
		groups:    &fakeGroups{members: map[string][]core.UserInfo{}},
		bans:      &fakeBans{banned: map[string]struct{}{}},
		sweeps:    &fakeSweeps{},
	}
	env.registry = NewRoomRegistry(env.rooms)
	env.calls = NewCallStateController(env.rooms, env.sessions, env.bus)
	env.tracker = NewSessionTracker(env.sessions, env.attendees, env.calls, env.bus, 100*time.Second)
	env.coordinator = NewParticipantCoordinator(CoordinatorDeps{
		Attendees:  env.attendees,
		Sessions:   env.sessions,
		Tracker:    env.tracker,
		Registry:   env.registry,
		Calls:      env.calls,
		Bus:        env.bus,
		Bridge:     env.bridge,
		Groups:     env.groups,
		Membership: &fakeMembership{},
		Bans:       env.bans,
		Sweeps:     env.sweeps,
	})
	return env
}

func (e *testEnv) createRoom(t *testing.T, roomType int) *domain.Room {
	t.Helper()
	room, err := e.registry.CreateConversation(context.Background(), roomType, "test room", "", "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return room
}

func (e *testEnv) addUser(t *testing.T, room *domain.Room, userID string, participantType int) *domain.Attendee {
	t.Helper()
	attendee, err := domain.NewAttendee(room.ID, domain.ActorUsers, userID)
	if err != nil {
		t.Fatalf("new attendee: %v", err)
	}
	attendee.ParticipantType = participantType
	if err := e.attendees.Create(context.Background(), attendee); err != nil {
		t.Fatalf("create attendee %s: %v", userID, err)
	}
	return attendee
}

func (e *testEnv) joinedParticipant(t *testing.T, room *domain.Room, userID string, participantType int) *domain.Participant {
	t.Helper()
	attendee := e.addUser(t, room, userID, participantType)
	session, err := e.tracker.CreateSessionForAttendee(context.Background(), attendee, "")
	if err != nil {
		t.Fatalf("create session for %s: %v", userID, err)
	}
	return domain.NewParticipant(room, attendee, session)
}

// countEvents subscribes a counter for an event name.
func (e *testEnv) countEvents(name string) *int {
	var n int
	e.bus.Subscribe(name, func(ctx context.Context, ev core.Event) error {
		n++
		return nil
	})
	return &n
}

type fakeBridge struct {
	mu          sync.Mutex
	addCalls    []core.RemoteAddRequest
	removeCalls []core.RemoteRemoveRequest
	failAdd     bool
	info        *core.RemoteInfo
}

func (b *fakeBridge) NotifyRemoteAdd(ctx context.Context, req core.RemoteAddRequest) (*core.RemoteInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addCalls = append(b.addCalls, req)
	if b.failAdd {
		return nil, errors.New("remote unreachable")
	}
	return b.info, nil
}

func (b *fakeBridge) NotifyRemoteRemove(ctx context.Context, req core.RemoteRemoveRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeCalls = append(b.removeCalls, req)
	return nil
}

type fakeGroups struct {
	members map[string][]core.UserInfo
}

func (g *fakeGroups) MembersOf(ctx context.Context, actorType domain.ActorType, groupID string) ([]core.UserInfo, error) {
	return g.members[groupID], nil
}

// fakeMembership reports every listed user as having no other path of
// membership, so cascades always apply.
type fakeMembership struct{}

func (fakeMembership) UsersWithoutOtherMembership(ctx context.Context, room *domain.Room, userIDs []string) ([]string, error) {
	return userIDs, nil
}

type fakeSweeps struct {
	mu     sync.Mutex
	tokens []domain.RoomToken
}

func (s *fakeSweeps) ScheduleGuestSweep(ctx context.Context, token domain.RoomToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *fakeSweeps) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

type fakeBans struct {
	banned map[string]struct{}
}

func (b *fakeBans) BannedActorIDs(ctx context.Context, roomID domain.RoomID) (map[string]struct{}, error) {
	return b.banned, nil
}
