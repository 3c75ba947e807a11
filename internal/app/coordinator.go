package app

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const federationTokenLength = 64

// ParticipantCoordinator orchestrates join/leave/permission/call
// operations by composing the attendee and session stores, the session
// tracker and the call-state controller. Every collaborator arrives
// through the constructor; there is no service locator.
type ParticipantCoordinator struct {
	attendees core.AttendeeStore
	sessions  core.SessionStore
	tracker   *SessionTracker
	registry  *RoomRegistry
	calls     *CallStateController
	bus       core.EventBus

	bridge     core.FederationBridge
	groups     core.GroupResolver
	membership core.MembershipResolver
	bans       core.BanService
	privacy    core.ReadPrivacyProvider
	cache      core.Cache
	sweeps     core.GuestSweepScheduler

	now func() time.Time
}

// CoordinatorDeps keeps the constructor readable; required fields are
// the stores, tracker, registry, call controller and bus. Bridge, group
// resolvers, ban service, privacy provider and cache may be nil and
// degrade to safe defaults.
type CoordinatorDeps struct {
	Attendees core.AttendeeStore
	Sessions  core.SessionStore
	Tracker   *SessionTracker
	Registry  *RoomRegistry
	Calls     *CallStateController
	Bus       core.EventBus

	Bridge     core.FederationBridge
	Groups     core.GroupResolver
	Membership core.MembershipResolver
	Bans       core.BanService
	Privacy    core.ReadPrivacyProvider
	Cache      core.Cache
	Sweeps     core.GuestSweepScheduler
}

func NewParticipantCoordinator(deps CoordinatorDeps) *ParticipantCoordinator {
	return &ParticipantCoordinator{
		attendees:  deps.Attendees,
		sessions:   deps.Sessions,
		tracker:    deps.Tracker,
		registry:   deps.Registry,
		calls:      deps.Calls,
		bus:        deps.Bus,
		bridge:     deps.Bridge,
		groups:     deps.Groups,
		membership: deps.Membership,
		bans:       deps.Bans,
		privacy:    deps.Privacy,
		cache:      deps.Cache,
		sweeps:     deps.Sweeps,
		now:        time.Now,
	}
}

// JoinRoom connects a user to a room: verifies access, creates the
// attendee row if missing and always creates a fresh device session.
// Attendee creation is idempotent under concurrent joins through the
// insert-or-ignore primitive.
func (c *ParticipantCoordinator) JoinRoom(ctx context.Context, room *domain.Room, userID, displayName, password string, passedPasswordProtection bool) (*domain.Participant, error) {
	before := &core.BeforeJoinEvent{
		Room:                     room,
		ActorID:                  userID,
		PassedPasswordProtection: passedPasswordProtection,
	}
	if err := c.bus.Publish(ctx, before); err != nil {
		// A vetoed join (ban list and the like) also drops any stale
		// membership the actor may still hold.
		if rmErr := c.RemoveUser(ctx, room, userID, domain.ReasonLeft); rmErr != nil {
			log.Warn().Str("module", "app.coordinator").Err(rmErr).Msg("stale attendee cleanup after vetoed join failed")
		}
		return nil, fmt.Errorf("join vetoed: %w", core.ErrUnauthorized)
	}

	attendee, err := c.attendees.ByActor(ctx, room.ID, domain.ActorUsers, userID)
	if err == core.ErrNotFound {
		listable := room.Listable &&
			(room.Type == domain.RoomTypeGroup || room.Type == domain.RoomTypePublic)

		if !before.PassedPasswordProtection && !listable && !c.registry.VerifyPassword(room, password) {
			return nil, core.ErrInvalidPassword
		}

		var participantType int
		switch {
		case listable:
			participantType = domain.ParticipantUser
		case room.Type == domain.RoomTypePublic:
			// Anonymous join of a public room: membership lives only as
			// long as the sessions do.
			participantType = domain.ParticipantUserSelfJoined
		default:
			return nil, core.ErrUnauthorized
		}

		if _, err := c.AddUsers(ctx, room, []core.AttendeeEntry{{
			ActorType:       domain.ActorUsers,
			ActorID:         userID,
			DisplayName:     displayName,
			ParticipantType: participantType,
		}}, ""); err != nil {
			return nil, err
		}

		attendee, err = c.attendees.ByActor(ctx, room.ID, domain.ActorUsers, userID)
		if err != nil {
			return nil, core.ErrUnauthorized
		}
	} else if err != nil {
		return nil, err
	}

	session, err := c.tracker.CreateSessionForAttendee(ctx, attendee, "")
	if err != nil {
		return nil, err
	}

	participant := domain.NewParticipant(room, attendee, session)
	_ = c.bus.Publish(ctx, &core.JoinedEvent{Room: room, Participant: participant})

	log.Info().Str("module", "app.coordinator").Str("room", string(room.Token)).
		Str("actor", userID).Msg("joined room")
	return participant, nil
}

// GuestJoin connects an anonymous guest to a public room. The guest's
// actor id is derived from its first session id so a reconnect with the
// same session cookie maps back to the same attendee.
func (c *ParticipantCoordinator) GuestJoin(ctx context.Context, room *domain.Room, password string, passedPasswordProtection bool) (*domain.Participant, error) {
	if room.Type != domain.RoomTypePublic {
		return nil, core.ErrUnauthorized
	}

	before := &core.BeforeJoinEvent{Room: room, PassedPasswordProtection: passedPasswordProtection}
	if err := c.bus.Publish(ctx, before); err != nil {
		return nil, fmt.Errorf("guest join vetoed: %w", core.ErrUnauthorized)
	}
	if !before.PassedPasswordProtection && !c.registry.VerifyPassword(room, password) {
		return nil, core.ErrInvalidPassword
	}

	attendee, err := domain.NewAttendee(room.ID, domain.ActorGuests, randomString(64))
	if err != nil {
		return nil, err
	}
	attendee.ParticipantType = domain.ParticipantGuest
	attendee.LastReadMessage = room.LastMessageID
	if err := c.attendees.Create(ctx, attendee); err != nil {
		return nil, err
	}

	session, err := c.tracker.CreateSessionForAttendee(ctx, attendee, "")
	if err != nil {
		return nil, err
	}

	// Settle the placeholder actor id now that the session id exists.
	sum := sha1.Sum([]byte(session.SessionID))
	attendee.ActorID = hex.EncodeToString(sum[:])
	if err := c.attendees.Update(ctx, attendee); err != nil {
		return nil, err
	}

	participant := domain.NewParticipant(room, attendee, session)
	_ = c.bus.Publish(ctx, &core.JoinedEvent{Room: room, Participant: participant})
	c.scheduleGuestSweep(ctx, room)
	return participant, nil
}

// LeaveRoomAsSession disconnects one device session, or every session of
// the attendee when the participant carries none. Self-joined attendees
// are deleted with their last session; afterwards the room call state is
// re-evaluated.
func (c *ParticipantCoordinator) LeaveRoomAsSession(ctx context.Context, participant *domain.Participant) error {
	room := participant.Room
	attendee := participant.Attendee

	_ = c.bus.Publish(ctx, &core.BeforeLeaveEvent{Room: room, Participant: participant})

	if session := participant.Session; session != nil {
		if session.IsInCall() {
			change := core.Change[domain.CallFlag]{Old: session.InCall, New: domain.CallFlagDisconnected}
			_ = c.bus.Publish(ctx, &core.BeforeInCallChangedEvent{Room: room, Participant: participant, Flags: change})
			session.InCall = domain.CallFlagDisconnected
			_ = c.bus.Publish(ctx, &core.InCallChangedEvent{Room: room, Participant: participant, Flags: change})
		}
		if err := c.sessions.Delete(ctx, session.ID); err != nil {
			return err
		}
	} else {
		if err := c.sessions.DeleteByAttendee(ctx, attendee.ID); err != nil {
			return err
		}
	}

	if attendee.IsSelfJoined() {
		remaining, err := c.sessions.ByAttendee(ctx, attendee.ID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := c.attendees.Delete(ctx, attendee.ID); err != nil {
				return err
			}
		}
	}

	_ = c.bus.Publish(ctx, &core.LeftEvent{Room: room, Participant: participant})

	if attendee.ActorType == domain.ActorGuests {
		c.scheduleGuestSweep(ctx, room)
	}

	_, err := c.calls.ResetActiveSince(ctx, room)
	return err
}

// scheduleGuestSweep queues the delayed guest cleanup for the room. The
// sweep is best effort; a broker hiccup must not fail the join or leave
// that triggered it.
func (c *ParticipantCoordinator) scheduleGuestSweep(ctx context.Context, room *domain.Room) {
	if c.sweeps == nil {
		return
	}
	if err := c.sweeps.ScheduleGuestSweep(ctx, room.Token); err != nil {
		log.Warn().Str("module", "app.coordinator").Str("room", string(room.Token)).
			Err(err).Msg("guest sweep scheduling failed")
	}
}

// RemoveAttendee deletes a membership with all its sessions. Group and
// circle attendees cascade to their resolved member users, but only to
// those with no other path of membership. Always re-evaluates call end.
func (c *ParticipantCoordinator) RemoveAttendee(ctx context.Context, room *domain.Room, participant *domain.Participant, reason string) error {
	attendee := participant.Attendee

	before := &core.BeforeAttendeeRemovedEvent{Room: room, Attendee: attendee, Reason: reason}
	if err := c.bus.Publish(ctx, before); err != nil {
		return err
	}

	if attendee.ActorType == domain.ActorGroups || attendee.ActorType == domain.ActorCircles {
		if err := c.cascadeRemoveMembers(ctx, room, attendee); err != nil {
			return err
		}
	}

	if attendee.IsFederated() && c.bridge != nil {
		// Best-effort goodbye to the remote server; local removal does
		// not depend on it.
		err := c.bridge.NotifyRemoteRemove(ctx, core.RemoteRemoveRequest{
			AttendeeID:   attendee.ID,
			AccessToken:  attendee.AccessToken,
			RemoteServer: attendee.RemoteServer,
			RoomToken:    room.Token,
		})
		if err != nil {
			log.Warn().Str("module", "app.coordinator").Str("actor", attendee.ActorID).
				Err(err).Msg("remote remove notification failed")
		}
	}

	if err := c.sessions.DeleteByAttendee(ctx, attendee.ID); err != nil {
		return err
	}
	if err := c.attendees.Delete(ctx, attendee.ID); err != nil {
		return err
	}

	c.invalidateRoomCache(ctx, room)
	_ = c.bus.Publish(ctx, &core.AttendeeRemovedEvent{Room: room, Attendee: attendee, Reason: reason})

	log.Info().Str("module", "app.coordinator").Str("room", string(room.Token)).
		Str("actor", attendee.ActorID).Str("reason", reason).Msg("removed attendee")

	_, err := c.calls.ResetActiveSince(ctx, room)
	return err
}

func (c *ParticipantCoordinator) cascadeRemoveMembers(ctx context.Context, room *domain.Room, group *domain.Attendee) error {
	if c.groups == nil {
		return nil
	}
	members, err := c.groups.MembersOf(ctx, group.ActorType, group.ActorID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	// Do not sweep out users who are invited directly or through another
	// group; only those whose sole membership path is this group go.
	sole := ids
	if c.membership != nil {
		sole, err = c.membership.UsersWithoutOtherMembership(ctx, room, ids)
		if err != nil {
			return err
		}
	}

	for _, userID := range sole {
		member, err := c.attendees.ByActor(ctx, room.ID, domain.ActorUsers, userID)
		if err == core.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if err := c.sessions.DeleteByAttendee(ctx, member.ID); err != nil {
			return err
		}
		if err := c.attendees.Delete(ctx, member.ID); err != nil {
			return err
		}
		_ = c.bus.Publish(ctx, &core.AttendeeRemovedEvent{Room: room, Attendee: member, Reason: domain.ReasonRemovedAll})
	}
	return nil
}

// RemoveUser removes a user's membership by actor id; a user who is not
// a member is a no-op.
func (c *ParticipantCoordinator) RemoveUser(ctx context.Context, room *domain.Room, userID, reason string) error {
	attendee, err := c.attendees.ByActor(ctx, room.ID, domain.ActorUsers, userID)
	if err == core.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return c.RemoveAttendee(ctx, room, domain.NewParticipant(room, attendee, nil), reason)
}

// ChangeInCall moves a session's in-call bitmask. Audio and video bits
// the attendee's permissions do not grant are cleared before anything is
// stored. endCallForEveryone switches to the bulk variant.
func (c *ParticipantCoordinator) ChangeInCall(ctx context.Context, participant *domain.Participant, flags domain.CallFlag, endCallForEveryone, silent bool) error {
	room := participant.Room
	if !room.SupportsCalls() {
		return core.NewValidationError("room", "room type does not support calls")
	}

	if endCallForEveryone {
		return c.endCallForEveryone(ctx, participant, silent)
	}

	session := participant.Session
	if session == nil {
		return core.ErrNoSession
	}

	masked := flags.MaskedBy(participant.Permissions())
	change := core.Change[domain.CallFlag]{Old: session.InCall, New: masked}

	before := &core.BeforeInCallChangedEvent{
		Room: room, Participant: participant, Flags: change, Silent: silent,
	}
	if err := c.bus.Publish(ctx, before); err != nil {
		return err
	}

	if err := c.sessions.UpdateInCall(ctx, session.ID, masked); err != nil {
		return err
	}
	session.InCall = masked

	if masked.InCall() {
		at := c.now()
		participant.Attendee.LastJoinedCall = &at
		if err := c.attendees.Update(ctx, participant.Attendee); err != nil {
			return err
		}
		if _, err := c.calls.SetActiveSince(ctx, room, at, masked, silent); err != nil {
			return err
		}
	} else {
		if _, err := c.calls.ResetActiveSince(ctx, room); err != nil {
			return err
		}
	}

	_ = c.bus.Publish(ctx, &core.InCallChangedEvent{
		Room: room, Participant: participant, Flags: change, Silent: silent,
	})
	return nil
}

// endCallForEveryone hangs up every in-call session of the room in one
// bulk update instead of N racing per-session writes, then emits a
// single aggregate event.
func (c *ParticipantCoordinator) endCallForEveryone(ctx context.Context, participant *domain.Participant, silent bool) error {
	room := participant.Room

	oldFlags := domain.CallFlagDisconnected
	if participant.Session != nil {
		oldFlags = participant.Session.InCall
	}
	change := core.Change[domain.CallFlag]{Old: oldFlags, New: domain.CallFlagDisconnected}

	before := &core.BeforeInCallChangedEvent{
		Room: room, Participant: participant, Flags: change,
		Silent: silent, EndForEveryone: true,
	}
	if err := c.bus.Publish(ctx, before); err != nil {
		return err
	}

	rows, err := c.sessions.InCallForRoom(ctx, room.ID)
	if err != nil {
		return err
	}

	if _, err := c.sessions.DisconnectAllInCall(ctx, room.ID); err != nil {
		return err
	}
	if participant.Session != nil {
		participant.Session.InCall = domain.CallFlagDisconnected
	}

	sessionIDs := make([]string, 0, len(rows))
	actorIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		sessionIDs = append(sessionIDs, row.Session.SessionID)
		actorIDs = append(actorIDs, row.Attendee.ActorID)
	}

	_ = c.bus.Publish(ctx, &core.InCallChangedEvent{
		Room: room, Participant: participant, Flags: change,
		Silent: silent, EndForEveryone: true,
	})
	_ = c.bus.Publish(ctx, &core.CallEndedForEveryoneEvent{
		Room: room, SessionIDs: sessionIDs, ActorIDs: actorIDs,
	})

	log.Info().Str("module", "app.coordinator").Str("room", string(room.Token)).
		Int("sessions", len(sessionIDs)).Msg("ended call for everyone")

	_, err = c.calls.ResetActiveSince(ctx, room)
	return err
}

// AddUsers bulk-creates attendee rows. Banned actors are filtered with
// one ban-list fetch, duplicates are swallowed per actor, and federated
// actors are notified synchronously with local rollback on failure.
func (c *ParticipantCoordinator) AddUsers(ctx context.Context, room *domain.Room, entries []core.AttendeeEntry, addedByID string) ([]*domain.Attendee, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	before := &core.BeforeAttendeesAddedEvent{Room: room, Entries: entries}
	if err := c.bus.Publish(ctx, before); err != nil {
		return nil, err
	}

	banned := map[string]struct{}{}
	if c.bans != nil {
		var err error
		banned, err = c.bans.BannedActorIDs(ctx, room.ID)
		if err != nil {
			return nil, err
		}
	}

	lastMessage := room.LastMessageID
	var added []*domain.Attendee

	for _, entry := range entries {
		if _, isBanned := banned[entry.ActorID]; isBanned {
			continue
		}

		attendee, err := domain.NewAttendee(room.ID, entry.ActorType, entry.ActorID)
		if err != nil {
			return nil, core.NewValidationError("actorId", err.Error())
		}
		attendee.DisplayName = entry.DisplayName
		attendee.ParticipantType = entry.ParticipantType
		if attendee.ParticipantType == 0 {
			attendee.ParticipantType = domain.ParticipantUser
		}
		attendee.LastReadMessage = lastMessage
		attendee.ReadPrivacy = c.readPrivacyFor(ctx, entry)

		if entry.ActorType == domain.ActorFederatedUsers {
			attendee.AccessToken = randomString(federationTokenLength)
			attendee.RemoteServer = remoteServerOf(entry.ActorID)
		}

		created, err := c.attendees.CreateIfAbsent(ctx, attendee)
		if err != nil {
			return nil, err
		}
		if !created {
			// Already a member; adds are idempotent per actor.
			continue
		}

		if entry.ActorType == domain.ActorFederatedUsers {
			if err := c.notifyRemoteAdd(ctx, room, attendee, addedByID); err != nil {
				return nil, err
			}
		}

		added = append(added, attendee)
	}

	c.invalidateRoomCache(ctx, room)
	_ = c.bus.Publish(ctx, &core.AttendeesAddedEvent{Room: room, Attendees: added, LastMessageID: lastMessage})

	log.Info().Str("module", "app.coordinator").Str("room", string(room.Token)).
		Int("added", len(added)).Msg("added attendees")
	return added, nil
}

// notifyRemoteAdd tells a federated attendee's home server about the
// invite. The local row was inserted speculatively; if the remote does
// not accept it the row is deleted again and the add fails. No orphan
// federated memberships.
func (c *ParticipantCoordinator) notifyRemoteAdd(ctx context.Context, room *domain.Room, attendee *domain.Attendee, addedByID string) error {
	if c.bridge == nil {
		_ = c.attendees.Delete(ctx, attendee.ID)
		return fmt.Errorf("no federation bridge configured: %w", core.ErrRemoteFailure)
	}

	info, err := c.bridge.NotifyRemoteAdd(ctx, core.RemoteAddRequest{
		AttendeeID:   attendee.ID,
		AccessToken:  attendee.AccessToken,
		CloudID:      attendee.ActorID,
		RemoteServer: attendee.RemoteServer,
		AddedByID:    addedByID,
		RoomToken:    room.Token,
		RoomName:     room.Name,
		RoomType:     room.Type,
	})
	if err != nil {
		if delErr := c.attendees.Delete(ctx, attendee.ID); delErr != nil {
			log.Error().Str("module", "app.coordinator").Err(delErr).
				Msg("rollback of speculative federated attendee failed")
		}
		log.Warn().Str("module", "app.coordinator").Str("actor", attendee.ActorID).
			Err(err).Msg("remote add notification failed, rolled back")
		return fmt.Errorf("%w: %v", core.ErrRemoteFailure, err)
	}

	if info != nil {
		changed := false
		if info.DisplayName != "" && info.DisplayName != attendee.DisplayName {
			attendee.DisplayName = info.DisplayName
			changed = true
		}
		if info.CloudID != "" && info.CloudID != attendee.ActorID {
			attendee.ActorID = info.CloudID
			changed = true
		}
		if changed {
			if err := c.attendees.Update(ctx, attendee); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *ParticipantCoordinator) readPrivacyFor(ctx context.Context, entry core.AttendeeEntry) int {
	// Federated read state never leaves this server.
	if entry.ActorType == domain.ActorFederatedUsers {
		return domain.ReadPrivacyPrivate
	}
	if entry.ActorType == domain.ActorUsers && c.privacy != nil {
		return c.privacy.ReadPrivacy(ctx, entry.ActorID)
	}
	return domain.ReadPrivacyPublic
}

// AddGroup expands a group to its member users and adds them all; the
// group itself is kept as a virtual marker attendee.
func (c *ParticipantCoordinator) AddGroup(ctx context.Context, room *domain.Room, groupID, addedByID string) ([]*domain.Attendee, error) {
	return c.addExpanded(ctx, room, domain.ActorGroups, groupID, addedByID)
}

// AddCircle is AddGroup for circles/teams.
func (c *ParticipantCoordinator) AddCircle(ctx context.Context, room *domain.Room, circleID, addedByID string) ([]*domain.Attendee, error) {
	return c.addExpanded(ctx, room, domain.ActorCircles, circleID, addedByID)
}

func (c *ParticipantCoordinator) addExpanded(ctx context.Context, room *domain.Room, actorType domain.ActorType, groupID, addedByID string) ([]*domain.Attendee, error) {
	if c.groups == nil {
		return nil, core.NewValidationError("group", "no group resolver configured")
	}
	members, err := c.groups.MembersOf(ctx, actorType, groupID)
	if err != nil {
		return nil, err
	}

	marker, err := domain.NewAttendee(room.ID, actorType, groupID)
	if err != nil {
		return nil, core.NewValidationError("group", err.Error())
	}
	marker.ParticipantType = domain.ParticipantUser
	if _, err := c.attendees.CreateIfAbsent(ctx, marker); err != nil {
		return nil, err
	}

	entries := make([]core.AttendeeEntry, 0, len(members))
	for _, m := range members {
		entries = append(entries, core.AttendeeEntry{
			ActorType:       domain.ActorUsers,
			ActorID:         m.ID,
			DisplayName:     m.DisplayName,
			ParticipantType: domain.ParticipantUser,
		})
	}
	return c.AddUsers(ctx, room, entries, addedByID)
}

// InviteEmailAddress creates a guest membership for an email invitee,
// with a SIP dial-in pin when the room supports it. Idempotent per
// address.
func (c *ParticipantCoordinator) InviteEmailAddress(ctx context.Context, room *domain.Room, email string) (*domain.Participant, error) {
	attendee, err := domain.NewAttendee(room.ID, domain.ActorEmails, email)
	if err != nil {
		return nil, core.NewValidationError("email", err.Error())
	}
	attendee.ParticipantType = domain.ParticipantGuest
	attendee.LastReadMessage = room.LastMessageID
	if room.SIPEnabled {
		attendee.Pin = generatePin(7)
	}

	created, err := c.attendees.CreateIfAbsent(ctx, attendee)
	if err != nil {
		return nil, err
	}
	if !created {
		attendee, err = c.attendees.ByActor(ctx, room.ID, domain.ActorEmails, email)
		if err != nil {
			return nil, err
		}
	}
	return domain.NewParticipant(room, attendee, nil), nil
}

var moderatorTypes = []int{
	domain.ParticipantOwner,
	domain.ParticipantModerator,
	domain.ParticipantGuestModerator,
}

// UpdateParticipantType promotes or demotes an attendee. Demoting the
// room's last moderator is refused so the room never ends up without
// anyone able to manage it.
func (c *ParticipantCoordinator) UpdateParticipantType(ctx context.Context, participant *domain.Participant, participantType int) error {
	switch participantType {
	case domain.ParticipantOwner, domain.ParticipantModerator, domain.ParticipantUser,
		domain.ParticipantGuest, domain.ParticipantUserSelfJoined, domain.ParticipantGuestModerator:
	default:
		return core.NewValidationError("participantType", "unknown participant type")
	}

	attendee := participant.Attendee
	demoting := attendee.IsModerator() &&
		participantType != domain.ParticipantOwner &&
		participantType != domain.ParticipantModerator &&
		participantType != domain.ParticipantGuestModerator
	if demoting {
		moderators, err := c.attendees.CountByParticipantTypes(ctx, attendee.RoomID, moderatorTypes)
		if err != nil {
			return err
		}
		if moderators <= 1 {
			return core.NewValidationError("participantType", "cannot demote the last moderator")
		}
	}

	attendee.ParticipantType = participantType
	return c.attendees.Update(ctx, attendee)
}

func (c *ParticipantCoordinator) UpdatePermissions(ctx context.Context, participant *domain.Participant, permissions domain.Permissions) error {
	participant.Attendee.Permissions = permissions.With(domain.PermissionsCustom)
	return c.attendees.Update(ctx, participant.Attendee)
}

// RecordMessage stamps the room's newest chat message and bumps the
// mention pointer of every user actor the message mentions, so clients
// can highlight unread mentions without scanning message bodies.
func (c *ParticipantCoordinator) RecordMessage(ctx context.Context, room *domain.Room, messageID int64, mentionedUserIDs []string) error {
	if err := c.registry.SetLastMessage(ctx, room, messageID); err != nil {
		return err
	}
	if len(mentionedUserIDs) > 0 {
		if err := c.attendees.MarkMentioned(ctx, room.ID, mentionedUserIDs, messageID); err != nil {
			return err
		}
	}
	c.invalidateRoomCache(ctx, room)
	return nil
}

func (c *ParticipantCoordinator) UpdateLastReadMessage(ctx context.Context, participant *domain.Participant, messageID int64) error {
	participant.Attendee.LastReadMessage = messageID
	if err := c.attendees.Update(ctx, participant.Attendee); err != nil {
		return err
	}
	c.invalidateRoomCache(ctx, participant.Room)
	return nil
}

func (c *ParticipantCoordinator) UpdateFavoriteStatus(ctx context.Context, participant *domain.Participant, favorite bool) error {
	participant.Attendee.Favorite = favorite
	return c.attendees.Update(ctx, participant.Attendee)
}

func (c *ParticipantCoordinator) UpdateNotificationLevel(ctx context.Context, participant *domain.Participant, level int) error {
	switch level {
	case domain.NotifyDefault, domain.NotifyAlways, domain.NotifyMention, domain.NotifyNever:
	default:
		return core.NewValidationError("level", "unknown notification level")
	}
	participant.Attendee.NotificationLevel = level
	return c.attendees.Update(ctx, participant.Attendee)
}

// GetParticipantByActor assembles the participant view, reusing the
// request cache when the same actor was already looked up in this
// request.
func (c *ParticipantCoordinator) GetParticipantByActor(ctx context.Context, rc *RequestCache, room *domain.Room, actorType domain.ActorType, actorID string) (*domain.Participant, error) {
	if rc != nil {
		if p, ok := rc.GetByActor(room.ID, actorType, actorID); ok {
			return p, nil
		}
	}
	attendee, err := c.attendees.ByActor(ctx, room.ID, actorType, actorID)
	if err != nil {
		return nil, err
	}
	participant := domain.NewParticipant(room, attendee, nil)
	if rc != nil {
		rc.PutByActor(participant)
	}
	return participant, nil
}

// GetParticipantBySession resolves the participant a session id belongs
// to, including the attendee and room.
func (c *ParticipantCoordinator) GetParticipantBySession(ctx context.Context, rc *RequestCache, room *domain.Room, sessionID string) (*domain.Participant, error) {
	if rc != nil {
		if p, ok := rc.GetBySession(sessionID); ok {
			return p, nil
		}
	}
	session, err := c.sessions.BySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attendee, err := c.attendees.ByID(ctx, session.AttendeeID)
	if err != nil {
		return nil, err
	}
	if attendee.RoomID != room.ID {
		return nil, core.ErrNotFound
	}
	participant := domain.NewParticipant(room, attendee, session)
	if rc != nil {
		rc.PutByActor(participant)
	}
	return participant, nil
}

func (c *ParticipantCoordinator) invalidateRoomCache(ctx context.Context, room *domain.Room) {
	if c.cache == nil {
		return
	}
	// Synchronous invalidation: the cached values change with membership
	// and read pointers, and expiry is never trusted for correctness.
	keys := []string{
		"room:" + string(room.Token) + ":last_message",
		"room:" + string(room.Token) + ":unread",
	}
	if _, err := c.cache.Del(ctx, keys...); err != nil {
		log.Warn().Str("module", "app.coordinator").Err(err).Msg("cache invalidation failed")
	}
}

// remoteServerOf extracts the host part of a federation cloud id
// ("user@host").
func remoteServerOf(cloudID string) string {
	if i := strings.LastIndexByte(cloudID, '@'); i >= 0 {
		return cloudID[i+1:]
	}
	return ""
}

// generatePin builds a SIP dial-in pin: digits only, no leading zero
// (special mode on phone servers) and no digit repeated back to back
// (some providers drop fast duplicate presses).
func generatePin(entropy int) string {
	pin := make([]byte, 0, entropy)
	last := byte('0')
	for i := 0; i < entropy; i++ {
		for {
			n, err := rand.Int(rand.Reader, big.NewInt(10))
			if err != nil {
				panic(err)
			}
			d := byte('0' + n.Int64())
			if d == last {
				continue
			}
			pin = append(pin, d)
			last = d
			break
		}
	}
	return string(pin)
}
