package domain

import "testing"

func TestEffectivePermissions(t *testing.T) {
	room := &Room{Type: RoomTypeGroup}

	moderator := &Attendee{ParticipantType: ParticipantModerator, Permissions: PermissionsCustom}
	if got := EffectivePermissions(room, moderator); got != PermissionsMaxDefault {
		t.Fatalf("moderator permissions = %d, want %d", got, PermissionsMaxDefault)
	}

	custom := &Attendee{
		ParticipantType: ParticipantUser,
		Permissions:     PermissionsCustom | PermissionsPublishAudio,
	}
	got := EffectivePermissions(room, custom)
	if !got.CanPublishAudio() || got.CanPublishVideo() || got.IsCustom() {
		t.Fatalf("custom attendee mask = %d, want audio only without custom bit", got)
	}

	roomWithDefault := &Room{
		Type:               RoomTypeGroup,
		DefaultPermissions: PermissionsCustom | PermissionsPublishVideo,
	}
	plain := &Attendee{ParticipantType: ParticipantUser}
	got = EffectivePermissions(roomWithDefault, plain)
	if got.CanPublishAudio() || !got.CanPublishVideo() {
		t.Fatalf("room default mask = %d, want video only", got)
	}

	if got := EffectivePermissions(room, plain); got != PermissionsMaxDefault {
		t.Fatalf("unconfigured room mask = %d, want %d", got, PermissionsMaxDefault)
	}
}

func TestPermissionsWithWithout(t *testing.T) {
	p := PermissionsNone.With(PermissionsPublishAudio).With(PermissionsCallJoin)
	if !p.CanPublishAudio() || !p.CanJoinCall() {
		t.Fatalf("With did not set bits: %d", p)
	}
	p = p.Without(PermissionsPublishAudio)
	if p.CanPublishAudio() {
		t.Fatalf("Without did not clear audio bit: %d", p)
	}
	if p.CanIgnoreLobby() {
		t.Fatalf("lobby bit leaked into %d", p)
	}
}

func TestCallFlagMaskedBy(t *testing.T) {
	flags := CallFlagInCall | CallFlagWithAudio | CallFlagWithVideo

	audioOnly := PermissionsPublishAudio | PermissionsCallJoin
	masked := flags.MaskedBy(audioOnly)
	if !masked.InCall() || !masked.WithAudio() {
		t.Fatalf("masking dropped granted bits: %d", masked)
	}
	if masked.WithVideo() {
		t.Fatalf("video bit survived without permission: %d", masked)
	}

	// The in-call bit itself is never permission gated here.
	masked = flags.MaskedBy(PermissionsNone)
	if !masked.InCall() || masked.WithAudio() || masked.WithVideo() {
		t.Fatalf("mask with no permissions = %d, want bare in-call", masked)
	}
}

func TestCallFlagMerge(t *testing.T) {
	merged := (CallFlagInCall | CallFlagWithAudio).Merge(CallFlagInCall | CallFlagWithVideo)
	if !merged.WithAudio() || !merged.WithVideo() || !merged.InCall() {
		t.Fatalf("merge lost bits: %d", merged)
	}
}

func TestAttendeeModeratorAndSelfJoined(t *testing.T) {
	for _, pt := range []int{ParticipantOwner, ParticipantModerator, ParticipantGuestModerator} {
		a := &Attendee{ParticipantType: pt}
		if !a.IsModerator() {
			t.Fatalf("participant type %d should be moderator", pt)
		}
	}
	for _, pt := range []int{ParticipantUser, ParticipantGuest, ParticipantUserSelfJoined} {
		a := &Attendee{ParticipantType: pt}
		if a.IsModerator() {
			t.Fatalf("participant type %d should not be moderator", pt)
		}
	}

	if !(&Attendee{ParticipantType: ParticipantUserSelfJoined}).IsSelfJoined() {
		t.Fatal("self-joined type not recognized")
	}
	if (&Attendee{ParticipantType: ParticipantUser}).IsSelfJoined() {
		t.Fatal("regular user reported self-joined")
	}
}

func TestRoomSupportsCalls(t *testing.T) {
	for _, rt := range []int{RoomTypeOneToOne, RoomTypeGroup, RoomTypePublic} {
		r := &Room{Type: rt}
		if !r.SupportsCalls() {
			t.Fatalf("room type %d should support calls", rt)
		}
	}
	for _, rt := range []int{RoomTypeChangelog, RoomTypeOneToOneFormer, RoomTypeNoteToSelf} {
		r := &Room{Type: rt}
		if r.SupportsCalls() {
			t.Fatalf("room type %d should not support calls", rt)
		}
	}
}

func TestFederatedSessionID(t *testing.T) {
	id := FederatedSessionID("abc", "user@remote.example")
	if id != "abc#user@remote.example" {
		t.Fatalf("federated session id = %q", id)
	}
	if got := CloudIDOfSession(id); got != "user@remote.example" {
		t.Fatalf("cloud id = %q", got)
	}
	if got := CloudIDOfSession("plain"); got != "" {
		t.Fatalf("cloud id of local session = %q, want empty", got)
	}

	long := FederatedSessionID(string(make([]byte, SessionIDColumnWidth)), "u@r")
	if len(long) > SessionIDColumnWidth {
		t.Fatalf("federated id length %d exceeds column width", len(long))
	}
}
