package domain

// Permissions is the attendee permission bitmask. Call sites go through
// the named predicates, never raw bit arithmetic.
type Permissions int

const (
	PermissionsNone          Permissions = 0
	PermissionsPublishAudio  Permissions = 1
	PermissionsPublishVideo  Permissions = 2
	PermissionsPublishScreen Permissions = 4
	PermissionsCallStart     Permissions = 8
	PermissionsCallJoin      Permissions = 16
	PermissionsLobbyIgnore   Permissions = 32

	// PermissionsCustom marks the value as explicitly set for the
	// attendee, so a zero mask can be told apart from "use the default".
	PermissionsCustom Permissions = 128

	PermissionsMaxDefault = PermissionsPublishAudio | PermissionsPublishVideo |
		PermissionsPublishScreen | PermissionsCallStart | PermissionsCallJoin
)

func (p Permissions) CanPublishAudio() bool  { return p&PermissionsPublishAudio != 0 }
func (p Permissions) CanPublishVideo() bool  { return p&PermissionsPublishVideo != 0 }
func (p Permissions) CanPublishScreen() bool { return p&PermissionsPublishScreen != 0 }
func (p Permissions) CanStartCall() bool     { return p&PermissionsCallStart != 0 }
func (p Permissions) CanJoinCall() bool      { return p&PermissionsCallJoin != 0 }
func (p Permissions) CanIgnoreLobby() bool   { return p&PermissionsLobbyIgnore != 0 }

// IsCustom reports whether the mask was explicitly set rather than
// inherited from the room default.
func (p Permissions) IsCustom() bool { return p&PermissionsCustom != 0 }

func (p Permissions) With(flag Permissions) Permissions    { return p | flag }
func (p Permissions) Without(flag Permissions) Permissions { return p &^ flag }

// EffectivePermissions resolves the mask that applies to an attendee:
// moderators always hold everything, custom masks win over the room
// default, and an unconfigured room default means all publishing rights.
func EffectivePermissions(room *Room, attendee *Attendee) Permissions {
	if attendee.IsModerator() {
		return PermissionsMaxDefault
	}
	if attendee.Permissions.IsCustom() {
		return attendee.Permissions.Without(PermissionsCustom)
	}
	if room.DefaultPermissions.IsCustom() {
		return room.DefaultPermissions.Without(PermissionsCustom)
	}
	return PermissionsMaxDefault
}
