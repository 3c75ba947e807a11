package domain

// Participant is the per-request composite view of an attendee in a room
// together with the device session the request arrived on. Session is nil
// when the attendee is known but not currently connected. It is never
// stored.
type Participant struct {
	Room     *Room
	Attendee *Attendee
	Session  *Session
}

// NewParticipant keeps construction obvious at call sites.
func NewParticipant(room *Room, attendee *Attendee, session *Session) *Participant {
	return &Participant{Room: room, Attendee: attendee, Session: session}
}

func (p *Participant) HasModeratorPermissions() bool {
	return p.Attendee.IsModerator()
}

// Permissions resolves the effective permission mask for this
// participant.
func (p *Participant) Permissions() Permissions {
	return EffectivePermissions(p.Room, p.Attendee)
}

// InCall reports whether the request's session currently publishes into
// the call.
func (p *Participant) InCall() bool {
	return p.Session != nil && p.Session.IsInCall()
}
