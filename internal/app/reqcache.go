package app

import (
	"github.com/dkeye/Huddle/internal/domain"
)

// RequestCache deduplicates participant lookups within one request. It is
// constructed per unit of work, handed down explicitly, and thrown away
// with the request; entries must never be trusted across requests or
// workers. Not safe for concurrent use, by contract: one request, one
// goroutine.
type RequestCache struct {
	byActor   map[actorKey]*domain.Participant
	bySession map[string]*domain.Participant
}

type actorKey struct {
	roomID    domain.RoomID
	actorType domain.ActorType
	actorID   string
}

func NewRequestCache() *RequestCache {
	return &RequestCache{
		byActor:   make(map[actorKey]*domain.Participant),
		bySession: make(map[string]*domain.Participant),
	}
}

func (c *RequestCache) GetByActor(roomID domain.RoomID, actorType domain.ActorType, actorID string) (*domain.Participant, bool) {
	p, ok := c.byActor[actorKey{roomID, actorType, actorID}]
	return p, ok
}

func (c *RequestCache) PutByActor(p *domain.Participant) {
	c.byActor[actorKey{p.Room.ID, p.Attendee.ActorType, p.Attendee.ActorID}] = p
	if p.Session != nil {
		c.bySession[p.Session.SessionID] = p
	}
}

func (c *RequestCache) GetBySession(sessionID string) (*domain.Participant, bool) {
	p, ok := c.bySession[sessionID]
	return p, ok
}

// Invalidate drops every entry of the given attendee, for mutations that
// change what a later lookup in the same request must see.
func (c *RequestCache) Invalidate(attendee *domain.Attendee) {
	delete(c.byActor, actorKey{attendee.RoomID, attendee.ActorType, attendee.ActorID})
	for sid, p := range c.bySession {
		if p.Attendee.ID == attendee.ID {
			delete(c.bySession, sid)
		}
	}
}
