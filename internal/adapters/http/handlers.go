package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const roomKey = "room"

// Handlers exposes the application services over REST. Each handler
// binds input, resolves the participant and delegates; no business
// rules live here.
type Handlers struct {
	Registry    *app.RoomRegistry
	Coordinator *app.ParticipantCoordinator
	Breakout    *app.BreakoutRoomOrchestrator
	Tracker     *app.SessionTracker
}

// ResolveRoom loads the room for the :token parameter.
func (h *Handlers) ResolveRoom(c *gin.Context) {
	room, err := h.Registry.RoomByToken(c.Request.Context(), domain.RoomToken(c.Param("token")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Set(roomKey, room)
	c.Next()
}

func roomFrom(c *gin.Context) *domain.Room {
	return c.MustGet(roomKey).(*domain.Room)
}

// abortWithError maps the service error taxonomy onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Reason, "field": verr.Field})
	case errors.Is(err, core.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, core.ErrInvalidPassword):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid password"})
	case errors.Is(err, core.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	case errors.Is(err, core.ErrDuplicate):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, core.ErrNoSession):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no active session"})
	case errors.Is(err, core.ErrRemoteFailure):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "remote server rejected the request"})
	default:
		log.Error().Str("module", "adapters.http").Err(err).Msg("unhandled service error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type roomView struct {
	Token              string `json:"token"`
	Name               string `json:"name"`
	Type               int    `json:"type"`
	HasCall            bool   `json:"hasCall"`
	CallFlag           int    `json:"callFlag"`
	LobbyState         int    `json:"lobbyState"`
	BreakoutRoomMode   int    `json:"breakoutRoomMode"`
	BreakoutRoomStatus int    `json:"breakoutRoomStatus"`
	HasPassword        bool   `json:"hasPassword"`
}

func viewOf(room *domain.Room) roomView {
	return roomView{
		Token:              string(room.Token),
		Name:               room.Name,
		Type:               room.Type,
		HasCall:            room.HasActiveCall(),
		CallFlag:           int(room.CallFlag),
		LobbyState:         room.LobbyState,
		BreakoutRoomMode:   room.BreakoutRoomMode,
		BreakoutRoomStatus: room.BreakoutRoomStatus,
		HasPassword:        room.HasPassword(),
	}
}

type participantView struct {
	ActorType       string `json:"actorType"`
	ActorID         string `json:"actorId"`
	DisplayName     string `json:"displayName"`
	ParticipantType int    `json:"participantType"`
	SessionID       string `json:"sessionId,omitempty"`
	InCall          int    `json:"inCall"`
}

func participantViewOf(p *domain.Participant) participantView {
	v := participantView{
		ActorType:       string(p.Attendee.ActorType),
		ActorID:         p.Attendee.ActorID,
		DisplayName:     p.Attendee.DisplayName,
		ParticipantType: p.Attendee.ParticipantType,
	}
	if p.Session != nil {
		v.SessionID = p.Session.SessionID
		v.InCall = int(p.Session.InCall)
	}
	return v
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req struct {
		Type int    `json:"type" binding:"required"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := h.Registry.CreateConversation(c.Request.Context(), req.Type, req.Name, "", "")
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(room))
}

func (h *Handlers) GetRoom(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(roomFrom(c)))
}

func (h *Handlers) DeleteRoom(c *gin.Context) {
	if err := h.Registry.DeleteRoom(c.Request.Context(), roomFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) SetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Registry.SetPassword(c.Request.Context(), roomFrom(c), req.Password); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) SetLobby(c *gin.Context) {
	var req struct {
		State int `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Registry.SetLobby(c.Request.Context(), roomFrom(c), req.State); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) Join(c *gin.Context) {
	var req struct {
		UserID      string `json:"userId" binding:"required"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Coordinator.JoinRoom(c.Request.Context(), roomFrom(c), req.UserID, req.DisplayName, req.Password, false)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, participantViewOf(p))
}

func (h *Handlers) GuestJoin(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Coordinator.GuestJoin(c.Request.Context(), roomFrom(c), req.Password, false)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, participantViewOf(p))
}

func (h *Handlers) participantBySession(c *gin.Context, sessionID string) (*domain.Participant, bool) {
	rc := app.NewRequestCache()
	p, err := h.Coordinator.GetParticipantBySession(c.Request.Context(), rc, roomFrom(c), sessionID)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return p, true
}

func (h *Handlers) Leave(c *gin.Context) {
	p, ok := h.participantBySession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if err := h.Coordinator.LeaveRoomAsSession(c.Request.Context(), p); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) Ping(c *gin.Context) {
	p, ok := h.participantBySession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if err := h.Tracker.UpdateLastPing(c.Request.Context(), p.Session); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) SetSessionState(c *gin.Context) {
	var req struct {
		State int `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := h.participantBySession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if err := h.Tracker.UpdateSessionState(c.Request.Context(), p.Session, req.State); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type attendeeRequest struct {
	ActorType   string `json:"actorType" binding:"required"`
	ActorID     string `json:"actorId" binding:"required"`
	DisplayName string `json:"displayName"`
}

func (h *Handlers) AddAttendees(c *gin.Context) {
	var req struct {
		Attendees []attendeeRequest `json:"attendees" binding:"required,dive"`
		AddedByID string            `json:"addedById"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := roomFrom(c)
	ctx := c.Request.Context()
	added := 0
	for _, a := range req.Attendees {
		switch domain.ActorType(a.ActorType) {
		case domain.ActorGroups:
			res, err := h.Coordinator.AddGroup(ctx, room, a.ActorID, req.AddedByID)
			if err != nil {
				abortWithError(c, err)
				return
			}
			added += len(res)
		case domain.ActorCircles:
			res, err := h.Coordinator.AddCircle(ctx, room, a.ActorID, req.AddedByID)
			if err != nil {
				abortWithError(c, err)
				return
			}
			added += len(res)
		default:
			res, err := h.Coordinator.AddUsers(ctx, room, []core.AttendeeEntry{{
				ActorType:       domain.ActorType(a.ActorType),
				ActorID:         a.ActorID,
				DisplayName:     a.DisplayName,
				ParticipantType: domain.ParticipantUser,
			}}, req.AddedByID)
			if err != nil {
				abortWithError(c, err)
				return
			}
			added += len(res)
		}
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (h *Handlers) RemoveAttendee(c *gin.Context) {
	var req struct {
		ActorType string `json:"actorType" binding:"required"`
		ActorID   string `json:"actorId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := roomFrom(c)
	rc := app.NewRequestCache()
	p, err := h.Coordinator.GetParticipantByActor(c.Request.Context(), rc, room, domain.ActorType(req.ActorType), req.ActorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.Coordinator.RemoveAttendee(c.Request.Context(), room, p, domain.ReasonRemoved); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) InviteEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Coordinator.InviteEmailAddress(c.Request.Context(), roomFrom(c), req.Email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, participantViewOf(p))
}

func (h *Handlers) RecordMessage(c *gin.Context) {
	var req struct {
		MessageID int64    `json:"messageId" binding:"required"`
		Mentions  []string `json:"mentions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Coordinator.RecordMessage(c.Request.Context(), roomFrom(c), req.MessageID, req.Mentions); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) SetParticipantType(c *gin.Context) {
	var req struct {
		ActorType       string `json:"actorType" binding:"required"`
		ActorID         string `json:"actorId" binding:"required"`
		ParticipantType int    `json:"participantType" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := roomFrom(c)
	rc := app.NewRequestCache()
	p, err := h.Coordinator.GetParticipantByActor(c.Request.Context(), rc, room, domain.ActorType(req.ActorType), req.ActorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.Coordinator.UpdateParticipantType(c.Request.Context(), p, req.ParticipantType); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) SetPermissions(c *gin.Context) {
	var req struct {
		ActorType   string `json:"actorType" binding:"required"`
		ActorID     string `json:"actorId" binding:"required"`
		Permissions int    `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := roomFrom(c)
	rc := app.NewRequestCache()
	p, err := h.Coordinator.GetParticipantByActor(c.Request.Context(), rc, room, domain.ActorType(req.ActorType), req.ActorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.Coordinator.UpdatePermissions(c.Request.Context(), p, domain.Permissions(req.Permissions)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) ChangeInCall(c *gin.Context) {
	var req struct {
		Flags          int  `json:"flags"`
		EndForEveryone bool `json:"endForEveryone"`
		Silent         bool `json:"silent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := h.participantBySession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if err := h.Coordinator.ChangeInCall(c.Request.Context(), p, domain.CallFlag(req.Flags), req.EndForEveryone, req.Silent); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, participantViewOf(p))
}

func (h *Handlers) SetupBreakout(c *gin.Context) {
	var req struct {
		Mode        int    `json:"mode" binding:"required"`
		Amount      int    `json:"amount" binding:"required"`
		AttendeeMap string `json:"attendeeMap"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	children, err := h.Breakout.Setup(c.Request.Context(), roomFrom(c), req.Mode, req.Amount, req.AttendeeMap)
	if err != nil {
		abortWithError(c, err)
		return
	}
	views := make([]roomView, 0, len(children))
	for _, child := range children {
		views = append(views, viewOf(child))
	}
	c.JSON(http.StatusCreated, views)
}

func (h *Handlers) RemoveBreakout(c *gin.Context) {
	if err := h.Breakout.Remove(c.Request.Context(), roomFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) StartBreakout(c *gin.Context) {
	if err := h.Breakout.Start(c.Request.Context(), roomFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) StopBreakout(c *gin.Context) {
	if err := h.Breakout.Stop(c.Request.Context(), roomFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) ListBreakout(c *gin.Context) {
	actorType := c.Query("actorType")
	actorID := c.Query("actorId")

	room := roomFrom(c)
	rc := app.NewRequestCache()
	p, err := h.Coordinator.GetParticipantByActor(c.Request.Context(), rc, room, domain.ActorType(actorType), actorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	children, err := h.Breakout.GetBreakoutRooms(c.Request.Context(), room, p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	views := make([]roomView, 0, len(children))
	for _, child := range children {
		views = append(views, viewOf(child))
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handlers) RequestAssistance(c *gin.Context) {
	if err := h.Breakout.RequestAssistance(c.Request.Context(), roomFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) ResetAssistance(c *gin.Context) {
	if err := h.Breakout.ResetRequestForAssistance(c.Request.Context(), roomFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) SwitchBreakout(c *gin.Context) {
	var req struct {
		ActorType string `json:"actorType" binding:"required"`
		ActorID   string `json:"actorId" binding:"required"`
		Target    string `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := roomFrom(c)
	rc := app.NewRequestCache()
	p, err := h.Coordinator.GetParticipantByActor(c.Request.Context(), rc, room, domain.ActorType(req.ActorType), req.ActorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	target, err := h.Breakout.SwitchBreakoutRoom(c.Request.Context(), room, p, domain.RoomToken(req.Target))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(target))
}

func (h *Handlers) BroadcastMessage(c *gin.Context) {
	var req struct {
		ActorType string `json:"actorType" binding:"required"`
		ActorID   string `json:"actorId" binding:"required"`
		Message   string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := roomFrom(c)
	rc := app.NewRequestCache()
	p, err := h.Coordinator.GetParticipantByActor(c.Request.Context(), rc, room, domain.ActorType(req.ActorType), req.ActorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.Breakout.BroadcastChatMessage(c.Request.Context(), room, p, req.Message); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
