package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dkeye/Huddle/internal/config"
)

// SetupRouter wires the REST surface. All room routes resolve the token
// to a room up front and park it in the gin context.
func SetupRouter(cfg *config.Config, h *Handlers) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")

	api.POST("/rooms", h.CreateRoom)

	room := api.Group("/rooms/:token", h.ResolveRoom)
	{
		room.GET("", h.GetRoom)
		room.DELETE("", h.DeleteRoom)
		room.PUT("/password", h.SetPassword)
		room.PUT("/lobby", h.SetLobby)

		room.POST("/join", h.Join)
		room.POST("/guests", h.GuestJoin)
		room.DELETE("/sessions/:sessionId", h.Leave)
		room.POST("/sessions/:sessionId/ping", h.Ping)
		room.PUT("/sessions/:sessionId/state", h.SetSessionState)

		room.POST("/message", h.RecordMessage)

		room.POST("/attendees", h.AddAttendees)
		room.DELETE("/attendees", h.RemoveAttendee)
		room.POST("/invite-email", h.InviteEmail)
		room.PUT("/attendees/type", h.SetParticipantType)
		room.PUT("/attendees/permissions", h.SetPermissions)

		room.PUT("/call/:sessionId", h.ChangeInCall)

		room.POST("/breakout-rooms", h.SetupBreakout)
		room.DELETE("/breakout-rooms", h.RemoveBreakout)
		room.POST("/breakout-rooms/start", h.StartBreakout)
		room.POST("/breakout-rooms/stop", h.StopBreakout)
		room.GET("/breakout-rooms", h.ListBreakout)
		room.POST("/breakout-rooms/request-assistance", h.RequestAssistance)
		room.DELETE("/breakout-rooms/request-assistance", h.ResetAssistance)
		room.POST("/breakout-rooms/switch", h.SwitchBreakout)
		room.POST("/breakout-rooms/broadcast", h.BroadcastMessage)
	}

	return r
}
