package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/ticket"
)

type ServiceStartRequest struct {
	RoomID       domain.RoomID         `json:"room_id" binding:"required"`
	BreakoutRoom domain.BreakoutRoomID `json:"breakout_room"`
}

type CallInStartRequest struct {
	RoomID      domain.RoomID `json:"room_id" binding:"required"`
	PhoneNumber string        `json:"phone_number" binding:"omitempty,e164"`
}

// service checks the service token of the caller.
func (s *Server) service(c *gin.Context, svc auth.Service) bool {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		abort(c, http.StatusUnauthorized, "invalid_credentials")
		return false
	}
	if err := s.Auth.Service(c.Request.Context(), svc, token); err != nil {
		log.Warn().Str("module", "adapters.http").Str("service", string(svc)).Msg("service token rejected")
		abort(c, http.StatusUnauthorized, "invalid_credentials")
		return false
	}
	return true
}

func (s *Server) handleRecordingStart(c *gin.Context) {
	if !s.service(c, auth.ServiceRecording) {
		return
	}
	var req ServiceStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "bad_request")
		return
	}
	info, ok := s.room(c, req.RoomID)
	if !ok {
		return
	}
	issued, ok := s.issue(c, ticket.Start{
		Participant: domain.RecorderParticipant(),
		Room:        info.ID,
		Breakout:    req.BreakoutRoom,
	}, false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, issued)
}

func (s *Server) handleCallInStart(c *gin.Context) {
	if !s.service(c, auth.ServiceCallIn) {
		return
	}
	var req CallInStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "bad_request")
		return
	}
	info, ok := s.room(c, req.RoomID)
	if !ok {
		return
	}
	issued, ok := s.issue(c, ticket.Start{
		Participant: domain.SipParticipant(req.PhoneNumber),
		Room:        info.ID,
	}, false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, issued)
}
