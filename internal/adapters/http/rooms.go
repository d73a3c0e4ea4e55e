package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/directory"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/modules/breakout"
	"github.com/dkeye/opentalk/internal/modules/moderation"
	"github.com/dkeye/opentalk/internal/ticket"
)

type StartRequest struct {
	BreakoutRoom *domain.BreakoutRoomID  `json:"breakout_room"`
	Resumption   *domain.ResumptionToken `json:"resumption"`
}

func resumptionSessionKey(room domain.RoomID) string { return "resumption:" + string(room) }

// principal resolves the caller from the bearer token. No token means guest.
func (s *Server) principal(c *gin.Context) (domain.Participant, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return domain.GuestParticipant(), true
	}
	token, ok := auth.BearerToken(header)
	if !ok {
		abort(c, http.StatusUnauthorized, "invalid_credentials")
		return domain.Participant{}, false
	}
	id, err := s.Auth.User(c.Request.Context(), token)
	if err != nil {
		abort(c, http.StatusUnauthorized, "invalid_credentials")
		return domain.Participant{}, false
	}
	return domain.UserParticipant(id), true
}

func (s *Server) room(c *gin.Context, id domain.RoomID) (domain.RoomInfo, bool) {
	info, err := s.Directory.Room(c.Request.Context(), id)
	switch {
	case errors.Is(err, directory.ErrRoomNotFound):
		abort(c, http.StatusNotFound, "not_found")
		return domain.RoomInfo{}, false
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(id)).Msg("resolve room")
		abort(c, http.StatusInternalServerError, "internal")
		return domain.RoomInfo{}, false
	}
	return info, true
}

func (s *Server) handleStart(c *gin.Context) {
	ctx := c.Request.Context()
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, "bad_request")
		return
	}

	p, ok := s.principal(c)
	if !ok {
		return
	}
	info, ok := s.room(c, domain.RoomID(c.Param("room_id")))
	if !ok {
		return
	}

	if p.IsUser() {
		banned, err := moderation.IsBanned(ctx, s.Storage, info.ID, p.User)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("check ban")
			abort(c, http.StatusInternalServerError, "internal")
			return
		}
		if banned {
			abort(c, http.StatusForbidden, "banned")
			return
		}
	}

	var br domain.BreakoutRoomID
	if req.BreakoutRoom != nil && *req.BreakoutRoom != "" {
		br = *req.BreakoutRoom
		valid, err := breakout.ValidBreakout(ctx, s.Storage, info.ID, br)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("check breakout room")
			abort(c, http.StatusInternalServerError, "internal")
			return
		}
		if !valid {
			abort(c, http.StatusNotFound, "invalid_breakout_room")
			return
		}
	}

	session := sessions.Default(c)
	key := resumptionSessionKey(info.ID)
	start := ticket.Start{Participant: p, Room: info.ID, Breakout: br, Resumption: req.Resumption}
	remembered := false
	if start.Resumption == nil {
		start.Resumption, remembered = rememberedResumption(session, key)
	}

	issued, ok := s.issue(c, start, remembered)
	if !ok {
		return
	}

	session.Set(key, string(issued.Resumption))
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session cookie")
	}
	c.JSON(http.StatusOK, issued)
}

func rememberedResumption(session sessions.Session, key string) (*domain.ResumptionToken, bool) {
	remembered, ok := session.Get(key).(string)
	if !ok || remembered == "" {
		return nil, false
	}
	token := domain.ResumptionToken(remembered)
	return &token, true
}

// issue runs StartOrContinue and writes the error answer when it fails.
// A remembered resumption whose session still runs, e.g. in another tab,
// does not block the caller: it gets a new participant instead.
func (s *Server) issue(c *gin.Context, start ticket.Start, remembered bool) (ticket.Issued, bool) {
	issued, err := s.Tickets.StartOrContinue(c.Request.Context(), start)
	if remembered && errors.Is(err, ticket.ErrSessionRunning) {
		start.Resumption = nil
		issued, err = s.Tickets.StartOrContinue(c.Request.Context(), start)
	}
	switch {
	case errors.Is(err, ticket.ErrSessionRunning):
		abort(c, http.StatusBadRequest, "session_running")
		return ticket.Issued{}, false
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(start.Room)).Msg("issue ticket")
		abort(c, http.StatusInternalServerError, "internal")
		return ticket.Issued{}, false
	}
	log.Info().
		Str("module", "adapters.http").
		Str("room", string(start.Room)).
		Str("kind", string(start.Participant.Kind)).
		Bool("resuming", issued.Resuming).
		Msg("ticket issued")
	return issued, true
}

// handleDeleteRoom lets the owner close a room. Every live session of the
// room and its breakouts ends with room_closed.
func (s *Server) handleDeleteRoom(c *gin.Context) {
	ctx := c.Request.Context()
	if c.GetHeader("Authorization") == "" {
		abort(c, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	p, ok := s.principal(c)
	if !ok {
		return
	}
	info, ok := s.room(c, domain.RoomID(c.Param("room_id")))
	if !ok {
		return
	}
	if !info.IsOwner(p) {
		abort(c, http.StatusForbidden, "forbidden")
		return
	}

	msg, err := exchange.NewMessage(control.Namespace, s.Clock.Now(), control.Msg(control.ExRoomDeleted))
	if err == nil {
		err = s.Exchange.Publish(ctx, exchange.GlobalRoomParticipants(info.ID), msg)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(info.ID)).Msg("publish room deletion")
		abort(c, http.StatusInternalServerError, "internal")
		return
	}
	if err := moderation.DeleteBans(ctx, s.Storage, info.ID); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("room", string(info.ID)).Msg("delete bans")
	}
	s.Directory.DeleteRoom(info.ID)

	log.Info().Str("module", "adapters.http").Str("room", string(info.ID)).Msg("room deleted")
	c.Status(http.StatusNoContent)
}
