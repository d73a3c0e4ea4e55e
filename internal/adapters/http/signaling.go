package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/adapters/signal"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/ticket"
)

// handleSignaling redeems the ticket and runs the session on the upgraded
// socket until it ends.
func (s *Server) handleSignaling(ctx context.Context, c *gin.Context) {
	token, ok := signal.TicketFromRequest(c.Request)
	if !ok {
		abort(c, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	ws, err := signal.Upgrade(c.Writer, c.Request)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}

	data, err := s.Tickets.TakeTicket(c.Request.Context(), token)
	if err != nil {
		code := core.CloseServerError
		if errors.Is(err, ticket.ErrInvalidTicket) {
			code = core.CloseTicketInvalid
		} else {
			log.Error().Err(err).Str("module", "adapters.http").Msg("take ticket")
		}
		signal.Reject(ws, code, s.Conn.WriteWait)
		return
	}

	conn := signal.NewConn(ws, data.ParticipantID, s.Policy, s.Conn)
	conn.Start()
	s.Sessions.Serve(ctx, conn, data)
}
