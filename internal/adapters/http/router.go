// Package http is the REST and websocket entry of the signaling service.
package http

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/adapters/signal"
	"github.com/dkeye/opentalk/internal/app"
	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/config"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/storage"
	"github.com/dkeye/opentalk/internal/ticket"
)

const sessionCookie = "opentalk_session"

// Directory is what the REST layer reads and mutates about rooms.
type Directory interface {
	Room(ctx context.Context, id domain.RoomID) (domain.RoomInfo, error)
	DeleteRoom(id domain.RoomID) bool
}

// Server carries everything the handlers need.
type Server struct {
	Auth      auth.Authenticator
	Tickets   *ticket.Service
	Directory Directory
	Storage   storage.Backend
	Exchange  *exchange.Hub
	Sessions  *app.Registry
	Policy    app.Policy
	Conn      signal.Options
	// StartLimit throttles ticket issuing per client address. Nil disables it.
	StartLimit *signal.KeyedLimiter
	Clock      clock.Clock
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code string `json:"code"`
}

func abort(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code})
}

// SetupRouter wires the routes. Sessions started through /signaling run until
// ctx is done or the client leaves.
func SetupRouter(ctx context.Context, cfg *config.Config, s *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/v1", MaxAge: 3600 * 24, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionCookie, store))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.Sessions.Count()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/rooms/:room_id/start", s.limitStarts(), s.handleStart)
	v1.DELETE("/rooms/:room_id", s.handleDeleteRoom)
	v1.POST("/services/recording/start", s.limitStarts(), s.handleRecordingStart)
	v1.POST("/services/call_in/start", s.limitStarts(), s.handleCallInStart)

	r.GET("/signaling", func(c *gin.Context) { s.handleSignaling(ctx, c) })

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func (s *Server) limitStarts() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.StartLimit != nil && !s.StartLimit.Allow(c.ClientIP()) {
			log.Warn().Str("module", "adapters.http").Str("client", c.ClientIP()).Msg("start rate exceeded")
			abort(c, http.StatusTooManyRequests, "too_many_requests")
			return
		}
		c.Next()
	}
}
