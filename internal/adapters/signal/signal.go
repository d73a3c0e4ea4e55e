// Package signal carries signaling frames over gorilla websockets.
package signal

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dkeye/opentalk/internal/app"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/metrics"
	"github.com/dkeye/opentalk/internal/runner"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Subprotocol is the only websocket subprotocol the server speaks.
const Subprotocol = "signaling-json-v1"

const ticketProtocolPrefix = "ticket#"

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
	// InboundRate limits client frames per second, InboundBurst on top.
	InboundRate  float64
	InboundBurst int
}

var DefaultOptions = Options{
	ReadLimit:    32768,
	PingPeriod:   54 * time.Second,
	WriteWait:    5 * time.Second,
	SendBuffer:   256,
	InboundRate:  50,
	InboundBurst: 100,
}

// pongWait is how long a client may stay silent before the read fails.
func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultOptions.ReadLimit
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = DefaultOptions.PingPeriod
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultOptions.WriteWait
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultOptions.SendBuffer
	}
	if o.InboundRate <= 0 {
		o.InboundRate = DefaultOptions.InboundRate
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = DefaultOptions.InboundBurst
	}
	return o
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{Subprotocol},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

// Upgrade switches the request to a websocket.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// TicketFromRequest finds the ticket in the Authorization header, the
// websocket subprotocol list or the query string, in that order.
func TicketFromRequest(r *http.Request) (domain.TicketToken, bool) {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Ticket") {
		if token = strings.TrimSpace(token); token != "" {
			return domain.TicketToken(token), true
		}
	}
	for _, p := range websocket.Subprotocols(r) {
		if token, ok := strings.CutPrefix(p, ticketProtocolPrefix); ok && token != "" {
			return domain.TicketToken(token), true
		}
	}
	if token := r.URL.Query().Get("ticket"); token != "" {
		return domain.TicketToken(token), true
	}
	return "", false
}

// Reject closes a freshly upgraded socket that never gets a runner.
func Reject(ws *websocket.Conn, code core.CloseCode, wait time.Duration) {
	if wait <= 0 {
		wait = DefaultOptions.WriteWait
	}
	msg := websocket.FormatCloseMessage(int(code), code.String())
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait)); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("write close")
	}
	_ = ws.Close()
}

// Conn is a runner connection backed by a websocket. Outbound frames go
// through a bounded queue; a full queue is resolved by the policy.
type Conn struct {
	ws      *websocket.Conn
	opts    Options
	policy  app.Policy
	id      domain.ParticipantID
	limiter *rate.Limiter
	logger  zerolog.Logger

	in   chan []byte
	send chan []byte
	done chan struct{}

	mu        sync.Mutex
	closed    bool
	dropped   int
	closeCode core.CloseCode
	reason    string
}

var _ runner.Conn = (*Conn)(nil)

func NewConn(ws *websocket.Conn, id domain.ParticipantID, policy app.Policy, opts Options) *Conn {
	opts = opts.withDefaults()
	if policy == nil {
		policy = app.ThresholdPolicy{}
	}
	return &Conn{
		ws:      ws,
		opts:    opts,
		policy:  policy,
		id:      id,
		limiter: rate.NewLimiter(rate.Limit(opts.InboundRate), opts.InboundBurst),
		logger:  log.With().Str("module", "signal").Str("participant", string(id)).Logger(),
		in:      make(chan []byte, 16),
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
	}
}

// Start launches the read and write pumps.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Conn) Incoming() <-chan []byte { return c.in }

func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	select {
	case c.send <- frame:
		c.dropped = 0
		c.mu.Unlock()
		return nil
	default:
	}
	c.dropped++
	dropped := c.dropped
	action := c.policy.OnBackpressure(c.id, dropped)
	c.mu.Unlock()

	c.logger.Warn().Int("dropped", dropped).Str("action", action.String()).Msg("send queue full")
	if action == app.CloseSlow {
		c.Close(core.CloseServerError, "send queue overflow")
	}
	return ErrBackpressure
}

// Close flushes queued frames and sends a close frame with code.
func (c *Conn) Close(code core.CloseCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.reason = reason
	close(c.done)
}

// Done is closed once Close was called.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(int(c.closeCode), c.reason)
}

func (c *Conn) dropInbound() {
	metrics.FramesDropped.Inc()
	c.logger.Warn().Msg("inbound rate exceeded")
}
