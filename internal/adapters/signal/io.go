package signal

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/opentalk/internal/core"
)

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			if err := c.ws.WriteControl(websocket.CloseMessage, c.closeFrame(), time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Debug().Err(err).Msg("writePump close frame")
			}
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				c.Close(core.CloseServerError, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("writePump ping")
				return
			}
		}
	}
}

// flush writes whatever the runner queued before closing.
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(kind int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, data)
}

func (c *Conn) readPump() {
	defer func() {
		c.logger.Debug().Msg("readPump closing")
		close(c.in)
	}()

	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Err(err).Msg("readPump read error")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			c.dropInbound()
			continue
		}
		select {
		case c.in <- data:
		case <-c.done:
			return
		}
	}
}
