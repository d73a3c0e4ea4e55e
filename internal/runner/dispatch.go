package runner

import (
	"context"
	"time"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/metrics"
)

func (r *Runner) env(ctx context.Context) core.Env {
	if r.roomCtx != nil {
		ctx = r.roomCtx
	}
	return core.Env{
		Ctx:     ctx,
		Session: &r.session,
		Storage: r.deps.Storage,
		Clock:   r.deps.Clock,
		Spawner: r.deps.Spawner,
		Ext:     r.ext,
	}
}

func (r *Runner) module(namespace string) core.Module {
	for _, m := range r.modules {
		if m.Namespace() == namespace {
			return m
		}
	}
	return nil
}

// dispatch hands ev to m. Precondition errors become a module error event;
// anything else ends the session.
func (r *Runner) dispatch(ctx context.Context, m core.Module, ev core.Event, ts time.Time, out *core.Outbox) {
	mc := core.NewModuleContext(r.env(ctx), m.Namespace(), ts, out)
	err := m.OnEvent(mc, ev)
	if err == nil {
		return
	}
	if cerr, ok := core.AsError(err); ok {
		r.logger.Debug().Str("namespace", m.Namespace()).Str("error", cerr.Code).Msg("module precondition failed")
		out.WS = append(out.WS, core.Outbound{Namespace: m.Namespace(), Payload: core.ErrorPayload(cerr)})
		return
	}
	r.logger.Error().Err(err).Str("namespace", m.Namespace()).Msg("module event failed")
	r.fail(err)
}

// broadcast hands ev to every active module.
func (r *Runner) broadcast(ctx context.Context, ev core.Event, ts time.Time, out *core.Outbox) {
	for _, m := range r.modules {
		r.dispatch(ctx, m, ev, ts, out)
	}
}

// tick runs one event cycle: handler, then the flush of its effects.
func (r *Runner) tick(ctx context.Context, fn func(ts time.Time, out *core.Outbox)) {
	ts := r.deps.Clock.Now()
	var out core.Outbox
	fn(ts, &out)
	r.flush(ctx, ts, &out)
}

// flush applies queued effects in order: websocket sends, exchange
// publishes, hand reset, invalidation, then transitions.
func (r *Runner) flush(ctx context.Context, ts time.Time, out *core.Outbox) {
	for _, o := range out.WS {
		r.send(o.Namespace, ts, o.Payload)
	}
	for _, p := range out.Exchange {
		r.publish(ctx, p.Key, p.Namespace, ts, p.Payload)
	}
	if out.ResetHand && r.state == stateJoined {
		r.setHand(ctx, false)
	} else if out.Invalidate && r.state == stateJoined {
		r.publishUpdate(ctx, ts)
	}
	switch {
	case out.Exit != nil:
		r.exit = out.Exit
	case out.WaitingRoom && r.state == stateJoined:
		r.backToWaitingRoom(ctx)
	case out.SwitchTo != nil && r.state == stateJoined && *out.SwitchTo != r.session.Room:
		r.switchRoom(ctx, *out.SwitchTo)
	}
}

func (r *Runner) send(namespace string, ts time.Time, payload any) {
	frame, err := core.EncodeFrame(namespace, ts, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("namespace", namespace).Msg("encode frame")
		return
	}
	if err := r.conn.Send(frame); err != nil {
		metrics.FramesDropped.Inc()
		r.logger.Warn().Err(err).Str("namespace", namespace).Msg("send frame")
	}
}

func (r *Runner) sendControl(ts time.Time, payload any) {
	r.send(control.Namespace, ts, payload)
}

func (r *Runner) sendError(namespace string, ts time.Time, e *core.Error) {
	r.send(namespace, ts, core.ErrorPayload(e))
}

func (r *Runner) publish(ctx context.Context, key, namespace string, ts time.Time, payload any) {
	msg, err := exchange.NewMessage(namespace, ts, payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode exchange payload")
		return
	}
	if err := r.deps.Exchange.Publish(ctx, key, msg); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("exchange publish")
	}
}

func (r *Runner) handleFrame(ctx context.Context, raw []byte) {
	ts := r.deps.Clock.Now()
	frame, err := core.DecodeFrame(raw)
	if err != nil {
		r.violation(ts, control.Namespace, core.ErrInvalidJSON)
		return
	}
	metrics.FramesReceived.WithLabelValues(frame.Namespace).Inc()

	if frame.Namespace == control.Namespace {
		r.handleControl(ctx, frame.Payload)
		return
	}
	if r.state != stateJoined {
		r.sendError(control.Namespace, ts, ErrNotYetJoined)
		return
	}
	m := r.module(frame.Namespace)
	if m == nil {
		r.violation(ts, control.Namespace, ErrInvalidNamespace)
		return
	}
	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		r.dispatch(ctx, m, core.WsMessage{Payload: frame.Payload}, ts, out)
	})
}

func (r *Runner) violation(ts time.Time, namespace string, e *core.Error) {
	r.sendError(namespace, ts, e)
	r.violations++
	if r.violations > r.deps.Options.MaxViolations {
		r.logger.Warn().Int("violations", r.violations).Msg("too many protocol violations")
		reason := core.ExitServerError
		r.exit = &reason
	}
}

func (r *Runner) handleExchange(ctx context.Context, d exchange.Delivery) {
	msg := d.Message
	if msg.Module == control.Namespace {
		r.handleControlExchange(ctx, msg)
		return
	}
	if r.state != stateJoined {
		return
	}
	m := r.module(msg.Module)
	if m == nil {
		return
	}
	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		r.dispatch(ctx, m, core.ExchangeMessage{Key: d.Key, Timestamp: msg.Timestamp, Payload: msg.Payload}, ts, out)
	})
}

func (r *Runner) handleExt(ctx context.Context, ev core.ExtEvent) {
	if r.state != stateJoined {
		return
	}
	m := r.module(ev.Namespace)
	if m == nil {
		r.logger.Debug().Str("namespace", ev.Namespace).Msg("ext event for inactive module")
		return
	}
	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		r.dispatch(ctx, m, core.Ext{Value: ev.Value}, ts, out)
	})
}
