package runner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
)

func (r *Runner) handleControl(ctx context.Context, payload json.RawMessage) {
	ts := r.deps.Clock.Now()
	action, err := core.DecodeAction(payload)
	if err != nil {
		r.violation(ts, control.Namespace, core.ErrInvalidJSON)
		return
	}

	var cerr *core.Error
	switch action {
	case control.ActionJoin:
		cerr = r.onJoin(ctx, payload)
	case control.ActionEnterRoom:
		cerr = r.onEnterRoom(ctx)
	case control.ActionRaiseHand, control.ActionLowerHand:
		cerr = r.onHand(ctx, action == control.ActionRaiseHand)
	case control.ActionGrantModeratorRole, control.ActionRevokeModeratorRole:
		cerr = r.onModeratorRole(ctx, payload, action == control.ActionGrantModeratorRole)
	default:
		r.violation(ts, control.Namespace, core.ErrInvalidAction)
		return
	}
	if cerr != nil {
		r.sendError(control.Namespace, ts, cerr)
	}
}

func (r *Runner) onJoin(ctx context.Context, payload json.RawMessage) *core.Error {
	if r.state != stateConnected {
		return ErrAlreadyJoined
	}
	join, err := core.Decode[control.Join](payload)
	if err != nil {
		return core.ErrInvalidJSON
	}
	r.session.DisplayName = control.DisplayName(r.session.Participant, r.session.User, join.DisplayName, r.deps.Directory)

	waiting, err := r.mustWait(ctx)
	if err != nil {
		r.fail(err)
		return nil
	}
	if waiting {
		r.enterWaitingRoom(ctx)
		return nil
	}
	r.joinRoom(ctx, r.session.Room)
	return nil
}

// mustWait decides whether the participant goes through the waiting room.
func (r *Runner) mustWait(ctx context.Context) (bool, error) {
	switch {
	case r.session.Role.IsModerator(),
		r.session.Participant.Kind == domain.KindRecorder,
		r.session.Participant.Kind == domain.KindSip:
		return false, nil
	}
	enabled, err := control.WaitingRoomEnabled(ctx, r.deps.Storage, r.session.RoomInfo)
	if err != nil || !enabled {
		return false, err
	}
	accepted, err := control.IsAccepted(ctx, r.deps.Storage, r.session.Room.Room, r.session.ID)
	if err != nil {
		return false, err
	}
	return !accepted, nil
}

func (r *Runner) onEnterRoom(ctx context.Context) *core.Error {
	if r.state != stateAccepted {
		return ErrNotAcceptedOrNotWaiting
	}
	r.joinRoom(ctx, r.session.Room)
	return nil
}

func (r *Runner) onHand(ctx context.Context, up bool) *core.Error {
	if r.state != stateJoined {
		return ErrNotYetJoined
	}
	if up {
		enabled, err := control.RaiseHandsEnabled(ctx, r.deps.Storage, r.session.Room.Room)
		if err != nil {
			r.fail(err)
			return nil
		}
		if !enabled {
			return ErrRaiseHandsDisabled
		}
	}
	r.setHand(ctx, up)
	return nil
}

// setHand stores the hand state, tells the modules and broadcasts an update.
func (r *Runner) setHand(ctx context.Context, up bool) {
	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		if err := control.SetHand(ctx, r.deps.Storage, r.session.Room, r.session.ID, up, ts); err != nil {
			r.fail(err)
			return
		}
		var ev core.Event = core.LowerHand{}
		if up {
			ev = core.RaiseHand{}
		}
		r.broadcast(ctx, ev, ts, out)
		out.Invalidate = true
	})
}

func (r *Runner) onModeratorRole(ctx context.Context, payload json.RawMessage, grant bool) *core.Error {
	if r.state != stateJoined {
		return ErrNotYetJoined
	}
	if !r.session.Role.IsModerator() {
		return core.ErrInsufficientPermissions
	}
	req, err := core.Decode[control.Target](payload)
	if err != nil {
		return core.ErrInvalidJSON
	}

	store := r.deps.Storage
	current, found, err := control.GetRole(ctx, store, r.session.Room, req.Target)
	if err != nil {
		r.fail(err)
		return nil
	}
	if !found {
		return ErrNothingToDo
	}

	var next domain.Role
	if grant {
		if current.IsModerator() {
			return ErrNothingToDo
		}
		next = domain.RoleModerator
	} else {
		owner, err := control.IsRoomOwner(ctx, store, r.session.Room, req.Target)
		if err != nil {
			r.fail(err)
			return nil
		}
		if owner {
			return ErrTargetIsRoomOwner
		}
		if !current.IsModerator() {
			return ErrNothingToDo
		}
		kinds, err := control.Kinds(ctx, store, r.session.Room)
		if err != nil {
			r.fail(err)
			return nil
		}
		next = domain.DefaultRole(domain.Participant{Kind: kinds[req.Target]}, false)
	}

	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		out.Exchange = append(out.Exchange, core.Publish{
			Key:       exchange.GlobalRoomParticipant(r.session.Room.Room, req.Target),
			Namespace: control.Namespace,
			Payload:   control.SetRoleMsg{Message: control.ExSetRole, Role: next},
		})
	})
	return nil
}

func (r *Runner) handleControlExchange(ctx context.Context, msg exchange.Message) {
	tag, err := core.DecodeMessage(msg.Payload)
	if err != nil {
		r.logger.Warn().Msg("malformed control exchange message")
		return
	}

	switch tag {
	case control.ExJoined, control.ExUpdate, control.ExLeft:
		var m control.ExchangeParticipant
		if err := json.Unmarshal(msg.Payload, &m); err != nil || m.ID == r.session.ID || r.state != stateJoined {
			return
		}
		r.onPeer(ctx, tag, m.ID)
	case control.ExSetRole:
		var m control.SetRoleMsg
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return
		}
		r.applyRole(ctx, m.Role)
	case control.ExAccepted:
		if r.state != stateWaiting {
			return
		}
		r.state = stateAccepted
		r.sendControl(r.deps.Clock.Now(), control.Msg(control.MsgAccepted))
	case control.ExRoomDeleted:
		reason := core.ExitRoomClosed
		r.exit = &reason
	}
}

// onPeer turns a peer's membership change into module events and a control
// message for the client.
func (r *Runner) onPeer(ctx context.Context, tag string, id domain.ParticipantID) {
	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		if tag == control.ExLeft {
			r.broadcast(ctx, core.ParticipantLeft{ID: id}, ts, out)
			out.WS = append([]core.Outbound{{
				Namespace: control.Namespace,
				Payload:   control.Left{Message: control.MsgLeft, ID: id},
			}}, out.WS...)
			return
		}

		state, err := control.FromStorage(ctx, r.deps.Storage, r.session.Room, id)
		if err != nil {
			r.fail(err)
			return
		}
		if !state.Visible() {
			return
		}
		participant := control.NewParticipant(id, state)
		for _, m := range r.modules {
			slot := &core.Slot{}
			var ev core.Event = core.ParticipantUpdated{ID: id, Data: slot}
			if tag == control.ExJoined {
				ev = core.ParticipantJoined{ID: id, Data: slot}
			}
			r.dispatch(ctx, m, ev, ts, out)
			if slot.Value != nil {
				participant[m.Namespace()] = slot.Value
			}
		}
		message := control.MsgUpdate
		if tag == control.ExJoined {
			message = control.MsgJoined
		}
		out.WS = append([]core.Outbound{{
			Namespace: control.Namespace,
			Payload:   participant.WithMessage(message),
		}}, out.WS...)
	})
}

// applyRole stores a role granted by a moderator. The client gets
// role_updated first; peers then see the control update.
func (r *Runner) applyRole(ctx context.Context, role domain.Role) {
	if role == r.session.Role {
		return
	}
	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		if err := control.SetRole(ctx, r.deps.Storage, r.session.Room, r.session.ID, role); err != nil {
			r.fail(err)
			return
		}
		r.session.Role = role
		r.logger.Info().Str("role", string(role)).Msg("role updated")
		out.WS = append(out.WS, core.Outbound{
			Namespace: control.Namespace,
			Payload:   control.RoleUpdatedMsg{Message: control.MsgRoleUpdated, NewRole: role},
		})
		if r.state != stateJoined {
			return
		}
		r.broadcast(ctx, core.RoleUpdated{Role: role}, ts, out)
		out.Invalidate = true
	})
}

func (r *Runner) publishUpdate(ctx context.Context, ts time.Time) {
	if r.session.Participant.Kind == domain.KindRecorder {
		return
	}
	r.publish(ctx, exchange.RoomParticipants(r.session.Room), control.Namespace, ts,
		control.ExchangeParticipant{Message: control.ExUpdate, ID: r.session.ID})
}
