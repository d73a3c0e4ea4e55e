package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/metrics"
	"github.com/dkeye/opentalk/internal/storage"
)

func globalParticipantsKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, "all_participants")
}

func (r *Runner) lockRoom(ctx context.Context, room domain.SignalingRoomID) (storage.Unlocker, error) {
	start := time.Now()
	u, err := storage.LockRoom(ctx, r.deps.Storage, room, r.deps.Options.RoomLockTimeout)
	metrics.LockWait.WithLabelValues("room").Observe(time.Since(start).Seconds())
	return u, err
}

// joinRoom attaches the participant to room. Everything up to join_success
// happens under the room lock.
func (r *Runner) joinRoom(ctx context.Context, room domain.SignalingRoomID) {
	if err := r.attach(ctx, room); err != nil {
		r.fail(fmt.Errorf("join %s: %w", room, err))
	}
}

func (r *Runner) attach(ctx context.Context, room domain.SignalingRoomID) error {
	store := r.deps.Storage
	ts := r.deps.Clock.Now()
	r.session.Room = room

	// Subscribe before the membership becomes visible so no peer event is
	// missed.
	r.roomKeys = r.roomKeys[:0]
	for _, k := range exchange.SessionKeys(room, r.session.ID, r.session.Participant) {
		// The parent-room keys stay subscribed for the whole session.
		if k == exchange.GlobalRoomParticipants(room.Room) || k == exchange.GlobalRoomParticipant(room.Room, r.session.ID) {
			continue
		}
		r.roomKeys = append(r.roomKeys, k)
	}
	r.sub.Add(r.roomKeys...)

	lock, err := r.lockRoom(ctx, room)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn().Err(err).Msg("release room lock")
		}
	}()

	if err := storage.AddParticipant(ctx, store, room, r.session.ID); err != nil {
		return err
	}
	// From here on the leave path must run, whatever fails below.
	r.state = stateJoined
	if !r.everJoined {
		if err := store.SAdd(ctx, globalParticipantsKey(room.Room), string(r.session.ID)); err != nil {
			return err
		}
		r.everJoined = true
	}

	p := r.session.Participant
	attrs := control.JoinAttributes{
		DisplayName: r.session.DisplayName,
		Role:        r.session.Role,
		Kind:        p.Kind,
		IsRoomOwner: r.session.IsRoomOwner,
		JoinedAt:    ts,
	}
	if r.session.User != nil {
		attrs.AvatarURL = r.session.User.AvatarURL
	}
	if err := control.WriteJoin(storage.NewAttributeBatch(room), r.session.ID, attrs).Exec(ctx, store); err != nil {
		return err
	}
	if err := control.RemoveFromWaitingList(ctx, store, room.Room, r.session.ID); err != nil {
		return err
	}

	r.roomCtx, r.roomCancel = context.WithCancel(ctx)
	if err := r.initModules(ctx); err != nil {
		return err
	}

	self, err := control.FromStorage(ctx, store, room, r.session.ID)
	if err != nil {
		return err
	}
	peers, peerStates, err := r.visiblePeers(ctx, room)
	if err != nil {
		return err
	}

	var out core.Outbox
	frontend := make(map[string]any)
	participants := make(map[domain.ParticipantID]control.Participant, len(peers))
	for _, id := range peers {
		participants[id] = control.NewParticipant(id, peerStates[id])
	}
	for _, m := range r.modules {
		slots := make(map[domain.ParticipantID]*core.Slot, len(peers))
		for _, id := range peers {
			slots[id] = &core.Slot{}
		}
		own := &core.Slot{}
		r.dispatch(ctx, m, core.Joined{Control: self, Frontend: own, Participants: slots}, ts, &out)
		if own.Value != nil {
			frontend[m.Namespace()] = own.Value
		}
		for id, slot := range slots {
			if slot.Value != nil {
				participants[id][m.Namespace()] = slot.Value
			}
		}
	}
	list := make([]control.Participant, 0, len(peers))
	for _, id := range peers {
		list = append(list, participants[id])
	}
	r.sendControl(ts, control.JoinSuccess{
		Message:      control.MsgJoinSuccess,
		ID:           r.session.ID,
		DisplayName:  self.DisplayName,
		AvatarURL:    self.AvatarURL,
		Role:         r.session.Role,
		Tariff:       r.session.Tariff,
		Participants: list,
		EventInfo:    r.eventInfo,
		RoomInfo:     r.session.RoomInfo,
		IsRoomOwner:  r.session.IsRoomOwner,
		Modules:      frontend,
	})
	r.logger.Info().Str("room", room.String()).Int("peers", len(peers)).Msg("joined")

	if p.Kind != domain.KindRecorder {
		out.Exchange = append([]core.Publish{{
			Key:       exchange.RoomParticipants(room),
			Namespace: control.Namespace,
			Payload:   control.ExchangeParticipant{Message: control.ExJoined, ID: r.session.ID},
		}}, out.Exchange...)
	}
	r.flush(ctx, ts, &out)
	return nil
}

func (r *Runner) initModules(ctx context.Context) error {
	r.modules = r.modules[:0]
	for _, b := range r.deps.Builders {
		if !r.session.Tariff.Allows(b.Namespace()) {
			continue
		}
		m, err := b.Init(core.NewInitContext(r.env(ctx)))
		if err != nil {
			return fmt.Errorf("init %s: %w", b.Namespace(), err)
		}
		if m == nil {
			r.logger.Debug().Str("namespace", b.Namespace()).Msg("module declined")
			continue
		}
		r.modules = append(r.modules, m)
	}
	return nil
}

// visiblePeers lists the other participants of room that peers may see.
func (r *Runner) visiblePeers(ctx context.Context, room domain.SignalingRoomID) ([]domain.ParticipantID, map[domain.ParticipantID]control.State, error) {
	ids, err := storage.Participants(ctx, r.deps.Storage, room)
	if err != nil {
		return nil, nil, err
	}
	out := make([]domain.ParticipantID, 0, len(ids))
	states := make(map[domain.ParticipantID]control.State, len(ids))
	for _, id := range ids {
		if id == r.session.ID {
			continue
		}
		s, err := control.FromStorage(ctx, r.deps.Storage, room, id)
		if err != nil {
			return nil, nil, err
		}
		if !s.Visible() {
			continue
		}
		out = append(out, id)
		states[id] = s
	}
	return out, states, nil
}

// detach is the leave path. final is set when the session ends rather than
// moving to another room. It runs to completion even when ctx is cancelled.
func (r *Runner) detach(ctx context.Context, final bool) {
	ctx = context.WithoutCancel(ctx)
	store := r.deps.Storage
	room := r.session.Room

	r.tick(ctx, func(ts time.Time, out *core.Outbox) {
		r.broadcast(ctx, core.Leaving{}, ts, out)
		// Transitions requested while leaving are ignored.
		out.Exit, out.SwitchTo, out.WaitingRoom = nil, nil, false
	})

	ts := r.deps.Clock.Now()
	lock, err := r.lockRoom(ctx, room)
	if err != nil {
		r.logger.Error().Err(err).Msg("leave without room lock")
	}

	remaining, err := storage.RemoveParticipant(ctx, store, room, r.session.ID)
	if err != nil {
		r.logger.Error().Err(err).Msg("remove participant")
	}
	if err := control.SetLeftAt(ctx, store, room, r.session.ID, ts); err != nil {
		r.logger.Error().Err(err).Msg("write left_at")
	}

	last := err == nil && remaining == 0
	lastGlobal := false
	if final && r.everJoined {
		key := globalParticipantsKey(room.Room)
		if err := store.SRem(ctx, key, string(r.session.ID)); err != nil {
			r.logger.Error().Err(err).Msg("remove from room-wide set")
		} else if n, err := store.SCard(ctx, key); err == nil && n == 0 {
			lastGlobal = true
		}
	}

	if r.roomCancel != nil {
		r.roomCancel()
	}
	for _, m := range r.modules {
		r.destroy(ctx, m, last, lastGlobal)
	}
	r.modules = r.modules[:0]

	if last {
		if err := storage.RemoveRoomAttributes(ctx, store, room, storage.ScopeLocal); err != nil {
			r.logger.Error().Err(err).Msg("purge local attributes")
		}
	}
	if lastGlobal {
		if err := storage.RemoveRoomAttributes(ctx, store, room, storage.ScopeGlobal); err != nil {
			r.logger.Error().Err(err).Msg("purge global attributes")
		}
		if err := control.PurgeWaitingRoom(ctx, store, room.Room); err != nil {
			r.logger.Error().Err(err).Msg("purge waiting room")
		}
	}

	if lock != nil {
		if err := lock.Unlock(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("release room lock")
		}
	}

	if r.session.Participant.Kind != domain.KindRecorder {
		r.publish(ctx, exchange.RoomParticipants(room), control.Namespace, ts,
			control.ExchangeParticipant{Message: control.ExLeft, ID: r.session.ID})
	}
	r.sub.Remove(r.roomKeys...)
	r.roomKeys = nil
	r.roomCtx, r.roomCancel = nil, nil
	r.state = stateConnected
	r.logger.Info().Str("room", room.String()).Bool("last", last).Msg("left")
}

// destroy calls OnDestroy, retrying once on a transient storage failure.
// Failures are logged and never stop the leave path.
func (r *Runner) destroy(ctx context.Context, m core.Module, last, lastGlobal bool) {
	dc := core.NewDestroyContext(r.env(ctx), last, lastGlobal)
	err := m.OnDestroy(dc)
	if err != nil && errors.Is(err, storage.ErrTransient) {
		err = m.OnDestroy(dc)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("namespace", m.Namespace()).Msg("module destroy failed")
	}
}

func (r *Runner) switchRoom(ctx context.Context, target domain.SignalingRoomID) {
	r.logger.Info().Str("from", r.session.Room.String()).Str("to", target.String()).Msg("switching room")
	r.detach(ctx, false)
	r.joinRoom(ctx, target)
}

func (r *Runner) enterWaitingRoom(ctx context.Context) {
	store := r.deps.Storage
	room := r.session.Room.Room
	if err := control.AddToWaitingList(ctx, store, room, r.session.ID); err != nil {
		r.fail(err)
		return
	}
	r.state = stateWaiting
	ts := r.deps.Clock.Now()
	r.sendControl(ts, control.Msg(control.MsgInWaitingRoom))

	state := control.State{
		DisplayName:       r.session.DisplayName,
		Role:              r.session.Role,
		ParticipationKind: r.session.Participant.Kind,
		JoinedAt:          ts,
		HandUpdatedAt:     ts,
	}
	if r.session.User != nil {
		state.AvatarURL = r.session.User.AvatarURL
	}
	r.publish(ctx, exchange.GlobalRoomParticipants(room), control.ModerationNamespace, ts,
		control.WaitingRoomEvent{Message: control.ExJoinedWaitingRoom, ID: r.session.ID, Control: &state})
	r.logger.Info().Msg("waiting for admission")
}

func (r *Runner) leaveWaitingRoom(ctx context.Context) {
	room := r.session.Room.Room
	if err := control.RemoveFromWaitingList(ctx, r.deps.Storage, room, r.session.ID); err != nil {
		r.logger.Error().Err(err).Msg("remove from waiting list")
	}
	r.publish(ctx, exchange.GlobalRoomParticipants(room), control.ModerationNamespace, r.deps.Clock.Now(),
		control.WaitingRoomEvent{Message: control.ExLeftWaitingRoom, ID: r.session.ID})
}

// backToWaitingRoom leaves the room and waits for a new admission.
func (r *Runner) backToWaitingRoom(ctx context.Context) {
	r.detach(ctx, false)
	parent := r.session.Room.ParentRoom()
	r.session.Room = parent
	if err := control.RevokeAccepted(ctx, r.deps.Storage, parent.Room, r.session.ID); err != nil {
		r.fail(err)
		return
	}
	r.enterWaitingRoom(ctx)
}

// teardown runs when the session ends for any reason.
func (r *Runner) teardown(ctx context.Context) {
	switch r.state {
	case stateJoined:
		r.detach(ctx, true)
		return
	case stateWaiting, stateAccepted:
		r.leaveWaitingRoom(ctx)
	}
	r.settleGlobal(ctx)
}

// settleGlobal drops the participant from the room-wide set when it ends the
// session outside of a room, e.g. after being sent to the waiting room.
func (r *Runner) settleGlobal(ctx context.Context) {
	if !r.everJoined {
		return
	}
	store := r.deps.Storage
	key := globalParticipantsKey(r.session.Room.Room)
	member, err := store.SIsMember(ctx, key, string(r.session.ID))
	if err != nil || !member {
		return
	}
	if err := store.SRem(ctx, key, string(r.session.ID)); err != nil {
		r.logger.Error().Err(err).Msg("remove from room-wide set")
	}
}
