package livekit_test

import (
	"context"
	"testing"

	lk "github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/modules/livekit"
	"github.com/dkeye/opentalk/internal/runner/runnertest"
	"github.com/dkeye/opentalk/internal/testutil"
)

var keys = auth.LiveKitKeys{APIKey: "key", APISecret: "a-secret-that-is-long-enough-for-hs256"}

func newEnv(t *testing.T) (*runnertest.Env, *livekit.MockRoomService) {
	ctrl := gomock.NewController(t)
	svc := livekit.NewMockRoomService(ctrl)
	svc.EXPECT().RemoveParticipant(gomock.Any(), gomock.Any()).Return(&lk.RemoveParticipantResponse{}, nil).AnyTimes()
	env := runnertest.New(t, livekit.NewBuilder(livekit.Params{
		Service:   svc,
		Keys:      keys,
		PublicURL: "wss://media.example.com",
	}))
	return env, svc
}

func TestDeclinesWithoutService(t *testing.T) {
	env := runnertest.New(t, livekit.NewBuilder(livekit.Params{Keys: keys}))
	_, success := env.JoinOwner()
	_, ok := success.Payload[livekit.Namespace]
	assert.False(t, ok)
}

func TestJoinCarriesCredentials(t *testing.T) {
	env, _ := newEnv(t)
	owner, success := env.JoinOwner()

	data := success.Payload[livekit.Namespace].(map[string]any)
	creds := data["credentials"].(map[string]any)
	assert.Equal(t, string(runnertest.Room), creds["room"])
	assert.Equal(t, "wss://media.example.com", creds["public_url"])
	assert.NotEmpty(t, creds["token"])
	assert.Equal(t, "disabled", data["microphone_restriction_state"].(map[string]any)["type"])

	owner.Do(livekit.Namespace, livekit.ActionCreateNewAccessToken, nil)
	fresh := owner.Expect(t, livekit.Namespace, livekit.MsgCredentials)
	assert.NotEmpty(t, fresh.Payload["token"])

	owner.Do(livekit.Namespace, livekit.ActionRequestPopoutStreamAccessToken, nil)
	popout := owner.Expect(t, livekit.Namespace, livekit.MsgPopoutStreamAccessToken)
	assert.NotEmpty(t, popout.Payload["token"])
}

func TestMicrophoneRestrictions(t *testing.T) {
	env, svc := newEnv(t)
	updates := make(chan *lk.UpdateParticipantRequest, 8)
	svc.EXPECT().UpdateParticipant(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *lk.UpdateParticipantRequest) (*lk.ParticipantInfo, error) {
			updates <- req
			return &lk.ParticipantInfo{Identity: req.Identity}, nil
		}).AnyTimes()

	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")

	guest.Do(livekit.Namespace, livekit.ActionEnableMicrophoneRestrictions, nil)
	e := guest.Expect(t, livekit.Namespace, "error")
	assert.Equal(t, "insufficient_permissions", e.Payload["error"])

	owner.Do(livekit.Namespace, livekit.ActionEnableMicrophoneRestrictions, map[string]any{"unrestricted_participants": []string{}})
	guest.Expect(t, livekit.Namespace, livekit.MsgMicrophoneRestrictionsEnabled)
	owner.Expect(t, livekit.Namespace, livekit.MsgMicrophoneRestrictionsEnabled)

	byIdentity := map[string][]lk.TrackSource{}
	for range 2 {
		req := testutil.RequireReceive(t, (<-chan *lk.UpdateParticipantRequest)(updates), testutil.Timeout, "permission update")
		byIdentity[req.Identity] = req.Permission.CanPublishSources
	}
	assert.NotContains(t, byIdentity[string(guest.ID)], lk.TrackSource_MICROPHONE)
	assert.Contains(t, byIdentity[string(owner.ID)], lk.TrackSource_MICROPHONE)

	owner.Do(livekit.Namespace, livekit.ActionDisableMicrophoneRestrictions, nil)
	guest.Expect(t, livekit.Namespace, livekit.MsgMicrophoneRestrictionsDisabled)
}

func TestScreenShareGrant(t *testing.T) {
	env, svc := newEnv(t)
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")

	updated := make(chan *lk.UpdateParticipantRequest, 1)
	svc.EXPECT().UpdateParticipant(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *lk.UpdateParticipantRequest) (*lk.ParticipantInfo, error) {
			updated <- req
			return nil, twirp.NotFoundError("participant not connected")
		})

	owner.Do(livekit.Namespace, livekit.ActionGrantScreenSharePermission, map[string]any{"participants": []string{string(guest.ID)}})
	req := testutil.RequireReceive(t, (<-chan *lk.UpdateParticipantRequest)(updated), testutil.Timeout, "permission update")
	assert.Equal(t, string(guest.ID), req.Identity)
	assert.Contains(t, req.Permission.CanPublishSources, lk.TrackSource_SCREEN_SHARE)

	owner.Do(livekit.Namespace, livekit.ActionGrantScreenSharePermission, map[string]any{"participants": []string{}})
	e := owner.Expect(t, livekit.Namespace, "error")
	assert.Equal(t, "invalid_json", e.Payload["error"])
}

func TestForceMute(t *testing.T) {
	env, svc := newEnv(t)
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")

	svc.EXPECT().GetParticipant(gomock.Any(), &lk.RoomParticipantIdentity{Room: string(runnertest.Room), Identity: string(guest.ID)}).
		Return(&lk.ParticipantInfo{
			Identity: string(guest.ID),
			Tracks: []*lk.TrackInfo{
				{Sid: "TR_cam", Source: lk.TrackSource_CAMERA},
				{Sid: "TR_mic", Source: lk.TrackSource_MICROPHONE},
			},
		}, nil)
	svc.EXPECT().MutePublishedTrack(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *lk.MuteRoomTrackRequest) (*lk.MuteRoomTrackResponse, error) {
			assert.Equal(t, "TR_mic", req.TrackSid)
			assert.True(t, req.Muted)
			return &lk.MuteRoomTrackResponse{}, nil
		})

	owner.Do(livekit.Namespace, livekit.ActionForceMute, map[string]any{"participants": []string{string(guest.ID)}})
	muted := guest.Expect(t, livekit.Namespace, livekit.MsgForceMuted)
	assert.Equal(t, string(owner.ID), muted.Payload["moderator"])

	guest.Do(livekit.Namespace, livekit.ActionForceMute, map[string]any{"participants": []string{string(owner.ID)}})
	e := guest.Expect(t, livekit.Namespace, "error")
	require.Equal(t, "insufficient_permissions", e.Payload["error"])
}
