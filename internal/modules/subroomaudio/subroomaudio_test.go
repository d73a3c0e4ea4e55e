package subroomaudio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/modules/subroomaudio"
	"github.com/dkeye/opentalk/internal/runner/runnertest"
)

func newEnv(t *testing.T) *runnertest.Env {
	keys := auth.LiveKitKeys{APIKey: "key", APISecret: "a-secret-that-is-long-enough-for-hs256"}
	return runnertest.New(t, subroomaudio.NewBuilder(keys, 0))
}

func TestWhisperGroupLifecycle(t *testing.T) {
	env := newEnv(t)
	owner, _ := env.JoinOwner()
	bob, _ := env.JoinUser("bob", "Bob")
	guest, _ := env.JoinGuest("Gina")

	bob.Do(subroomaudio.Namespace, subroomaudio.ActionCreateWhisperGroup, map[string]any{
		"participant_ids": []string{string(guest.ID), string(owner.ID)},
	})
	created := bob.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperGroupCreated)
	whisperID := created.Payload["whisper_id"].(string)
	require.NotEmpty(t, whisperID)
	assert.Len(t, created.Payload["participants"], 3)
	token := bob.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperToken)
	assert.Equal(t, "room:whisper="+whisperID, token.Payload["room"])

	invite := guest.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperInvite)
	assert.Equal(t, string(bob.ID), invite.Payload["issuer"])
	owner.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperInvite)

	guest.Do(subroomaudio.Namespace, subroomaudio.ActionAcceptWhisperInvite, map[string]any{"whisper_id": whisperID})
	guest.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperToken)
	accepted := bob.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperInviteAccepted)
	assert.Equal(t, string(guest.ID), accepted.Payload["participant_id"])

	guest.Do(subroomaudio.Namespace, subroomaudio.ActionAcceptWhisperInvite, map[string]any{"whisper_id": whisperID})
	e := guest.Expect(t, subroomaudio.Namespace, "error")
	assert.Equal(t, "not_invited", e.Payload["error"])

	owner.Do(subroomaudio.Namespace, subroomaudio.ActionDeclineWhisperInvite, map[string]any{"whisper_id": whisperID})
	declined := bob.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperInviteDeclined)
	assert.Equal(t, string(owner.ID), declined.Payload["participant_id"])

	guest.Do(subroomaudio.Namespace, subroomaudio.ActionKickWhisperParticipants, map[string]any{
		"whisper_id": whisperID, "participant_ids": []string{string(bob.ID)},
	})
	e = guest.Expect(t, subroomaudio.Namespace, "error")
	assert.Equal(t, "insufficient_permissions", e.Payload["error"])

	bob.Do(subroomaudio.Namespace, subroomaudio.ActionKickWhisperParticipants, map[string]any{
		"whisper_id": whisperID, "participant_ids": []string{string(guest.ID)},
	})
	kicked := guest.Expect(t, subroomaudio.Namespace, subroomaudio.MsgKicked)
	assert.Equal(t, whisperID, kicked.Payload["whisper_id"])

	guest.Do(subroomaudio.Namespace, subroomaudio.ActionLeaveWhisperGroup, map[string]any{"whisper_id": whisperID})
	e = guest.Expect(t, subroomaudio.Namespace, "error")
	assert.Equal(t, "invalid_whisper_id", e.Payload["error"])
}

func TestLeavingRoomLeavesGroups(t *testing.T) {
	env := newEnv(t)
	_, _ = env.JoinOwner()
	bob, _ := env.JoinUser("bob", "Bob")
	guest, _ := env.JoinGuest("Gina")

	bob.Do(subroomaudio.Namespace, subroomaudio.ActionCreateWhisperGroup, map[string]any{"participant_ids": []string{string(guest.ID)}})
	created := bob.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperGroupCreated)
	whisperID := created.Payload["whisper_id"].(string)
	guest.Do(subroomaudio.Namespace, subroomaudio.ActionAcceptWhisperInvite, map[string]any{"whisper_id": whisperID})
	guest.Expect(t, subroomaudio.Namespace, subroomaudio.MsgWhisperToken)

	bob.Leave(t)
	left := guest.Expect(t, subroomaudio.Namespace, subroomaudio.MsgLeftWhisperGroup)
	assert.Equal(t, string(bob.ID), left.Payload["participant_id"])
}

func TestInvalidTargets(t *testing.T) {
	env := newEnv(t)
	owner, _ := env.JoinOwner()

	owner.Do(subroomaudio.Namespace, subroomaudio.ActionCreateWhisperGroup, map[string]any{"participant_ids": []string{"nobody"}})
	e := owner.Expect(t, subroomaudio.Namespace, "error")
	assert.Equal(t, "invalid_participant_targets", e.Payload["error"])

	owner.Do(subroomaudio.Namespace, subroomaudio.ActionCreateWhisperGroup, map[string]any{"participant_ids": []string{string(owner.ID)}})
	e = owner.Expect(t, subroomaudio.Namespace, "error")
	assert.Equal(t, "invalid_participant_targets", e.Payload["error"])
}
