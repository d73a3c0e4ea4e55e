package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/exchange"
)

var wireTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// RoundTripIncoming sends v as a client frame of namespace and decodes it
// the way a runner does, including validation.
func RoundTripIncoming[V any](t *testing.T, namespace string, v V) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]any{"namespace": namespace, "payload": json.RawMessage(payload)})
	require.NoError(t, err)

	frame, err := core.DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, namespace, frame.Namespace)
	got, err := core.Decode[V](frame.Payload)
	require.NoError(t, err, string(payload))
	assert.Equal(t, v, got)
}

// RoundTripOutgoing encodes v into a server frame and decodes it back.
func RoundTripOutgoing[V any](t *testing.T, namespace string, v V) {
	t.Helper()
	raw, err := core.EncodeFrame(namespace, wireTime, v)
	require.NoError(t, err)

	var frame core.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, namespace, frame.Namespace)
	assert.True(t, wireTime.Equal(frame.Timestamp))
	var got V
	require.NoError(t, json.Unmarshal(frame.Payload, &got), string(frame.Payload))
	assert.Equal(t, v, got)
}

// RoundTripExchange carries v in an exchange message, serialized as the
// Redis relay does, and decodes it back.
func RoundTripExchange[V any](t *testing.T, module string, v V) {
	t.Helper()
	msg, err := exchange.NewMessage(module, wireTime, v)
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var back exchange.Message
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, module, back.Module)
	var got V
	require.NoError(t, json.Unmarshal(back.Payload, &got), string(back.Payload))
	assert.Equal(t, v, got)
}

// RoundTripError checks that e reaches the client as the error message of
// namespace.
func RoundTripError(t *testing.T, namespace string, e *core.Error) {
	t.Helper()
	RoundTripOutgoing(t, namespace, core.ErrorPayload(e))
	raw, err := core.EncodeFrame(namespace, wireTime, core.ErrorPayload(e))
	require.NoError(t, err)
	var frame core.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	message, err := core.DecodeMessage(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, "error", message)
}
