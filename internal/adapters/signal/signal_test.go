package signal

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/app"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/testutil"
)

func TestTicketFromRequest(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		query  string
		want   domain.TicketToken
		ok     bool
	}{
		{name: "authorization", header: http.Header{"Authorization": {"Ticket abc"}}, want: "abc", ok: true},
		{name: "subprotocol", header: http.Header{"Sec-Websocket-Protocol": {"ticket#xyz, signaling-json-v1"}}, want: "xyz", ok: true},
		{name: "query", query: "?ticket=q1", want: "q1", ok: true},
		{name: "bearer is not a ticket", header: http.Header{"Authorization": {"Bearer abc"}}},
		{name: "missing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/signaling"+tc.query, nil)
			for k, v := range tc.header {
				r.Header[k] = v
			}
			got, ok := TicketFromRequest(r)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestKeyedLimiter(t *testing.T) {
	clk := clock.NewMock()
	l := NewKeyedLimiter(clk, 3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("10.0.0.1"), "attempt %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	clk.Add(20 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestBackpressurePolicy(t *testing.T) {
	c := NewConn(nil, "p1", app.ThresholdPolicy{Limit: 2}, Options{SendBuffer: 1})

	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrBackpressure)
	select {
	case <-c.Done():
		t.Fatal("closed after first drop")
	default:
	}

	assert.ErrorIs(t, c.Send([]byte("c")), ErrBackpressure)
	testutil.RequireClosed(t, c.Done(), testutil.Timeout, "slow client not closed")
	assert.ErrorIs(t, c.Send([]byte("d")), ErrClosed)
}

// serve starts a websocket endpoint that hands each accepted Conn to the test.
func serve(t *testing.T, opts Options) (string, <-chan *Conn) {
	t.Helper()
	conns := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r)
		if err != nil {
			return
		}
		c := NewConn(ws, "p1", nil, opts)
		c.Start()
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	header := http.Header{"Sec-Websocket-Protocol": {"ticket#t1, " + Subprotocol}}
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	assert.Equal(t, Subprotocol, resp.Header.Get("Sec-Websocket-Protocol"))
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestConnRoundTrip(t *testing.T) {
	url, conns := serve(t, DefaultOptions)
	client := dial(t, url)
	conn := testutil.RequireReceive(t, conns, testutil.Timeout, "no connection")

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"namespace":"control"}`)))
	got := testutil.RequireReceive(t, conn.Incoming(), testutil.Timeout, "no inbound frame")
	assert.JSONEq(t, `{"namespace":"control"}`, string(got))

	require.NoError(t, conn.Send([]byte(`{"namespace":"chat"}`)))
	conn.Close(core.CloseRoomClosed, "room_closed")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(testutil.Timeout)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"namespace":"chat"}`, string(data))

	_, _, err = client.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
	assert.Equal(t, int(core.CloseRoomClosed), ce.Code)
}

func TestIncomingClosesOnDisconnect(t *testing.T) {
	url, conns := serve(t, DefaultOptions)
	client := dial(t, url)
	conn := testutil.RequireReceive(t, conns, testutil.Timeout, "no connection")

	require.NoError(t, client.Close())
	deadline := time.After(testutil.Timeout)
	for {
		select {
		case _, ok := <-conn.Incoming():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("incoming not closed")
		}
	}
}

func TestInboundRateLimit(t *testing.T) {
	url, conns := serve(t, Options{InboundRate: 0.001, InboundBurst: 1})
	client := dial(t, url)
	conn := testutil.RequireReceive(t, conns, testutil.Timeout, "no connection")

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("1")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("2")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("3")))

	got := testutil.RequireReceive(t, conn.Incoming(), testutil.Timeout, "no inbound frame")
	assert.Equal(t, "1", string(got))
	select {
	case extra := <-conn.Incoming():
		t.Fatalf("frame %q passed the limiter", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r)
		if err != nil {
			return
		}
		Reject(ws, core.CloseTicketInvalid, time.Second)
	}))
	defer srv.Close()

	client := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	_, _, err := client.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
	assert.Equal(t, int(core.CloseTicketInvalid), ce.Code)
}
