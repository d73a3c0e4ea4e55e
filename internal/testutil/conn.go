package testutil

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/opentalk/internal/core"
)

// Timeout bounds every wait in the connection helpers.
const Timeout = 3 * time.Second

// Frame is an outbound frame as the client decodes it.
type Frame struct {
	Namespace string
	Payload   map[string]any
	Raw       json.RawMessage
}

// Message returns the payload's "message" tag.
func (f Frame) Message() string {
	s, _ := f.Payload["message"].(string)
	return s
}

// FakeConn is an in-memory client connection for runner tests.
type FakeConn struct {
	in  chan []byte
	out chan []byte

	mu       sync.Mutex
	inClosed bool
	code     core.CloseCode
	closed   chan struct{}
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

func (c *FakeConn) Incoming() <-chan []byte { return c.in }

func (c *FakeConn) Send(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return errors.New("backpressure")
	}
}

func (c *FakeConn) Close(code core.CloseCode, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	c.code = code
	close(c.closed)
}

// Closed is closed once the server closed the connection.
func (c *FakeConn) Closed() <-chan struct{} { return c.closed }

func (c *FakeConn) CloseCode() core.CloseCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Disconnect simulates the client going away.
func (c *FakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inClosed {
		c.inClosed = true
		close(c.in)
	}
}

// SendRaw delivers a raw inbound frame.
func (c *FakeConn) SendRaw(raw []byte) {
	c.in <- raw
}

// Command sends {"namespace":ns,"payload":payload} to the server.
func (c *FakeConn) Command(namespace string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	frame, err := json.Marshal(core.Frame{Namespace: namespace, Payload: raw})
	if err != nil {
		panic(err)
	}
	c.in <- frame
}

// Next returns the next outbound frame.
func (c *FakeConn) Next(t T) Frame {
	t.Helper()
	raw := RequireReceive(t, (<-chan []byte)(c.out), Timeout, "waiting for outbound frame")
	return decode(t, raw)
}

// Expect skips frames until one in namespace carries message.
func (c *FakeConn) Expect(t T, namespace, message string) Frame {
	t.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case raw := <-c.out:
			f := decode(t, raw)
			if f.Namespace == namespace && f.Message() == message {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s/%s frame within %v", namespace, message, Timeout)
		}
	}
}

// ExpectNone fails if a matching frame arrives within d. Other frames are
// consumed.
func (c *FakeConn) ExpectNone(t T, namespace, message string, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case raw := <-c.out:
			f := decode(t, raw)
			if f.Namespace == namespace && f.Message() == message {
				t.Fatalf("unexpected %s/%s frame: %s", namespace, message, f.Raw)
			}
		case <-deadline:
			return
		}
	}
}

// Drain discards everything queued so far.
func (c *FakeConn) Drain() {
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

// WaitClosed waits for the server to close and returns the close code.
func (c *FakeConn) WaitClosed(t T) core.CloseCode {
	t.Helper()
	RequireClosed(t, c.closed, Timeout, "waiting for close")
	return c.CloseCode()
}

func decode(t T, raw []byte) Frame {
	t.Helper()
	var f struct {
		Namespace string          `json:"namespace"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return Frame{Namespace: f.Namespace, Payload: payload, Raw: f.Payload}
}
