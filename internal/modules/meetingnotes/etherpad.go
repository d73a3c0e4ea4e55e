package meetingnotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
)

// Pad identifies the notes pad of a room on the pad service.
type Pad struct {
	GroupID    string `json:"group_id"`
	PadID      string `json:"pad_id"`
	ReadOnlyID string `json:"readonly_id"`
}

// Pads is the collaborative editor that hosts the notes.
type Pads interface {
	CreatePad(ctx context.Context, room string) (Pad, error)
	// WriteURL opens an editing session for author on pad.
	WriteURL(ctx context.Context, pad Pad, author, name string) (*url.URL, error)
	ReadURL(pad Pad) *url.URL
	Text(ctx context.Context, pad Pad) (string, error)
}

const etherpadAPIVersion = "1.2.15"

// Etherpad talks to an Etherpad instance over its HTTP API. Write sessions
// are opened through the instance's auth_session endpoint.
type Etherpad struct {
	base       *url.URL
	apiKey     string
	client     *http.Client
	clock      clock.Clock
	sessionTTL time.Duration
}

func NewEtherpad(base *url.URL, apiKey string, clk clock.Clock) *Etherpad {
	// JoinPath on an empty path yields a relative reference.
	root := *base
	if root.Path == "" {
		root.Path = "/"
	}
	return &Etherpad{
		base:       &root,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		clock:      clk,
		sessionTTL: 24 * time.Hour,
	}
}

type etherpadResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *Etherpad) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("apikey", e.apiKey)
	u := e.base.JoinPath("api", etherpadAPIVersion, method)
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("etherpad %s: %w", method, err)
	}
	defer resp.Body.Close()
	var r etherpadResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("etherpad %s: decode: %w", method, err)
	}
	if r.Code != 0 {
		return fmt.Errorf("etherpad %s: %s", method, r.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}

func (e *Etherpad) CreatePad(ctx context.Context, room string) (Pad, error) {
	var group struct {
		GroupID string `json:"groupID"`
	}
	if err := e.call(ctx, "createGroupIfNotExistsFor", url.Values{"groupMapper": {room}}, &group); err != nil {
		return Pad{}, err
	}
	var pad struct {
		PadID string `json:"padID"`
	}
	if err := e.call(ctx, "createGroupPad", url.Values{"groupID": {group.GroupID}, "padName": {"meeting_notes"}}, &pad); err != nil {
		return Pad{}, err
	}
	var ro struct {
		ReadOnlyID string `json:"readOnlyID"`
	}
	if err := e.call(ctx, "getReadOnlyID", url.Values{"padID": {pad.PadID}}, &ro); err != nil {
		return Pad{}, err
	}
	return Pad{GroupID: group.GroupID, PadID: pad.PadID, ReadOnlyID: ro.ReadOnlyID}, nil
}

func (e *Etherpad) WriteURL(ctx context.Context, pad Pad, author, name string) (*url.URL, error) {
	var a struct {
		AuthorID string `json:"authorID"`
	}
	if err := e.call(ctx, "createAuthorIfNotExistsFor", url.Values{"authorMapper": {author}, "name": {name}}, &a); err != nil {
		return nil, err
	}
	validUntil := e.clock.Now().Add(e.sessionTTL).Unix()
	var s struct {
		SessionID string `json:"sessionID"`
	}
	if err := e.call(ctx, "createSession", url.Values{
		"groupID":    {pad.GroupID},
		"authorID":   {a.AuthorID},
		"validUntil": {strconv.FormatInt(validUntil, 10)},
	}, &s); err != nil {
		return nil, err
	}
	u := e.base.JoinPath("auth_session")
	u.RawQuery = url.Values{"sessionID": {s.SessionID}, "padName": {pad.PadID}}.Encode()
	return u, nil
}

func (e *Etherpad) ReadURL(pad Pad) *url.URL {
	return e.base.JoinPath("p", pad.ReadOnlyID)
}

func (e *Etherpad) Text(ctx context.Context, pad Pad) (string, error) {
	var t struct {
		Text string `json:"text"`
	}
	if err := e.call(ctx, "getText", url.Values{"padID": {pad.PadID}}, &t); err != nil {
		return "", err
	}
	return t.Text, nil
}
