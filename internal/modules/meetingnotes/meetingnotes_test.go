package meetingnotes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/modules/meetingnotes"
	"github.com/dkeye/opentalk/internal/report"
	"github.com/dkeye/opentalk/internal/runner/runnertest"
)

type fakePads struct {
	created atomic.Int32
}

func (f *fakePads) CreatePad(_ context.Context, room string) (meetingnotes.Pad, error) {
	f.created.Add(1)
	return meetingnotes.Pad{GroupID: "g." + room, PadID: "g." + room + "$notes", ReadOnlyID: "r.1"}, nil
}

func (f *fakePads) WriteURL(_ context.Context, pad meetingnotes.Pad, author, _ string) (*url.URL, error) {
	return url.Parse("https://pad.example.com/auth_session?sessionID=s." + author)
}

func (f *fakePads) ReadURL(pad meetingnotes.Pad) *url.URL {
	u, _ := url.Parse("https://pad.example.com/p/" + pad.ReadOnlyID)
	return u
}

func (f *fakePads) Text(context.Context, meetingnotes.Pad) (string, error) {
	return "# Agenda\n\n- budget\n", nil
}

func TestWritersAndReaders(t *testing.T) {
	pads := &fakePads{}
	store := assets.NewMemory(clock.NewMock())
	env := runnertest.New(t, meetingnotes.NewBuilder(pads, report.NewHTMLGenerator(), store))
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")

	guest.Do(meetingnotes.Namespace, meetingnotes.ActionSelectWriter, map[string]any{"participant_ids": []string{string(guest.ID)}})
	e := guest.Expect(t, meetingnotes.Namespace, "error")
	assert.Equal(t, "insufficient_permissions", e.Payload["error"])

	owner.Do(meetingnotes.Namespace, meetingnotes.ActionGeneratePdf, nil)
	e = owner.Expect(t, meetingnotes.Namespace, "error")
	assert.Equal(t, "not_initialized", e.Payload["error"])

	owner.Do(meetingnotes.Namespace, meetingnotes.ActionSelectWriter, map[string]any{"participant_ids": []string{string(guest.ID)}})
	write := guest.Expect(t, meetingnotes.Namespace, meetingnotes.MsgWriteURL)
	assert.Equal(t, "https://pad.example.com/auth_session?sessionID=s."+string(guest.ID), write.Payload["url"])
	read := owner.Expect(t, meetingnotes.Namespace, meetingnotes.MsgReadURL)
	assert.Equal(t, "https://pad.example.com/p/r.1", read.Payload["url"])
	assert.EqualValues(t, 1, pads.created.Load())

	_, late := env.JoinUser("bob", "Bob")
	assert.Equal(t, "https://pad.example.com/p/r.1", late.Payload[meetingnotes.Namespace].(map[string]any)["read_url"])

	owner.Do(meetingnotes.Namespace, meetingnotes.ActionDeselectWriter, map[string]any{"participant_ids": []string{string(guest.ID)}})
	read = guest.Expect(t, meetingnotes.Namespace, meetingnotes.MsgReadURL)
	assert.Equal(t, "https://pad.example.com/p/r.1", read.Payload["url"])

	owner.Do(meetingnotes.Namespace, meetingnotes.ActionGeneratePdf, nil)
	asset := guest.Expect(t, meetingnotes.Namespace, meetingnotes.MsgPdfAsset)
	assert.NotEmpty(t, asset.Payload["asset_id"])
	list := store.List(runnertest.Room)
	require.Len(t, list, 1)
	_, data, err := store.Get(context.Background(), list[0].ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<li>budget</li>")
}

func TestEtherpadWriteSession(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		calls = append(calls, method)
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		switch method {
		case "createAuthorIfNotExistsFor":
			assert.Equal(t, "p1", r.URL.Query().Get("authorMapper"))
			_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"authorID":"a.1"}}`))
		case "createSession":
			assert.Equal(t, "g.1", r.URL.Query().Get("groupID"))
			assert.Equal(t, "1772528400", r.URL.Query().Get("validUntil"))
			_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"sessionID":"s.1"}}`))
		default:
			_, _ = w.Write([]byte(`{"code":1,"message":"unknown"}`))
		}
	}))
	defer srv.Close()

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	pads := meetingnotes.NewEtherpad(base, "key", clk)

	u, err := pads.WriteURL(context.Background(), meetingnotes.Pad{GroupID: "g.1", PadID: "g.1$notes"}, "p1", "Pat")
	require.NoError(t, err)
	assert.Equal(t, "/auth_session", u.Path)
	assert.Equal(t, "s.1", u.Query().Get("sessionID"))
	assert.Equal(t, "g.1$notes", u.Query().Get("padName"))
	assert.Equal(t, []string{"createAuthorIfNotExistsFor", "createSession"}, calls)

	_, err = pads.Text(context.Background(), meetingnotes.Pad{PadID: "x"})
	assert.Error(t, err)
}

func TestEtherpadReadURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://pad.example", "http://pad.example/p/r.1"},
		{"http://pad.example/", "http://pad.example/p/r.1"},
		{"http://pad.example/etherpad", "http://pad.example/etherpad/p/r.1"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			base, err := url.Parse(tt.base)
			require.NoError(t, err)
			pads := meetingnotes.NewEtherpad(base, "key", clock.NewMock())
			assert.Equal(t, tt.want, pads.ReadURL(meetingnotes.Pad{ReadOnlyID: "r.1"}).String())
			assert.Equal(t, tt.base, base.String())
		})
	}
}
