package assets

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	c := clock.NewMock()
	c.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	dir, err := NewDir(t.TempDir(), c)
	require.NoError(t, err)
	return map[string]Store{"memory": NewMemory(c), "dir": dir}
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			meta, err := s.Put(ctx, "room", "protocol.html", "text/html", []byte("<h1>Vote</h1>"))
			require.NoError(t, err)
			assert.Equal(t, int64(13), meta.Size)
			assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), meta.Created.UTC())

			got, data, err := s.Get(ctx, meta.ID)
			require.NoError(t, err)
			assert.Equal(t, "protocol.html", got.Filename)
			assert.Equal(t, "<h1>Vote</h1>", string(data))

			require.NoError(t, s.Delete(ctx, meta.ID))
			_, _, err = s.Get(ctx, meta.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, meta.ID), ErrNotFound)
		})
	}
}

func TestDir_RejectsPathIDs(t *testing.T) {
	s := stores(t)["dir"]
	_, _, err := s.Get(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}
