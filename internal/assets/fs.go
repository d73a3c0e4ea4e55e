package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/domain"
)

// Dir stores every asset as two files: the content and a JSON sidecar with
// its Meta.
type Dir struct {
	root  string
	clock clock.Clock
}

var _ Store = (*Dir)(nil)

func NewDir(root string, c clock.Clock) (*Dir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}
	return &Dir{root: root, clock: c}, nil
}

func (d *Dir) dataPath(id ID) string { return filepath.Join(d.root, string(id)) }
func (d *Dir) metaPath(id ID) string { return filepath.Join(d.root, string(id)+".json") }

func (d *Dir) Put(_ context.Context, room domain.RoomID, filename, contentType string, data []byte) (Meta, error) {
	meta := Meta{
		ID:          ID(uuid.NewString()),
		Room:        room,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Created:     d.clock.Now(),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, err
	}
	if err := os.WriteFile(d.dataPath(meta.ID), data, 0o640); err != nil {
		return Meta{}, fmt.Errorf("write asset: %w", err)
	}
	if err := os.WriteFile(d.metaPath(meta.ID), raw, 0o640); err != nil {
		_ = os.Remove(d.dataPath(meta.ID))
		return Meta{}, fmt.Errorf("write asset meta: %w", err)
	}
	log.Debug().Str("module", "assets").Str("asset", string(meta.ID)).Int64("size", meta.Size).Msg("asset stored")
	return meta, nil
}

func (d *Dir) Get(_ context.Context, id ID) (Meta, []byte, error) {
	if !validID(id) {
		return Meta{}, nil, ErrNotFound
	}
	raw, err := os.ReadFile(d.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Meta{}, nil, ErrNotFound
	}
	if err != nil {
		return Meta{}, nil, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, nil, fmt.Errorf("decode asset meta: %w", err)
	}
	data, err := os.ReadFile(d.dataPath(id))
	if err != nil {
		return Meta{}, nil, fmt.Errorf("read asset: %w", err)
	}
	return meta, data, nil
}

func (d *Dir) Delete(_ context.Context, id ID) error {
	if !validID(id) {
		return ErrNotFound
	}
	err := os.Remove(d.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return os.Remove(d.dataPath(id))
}

// validID rejects ids that could escape the root.
func validID(id ID) bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}
