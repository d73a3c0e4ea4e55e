// Package assets stores generated files (vote protocols, meeting minutes,
// attendance reports) outside the signaling storage.
package assets

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
)

//go:generate mockgen -source=assets.go -destination=mock_store.go -package=assets

type ID string

var ErrNotFound = errors.New("asset not found")

// Meta describes a stored asset.
type Meta struct {
	ID          ID            `json:"id"`
	Room        domain.RoomID `json:"room"`
	Filename    string        `json:"filename"`
	ContentType string        `json:"content_type"`
	Size        int64         `json:"size"`
	Created     time.Time     `json:"created"`
}

type Store interface {
	Put(ctx context.Context, room domain.RoomID, filename, contentType string, data []byte) (Meta, error)
	Get(ctx context.Context, id ID) (Meta, []byte, error)
	Delete(ctx context.Context, id ID) error
}
