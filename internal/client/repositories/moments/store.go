package moments

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
)

var (
	ErrNotFound     = errors.New("moment not found")
	ErrDuplicateKey = errors.New("moment key already exists")
)

// Filter narrows Store.List. The zero value selects every non-archived
// moment, newest first.
type Filter struct {
	// Archived selects archived moments instead of visible ones.
	Archived bool
	// All ignores the archive state.
	All bool
	// Pending selects moments with outstanding sync work, oldest first.
	Pending bool
	Limit   int
}

// Store is the local durable storage contract for moments.
type Store interface {
	// Insert adds a new moment and assigns its Seq.
	Insert(ctx context.Context, m *models.Moment) error

	// Get returns a moment by clientId or ErrNotFound.
	Get(ctx context.Context, clientID string) (models.Moment, error)

	// GetByServerID returns a moment by serverId or ErrNotFound.
	GetByServerID(ctx context.Context, serverID string) (models.Moment, error)

	// Save overwrites every mutable column of an existing moment.
	Save(ctx context.Context, m models.Moment) error

	List(ctx context.Context, f Filter) ([]models.Moment, error)

	// Delete removes a moment physically.
	Delete(ctx context.Context, clientID string) error

	// DeletePurgeable removes archived moments that are acknowledged
	// remotely or were never uploaded.
	DeletePurgeable(ctx context.Context) (int, error)

	Clear(ctx context.Context) error
}
