// Package moments stores server-side moments.
package moments

import (
	"context"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

// ListQuery selects a page of a user's visible moments, newest first.
type ListQuery struct {
	// After excludes everything at or before this position.
	After *api.Cursor
	// Since excludes moments submitted before it. Zero means no bound.
	Since time.Time
	Limit int
}

// Repository stores moments. Lookups of unknown ids return
// common.ErrorNotFound.
type Repository interface {
	// Create assigns Seq. A second moment with the same (UserID, ClientID)
	// fails with common.ErrorAlreadyExists.
	Create(ctx context.Context, m *models.Moment) (*models.Moment, error)
	Get(ctx context.Context, id string) (*models.Moment, error)
	GetByClientID(ctx context.Context, userID, clientID string) (*models.Moment, error)

	// List returns non-archived moments ordered by (SubmittedAt, Seq)
	// descending.
	List(ctx context.Context, userID string, q ListQuery) ([]models.Moment, error)
	// ExistsBefore reports whether any non-archived moment was submitted
	// before t.
	ExistsBefore(ctx context.Context, userID string, t time.Time) (bool, error)
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error)

	SetFavorite(ctx context.Context, id string, favorite bool, now time.Time) (*models.Moment, error)
	// SetArchived archives (at != nil) or restores (at == nil) a moment.
	SetArchived(ctx context.Context, id string, at *time.Time, now time.Time) (*models.Moment, error)

	// ClaimEnrichment marks the moment as being enriched by the caller. It
	// fails (false) when the moment is already enriched or another claim
	// newer than staleBefore holds it.
	ClaimEnrichment(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)
	// CompleteEnrichment stores the payload unless one is already present
	// and returns the stored moment either way.
	CompleteEnrichment(ctx context.Context, id, praise, action string, tags []string, now time.Time) (*models.Moment, error)
	// FailEnrichment releases a claim without a payload.
	FailEnrichment(ctx context.Context, id string) error

	// ListArchived and DeleteArchived operate on moments archived at or
	// before cutoff.
	ListArchived(ctx context.Context, userID string, cutoff time.Time) ([]models.Moment, error)
	DeleteArchived(ctx context.Context, userID string, cutoff time.Time) (int, error)
}
