// Package pagination fetches cursor-paginated listings from the remote
// service, merges moment pages into the local repository and tracks the
// forward pagination state including the tier limit signal.
package pagination

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
)

// Page is one resolved page.
type Page[T any] struct {
	Items       []T
	NextCursor  string
	HasNextPage bool
	// LimitReached is set when the caller's tier hides older data.
	LimitReached bool
}

// Lister is the part of the remote client the resolver needs.
type Lister interface {
	ListMoments(ctx context.Context, cursor string, limit int) (api.Page[api.Moment], error)
	ListTimeline(ctx context.Context, cursor string, limit int) (api.Page[api.TimelineEntry], error)
}

// Merger stores remote moments locally.
type Merger interface {
	MergeRemote(ctx context.Context, remote api.Moment) (models.Moment, bool, error)
}

type Resolver struct {
	remote Lister
	repo   Merger
	log    logging.Logger
}

func NewResolver(remote Lister, repo Merger, log logging.Logger) *Resolver {
	return &Resolver{remote: remote, repo: repo, log: log.With("module", "pagination")}
}

// Moments fetches one page of moments, newest first, and merges every item
// into the local repository by serverId, then by clientId. The returned
// items are the merged local records.
func (r *Resolver) Moments(ctx context.Context, cursor string, limit int) (Page[models.Moment], error) {
	limit = api.ClampPageSize(limit)

	resp, err := r.remote.ListMoments(ctx, cursor, limit)
	if err != nil {
		return Page[models.Moment]{}, err
	}

	// the response has arrived; store it even if ctx ends now
	wctx := context.WithoutCancel(ctx)
	items := make([]models.Moment, 0, len(resp.Data))
	for _, rm := range resp.Data {
		m, _, err := r.repo.MergeRemote(wctx, rm)
		if errors.Is(err, models.ErrIdentityMismatch) {
			r.log.Warn(ctx, "skipping listed moment with conflicting identity", "server_id", rm.ID)
			continue
		}
		if err != nil {
			return Page[models.Moment]{}, err
		}
		items = append(items, m)
	}

	return Page[models.Moment]{
		Items:        items,
		NextCursor:   deref(resp.NextCursor),
		HasNextPage:  resp.HasNextPage,
		LimitReached: resp.LimitReached,
	}, nil
}

// Timeline fetches one page of timeline entries. Entries are a read-only
// projection and are not stored locally.
func (r *Resolver) Timeline(ctx context.Context, cursor string, limit int) (Page[api.TimelineEntry], error) {
	resp, err := r.remote.ListTimeline(ctx, cursor, api.ClampPageSize(limit))
	if err != nil {
		return Page[api.TimelineEntry]{}, err
	}
	return Page[api.TimelineEntry]{
		Items:        resp.Data,
		NextCursor:   deref(resp.NextCursor),
		HasNextPage:  resp.HasNextPage,
		LimitReached: resp.LimitReached,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
