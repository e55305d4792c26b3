package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
	"github.com/dmitrijs2005/momentkeeper/internal/client/repositories/moments"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
)

// fakeLister serves a fixed, newest-first list in pages addressed by index
// cursors.
type fakeLister struct {
	items    []api.Moment
	limitAt  int
	requests []string
	err      error
}

func (f *fakeLister) ListMoments(_ context.Context, cursor string, limit int) (api.Page[api.Moment], error) {
	f.requests = append(f.requests, fmt.Sprintf("%s/%d", cursor, limit))
	if f.err != nil {
		return api.Page[api.Moment]{}, f.err
	}
	start := 0
	if cursor != "" {
		_, _ = fmt.Sscanf(cursor, "i%d", &start)
	}
	end := min(start+limit, len(f.items))
	limitReached := false
	if f.limitAt > 0 && end >= f.limitAt {
		end = f.limitAt
		limitReached = true
	}

	page := api.Page[api.Moment]{Data: f.items[start:end], LimitReached: limitReached}
	if end < len(f.items) && !limitReached {
		next := fmt.Sprintf("i%d", end)
		page.NextCursor = &next
		page.HasNextPage = true
	}
	return page, nil
}

func (f *fakeLister) ListTimeline(_ context.Context, cursor string, limit int) (api.Page[api.TimelineEntry], error) {
	f.requests = append(f.requests, fmt.Sprintf("timeline:%s/%d", cursor, limit))
	praise := "Nice"
	return api.Page[api.TimelineEntry]{
		Data: []api.TimelineEntry{{MomentID: "s1", Text: "one", Praise: &praise, Day: "2026-10-01"}},
	}, nil
}

func remoteMoments(n int) []api.Moment {
	base := time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)
	out := make([]api.Moment, n)
	for i := range out {
		cid := fmt.Sprintf("c%d", i)
		at := base.Add(-time.Duration(i) * time.Hour)
		out[i] = api.Moment{
			ID:          fmt.Sprintf("s%d", i),
			ClientID:    &cid,
			Text:        fmt.Sprintf("moment %d", i),
			SubmittedAt: at,
			HappenedAt:  at,
			UpdatedAt:   at,
		}
	}
	return out
}

func newRepo(t *testing.T) *moments.Repository {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return moments.NewRepository(db, logging.Nop())
}

func TestResolver_MomentsMergesIntoRepository(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	lister := &fakeLister{items: remoteMoments(3)}
	r := NewResolver(lister, repo, logging.Nop())

	page, err := r.Moments(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.False(t, page.HasNextPage)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// a second load must not duplicate anything
	_, err = r.Moments(ctx, "", 10)
	require.NoError(t, err)
	all, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResolver_MergesOntoLocalByClientID(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	items := remoteMoments(1)

	local := models.Moment{
		ClientID:    "c0",
		Text:        items[0].Text,
		SubmittedAt: items[0].SubmittedAt,
		HappenedAt:  items[0].HappenedAt,
		Enrichment:  models.NotEnriched(),
	}
	require.NoError(t, repo.Create(ctx, &local))

	r := NewResolver(&fakeLister{items: items}, repo, logging.Nop())
	page, err := r.Moments(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c0", page.Items[0].ClientID)
	assert.Equal(t, "s0", page.Items[0].ServerID)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolver_ClampsLimit(t *testing.T) {
	lister := &fakeLister{items: remoteMoments(1)}
	r := NewResolver(lister, newRepo(t), logging.Nop())

	_, err := r.Moments(context.Background(), "", 1000)
	require.NoError(t, err)
	_, err = r.Moments(context.Background(), "", 0)
	require.NoError(t, err)
	_, err = r.Timeline(context.Background(), "", -5)
	require.NoError(t, err)

	assert.Equal(t, []string{"/100", "/20", "timeline:/1"}, lister.requests)
}

func TestResolver_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(&fakeLister{err: boom}, newRepo(t), logging.Nop())
	_, err := r.Moments(context.Background(), "", 10)
	assert.ErrorIs(t, err, boom)
}

func TestResolver_Timeline(t *testing.T) {
	r := NewResolver(&fakeLister{}, newRepo(t), logging.Nop())
	page, err := r.Timeline(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "2026-10-01", page.Items[0].Day)
	assert.Empty(t, page.NextCursor)
}
