package pagination

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/momentkeeper/internal/logging"
)

func TestPager_WalksAllPagesWithoutOverlap(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{items: remoteMoments(7)}
	r := NewResolver(lister, newRepo(t), logging.Nop())
	p := NewPager(r.Moments, 3)

	seen := map[string]bool{}
	page, err := p.First(ctx)
	require.NoError(t, err)
	for {
		for _, m := range page.Items {
			assert.False(t, seen[m.ServerID], "duplicate %s", m.ServerID)
			seen[m.ServerID] = true
		}
		if !p.HasNext() {
			break
		}
		page, err = p.Next(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, seen, 7)
	assert.Equal(t, 7, p.Loaded())
	assert.Equal(t, []string{"/3", "i3/3", "i6/3"}, lister.requests)

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrNoMorePages)
	assert.Len(t, lister.requests, 3)
}

func TestPager_LimitReachedIsSticky(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{items: remoteMoments(10), limitAt: 4}
	r := NewResolver(lister, newRepo(t), logging.Nop())
	p := NewPager(r.Moments, 3)

	_, err := p.First(ctx)
	require.NoError(t, err)
	assert.False(t, p.LimitReached())
	assert.True(t, p.HasNext())

	page, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.True(t, page.LimitReached)
	assert.True(t, p.LimitReached())
	assert.False(t, p.HasNext())

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrNoMorePages)
	assert.True(t, p.LimitReached())

	// a refresh clears the signal until a page reports it again
	lister.limitAt = 0
	_, err = p.First(ctx)
	require.NoError(t, err)
	assert.False(t, p.LimitReached())
}

func TestPager_FailedFetchKeepsPosition(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{items: remoteMoments(5)}
	r := NewResolver(lister, newRepo(t), logging.Nop())
	p := NewPager(r.Moments, 2)

	_, err := p.First(ctx)
	require.NoError(t, err)

	lister.err = assert.AnError
	_, err = p.Next(ctx)
	require.Error(t, err)

	lister.err = nil
	page, err := p.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "s2", page.Items[0].ServerID)
}

func TestPager_ConcurrentNextLoadsConsecutivePages(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{items: remoteMoments(6)}
	r := NewResolver(lister, newRepo(t), logging.Nop())
	p := NewPager(r.Moments, 2)

	_, err := p.First(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Next(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, p.Loaded())
	assert.False(t, p.HasNext())
	assert.ElementsMatch(t, []string{"/2", "i2/2", "i4/2"}, lister.requests)
}
