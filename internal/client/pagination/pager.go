package pagination

import (
	"context"
	"errors"
	"sync"
)

// ErrNoMorePages is returned by Pager.Next after the last page.
var ErrNoMorePages = errors.New("no more pages")

// FetchFunc loads the page after cursor; an empty cursor means the first
// page.
type FetchFunc[T any] func(ctx context.Context, cursor string, limit int) (Page[T], error)

// Pager walks a listing forward. Calls are serialized, so two concurrent
// "load more" requests load two consecutive pages instead of the same one
// twice.
type Pager[T any] struct {
	fetch FetchFunc[T]
	limit int

	mu           sync.Mutex
	cursor       string
	hasNext      bool
	limitReached bool
	loaded       int
}

func NewPager[T any](fetch FetchFunc[T], limit int) *Pager[T] {
	return &Pager[T]{fetch: fetch, limit: limit, hasNext: true}
}

// First resets the pager and loads the first page.
func (p *Pager[T]) First(ctx context.Context) (Page[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	page, err := p.fetch(ctx, "", p.limit)
	if err != nil {
		return Page[T]{}, err
	}
	p.cursor = ""
	p.limitReached = false
	p.loaded = 0
	p.advance(page)
	return page, nil
}

// Next loads the page after the last one. No request is made once the
// listing is exhausted.
func (p *Pager[T]) Next(ctx context.Context) (Page[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasNext {
		return Page[T]{}, ErrNoMorePages
	}
	page, err := p.fetch(ctx, p.cursor, p.limit)
	if err != nil {
		return Page[T]{}, err
	}
	p.advance(page)
	return page, nil
}

func (p *Pager[T]) advance(page Page[T]) {
	p.loaded += len(page.Items)
	p.hasNext = page.HasNextPage && page.NextCursor != ""
	if p.hasNext {
		p.cursor = page.NextCursor
	}
	if page.LimitReached {
		p.limitReached = true
	}
}

// HasNext reports whether Next would make a request.
func (p *Pager[T]) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasNext
}

// LimitReached reports whether any loaded page signalled the tier limit.
func (p *Pager[T]) LimitReached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limitReached
}

// Loaded returns the number of items loaded since the last First.
func (p *Pager[T]) Loaded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}
