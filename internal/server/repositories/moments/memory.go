package moments

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

// MemoryRepository keeps moments in process memory. Every method is atomic
// with respect to the others.
type MemoryRepository struct {
	mu       sync.Mutex
	seq      int64
	byID     map[string]*models.Moment
	byClient map[[2]string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     map[string]*models.Moment{},
		byClient: map[[2]string]string{},
	}
}

func (r *MemoryRepository) Create(ctx context.Context, m *models.Moment) (*models.Moment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if m.ClientID != nil {
		key := [2]string{m.UserID, *m.ClientID}
		if _, ok := r.byClient[key]; ok {
			return nil, common.ErrorAlreadyExists
		}
		r.byClient[key] = m.ID
	}

	r.seq++
	m.Seq = r.seq
	c := m.Clone()
	r.byID[m.ID] = &c
	return m, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Moment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *MemoryRepository) get(id string) (*models.Moment, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (r *MemoryRepository) GetByClientID(ctx context.Context, userID, clientID string) (*models.Moment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byClient[[2]string{userID, clientID}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.get(id)
}

// sorted returns matching moments newest first. Callers hold mu.
func (r *MemoryRepository) sorted(keep func(*models.Moment) bool) []models.Moment {
	var out []models.Moment
	for _, m := range r.byID {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Moment) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	return out
}

func (r *MemoryRepository) List(ctx context.Context, userID string, q ListQuery) ([]models.Moment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.sorted(func(m *models.Moment) bool {
		if m.UserID != userID || m.Archived() {
			return false
		}
		if !q.Since.IsZero() && m.SubmittedAt.Before(q.Since) {
			return false
		}
		return q.After == nil || q.After.Before(m.SubmittedAt, m.Seq)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) ExistsBefore(ctx context.Context, userID string, t time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byID {
		if m.UserID == userID && !m.Archived() && m.SubmittedAt.Before(t) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.byID {
		if m.UserID == userID && !m.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) update(id string, fn func(m *models.Moment)) (*models.Moment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	fn(m)
	c := m.Clone()
	return &c, nil
}

func (r *MemoryRepository) SetFavorite(ctx context.Context, id string, favorite bool, now time.Time) (*models.Moment, error) {
	return r.update(id, func(m *models.Moment) {
		m.IsFavorite = favorite
		m.UpdatedAt = now
	})
}

func (r *MemoryRepository) SetArchived(ctx context.Context, id string, at *time.Time, now time.Time) (*models.Moment, error) {
	return r.update(id, func(m *models.Moment) {
		m.ArchivedAt = clone(at)
		m.UpdatedAt = now
	})
}

func (r *MemoryRepository) ClaimEnrichment(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	claimed := false
	_, err := r.update(id, func(m *models.Moment) {
		if m.Enriched() {
			return
		}
		if m.EnrichmentState == models.EnrichmentClaimed && m.EnrichmentClaimedAt != nil && !m.EnrichmentClaimedAt.Before(staleBefore) {
			return
		}
		m.EnrichmentState = models.EnrichmentClaimed
		m.EnrichmentClaimedAt = &now
		claimed = true
	})
	if err != nil {
		// an unknown id matches nothing, like the UPDATE it mirrors
		return false, nil
	}
	return claimed, nil
}

func (r *MemoryRepository) CompleteEnrichment(ctx context.Context, id, praise, action string, tags []string, now time.Time) (*models.Moment, error) {
	return r.update(id, func(m *models.Moment) {
		if m.Enriched() {
			return
		}
		m.Praise, m.Action, m.Tags = &praise, &action, slices.Clone(tags)
		m.EnrichmentState = models.EnrichmentDone
		m.EnrichmentClaimedAt = nil
		m.UpdatedAt = now
	})
}

func (r *MemoryRepository) FailEnrichment(ctx context.Context, id string) error {
	_, _ = r.update(id, func(m *models.Moment) {
		if m.Enriched() {
			return
		}
		m.EnrichmentState = models.EnrichmentFailed
		m.EnrichmentClaimedAt = nil
	})
	return nil
}

func archivedBy(userID string, cutoff time.Time) func(*models.Moment) bool {
	return func(m *models.Moment) bool {
		return m.UserID == userID && m.Archived() && !m.ArchivedAt.After(cutoff)
	}
}

func (r *MemoryRepository) ListArchived(ctx context.Context, userID string, cutoff time.Time) ([]models.Moment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(archivedBy(userID, cutoff)), nil
}

func (r *MemoryRepository) DeleteArchived(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	match := archivedBy(userID, cutoff)
	n := 0
	for id, m := range r.byID {
		if !match(m) {
			continue
		}
		if m.ClientID != nil {
			delete(r.byClient, [2]string{m.UserID, *m.ClientID})
		}
		delete(r.byID, id)
		n++
	}
	return n, nil
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
