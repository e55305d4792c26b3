package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
)

// fakeRemote keeps moments in memory and answers like the reference server
// for a single unrestricted user.
type fakeRemote struct {
	client.Client

	mu        sync.Mutex
	byID      map[string]*api.Moment
	byClient  map[string]string
	seq       int
	clock     time.Time
	gate      chan struct{}
	createErr error
	offline   bool
	limitAt   int
	purged    int
	token     string
	pings     int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		byID:     map[string]*api.Moment{},
		byClient: map[string]string{},
		clock:    time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRemote) wait(ctx context.Context) error {
	f.mu.Lock()
	gate, offline := f.gate, f.offline
	f.mu.Unlock()
	if offline {
		return fmt.Errorf("%w: connection refused", client.ErrUnavailable)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRemote) get(id string) api.Moment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
	return f.wait(ctx)
}

func (f *fakeRemote) Register(ctx context.Context) (api.RegisterResponse, error) {
	if err := f.wait(ctx); err != nil {
		return api.RegisterResponse{}, err
	}
	return api.RegisterResponse{UserID: "u1", Token: "tok-u1", Tier: api.TierFree}, nil
}

func (f *fakeRemote) SetUserToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeRemote) UserToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeRemote) GetMomentByClientID(ctx context.Context, clientID string) (api.Moment, error) {
	if err := f.wait(ctx); err != nil {
		return api.Moment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byClient[clientID]
	if !ok {
		return api.Moment{}, &client.APIError{Status: http.StatusNotFound, Code: api.CodeMomentNotFound}
	}
	return *f.byID[id], nil
}

func (f *fakeRemote) CreateMoment(ctx context.Context, req api.CreateMomentRequest) (api.Moment, error) {
	if err := f.wait(ctx); err != nil {
		return api.Moment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return api.Moment{}, f.createErr
	}
	f.seq++
	m := &api.Moment{
		ID:             fmt.Sprintf("srv-%d", f.seq),
		ClientID:       req.ClientID,
		Text:           req.Text,
		SubmittedAt:    *req.SubmittedAt,
		HappenedAt:     *req.SubmittedAt,
		TimeAgoSeconds: req.TimeAgoSeconds,
		UpdatedAt:      f.tick(),
	}
	if req.TimeAgoSeconds != nil {
		m.HappenedAt = m.SubmittedAt.Add(-time.Duration(*req.TimeAgoSeconds) * time.Second)
	}
	f.byID[m.ID] = m
	f.byClient[*req.ClientID] = m.ID
	return *m, nil
}

func (f *fakeRemote) EnrichMoment(ctx context.Context, serverID string) (api.Moment, error) {
	if err := f.wait(ctx); err != nil {
		return api.Moment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID[serverID]
	if m.Praise == nil {
		praise, action := "Great job getting outside", "Try it again tomorrow"
		m.Praise, m.Action, m.Tags = &praise, &action, []string{"outdoors"}
		m.UpdatedAt = f.tick()
	}
	return *m, nil
}

func (f *fakeRemote) UpdateMoment(ctx context.Context, serverID string, isFavorite bool) (api.Moment, error) {
	if err := f.wait(ctx); err != nil {
		return api.Moment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID[serverID]
	m.IsFavorite = isFavorite
	m.UpdatedAt = f.tick()
	return *m, nil
}

func (f *fakeRemote) ArchiveMoment(ctx context.Context, serverID string) (api.Moment, error) {
	if err := f.wait(ctx); err != nil {
		return api.Moment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID[serverID]
	now := f.tick()
	m.ArchivedAt = &now
	m.UpdatedAt = now
	return *m, nil
}

func (f *fakeRemote) RestoreMoment(ctx context.Context, serverID string) (api.Moment, error) {
	if err := f.wait(ctx); err != nil {
		return api.Moment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID[serverID]
	m.ArchivedAt = nil
	m.UpdatedAt = f.tick()
	return *m, nil
}

func (f *fakeRemote) PurgeMoments(ctx context.Context) (api.PurgeResponse, error) {
	if err := f.wait(ctx); err != nil {
		return api.PurgeResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, m := range f.byID {
		if m.ArchivedAt != nil {
			delete(f.byID, id)
			if m.ClientID != nil {
				delete(f.byClient, *m.ClientID)
			}
			n++
		}
	}
	f.purged += n
	return api.PurgeResponse{Purged: n, ArchiveKey: "archives/u1/1.json"}, nil
}

// sorted returns the visible remote moments newest first.
func (f *fakeRemote) sorted() []api.Moment {
	out := make([]api.Moment, 0, len(f.byID))
	for _, m := range f.byID {
		if m.ArchivedAt == nil {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

func (f *fakeRemote) ListMoments(ctx context.Context, cursor string, limit int) (api.Page[api.Moment], error) {
	if err := f.wait(ctx); err != nil {
		return api.Page[api.Moment]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.sorted()
	start := 0
	if cursor != "" {
		_, _ = fmt.Sscanf(cursor, "i%d", &start)
	}
	end := min(start+limit, len(all))
	page := api.Page[api.Moment]{Data: all[start:end]}
	if f.limitAt > 0 && end >= f.limitAt {
		page.Data = all[start:f.limitAt]
		page.LimitReached = true
		return page, nil
	}
	if end < len(all) {
		next := fmt.Sprintf("i%d", end)
		page.NextCursor = &next
		page.HasNextPage = true
	}
	return page, nil
}

func (f *fakeRemote) ListTimeline(ctx context.Context, cursor string, limit int) (api.Page[api.TimelineEntry], error) {
	page, err := f.ListMoments(ctx, cursor, limit)
	if err != nil {
		return api.Page[api.TimelineEntry]{}, err
	}
	out := api.Page[api.TimelineEntry]{NextCursor: page.NextCursor, HasNextPage: page.HasNextPage, LimitReached: page.LimitReached}
	for _, m := range page.Data {
		out.Data = append(out.Data, api.TimelineEntry{
			MomentID:    m.ID,
			Text:        m.Text,
			Praise:      m.Praise,
			HappenedAt:  m.HappenedAt,
			SubmittedAt: m.SubmittedAt,
			Day:         m.HappenedAt.Format(time.DateOnly),
		})
	}
	return out, nil
}
