package syncer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
)

// fakeRemote is an in-memory stand-in for the moment service. Methods the
// engine does not use fall through to the embedded nil interface.
type fakeRemote struct {
	client.Client

	mu       sync.Mutex
	byID     map[string]*api.Moment
	byClient map[string]string
	seq      int
	clock    time.Time
	calls    map[string]int

	// knobs
	createErrs       []error
	lostCreates      int
	enrichInProgress int
	enrichErr        error
	generations      int
	block            chan struct{}

	active    map[string]int
	maxActive int
	total     int
	maxTotal  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		byID:     map[string]*api.Moment{},
		byClient: map[string]string{},
		calls:    map[string]int{},
		active:   map[string]int{},
		clock:    time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func apiErr(status int, code api.ErrorCode) *client.APIError {
	return &client.APIError{Status: status, Code: code, Message: string(code)}
}

// enter tracks per-key and global concurrency and optionally blocks.
func (f *fakeRemote) enter(ctx context.Context, op, key string) (func(), error) {
	f.mu.Lock()
	f.calls[op]++
	f.active[key]++
	if f.active[key] > f.maxActive {
		f.maxActive = f.active[key]
	}
	f.total++
	if f.total > f.maxTotal {
		f.maxTotal = f.total
	}
	block := f.block
	f.mu.Unlock()

	leave := func() {
		f.mu.Lock()
		f.active[key]--
		f.total--
		f.mu.Unlock()
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			leave()
			return nil, ctx.Err()
		}
	} else {
		time.Sleep(time.Millisecond)
	}
	return leave, nil
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *fakeRemote) GetMomentByClientID(ctx context.Context, clientID string) (api.Moment, error) {
	leave, err := f.enter(ctx, "lookup", clientID)
	if err != nil {
		return api.Moment{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byClient[clientID]
	if !ok {
		return api.Moment{}, apiErr(http.StatusNotFound, api.CodeMomentNotFound)
	}
	return *f.byID[id], nil
}

func (f *fakeRemote) CreateMoment(ctx context.Context, req api.CreateMomentRequest) (api.Moment, error) {
	leave, err := f.enter(ctx, "create", *req.ClientID)
	if err != nil {
		return api.Moment{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return api.Moment{}, err
	}

	f.seq++
	m := &api.Moment{
		ID:          fmt.Sprintf("srv-%d", f.seq),
		ClientID:    req.ClientID,
		Text:        req.Text,
		SubmittedAt: *req.SubmittedAt,
		HappenedAt:  *req.SubmittedAt,
		UpdatedAt:   f.tick(),
	}
	f.byID[m.ID] = m
	f.byClient[*req.ClientID] = m.ID

	if f.lostCreates > 0 {
		f.lostCreates--
		return api.Moment{}, fmt.Errorf("%w: connection reset", client.ErrUnavailable)
	}
	return *m, nil
}

func (f *fakeRemote) EnrichMoment(ctx context.Context, serverID string) (api.Moment, error) {
	leave, err := f.enter(ctx, "enrich", f.clientOf(serverID))
	if err != nil {
		return api.Moment{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[serverID]
	if !ok {
		return api.Moment{}, apiErr(http.StatusNotFound, api.CodeMomentNotFound)
	}
	if m.Praise != nil {
		return *m, nil
	}
	if f.enrichErr != nil {
		return api.Moment{}, f.enrichErr
	}
	if f.enrichInProgress > 0 {
		f.enrichInProgress--
		return api.Moment{}, apiErr(http.StatusConflict, api.CodeEnrichmentInProgress)
	}
	f.generations++
	praise, action := "You moved your body today", "Take a short stretch"
	m.Praise, m.Action, m.Tags = &praise, &action, []string{"health"}
	m.UpdatedAt = f.tick()
	return *m, nil
}

func (f *fakeRemote) UpdateMoment(ctx context.Context, serverID string, isFavorite bool) (api.Moment, error) {
	leave, err := f.enter(ctx, "update", f.clientOf(serverID))
	if err != nil {
		return api.Moment{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID[serverID]
	m.IsFavorite = isFavorite
	m.UpdatedAt = f.tick()
	return *m, nil
}

func (f *fakeRemote) ArchiveMoment(ctx context.Context, serverID string) (api.Moment, error) {
	leave, err := f.enter(ctx, "archive", f.clientOf(serverID))
	if err != nil {
		return api.Moment{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[serverID]
	if !ok {
		return api.Moment{}, apiErr(http.StatusNotFound, api.CodeMomentNotFound)
	}
	now := f.tick()
	m.ArchivedAt = &now
	m.UpdatedAt = now
	return *m, nil
}

func (f *fakeRemote) RestoreMoment(ctx context.Context, serverID string) (api.Moment, error) {
	leave, err := f.enter(ctx, "restore", f.clientOf(serverID))
	if err != nil {
		return api.Moment{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID[serverID]
	m.ArchivedAt = nil
	m.UpdatedAt = f.tick()
	return *m, nil
}

func (f *fakeRemote) clientOf(serverID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.byID[serverID]; ok && m.ClientID != nil {
		return *m.ClientID
	}
	return serverID
}

// release stops blocking: calls waiting now and later all proceed.
func (f *fakeRemote) release() {
	f.mu.Lock()
	b := f.block
	f.block = nil
	f.mu.Unlock()
	if b != nil {
		close(b)
	}
}

func (f *fakeRemote) favorite(serverID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[serverID].IsFavorite
}

// waiters reports how many callers wait for the shared execution of key.
func (e *Engine) waiters(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.calls[key]; ok {
		return c.waiters
	}
	return 0
}
