// Package services contains the application services of the momentkeeper
// client: the moment facade used by the UI layer and the session service
// that handles registration and connectivity.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
	"github.com/dmitrijs2005/momentkeeper/internal/client/pagination"
	"github.com/dmitrijs2005/momentkeeper/internal/client/praise"
	"github.com/dmitrijs2005/momentkeeper/internal/client/repositories/moments"
	"github.com/dmitrijs2005/momentkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
)

var (
	ErrNotFound  = errors.New("moment not found")
	ErrAmbiguous = errors.New("moment reference is ambiguous")
)

// newClientID is the clientId generator; replaced in tests.
var newClientID = uuid.NewString

// View is a moment together with its derived sync state.
type View struct {
	models.Moment
	State models.SyncState
}

// Feed is one step of a paginated listing.
type Feed[T any] struct {
	Items        []T
	HasMore      bool
	LimitReached bool
}

// CreateInput describes a new moment.
type CreateInput struct {
	Text string
	// TimeAgo moves happenedAt back from the submission time.
	TimeAgo time.Duration
	// Timezone defaults to the local zone name.
	Timezone string
}

// Status counts moments by sync condition.
type Status struct {
	Total             int
	Unsynced          int
	Syncing           int
	Failed            int
	Blocked           int
	PendingEnrichment int
	Archived          int
}

// PurgeResult reports what a purge removed.
type PurgeResult struct {
	Local      int
	Remote     int
	ArchiveKey string
}

// MomentService is the facade for UI-layer callers. Local operations return
// as soon as the local store is written; remote reconciliation runs in
// background tasks that can be cancelled per moment.
type MomentService struct {
	repo     *moments.Repository
	engine   *syncer.Engine
	resolver *pagination.Resolver
	remote   client.Client
	log      logging.Logger
	now      func() time.Time

	feed     *pagination.Pager[models.Moment]
	timeline *pagination.Pager[api.TimelineEntry]

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

type task struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

func NewMomentService(repo *moments.Repository, engine *syncer.Engine, remote client.Client, pageSize int, log logging.Logger) *MomentService {
	resolver := pagination.NewResolver(remote, repo, log)
	base, stop := context.WithCancel(context.Background())
	return &MomentService{
		repo:     repo,
		engine:   engine,
		resolver: resolver,
		remote:   remote,
		log:      log.With("module", "moment-service"),
		now:      time.Now,
		feed:     pagination.NewPager(resolver.Moments, pageSize),
		timeline: pagination.NewPager(resolver.Timeline, pageSize),
		base:     base,
		stop:     stop,
		tasks:    map[string]*task{},
	}
}

// Create stores a new moment with its offline praise and returns it
// without any network I/O. Upload and enrichment polling follow in the
// background.
func (s *MomentService) Create(ctx context.Context, in CreateInput) (View, error) {
	if msg := api.ValidateText(in.Text); msg != "" {
		return View{}, fmt.Errorf("%w: %s", common.ErrorValidation, msg)
	}
	if in.TimeAgo < 0 {
		return View{}, fmt.Errorf("%w: time ago must not be negative", common.ErrorValidation)
	}

	var timeAgo *int64
	if in.TimeAgo > 0 {
		secs := int64(in.TimeAgo / time.Second)
		if msg := api.ValidateTimeAgo(&secs); msg != "" {
			return View{}, fmt.Errorf("%w: %s", common.ErrorValidation, msg)
		}
		timeAgo = &secs
	}

	tz := in.Timezone
	if tz == "" {
		tz = time.Local.String()
	}

	now := s.now().UTC()
	text := strings.TrimSpace(in.Text)
	id := newClientID()
	m := models.Moment{
		ClientID:       id,
		Text:           text,
		SubmittedAt:    now,
		HappenedAt:     models.HappenedAtFor(now, timeAgo),
		Timezone:       tz,
		TimeAgoSeconds: timeAgo,
		OfflinePraise:  praise.For(text, id),
		Enrichment:     models.NotEnriched(),
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, &m); err != nil {
		return View{}, err
	}

	s.background(id, "create", func(ctx context.Context) error {
		if err := s.engine.Upload(ctx, id); err != nil {
			return err
		}
		return s.engine.PollEnrichment(ctx, id)
	})

	return s.view(m), nil
}

// Get returns one local moment.
func (s *MomentService) Get(ctx context.Context, clientID string) (View, error) {
	m, err := s.repo.Get(ctx, clientID)
	if err != nil {
		return View{}, mapNotFound(err)
	}
	return s.view(m), nil
}

// Resolve maps a user-supplied reference onto a clientId. The reference
// may be a full clientId or serverId, or a unique prefix of either.
func (s *MomentService) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", ErrNotFound
	}
	if m, err := s.repo.Get(ctx, ref); err == nil {
		return m.ClientID, nil
	}
	if m, err := s.repo.GetByServerID(ctx, ref); err == nil {
		return m.ClientID, nil
	}

	all, err := s.repo.All(ctx)
	if err != nil {
		return "", err
	}
	found := ""
	for _, m := range all {
		if strings.HasPrefix(m.ClientID, ref) || (m.ServerID != "" && strings.HasPrefix(m.ServerID, ref)) {
			if found != "" && found != m.ClientID {
				return "", fmt.Errorf("%w: %q", ErrAmbiguous, ref)
			}
			found = m.ClientID
		}
	}
	if found == "" {
		return "", fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	return found, nil
}

// ListLocal returns every visible local moment, newest first.
func (s *MomentService) ListLocal(ctx context.Context) ([]View, error) {
	ms, err := s.repo.Visible(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(ms), nil
}

// ListArchived returns archived local moments, most recently archived
// first.
func (s *MomentService) ListArchived(ctx context.Context) ([]View, error) {
	ms, err := s.repo.Archived(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(ms), nil
}

// LoadFirstPage restarts the remote listing and merges the first page into
// the local store.
func (s *MomentService) LoadFirstPage(ctx context.Context) (Feed[View], error) {
	page, err := s.feed.First(ctx)
	if err != nil {
		return Feed[View]{}, err
	}
	return Feed[View]{Items: s.views(page.Items), HasMore: s.feed.HasNext(), LimitReached: s.feed.LimitReached()}, nil
}

// LoadMore loads the next remote page. It returns pagination.ErrNoMorePages
// once the listing is exhausted.
func (s *MomentService) LoadMore(ctx context.Context) (Feed[View], error) {
	page, err := s.feed.Next(ctx)
	if err != nil {
		return Feed[View]{}, err
	}
	return Feed[View]{Items: s.views(page.Items), HasMore: s.feed.HasNext(), LimitReached: s.feed.LimitReached()}, nil
}

// Timeline loads the first timeline page, or the next one when more is
// set.
func (s *MomentService) Timeline(ctx context.Context, more bool) (Feed[api.TimelineEntry], error) {
	var (
		page pagination.Page[api.TimelineEntry]
		err  error
	)
	if more {
		page, err = s.timeline.Next(ctx)
	} else {
		page, err = s.timeline.First(ctx)
	}
	if err != nil {
		return Feed[api.TimelineEntry]{}, err
	}
	return Feed[api.TimelineEntry]{Items: page.Items, HasMore: s.timeline.HasNext(), LimitReached: s.timeline.LimitReached()}, nil
}

// ToggleFavorite flips the favorite flag locally and propagates it in the
// background.
func (s *MomentService) ToggleFavorite(ctx context.Context, clientID string) (View, error) {
	m, err := s.repo.Update(ctx, clientID, func(m *models.Moment) error {
		m.IsFavorite = !m.IsFavorite
		m.FavoriteDirty = true
		m.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return View{}, mapNotFound(err)
	}
	s.propagate(m)
	return s.view(m), nil
}

// Delete archives the moment locally and propagates the archive in the
// background. Archiving an archived moment is a no-op.
func (s *MomentService) Delete(ctx context.Context, clientID string) (View, error) {
	m, err := s.repo.Update(ctx, clientID, func(m *models.Moment) error {
		if m.Archived() {
			return nil
		}
		now := s.now().UTC()
		m.ArchivedAt = &now
		m.ArchiveDirty = true
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return View{}, mapNotFound(err)
	}
	s.propagate(m)
	return s.view(m), nil
}

// Restore un-archives the moment locally and remotely.
func (s *MomentService) Restore(ctx context.Context, clientID string) (View, error) {
	m, err := s.repo.Update(ctx, clientID, func(m *models.Moment) error {
		if !m.Archived() {
			return nil
		}
		m.ArchivedAt = nil
		m.ArchiveDirty = true
		m.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return View{}, mapNotFound(err)
	}
	s.propagate(m)
	return s.view(m), nil
}

// Retry clears a terminal failure and syncs the moment again in the
// background.
func (s *MomentService) Retry(ctx context.Context, clientID string) error {
	if err := s.engine.Unblock(ctx, clientID); err != nil {
		return mapNotFound(err)
	}
	s.background(clientID, "retry", func(ctx context.Context) error {
		return s.engine.SyncMoment(ctx, clientID)
	})
	return nil
}

// Enrich requests enrichment now and waits for the outcome.
func (s *MomentService) Enrich(ctx context.Context, clientID string) (View, error) {
	if err := s.engine.Enrich(ctx, clientID); err != nil {
		return View{}, mapNotFound(err)
	}
	return s.Get(ctx, clientID)
}

// SyncAll runs one batch reconciliation.
func (s *MomentService) SyncAll(ctx context.Context) (syncer.SweepResult, error) {
	return s.engine.Sweep(ctx)
}

// Purge removes archived moments locally, then asks the remote side to
// purge its archived moments.
func (s *MomentService) Purge(ctx context.Context) (PurgeResult, error) {
	n, err := s.repo.Purge(ctx)
	if err != nil {
		return PurgeResult{}, err
	}
	res := PurgeResult{Local: n}

	remote, err := s.remote.PurgeMoments(ctx)
	if err != nil {
		return res, fmt.Errorf("remote purge failed: %w", err)
	}
	res.Remote = remote.Purged
	res.ArchiveKey = remote.ArchiveKey
	return res, nil
}

// Status counts local moments by sync condition.
func (s *MomentService) Status(ctx context.Context) (Status, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return Status{}, err
	}

	var st Status
	st.Total = len(all)
	for i := range all {
		m := &all[i]
		if m.Archived() {
			st.Archived++
		}
		if m.SyncBlocked {
			st.Blocked++
		}
		if m.NeedsEnrichment() {
			st.PendingEnrichment++
		}
		switch s.engine.State(m) {
		case models.SyncStateUnsynced:
			st.Unsynced++
		case models.SyncStateSyncing:
			st.Syncing++
		case models.SyncStateFailed:
			st.Failed++
		}
	}
	return st, nil
}

// Changes subscribes to local store changes.
func (s *MomentService) Changes(buffer int) (<-chan moments.Change, func()) {
	return s.repo.Subscribe(buffer)
}

// CancelSync cancels background work for one moment. Work already applied
// stays applied.
func (s *MomentService) CancelSync(clientID string) {
	s.mu.Lock()
	t, ok := s.tasks[clientID]
	if ok {
		delete(s.tasks, clientID)
	}
	s.mu.Unlock()

	if ok {
		t.cancel()
	}
}

// Close cancels all background work and waits for it to stop.
func (s *MomentService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
}

// Wait blocks until all background work has finished.
func (s *MomentService) Wait() {
	s.wg.Wait()
}

func (s *MomentService) propagate(m models.Moment) {
	if m.SyncBlocked || !(m.NeedsUpload() || m.NeedsPropagation()) {
		return
	}
	id := m.ClientID
	s.background(id, "propagate", func(ctx context.Context) error {
		return s.engine.Upload(ctx, id)
	})
}

// background runs fn detached from the caller. Tasks for the same moment
// share one cancellation scope.
func (s *MomentService) background(clientID, op string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	t, ok := s.tasks[clientID]
	if !ok {
		ctx, cancel := context.WithCancel(s.base)
		t = &task{ctx: ctx, cancel: cancel}
		s.tasks[clientID] = t
	}
	t.refs++
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.release(clientID, t)

		if err := fn(t.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug(t.ctx, "background sync ended with error", "client_id", clientID, "op", op, "error", err)
		}
	}()
}

func (s *MomentService) release(clientID string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.refs--
	if t.refs > 0 {
		return
	}
	if s.tasks[clientID] == t {
		delete(s.tasks, clientID)
	}
	t.cancel()
}

func (s *MomentService) view(m models.Moment) View {
	return View{Moment: m, State: s.engine.State(&m)}
}

func (s *MomentService) views(ms []models.Moment) []View {
	out := make([]View, 0, len(ms))
	for _, m := range ms {
		out = append(out, s.view(m))
	}
	return out
}

func mapNotFound(err error) error {
	if errors.Is(err, moments.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
