package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
	"github.com/dmitrijs2005/momentkeeper/internal/client/repositories/moments"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
	"github.com/dmitrijs2005/momentkeeper/internal/syncx"
)

var (
	// ErrBlocked is returned for a moment that failed terminally and has
	// not been retried by the user yet.
	ErrBlocked = errors.New("moment sync is blocked until retried")
	// ErrNotUploaded is returned when enrichment is requested before the
	// moment has a server id.
	ErrNotUploaded = errors.New("moment is not uploaded yet")
	// ErrEnrichmentPending is returned when the server answered without
	// enrichment data. It is retried like a conflict.
	ErrEnrichmentPending = errors.New("enrichment not ready")
)

const (
	opUpload = "upload"
	opEnrich = "enrich"
)

// Repository is the local state the engine reads and writes.
type Repository interface {
	Get(ctx context.Context, clientID string) (models.Moment, error)
	Update(ctx context.Context, clientID string, fn func(m *models.Moment) error) (models.Moment, error)
	Pending(ctx context.Context) ([]models.Moment, error)
}

const (
	DefaultConcurrency = 4
	MaxConcurrency     = 8
)

// Engine moves local moments to the remote service.
//
// At most one network call per clientId is outstanding at any time;
// concurrent identical requests (same operation, same clientId) share one
// execution, and a caller whose changes that execution may have missed
// runs again after it. Results are written through the repository in the order
// responses arrive and merged with models.Merge, so late responses never
// regress newer local state.
type Engine struct {
	remote client.Client
	repo   Repository
	log    logging.Logger

	policy Policy
	poll   Policy
	limit  int

	flights syncx.KeyedMutex

	mu    sync.Mutex
	calls map[string]*call
}

// call is one shared execution. It runs on its own context, which is
// cancelled once every caller waiting for it has given up.
type call struct {
	done    chan struct{}
	err     error
	waiters int
	cancel  context.CancelFunc
}

type Option func(*Engine)

// WithPolicy sets the backoff policy for upload, update and enrichment.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithPollPolicy sets the fixed-interval policy used by PollEnrichment.
func WithPollPolicy(p Policy) Option {
	return func(e *Engine) { e.poll = p }
}

// WithConcurrency sets the sweep fan-out, clamped to [1, MaxConcurrency].
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.limit = ClampConcurrency(n) }
}

func ClampConcurrency(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxConcurrency:
		return MaxConcurrency
	default:
		return n
	}
}

func New(remote client.Client, repo Repository, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		remote: remote,
		repo:   repo,
		log:    log.With("module", "syncer"),
		policy: DefaultPolicy(),
		poll:   PollPolicy(DefaultPollInterval, DefaultPollAttempts),
		limit:  DefaultConcurrency,
		calls:  make(map[string]*call),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// InFlight reports whether a network operation for the moment is running
// or queued.
func (e *Engine) InFlight(clientID string) bool {
	return e.flights.Busy(clientID)
}

// State derives the sync state of m including in-flight work.
func (e *Engine) State(m *models.Moment) models.SyncState {
	return m.State(e.InFlight(m.ClientID))
}

// SyncMoment runs every outstanding step for one moment: upload (with
// lookup-before-create), favorite and archive propagation, then
// enrichment.
func (e *Engine) SyncMoment(ctx context.Context, clientID string) error {
	if err := e.Upload(ctx, clientID); err != nil {
		return err
	}
	m, err := e.repo.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if !m.NeedsEnrichment() {
		return nil
	}
	return e.Enrich(ctx, clientID)
}

// Upload creates the moment remotely if needed and propagates pending
// favorite and archive changes. A call that joined an upload already in
// progress checks the moment again afterwards and pushes whatever that
// upload did not send.
func (e *Engine) Upload(ctx context.Context, clientID string) error {
	for {
		m, err := e.repo.Get(ctx, clientID)
		if err != nil {
			return err
		}
		if m.SyncBlocked {
			return ErrBlocked
		}
		if !m.NeedsUpload() && !m.NeedsPropagation() {
			return nil
		}

		shared, err := e.coalesce(ctx, opUpload+":"+clientID, func(ctx context.Context) error {
			err := e.policy.do(ctx, func(ctx context.Context) error {
				return e.withFlight(ctx, clientID, func(ctx context.Context) error {
					return e.pushOnce(ctx, clientID)
				})
			}, e.logRetry(ctx, clientID, opUpload))
			return e.settle(ctx, clientID, opUpload, err)
		})
		if err != nil || !shared {
			return err
		}
	}
}

// Enrich requests enrichment with the backoff policy.
func (e *Engine) Enrich(ctx context.Context, clientID string) error {
	return e.enrich(ctx, clientID, e.policy)
}

// PollEnrichment requests enrichment at a fixed interval until praise is
// obtained, the attempts run out or a terminal error occurs.
func (e *Engine) PollEnrichment(ctx context.Context, clientID string) error {
	return e.enrich(ctx, clientID, e.poll)
}

// Unblock clears a terminal failure so that the moment is synced again.
func (e *Engine) Unblock(ctx context.Context, clientID string) error {
	_, err := e.repo.Update(ctx, clientID, func(m *models.Moment) error {
		m.SyncBlocked = false
		m.LastSyncError = ""
		if m.Enrichment.Status == models.EnrichmentFailed {
			m.Enrichment = models.NotEnriched()
		}
		return nil
	})
	return err
}

func (e *Engine) enrich(ctx context.Context, clientID string, p Policy) error {
	m, err := e.repo.Get(ctx, clientID)
	if err != nil {
		return err
	}
	switch {
	case m.Enrichment.Done(), m.Archived():
		return nil
	case m.SyncBlocked:
		return ErrBlocked
	case !m.Uploaded():
		return ErrNotUploaded
	}

	_, err = e.coalesce(ctx, opEnrich+":"+clientID, func(ctx context.Context) error {
		if err := e.setEnrichment(ctx, clientID, models.Enriching()); err != nil {
			return err
		}
		err := p.do(ctx, func(ctx context.Context) error {
			return e.withFlight(ctx, clientID, func(ctx context.Context) error {
				return e.enrichOnce(ctx, clientID)
			})
		}, e.logRetry(ctx, clientID, opEnrich))
		return e.settle(ctx, clientID, opEnrich, err)
	})
	return err
}

func (e *Engine) enrichOnce(ctx context.Context, clientID string) error {
	m, err := e.repo.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if m.Enrichment.Done() {
		return nil
	}

	remote, err := e.remote.EnrichMoment(ctx, m.ServerID)
	if err != nil {
		return err
	}
	if err := e.apply(ctx, clientID, remote, nil); err != nil {
		return err
	}
	if remote.Praise == nil {
		return ErrEnrichmentPending
	}
	return nil
}

func (e *Engine) pushOnce(ctx context.Context, clientID string) error {
	m, err := e.repo.Get(ctx, clientID)
	if err != nil {
		return err
	}

	if m.NeedsUpload() {
		if err := e.create(ctx, m); err != nil {
			return err
		}
		if m, err = e.repo.Get(ctx, clientID); err != nil {
			return err
		}
	}

	// Changes made while a push is outstanding are pushed in the next pass.
	// A pass that leaves the record as it was means the server cannot
	// acknowledge the change; the next sync tries again.
	for m.NeedsPropagation() {
		before := progressOf(m)
		if m.FavoriteDirty {
			if err := e.pushFavorite(ctx, m); err != nil {
				return err
			}
		}
		if m.ArchiveDirty {
			if err := e.pushArchive(ctx, m); err != nil {
				return err
			}
		}
		if m, err = e.repo.Get(ctx, clientID); err != nil {
			return err
		}
		if progressOf(m) == before {
			e.log.Warn(ctx, "pending change was not acknowledged", "client_id", clientID)
			break
		}
	}
	return nil
}

// progress is the part of a moment a propagation pass can change.
type progress struct {
	favorite, favoriteDirty bool
	archived, archiveDirty  bool
	remoteUpdatedAt         time.Time
}

func progressOf(m models.Moment) progress {
	return progress{
		favorite:        m.IsFavorite,
		favoriteDirty:   m.FavoriteDirty,
		archived:        m.Archived(),
		archiveDirty:    m.ArchiveDirty,
		remoteUpdatedAt: m.RemoteUpdatedAt,
	}
}

// create uploads a moment that has no serverId. The remote side is asked
// first whether it already knows the clientId, so that a create whose
// response was lost is adopted instead of duplicated.
func (e *Engine) create(ctx context.Context, m models.Moment) error {
	remote, err := e.remote.GetMomentByClientID(ctx, m.ClientID)
	switch {
	case err == nil:
		e.log.Info(ctx, "moment already exists remotely, adopting", "client_id", m.ClientID, "server_id", remote.ID)
	case client.IsNotFound(err):
		remote, err = e.remote.CreateMoment(ctx, m.CreateRequest())
		if err != nil {
			return err
		}
		e.log.Debug(ctx, "moment uploaded", "client_id", m.ClientID, "server_id", remote.ID)
	default:
		return err
	}
	return e.apply(ctx, m.ClientID, remote, nil)
}

func (e *Engine) pushFavorite(ctx context.Context, m models.Moment) error {
	sent := m.IsFavorite
	remote, err := e.remote.UpdateMoment(ctx, m.ServerID, sent)
	if err != nil {
		return err
	}
	return e.apply(ctx, m.ClientID, remote, func(cur *models.Moment) {
		if cur.IsFavorite == sent {
			cur.FavoriteDirty = false
		}
	})
}

func (e *Engine) pushArchive(ctx context.Context, m models.Moment) error {
	archive := m.Archived()

	var (
		remote api.Moment
		err    error
	)
	if archive {
		remote, err = e.remote.ArchiveMoment(ctx, m.ServerID)
	} else {
		remote, err = e.remote.RestoreMoment(ctx, m.ServerID)
	}

	ack := func(cur *models.Moment) {
		if cur.Archived() == archive {
			cur.ArchiveDirty = false
		}
	}

	if err != nil {
		if archive && client.IsNotFound(err) {
			// already purged remotely
			_, err = e.repo.Update(context.WithoutCancel(ctx), m.ClientID, func(cur *models.Moment) error {
				ack(cur)
				return nil
			})
		}
		return err
	}
	return e.apply(ctx, m.ClientID, remote, ack)
}

// apply merges a remote response into the local record. It runs detached
// from ctx: once a response has arrived its effect is always stored. A
// response for a different identity is discarded.
func (e *Engine) apply(ctx context.Context, clientID string, remote api.Moment, adjust func(m *models.Moment)) error {
	_, err := e.repo.Update(context.WithoutCancel(ctx), clientID, func(m *models.Moment) error {
		if adjust != nil {
			adjust(m)
		}
		merged, _, err := models.Merge(*m, remote)
		if err != nil {
			return err
		}
		*m = merged
		return nil
	})
	if errors.Is(err, models.ErrIdentityMismatch) {
		e.log.Warn(ctx, "discarding response for a different identity", "client_id", clientID, "server_id", remote.ID)
		return nil
	}
	return err
}

func (e *Engine) setEnrichment(ctx context.Context, clientID string, next models.Enrichment) error {
	_, err := e.repo.Update(ctx, clientID, func(m *models.Moment) error {
		m.Enrichment = m.Enrichment.Transition(next)
		return nil
	})
	return err
}

// settle persists the outcome of an operation. Cancellation writes nothing
// except undoing the local Enriching marker.
func (e *Engine) settle(ctx context.Context, clientID, op string, err error) error {
	class := Classify(err)
	wctx := context.WithoutCancel(ctx)

	switch class {
	case ClassNone:
		_, uerr := e.repo.Update(wctx, clientID, func(m *models.Moment) error {
			m.LastSyncError = ""
			return nil
		})
		e.logStoreError(ctx, clientID, uerr)
		return nil
	case ClassCanceled:
		if op == opEnrich {
			_, uerr := e.repo.Update(wctx, clientID, func(m *models.Moment) error {
				if m.Enrichment.Status == models.EnrichmentRunning {
					m.Enrichment = models.NotEnriched()
				}
				return nil
			})
			e.logStoreError(ctx, clientID, uerr)
		}
		return err
	}

	blocked := class == ClassTerminalClient
	e.log.Warn(ctx, "sync failed", "client_id", clientID, "op", op, "class", class.String(), "blocked", blocked, "error", err)

	_, uerr := e.repo.Update(wctx, clientID, func(m *models.Moment) error {
		m.LastSyncError = fmt.Sprintf("%s: %v", op, err)
		if blocked {
			m.SyncBlocked = true
		}
		if op == opEnrich {
			m.Enrichment = m.Enrichment.Transition(models.EnrichmentFailure(err.Error()))
		}
		return nil
	})
	e.logStoreError(ctx, clientID, uerr)
	return err
}

func (e *Engine) logStoreError(ctx context.Context, clientID string, err error) {
	if err != nil && !errors.Is(err, moments.ErrNotFound) {
		e.log.Error(ctx, "failed to store sync outcome", "client_id", clientID, "error", err)
	}
}

func (e *Engine) logRetry(ctx context.Context, clientID, op string) func(err error, attempt int) {
	return func(err error, attempt int) {
		e.log.Debug(ctx, "retrying", "client_id", clientID, "op", op, "attempt", attempt, "error", err)
	}
}

func (e *Engine) withFlight(ctx context.Context, clientID string, fn func(ctx context.Context) error) error {
	unlock, err := e.flights.Lock(ctx, clientID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// coalesce shares one execution of fn among concurrent callers using the
// same key and reports whether the caller joined an execution started by
// someone else. fn runs on a context that keeps the first caller's values
// and is cancelled only when every waiting caller has cancelled. The last
// caller to give up waits until fn has returned, so its cancellation
// leaves no work behind.
func (e *Engine) coalesce(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	e.mu.Lock()
	c, shared := e.calls[key]
	if !shared {
		cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{done: make(chan struct{}), cancel: cancel}
		e.calls[key] = c
		go func() {
			err := fn(cctx)
			e.mu.Lock()
			if e.calls[key] == c {
				delete(e.calls, key)
			}
			c.err = err
			e.mu.Unlock()
			cancel()
			close(c.done)
		}()
	}
	c.waiters++
	e.mu.Unlock()

	select {
	case <-c.done:
		return shared, c.err
	case <-ctx.Done():
	}

	e.mu.Lock()
	c.waiters--
	last := c.waiters == 0
	if last && e.calls[key] == c {
		// later callers start a fresh execution
		delete(e.calls, key)
	}
	e.mu.Unlock()

	if !last {
		return shared, ctx.Err()
	}
	c.cancel()
	<-c.done
	if c.err == nil {
		return shared, nil
	}
	return shared, ctx.Err()
}
