package moments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
	"github.com/dmitrijs2005/momentkeeper/internal/syncx"
)

// ChangeKind tells subscribers what happened to a moment.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeCleared ChangeKind = "cleared"
)

// Change is published after every committed mutation. ClientID is empty
// for ChangeCleared and for bulk deletes.
type Change struct {
	Kind     ChangeKind
	ClientID string
}

// Repository is the single source of truth for local moments.
type Repository struct {
	db       *sql.DB
	newStore func(dbx.DBTX) Store
	log      logging.Logger
	now      func() time.Time

	locks syncx.KeyedMutex

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// NewRepository builds a repository over a SQLite database that has been
// migrated with the client migrations.
func NewRepository(db *sql.DB, log logging.Logger) *Repository {
	return &Repository{
		db:       db,
		newStore: func(tx dbx.DBTX) Store { return NewSQLiteStore(tx) },
		log:      log.With("module", "repository"),
		now:      time.Now,
		subs:     make(map[int]chan Change),
	}
}

func (r *Repository) store() Store {
	return r.newStore(r.db)
}

// Create inserts a new local moment. The moment's Seq and UpdatedAt are
// filled in.
func (r *Repository) Create(ctx context.Context, m *models.Moment) error {
	if m.ClientID == "" {
		return errors.New("moment has no client id")
	}
	unlock, err := r.locks.Lock(ctx, m.ClientID)
	if err != nil {
		return err
	}
	defer unlock()

	m.UpdatedAt = r.now().UTC()
	if err := r.store().Insert(ctx, m); err != nil {
		return err
	}
	r.publish(Change{Kind: ChangeCreated, ClientID: m.ClientID})
	return nil
}

func (r *Repository) Get(ctx context.Context, clientID string) (models.Moment, error) {
	return r.store().Get(ctx, clientID)
}

func (r *Repository) GetByServerID(ctx context.Context, serverID string) (models.Moment, error) {
	return r.store().GetByServerID(ctx, serverID)
}

// Visible returns non-archived moments, newest first.
func (r *Repository) Visible(ctx context.Context) ([]models.Moment, error) {
	return r.store().List(ctx, Filter{})
}

// Archived returns archived moments, most recently archived first.
func (r *Repository) Archived(ctx context.Context) ([]models.Moment, error) {
	return r.store().List(ctx, Filter{Archived: true})
}

// Pending returns moments with outstanding sync work in creation order.
// Blocked moments are excluded.
func (r *Repository) Pending(ctx context.Context) ([]models.Moment, error) {
	return r.store().List(ctx, Filter{Pending: true})
}

// All returns every local moment, newest first.
func (r *Repository) All(ctx context.Context) ([]models.Moment, error) {
	return r.store().List(ctx, Filter{All: true})
}

// Update performs an atomic read-modify-write of one moment. fn receives
// the current stored state; returning an error aborts without writing.
// Writes to the same clientId are serialized.
func (r *Repository) Update(ctx context.Context, clientID string, fn func(m *models.Moment) error) (models.Moment, error) {
	unlock, err := r.locks.Lock(ctx, clientID)
	if err != nil {
		return models.Moment{}, err
	}
	defer unlock()

	var (
		result  models.Moment
		changed bool
	)
	err = dbx.RunInTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		s := r.txStore(tx)
		cur, err := s.Get(ctx, clientID)
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.ClientID = cur.ClientID
		next.Seq = cur.Seq
		if cur.ServerID != "" && next.ServerID != cur.ServerID {
			return fmt.Errorf("update %s: %w", clientID, models.ErrIdentityMismatch)
		}
		result = next
		if sameState(cur, next) {
			result = cur
			return nil
		}
		changed = true
		result.UpdatedAt = r.now().UTC()
		return s.Save(ctx, result)
	})
	if err != nil {
		return models.Moment{}, err
	}
	if changed {
		r.publish(Change{Kind: ChangeUpdated, ClientID: clientID})
	}
	return result, nil
}

// MergeRemote folds a remote copy into local state. The local record is
// found by serverId, then by the remote clientId; when neither exists a
// new record is created. Returns the stored moment and whether anything
// changed.
func (r *Repository) MergeRemote(ctx context.Context, remote api.Moment) (models.Moment, bool, error) {
	key := r.mergeKey(ctx, remote)

	unlock, err := r.locks.Lock(ctx, key)
	if err != nil {
		return models.Moment{}, false, err
	}
	defer unlock()

	var (
		result models.Moment
		kind   ChangeKind
	)
	err = dbx.RunInTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		s := r.txStore(tx)

		cur, err := s.GetByServerID(ctx, remote.ID)
		if errors.Is(err, ErrNotFound) && remote.ClientID != nil {
			cur, err = s.Get(ctx, *remote.ClientID)
		}
		switch {
		case errors.Is(err, ErrNotFound):
			clientID := uuid.NewString()
			if remote.ClientID != nil && *remote.ClientID != "" {
				clientID = *remote.ClientID
			}
			m := models.FromRemote(remote, clientID)
			m.UpdatedAt = r.now().UTC()
			if err := s.Insert(ctx, &m); err != nil {
				return err
			}
			result, kind = m, ChangeCreated
			return nil
		case err != nil:
			return err
		}

		merged, changed, err := models.Merge(cur, remote)
		if err != nil {
			return err
		}
		result = merged
		if !changed {
			return nil
		}
		result.UpdatedAt = r.now().UTC()
		kind = ChangeUpdated
		return s.Save(ctx, result)
	})
	if err != nil {
		return models.Moment{}, false, err
	}
	if kind != "" {
		r.publish(Change{Kind: kind, ClientID: result.ClientID})
	}
	return result, kind != "", nil
}

// mergeKey picks the lock key for a merge. A local record known by
// serverId is locked under its clientId so that merges and updates of the
// same moment never interleave.
func (r *Repository) mergeKey(ctx context.Context, remote api.Moment) string {
	if m, err := r.store().GetByServerID(ctx, remote.ID); err == nil {
		return m.ClientID
	}
	if remote.ClientID != nil && *remote.ClientID != "" {
		return *remote.ClientID
	}
	return "server:" + remote.ID
}

// Delete removes one moment physically.
func (r *Repository) Delete(ctx context.Context, clientID string) error {
	unlock, err := r.locks.Lock(ctx, clientID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.store().Delete(ctx, clientID); err != nil {
		return err
	}
	r.publish(Change{Kind: ChangeDeleted, ClientID: clientID})
	return nil
}

// Purge removes archived moments whose archive was acknowledged remotely
// or that were never uploaded.
func (r *Repository) Purge(ctx context.Context) (int, error) {
	n, err := r.store().DeletePurgeable(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.publish(Change{Kind: ChangeDeleted})
	}
	return n, nil
}

// Clear wipes every local moment.
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.store().Clear(ctx); err != nil {
		return err
	}
	r.publish(Change{Kind: ChangeCleared})
	return nil
}

// Subscribe registers a change listener with the given buffer. Slow
// listeners lose events rather than block writers. The returned function
// unsubscribes and closes the channel.
func (r *Repository) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Repository) publish(c Change) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- c:
		default:
			r.log.Debug(context.Background(), "change dropped for slow subscriber", "kind", c.Kind, "client_id", c.ClientID)
		}
	}
}

func (r *Repository) txStore(tx dbx.DBTX) Store {
	if tx == nil {
		return r.store()
	}
	return r.newStore(tx)
}

func sameState(a, b models.Moment) bool {
	return a.ServerID == b.ServerID &&
		a.Enrichment.Equal(b.Enrichment) &&
		a.IsFavorite == b.IsFavorite &&
		a.FavoriteDirty == b.FavoriteDirty &&
		equalTimePtr(a.ArchivedAt, b.ArchivedAt) &&
		a.ArchiveDirty == b.ArchiveDirty &&
		a.LastSyncError == b.LastSyncError &&
		a.SyncBlocked == b.SyncBlocked &&
		a.RemoteUpdatedAt.Equal(b.RemoteUpdatedAt)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
