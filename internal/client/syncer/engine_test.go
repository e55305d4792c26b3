package syncer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
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

var fastPolicy = Policy{Base: time.Millisecond, Cap: 5 * time.Millisecond, MaxAttempts: 5, JitterPercent: 25}

func setup(t *testing.T, opts ...Option) (*Engine, *moments.Repository, *fakeRemote) {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := moments.NewRepository(db, logging.Nop())
	remote := newFakeRemote()
	opts = append([]Option{WithPolicy(fastPolicy), WithPollPolicy(PollPolicy(time.Millisecond, 10))}, opts...)
	return New(remote, repo, logging.Nop(), opts...), repo, remote
}

func createLocal(t *testing.T, repo *moments.Repository, clientID string) models.Moment {
	t.Helper()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	m := models.Moment{
		ClientID:      clientID,
		Text:          "Went for a walk",
		SubmittedAt:   now,
		HappenedAt:    now,
		Timezone:      "UTC",
		OfflinePraise: "Nice one!",
		Enrichment:    models.NotEnriched(),
	}
	require.NoError(t, repo.Create(context.Background(), &m))
	return m
}

func get(t *testing.T, repo *moments.Repository, clientID string) models.Moment {
	t.Helper()
	m, err := repo.Get(context.Background(), clientID)
	require.NoError(t, err)
	return m
}

func TestUpload_SetsServerIDWithoutEnrichment(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")

	before := get(t, repo, "c1")
	assert.Empty(t, before.ServerID)
	assert.Equal(t, models.SyncStateUnsynced, e.State(&before))

	require.NoError(t, e.Upload(context.Background(), "c1"))

	m := get(t, repo, "c1")
	assert.NotEmpty(t, m.ServerID)
	assert.Equal(t, "Nice one!", m.OfflinePraise)
	assert.Equal(t, models.EnrichmentNone, m.Enrichment.Status)
	assert.Empty(t, m.LastSyncError)
	assert.Equal(t, models.SyncStateSynced, e.State(&m))
	assert.Equal(t, 1, remote.count("lookup"), "lookup before create")
	assert.Equal(t, 1, remote.count("create"))
}

func TestSyncMoment_UploadsAndEnriches(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")

	require.NoError(t, e.SyncMoment(context.Background(), "c1"))

	m := get(t, repo, "c1")
	assert.True(t, m.Enrichment.Done())
	assert.Equal(t, "You moved your body today", m.Enrichment.Praise)
	assert.Equal(t, []string{"health"}, m.Enrichment.Tags)
	assert.Equal(t, "Nice one!", m.OfflinePraise, "offline praise is never overwritten")
	assert.Equal(t, 1, remote.generations)
}

func TestUpload_LostResponseDoesNotDuplicate(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	remote.lostCreates = 1

	require.NoError(t, e.Upload(context.Background(), "c1"))

	assert.Equal(t, 1, remote.stored())
	assert.Equal(t, 1, remote.count("create"))
	assert.Equal(t, 2, remote.count("lookup"))
	assert.NotEmpty(t, get(t, repo, "c1").ServerID)
}

func TestSweep_LostResponseRecoveredOnNextSweep(t *testing.T) {
	e, repo, remote := setup(t, WithPolicy(Policy{Base: time.Millisecond, MaxAttempts: 1}))
	createLocal(t, repo, "c1")
	remote.lostCreates = 1

	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Attempted: 1, Succeeded: 0, Failed: 1}, res)

	m := get(t, repo, "c1")
	assert.Empty(t, m.ServerID)
	assert.NotEmpty(t, m.LastSyncError)
	assert.False(t, m.SyncBlocked, "network failures are not terminal")
	assert.Equal(t, models.SyncStateFailed, m.State(false))

	res, err = e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	m = get(t, repo, "c1")
	assert.NotEmpty(t, m.ServerID)
	assert.Empty(t, m.LastSyncError)
	assert.Equal(t, 1, remote.stored())
	assert.Equal(t, 1, remote.count("create"))
}

func TestUpload_TerminalErrorBlocks(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	remote.createErrs = []error{apiErr(http.StatusTooManyRequests, api.CodeDailyLimitReached)}

	err := e.Upload(context.Background(), "c1")
	assert.True(t, client.HasCode(err, api.CodeDailyLimitReached))
	assert.Equal(t, 1, remote.count("create"), "terminal errors are not retried")

	m := get(t, repo, "c1")
	assert.True(t, m.SyncBlocked)
	assert.Contains(t, m.LastSyncError, "DAILY_LIMIT_REACHED")
	assert.Equal(t, models.SyncStateFailed, m.State(false))

	assert.ErrorIs(t, e.Upload(context.Background(), "c1"), ErrBlocked)

	pending, err := repo.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending, "blocked moments are skipped by the sweep")

	require.NoError(t, e.Unblock(context.Background(), "c1"))
	require.NoError(t, e.SyncMoment(context.Background(), "c1"))
	m = get(t, repo, "c1")
	assert.True(t, m.Enrichment.Done())
	assert.False(t, m.SyncBlocked)
}

func TestUpload_TransientErrorsAreRetried(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	remote.createErrs = []error{
		apiErr(http.StatusInternalServerError, api.CodeInternal),
		fmt.Errorf("%w: timeout", client.ErrUnavailable),
	}

	require.NoError(t, e.Upload(context.Background(), "c1"))
	assert.Equal(t, 3, remote.count("create"))
	assert.Equal(t, 1, remote.stored())
}

func TestEnrich_ConflictIsRetriedNotTerminal(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	require.NoError(t, e.Upload(context.Background(), "c1"))
	remote.enrichInProgress = 3

	require.NoError(t, e.PollEnrichment(context.Background(), "c1"))

	m := get(t, repo, "c1")
	assert.True(t, m.Enrichment.Done())
	assert.False(t, m.SyncBlocked)
	assert.Empty(t, m.LastSyncError)
	assert.Equal(t, 4, remote.count("enrich"))
	assert.Equal(t, 1, remote.generations)
}

func TestEnrich_ExhaustedConflictLeavesRetryableFailure(t *testing.T) {
	e, repo, remote := setup(t, WithPollPolicy(PollPolicy(time.Millisecond, 2)))
	createLocal(t, repo, "c1")
	require.NoError(t, e.Upload(context.Background(), "c1"))
	remote.enrichInProgress = 5

	err := e.PollEnrichment(context.Background(), "c1")
	assert.True(t, client.HasCode(err, api.CodeEnrichmentInProgress))

	m := get(t, repo, "c1")
	assert.Equal(t, models.EnrichmentFailed, m.Enrichment.Status)
	assert.False(t, m.SyncBlocked)
	assert.True(t, m.NeedsSync(), "the sweep picks it up again")

	remote.enrichInProgress = 0
	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.True(t, get(t, repo, "c1").Enrichment.Done())
}

func TestEnrich_IsIdempotent(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	require.NoError(t, e.SyncMoment(context.Background(), "c1"))
	first := get(t, repo, "c1")

	require.NoError(t, e.Enrich(context.Background(), "c1"))
	require.NoError(t, e.PollEnrichment(context.Background(), "c1"))

	second := get(t, repo, "c1")
	assert.True(t, first.Enrichment.Equal(second.Enrichment))
	assert.Equal(t, 1, remote.count("enrich"), "enriched moments are not sent again")
	assert.Equal(t, 1, remote.generations)
}

func TestEnrich_BeforeUpload(t *testing.T) {
	e, repo, _ := setup(t)
	createLocal(t, repo, "c1")
	assert.ErrorIs(t, e.Enrich(context.Background(), "c1"), ErrNotUploaded)
}

func TestFavoritePropagation(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	require.NoError(t, e.SyncMoment(context.Background(), "c1"))

	_, err := repo.Update(context.Background(), "c1", func(m *models.Moment) error {
		m.IsFavorite = true
		m.FavoriteDirty = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Upload(context.Background(), "c1"))

	m := get(t, repo, "c1")
	assert.True(t, m.IsFavorite)
	assert.False(t, m.FavoriteDirty)
	assert.Equal(t, 1, remote.count("update"))
	assert.True(t, remote.byID[m.ServerID].IsFavorite)
}

func TestFavoriteToggledBeforeUploadIsSentAfterCreate(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	_, err := repo.Update(context.Background(), "c1", func(m *models.Moment) error {
		m.IsFavorite = true
		m.FavoriteDirty = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Upload(context.Background(), "c1"))

	m := get(t, repo, "c1")
	assert.True(t, m.IsFavorite)
	assert.False(t, m.FavoriteDirty)
	assert.True(t, remote.byID[m.ServerID].IsFavorite)
}

func TestUpload_FavoriteToggledDuringPushesIsSent(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	require.NoError(t, e.SyncMoment(context.Background(), "c1"))

	toggle := func() {
		_, err := repo.Update(context.Background(), "c1", func(m *models.Moment) error {
			m.IsFavorite = !m.IsFavorite
			m.FavoriteDirty = true
			return nil
		})
		require.NoError(t, err)
	}

	remote.block = make(chan struct{})
	toggle()

	done := make(chan error, 2)
	go func() { done <- e.Upload(context.Background(), "c1") }()

	for i := 0; i < 4; i++ {
		require.Eventually(t, func() bool { return remote.count("update") == i+1 }, time.Second, time.Millisecond)
		toggle()
		if i == 3 {
			go func() { done <- e.Upload(context.Background(), "c1") }()
		}
		remote.block <- struct{}{}
	}
	remote.release()

	require.NoError(t, <-done)
	require.NoError(t, <-done)

	m := get(t, repo, "c1")
	assert.True(t, m.IsFavorite)
	assert.False(t, m.FavoriteDirty)
	assert.Equal(t, m.IsFavorite, remote.favorite(m.ServerID))
	assert.GreaterOrEqual(t, remote.count("update"), 5)
}

func TestArchiveAndRestorePropagation(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	require.NoError(t, e.SyncMoment(context.Background(), "c1"))

	now := time.Now()
	_, err := repo.Update(context.Background(), "c1", func(m *models.Moment) error {
		m.ArchivedAt = &now
		m.ArchiveDirty = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, e.Upload(context.Background(), "c1"))

	m := get(t, repo, "c1")
	assert.True(t, m.Archived())
	assert.False(t, m.ArchiveDirty)
	assert.NotNil(t, remote.byID[m.ServerID].ArchivedAt)

	_, err = repo.Update(context.Background(), "c1", func(m *models.Moment) error {
		m.ArchivedAt = nil
		m.ArchiveDirty = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, e.Upload(context.Background(), "c1"))

	m = get(t, repo, "c1")
	assert.False(t, m.Archived())
	assert.False(t, m.ArchiveDirty)
	assert.Nil(t, remote.byID[m.ServerID].ArchivedAt)
}

func TestArchivedBeforeUploadStaysLocal(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	now := time.Now()
	_, err := repo.Update(context.Background(), "c1", func(m *models.Moment) error {
		m.ArchivedAt = &now
		m.ArchiveDirty = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.SyncMoment(context.Background(), "c1"))
	assert.Equal(t, 0, remote.count("create"))
}

func TestConcurrentSyncOfSameMoment(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.SyncMoment(context.Background(), "c1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, remote.stored())
	assert.Equal(t, 1, remote.count("create"))
	assert.Equal(t, 1, remote.generations)
	assert.Equal(t, 1, remote.maxActive, "one network call per moment at a time")
}

func TestSweep_BoundedFanOutAndPartialFailure(t *testing.T) {
	e, repo, remote := setup(t, WithConcurrency(2))
	for i := 0; i < 6; i++ {
		createLocal(t, repo, fmt.Sprintf("c%d", i))
	}
	remote.createErrs = []error{apiErr(http.StatusBadRequest, api.CodeValidation)}

	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Attempted)
	assert.Equal(t, 5, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.LessOrEqual(t, remote.maxTotal, 2)
	assert.Equal(t, 5, remote.stored())
}

func TestSweep_NothingPending(t *testing.T) {
	e, _, _ := setup(t)
	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}

func TestUpload_CancellationLeavesNoPartialState(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	remote.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Upload(ctx, "c1") }()

	require.Eventually(t, func() bool { return e.InFlight("c1") }, time.Second, time.Millisecond)
	m := get(t, repo, "c1")
	assert.Equal(t, models.SyncStateSyncing, e.State(&m))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, e.InFlight("c1"), "work is finished when the last caller returns")
	assert.Zero(t, e.waiters(opUpload+":c1"))

	m = get(t, repo, "c1")
	assert.Empty(t, m.ServerID)
	assert.Empty(t, m.LastSyncError)
	assert.False(t, m.SyncBlocked)
	assert.Equal(t, models.SyncStateUnsynced, e.State(&m))
}

func TestUpload_CancelledCallerDoesNotStopJoinedCaller(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	remote.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- e.Upload(ctx, "c1") }()
	require.Eventually(t, func() bool { return remote.count("lookup") == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- e.Upload(context.Background(), "c1") }()
	require.Eventually(t, func() bool { return e.waiters(opUpload+":c1") == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	remote.release()
	require.NoError(t, <-second)

	m := get(t, repo, "c1")
	assert.NotEmpty(t, m.ServerID)
	assert.Empty(t, m.LastSyncError)
	assert.Equal(t, 1, remote.count("create"))
	assert.Equal(t, models.SyncStateSynced, e.State(&m))
}

func TestEnrich_CancellationRevertsEnrichingMarker(t *testing.T) {
	e, repo, remote := setup(t)
	createLocal(t, repo, "c1")
	require.NoError(t, e.Upload(context.Background(), "c1"))
	remote.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Enrich(ctx, "c1") }()

	require.Eventually(t, func() bool {
		return get(t, repo, "c1").Enrichment.Status == models.EnrichmentRunning
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Eventually(t, func() bool {
		return get(t, repo, "c1").Enrichment.Status == models.EnrichmentNone
	}, time.Second, time.Millisecond)
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 1, ClampConcurrency(0))
	assert.Equal(t, 4, ClampConcurrency(4))
	assert.Equal(t, MaxConcurrency, ClampConcurrency(100))
}
