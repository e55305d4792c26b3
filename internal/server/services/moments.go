package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
	"github.com/dmitrijs2005/momentkeeper/internal/server/archive"
	"github.com/dmitrijs2005/momentkeeper/internal/server/config"
	"github.com/dmitrijs2005/momentkeeper/internal/server/enrichment"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/moments"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/repomanager"
)

const maxClientIDLength = 128

// MomentService implements the moment endpoints for an authenticated user.
// Caller-visible failures are returned as *api.Error; anything else is an
// internal error.
type MomentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	generator   enrichment.Generator
	exporter    archive.Exporter
	log         logging.Logger

	dailyLimit int
	window     time.Duration
	staleAfter time.Duration

	now func() time.Time
}

func NewMomentService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	generator enrichment.Generator,
	exporter archive.Exporter,
	cfg *config.Config,
	log logging.Logger,
) *MomentService {
	return &MomentService{
		db:          db,
		repomanager: m,
		generator:   generator,
		exporter:    exporter,
		log:         log.With("module", "moments"),
		dailyLimit:  cfg.DailyMomentLimit,
		window:      cfg.RestrictedWindow,
		staleAfter:  cfg.EnrichmentStaleAfter,
		now:         time.Now,
	}
}

func (s *MomentService) repo() moments.Repository {
	return s.repomanager.Moments(s.db)
}

// Create stores a new moment. A request repeating a known clientId returns
// the stored moment and created=false without counting against the daily
// limit.
func (s *MomentService) Create(ctx context.Context, user *models.User, req api.CreateMomentRequest) (*models.Moment, bool, error) {
	if msg := api.ValidateText(req.Text); msg != "" {
		return nil, false, api.NewValidation(msg)
	}
	if msg := api.ValidateTimeAgo(req.TimeAgoSeconds); msg != "" {
		return nil, false, api.NewValidation(msg)
	}
	if req.ClientID != nil {
		cid := strings.TrimSpace(*req.ClientID)
		if cid == "" || len(cid) > maxClientIDLength {
			return nil, false, api.NewValidation(fmt.Sprintf("clientId must be 1 to %d characters", maxClientIDLength))
		}
		req.ClientID = &cid
	}
	tz := "UTC"
	if req.Timezone != nil && *req.Timezone != "" {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return nil, false, api.NewValidation(fmt.Sprintf("unknown timezone %q", *req.Timezone))
		}
		tz = *req.Timezone
	}

	if req.ClientID != nil {
		existing, err := s.repo().GetByClientID(ctx, user.ID, *req.ClientID)
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, common.ErrorNotFound):
			return nil, false, fmt.Errorf("error looking up client id: %w", err)
		}
	}

	now := s.now().UTC()
	submittedAt := now
	if req.SubmittedAt != nil && !req.SubmittedAt.IsZero() {
		submittedAt = req.SubmittedAt.UTC()
	}
	happenedAt := submittedAt
	if req.TimeAgoSeconds != nil {
		happenedAt = submittedAt.Add(-time.Duration(*req.TimeAgoSeconds) * time.Second)
	}

	m := &models.Moment{
		ID:              ulid.Make().String(),
		UserID:          user.ID,
		ClientID:        req.ClientID,
		Text:            strings.TrimSpace(req.Text),
		SubmittedAt:     submittedAt,
		HappenedAt:      happenedAt,
		Timezone:        tz,
		TimeAgoSeconds:  req.TimeAgoSeconds,
		EnrichmentState: models.EnrichmentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var created *models.Moment
	err := dbx.RunInTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Moments(tx)
		if user.Tier.Restricted() && s.dailyLimit > 0 {
			n, err := repo.CountCreatedSince(ctx, user.ID, startOfDay(now))
			if err != nil {
				return err
			}
			if n >= s.dailyLimit {
				return api.NewDailyLimitReached(s.dailyLimit)
			}
		}
		var err error
		created, err = repo.Create(ctx, m)
		return err
	})
	if err != nil {
		// lost a race with a concurrent create for the same clientId
		if errors.Is(err, common.ErrorAlreadyExists) && req.ClientID != nil {
			existing, gerr := s.repo().GetByClientID(ctx, user.ID, *req.ClientID)
			if gerr != nil {
				return nil, false, fmt.Errorf("error re-reading moment: %w", gerr)
			}
			return existing, false, nil
		}
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return nil, false, apiErr
		}
		return nil, false, fmt.Errorf("error creating moment: %w", err)
	}
	return created, true, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Get returns a moment owned by user, archived or not.
func (s *MomentService) Get(ctx context.Context, user *models.User, id string) (*models.Moment, error) {
	m, err := s.repo().Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, api.NewMomentNotFound(id)
		}
		return nil, fmt.Errorf("error loading moment: %w", err)
	}
	if m.UserID != user.ID {
		return nil, api.NewForbidden()
	}
	return m, nil
}

// GetByClientID looks a moment up by the identity the client chose for it.
func (s *MomentService) GetByClientID(ctx context.Context, user *models.User, clientID string) (*models.Moment, error) {
	m, err := s.repo().GetByClientID(ctx, user.ID, clientID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, api.NewMomentNotFound(clientID)
		}
		return nil, fmt.Errorf("error loading moment: %w", err)
	}
	return m, nil
}

func (s *MomentService) Update(ctx context.Context, user *models.User, id string, req api.UpdateMomentRequest) (*models.Moment, error) {
	if req.IsFavorite == nil {
		return nil, api.NewValidation("isFavorite is required")
	}
	m, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if m.IsFavorite == *req.IsFavorite {
		return m, nil
	}
	m, err = s.repo().SetFavorite(ctx, id, *req.IsFavorite, s.now().UTC())
	return updated(id, m, err)
}

// Archive soft-deletes a moment. Archiving twice keeps the first timestamp.
func (s *MomentService) Archive(ctx context.Context, user *models.User, id string) (*models.Moment, error) {
	m, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if m.Archived() {
		return m, nil
	}
	now := s.now().UTC()
	m, err = s.repo().SetArchived(ctx, id, &now, now)
	return updated(id, m, err)
}

func (s *MomentService) Restore(ctx context.Context, user *models.User, id string) (*models.Moment, error) {
	m, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if !m.Archived() {
		return m, nil
	}
	m, err = s.repo().SetArchived(ctx, id, nil, s.now().UTC())
	return updated(id, m, err)
}

func updated(id string, m *models.Moment, err error) (*models.Moment, error) {
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, api.NewMomentNotFound(id)
		}
		return nil, fmt.Errorf("error updating moment: %w", err)
	}
	return m, nil
}

// Enrich generates praise for a moment once. Calls on an enriched moment
// return the stored result; a call racing an unfinished generation gets
// ENRICHMENT_IN_PROGRESS.
func (s *MomentService) Enrich(ctx context.Context, user *models.User, id string) (*models.Moment, error) {
	m, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if m.Enriched() {
		return m, nil
	}

	repo := s.repo()
	now := s.now().UTC()
	claimed, err := repo.ClaimEnrichment(ctx, id, now, now.Add(-s.staleAfter))
	if err != nil {
		return nil, fmt.Errorf("error claiming enrichment: %w", err)
	}
	if !claimed {
		current, err := s.Get(ctx, user, id)
		if err != nil {
			return nil, err
		}
		if current.Enriched() {
			return current, nil
		}
		return nil, api.NewEnrichmentInProgress(id)
	}

	genCtx := ctx
	if s.staleAfter > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.staleAfter)
		defer cancel()
	}
	res, err := s.generator.Generate(genCtx, m.Text)
	if err != nil {
		s.log.Warn(ctx, "enrichment failed", "id", id, "error", err)
		if ferr := repo.FailEnrichment(context.WithoutCancel(ctx), id); ferr != nil {
			s.log.Error(ctx, "failed to release enrichment claim", "id", id, "error", ferr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, api.NewInternal()
	}

	done, err := repo.CompleteEnrichment(ctx, id, res.Praise, res.Action, res.Tags, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("error storing enrichment: %w", err)
	}
	return done, nil
}

type page struct {
	items        []models.Moment
	next         *string
	hasNext      bool
	limitReached bool
}

// page reads one page of visible moments, newest first. Restricted tiers
// only see moments submitted within the rolling window; limitReached is set
// on the last visible page when older moments exist.
func (s *MomentService) page(ctx context.Context, user *models.User, cursor string, limit int) (page, error) {
	var q moments.ListQuery
	if cursor != "" {
		c, err := api.ParseCursor(cursor)
		if err != nil {
			return page{}, api.NewValidation("invalid cursor")
		}
		q.After = &c
	}
	limit = api.ClampPageSize(limit)
	q.Limit = limit + 1

	restricted := user.Tier.Restricted() && s.window > 0
	var windowStart time.Time
	if restricted {
		windowStart = s.now().UTC().Add(-s.window)
		q.Since = windowStart
	}

	repo := s.repo()
	items, err := repo.List(ctx, user.ID, q)
	if err != nil {
		return page{}, fmt.Errorf("error listing moments: %w", err)
	}

	var p page
	if len(items) > limit {
		items = items[:limit]
		p.hasNext = true
		next := items[len(items)-1].Cursor().String()
		p.next = &next
	} else if restricted {
		p.limitReached, err = repo.ExistsBefore(ctx, user.ID, windowStart)
		if err != nil {
			return page{}, fmt.Errorf("error checking window: %w", err)
		}
	}
	p.items = items
	return p, nil
}

func (s *MomentService) List(ctx context.Context, user *models.User, cursor string, limit int) (api.Page[api.Moment], error) {
	p, err := s.page(ctx, user, cursor, limit)
	if err != nil {
		return api.Page[api.Moment]{}, err
	}
	data := make([]api.Moment, 0, len(p.items))
	for i := range p.items {
		data = append(data, p.items[i].ToAPI())
	}
	return api.Page[api.Moment]{Data: data, NextCursor: p.next, HasNextPage: p.hasNext, LimitReached: p.limitReached}, nil
}

func (s *MomentService) Timeline(ctx context.Context, user *models.User, cursor string, limit int) (api.Page[api.TimelineEntry], error) {
	p, err := s.page(ctx, user, cursor, limit)
	if err != nil {
		return api.Page[api.TimelineEntry]{}, err
	}
	data := make([]api.TimelineEntry, 0, len(p.items))
	for i := range p.items {
		data = append(data, p.items[i].ToTimelineEntry())
	}
	return api.Page[api.TimelineEntry]{Data: data, NextCursor: p.next, HasNextPage: p.hasNext, LimitReached: p.limitReached}, nil
}

// Purge exports and then removes every moment the user archived up to now.
// Nothing is removed when the export fails.
func (s *MomentService) Purge(ctx context.Context, user *models.User) (api.PurgeResponse, error) {
	cutoff := s.now().UTC()
	repo := s.repo()

	archived, err := repo.ListArchived(ctx, user.ID, cutoff)
	if err != nil {
		return api.PurgeResponse{}, fmt.Errorf("error listing archived moments: %w", err)
	}
	if len(archived) == 0 {
		return api.PurgeResponse{}, nil
	}

	key, err := s.exporter.Export(ctx, user.ID, archived)
	if err != nil {
		s.log.Error(ctx, "archive export failed", "user", user.ID, "error", err)
		return api.PurgeResponse{}, api.NewInternal()
	}

	n, err := repo.DeleteArchived(ctx, user.ID, cutoff)
	if err != nil {
		return api.PurgeResponse{}, fmt.Errorf("error deleting archived moments: %w", err)
	}
	s.log.Info(ctx, "purged archived moments", "user", user.ID, "count", n, "key", key)
	return api.PurgeResponse{Purged: n, ArchiveKey: key}, nil
}
