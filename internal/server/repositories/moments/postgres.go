package moments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

const uniqueViolation = "23505"

const columns = `id, seq, user_id, client_id, text, submitted_at, happened_at, timezone,
	time_ago_seconds, praise, action, tags, enrichment_state, enrichment_claimed_at,
	is_favorite, archived_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Moment) (*models.Moment, error) {
	tags, err := encodeTags(m.Tags)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO moments (id, user_id, client_id, text, submitted_at, happened_at, timezone,
			time_ago_seconds, enrichment_state, is_favorite, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING seq`

	err = r.db.QueryRowContext(ctx, query,
		m.ID, m.UserID, m.ClientID, m.Text, m.SubmittedAt, m.HappenedAt, m.Timezone,
		m.TimeAgoSeconds, string(m.EnrichmentState), m.IsFavorite, tags, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Moment, error) {
	query := `SELECT ` + columns + ` FROM moments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByClientID(ctx context.Context, userID, clientID string) (*models.Moment, error) {
	query := `SELECT ` + columns + ` FROM moments WHERE user_id = $1 AND client_id = $2`
	return r.getOne(ctx, query, userID, clientID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Moment, error) {
	m, err := scanMoment(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, q ListQuery) ([]models.Moment, error) {
	var (
		where = []string{"user_id = $1", "archived_at IS NULL"}
		args  = []any{userID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !q.Since.IsZero() {
		where = append(where, "submitted_at >= "+arg(q.Since))
	}
	if c := q.After; c != nil {
		ts := arg(c.SubmittedAt)
		if c.Seq == 0 {
			where = append(where, "submitted_at < "+ts)
		} else {
			where = append(where, fmt.Sprintf("(submitted_at < %s OR (submitted_at = %s AND seq < %s))", ts, ts, arg(c.Seq)))
		}
	}

	query := `SELECT ` + columns + ` FROM moments WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY submitted_at DESC, seq DESC LIMIT ` + arg(q.Limit)

	return r.queryMany(ctx, query, args...)
}

func (r *PostgresRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Moment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Moment
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ExistsBefore(ctx context.Context, userID string, t time.Time) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM moments
		 WHERE user_id = $1 AND archived_at IS NULL AND submitted_at < $2)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, userID, t).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM moments WHERE user_id = $1 AND created_at >= $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SetFavorite(ctx context.Context, id string, favorite bool, now time.Time) (*models.Moment, error) {
	query :=
		`UPDATE moments SET is_favorite = $2, updated_at = $3
		 WHERE id = $1
		 RETURNING ` + columns
	return r.getOne(ctx, query, id, favorite, now)
}

func (r *PostgresRepository) SetArchived(ctx context.Context, id string, at *time.Time, now time.Time) (*models.Moment, error) {
	query :=
		`UPDATE moments SET archived_at = $2, updated_at = $3
		 WHERE id = $1
		 RETURNING ` + columns
	return r.getOne(ctx, query, id, at, now)
}

func (r *PostgresRepository) ClaimEnrichment(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	query :=
		`UPDATE moments SET enrichment_state = 'claimed', enrichment_claimed_at = $2
		 WHERE id = $1 AND praise IS NULL
		   AND (enrichment_state <> 'claimed' OR enrichment_claimed_at < $3)`

	res, err := r.db.ExecContext(ctx, query, id, now, staleBefore)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PostgresRepository) CompleteEnrichment(ctx context.Context, id, praise, action string, tags []string, now time.Time) (*models.Moment, error) {
	encoded, err := encodeTags(tags)
	if err != nil {
		return nil, err
	}

	query :=
		`UPDATE moments SET praise = $2, action = $3, tags = $4,
			enrichment_state = 'done', enrichment_claimed_at = NULL, updated_at = $5
		 WHERE id = $1 AND praise IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id, praise, action, encoded, now); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepository) FailEnrichment(ctx context.Context, id string) error {
	query :=
		`UPDATE moments SET enrichment_state = 'failed', enrichment_claimed_at = NULL
		 WHERE id = $1 AND praise IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListArchived(ctx context.Context, userID string, cutoff time.Time) ([]models.Moment, error) {
	query := `SELECT ` + columns + ` FROM moments
		 WHERE user_id = $1 AND archived_at IS NOT NULL AND archived_at <= $2
		 ORDER BY submitted_at DESC, seq DESC`
	return r.queryMany(ctx, query, userID, cutoff)
}

func (r *PostgresRepository) DeleteArchived(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	query :=
		`DELETE FROM moments
		 WHERE user_id = $1 AND archived_at IS NOT NULL AND archived_at <= $2`

	res, err := r.db.ExecContext(ctx, query, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMoment(s scanner) (*models.Moment, error) {
	var (
		m         models.Moment
		clientID  sql.NullString
		timeAgo   sql.NullInt64
		praise    sql.NullString
		action    sql.NullString
		tags      []byte
		state     string
		claimedAt sql.NullTime
		archived  sql.NullTime
	)
	err := s.Scan(&m.ID, &m.Seq, &m.UserID, &clientID, &m.Text, &m.SubmittedAt, &m.HappenedAt, &m.Timezone,
		&timeAgo, &praise, &action, &tags, &state, &claimedAt,
		&m.IsFavorite, &archived, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if clientID.Valid {
		m.ClientID = &clientID.String
	}
	if timeAgo.Valid {
		m.TimeAgoSeconds = &timeAgo.Int64
	}
	if praise.Valid {
		m.Praise = &praise.String
	}
	if action.Valid {
		m.Action = &action.String
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &m.Tags); err != nil {
			return nil, fmt.Errorf("invalid tags: %w", err)
		}
	}
	m.EnrichmentState = models.EnrichmentState(state)
	if claimedAt.Valid {
		m.EnrichmentClaimedAt = &claimedAt.Time
	}
	if archived.Valid {
		m.ArchivedAt = &archived.Time
	}
	return &m, nil
}

// encodeTags returns an untyped nil for absent tags so the column is NULL.
func encodeTags(tags []string) (any, error) {
	if tags == nil {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	return b, nil
}
