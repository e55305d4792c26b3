package moments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
)

// timeLayout is fixed width so that text comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const momentColumns = `seq, client_id, server_id, text, submitted_at, happened_at, timezone,
	time_ago_seconds, offline_praise, enrichment_status, enriched_praise, action, tags,
	enrichment_reason, is_favorite, favorite_dirty, archived_at, archive_dirty,
	last_sync_error, sync_blocked, remote_updated_at, updated_at`

type SQLiteStore struct {
	db dbx.DBTX
}

func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Insert(ctx context.Context, m *models.Moment) error {
	row, err := toRow(m)
	if err != nil {
		return err
	}

	query := `INSERT INTO moments (client_id, server_id, text, submitted_at, happened_at, timezone,
		time_ago_seconds, offline_praise, enrichment_status, enriched_praise, action, tags,
		enrichment_reason, is_favorite, favorite_dirty, archived_at, archive_dirty,
		last_sync_error, sync_blocked, remote_updated_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		m.ClientID, row.serverID, m.Text, formatTime(m.SubmittedAt), formatTime(m.HappenedAt), m.Timezone,
		row.timeAgo, m.OfflinePraise, string(m.Enrichment.Status), row.praise, row.action, row.tags,
		m.Enrichment.Reason, m.IsFavorite, m.FavoriteDirty, row.archivedAt, m.ArchiveDirty,
		m.LastSyncError, m.SyncBlocked, formatOptionalTime(m.RemoteUpdatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert moment %s: %w", m.ClientID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert moment: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read moment seq: %w", err)
	}
	m.Seq = seq
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, clientID string) (models.Moment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+momentColumns+` FROM moments WHERE client_id = ?`, clientID)
	return scanMoment(row)
}

func (s *SQLiteStore) GetByServerID(ctx context.Context, serverID string) (models.Moment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+momentColumns+` FROM moments WHERE server_id = ?`, serverID)
	return scanMoment(row)
}

func (s *SQLiteStore) Save(ctx context.Context, m models.Moment) error {
	row, err := toRow(&m)
	if err != nil {
		return err
	}

	query := `UPDATE moments SET server_id = ?, enrichment_status = ?, enriched_praise = ?, action = ?,
		tags = ?, enrichment_reason = ?, is_favorite = ?, favorite_dirty = ?, archived_at = ?,
		archive_dirty = ?, last_sync_error = ?, sync_blocked = ?, remote_updated_at = ?, updated_at = ?
		WHERE client_id = ?`

	res, err := s.db.ExecContext(ctx, query,
		row.serverID, string(m.Enrichment.Status), row.praise, row.action,
		row.tags, m.Enrichment.Reason, m.IsFavorite, m.FavoriteDirty, row.archivedAt,
		m.ArchiveDirty, m.LastSyncError, m.SyncBlocked, formatOptionalTime(m.RemoteUpdatedAt), formatTime(m.UpdatedAt),
		m.ClientID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save moment %s: %w", m.ClientID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save moment: %w", err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]models.Moment, error) {
	var where, order string
	switch {
	case f.Pending:
		where = `WHERE sync_blocked = 0 AND (
			(server_id IS NULL AND archived_at IS NULL)
			OR favorite_dirty = 1 OR archive_dirty = 1
			OR (server_id IS NOT NULL AND archived_at IS NULL AND enrichment_status <> 'enriched'))`
		order = `ORDER BY seq ASC`
	case f.All:
		order = `ORDER BY submitted_at DESC, seq DESC`
	case f.Archived:
		where = `WHERE archived_at IS NOT NULL`
		order = `ORDER BY archived_at DESC, seq DESC`
	default:
		where = `WHERE archived_at IS NULL`
		order = `ORDER BY submitted_at DESC, seq DESC`
	}

	query := `SELECT ` + momentColumns + ` FROM moments ` + where + ` ` + order
	var args []any
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select moments: %w", err)
	}
	defer rows.Close()

	var result []models.Moment
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, err
		}
		if f.Pending && !m.NeedsSync() {
			continue
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate moments: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, clientID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM moments WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete moment: %w", err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) DeletePurgeable(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM moments WHERE archived_at IS NOT NULL AND (archive_dirty = 0 OR server_id IS NULL)`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge moments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM moments`); err != nil {
		return fmt.Errorf("failed to clear moments: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMoment(r rowScanner) (models.Moment, error) {
	var (
		m                                models.Moment
		serverID, praise, action, tags   sql.NullString
		archivedAt                       sql.NullString
		timeAgo                          sql.NullInt64
		submitted, happened, remote, upd string
		status                           string
	)

	err := r.Scan(&m.Seq, &m.ClientID, &serverID, &m.Text, &submitted, &happened, &m.Timezone,
		&timeAgo, &m.OfflinePraise, &status, &praise, &action, &tags,
		&m.Enrichment.Reason, &m.IsFavorite, &m.FavoriteDirty, &archivedAt, &m.ArchiveDirty,
		&m.LastSyncError, &m.SyncBlocked, &remote, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Moment{}, ErrNotFound
	}
	if err != nil {
		return models.Moment{}, fmt.Errorf("failed to scan moment: %w", err)
	}

	m.ServerID = serverID.String
	m.Enrichment.Status = models.EnrichmentStatus(status)
	m.Enrichment.Praise = praise.String
	m.Enrichment.Action = action.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &m.Enrichment.Tags); err != nil {
			return models.Moment{}, fmt.Errorf("failed to decode tags of %s: %w", m.ClientID, err)
		}
	}
	if timeAgo.Valid {
		v := timeAgo.Int64
		m.TimeAgoSeconds = &v
	}

	if m.SubmittedAt, err = parseTime(submitted); err != nil {
		return models.Moment{}, err
	}
	if m.HappenedAt, err = parseTime(happened); err != nil {
		return models.Moment{}, err
	}
	if m.UpdatedAt, err = parseTime(upd); err != nil {
		return models.Moment{}, err
	}
	if remote != "" {
		if m.RemoteUpdatedAt, err = parseTime(remote); err != nil {
			return models.Moment{}, err
		}
	}
	if archivedAt.Valid {
		t, err := parseTime(archivedAt.String)
		if err != nil {
			return models.Moment{}, err
		}
		m.ArchivedAt = &t
	}
	return m, nil
}

type momentRow struct {
	serverID   sql.NullString
	praise     sql.NullString
	action     sql.NullString
	tags       sql.NullString
	archivedAt sql.NullString
	timeAgo    sql.NullInt64
}

func toRow(m *models.Moment) (momentRow, error) {
	var r momentRow
	if m.ServerID != "" {
		r.serverID = sql.NullString{String: m.ServerID, Valid: true}
	}
	if m.Enrichment.Done() {
		r.praise = sql.NullString{String: m.Enrichment.Praise, Valid: true}
		r.action = sql.NullString{String: m.Enrichment.Action, Valid: true}
		b, err := json.Marshal(m.Enrichment.Tags)
		if err != nil {
			return r, fmt.Errorf("failed to encode tags: %w", err)
		}
		r.tags = sql.NullString{String: string(b), Valid: true}
	}
	if m.ArchivedAt != nil {
		r.archivedAt = sql.NullString{String: formatTime(*m.ArchivedAt), Valid: true}
	}
	if m.TimeAgoSeconds != nil {
		r.timeAgo = sql.NullInt64{Int64: *m.TimeAgoSeconds, Valid: true}
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
