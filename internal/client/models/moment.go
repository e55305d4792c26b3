// Package models holds the client-side domain types of momentkeeper.
package models

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
)

// SyncState is the derived synchronization state shown to the user.
type SyncState string

const (
	SyncStateUnsynced SyncState = "unsynced"
	SyncStateSyncing  SyncState = "syncing"
	SyncStateSynced   SyncState = "synced"
	SyncStateFailed   SyncState = "syncFailed"
)

// Moment is the local record of a moment.
//
// ClientID is the primary local key and never changes. ServerID is empty
// until the first successful upload and never changes afterwards.
type Moment struct {
	ClientID       string
	ServerID       string
	Text           string
	SubmittedAt    time.Time
	HappenedAt     time.Time
	Timezone       string
	TimeAgoSeconds *int64

	// OfflinePraise is picked locally at creation time and is never
	// touched by sync.
	OfflinePraise string
	Enrichment    Enrichment

	IsFavorite    bool
	FavoriteDirty bool
	ArchivedAt    *time.Time
	ArchiveDirty  bool

	LastSyncError string
	// SyncBlocked is set after a terminal failure. Background sweeps skip
	// the moment until the user retries it.
	SyncBlocked bool

	// RemoteUpdatedAt is the updatedAt of the newest remote copy merged
	// into this record.
	RemoteUpdatedAt time.Time

	// Seq is the local insertion order, assigned by the store.
	Seq       int64
	UpdatedAt time.Time
}

// HappenedAtFor computes submittedAt − timeAgoSeconds, or submittedAt when
// no offset is given.
func HappenedAtFor(submittedAt time.Time, timeAgoSeconds *int64) time.Time {
	if timeAgoSeconds == nil {
		return submittedAt
	}
	return submittedAt.Add(-time.Duration(*timeAgoSeconds) * time.Second)
}

func (m *Moment) Uploaded() bool {
	return m.ServerID != ""
}

func (m *Moment) Archived() bool {
	return m.ArchivedAt != nil
}

// Praise returns the enriched praise when present and the offline one
// otherwise.
func (m *Moment) Praise() string {
	if m.Enrichment.Done() {
		return m.Enrichment.Praise
	}
	return m.OfflinePraise
}

// State derives the sync state. inFlight is true while a network
// operation for this moment is running.
func (m *Moment) State(inFlight bool) SyncState {
	switch {
	case m.Enrichment.Done():
		return SyncStateSynced
	case inFlight:
		return SyncStateSyncing
	case m.LastSyncError != "":
		return SyncStateFailed
	case !m.Uploaded():
		return SyncStateUnsynced
	default:
		return SyncStateSynced
	}
}

// NeedsUpload reports whether the moment has never reached the server.
// Moments archived before their first upload stay local.
func (m *Moment) NeedsUpload() bool {
	return !m.Uploaded() && !m.Archived()
}

// NeedsEnrichment reports whether enrichment should still be requested.
func (m *Moment) NeedsEnrichment() bool {
	return m.Uploaded() && !m.Archived() && !m.Enrichment.Done()
}

// NeedsPropagation reports whether a local favorite or archive change has
// not been acknowledged by the server yet.
func (m *Moment) NeedsPropagation() bool {
	return m.Uploaded() && (m.FavoriteDirty || m.ArchiveDirty)
}

// NeedsSync reports whether a sweep has any work for the moment.
func (m *Moment) NeedsSync() bool {
	if m.SyncBlocked {
		return false
	}
	return m.NeedsUpload() || m.NeedsPropagation() || m.NeedsEnrichment()
}

// Clone returns a deep copy.
func (m Moment) Clone() Moment {
	c := m
	if m.TimeAgoSeconds != nil {
		v := *m.TimeAgoSeconds
		c.TimeAgoSeconds = &v
	}
	if m.ArchivedAt != nil {
		v := *m.ArchivedAt
		c.ArchivedAt = &v
	}
	c.Enrichment.Tags = append([]string(nil), m.Enrichment.Tags...)
	return c
}

// CreateRequest builds the wire body used to upload the moment.
func (m *Moment) CreateRequest() api.CreateMomentRequest {
	clientID := m.ClientID
	submitted := m.SubmittedAt
	tz := m.Timezone
	req := api.CreateMomentRequest{
		ClientID:    &clientID,
		Text:        m.Text,
		SubmittedAt: &submitted,
		Timezone:    &tz,
	}
	if m.TimeAgoSeconds != nil {
		v := *m.TimeAgoSeconds
		req.TimeAgoSeconds = &v
	}
	return req
}

// ErrIdentityMismatch is returned by Merge when the remote copy carries a
// different server identity than the local record.
var ErrIdentityMismatch = errors.New("remote moment identity does not match local record")

// FromRemote builds a fresh local record for a moment first seen in a
// remote listing.
func FromRemote(r api.Moment, clientID string) Moment {
	m := Moment{
		ClientID:        clientID,
		ServerID:        r.ID,
		Text:            r.Text,
		SubmittedAt:     r.SubmittedAt,
		HappenedAt:      r.HappenedAt,
		Timezone:        r.Timezone,
		Enrichment:      NotEnriched(),
		IsFavorite:      r.IsFavorite,
		RemoteUpdatedAt: r.UpdatedAt,
	}
	if r.TimeAgoSeconds != nil {
		v := *r.TimeAgoSeconds
		m.TimeAgoSeconds = &v
	}
	if r.ArchivedAt != nil {
		v := *r.ArchivedAt
		m.ArchivedAt = &v
	}
	if m.HappenedAt.IsZero() {
		m.HappenedAt = HappenedAtFor(m.SubmittedAt, m.TimeAgoSeconds)
	}
	if r.Praise != nil {
		m.Enrichment = Enriched(*r.Praise, deref(r.Action), r.Tags)
	}
	return m
}

// Merge folds a remote copy into the local record and reports whether
// anything changed. The rules:
//
//   - ServerID is adopted when absent locally; a different ServerID is
//     rejected with ErrIdentityMismatch.
//   - Enrichment only moves forward: a completed payload is never replaced
//     or cleared.
//   - Favorite and archive state are taken from the remote copy only when
//     no local change is pending and the copy is not older than the last
//     one merged. Equal versions resolve to the remote value, which is the
//     same data.
//
// Immutable fields (text, timestamps) are never touched.
func Merge(local Moment, remote api.Moment) (Moment, bool, error) {
	if remote.ID == "" {
		return local, false, errors.New("remote moment has no id")
	}
	if local.ServerID != "" && local.ServerID != remote.ID {
		return local, false, ErrIdentityMismatch
	}

	merged := local.Clone()
	changed := false

	if merged.ServerID == "" {
		merged.ServerID = remote.ID
		changed = true
	}

	if remote.Praise != nil && !merged.Enrichment.Done() {
		merged.Enrichment = Enriched(*remote.Praise, deref(remote.Action), remote.Tags)
		changed = true
	}

	stale := !merged.RemoteUpdatedAt.IsZero() && remote.UpdatedAt.Before(merged.RemoteUpdatedAt)
	if stale {
		return merged, changed, nil
	}

	if !merged.FavoriteDirty && merged.IsFavorite != remote.IsFavorite {
		merged.IsFavorite = remote.IsFavorite
		changed = true
	}

	if !merged.ArchiveDirty {
		switch {
		case remote.ArchivedAt != nil && merged.ArchivedAt == nil:
			v := *remote.ArchivedAt
			merged.ArchivedAt = &v
			changed = true
		case remote.ArchivedAt == nil && merged.ArchivedAt != nil:
			merged.ArchivedAt = nil
			changed = true
		}
	}

	if remote.UpdatedAt.After(merged.RemoteUpdatedAt) {
		merged.RemoteUpdatedAt = remote.UpdatedAt
		changed = true
	}

	return merged, changed, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
