package models

import (
	"slices"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
)

// EnrichmentState tracks server-side generation for a moment.
type EnrichmentState string

const (
	EnrichmentPending EnrichmentState = "pending"
	// EnrichmentClaimed means a request is generating right now.
	EnrichmentClaimed EnrichmentState = "claimed"
	EnrichmentDone    EnrichmentState = "done"
	EnrichmentFailed  EnrichmentState = "failed"
)

// Moment is the stored form of a moment.
//
// Seq is assigned by the store on insert and breaks ties between equal
// SubmittedAt values.
type Moment struct {
	ID             string
	UserID         string
	ClientID       *string
	Text           string
	SubmittedAt    time.Time
	HappenedAt     time.Time
	Timezone       string
	TimeAgoSeconds *int64

	Praise *string
	Action *string
	Tags   []string

	EnrichmentState     EnrichmentState
	EnrichmentClaimedAt *time.Time

	IsFavorite bool
	ArchivedAt *time.Time

	Seq       int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Moment) Enriched() bool {
	return m.Praise != nil
}

func (m *Moment) Archived() bool {
	return m.ArchivedAt != nil
}

// Cursor returns the position of m in the newest-first ordering.
func (m *Moment) Cursor() api.Cursor {
	return api.Cursor{SubmittedAt: m.SubmittedAt, Seq: m.Seq}
}

// Clone returns a deep copy.
func (m Moment) Clone() Moment {
	c := m
	c.ClientID = clonePtr(m.ClientID)
	c.TimeAgoSeconds = clonePtr(m.TimeAgoSeconds)
	c.Praise = clonePtr(m.Praise)
	c.Action = clonePtr(m.Action)
	c.Tags = slices.Clone(m.Tags)
	c.EnrichmentClaimedAt = clonePtr(m.EnrichmentClaimedAt)
	c.ArchivedAt = clonePtr(m.ArchivedAt)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ToAPI converts m to its wire form.
func (m *Moment) ToAPI() api.Moment {
	tags := m.Tags
	if m.Praise != nil && tags == nil {
		tags = []string{}
	}
	return api.Moment{
		ID:             m.ID,
		ClientID:       clonePtr(m.ClientID),
		Text:           m.Text,
		SubmittedAt:    m.SubmittedAt.UTC(),
		HappenedAt:     m.HappenedAt.UTC(),
		Timezone:       m.Timezone,
		TimeAgoSeconds: clonePtr(m.TimeAgoSeconds),
		Praise:         clonePtr(m.Praise),
		Action:         clonePtr(m.Action),
		Tags:           slices.Clone(tags),
		IsFavorite:     m.IsFavorite,
		ArchivedAt:     clonePtr(m.ArchivedAt),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

// ToTimelineEntry converts m to a timeline item. Day is the calendar date
// of HappenedAt in the moment's own timezone.
func (m *Moment) ToTimelineEntry() api.TimelineEntry {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return api.TimelineEntry{
		MomentID:    m.ID,
		Text:        m.Text,
		Praise:      clonePtr(m.Praise),
		Action:      clonePtr(m.Action),
		Tags:        slices.Clone(m.Tags),
		IsFavorite:  m.IsFavorite,
		HappenedAt:  m.HappenedAt.UTC(),
		SubmittedAt: m.SubmittedAt.UTC(),
		Day:         m.HappenedAt.In(loc).Format(time.DateOnly),
	}
}
