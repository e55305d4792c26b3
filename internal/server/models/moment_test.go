package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMoment_ToAPI(t *testing.T) {
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	cid := "c1"
	m := Moment{ID: "s1", ClientID: &cid, Text: "walk", SubmittedAt: ts, HappenedAt: ts, Timezone: "UTC", UpdatedAt: ts}

	got := m.ToAPI()
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "c1", *got.ClientID)
	assert.Nil(t, got.Praise)
	assert.Nil(t, got.Tags)

	cid = "changed"
	assert.Equal(t, "c1", *got.ClientID, "wire copy must not alias the model")

	praise := "nice"
	m.Praise = &praise
	assert.Equal(t, []string{}, m.ToAPI().Tags)
}

func TestMoment_ToTimelineEntryDayInOwnZone(t *testing.T) {
	// 23:30 UTC is already the next day in Tokyo.
	ts := time.Date(2026, 10, 1, 23, 30, 0, 0, time.UTC)
	m := Moment{ID: "s1", Text: "late", SubmittedAt: ts, HappenedAt: ts, Timezone: "Asia/Tokyo"}
	assert.Equal(t, "2026-10-02", m.ToTimelineEntry().Day)

	m.Timezone = "Not/AZone"
	assert.Equal(t, "2026-10-01", m.ToTimelineEntry().Day)
}

func TestMoment_Clone(t *testing.T) {
	praise := "p"
	m := Moment{Praise: &praise, Tags: []string{"a"}}
	c := m.Clone()
	*c.Praise = "q"
	c.Tags[0] = "b"
	assert.Equal(t, "p", *m.Praise)
	assert.Equal(t, "a", m.Tags[0])
}

func TestMoment_Cursor(t *testing.T) {
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	m := Moment{SubmittedAt: ts, Seq: 4}
	assert.Equal(t, "2026-10-01T12:00:00Z~4", m.Cursor().String())
}
