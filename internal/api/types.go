// Package api defines the JSON wire contract between the momentkeeper client
// and the remote service: request/response bodies, the paginated list
// envelope, and the error envelope with its codes.
//
// Both sides import this package so a field rename breaks the build instead of
// silently breaking the protocol.
package api

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Tier is the access tier of a user.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Restricted reports whether pagination for this tier is limited to the
// rolling access window.
func (t Tier) Restricted() bool {
	return t != TierPremium
}

// Moment is the remote representation of a moment. Enrichment fields are nil
// until enrichment succeeds.
type Moment struct {
	ID             string     `json:"id"`
	ClientID       *string    `json:"clientId"`
	Text           string     `json:"text"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	HappenedAt     time.Time  `json:"happenedAt"`
	Timezone       string     `json:"timezone"`
	TimeAgoSeconds *int64     `json:"timeAgoSeconds"`
	Praise         *string    `json:"praise"`
	Action         *string    `json:"action"`
	Tags           []string   `json:"tags"`
	IsFavorite     bool       `json:"isFavorite"`
	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
	// UpdatedAt changes on every server-side mutation and orders responses
	// for the same moment.
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateMomentRequest is the body of POST /moments.
type CreateMomentRequest struct {
	ClientID       *string    `json:"clientId,omitempty"`
	Text           string     `json:"text"`
	SubmittedAt    *time.Time `json:"submittedAt,omitempty"`
	Timezone       *string    `json:"timezone,omitempty"`
	TimeAgoSeconds *int64     `json:"timeAgoSeconds,omitempty"`
}

// UpdateMomentRequest is the body of PUT /moments/{id}.
type UpdateMomentRequest struct {
	IsFavorite *bool `json:"isFavorite"`
}

// TimelineEntry is the item shape returned by GET /timeline.
type TimelineEntry struct {
	MomentID    string    `json:"momentId"`
	Text        string    `json:"text"`
	Praise      *string   `json:"praise"`
	Action      *string   `json:"action"`
	Tags        []string  `json:"tags"`
	IsFavorite  bool      `json:"isFavorite"`
	HappenedAt  time.Time `json:"happenedAt"`
	SubmittedAt time.Time `json:"submittedAt"`
	Day         string    `json:"day"`
}

// Page is the list envelope shared by /moments and /timeline.
type Page[T any] struct {
	Data         []T     `json:"data"`
	NextCursor   *string `json:"nextCursor"`
	HasNextPage  bool    `json:"hasNextPage"`
	LimitReached bool    `json:"limitReached"`
}

// RegisterResponse is returned by POST /users.
type RegisterResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Tier   Tier   `json:"tier"`
}

// PurgeResponse is returned by POST /moments/purge.
type PurgeResponse struct {
	Purged     int    `json:"purged"`
	ArchiveKey string `json:"archiveKey,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Page size bounds shared by client and server.
const (
	DefaultPageSize = 20
	MinPageSize     = 1
	MaxPageSize     = 100
)

// ClampPageSize maps a requested limit onto [MinPageSize, MaxPageSize],
// treating zero as DefaultPageSize.
func ClampPageSize(limit int) int {
	switch {
	case limit == 0:
		return DefaultPageSize
	case limit < MinPageSize:
		return MinPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// Moment text bounds, checked by both sides.
const (
	MaxTextLength = 1000
	// MaxTimeAgo bounds timeAgoSeconds to one week.
	MaxTimeAgo = 7 * 24 * 60 * 60
)

// ValidateText reports why text is not an acceptable moment text, or "".
func ValidateText(text string) string {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	switch {
	case n == 0:
		return "text must not be empty"
	case n > MaxTextLength:
		return fmt.Sprintf("text must be at most %d characters", MaxTextLength)
	default:
		return ""
	}
}

// ValidateTimeAgo reports why v is not an acceptable timeAgoSeconds, or "".
func ValidateTimeAgo(v *int64) string {
	if v != nil && (*v < 0 || *v > MaxTimeAgo) {
		return fmt.Sprintf("timeAgoSeconds must be between 0 and %d", MaxTimeAgo)
	}
	return ""
}
