// Package enrichment produces the praise, suggested action and tags attached
// to a moment after it reaches the server.
package enrichment

import (
	"context"
	"errors"
	"strings"
)

// Result is one generated enrichment.
type Result struct {
	Praise string   `json:"praise"`
	Action string   `json:"action"`
	Tags   []string `json:"tags"`
}

// ErrEmptyResult is returned when a generator produces no praise.
var ErrEmptyResult = errors.New("empty enrichment result")

// Generator creates enrichment for the text of a moment.
type Generator interface {
	Generate(ctx context.Context, text string) (Result, error)
}

const maxTags = 5

// normalize trims fields and lowercases, dedupes and caps tags.
func normalize(r Result) (Result, error) {
	r.Praise = strings.TrimSpace(r.Praise)
	r.Action = strings.TrimSpace(r.Action)
	if r.Praise == "" {
		return Result{}, ErrEmptyResult
	}

	seen := make(map[string]struct{}, len(r.Tags))
	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
		if len(tags) == maxTags {
			break
		}
	}
	r.Tags = tags
	return r, nil
}
