package models

import "slices"

// EnrichmentStatus is the tag of the Enrichment state machine.
type EnrichmentStatus string

const (
	EnrichmentNone      EnrichmentStatus = "not_enriched"
	EnrichmentRunning   EnrichmentStatus = "enriching"
	EnrichmentCompleted EnrichmentStatus = "enriched"
	EnrichmentFailed    EnrichmentStatus = "failed"
)

// Enrichment is the server-generated part of a moment:
//
//	NotEnriched -> Enriching -> Enriched(praise, action, tags)
//	                         -> Failed(reason) -> Enriching ...
//
// Only the Enriched state carries a payload and it is terminal.
type Enrichment struct {
	Status EnrichmentStatus
	Praise string
	Action string
	Tags   []string
	Reason string
}

func NotEnriched() Enrichment {
	return Enrichment{Status: EnrichmentNone}
}

func Enriching() Enrichment {
	return Enrichment{Status: EnrichmentRunning}
}

func Enriched(praise, action string, tags []string) Enrichment {
	return Enrichment{Status: EnrichmentCompleted, Praise: praise, Action: action, Tags: slices.Clone(tags)}
}

func EnrichmentFailure(reason string) Enrichment {
	return Enrichment{Status: EnrichmentFailed, Reason: reason}
}

// Done reports whether the payload is present.
func (e Enrichment) Done() bool {
	return e.Status == EnrichmentCompleted
}

// Transition returns the state after moving to next. Once enriched, the
// payload is kept and every other transition is ignored.
func (e Enrichment) Transition(next Enrichment) Enrichment {
	if e.Done() {
		return e
	}
	if next.Status == "" {
		return NotEnriched()
	}
	return next
}

// Equal compares two states including the payload.
func (e Enrichment) Equal(o Enrichment) bool {
	return e.Status == o.Status &&
		e.Praise == o.Praise &&
		e.Action == o.Action &&
		e.Reason == o.Reason &&
		slices.Equal(e.Tags, o.Tags)
}
