package syncer

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
	"github.com/dmitrijs2005/momentkeeper/internal/client/models"
	"github.com/dmitrijs2005/momentkeeper/internal/client/repositories/moments"
)

// Class is the failure category that decides what the engine does next.
type Class int

const (
	// ClassNone means no error.
	ClassNone Class = iota
	// ClassTransientNetwork covers timeouts and connection failures.
	ClassTransientNetwork
	// ClassTransientServer covers 5xx, rate limiting and enrichment
	// conflicts.
	ClassTransientServer
	// ClassTerminalClient covers validation, daily limit, not found,
	// forbidden and unauthorized. Never retried automatically.
	ClassTerminalClient
	// ClassIdentityConflict means the remote side already knows the moment
	// under another key; it triggers reconciliation.
	ClassIdentityConflict
	// ClassCanceled means the caller gave up.
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransientNetwork:
		return "transient-network"
	case ClassTransientServer:
		return "transient-server"
	case ClassTerminalClient:
		return "terminal-client"
	case ClassIdentityConflict:
		return "identity-conflict"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether the engine schedules another attempt.
func (c Class) Retryable() bool {
	return c == ClassTransientNetwork || c == ClassTransientServer
}

// Classify maps an error from the remote client or the local store onto
// the failure taxonomy. Errors it does not recognise count as transient
// network failures and are retried within the attempt budget.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCanceled
	}
	if errors.Is(err, models.ErrIdentityMismatch) {
		return ClassIdentityConflict
	}
	if errors.Is(err, ErrEnrichmentPending) {
		return ClassTransientServer
	}
	if errors.Is(err, ErrBlocked) || errors.Is(err, ErrNotUploaded) || errors.Is(err, moments.ErrNotFound) {
		return ClassTerminalClient
	}
	if errors.Is(err, client.ErrUnavailable) {
		return ClassTransientNetwork
	}

	if ae, ok := client.AsAPIError(err); ok {
		switch ae.Code {
		case api.CodeEnrichmentInProgress, api.CodeRateLimitExceeded, api.CodeInternal:
			return ClassTransientServer
		case api.CodeValidation, api.CodeDailyLimitReached, api.CodeMomentNotFound,
			api.CodeForbidden, api.CodeUnauthorized:
			return ClassTerminalClient
		}
		switch {
		case ae.Status >= 500, ae.Status == http.StatusTooManyRequests, ae.Status == http.StatusRequestTimeout:
			return ClassTransientServer
		default:
			return ClassTerminalClient
		}
	}
	return ClassTransientNetwork
}
