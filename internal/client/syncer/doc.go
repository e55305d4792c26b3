// Package syncer is the synchronization engine of the momentkeeper client.
//
// It uploads locally created moments exactly once (looking the clientId up
// before every create), propagates favorite and archive changes, drives the
// idempotent enrichment call and reconciles remote responses into the local
// repository. Failures are classified (see Classify): transient ones are
// retried with exponential backoff and jitter, terminal ones block the
// moment until the user retries it.
package syncer
