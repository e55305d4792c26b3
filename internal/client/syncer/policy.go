package syncer

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
)

// Enrichment polling defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 10
)

// Policy describes how often an operation is attempted.
type Policy struct {
	// Base is the first delay. With Fixed set it is every delay.
	Base time.Duration
	// Cap bounds every delay. Ignored when Fixed.
	Cap time.Duration
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// JitterPercent randomizes each delay by ±JitterPercent.
	JitterPercent uint64
	Fixed         bool
}

// DefaultPolicy is the exponential backoff used for upload, update and
// enrichment: 500ms doubling, ±25%, capped at 30s, 5 attempts.
func DefaultPolicy() Policy {
	return Policy{Base: 500 * time.Millisecond, Cap: 30 * time.Second, MaxAttempts: 5, JitterPercent: 25}
}

// PollPolicy is a fixed-interval policy for enrichment polling.
func PollPolicy(interval time.Duration, attempts int) Policy {
	return Policy{Base: interval, MaxAttempts: attempts, Fixed: true}
}

// Backoff builds a fresh go-retry backoff for one operation.
func (p Policy) Backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Millisecond
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b retry.Backoff
	if p.Fixed {
		b = retry.NewConstant(base)
	} else {
		b = retry.NewExponential(base)
		if p.JitterPercent > 0 {
			b = retry.WithJitterPercent(p.JitterPercent, b)
		}
		if p.Cap > 0 {
			b = retry.WithCappedDuration(p.Cap, b)
		}
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Delays returns the delays the policy would wait between attempts.
func (p Policy) Delays() []time.Duration {
	b := p.Backoff()
	var out []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			return out
		}
		out = append(out, d)
	}
}

// sleepHint carries a server-suggested delay from a failed attempt into
// the next backoff step.
type sleepHint struct {
	d time.Duration
}

// do runs op until it succeeds, fails with a non-retryable error or the
// policy is exhausted. A RATE_LIMIT_EXCEEDED delay from the server wins
// over a shorter backoff delay. onRetry is called before each wait.
func (p Policy) do(ctx context.Context, op func(ctx context.Context) error, onRetry func(err error, attempt int)) error {
	inner := p.Backoff()
	hint := &sleepHint{}
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := inner.Next()
		if stop {
			return 0, true
		}
		if hint.d > d {
			d = hint.d
		}
		hint.d = 0
		return d, false
	})

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !Classify(err).Retryable() {
			return err
		}
		if ae, ok := client.AsAPIError(err); ok && ae.RetryAfter > 0 {
			hint.d = ae.RetryAfter
		}
		if onRetry != nil {
			onRetry(err, attempt)
		}
		return retry.RetryableError(err)
	})
}
