package syncer

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// SweepResult summarizes one batch reconciliation.
type SweepResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Sweep syncs every pending moment with bounded fan-out. A failing moment
// does not stop the others; its failure is stored on the moment.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	pending, err := e.repo.Pending(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	if len(pending) == 0 {
		return SweepResult{}, nil
	}

	var (
		g         errgroup.Group
		attempted atomic.Int64
		succeeded atomic.Int64
	)
	g.SetLimit(e.limit)

	for _, m := range pending {
		if ctx.Err() != nil {
			break
		}
		clientID := m.ClientID
		g.Go(func() error {
			attempted.Add(1)
			if err := e.SyncMoment(ctx, clientID); err == nil {
				succeeded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{Attempted: int(attempted.Load()), Succeeded: int(succeeded.Load())}
	res.Failed = res.Attempted - res.Succeeded
	e.log.Info(ctx, "sweep finished", "attempted", res.Attempted, "succeeded", res.Succeeded, "failed", res.Failed)
	return res, ctx.Err()
}
