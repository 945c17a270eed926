package btr

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// StandardBitrates are the rates commonly programmed into Lawicel style adapters.
var StandardBitrates = []int{
	10000,
	20000,
	33333,
	47619,
	50000,
	83333,
	100000,
	125000,
	250000,
	500000,
	615384,
	800000,
	1000000,
}

type Result struct {
	Target   int
	Solution *Solution
	Err      error
}

// SolveMany solves every target concurrently. Results are returned in the
// same order as targets. A target that cannot be solved is reported in its
// Result, only cancellation of ctx fails the whole call.
func SolveMany(ctx context.Context, targets []int, c Constraints, tolerance float64) ([]Result, error) {
	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			sol, err := Solve(target, c, tolerance)
			results[i] = Result{Target: target, Solution: sol, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
