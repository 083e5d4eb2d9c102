package segment

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// chunkSize is how many customers a worker evaluates between context checks.
const chunkSize = 512

// Filter returns the customers that satisfy group, in population order.
func Filter(customers []Customer, group *ConditionGroup) []Customer {
	return NewEvaluator(time.Now()).Filter(customers, group)
}

// Size returns how many customers satisfy group.
func Size(customers []Customer, group *ConditionGroup) int {
	return NewEvaluator(time.Now()).Size(customers, group)
}

// Filter returns the customers that satisfy group, in population order.
func (ev *Evaluator) Filter(customers []Customer, group *ConditionGroup) []Customer {
	matched := make([]Customer, 0)
	for i := range customers {
		if ev.evaluateGroup(customers[i], group) {
			matched = append(matched, customers[i])
		}
	}
	return matched
}

// Size returns how many customers satisfy group.
func (ev *Evaluator) Size(customers []Customer, group *ConditionGroup) int {
	n := 0
	for i := range customers {
		if ev.evaluateGroup(customers[i], group) {
			n++
		}
	}
	return n
}

// SizeParallel counts matching customers across up to workers goroutines.
// The population is split into chunks and ctx is checked before each chunk,
// so a cancelled scan stops early and returns the context error.
func (ev *Evaluator) SizeParallel(ctx context.Context, customers []Customer, group *ConditionGroup, workers int) (int, error) {
	if workers < 1 {
		workers = 1
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(customers); start += chunkSize {
		if gctx.Err() != nil {
			break
		}
		chunk := customers[start:min(start+chunkSize, len(customers))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			total.Add(int64(ev.Size(chunk, group)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	// The loop may have stopped on a cancellation no worker observed.
	// gctx is always done once Wait returns, so check the caller's ctx.
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int(total.Load()), nil
}
