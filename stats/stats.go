// Package stats computes summary counts over the task collection.
package stats

import (
	"context"
	"fmt"

	"task-tracker/tasks-service/lifecycle"
	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"

	"golang.org/x/sync/errgroup"
)

// Counter is the subset of the task store the aggregator reads.
type Counter interface {
	Count(ctx context.Context, filter query.Expr) (int64, error)
	CountBy(ctx context.Context, field string, filter query.Expr) (map[string]int64, error)
}

type Aggregator struct {
	store     Counter
	lifecycle *lifecycle.Lifecycle
}

func NewAggregator(store Counter, lc *lifecycle.Lifecycle) *Aggregator {
	return &Aggregator{store: store, lifecycle: lc}
}

// Compute runs the four counts concurrently over the tasks matching scope.
// The counts are not taken in one snapshot and may disagree slightly under concurrent writes.
func (a *Aggregator) Compute(ctx context.Context, scope query.Expr) (models.TaskStats, error) {
	if scope == nil {
		scope = query.All()
	}

	var out models.TaskStats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := a.store.CountBy(ctx, query.FieldStatus, scope)
		if err != nil {
			return fmt.Errorf("status stats: %w", err)
		}
		out.StatusStats = nonZero(counts)
		return nil
	})
	g.Go(func() error {
		counts, err := a.store.CountBy(ctx, query.FieldPriority, scope)
		if err != nil {
			return fmt.Errorf("priority stats: %w", err)
		}
		out.PriorityStats = nonZero(counts)
		return nil
	})
	g.Go(func() error {
		n, err := a.store.Count(ctx, query.And(scope, a.lifecycle.Overdue()))
		if err != nil {
			return fmt.Errorf("overdue count: %w", err)
		}
		out.OverdueCount = n
		return nil
	})
	g.Go(func() error {
		n, err := a.store.Count(ctx, scope)
		if err != nil {
			return fmt.Errorf("total count: %w", err)
		}
		out.TotalTasks = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.TaskStats{}, err
	}
	return out, nil
}

func nonZero(counts map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for k, v := range counts {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}
