package classify

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/breitband-atlas/coverage-cli/internal/model"
	"github.com/breitband-atlas/coverage-cli/internal/partition"
)

// PoolResult gathers the unordered output of a classification pool.
type PoolResult struct {
	Records []model.ClassifiedRecord
	// Failed lists cells that produced an error. A failed cell contributes
	// zero records, never partial ones.
	Failed []model.UnitOutcome
}

// RunPool classifies cells concurrently. Tasks are independent pure calls;
// results are gathered unordered and merged by plain set union, so no task
// ever observes another's state. A single cell failure is logged and counted
// but never cancels its siblings.
func RunPool(ctx context.Context, tasks []partition.CellTask, cats []model.Category, providerA, providerB string, workers int) PoolResult {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log := zap.L().With(zap.String("component", "classify"))
	log.Info("classifying cells",
		zap.Int("cells", len(tasks)),
		zap.Int("workers", workers),
	)

	kinds := make(map[string]model.Category, len(cats))
	for _, c := range cats {
		kinds[c.Key] = c
	}

	var mu sync.Mutex
	var result PoolResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, task := range tasks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			records, err := Classify(buildInput(task, kinds, providerA, providerB))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("cell classification failed",
					zap.String("cell", task.Cell.ID),
					zap.Error(err),
				)
				result.Failed = append(result.Failed, model.UnitOutcome{Unit: task.Cell.ID, Err: err})
				return nil // isolate the cell, keep siblings running
			}
			result.Records = append(result.Records, records...)
			return nil
		})
	}

	// The group never returns an error: per-cell failures are data.
	_ = g.Wait()

	log.Info("classification complete",
		zap.Int("records", len(result.Records)),
		zap.Int("failed_cells", len(result.Failed)),
	)
	return result
}

// buildInput sorts a cell's category subsets into the classifier's three
// sides: provider A existing, provider B existing, and planned (any
// provider). Multiple tiers of one provider land on the same side and merge
// during classification.
func buildInput(task partition.CellTask, kinds map[string]model.Category, providerA, providerB string) Input {
	in := Input{Cell: task.Cell}
	for key, polys := range task.Categories {
		cat, ok := kinds[key]
		if !ok {
			continue
		}
		switch {
		case cat.Kind == model.KindPlanned:
			in.Planned = append(in.Planned, polys...)
		case cat.Provider == providerA:
			in.ProviderA = append(in.ProviderA, polys...)
		case cat.Provider == providerB:
			in.ProviderB = append(in.ProviderB, polys...)
		}
	}
	return in
}
