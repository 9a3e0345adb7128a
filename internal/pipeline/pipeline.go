// Package pipeline orchestrates the coverage analysis stages: extract,
// clean, classify, export. Each stage is tracked as a run step in the store
// so an interrupted run can be inspected afterwards.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/aggregate"
	"github.com/breitband-atlas/coverage-cli/internal/boundary"
	"github.com/breitband-atlas/coverage-cli/internal/classify"
	"github.com/breitband-atlas/coverage-cli/internal/cleaner"
	"github.com/breitband-atlas/coverage-cli/internal/config"
	"github.com/breitband-atlas/coverage-cli/internal/export"
	"github.com/breitband-atlas/coverage-cli/internal/extract"
	"github.com/breitband-atlas/coverage-cli/internal/model"
	"github.com/breitband-atlas/coverage-cli/internal/partition"
	"github.com/breitband-atlas/coverage-cli/internal/store"
)

// Pipeline wires the analysis stages to configuration and persistence.
type Pipeline struct {
	cfg   *config.Config
	rules *config.Rules
	store store.Store
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, rules *config.Rules, st store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, rules: rules, store: st}
}

// Result summarizes a completed run.
type Result struct {
	RunID       string
	Extract     *extract.Stats
	Summary     []model.StatusArea
	Records     int
	FailedCells int
	Files       *export.Files
}

// Run executes the full pipeline end to end.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log.Info("starting run", zap.String("run_id", run.ID))

	result := &Result{RunID: run.ID}

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("failed to update run status", zap.Error(statusErr))
		}
	}

	trackStep := func(name string, fn func() (string, error)) error {
		step, stepErr := p.store.CreateStep(ctx, run.ID, name)
		if stepErr != nil {
			log.Warn("failed to create step", zap.String("step", name), zap.Error(stepErr))
		}

		start := time.Now()
		detail, fnErr := fn()
		duration := time.Since(start)

		status := model.StepStatusComplete
		if fnErr != nil {
			status = model.StepStatusFailed
			detail = fnErr.Error()
			log.Error("step failed",
				zap.String("step", name),
				zap.Duration("duration", duration),
				zap.Error(fnErr),
			)
		} else {
			log.Info("step complete",
				zap.String("step", name),
				zap.Duration("duration", duration),
				zap.String("detail", detail),
			)
		}

		if step != nil {
			if completeErr := p.store.CompleteStep(ctx, step.ID, status, detail); completeErr != nil {
				log.Warn("failed to complete step", zap.String("step", name), zap.Error(completeErr))
			}
		}
		return fnErr
	}

	fail := func(err error) (*Result, error) {
		setStatus(model.RunStatusFailed)
		return nil, err
	}

	// Cells and reference boundary. Having neither is fatal.
	var cells []model.Cell
	var ref geom.T
	if err := trackStep("boundary", func() (string, error) {
		var stepErr error
		cells, stepErr = boundary.Load(ctx, p.cfg.Boundary)
		if stepErr != nil {
			return "", stepErr
		}
		ref, stepErr = boundary.Dissolve(cells)
		if stepErr != nil {
			return "", stepErr
		}
		return fmt.Sprintf("%d cells", len(cells)), nil
	}); err != nil {
		return fail(err)
	}

	if err := trackStep("extract", func() (string, error) {
		var stepErr error
		result.Extract, stepErr = p.Extract(ctx, run.ID)
		if stepErr != nil {
			return "", stepErr
		}
		return fmt.Sprintf("%d features from %d tiles, %d tile failures",
			result.Extract.Features, result.Extract.Tiles, len(result.Extract.Failures)), nil
	}); err != nil {
		return fail(err)
	}

	var coverage map[string][]geom.T
	if err := trackStep("clean", func() (string, error) {
		var stepErr error
		coverage, stepErr = p.Clean(ctx, run.ID, ref)
		if stepErr != nil {
			return "", stepErr
		}
		return fmt.Sprintf("%d categories", len(coverage)), nil
	}); err != nil {
		return fail(err)
	}

	var records []model.ClassifiedRecord
	if err := trackStep("classify", func() (string, error) {
		var stepErr error
		records, result.FailedCells, stepErr = p.Classify(ctx, run.ID, cells, coverage)
		if stepErr != nil {
			return "", stepErr
		}
		return fmt.Sprintf("%d records, %d failed cells", len(records), result.FailedCells), nil
	}); err != nil {
		return fail(err)
	}
	result.Records = len(records)
	result.Summary = aggregate.Summarize(records)

	if err := trackStep("export", func() (string, error) {
		providerA, providerB := p.providers()
		files, stepErr := export.All(p.cfg.Export.Dir, records, result.Summary, providerA, providerB)
		if stepErr != nil {
			return "", stepErr
		}
		result.Files = files
		return files.Shapefile, nil
	}); err != nil {
		return fail(err)
	}

	if err := p.store.FinishRun(ctx, run.ID, result.Summary); err != nil {
		return nil, eris.Wrap(err, "pipeline: finish run")
	}
	log.Info("run complete", zap.String("run_id", run.ID), zap.Int("records", result.Records))
	return result, nil
}

// runSink binds the extraction sink to one run.
type runSink struct {
	store store.Store
	runID string
}

func (s runSink) InsertFeatures(ctx context.Context, feats []model.Feature) error {
	return s.store.InsertFeatures(ctx, s.runID, feats)
}

// Extract runs tile color extraction for every category and streams the
// resulting features into the store.
func (p *Pipeline) Extract(ctx context.Context, runID string) (*extract.Stats, error) {
	return extract.Run(ctx, p.rules.Categories(), extract.Options{
		TilesRoot:         p.cfg.Extract.TilesRoot,
		Workers:           p.cfg.Extract.Workers,
		FlushBatch:        p.cfg.Extract.FlushBatch,
		ClosingIterations: p.cfg.Extract.ClosingIterations,
	}, runSink{store: p.store, runID: runID})
}

// Clean closes gaps per category and persists the cleaned coverage. A
// category without features, or one whose gap closing fails, yields empty
// coverage; every category being empty is fatal because classification
// would be vacuous.
func (p *Pipeline) Clean(ctx context.Context, runID string, ref geom.T) (map[string][]geom.T, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	coverage := make(map[string][]geom.T)
	total := 0
	for _, cat := range p.rules.Categories() {
		features, err := p.store.ListFeatures(ctx, runID, cat.Key)
		if err != nil {
			return nil, err
		}

		geoms := make([]geom.T, 0, len(features))
		for _, f := range features {
			geoms = append(geoms, f.Geom)
		}

		res, err := cleaner.CloseGaps(geoms, ref, cleaner.Options{
			Radius:            cat.GapRadius,
			SimplifyTolerance: cat.SimplifyTolerance,
			QuadSegments:      p.cfg.Clean.QuadSegments,
		})
		if err != nil {
			// One broken category must not sink the others; it contributes
			// nothing and the run carries on.
			log.Error("gap closing failed, category yields no coverage",
				zap.String("category", cat.Key),
				zap.Error(err))
			if saveErr := p.store.SaveCoverage(ctx, runID, cat.Key, nil); saveErr != nil {
				return nil, saveErr
			}
			coverage[cat.Key] = nil
			continue
		}
		if res.Dropped > 0 {
			log.Warn("dropped unusable polygons",
				zap.String("category", cat.Key),
				zap.Int("dropped", res.Dropped))
		}

		polys := make([]geom.T, 0, len(res.Polygons))
		for _, poly := range res.Polygons {
			polys = append(polys, poly)
		}
		if err := p.store.SaveCoverage(ctx, runID, cat.Key, polys); err != nil {
			return nil, err
		}
		coverage[cat.Key] = polys
		total += len(polys)
	}

	if total == 0 {
		return nil, eris.New("pipeline: no category produced any coverage")
	}
	return coverage, nil
}

// Classify partitions the coverage by cell, classifies every cell in
// parallel and persists the classified records.
func (p *Pipeline) Classify(ctx context.Context, runID string, cells []model.Cell, coverage map[string][]geom.T) ([]model.ClassifiedRecord, int, error) {
	providerA, providerB := p.providers()

	tasks := partition.Split(cells, coverage)
	res := classify.RunPool(ctx, tasks, p.rules.Categories(), providerA, providerB, p.cfg.Classify.Workers)

	records := aggregate.Merge(res.Records)
	if err := p.store.ReplaceRecords(ctx, runID, records); err != nil {
		return nil, 0, err
	}
	return records, len(res.Failed), nil
}

func (p *Pipeline) providers() (string, string) {
	keys := p.rules.ProviderKeys()
	providerA := keys[0]
	providerB := ""
	if len(keys) > 1 {
		providerB = keys[1]
	}
	return providerA, providerB
}
