// Package extract runs the tile extraction stage: a worker pool over cached
// coverage tiles, streaming extracted polygons into the feature store.
package extract

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"runtime"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/breitband-atlas/coverage-cli/internal/model"
	"github.com/breitband-atlas/coverage-cli/internal/raster"
)

// Sink receives flushed feature batches. Implemented by the store.
type Sink interface {
	InsertFeatures(ctx context.Context, feats []model.Feature) error
}

// Options configures the extraction stage.
type Options struct {
	// TilesRoot is prepended to each category's tile directory.
	TilesRoot string
	// Workers bounds the tile pool; 0 means GOMAXPROCS.
	Workers int
	// FlushBatch is the per-category buffer size that triggers a flush to
	// the sink, bounding peak memory on multi-million-feature runs.
	FlushBatch int
	// ClosingIterations is passed through to the raster mask closing.
	ClosingIterations int
}

// Stats reports what one extraction run did.
type Stats struct {
	Tiles      int
	Features   int
	ByCategory map[string]int
	// Failures lists tiles that errored. Each contributed zero features;
	// none aborted the batch.
	Failures []model.UnitOutcome
}

type tileResult struct {
	tile  string
	feats map[string][]*geom.Polygon
	err   error
}

// Run extracts every configured category from its tile directory. Tiles are
// processed unordered by a bounded worker pool; a single coordinating
// goroutine owns the accumulation buffers and flushes them to the sink, so
// workers share no mutable state.
func Run(ctx context.Context, cats []model.Category, opts Options, sink Sink) (*Stats, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log := zap.L().With(zap.String("component", "extract"))
	stats := &Stats{ByCategory: make(map[string]int)}

	for dir, dirCats := range groupByDir(cats) {
		tileDir := filepath.Join(opts.TilesRoot, dir)
		tiles, err := raster.ListTiles(tileDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Warn("tile directory missing, categories stay empty",
					zap.String("dir", tileDir),
					zap.Int("categories", len(dirCats)),
				)
				continue
			}
			return nil, err
		}
		if len(tiles) == 0 {
			log.Warn("no georeferenced tiles found", zap.String("dir", tileDir))
			continue
		}

		log.Info("extracting tiles",
			zap.String("dir", tileDir),
			zap.Int("tiles", len(tiles)),
			zap.Int("categories", len(dirCats)),
			zap.Int("workers", workers),
		)

		if err := runDir(ctx, tiles, dirCats, workers, opts, sink, stats); err != nil {
			return nil, err
		}
	}

	log.Info("extraction complete",
		zap.Int("tiles", stats.Tiles),
		zap.Int("features", stats.Features),
		zap.Int("failed_tiles", len(stats.Failures)),
	)
	return stats, nil
}

func runDir(ctx context.Context, tiles []string, cats []model.Category, workers int, opts Options, sink Sink, stats *Stats) error {
	results := make(chan tileResult, workers)

	// Scatter: independent pure tasks, gathered unordered.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	go func() {
		for _, tile := range tiles {
			g.Go(func() error {
				feats, err := raster.ExtractTile(tile, cats, opts.ClosingIterations)
				select {
				case results <- tileResult{tile: tile, feats: feats, err: err}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	// Gather: the coordinator alone owns the buffers.
	buffers := make(map[string][]model.Feature, len(cats))
	log := zap.L().With(zap.String("component", "extract"))

	for res := range results {
		stats.Tiles++
		if res.err != nil {
			// One corrupt tile is one empty result, never a dead batch.
			log.Warn("tile failed", zap.String("tile", res.tile), zap.Error(res.err))
			stats.Failures = append(stats.Failures, model.UnitOutcome{Unit: res.tile, Err: res.err})
			continue
		}

		for key, polys := range res.feats {
			for _, p := range polys {
				buffers[key] = append(buffers[key], model.Feature{
					Category: key,
					Tile:     filepath.Base(res.tile),
					Geom:     p,
				})
			}
			stats.Features += len(polys)
			stats.ByCategory[key] += len(polys)

			if len(buffers[key]) >= opts.FlushBatch {
				if err := sink.InsertFeatures(ctx, buffers[key]); err != nil {
					return err
				}
				buffers[key] = nil
			}
		}
	}

	// Remainders.
	for _, buf := range buffers {
		if len(buf) == 0 {
			continue
		}
		if err := sink.InsertFeatures(ctx, buf); err != nil {
			return err
		}
	}
	return nil
}

// groupByDir collects the categories served by each tile directory; one
// directory's tiles are read once for all its categories.
func groupByDir(cats []model.Category) map[string][]model.Category {
	byDir := make(map[string][]model.Category)
	for _, c := range cats {
		byDir[c.TileDir] = append(byDir[c.TileDir], c)
	}
	return byDir
}

