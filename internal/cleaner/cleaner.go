// Package cleaner closes real-world gaps in extracted category geometry.
//
// Tile-by-tile extraction leaves seams on tile borders and corridors where
// the source imagery renders coverage as broken lines. The repair is a
// continuous-space morphological closing: buffer outward, union, buffer back
// inward. Gaps narrower than twice the radius are welded shut; wider gaps
// stay open.
package cleaner

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/geomx"
)

// Options configures one gap-closing pass.
type Options struct {
	// Radius is the closing radius in CRS units. Gaps narrower than
	// 2*Radius are closed permanently.
	Radius float64
	// SimplifyTolerance reduces vertex counts before buffering; buffer and
	// union cost scales superlinearly with vertex count. Zero disables.
	SimplifyTolerance float64
	// QuadSegments is the buffer arc approximation.
	QuadSegments int
}

// Result carries the closed geometry and per-input repair accounting.
type Result struct {
	// Polygons is the cleaned coverage, exploded into single polygons and
	// clipped to the boundary.
	Polygons []*geom.Polygon
	// Dropped counts input polygons that could not be made valid and were
	// excluded from the union.
	Dropped int
}

// CloseGaps runs the buffer-union-unbuffer procedure over all polygons of one
// category and clips the outcome to the reference boundary.
//
// An empty input yields an empty result: absence of a category is the neutral
// element of every later union, never an error.
func CloseGaps(features []geom.T, boundary geom.T, opts Options) (*Result, error) {
	if opts.Radius <= 0 {
		return nil, eris.New("cleaner: radius must be positive")
	}
	if opts.QuadSegments <= 0 {
		return nil, eris.New("cleaner: quad segments must be positive")
	}
	if len(features) == 0 {
		return &Result{}, nil
	}

	log := zap.L().With(zap.String("component", "cleaner"))
	gctx := geos.NewContext()

	bnd, err := geomx.ToGeos(gctx, boundary)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	// Validate, simplify and buffer each polygon on its own so a single bad
	// geometry costs one polygon, not the category.
	buffered := make([]*geos.Geom, 0, len(features))
	for i, f := range features {
		var buf *geos.Geom
		unitErr := geomx.Guard("prepare polygon", func() error {
			g, convErr := geomx.ToGeos(gctx, f)
			if convErr != nil {
				return convErr
			}
			g = geomx.EnsureValid(g)
			if g.IsEmpty() {
				return eris.New("cleaner: geometry collapsed during repair")
			}
			if opts.SimplifyTolerance > 0 {
				g = g.TopologyPreserveSimplify(opts.SimplifyTolerance)
			}
			buf = g.Buffer(opts.Radius, opts.QuadSegments)
			return nil
		})
		if unitErr != nil {
			res.Dropped++
			log.Warn("cleaner: dropping unrepairable polygon",
				zap.Int("index", i),
				zap.Error(unitErr),
			)
			continue
		}
		buffered = append(buffered, buf)
	}

	if len(buffered) == 0 {
		return res, nil
	}

	var cleaned geom.T
	err = geomx.Guard("close gaps", func() error {
		// The union is where cross-tile adjacency resolves: two polygons
		// within 2*Radius of each other are connected after buffering.
		merged := geomx.UnionAll(gctx, buffered)
		restored := merged.Buffer(-opts.Radius, opts.QuadSegments)

		// Floating-point buffering can nick the topology; repair before
		// clipping.
		restored = geomx.EnsureValid(restored)
		clipped := restored.Intersection(bnd)

		g, convErr := geomx.FromGeos(clipped)
		if convErr != nil {
			return convErr
		}
		cleaned = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Polygons = geomx.Explode(cleaned)
	return res, nil
}
