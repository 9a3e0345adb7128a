// Package classify performs the per-cell coverage market analysis.
package classify

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"

	"github.com/breitband-atlas/coverage-cli/internal/geomx"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// Input is one cell's worth of pre-filtered coverage geometry. ProviderA and
// ProviderB hold the existing-infrastructure polygons of each provider, all
// tiers together; Planned holds announced build-out regardless of provider.
type Input struct {
	Cell      model.Cell
	ProviderA []geom.T
	ProviderB []geom.T
	Planned   []geom.T
}

// Classify maps one cell to its disjoint market statuses. It is pure and
// stateless, so cells can run concurrently without synchronization.
//
// The algebra runs in a fixed order that encodes the tie-break policy:
// competition (A intersect B) is computed before either monopoly difference,
// so overlap area is counted once as competition and never into a monopoly.
// Planned is emitted as-is and may overlap everything; the white spot is the
// remainder of the cell after every coverage kind is subtracted.
func Classify(in Input) ([]model.ClassifiedRecord, error) {
	var records []model.ClassifiedRecord

	err := geomx.Guard("classify cell "+in.Cell.ID, func() error {
		gctx := geos.NewContext()

		cell, err := geomx.ToGeos(gctx, in.Cell.Geom)
		if err != nil {
			return err
		}
		cell = geomx.EnsureValid(cell)

		a, err := unionClipped(gctx, in.ProviderA, cell)
		if err != nil {
			return err
		}
		b, err := unionClipped(gctx, in.ProviderB, cell)
		if err != nil {
			return err
		}
		planned, err := unionClipped(gctx, in.Planned, cell)
		if err != nil {
			return err
		}

		hasA := !a.IsEmpty()
		hasB := !b.IsEmpty()

		switch {
		case hasA && hasB:
			if err := emit(&records, in.Cell.ID, model.StatusCompetition, a.Intersection(b)); err != nil {
				return err
			}
			if err := emit(&records, in.Cell.ID, model.StatusMonopolyA, a.Difference(b)); err != nil {
				return err
			}
			if err := emit(&records, in.Cell.ID, model.StatusMonopolyB, b.Difference(a)); err != nil {
				return err
			}
		case hasA:
			if err := emit(&records, in.Cell.ID, model.StatusMonopolyA, a); err != nil {
				return err
			}
		case hasB:
			if err := emit(&records, in.Cell.ID, model.StatusMonopolyB, b); err != nil {
				return err
			}
		}

		if !planned.IsEmpty() {
			if err := emit(&records, in.Cell.ID, model.StatusPlanned, planned); err != nil {
				return err
			}
		}

		// White spot: the cell minus everything, planned included. Emitted
		// even when it equals the whole cell.
		covered := geomx.UnionAll(gctx, []*geos.Geom{a, b, planned})
		if err := emit(&records, in.Cell.ID, model.StatusWhiteSpot, cell.Difference(covered)); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// unionClipped merges one side's polygons and clips them to the cell.
// An empty slice yields an empty geometry, the neutral element of the
// following algebra.
func unionClipped(gctx *geos.Context, polys []geom.T, cell *geos.Geom) (*geos.Geom, error) {
	geoms := make([]*geos.Geom, 0, len(polys))
	for _, p := range polys {
		g, err := geomx.ToGeos(gctx, p)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, geomx.EnsureValid(g))
	}
	merged := geomx.UnionAll(gctx, geoms)
	return merged.Intersection(cell), nil
}

// emit explodes a status geometry into single-polygon records. Empty and
// non-areal parts produce nothing.
func emit(records *[]model.ClassifiedRecord, cellID string, status model.Status, g *geos.Geom) error {
	for _, part := range geomx.Polygons(g) {
		if part.Area() == 0 {
			continue
		}
		gg, err := geomx.FromGeos(part)
		if err != nil {
			return err
		}
		*records = append(*records, model.ClassifiedRecord{
			CellID: cellID,
			Status: status,
			AreaM2: geomx.Area(gg),
			Geom:   gg,
		})
	}
	return nil
}
