// Package model defines the shared domain types of the coverage pipeline.
package model

import (
	"time"

	"github.com/twpayne/go-geom"
)

// Status classifies a piece of ground by who covers it.
type Status string

const (
	StatusCompetition Status = "competition"
	StatusMonopolyA   Status = "monopoly_a"
	StatusMonopolyB   Status = "monopoly_b"
	StatusPlanned     Status = "planned"
	StatusWhiteSpot   Status = "white_spot"
)

// AllStatuses lists every status in report order.
var AllStatuses = []Status{
	StatusCompetition,
	StatusMonopolyA,
	StatusMonopolyB,
	StatusPlanned,
	StatusWhiteSpot,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, k := range AllStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// LayerKind separates built-out coverage from announced expansion areas.
type LayerKind string

const (
	KindExisting LayerKind = "existing"
	KindPlanned  LayerKind = "planned"
)

// RGBA is an exact-match tile palette color.
type RGBA struct {
	R, G, B, A uint8
}

// Category is one coverage layer of one provider, resolved from the rules
// file: which color to look for, where its tiles live, and how aggressively
// to close gaps in the vectorized output.
type Category struct {
	Key               string
	Provider          string
	Name              string
	Kind              LayerKind
	Color             RGBA
	AlphaMin          uint8
	TileDir           string
	GapRadius         float64
	SimplifyTolerance float64
}

// Feature is one raw polygon extracted from one tile for one category.
type Feature struct {
	Category string
	Tile     string
	Geom     geom.T
}

// Cell is one administrative unit of the analysis area.
type Cell struct {
	ID   string
	Name string
	Geom geom.T
}

// ClassifiedRecord is one classified polygon inside one cell.
type ClassifiedRecord struct {
	ID     string
	CellID string
	Status Status
	AreaM2 float64
	Geom   geom.T
}

// StatusArea aggregates classified records of one status.
type StatusArea struct {
	Status  Status  `json:"status"`
	AreaKM2 float64 `json:"area_km2"`
	Records int     `json:"records"`
}

// RunStatus tracks the lifecycle of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one end-to-end execution of the pipeline.
type Run struct {
	ID        string
	Status    RunStatus
	Summary   []StatusArea
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StepStatus tracks the lifecycle of one pipeline step within a run.
type StepStatus string

const (
	StepStatusRunning  StepStatus = "running"
	StepStatusComplete StepStatus = "complete"
	StepStatusFailed   StepStatus = "failed"
)

// RunStep records one pipeline stage of a run.
type RunStep struct {
	ID         string
	RunID      string
	Name       string
	Status     StepStatus
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// UnitOutcome records a work unit (a tile or a cell) that failed. Unit
// failures are reported, not propagated: one bad tile must not sink the run.
type UnitOutcome struct {
	Unit string
	Err  error
}

// Failed reports whether the outcome carries an error.
func (o UnitOutcome) Failed() bool {
	return o.Err != nil
}
