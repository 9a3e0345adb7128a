package store

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the coverage pipeline.
// Geometries are persisted as WKB so both backends share one representation.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, summary []model.StatusArea) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Steps
	CreateStep(ctx context.Context, runID string, name string) (*model.RunStep, error)
	CompleteStep(ctx context.Context, stepID string, status model.StepStatus, detail string) error
	ListSteps(ctx context.Context, runID string) ([]model.RunStep, error)

	// Raw extracted features
	InsertFeatures(ctx context.Context, runID string, features []model.Feature) error
	ListFeatures(ctx context.Context, runID string, categoryKey string) ([]model.Feature, error)
	CountFeatures(ctx context.Context, runID string) (map[string]int, error)
	DeleteFeatures(ctx context.Context, runID string) (int, error)

	// Cleaned per-category coverage
	SaveCoverage(ctx context.Context, runID string, categoryKey string, polygons []geom.T) error
	LoadCoverage(ctx context.Context, runID string) (map[string][]geom.T, error)

	// Classified records
	ReplaceRecords(ctx context.Context, runID string, records []model.ClassifiedRecord) error
	ListRecords(ctx context.Context, runID string) ([]model.ClassifiedRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
