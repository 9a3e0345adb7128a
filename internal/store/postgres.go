package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/breitband-atlas/coverage-cli/internal/db"
	"github.com/breitband-atlas/coverage-cli/internal/geomx"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use this with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_steps (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	detail      TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS features (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	category TEXT NOT NULL,
	tile     TEXT NOT NULL,
	geom     BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS coverage (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	category TEXT NOT NULL,
	geom     BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id  TEXT NOT NULL REFERENCES runs(id),
	cell_id TEXT NOT NULL,
	status  TEXT NOT NULL,
	area_m2 DOUBLE PRECISION NOT NULL,
	geom    BYTEA NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id);
CREATE INDEX IF NOT EXISTS idx_features_run_category ON features(run_id, category);
CREATE INDEX IF NOT EXISTS idx_coverage_run_id ON coverage(run_id);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(run_id, status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, summary []model.StatusArea) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var summaryJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summaryJSON []byte
		if err := rows.Scan(&r.ID, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(summaryJSON) > 0 {
			if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreateStep(ctx context.Context, runID string, name string) (*model.RunStep, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_steps (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(model.StepStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert step for run %s", runID)
	}

	return &model.RunStep{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StepStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteStep(ctx context.Context, stepID string, status model.StepStatus, detail string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_steps SET status = $1, detail = $2, finished_at = $3 WHERE id = $4`,
		string(status), detail, time.Now().UTC(), stepID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete step %s", stepID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("step not found: %s", stepID)
	}
	return nil
}

func (s *PostgresStore) ListSteps(ctx context.Context, runID string) ([]model.RunStep, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, status, detail, started_at, finished_at
		 FROM run_steps WHERE run_id = $1 ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list steps for run %s", runID)
	}
	defer rows.Close()

	var steps []model.RunStep
	for rows.Next() {
		var st model.RunStep
		var detail *string
		var finished *time.Time
		if err := rows.Scan(&st.ID, &st.RunID, &st.Name, &st.Status, &detail, &st.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan step")
		}
		if detail != nil {
			st.Detail = *detail
		}
		if finished != nil {
			st.FinishedAt = *finished
		}
		steps = append(steps, st)
	}
	return steps, eris.Wrap(rows.Err(), "postgres: list steps iterate")
}

func (s *PostgresStore) InsertFeatures(ctx context.Context, runID string, features []model.Feature) error {
	if len(features) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(features))
	for _, f := range features {
		wkb, err := geomx.Marshal(f.Geom)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode feature from tile %s", f.Tile)
		}
		rows = append(rows, []any{uuid.New().String(), runID, f.Category, f.Tile, wkb})
	}

	_, err := db.CopyFrom(ctx, s.pool, "features",
		[]string{"id", "run_id", "category", "tile", "geom"}, rows)
	return err
}

func (s *PostgresStore) ListFeatures(ctx context.Context, runID string, categoryKey string) ([]model.Feature, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category, tile, geom FROM features WHERE run_id = $1 AND category = $2`,
		runID, categoryKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list features %s", categoryKey)
	}
	defer rows.Close()

	var features []model.Feature
	for rows.Next() {
		var f model.Feature
		var wkb []byte
		if err := rows.Scan(&f.Category, &f.Tile, &wkb); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feature")
		}
		g, err := geomx.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode feature from tile %s", f.Tile)
		}
		f.Geom = g
		features = append(features, f)
	}
	return features, eris.Wrap(rows.Err(), "postgres: list features iterate")
}

func (s *PostgresStore) CountFeatures(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM features WHERE run_id = $1 GROUP BY category`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count features")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feature count")
		}
		counts[category] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count features iterate")
}

func (s *PostgresStore) DeleteFeatures(ctx context.Context, runID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM features WHERE run_id = $1`, runID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete features")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveCoverage(ctx context.Context, runID string, categoryKey string, polygons []geom.T) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save coverage")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM coverage WHERE run_id = $1 AND category = $2`,
		runID, categoryKey,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear coverage %s", categoryKey)
	}

	rows := make([][]any, 0, len(polygons))
	for _, p := range polygons {
		wkb, err := geomx.Marshal(p)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode coverage %s", categoryKey)
		}
		rows = append(rows, []any{uuid.New().String(), runID, categoryKey, wkb})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"coverage"},
			[]string{"id", "run_id", "category", "geom"}, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: insert coverage %s", categoryKey)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save coverage")
}

func (s *PostgresStore) LoadCoverage(ctx context.Context, runID string) (map[string][]geom.T, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category, geom FROM coverage WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load coverage")
	}
	defer rows.Close()

	coverage := make(map[string][]geom.T)
	for rows.Next() {
		var category string
		var wkb []byte
		if err := rows.Scan(&category, &wkb); err != nil {
			return nil, eris.Wrap(err, "postgres: scan coverage")
		}
		g, err := geomx.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode coverage %s", category)
		}
		coverage[category] = append(coverage[category], g)
	}
	return coverage, eris.Wrap(rows.Err(), "postgres: load coverage iterate")
}

func (s *PostgresStore) ReplaceRecords(ctx context.Context, runID string, records []model.ClassifiedRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace records")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM records WHERE run_id = $1`, runID); err != nil {
		return eris.Wrap(err, "postgres: clear records")
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		wkb, err := geomx.Marshal(r.Geom)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode record in cell %s", r.CellID)
		}
		rows = append(rows, []any{id, runID, r.CellID, string(r.Status), r.AreaM2, wkb})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"records"},
			[]string{"id", "run_id", "cell_id", "status", "area_m2", "geom"}, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "postgres: insert records")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace records")
}

func (s *PostgresStore) ListRecords(ctx context.Context, runID string) ([]model.ClassifiedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, cell_id, status, area_m2, geom FROM records WHERE run_id = $1 ORDER BY cell_id, status`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.ClassifiedRecord
	for rows.Next() {
		var r model.ClassifiedRecord
		var wkb []byte
		if err := rows.Scan(&r.ID, &r.CellID, &r.Status, &r.AreaM2, &wkb); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		g, err := geomx.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode record %s", r.ID)
		}
		r.Geom = g
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

// IsNoRows reports whether err is the pgx no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
