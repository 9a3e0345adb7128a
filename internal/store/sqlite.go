package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/breitband-atlas/coverage-cli/internal/geomx"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_steps (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	detail      TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS features (
	id       TEXT PRIMARY KEY,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	category TEXT NOT NULL,
	tile     TEXT NOT NULL,
	geom     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS coverage (
	id       TEXT PRIMARY KEY,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	category TEXT NOT NULL,
	geom     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id      TEXT PRIMARY KEY,
	run_id  TEXT NOT NULL REFERENCES runs(id),
	cell_id TEXT NOT NULL,
	status  TEXT NOT NULL,
	area_m2 REAL NOT NULL,
	geom    BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id);
CREATE INDEX IF NOT EXISTS idx_features_run_category ON features(run_id, category);
CREATE INDEX IF NOT EXISTS idx_coverage_run_id ON coverage(run_id);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(run_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, summary []model.StatusArea) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateStep(ctx context.Context, runID string, name string) (*model.RunStep, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_steps (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.StepStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert step for run %s", runID)
	}

	return &model.RunStep{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StepStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteStep(ctx context.Context, stepID string, status model.StepStatus, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_steps SET status = ?, detail = ?, finished_at = ? WHERE id = ?`,
		string(status), detail, time.Now().UTC(), stepID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete step %s", stepID)
	}
	return checkRowsAffected(res, "step", stepID)
}

func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]model.RunStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, status, detail, started_at, finished_at
		 FROM run_steps WHERE run_id = ? ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list steps for run %s", runID)
	}
	defer rows.Close()

	var steps []model.RunStep
	for rows.Next() {
		var st model.RunStep
		var detail sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&st.ID, &st.RunID, &st.Name, &st.Status, &detail, &st.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan step")
		}
		st.Detail = detail.String
		if finished.Valid {
			st.FinishedAt = finished.Time
		}
		steps = append(steps, st)
	}
	return steps, eris.Wrap(rows.Err(), "sqlite: list steps iterate")
}

func (s *SQLiteStore) InsertFeatures(ctx context.Context, runID string, features []model.Feature) error {
	if len(features) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert features")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO features (id, run_id, category, tile, geom) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert features")
	}
	defer stmt.Close()

	for _, f := range features {
		wkb, err := geomx.Marshal(f.Geom)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode feature from tile %s", f.Tile)
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), runID, f.Category, f.Tile, wkb); err != nil {
			return eris.Wrap(err, "sqlite: insert feature")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert features")
}

func (s *SQLiteStore) ListFeatures(ctx context.Context, runID string, categoryKey string) ([]model.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, tile, geom FROM features WHERE run_id = ? AND category = ?`,
		runID, categoryKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list features %s", categoryKey)
	}
	defer rows.Close()

	var features []model.Feature
	for rows.Next() {
		var f model.Feature
		var wkb []byte
		if err := rows.Scan(&f.Category, &f.Tile, &wkb); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature")
		}
		g, err := geomx.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode feature from tile %s", f.Tile)
		}
		f.Geom = g
		features = append(features, f)
	}
	return features, eris.Wrap(rows.Err(), "sqlite: list features iterate")
}

func (s *SQLiteStore) CountFeatures(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM features WHERE run_id = ? GROUP BY category`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count features")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature count")
		}
		counts[category] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count features iterate")
}

func (s *SQLiteStore) DeleteFeatures(ctx context.Context, runID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM features WHERE run_id = ?`, runID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete features")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveCoverage(ctx context.Context, runID string, categoryKey string, polygons []geom.T) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save coverage")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM coverage WHERE run_id = ? AND category = ?`,
		runID, categoryKey,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear coverage %s", categoryKey)
	}

	for _, p := range polygons {
		wkb, err := geomx.Marshal(p)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode coverage %s", categoryKey)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO coverage (id, run_id, category, geom) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), runID, categoryKey, wkb,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert coverage %s", categoryKey)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save coverage")
}

func (s *SQLiteStore) LoadCoverage(ctx context.Context, runID string) (map[string][]geom.T, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, geom FROM coverage WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load coverage")
	}
	defer rows.Close()

	coverage := make(map[string][]geom.T)
	for rows.Next() {
		var category string
		var wkb []byte
		if err := rows.Scan(&category, &wkb); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan coverage")
		}
		g, err := geomx.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode coverage %s", category)
		}
		coverage[category] = append(coverage[category], g)
	}
	return coverage, eris.Wrap(rows.Err(), "sqlite: load coverage iterate")
}

func (s *SQLiteStore) ReplaceRecords(ctx context.Context, runID string, records []model.ClassifiedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace records")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, runID); err != nil {
		return eris.Wrap(err, "sqlite: clear records")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, run_id, cell_id, status, area_m2, geom) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert records")
	}
	defer stmt.Close()

	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		wkb, err := geomx.Marshal(r.Geom)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode record in cell %s", r.CellID)
		}
		if _, err := stmt.ExecContext(ctx, id, runID, r.CellID, string(r.Status), r.AreaM2, wkb); err != nil {
			return eris.Wrap(err, "sqlite: insert record")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace records")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]model.ClassifiedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cell_id, status, area_m2, geom FROM records WHERE run_id = ? ORDER BY cell_id, status`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.ClassifiedRecord
	for rows.Next() {
		var r model.ClassifiedRecord
		var wkb []byte
		if err := rows.Scan(&r.ID, &r.CellID, &r.Status, &r.AreaM2, &wkb); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		g, err := geomx.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode record %s", r.ID)
		}
		r.Geom = g
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if summaryJSON.Valid {
		if err := json.Unmarshal([]byte(summaryJSON.String), &r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
