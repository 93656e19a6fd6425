package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

type DB struct {
	conn *sql.DB
}

// RunRow is one persisted sync run.
type RunRow struct {
	RunID      string
	Pipeline   string
	DryRun     bool
	Counts     map[string]int
	StartedAt  time.Time
	FinishedAt time.Time
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  runId TEXT PRIMARY KEY,
  pipeline TEXT NOT NULL,
  dryRun INTEGER NOT NULL DEFAULT 0,
  countsJson TEXT NOT NULL,
  originStagesJson TEXT NOT NULL,
  startedAt TEXT NOT NULL,
  finishedAt TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_startedAt ON runs(startedAt);

CREATE TABLE IF NOT EXISTS run_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  cnj TEXT NOT NULL,
  dealId INTEGER,
  movedOk INTEGER NOT NULL DEFAULT 0,
  deletedOk INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  FOREIGN KEY(runId) REFERENCES runs(runId)
);
CREATE INDEX IF NOT EXISTS idx_run_results_runId ON run_results(runId);
CREATE INDEX IF NOT EXISTS idx_run_results_cnj ON run_results(cnj);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// InsertRun stores the report counters and every record result in one
// transaction.
func (d *DB) InsertRun(report internal.SyncReport) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	countsJSON, _ := json.Marshal(report.Counts())
	stages := report.OriginStages
	if stages == nil {
		stages = []int64{}
	}
	stagesJSON, _ := json.Marshal(stages)
	if _, err := tx.Exec(`
INSERT INTO runs (runId, pipeline, dryRun, countsJson, originStagesJson, startedAt, finishedAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, report.RunID, report.Pipeline, report.DryRun, string(countsJSON), string(stagesJSON),
		report.StartedAt.UTC().Format(time.RFC3339Nano), report.FinishedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO run_results (runId, cnj, dealId, movedOk, deletedOk, error)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range report.Results {
		var dealID *int64
		if r.DealID != 0 {
			dealID = &r.DealID
		}
		var errText *string
		if r.Error != "" {
			errText = &r.Error
		}
		if _, err := stmt.Exec(report.RunID, r.CNJ, dealID, r.MovedOK, r.DeletedOK, errText); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT runId, pipeline, dryRun, countsJson, startedAt, finishedAt
FROM runs ORDER BY startedAt DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var countsJSON, started, finished string
		if err := rows.Scan(&row.RunID, &row.Pipeline, &row.DryRun, &countsJSON, &started, &finished); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		row.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		row.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) RunResults(runID string) ([]internal.RecordResult, error) {
	rows, err := d.conn.Query(`
SELECT cnj, dealId, movedOk, deletedOk, error
FROM run_results WHERE runId = ? ORDER BY id ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RecordResult
	for rows.Next() {
		var r internal.RecordResult
		var dealID sql.NullInt64
		var errText sql.NullString
		if err := rows.Scan(&r.CNJ, &dealID, &r.MovedOK, &r.DeletedOK, &errText); err != nil {
			return nil, err
		}
		r.DealID = dealID.Int64
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
