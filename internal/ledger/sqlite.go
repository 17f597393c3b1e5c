package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jakesower/gtfs-import/contracts"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS import_runs(
	id TEXT PRIMARY KEY,
	archive TEXT NOT NULL,
	state TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS chain_results(
	run_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	name TEXT NOT NULL,
	shape TEXT NOT NULL,
	state TEXT NOT NULL,
	failed_step TEXT NOT NULL DEFAULT '',
	error_code TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	published_id TEXT NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY(run_id, file_name)
);
CREATE INDEX IF NOT EXISTS idx_chain_results_state ON chain_results(run_id, state);`

// SQLiteStore is a Store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the ledger at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger path is empty: %w", contracts.ErrInvalidInput)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite ledger: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing sqlite ledger schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) BeginRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs(id, archive, state, started_at) VALUES(?,?,?,?)`,
		string(run.ID), run.Archive, run.State.String(), run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RecordChain(ctx context.Context, rec ChainRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chain_results(run_id, file_name, name, shape, state, failed_step, error_code, error, published_id, recorded_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		string(rec.RunID), rec.FileName, rec.Name, string(rec.Shape), rec.State.String(),
		string(rec.FailedStep), string(rec.ErrorCode), rec.Error, rec.PublishedID, rec.RecordedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording chain %s of run %s: %w", rec.FileName, rec.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id contracts.RunID, state contracts.RunState, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET state = ?, error = ?, finished_at = ? WHERE id = ?`,
		state.String(), errMsg, time.Now().UnixMilli(), string(id))
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id contracts.RunID) (RunRecord, error) {
	var rec RunRecord
	var runID, state string
	var started, finished int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, archive, state, error, started_at, finished_at FROM import_runs WHERE id = ?`, string(id)).
		Scan(&runID, &rec.Archive, &state, &rec.Error, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	rec.ID = contracts.RunID(runID)
	rec.State = parseRunState(state)
	rec.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		rec.FinishedAt = time.UnixMilli(finished)
	}
	return rec, nil
}

func (s *SQLiteStore) ListChains(ctx context.Context, id contracts.RunID) ([]ChainRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, file_name, name, shape, state, failed_step, error_code, error, published_id, recorded_at
		 FROM chain_results WHERE run_id = ? ORDER BY file_name`, string(id))
	if err != nil {
		return nil, fmt.Errorf("listing chains of run %s: %w", id, err)
	}
	defer rows.Close()

	var out []ChainRecord
	for rows.Next() {
		var rec ChainRecord
		var runID, shape, state, step, code string
		var recorded int64
		if err := rows.Scan(&runID, &rec.FileName, &rec.Name, &shape, &state, &step, &code, &rec.Error, &rec.PublishedID, &recorded); err != nil {
			return nil, fmt.Errorf("scanning chain of run %s: %w", id, err)
		}
		rec.RunID = contracts.RunID(runID)
		rec.Shape = contracts.ChainShape(shape)
		rec.State = parseTaskState(state)
		rec.FailedStep = contracts.StepName(step)
		rec.ErrorCode = contracts.ErrorCode(code)
		rec.RecordedAt = time.UnixMilli(recorded)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FailedFiles(ctx context.Context, id contracts.RunID) ([]string, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_name FROM chain_results WHERE run_id = ? AND state = ? ORDER BY file_name`,
		string(id), contracts.TaskFailed.String())
	if err != nil {
		return nil, fmt.Errorf("listing failed files of run %s: %w", id, err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
