package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/taskmesh/core"
)

// SQLiteStore persists reports in SQLite. The full report is stored as a
// JSON document next to indexed summary columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed report store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureReportSchema(db); err != nil {
		return nil, fmt.Errorf("ensure report schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStore opens (or creates) the database at dsn with the
// modernc.org/sqlite driver.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, r *core.RunReport) error {
	b, err := encode(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_reports (run_id, status, error_text, node_count, started_at, finished_at, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			error_text = excluded.error_text,
			node_count = excluded.node_count,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			report_json = excluded.report_json
	`,
		r.RunID,
		string(r.Status),
		r.Error,
		len(r.Nodes),
		r.StartedAt.UTC().UnixNano(),
		r.FinishedAt.UTC().UnixNano(),
		string(b),
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.RunID, err)
	}

	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*core.RunReport, error) {
	var doc string

	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM run_reports WHERE run_id = ?`, runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", runID, err)
	}

	return decode([]byte(doc))
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_json FROM run_reports ORDER BY started_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}

		r, err := decode([]byte(doc))
		if err != nil {
			return nil, err
		}

		out = append(out, Summarize(r))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// ListByStatus returns summaries of reports with the given status.
func (s *SQLiteStore) ListByStatus(ctx context.Context, status core.RunStatus) ([]Summary, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, sum := range all {
		if sum.Status == status {
			out = append(out, sum)
		}
	}

	return out, nil
}

func ensureReportSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_reports (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			error_text TEXT,
			node_count INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			report_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_reports_started ON run_reports(started_at);
		CREATE INDEX IF NOT EXISTS idx_run_reports_status ON run_reports(status);
	`)
	return err
}
