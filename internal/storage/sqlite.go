package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

var errNotInitialized = apperrors.New("store is not initialized")

// SQLiteStore keeps runs in a single table with the full run encoded as a
// JSON payload next to the columns used for listing.
type SQLiteStore struct {
	dsn string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(dsn string) *SQLiteStore {
	return &SQLiteStore{dsn: dsn}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return apperrors.Config("storage.SQLiteStore.Init", "sqlite dsn is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return apperrors.Wrap(err, "open sqlite")
	}
	// sqlite takes a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return apperrors.Wrap(err, "ping sqlite")
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return apperrors.Wrap(err, "create tables")
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return apperrors.Config("storage.SQLiteStore.SaveRun", "run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return apperrors.Wrapf(err, "encode run %s", run.ID)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, status, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`, run.ID, string(run.Status), run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.UpdatedAt.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return apperrors.Wrapf(err, "save run %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, apperrors.Wrapf(err, "get run %s", id)
	}

	run, err := decodeRun(id, payload)
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, apperrors.Wrap(err, "scan run")
		}
		run, err := decodeRun(id, payload)
		if err != nil {
			return nil, err
		}
		run.Result = nil
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "list runs")
	}
	return runs, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
	`)
	return err
}

func decodeRun(id string, payload []byte) (Run, error) {
	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return Run{}, apperrors.Wrapf(err, "decode run %s", id)
	}
	return run, nil
}
