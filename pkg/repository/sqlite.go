package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// SQLite is a file backed CheckpointStore. Every version is kept as its own
// row; the newest row of a thread is the current checkpoint.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ interfaces.CheckpointStore = (*SQLite)(nil)

// openSQLite opens a single-writer SQLite database at path and applies schema
func openSQLite(path, schema string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", path))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite db", goerr.V("path", path))
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, goerr.Wrap(err, "failed to configure sqlite db", goerr.V("pragma", pragma))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to migrate sqlite db", goerr.V("path", path))
	}
	return db, nil
}

// NewSQLite opens (or creates) the checkpoint database at path
func NewSQLite(path string) (*SQLite, error) {
	db, err := openSQLite(path, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			namespace  TEXT    NOT NULL,
			thread_id  TEXT    NOT NULL,
			version    INTEGER NOT NULL,
			data       TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (namespace, thread_id, version)
		)
	`)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db, path: path}, nil
}

// Close closes the underlying database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context, key model.ThreadKey) (*model.Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM checkpoints WHERE namespace = ? AND thread_id = ? ORDER BY version DESC LIMIT 1",
		key.Namespace, key.ThreadID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load checkpoint", goerr.V("key", key))
	}

	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal checkpoint", goerr.V("key", key))
	}
	return &cp, nil
}

func (s *SQLite) Save(ctx context.Context, cp *model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal checkpoint", goerr.V("key", cp.Key()))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin checkpoint transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var stored int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM checkpoints WHERE namespace = ? AND thread_id = ?",
		cp.Namespace, cp.ThreadID,
	).Scan(&stored); err != nil {
		return goerr.Wrap(err, "failed to read checkpoint version", goerr.V("key", cp.Key()))
	}
	if err := checkVersion(cp, stored); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO checkpoints (namespace, thread_id, version, data, created_at) VALUES (?, ?, ?, ?, ?)",
		cp.Namespace, cp.ThreadID, cp.Version, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return goerr.Wrap(err, "failed to insert checkpoint", goerr.V("key", cp.Key()))
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit checkpoint", goerr.V("key", cp.Key()))
	}
	return nil
}

// Threads lists the thread keys stored under namespace
func (s *SQLite) Threads(ctx context.Context, namespace string) ([]model.ThreadKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT thread_id FROM checkpoints WHERE namespace = ? ORDER BY thread_id",
		namespace,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list threads", goerr.V("namespace", namespace))
	}
	defer rows.Close()

	var keys []model.ThreadKey
	for rows.Next() {
		var threadID string
		if err := rows.Scan(&threadID); err != nil {
			return nil, goerr.Wrap(err, "failed to scan thread")
		}
		keys = append(keys, model.ThreadKey{Namespace: namespace, ThreadID: threadID})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate threads")
	}
	return keys, nil
}
