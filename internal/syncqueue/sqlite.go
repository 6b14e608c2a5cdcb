package syncqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/weatherdash/offline-proxy/internal/logger"
	_ "modernc.org/sqlite"
)

// schemaVersion is the latest queue schema version. Bump it when adding migrations.
const schemaVersion = 1

// SQLiteQueue persists tasks in a SQLite database so queued work survives restarts.
type SQLiteQueue struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteQueue opens (or creates) the queue database at path.
func NewSQLiteQueue(path string) (*SQLiteQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.WithComponent("syncqueue").Debugf("opened sqlite queue at %s", path)
	return &SQLiteQueue{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sync_tasks (
		  id         TEXT PRIMARY KEY,
		  kind       TEXT NOT NULL,
		  payload    TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sync_tasks_kind
		ON sync_tasks(kind, id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) (Task, error) {
	t, err := prepare(t, q.now())
	if err != nil {
		return Task{}, err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return Task{}, fmt.Errorf("encode task: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO sync_tasks (id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, string(t.Kind), string(payload), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return t, nil
}

func (q *SQLiteQueue) Drain(ctx context.Context, kind Kind) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payload FROM sync_tasks WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			logger.WithComponent("syncqueue").Warnf("skipping undecodable task %s: %v", id, err)
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *SQLiteQueue) Remove(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
