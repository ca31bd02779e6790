package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"deepresearch/internal/logging"
	"deepresearch/internal/server/ports"
)

// SQLiteTaskStore persists snapshots as JSON rows so tasks survive a restart.
// It follows the same merge and freeze rules as InMemoryTaskStore.
type SQLiteTaskStore struct {
	db     *sql.DB
	now    func() time.Time
	logger logging.Logger
}

// OpenSQLiteTaskStore opens (or creates) the database at dsn and ensures the schema.
func OpenSQLiteTaskStore(ctx context.Context, dsn string, opts ...TaskStoreOption) (*SQLiteTaskStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	options := resolveStoreOptions(opts)
	store := &SQLiteTaskStore{
		db:     db,
		now:    options.now,
		logger: logging.NewComponentLogger("SQLiteTaskStore"),
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the research task table if needed.
func (s *SQLiteTaskStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	statements := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS research_tasks (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    snapshot TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_research_tasks_created ON research_tasks (created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_research_tasks_status ON research_tasks (status, updated_at);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure research_tasks schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteTaskStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the full snapshot.
func (s *SQLiteTaskStore) Save(ctx context.Context, task *ports.ResearchTask) error {
	if err := validateSnapshot(task); err != nil {
		return err
	}
	return s.write(ctx, s.db, task.Clone())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteTaskStore) write(ctx context.Context, db execer, task *ports.ResearchTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO research_tasks (id, status, created_at, updated_at, snapshot)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    updated_at = excluded.updated_at,
    snapshot = excluded.snapshot`,
		task.ID, string(task.Status), task.CreatedAt.UnixNano(), task.UpdatedAt.UnixNano(), string(payload))
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteTaskStore) read(ctx context.Context, db queryRower, taskID string) (*ports.ResearchTask, error) {
	var payload string
	err := db.QueryRowContext(ctx, `SELECT snapshot FROM research_tasks WHERE id = ?`, taskID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ports.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	return decodeSnapshot(payload)
}

func decodeSnapshot(payload string) (*ports.ResearchTask, error) {
	var task ports.ResearchTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("decode task snapshot: %w", err)
	}
	return task.Clone(), nil
}

// Get loads the latest snapshot.
func (s *SQLiteTaskStore) Get(ctx context.Context, taskID string) (*ports.ResearchTask, error) {
	return s.read(ctx, s.db, taskID)
}

// Update applies patch inside a transaction.
func (s *SQLiteTaskStore) Update(ctx context.Context, taskID string, patch ports.TaskPatch) (err error) {
	if patch.IsEmpty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update %s: %w", taskID, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback update %s: %v", taskID, rbErr)
			}
		}
	}()

	current, err := s.read(ctx, tx, taskID)
	if errors.Is(err, ports.ErrTaskNotFound) {
		return tx.Commit()
	}
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ports.ErrTaskFrozen, taskID, current.Status)
	}

	patch.Apply(current, s.now())
	if err = s.write(ctx, tx, current); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update %s: %w", taskID, err)
	}
	return nil
}

// Delete removes the row for taskID.
func (s *SQLiteTaskStore) Delete(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM research_tasks WHERE id = ?`, taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

// List returns every snapshot, newest first.
func (s *SQLiteTaskStore) List(ctx context.Context) ([]*ports.ResearchTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM research_tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*ports.ResearchTask, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}
