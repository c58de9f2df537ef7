package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
)

const (
	dbFile        = "timebox.db"
	schemaVersion = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	estimated_minutes INTEGER NOT NULL,
	session_preference INTEGER,
	source TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	start_at TEXT NOT NULL,
	end_at TEXT NOT NULL,
	minutes INTEGER NOT NULL,
	calendar_event_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_task_id ON sessions(task_id, position);
`

// SQLiteStore persists tasks and their sessions in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens timebox.db inside dataDir and applies the schema.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, dbFile)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// One connection keeps PRAGMA foreign_keys in effect and writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(schemaVersion)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to record schema version: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, estimated_minutes, session_preference, source, created_at, updated_at FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("task", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadSessions(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *SQLiteStore) Save(ctx context.Context, task *model.Task) (*model.Task, error) {
	if task == nil || task.ID == "" {
		return nil, errs.Invalid("task has no id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var pref sql.NullInt64
	if task.SessionPreference != nil {
		pref = sql.NullInt64{Int64: int64(*task.SessionPreference), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, name, estimated_minutes, session_preference, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			estimated_minutes = excluded.estimated_minutes,
			session_preference = excluded.session_preference,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		task.ID, task.Name, task.EstimatedMinutes, pref, task.Source, formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE task_id = ?`, task.ID); err != nil {
		return nil, fmt.Errorf("clear sessions: %w", err)
	}
	for i, ss := range task.Sessions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, task_id, position, start_at, end_at, minutes, calendar_event_id, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ss.ID, task.ID, i, formatTime(ss.Start), formatTime(ss.End), ss.Minutes, ss.CalendarEventID, string(ss.Status))
		if err != nil {
			return nil, fmt.Errorf("insert session %s: %w", ss.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := task.Clone()
	saved.RecomputeStatus()
	return saved, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("task", id)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, estimated_minutes, session_preference, source, created_at, updated_at FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, task := range tasks {
		if err := s.loadSessions(ctx, task); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *SQLiteStore) loadSessions(ctx context.Context, task *model.Task) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, start_at, end_at, minutes, calendar_event_id, status FROM sessions WHERE task_id = ? ORDER BY position`, task.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	task.Sessions = nil
	for rows.Next() {
		var (
			ss           model.Session
			start, end   string
			sessionState string
		)
		if err := rows.Scan(&ss.ID, &start, &end, &ss.Minutes, &ss.CalendarEventID, &sessionState); err != nil {
			return err
		}
		if ss.Start, err = parseTime(start); err != nil {
			return err
		}
		if ss.End, err = parseTime(end); err != nil {
			return err
		}
		ss.Status = model.SessionStatus(sessionState)
		task.Sessions = append(task.Sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	task.RecomputeStatus()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*model.Task, error) {
	var (
		task                 model.Task
		pref                 sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(&task.ID, &task.Name, &task.EstimatedMinutes, &pref, &task.Source, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if pref.Valid {
		p := int(pref.Int64)
		task.SessionPreference = &p
	}
	var err error
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &task, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
