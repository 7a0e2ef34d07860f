package orchestrator

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var orchestratorSchemaSQL string

// SQLiteTaskStore implements both TaskRepository and UsageLogRepository
// over a single SQLite database, so scheduling state and cost accounting
// live in one durable file alongside the debounced JSON StateManager
// snapshot.
type SQLiteTaskStore struct {
	db *sql.DB
}

// NewSQLiteTaskStore opens (creating and migrating if necessary) the
// database at path.
func NewSQLiteTaskStore(path string) (*SQLiteTaskStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create task store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(orchestratorSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply task store schema: %w", err)
	}

	return &SQLiteTaskStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteTaskStore) Close() error { return s.db.Close() }

// InsertTask adds a new task row. Not part of TaskRepository — task
// ingestion is a separate concern from the scheduler's read/update path.
func (s *SQLiteTaskStore) InsertTask(ctx context.Context, task *Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, priority, complexity,
		                    est_sessions_opus, est_sessions_sonnet, status, priority_confirmed,
		                    tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ProjectID, task.Title, task.Description, task.Priority, string(task.Complexity),
		task.EstSessionsOpus, task.EstSessionsSonnet, string(task.Status), task.PriorityConfirmed,
		strings.Join(task.Tags, ","), task.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// GetByID fetches a single task.
func (s *SQLiteTaskStore) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, description, priority, complexity,
		       est_sessions_opus, est_sessions_sonnet, status, priority_confirmed,
		       tags, created_at, started_at, completed_at
		FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// GetQueued returns every task still in the queued status.
func (s *SQLiteTaskStore) GetQueued(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, description, priority, complexity,
		       est_sessions_opus, est_sessions_sonnet, status, priority_confirmed,
		       tags, created_at, started_at, completed_at
		FROM tasks WHERE status = ?`, string(TaskQueued))
	if err != nil {
		return nil, fmt.Errorf("get queued tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a task's status, stamping StartedAt/CompletedAt
// as appropriate.
func (s *SQLiteTaskStore) UpdateStatus(ctx context.Context, id string, status TaskStatus) error {
	now := time.Now().UTC().Format(time.RFC3339)

	switch status {
	case TaskInProgress:
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, started_at = ? WHERE id = ?`, string(status), now, id)
		return wrapUpdateErr(err, id)
	case TaskComplete, TaskFailed:
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?`, string(status), now, id)
		return wrapUpdateErr(err, id)
	default:
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
		return wrapUpdateErr(err, id)
	}
}

func wrapUpdateErr(err error, id string) error {
	if err != nil {
		return fmt.Errorf("update task %s status: %w", id, err)
	}
	return nil
}

// AssignAgent records which session is running a task.
func (s *SQLiteTaskStore) AssignAgent(ctx context.Context, taskID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET session_id = ? WHERE id = ?`, sessionID, taskID)
	if err != nil {
		return fmt.Errorf("assign agent to task %s: %w", taskID, err)
	}
	return nil
}

// RecordUsage accumulates token/cost totals against a task.
func (s *SQLiteTaskStore) RecordUsage(ctx context.Context, taskID string, inputTokens, outputTokens int64, costUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET input_tokens = input_tokens + ?, output_tokens = output_tokens + ?, cost_usd = cost_usd + ?
		WHERE id = ?`, inputTokens, outputTokens, costUSD, taskID)
	if err != nil {
		return fmt.Errorf("record usage for task %s: %w", taskID, err)
	}
	return nil
}

// Create inserts a usage log row.
func (s *SQLiteTaskStore) Create(ctx context.Context, entry UsageLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_log (session_id, task_id, model, input_tokens, output_tokens,
		                        cache_read_tokens, cache_creation_tokens, cost_usd, event_type, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.TaskID, string(entry.Model), entry.InputTokens, entry.OutputTokens,
		entry.CacheReadTokens, entry.CacheCreationTokens, entry.CostUSD, string(entry.EventType),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert usage log for session %s: %w", entry.SessionID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task                   Task
		tags                   string
		createdAt              string
		startedAt, completedAt sql.NullString
	)
	if err := row.Scan(
		&task.ID, &task.ProjectID, &task.Title, &task.Description, &task.Priority, &task.Complexity,
		&task.EstSessionsOpus, &task.EstSessionsSonnet, &task.Status, &task.PriorityConfirmed,
		&tags, &createdAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		task.CreatedAt = t
	}
	if tags != "" {
		task.Tags = strings.Split(tags, ",")
	}
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			task.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			task.CompletedAt = &t
		}
	}

	return &task, nil
}
