package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/storage"
	"github.com/labshot/labshot/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := migrations.Up(ctx, db, cfg.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateBatch creates the batch and all its tasks in a single transaction.
func (r *Repository) CreateBatch(ctx context.Context, batch model.Batch, tasks []model.Task) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var cancelledAt *int64
	if batch.CancelledAt != nil {
		u := batch.CancelledAt.Unix()
		cancelledAt = &u
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, owner_ref, theme, default_insertion, created_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, batch.ID, batch.OwnerRef, batch.Theme, batch.DefaultInsertion, batch.CreatedAt.Unix(), cancelledAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: batches.") {
			return fmt.Errorf("batch already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (
			id, batch_id, sequence, kind, language, source, question, theme,
			files, routes, insertion, status, failure_reason, result,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare task insert: %w", err)
	}
	defer stmt.Close()

	for i, task := range tasks {
		files, err := json.Marshal(task.Files)
		if err != nil {
			return fmt.Errorf("could not marshal task files: %w", err)
		}
		routes, err := json.Marshal(task.Routes)
		if err != nil {
			return fmt.Errorf("could not marshal task routes: %w", err)
		}
		result, err := marshalResult(task.Result)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx,
			task.ID, batch.ID, i, task.Kind, task.Language, task.Source,
			task.Question, task.Theme, string(files), string(routes),
			task.Insertion, task.Status, task.FailureReason, result,
			task.CreatedAt.Unix(), task.UpdatedAt.Unix(),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.") {
				return fmt.Errorf("task %s already exists: %w", task.ID, model.ErrAlreadyExists)
			}
			return fmt.Errorf("could not insert task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Created batch in repository: %s (%d tasks)", batch.ID, len(tasks))
	return nil
}

// GetBatch retrieves a batch by ID.
func (r *Repository) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_ref, theme, default_insertion, created_at, cancelled_at
		FROM batches
		WHERE id = ?
	`, id)

	batch, err := r.scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query batch: %w", err)
	}

	if err := r.loadBatchTaskIDs(ctx, batch); err != nil {
		return nil, err
	}

	return batch, nil
}

// ListBatches returns all batches, newest first.
func (r *Repository) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_ref, theme, default_insertion, created_at, cancelled_at
		FROM batches
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("could not query batches: %w", err)
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		batch, err := r.scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		batches = append(batches, *batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for i := range batches {
		if err := r.loadBatchTaskIDs(ctx, &batches[i]); err != nil {
			return nil, err
		}
	}

	return batches, nil
}

// CancelBatch marks the batch cancelled and fails its pending tasks.
func (r *Repository) CancelBatch(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Unix()

	result, err := tx.ExecContext(ctx, `
		UPDATE batches SET cancelled_at = ?
		WHERE id = ? AND cancelled_at IS NULL
	`, now, id)
	if err != nil {
		return fmt.Errorf("could not cancel batch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		// Already cancelled is fine, missing is not.
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("could not query batch: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
		}
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, failure_reason = ?, updated_at = ?
		WHERE batch_id = ? AND status = ?
	`, model.TaskStatusFailed, model.FailureReasonCancelled, now, id, model.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("could not fail pending tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Cancelled batch in repository: %s", id)
	return nil
}

const taskColumns = `
	id, batch_id, kind, language, source, question, theme,
	files, routes, insertion, status, failure_reason, result,
	created_at, updated_at
`

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	task, err := r.scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return task, nil
}

// ListBatchTasks returns the batch tasks in submission order.
func (r *Repository) ListBatchTasks(ctx context.Context, batchID string) ([]model.Task, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches WHERE id = ?`, batchID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("could not query batch: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, model.ErrNotFound)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE batch_id = ? ORDER BY sequence
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// ClaimNextTask claims the oldest pending task of a non cancelled batch.
func (r *Repository) ClaimNextTask(ctx context.Context) (task *model.Task, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT t.id
		FROM tasks t
		JOIN batches b ON b.id = t.batch_id
		WHERE t.status = ? AND b.cancelled_at IS NULL
		ORDER BY t.created_at, t.sequence
		LIMIT 1
	`, model.TaskStatusPending).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no pending task: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query pending tasks: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, model.TaskStatusRunning, time.Now().UTC().Unix(), id, model.TaskStatusPending)
	if err != nil {
		return nil, fmt.Errorf("could not claim task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("task %s was claimed concurrently: %w", id, model.ErrNotFound)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err = r.scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("could not query claimed task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}

	return task, nil
}

// CompleteTask moves a running task to completed and stores its result.
func (r *Repository) CompleteTask(ctx context.Context, id string, result model.TaskResult) error {
	encoded, err := marshalResult(&result)
	if err != nil {
		return err
	}

	return r.finishTask(ctx, id, model.TaskStatusCompleted, encoded, "")
}

// FailTask moves a running task to failed with the given reason.
func (r *Repository) FailTask(ctx context.Context, id string, reason string, result *model.TaskResult) error {
	encoded, err := marshalResult(result)
	if err != nil {
		return err
	}

	return r.finishTask(ctx, id, model.TaskStatusFailed, encoded, reason)
}

func (r *Repository) finishTask(ctx context.Context, id string, status model.TaskStatus, result *string, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, result = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, result, reason, time.Now().UTC().Unix(), id, model.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("could not query task: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("task %s is not running, cannot move to %s: %w", id, status, model.ErrNotValid)
	}

	return nil
}

// RequeueRunningTasks moves every running task back to pending.
func (r *Repository) RequeueRunningTasks(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE status = ?
	`, model.TaskStatusPending, time.Now().UTC().Unix(), model.TaskStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("could not requeue tasks: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}

	if rows > 0 {
		r.logger.Debugf("Requeued %d running tasks", rows)
	}
	return int(rows), nil
}

// CreateArtifacts stores a task's artifacts.
func (r *Repository) CreateArtifacts(ctx context.Context, taskID string, artifacts []model.Artifact) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, taskID).Scan(&exists); err != nil {
		return fmt.Errorf("could not query task: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	var maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM artifacts WHERE task_id = ?`, taskID).Scan(&maxPos); err != nil {
		return fmt.Errorf("could not query artifact positions: %w", err)
	}
	next := 0
	if maxPos.Valid {
		next = int(maxPos.Int64) + 1
	}

	for i, a := range artifacts {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO artifacts (id, task_id, position, kind, theme, label, ref, source_text, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, taskID, next+i, a.Kind, a.Theme, a.Label, a.Ref, a.SourceText, a.CreatedAt.Unix())
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: artifacts.") {
				return fmt.Errorf("artifact %s: %w", a.ID, model.ErrAlreadyExists)
			}
			return fmt.Errorf("could not insert artifact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// ListTaskArtifacts returns a task's artifacts in render order.
func (r *Repository) ListTaskArtifacts(ctx context.Context, taskID string) ([]model.Artifact, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, taskID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, theme, label, ref, source_text, created_at
		FROM artifacts
		WHERE task_id = ?
		ORDER BY position
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []model.Artifact
	for rows.Next() {
		var a model.Artifact
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.Kind, &a.Theme, &a.Label, &a.Ref, &a.SourceText, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		a.CreatedAt = timeFromUnix(createdAt)
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return artifacts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanBatch(s scanner) (*model.Batch, error) {
	var batch model.Batch
	var createdAt int64
	var cancelledAt sql.NullInt64

	err := s.Scan(&batch.ID, &batch.OwnerRef, &batch.Theme, &batch.DefaultInsertion, &createdAt, &cancelledAt)
	if err != nil {
		return nil, err
	}

	batch.CreatedAt = timeFromUnix(createdAt)
	if cancelledAt.Valid {
		t := timeFromUnix(cancelledAt.Int64)
		batch.CancelledAt = &t
	}

	return &batch, nil
}

func (r *Repository) loadBatchTaskIDs(ctx context.Context, batch *model.Batch) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM tasks WHERE batch_id = ? ORDER BY sequence`, batch.ID)
	if err != nil {
		return fmt.Errorf("could not query batch task IDs: %w", err)
	}
	defer rows.Close()

	batch.TaskIDs = nil
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("could not scan row: %w", err)
		}
		batch.TaskIDs = append(batch.TaskIDs, id)
	}

	return rows.Err()
}

func (r *Repository) scanTask(s scanner) (*model.Task, error) {
	var task model.Task
	var files, routes string
	var result sql.NullString
	var createdAt, updatedAt int64

	err := s.Scan(
		&task.ID, &task.BatchID, &task.Kind, &task.Language, &task.Source,
		&task.Question, &task.Theme, &files, &routes, &task.Insertion,
		&task.Status, &task.FailureReason, &result, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(files), &task.Files); err != nil {
		return nil, fmt.Errorf("could not unmarshal task files: %w", err)
	}
	if err := json.Unmarshal([]byte(routes), &task.Routes); err != nil {
		return nil, fmt.Errorf("could not unmarshal task routes: %w", err)
	}
	if result.Valid {
		task.Result = &model.TaskResult{}
		if err := json.Unmarshal([]byte(result.String), task.Result); err != nil {
			return nil, fmt.Errorf("could not unmarshal task result: %w", err)
		}
	}

	task.CreatedAt = timeFromUnix(createdAt)
	task.UpdatedAt = timeFromUnix(updatedAt)

	return &task, nil
}

func marshalResult(result *model.TaskResult) (*string, error) {
	if result == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("could not marshal task result: %w", err)
	}

	s := string(encoded)
	return &s, nil
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }

var _ storage.Repository = &Repository{}
