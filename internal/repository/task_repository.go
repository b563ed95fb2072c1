package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/locvowork/task_reconciler/internal/domain"
)

// TaskRepository is the Postgres-backed domain.TaskStore.
type TaskRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTaskRepository creates a TaskRepository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db, now: time.Now}
}

// EnsureSchema creates the tables used by the repository if they don't exist.
func (r *TaskRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			name           TEXT NOT NULL,
			remote_list_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			project_id  TEXT NOT NULL DEFAULT '',
			title       TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			completed   BOOLEAN NOT NULL DEFAULT FALSE,
			due_at      TIMESTAMPTZ,
			subtasks    JSONB NOT NULL DEFAULT '[]',
			sync_link   JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id)`,
		credentialSchema,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *TaskRepository) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT t.user_id FROM tasks t
		LEFT JOIN user_credentials c ON c.user_id = t.user_id
		WHERE COALESCE(c.sync_disabled, FALSE) = FALSE
		ORDER BY t.user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *TaskRepository) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, remote_list_id FROM projects
		WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.RemoteListID); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateProject inserts a project, assigning an id when empty.
func (r *TaskRepository) CreateProject(ctx context.Context, p *domain.Project) error {
	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, remote_list_id) VALUES ($1, $2, $3, $4)`,
		p.ID, p.UserID, p.Name, p.RemoteListID)
	if err != nil {
		return fmt.Errorf("create project: %w", translate(err))
	}
	return nil
}

const taskColumns = `id, user_id, project_id, title, description, completed, due_at, subtasks, sync_link, created_at, updated_at`

func (r *TaskRepository) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE user_id = $1 AND id = $2`, userID, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get task %s: %w", taskID, domain.ErrNotFound)
	}
	return t, err
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := r.now().UTC().Truncate(time.Microsecond)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	assignSubtaskIDs(t)

	subtasks, link, err := marshalParts(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11)`,
		t.ID, t.UserID, t.ProjectID, t.Title, t.Description, t.Completed, nullTime(t.Due),
		subtasks, link, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", translate(err))
	}
	return nil
}

func (r *TaskRepository) UpdateTask(ctx context.Context, t *domain.Task) error {
	t.UpdatedAt = r.now().UTC().Truncate(time.Microsecond)
	assignSubtaskIDs(t)

	subtasks, link, err := marshalParts(t)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET project_id = $3, title = $4, description = $5, completed = $6, due_at = $7,
			subtasks = $8::jsonb, sync_link = $9::jsonb, updated_at = $10
		WHERE user_id = $1 AND id = $2`,
		t.UserID, t.ID, t.ProjectID, t.Title, t.Description, t.Completed, nullTime(t.Due),
		subtasks, link, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", translate(err))
	}
	return expectOne(res, t.ID)
}

// UpdateSyncLink writes only the link. Task links are a single statement; sub-task
// links rewrite the subtasks document under a row lock.
func (r *TaskRepository) UpdateSyncLink(ctx context.Context, userID string, ref domain.RecordRef, link domain.SyncLink) error {
	linkJSON, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal sync link: %w", err)
	}

	if !ref.IsSubtask() {
		res, err := r.db.ExecContext(ctx, `
			UPDATE tasks SET sync_link = $3::jsonb WHERE user_id = $1 AND id = $2`,
			userID, ref.TaskID, string(linkJSON))
		if err != nil {
			return fmt.Errorf("update sync link: %w", err)
		}
		return expectOne(res, ref.TaskID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT subtasks FROM tasks WHERE user_id = $1 AND id = $2 FOR UPDATE`,
		userID, ref.TaskID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update sync link %s: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock subtasks: %w", err)
	}

	var subs []domain.Subtask
	if err := json.Unmarshal(raw, &subs); err != nil {
		return fmt.Errorf("decode subtasks: %w", err)
	}
	found := false
	for i := range subs {
		if subs[i].ID == ref.SubtaskID {
			subs[i].Link = link
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("update sync link %s: %w", ref, domain.ErrNotFound)
	}
	raw, err = json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("encode subtasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET subtasks = $3::jsonb WHERE user_id = $1 AND id = $2`,
		userID, ref.TaskID, string(raw)); err != nil {
		return fmt.Errorf("update subtasks: %w", err)
	}
	return tx.Commit()
}

func (r *TaskRepository) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = $1 AND id = $2`, userID, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectOne(res, taskID)
}

// DeleteTasks removes several tasks in one statement and returns how many went away.
func (r *TaskRepository) DeleteTasks(ctx context.Context, userID string, taskIDs []string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = $1 AND id = ANY($2)`,
		userID, pq.Array(taskIDs))
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return res.RowsAffected()
}

// --- helpers ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(s scanner) (*domain.Task, error) {
	var (
		t        domain.Task
		due      sql.NullTime
		subtasks []byte
		link     []byte
	)
	err := s.Scan(&t.ID, &t.UserID, &t.ProjectID, &t.Title, &t.Description, &t.Completed, &due,
		&subtasks, &link, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if due.Valid {
		d := due.Time.UTC()
		t.Due = &d
	}
	if err := json.Unmarshal(subtasks, &t.Subtasks); err != nil {
		return nil, fmt.Errorf("decode subtasks of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(link, &t.Link); err != nil {
		return nil, fmt.Errorf("decode sync link of %s: %w", t.ID, err)
	}
	return &t, nil
}

func marshalParts(t *domain.Task) (string, string, error) {
	subs := t.Subtasks
	if subs == nil {
		subs = []domain.Subtask{}
	}
	subJSON, err := json.Marshal(subs)
	if err != nil {
		return "", "", fmt.Errorf("marshal subtasks: %w", err)
	}
	linkJSON, err := json.Marshal(t.Link)
	if err != nil {
		return "", "", fmt.Errorf("marshal sync link: %w", err)
	}
	return string(subJSON), string(linkJSON), nil
}

func assignSubtaskIDs(t *domain.Task) {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == "" {
			t.Subtasks[i].ID = uuid.Must(uuid.NewV7()).String()
		}
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// translate maps driver errors onto the domain taxonomy.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation", "not_null_violation", "check_violation", "string_data_right_truncation":
			return fmt.Errorf("%s: %w", pqErr.Message, domain.ErrValidation)
		}
	}
	return err
}
