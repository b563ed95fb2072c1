package remote

import (
	"context"

	"github.com/locvowork/task_reconciler/internal/domain"
)

// Operation names used in errors, logs and fake call counters.
const (
	OpListTaskLists = "tasklists.list"
	OpListTasks     = "tasks.list"
	OpInsertTask    = "tasks.insert"
	OpPatchTask     = "tasks.patch"
	OpDeleteTask    = "tasks.delete"
	OpMoveTask      = "tasks.move"
)

type TaskListPage struct {
	Items         []domain.RemoteTaskList
	NextPageToken string
}

type TaskPage struct {
	Items         []domain.RemoteTask
	NextPageToken string
}

// Service is the raw remote task API for one user. Implementations make
// exactly one network call per method and never retry.
type Service interface {
	ListTaskLists(ctx context.Context, pageToken string, pageSize int) (*TaskListPage, error)
	// ListTasks returns completed and hidden tasks too.
	ListTasks(ctx context.Context, listID, pageToken string, pageSize int) (*TaskPage, error)
	InsertTask(ctx context.Context, listID, parentID string, task domain.RemoteTask) (*domain.RemoteTask, error)
	// PatchTask sends title, notes, status and due of task.
	PatchTask(ctx context.Context, listID string, task domain.RemoteTask) (*domain.RemoteTask, error)
	DeleteTask(ctx context.Context, listID, taskID string) error
	// MoveTask re-parents taskID; an empty parentID moves it to the root of the list.
	MoveTask(ctx context.Context, listID, taskID, parentID string) (*domain.RemoteTask, error)
}

// Dialer opens a Service with userID's credentials. Each call yields an
// independent client so concurrent users never share credentials.
type Dialer func(ctx context.Context, userID string) (Service, error)
