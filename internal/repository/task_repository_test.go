package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_POSTGRES_DSN and skips the test when it is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping Postgres test")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, NewTaskRepository(db).EnsureSchema(ctx))
	return db
}

func testUser() string {
	return "test-" + uuid.NewString()
}

func TestTaskRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTaskRepository(db)
	user := testUser()

	project := &domain.Project{UserID: user, Name: "Home", RemoteListID: "L1"}
	require.NoError(t, repo.CreateProject(ctx, project))
	require.NotEmpty(t, project.ID)

	projects, err := repo.ListProjects(ctx, user)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "L1", projects[0].RemoteListID)

	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	task := &domain.Task{
		UserID:    user,
		ProjectID: project.ID,
		Title:     "Pay rent",
		Due:       &due,
		Subtasks:  []domain.Subtask{{Title: "Transfer"}},
	}
	require.NoError(t, repo.CreateTask(ctx, task))
	require.NotEmpty(t, task.ID)
	require.NotEmpty(t, task.Subtasks[0].ID)

	got, err := repo.GetTask(ctx, user, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pay rent", got.Title)
	require.NotNil(t, got.Due)
	assert.True(t, due.Equal(*got.Due))
	require.Len(t, got.Subtasks, 1)
	assert.Equal(t, "Transfer", got.Subtasks[0].Title)

	got.Title = "Pay rent (March)"
	got.Completed = true
	require.NoError(t, repo.UpdateTask(ctx, got))

	list, err := repo.ListTasks(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Pay rent (March)", list[0].Title)
	assert.True(t, list[0].Completed)

	require.NoError(t, repo.DeleteTask(ctx, user, task.ID))
	_, err = repo.GetTask(ctx, user, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteTask(ctx, user, task.ID), domain.ErrNotFound)
}

func TestTaskRepository_UpdateSyncLink(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTaskRepository(db)
	user := testUser()

	task := &domain.Task{UserID: user, Title: "A", Subtasks: []domain.Subtask{{Title: "s"}}}
	require.NoError(t, repo.CreateTask(ctx, task))

	var link domain.SyncLink
	link.MarkSynced("r1", "L1", "", time.Now())
	require.NoError(t, repo.UpdateSyncLink(ctx, user, domain.TopLevel(task.ID), link))

	var subLink domain.SyncLink
	subLink.MarkSynced("r2", "L1", "r1", time.Now())
	require.NoError(t, repo.UpdateSyncLink(ctx, user, domain.SubtaskOf(task.ID, task.Subtasks[0].ID), subLink))

	got, err := repo.GetTask(ctx, user, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.Link.RemoteTaskID)
	assert.Equal(t, "A", got.Title, "link writes leave task fields alone")
	assert.Equal(t, "r2", got.Subtasks[0].Link.RemoteTaskID)
	assert.Equal(t, "r1", got.Subtasks[0].Link.RemoteParentID)
	assert.Equal(t, domain.SyncSynced, got.Subtasks[0].Link.Status)

	err = repo.UpdateSyncLink(ctx, user, domain.SubtaskOf(task.ID, "missing"), subLink)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = repo.UpdateSyncLink(ctx, user, domain.TopLevel("missing"), link)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskRepository_DeleteTasks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTaskRepository(db)
	user := testUser()

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		task := &domain.Task{UserID: user, Title: title}
		require.NoError(t, repo.CreateTask(ctx, task))
		ids = append(ids, task.ID)
	}

	n, err := repo.DeleteTasks(ctx, user, []string{ids[0], ids[2], "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err := repo.ListTasks(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[1], list[0].ID)
}

func TestCredentialRepository_DisableSync(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tasks := NewTaskRepository(db)
	creds := NewCredentialRepository(db)
	active, disabled := testUser(), testUser()

	require.NoError(t, tasks.CreateTask(ctx, &domain.Task{UserID: active, Title: "a"}))
	require.NoError(t, tasks.CreateTask(ctx, &domain.Task{UserID: disabled, Title: "b"}))

	_, err := creds.GetCredential(ctx, disabled)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, creds.DisableSync(ctx, disabled, "invalid_grant"), domain.ErrNotFound)

	require.NoError(t, creds.SaveCredential(ctx, &domain.Credential{
		UserID: disabled, AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer",
	}))
	require.NoError(t, creds.DisableSync(ctx, disabled, "invalid_grant"))

	cred, err := creds.GetCredential(ctx, disabled)
	require.NoError(t, err)
	assert.True(t, cred.SyncDisabled)
	assert.Equal(t, "invalid_grant", cred.DisabledReason)

	users, err := tasks.ListUsers(ctx)
	require.NoError(t, err)
	assert.Contains(t, users, active)
	assert.NotContains(t, users, disabled)

	// A fresh grant without a refresh token keeps the stored one and re-enables sync.
	require.NoError(t, creds.SaveCredential(ctx, &domain.Credential{UserID: disabled, AccessToken: "at2"}))
	cred, err = creds.GetCredential(ctx, disabled)
	require.NoError(t, err)
	assert.False(t, cred.SyncDisabled)
	assert.Equal(t, "rt", cred.RefreshToken)

	users, err = tasks.ListUsers(ctx)
	require.NoError(t, err)
	assert.Contains(t, users, disabled)
}
