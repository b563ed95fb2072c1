package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDuplicates(t *testing.T, f *fixture) {
	f.addTask(t, domain.Task{Title: "Pay rent"})
	f.addTask(t, domain.Task{Title: "pay  rent", Completed: true})
	f.addTask(t, domain.Task{Title: "Pay rent (March)"})
	f.addTask(t, domain.Task{Title: "Health", Subtasks: []domain.Subtask{{Title: "Call dentist"}}})
	f.addTask(t, domain.Task{Title: "Call dentist", Completed: true})
}

func TestCleanup_DryRunChangesNothing(t *testing.T) {
	f := newFixture(t)
	seedDuplicates(t, f)
	before := f.tasks(t)

	res, err := f.orch.Cleanup(context.Background(), "u1", CleanupOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, config.ReclassifyStrict, res.Mode)
	require.Len(t, res.Merges, 1)
	assert.Len(t, res.Merges[0].Discard, 1)
	assert.True(t, res.Merges[0].MergedCompleted)
	require.Len(t, res.Migrations, 1)
	assert.False(t, res.Migrations[0].Skipped)
	assert.Equal(t, 1, res.Dedupe.Deleted)
	assert.Equal(t, 1, res.Reclassify.Deleted)

	assert.Equal(t, before, f.tasks(t))
	assert.Zero(t, f.dials, "a dry run never contacts the remote service")
}

func TestCleanup_ApplyMutatesStore(t *testing.T) {
	f := newFixture(t)
	seedDuplicates(t, f)

	res, err := f.orch.Cleanup(context.Background(), "u1", CleanupOptions{})
	require.NoError(t, err)
	assert.False(t, res.DryRun)
	assert.Empty(t, res.Warnings)

	tasks := f.tasks(t)
	require.Len(t, tasks, 3)
	titles := []string{tasks[0].Title, tasks[1].Title, tasks[2].Title}
	assert.ElementsMatch(t, []string{"pay  rent", "Pay rent (March)", "Health"}, titles)
	for _, task := range tasks {
		if task.Title == "pay  rent" {
			assert.True(t, task.Completed)
		}
		if task.Title == "Health" {
			require.Len(t, task.Subtasks, 1)
			assert.True(t, task.Subtasks[0].Completed)
		}
	}
	assert.Zero(t, f.fake.MutationCount(), "nothing was linked, so nothing is deleted remotely")
}

func TestCleanup_RunsLocallyWhenRemoteUnavailable(t *testing.T) {
	f := newFixture(t)
	seedDuplicates(t, f)
	orch := NewOrchestrator(f.store, func(context.Context, string) (remote.Service, error) {
		return nil, errors.New("no credentials")
	}, f.policy, WithClock(func() time.Time { return testNow }))

	res, err := orch.Cleanup(context.Background(), "u1", CleanupOptions{})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no credentials")
	assert.Len(t, f.tasks(t), 3)
}

func TestCleanup_TransfersOrphanLink(t *testing.T) {
	f := newFixture(t)
	anchorRT := f.fake.AddTask("L1", domain.RemoteTask{Title: "Health"})
	strayRT := f.fake.AddTask("L1", domain.RemoteTask{Title: "Call dentist"})

	anchor := f.addTask(t, domain.Task{
		Title:    "Health",
		Link:     syncedLink(anchorRT.ID, "L1", testNow),
		Subtasks: []domain.Subtask{{Title: "Call dentist", Link: domain.SyncLink{Status: domain.SyncPending}}},
	})
	f.addTask(t, domain.Task{Title: "Call dentist", Link: syncedLink(strayRT.ID, "L1", testNow)})

	res, err := f.orch.Cleanup(context.Background(), "u1", CleanupOptions{})
	require.NoError(t, err)
	require.Len(t, res.Migrations, 1)

	moved, ok := f.fake.Task("L1", strayRT.ID)
	require.True(t, ok, "the orphan's remote task is kept and re-parented")
	assert.Equal(t, anchorRT.ID, moved.Parent)
	assert.Equal(t, 1, f.fake.CallCount(remote.OpMoveTask))
	assert.Zero(t, f.fake.CallCount(remote.OpDeleteTask))

	got, err := f.store.GetTask(context.Background(), "u1", anchor.ID)
	require.NoError(t, err)
	require.Len(t, got.Subtasks, 1)
	assert.Equal(t, strayRT.ID, got.Subtasks[0].Link.RemoteTaskID)
	assert.Equal(t, domain.SyncSynced, got.Subtasks[0].Link.Status)
	assert.Len(t, f.tasks(t), 1)
}

func TestCleanup_AmbiguousAnchorModes(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, domain.Task{Title: "Errands", Subtasks: []domain.Subtask{{Title: "Call dentist"}, {Title: "Buy stamps"}}})
	f.addTask(t, domain.Task{Title: "Health", Subtasks: []domain.Subtask{{Title: "Call dentist"}}})
	f.addTask(t, domain.Task{Title: "Call dentist"})

	strict, err := f.orch.Cleanup(context.Background(), "u1", CleanupOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, strict.Migrations, 1)
	assert.False(t, strict.Migrations[0].Skipped)
	assert.Empty(t, strict.Migrations[0].Anchor.TaskID)
	assert.Equal(t, 1, strict.Reclassify.Deleted)
	assert.Len(t, f.tasks(t), 3, "dry run leaves the store alone")

	auto, err := f.orch.Cleanup(context.Background(), "u1", CleanupOptions{Mode: config.ReclassifyAutoAll})
	require.NoError(t, err)
	require.Len(t, auto.Migrations, 1)
	assert.False(t, auto.Migrations[0].Skipped)
	assert.Len(t, f.tasks(t), 2)

	_, err = f.orch.Cleanup(context.Background(), "u1", CleanupOptions{Mode: "everything"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
