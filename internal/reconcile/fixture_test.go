package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/remote"
	"github.com/locvowork/task_reconciler/internal/remote/remotetest"
	"github.com/locvowork/task_reconciler/internal/repository"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *repository.MemoryStore
	fake   *remotetest.FakeService
	policy config.SyncPolicy
	orch   *Orchestrator
	dials  int
}

func testExecutorOptions() remote.Options {
	return remote.Options{
		MaxAttempts:     3,
		InitialWait:     time.Millisecond,
		MaxWait:         2 * time.Millisecond,
		PageSize:        100,
		ListConcurrency: 2,
		Sleep:           func(context.Context, time.Duration) error { return nil },
	}
}

func newFixture(t *testing.T, tweaks ...func(*config.SyncPolicy)) *fixture {
	t.Helper()
	policy := config.DefaultSyncPolicy()
	policy.DanglingGrace = 0
	for _, tw := range tweaks {
		tw(&policy)
	}

	f := &fixture{
		store:  repository.NewMemoryStore(),
		fake:   remotetest.NewFakeService(),
		policy: policy,
	}
	f.store.SetClock(func() time.Time { return testNow })
	f.fake.AddList("L1", "My Tasks")
	f.orch = NewOrchestrator(f.store, f.dial, policy,
		WithClock(func() time.Time { return testNow }),
		WithSyncDisabler(f.store),
		WithExecutorOptions(testExecutorOptions()),
	)
	return f
}

func (f *fixture) dial(_ context.Context, _ string) (remote.Service, error) {
	f.dials++
	return f.fake, nil
}

func (f *fixture) addTask(t *testing.T, task domain.Task) domain.Task {
	t.Helper()
	if task.UserID == "" {
		task.UserID = "u1"
	}
	require.NoError(t, f.store.CreateTask(context.Background(), &task))
	return task
}

func (f *fixture) tasks(t *testing.T) []domain.Task {
	t.Helper()
	tasks, err := f.store.ListTasks(context.Background(), "u1")
	require.NoError(t, err)
	return tasks
}

func (f *fixture) run(t *testing.T) *domain.RunMetrics {
	t.Helper()
	m, err := f.orch.Run(context.Background(), "u1", RunOptions{})
	require.NoError(t, err)
	require.Equal(t, domain.PhaseDone, m.State)
	return m
}

func syncedLink(remoteID, listID string, at time.Time) domain.SyncLink {
	var l domain.SyncLink
	l.MarkSynced(remoteID, listID, "", at)
	return l
}
