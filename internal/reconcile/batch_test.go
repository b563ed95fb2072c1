package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/remote"
	"github.com/locvowork/task_reconciler/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRunner_IsolatesUsers(t *testing.T) {
	f := newFixture(t)
	fakes := map[string]*remotetest.FakeService{}
	for _, u := range []string{"u1", "u3"} {
		fake := remotetest.NewFakeService()
		fake.AddList("L1", "My Tasks")
		fakes[u] = fake
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		f.addTask(t, domain.Task{UserID: u, Title: "Task of " + u})
	}
	dial := func(_ context.Context, userID string) (remote.Service, error) {
		if fake, ok := fakes[userID]; ok {
			return fake, nil
		}
		return nil, errors.New("connection refused")
	}
	orch := NewOrchestrator(f.store, dial, f.policy,
		WithClock(func() time.Time { return testNow }),
		WithExecutorOptions(testExecutorOptions()),
	)

	results, err := NewBatchRunner(orch, 2).RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, u := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, u, results[i].UserID)
		require.NotNil(t, results[i].Metrics)
	}
	assert.Empty(t, results[0].Error)
	assert.Equal(t, domain.PhaseDone, results[0].Metrics.State)
	assert.Contains(t, results[1].Error, "connection refused")
	assert.Equal(t, domain.PhaseFailed, results[1].Metrics.State)
	assert.Empty(t, results[2].Error)
	assert.Equal(t, 1, results[2].Metrics.Push.Created)

	assert.Len(t, fakes["u1"].Tasks("L1"), 1)
	assert.Len(t, fakes["u3"].Tasks("L1"), 1)
}

func TestBatchRunner_ReportsRunInProgress(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, domain.Task{Title: "Buy milk"})
	require.True(t, f.orch.lock("u1"))
	defer f.orch.unlock("u1")

	results := NewBatchRunner(f.orch, 0).RunUsers(context.Background(), []string{"u1"}, RunOptions{})
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Metrics)
	assert.Contains(t, results[0].Error, domain.ErrRunInProgress.Error())
}
