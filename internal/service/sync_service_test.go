package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/reconcile"
	"github.com/locvowork/task_reconciler/internal/remote"
	"github.com/locvowork/task_reconciler/internal/remote/remotetest"
	"github.com/locvowork/task_reconciler/internal/repository"
	"github.com/locvowork/task_reconciler/pkg/googlecloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	reports []*domain.AuditReport
	err     error
}

func (f *fakeIndexer) IndexAudit(_ context.Context, r *domain.AuditReport) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.reports = append(f.reports, r)
	return fmt.Sprintf("audit-%d", len(f.reports)), nil
}

type fakeJournal struct {
	page *googlecloud.RunPage
	err  error
}

func (f *fakeJournal) ListRunsByUser(_ context.Context, _ string, _ int, _ string) (*googlecloud.RunPage, error) {
	return f.page, f.err
}

func newTestService(t *testing.T, journal RunJournal, indexer AuditIndexer) (SyncService, *repository.MemoryStore, *remotetest.FakeService) {
	t.Helper()
	store := repository.NewMemoryStore()
	fake := remotetest.NewFakeService()
	fake.AddList("L1", "My Tasks")
	dial := func(context.Context, string) (remote.Service, error) { return fake, nil }

	policy := config.DefaultSyncPolicy()
	policy.DanglingGrace = 0
	orch := reconcile.NewOrchestrator(store, dial, policy,
		reconcile.WithSyncDisabler(store),
		reconcile.WithExecutorOptions(remote.Options{
			MaxAttempts: 2,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
			PageSize:    100,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		}),
	)
	auditor := reconcile.NewAuditor(store, dial, policy)
	return NewSyncService(orch, auditor, journal, indexer), store, fake
}

func TestSyncService_FullSync(t *testing.T) {
	ctx := context.Background()
	svc, store, fake := newTestService(t, nil, nil)
	require.NoError(t, store.CreateTask(ctx, &domain.Task{UserID: "u1", Title: "Pay rent"}))

	_, err := svc.FullSync(ctx, "", reconcile.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	m, err := svc.FullSync(ctx, "u1", reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDone, m.State)
	assert.Equal(t, 1, m.Push.Created)
	assert.Len(t, fake.Tasks("L1"), 1)
}

func TestSyncService_SyncAllUsesStoredUsers(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil, nil)
	require.NoError(t, store.CreateTask(ctx, &domain.Task{UserID: "u1", Title: "a"}))
	require.NoError(t, store.CreateTask(ctx, &domain.Task{UserID: "u2", Title: "b"}))

	results, err := svc.SyncAll(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Empty(t, r.Error, r.UserID)
		require.NotNil(t, r.Metrics)
	}

	_, err = svc.SyncAll(ctx, nil, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSyncService_AuditIndexesReport(t *testing.T) {
	ctx := context.Background()
	indexer := &fakeIndexer{}
	svc, store, _ := newTestService(t, nil, indexer)
	require.NoError(t, store.CreateTask(ctx, &domain.Task{UserID: "u1", Title: "Pay rent"}))
	require.NoError(t, store.CreateTask(ctx, &domain.Task{UserID: "u1", Title: "pay rent"}))

	report, err := svc.Audit(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, report.Duplicates, 1)
	require.Len(t, indexer.reports, 1)
	assert.Same(t, report, indexer.reports[0])
}

func TestSyncService_AuditSurvivesIndexerFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil, &fakeIndexer{err: errors.New("es down")})
	require.NoError(t, store.CreateTask(ctx, &domain.Task{UserID: "u1", Title: "a"}))

	report, err := svc.Audit(ctx, "u1", false)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestSyncService_ListRuns(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newTestService(t, nil, nil)
	_, err := svc.ListRuns(ctx, "u1", 10, "")
	assert.ErrorIs(t, err, ErrJournalDisabled)

	page := &googlecloud.RunPage{Runs: []googlecloud.SyncRun{{ID: "r1", UserID: "u1"}}}
	svc, _, _ = newTestService(t, &fakeJournal{page: page}, nil)
	got, err := svc.ListRuns(ctx, "u1", 10, "")
	require.NoError(t, err)
	assert.Equal(t, page, got)

	svc, _, _ = newTestService(t, &fakeJournal{err: fmt.Errorf("%w: garbage", googlecloud.ErrInvalidCursor)}, nil)
	_, err = svc.ListRuns(ctx, "u1", 10, "garbage")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
