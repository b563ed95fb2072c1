package googlecloud

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetrics() *domain.RunMetrics {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &domain.RunMetrics{
		RunID:       "run-1",
		UserID:      "u1",
		State:       domain.PhaseFailed,
		FailedPhase: domain.PhasePullingRemote,
		Error:       "quota exceeded",
		ErrorKind:   "quota",
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
		Succeeded:   4,
		Failed:      1,
		RemoteCalls: 12,
		RecordErrors: []domain.RecordError{{
			Ref:      domain.TopLevel("t1"),
			Title:    "Pay rent",
			Messages: []string{"bad request"},
		}},
	}
	m.Push = domain.PhaseCounters{Created: 2, Updated: 1, Errors: 1}
	m.Dedupe = domain.PhaseCounters{Deleted: 1}
	return m
}

func TestNewSyncRun_RoundTrip(t *testing.T) {
	m := sampleMetrics()

	run, phases, err := NewSyncRun(m)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "failed", run.State)
	assert.Equal(t, "pulling_remote", run.FailedPhase)
	assert.Contains(t, run.RecordErrors, "Pay rent")

	require.Len(t, phases, 4)
	assert.Equal(t, "pushing_local", phases[0].Phase)
	assert.Equal(t, 2, phases[0].Created)
	assert.Equal(t, 3, phases[3].Order)

	back, err := run.Metrics(phases)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestNewSyncRun_NoRecordErrors(t *testing.T) {
	m := sampleMetrics()
	m.RecordErrors = nil

	run, _, err := NewSyncRun(m)
	require.NoError(t, err)
	assert.Empty(t, run.RecordErrors)

	back, err := run.Metrics(nil)
	require.NoError(t, err)
	assert.Nil(t, back.RecordErrors)
	assert.Zero(t, back.Push.Created, "phase counters come only from phase entities")
}

func TestSyncRun_Metrics_BadRecordErrors(t *testing.T) {
	run := &SyncRun{ID: "r", RecordErrors: "{not json"}
	_, err := run.Metrics(nil)
	assert.Error(t, err)
}

func TestWrapDatastoreError(t *testing.T) {
	assert.NoError(t, WrapDatastoreError(nil))
	assert.True(t, IsNotFoundError(WrapDatastoreError(ErrNotFound)))
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return ErrInvalidKey
	})
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Equal(t, 1, calls)
}

// Runs against the Datastore emulator only.
func TestJournal_Emulator(t *testing.T) {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, "task-reconciler-test")
	require.NoError(t, err)
	defer client.Close()
	journal := NewJournal(client)

	userID := "u-" + uuid.NewString()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		m := sampleMetrics()
		m.RunID = uuid.NewString()
		m.UserID = userID
		m.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, journal.RunFinished(ctx, m))
	}

	page, err := journal.ListRunsByUser(ctx, userID, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Runs, 2)
	assert.True(t, page.HasMore)
	assert.True(t, page.Runs[0].StartedAt.After(page.Runs[1].StartedAt))

	next, err := journal.ListRunsByUser(ctx, userID, 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, next.Runs, 1)
	assert.False(t, next.HasMore)

	got, err := journal.GetRun(ctx, next.Runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Push.Created)

	_, err = journal.GetRun(ctx, "missing")
	assert.True(t, IsNotFoundError(err))
}
