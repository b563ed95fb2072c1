package reconcile

import (
	"context"
	"testing"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudit_LocalFindings(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, domain.Task{Title: "Pay rent"})
	f.addTask(t, domain.Task{Title: "[Home] pay rent"})
	f.addTask(t, domain.Task{Title: "Health", Subtasks: []domain.Subtask{{Title: "Call dentist"}, {Title: "call dentist"}}})
	f.addTask(t, domain.Task{Title: "Call dentist"})
	var orphanLink domain.SyncLink
	orphanLink.MarkSynced("r8", "L1", "r9", testNow)
	f.addTask(t, domain.Task{Title: "Imported child", Link: orphanLink})
	before := f.tasks(t)

	report, err := NewAuditor(f.store, f.dial, f.policy).Audit(context.Background(), "u1", false)
	require.NoError(t, err)

	assert.False(t, report.RemoteChecked)
	assert.Equal(t, 5, report.TaskCount)
	assert.Equal(t, 2, report.SubtaskCount)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "pay rent", report.Duplicates[0].Key)
	assert.Len(t, report.Duplicates[0].Members, 2)
	require.Len(t, report.SubtaskDuplicates, 1)
	assert.Len(t, report.SubtaskDuplicates[0].Members, 2)
	require.Len(t, report.Collisions, 1)
	assert.Equal(t, "Call dentist", report.Collisions[0].Title)
	require.Len(t, report.ParentMismatches, 1)
	assert.Equal(t, "r9", report.ParentMismatches[0].RemoteParent)
	assert.False(t, report.Clean())

	assert.Equal(t, before, f.tasks(t))
	assert.Zero(t, f.dials)
}

func TestAudit_RemoteFindings(t *testing.T) {
	f := newFixture(t)
	groceries := f.fake.AddTask("L1", domain.RemoteTask{Title: "Groceries"})
	milk := f.fake.AddTask("L1", domain.RemoteTask{Title: "Milk", Parent: groceries.ID})
	f.fake.AddTask("L1", domain.RemoteTask{Title: "milk", Parent: groceries.ID})
	eggs := f.fake.AddTask("L1", domain.RemoteTask{Title: "Eggs", Parent: groceries.ID})

	f.addTask(t, domain.Task{
		Title:    "Groceries",
		Link:     syncedLink(groceries.ID, "L1", testNow),
		Subtasks: []domain.Subtask{{Title: "Milk", Link: syncedLink(milk.ID, "L1", testNow)}},
	})
	f.addTask(t, domain.Task{Title: "Eggs", Link: syncedLink(eggs.ID, "L1", testNow)})
	f.addTask(t, domain.Task{Title: "Gone", Link: syncedLink("r-missing", "L1", testNow)})
	before := f.tasks(t)

	report, err := NewAuditor(f.store, f.dial, f.policy).Audit(context.Background(), "u1", true)
	require.NoError(t, err)

	assert.True(t, report.RemoteChecked)
	assert.Empty(t, report.Warnings)
	require.Len(t, report.DanglingLinks, 1)
	assert.Equal(t, "r-missing", report.DanglingLinks[0].RemoteTaskID)
	require.Len(t, report.ParentMismatches, 1)
	assert.Equal(t, eggs.ID, report.ParentMismatches[0].RemoteTaskID)
	assert.Equal(t, groceries.ID, report.ParentMismatches[0].RemoteParent)
	require.Len(t, report.RemoteDuplicates, 1)
	assert.Equal(t, groceries.ID, report.RemoteDuplicates[0].Parent)
	assert.Len(t, report.RemoteDuplicates[0].TaskIDs, 2)

	assert.Zero(t, f.fake.MutationCount())
	assert.Equal(t, before, f.tasks(t))
}

func TestAudit_RemoteFailureBecomesWarning(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, domain.Task{Title: "Pay rent"})
	f.fake.FailNext("tasklists.list", remotetest.Unauthorized())

	report, err := NewAuditor(f.store, f.dial, f.policy).Audit(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.False(t, report.RemoteChecked)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "remote checks skipped")
	assert.True(t, report.Clean())
}
