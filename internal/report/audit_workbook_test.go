package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteAuditWorkbook(t *testing.T) {
	report := &domain.AuditReport{
		UserID:        "u1",
		GeneratedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		RemoteChecked: true,
		TaskCount:     3,
		Duplicates: []domain.DuplicateCluster{{
			Scope: "list:L1",
			Key:   "pay rent",
			Members: []domain.ClusterMember{
				{Ref: domain.TopLevel("t1"), Title: "Pay rent", RemoteTaskID: "r1"},
				{Ref: domain.TopLevel("t2"), Title: "pay  rent", Completed: true},
			},
		}},
		Collisions: []domain.TitleCollision{{
			Key:     "call dentist",
			Orphan:  domain.TopLevel("t3"),
			Title:   "Call dentist",
			Anchors: []domain.RecordRef{domain.SubtaskOf("t4", "s1")},
		}},
		RemoteDuplicates: []domain.RemoteDuplicate{{ListID: "L1", Key: "milk", TaskIDs: []string{"r7", "r8"}}},
		Warnings:         []string{"remote checks skipped: boom"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAuditWorkbook(&buf, report))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		SheetSummary, SheetDuplicates, SheetSubtaskDuplicates, SheetCollisions,
		SheetParentMismatches, SheetDanglingLinks, SheetRemoteDuplicates, SheetWarnings,
	}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Property", "Value"}, summary[0])
	assert.Equal(t, []string{"User", "u1"}, summary[1])
	assert.Equal(t, []string{"Clean", "FALSE"}, summary[len(summary)-1])

	dups, err := f.GetRows(SheetDuplicates)
	require.NoError(t, err)
	require.Len(t, dups, 3)
	assert.Equal(t, []string{"list:L1", "pay rent", "t2", "pay  rent", "TRUE"}, dups[2])

	collisions, err := f.GetRows(SheetCollisions)
	require.NoError(t, err)
	require.Len(t, collisions, 2)
	assert.Equal(t, "t4/s1", collisions[1][4])

	remote, err := f.GetRows(SheetRemoteDuplicates)
	require.NoError(t, err)
	assert.Equal(t, "r7, r8", remote[1][3])

	mismatches, err := f.GetRows(SheetParentMismatches)
	require.NoError(t, err)
	assert.Len(t, mismatches, 1, "header only")
}
