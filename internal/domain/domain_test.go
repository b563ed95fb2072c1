package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLink_Lifecycle(t *testing.T) {
	var l SyncLink
	assert.False(t, l.Linked())
	assert.True(t, l.NeedsPush(), "a fresh record is pushed")

	at := time.Date(2024, 2, 1, 9, 0, 0, 0, time.FixedZone("X", 3600))
	l.MarkSynced("r1", "L1", "", at)
	assert.True(t, l.Linked())
	assert.False(t, l.NeedsPush())
	assert.Equal(t, time.UTC, l.SyncedAt().Location())

	for i := 0; i < 7; i++ {
		l.MarkError(fmt.Sprintf("boom %d", i), 5)
	}
	assert.Equal(t, SyncError, l.Status)
	require.Len(t, l.LastErrors, 5)
	assert.Equal(t, "boom 2", l.LastErrors[0])
	assert.True(t, l.NeedsPush())

	l.Clear(false)
	assert.False(t, l.Linked())
	assert.Equal(t, "L1", l.RemoteListID)
	assert.Equal(t, SyncPending, l.Status)
	l.Clear(true)
	assert.Empty(t, l.RemoteListID)
}

func TestTask_CloneIsDeep(t *testing.T) {
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	orig := Task{ID: "t1", Due: &due, Subtasks: []Subtask{{ID: "s1", Title: "a"}}}
	orig.Link.MarkError("x", 3)

	c := orig.Clone()
	c.Subtasks[0].Title = "b"
	*c.Due = due.Add(24 * time.Hour)
	c.Link.LastErrors[0] = "y"

	assert.Equal(t, "a", orig.Subtasks[0].Title)
	assert.True(t, orig.Due.Equal(due))
	assert.Equal(t, "x", orig.Link.LastErrors[0])

	assert.True(t, c.RemoveSubtask("s1"))
	assert.False(t, c.RemoveSubtask("s1"))
	assert.Nil(t, c.Subtask("s1"))
	assert.NotNil(t, orig.Subtask("s1"))
}

func TestRemoteTask_Equivalent(t *testing.T) {
	morning := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 2, 1, 20, 0, 0, 0, time.UTC)
	base := RemoteTask{ID: "r1", Title: "Pay rent", Status: RemoteNeedsAction, Notes: "n", Due: &morning}

	same := base
	same.Due = &evening
	same.Parent = "r0"
	same.Updated = morning
	assert.True(t, base.Equivalent(same), "time of day, parent and updated are ignored")

	for name, mutate := range map[string]func(*RemoteTask){
		"title":  func(r *RemoteTask) { r.Title = "Pay Rent" },
		"status": func(r *RemoteTask) { r.Status = RemoteCompleted },
		"notes":  func(r *RemoteTask) { r.Notes = "" },
		"due":    func(r *RemoteTask) { r.Due = nil },
	} {
		other := base
		mutate(&other)
		assert.False(t, base.Equivalent(other), name)
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "auth_expired", ErrorKind(fmt.Errorf("list: %w", ErrAuthExpired)))
	assert.Equal(t, "run_in_progress", ErrorKind(ErrRunInProgress))
	assert.Equal(t, "internal", ErrorKind(errors.New("boom")))
}

func TestRunMetrics_Counters(t *testing.T) {
	m := &RunMetrics{}
	m.Counters(PhasePushingLocal).Created = 2
	m.Counters(PhaseDeduplicating).Deleted = 1
	m.Counters(PhasePullingRemote).Skipped = 4
	assert.Nil(t, m.Counters(PhaseDone))
	assert.Equal(t, 3, m.Mutations())
	assert.Zero(t, m.Duration())
}
