package domain

import (
	"time"
)

// SyncStatus tracks where a record stands relative to its remote counterpart.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// SyncLink correlates a local record with a remote task.
// Empty string ids mean "not set".
type SyncLink struct {
	RemoteTaskID   string     `json:"remote_task_id,omitempty"`
	RemoteListID   string     `json:"remote_list_id,omitempty"`
	RemoteParentID string     `json:"remote_parent_id,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	Status         SyncStatus `json:"status"`
	LastErrors     []string   `json:"last_errors,omitempty"`
}

// Linked reports whether the record carries a remote task id.
func (l SyncLink) Linked() bool {
	return l.RemoteTaskID != ""
}

// NeedsPush reports whether the record must be sent to the remote side.
func (l SyncLink) NeedsPush() bool {
	return l.Status == "" || l.Status == SyncPending || l.Status == SyncError
}

// MarkSynced records a successful push or link.
func (l *SyncLink) MarkSynced(remoteID, listID, parentID string, at time.Time) {
	at = at.UTC()
	l.RemoteTaskID = remoteID
	l.RemoteListID = listID
	l.RemoteParentID = parentID
	l.LastSyncAt = &at
	l.Status = SyncSynced
	l.LastErrors = nil
}

// MarkError appends msg to the bounded error list and flips the status to error.
func (l *SyncLink) MarkError(msg string, limit int) {
	l.Status = SyncError
	l.LastErrors = append(l.LastErrors, msg)
	if limit > 0 && len(l.LastErrors) > limit {
		l.LastErrors = l.LastErrors[len(l.LastErrors)-limit:]
	}
}

// Clear drops the remote reference and resets the record to pending.
// The list id survives unless dropList is set.
func (l *SyncLink) Clear(dropList bool) {
	l.RemoteTaskID = ""
	l.RemoteParentID = ""
	if dropList {
		l.RemoteListID = ""
	}
	l.Status = SyncPending
}

// SyncedAt returns the last sync time or the zero time.
func (l SyncLink) SyncedAt() time.Time {
	if l.LastSyncAt == nil {
		return time.Time{}
	}
	return *l.LastSyncAt
}

// Subtask is a leaf entry of a Task. It has no children of its own.
type Subtask struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Completed bool     `json:"completed"`
	Link      SyncLink `json:"sync_link"`
}

// Task is the authoritative local record.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ProjectID   string     `json:"project_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Due         *time.Time `json:"due,omitempty"`
	Subtasks    []Subtask  `json:"subtasks"`
	Link        SyncLink   `json:"sync_link"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Subtask returns a pointer to the sub-task with the given id, or nil.
func (t *Task) Subtask(id string) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return &t.Subtasks[i]
		}
	}
	return nil
}

// RemoveSubtask deletes the sub-task with the given id and reports whether it existed.
func (t *Task) RemoveSubtask(id string) bool {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			t.Subtasks = append(t.Subtasks[:i], t.Subtasks[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.Due != nil {
		d := *t.Due
		c.Due = &d
	}
	c.Link = t.Link.clone()
	c.Subtasks = make([]Subtask, len(t.Subtasks))
	for i, s := range t.Subtasks {
		s.Link = s.Link.clone()
		c.Subtasks[i] = s
	}
	return c
}

func (l SyncLink) clone() SyncLink {
	c := l
	if l.LastSyncAt != nil {
		at := *l.LastSyncAt
		c.LastSyncAt = &at
	}
	if l.LastErrors != nil {
		c.LastErrors = append([]string(nil), l.LastErrors...)
	}
	return c
}

// Project groups tasks and optionally maps onto one remote task list.
type Project struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	RemoteListID string `json:"remote_list_id,omitempty"`
}

// RecordRef addresses either a top-level task or a sub-task of one.
// A sub-task can only be addressed through its parent, so nothing deeper exists.
type RecordRef struct {
	TaskID    string `json:"task_id"`
	SubtaskID string `json:"subtask_id,omitempty"`
}

// TopLevel refers to a top-level task.
func TopLevel(taskID string) RecordRef {
	return RecordRef{TaskID: taskID}
}

// SubtaskOf refers to a sub-task of parentID.
func SubtaskOf(parentID, subtaskID string) RecordRef {
	return RecordRef{TaskID: parentID, SubtaskID: subtaskID}
}

// IsSubtask reports whether the ref points at a sub-task.
func (r RecordRef) IsSubtask() bool {
	return r.SubtaskID != ""
}

func (r RecordRef) String() string {
	if r.IsSubtask() {
		return r.TaskID + "/" + r.SubtaskID
	}
	return r.TaskID
}
