package domain

import "time"

// RemoteStatus is the completion state used by the remote service.
type RemoteStatus string

const (
	RemoteNeedsAction RemoteStatus = "needsAction"
	RemoteCompleted   RemoteStatus = "completed"
)

// StatusFor maps a completion flag to the remote status.
func StatusFor(completed bool) RemoteStatus {
	if completed {
		return RemoteCompleted
	}
	return RemoteNeedsAction
}

// RemoteTaskList is a task list owned by the remote service.
type RemoteTaskList struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Updated time.Time `json:"updated"`
}

// RemoteTask is a task owned by the remote service.
// Parent is empty for tasks at the root of their list.
type RemoteTask struct {
	ID       string       `json:"id"`
	ListID   string       `json:"list_id"`
	Title    string       `json:"title"`
	Notes    string       `json:"notes,omitempty"`
	Status   RemoteStatus `json:"status"`
	Due      *time.Time   `json:"due,omitempty"`
	Parent   string       `json:"parent,omitempty"`
	Position string       `json:"position,omitempty"`
	Updated  time.Time    `json:"updated"`
	Deleted  bool         `json:"deleted,omitempty"`
	Hidden   bool         `json:"hidden,omitempty"`
}

// Completed reports whether the remote task is completed.
func (r RemoteTask) Completed() bool {
	return r.Status == RemoteCompleted
}

// Equivalent reports whether two remote states agree on every field that
// matters for sync: title, status, notes and due date. Updated and Parent
// are deliberately ignored.
func (r RemoteTask) Equivalent(o RemoteTask) bool {
	return r.Title == o.Title &&
		r.Status == o.Status &&
		r.Notes == o.Notes &&
		sameDate(r.Due, o.Due)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UTC().Format("2006-01-02") == b.UTC().Format("2006-01-02")
}

// SameDate compares two optional due dates at day precision.
func SameDate(a, b *time.Time) bool {
	return sameDate(a, b)
}
