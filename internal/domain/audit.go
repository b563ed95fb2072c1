package domain

import "time"

// ClusterMember is one record inside a duplicate cluster.
type ClusterMember struct {
	Ref          RecordRef `json:"ref"`
	Title        string    `json:"title"`
	Completed    bool      `json:"completed"`
	RemoteTaskID string    `json:"remote_task_id,omitempty"`
}

// DuplicateCluster is a group of records sharing scope and normalized title.
type DuplicateCluster struct {
	Scope   string          `json:"scope"`
	Key     string          `json:"key"`
	Members []ClusterMember `json:"members"`
}

// TitleCollision is a top-level task whose title matches sub-tasks elsewhere in its project.
type TitleCollision struct {
	ProjectID string      `json:"project_id,omitempty"`
	Key       string      `json:"key"`
	Orphan    RecordRef   `json:"orphan"`
	Title     string      `json:"title"`
	Anchors   []RecordRef `json:"anchors"`
}

// ParentMismatch is a record whose hierarchy disagrees between local and remote.
type ParentMismatch struct {
	Ref          RecordRef `json:"ref"`
	Title        string    `json:"title"`
	RemoteTaskID string    `json:"remote_task_id"`
	LocalParent  string    `json:"local_parent,omitempty"`
	RemoteParent string    `json:"remote_parent,omitempty"`
}

// DanglingLink is a stored remote id that no longer resolves.
type DanglingLink struct {
	Ref          RecordRef `json:"ref"`
	Title        string    `json:"title"`
	RemoteTaskID string    `json:"remote_task_id"`
	RemoteListID string    `json:"remote_list_id,omitempty"`
}

// RemoteDuplicate is a cluster of remote tasks sharing list, parent and normalized title.
type RemoteDuplicate struct {
	ListID  string   `json:"list_id"`
	Parent  string   `json:"parent,omitempty"`
	Key     string   `json:"key"`
	TaskIDs []string `json:"task_ids"`
}

// AuditReport is the read-only consistency report.
type AuditReport struct {
	UserID            string             `json:"user_id"`
	GeneratedAt       time.Time          `json:"generated_at"`
	RemoteChecked     bool               `json:"remote_checked"`
	TaskCount         int                `json:"task_count"`
	SubtaskCount      int                `json:"subtask_count"`
	Duplicates        []DuplicateCluster `json:"duplicates"`
	SubtaskDuplicates []DuplicateCluster `json:"subtask_duplicates"`
	Collisions        []TitleCollision   `json:"collisions"`
	ParentMismatches  []ParentMismatch   `json:"parent_mismatches"`
	DanglingLinks     []DanglingLink     `json:"dangling_links"`
	RemoteDuplicates  []RemoteDuplicate  `json:"remote_duplicates"`
	Warnings          []string           `json:"warnings"`
}

// Clean reports whether the audit found nothing to fix.
func (r *AuditReport) Clean() bool {
	return len(r.Duplicates) == 0 && len(r.SubtaskDuplicates) == 0 && len(r.Collisions) == 0 &&
		len(r.ParentMismatches) == 0 && len(r.DanglingLinks) == 0 && len(r.RemoteDuplicates) == 0
}

// MergePlan describes how one duplicate cluster collapses.
type MergePlan struct {
	Scope           string      `json:"scope"`
	Key             string      `json:"key"`
	Keep            RecordRef   `json:"keep"`
	Discard         []RecordRef `json:"discard"`
	MergedTitle     string      `json:"merged_title"`
	MergedCompleted bool        `json:"merged_completed"`
}

// MigrationPlan describes one orphan folded into an anchor's sub-task.
type MigrationPlan struct {
	ProjectID  string      `json:"project_id,omitempty"`
	Orphan     RecordRef   `json:"orphan"`
	Title      string      `json:"title"`
	Anchor     RecordRef   `json:"anchor"`
	Candidates []RecordRef `json:"candidates,omitempty"`
	Skipped    bool        `json:"skipped"`
	Reason     string      `json:"reason,omitempty"`
}

// CleanupResult reports what a cleanup pass did or would do.
type CleanupResult struct {
	UserID     string          `json:"user_id"`
	DryRun     bool            `json:"dry_run"`
	Mode       string          `json:"mode"`
	Merges     []MergePlan     `json:"merges"`
	Migrations []MigrationPlan `json:"migrations"`
	Dedupe     PhaseCounters   `json:"dedupe"`
	Reclassify PhaseCounters   `json:"reclassify"`
	Warnings   []string        `json:"warnings"`
}
