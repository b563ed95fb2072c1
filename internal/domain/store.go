package domain

import (
	"context"
	"time"
)

// TaskStore is the local, authoritative task store.
type TaskStore interface {
	ListUsers(ctx context.Context) ([]string, error)
	ListProjects(ctx context.Context, userID string) ([]Project, error)
	ListTasks(ctx context.Context, userID string) ([]Task, error)
	GetTask(ctx context.Context, userID, taskID string) (*Task, error)
	CreateTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	// UpdateSyncLink replaces only the link of the referenced record.
	UpdateSyncLink(ctx context.Context, userID string, ref RecordRef, link SyncLink) error
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// Credential is a user's stored OAuth grant for the remote service.
type Credential struct {
	UserID         string    `json:"user_id"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenType      string    `json:"token_type"`
	Expiry         time.Time `json:"expiry"`
	SyncDisabled   bool      `json:"sync_disabled"`
	DisabledReason string    `json:"disabled_reason,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CredentialStore persists per-user remote credentials.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID string) (*Credential, error)
	SaveCredential(ctx context.Context, cred *Credential) error
	// DisableSync flags the user as needing re-authorization.
	DisableSync(ctx context.Context, userID, reason string) error
}

// RunObserver is notified when a run reaches a terminal state.
type RunObserver interface {
	RunFinished(ctx context.Context, metrics *RunMetrics) error
}
