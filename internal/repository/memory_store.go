package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/locvowork/task_reconciler/internal/domain"
)

// MemoryStore keeps tasks, projects and credentials in process memory.
// It implements domain.TaskStore and domain.CredentialStore.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]map[string]domain.Task
	order       map[string][]string
	projects    map[string][]domain.Project
	credentials map[string]domain.Credential
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]map[string]domain.Task),
		order:       make(map[string][]string),
		projects:    make(map[string][]domain.Project),
		credentials: make(map[string]domain.Credential),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []string
	for u := range m.tasks {
		if c, ok := m.credentials[u]; ok && c.SyncDisabled {
			continue
		}
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// AddProject stores a project, assigning an id when empty.
func (m *MemoryStore) AddProject(p domain.Project) domain.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}
	m.projects[p.UserID] = append(m.projects[p.UserID], p)
	return p
}

func (m *MemoryStore) ListProjects(_ context.Context, userID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Project(nil), m.projects[userID]...), nil
}

func (m *MemoryStore) ListTasks(_ context.Context, userID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Task, 0, len(m.order[userID]))
	for _, id := range m.order[userID] {
		out = append(out, m.tasks[userID][id].Clone())
	}
	return out, nil
}

func (m *MemoryStore) GetTask(_ context.Context, userID, taskID string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[userID][taskID]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", taskID, domain.ErrNotFound)
	}
	c := t.Clone()
	return &c, nil
}

func (m *MemoryStore) CreateTask(_ context.Context, t *domain.Task) error {
	if t.UserID == "" {
		return fmt.Errorf("task without user: %w", domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	if _, exists := m.tasks[t.UserID][t.ID]; exists {
		return fmt.Errorf("task %s already exists: %w", t.ID, domain.ErrValidation)
	}
	now := m.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	assignSubtaskIDs(t)

	if m.tasks[t.UserID] == nil {
		m.tasks[t.UserID] = make(map[string]domain.Task)
	}
	m.tasks[t.UserID][t.ID] = t.Clone()
	m.order[t.UserID] = append(m.order[t.UserID], t.ID)
	return nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[t.UserID][t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrNotFound)
	}
	t.UpdatedAt = m.now().UTC()
	assignSubtaskIDs(t)
	m.tasks[t.UserID][t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) UpdateSyncLink(_ context.Context, userID string, ref domain.RecordRef, link domain.SyncLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[userID][ref.TaskID]
	if !ok {
		return fmt.Errorf("update sync link %s: %w", ref, domain.ErrNotFound)
	}
	t = t.Clone()
	if !ref.IsSubtask() {
		t.Link = link
	} else {
		sub := t.Subtask(ref.SubtaskID)
		if sub == nil {
			return fmt.Errorf("update sync link %s: %w", ref, domain.ErrNotFound)
		}
		sub.Link = link
	}
	m.tasks[userID][ref.TaskID] = t.Clone()
	return nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, userID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[userID][taskID]; !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	delete(m.tasks[userID], taskID)
	ids := m.order[userID]
	for i, id := range ids {
		if id == taskID {
			m.order[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// --- credentials ---

func (m *MemoryStore) GetCredential(_ context.Context, userID string) (*domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[userID]
	if !ok {
		return nil, fmt.Errorf("credential for %s: %w", userID, domain.ErrNotFound)
	}
	return &c, nil
}

func (m *MemoryStore) SaveCredential(_ context.Context, c *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *c
	if prev, ok := m.credentials[c.UserID]; ok && saved.RefreshToken == "" {
		saved.RefreshToken = prev.RefreshToken
	}
	saved.SyncDisabled = false
	saved.DisabledReason = ""
	saved.UpdatedAt = m.now().UTC()
	m.credentials[c.UserID] = saved
	return nil
}

func (m *MemoryStore) DisableSync(_ context.Context, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[userID]
	if !ok {
		c = domain.Credential{UserID: userID}
	}
	c.SyncDisabled = true
	c.DisabledReason = reason
	c.UpdatedAt = m.now().UTC()
	m.credentials[userID] = c
	return nil
}
