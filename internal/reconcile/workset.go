package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/domain"
)

// workset is the in-memory copy of a user's tasks that phases mutate. Every
// change is written through to the store unless the run is a dry run.
type workset struct {
	userID  string
	store   domain.TaskStore
	dryRun  bool
	tasks   []*domain.Task
	byID    map[string]*domain.Task
	deleted map[string]bool
}

func newWorkset(userID string, store domain.TaskStore, tasks []domain.Task, dryRun bool) *workset {
	w := &workset{
		userID:  userID,
		store:   store,
		dryRun:  dryRun,
		byID:    make(map[string]*domain.Task, len(tasks)),
		deleted: make(map[string]bool),
	}
	for i := range tasks {
		t := tasks[i].Clone()
		w.tasks = append(w.tasks, &t)
		w.byID[t.ID] = &t
	}
	return w
}

// live returns the tasks not deleted in this run, in store order.
func (w *workset) live() []*domain.Task {
	out := make([]*domain.Task, 0, len(w.tasks))
	for _, t := range w.tasks {
		if !w.deleted[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func (w *workset) get(id string) *domain.Task {
	if w.deleted[id] {
		return nil
	}
	return w.byID[id]
}

func (w *workset) subtask(ref domain.RecordRef) (*domain.Task, *domain.Subtask) {
	t := w.get(ref.TaskID)
	if t == nil || !ref.IsSubtask() {
		return t, nil
	}
	return t, t.Subtask(ref.SubtaskID)
}

// refresh re-reads a task so a concurrent edit made during the run is seen.
// It returns nil when the task has been deleted meanwhile.
func (w *workset) refresh(ctx context.Context, id string) (*domain.Task, error) {
	cur := w.get(id)
	if cur == nil || w.dryRun {
		return cur, nil
	}
	fresh, err := w.store.GetTask(ctx, w.userID, id)
	if errors.Is(err, domain.ErrNotFound) {
		w.deleted[id] = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh task %s: %w", id, err)
	}
	*cur = *fresh
	return cur, nil
}

func (w *workset) create(ctx context.Context, t *domain.Task) error {
	t.UserID = w.userID
	if !w.dryRun {
		if err := w.store.CreateTask(ctx, t); err != nil {
			return err
		}
	}
	w.tasks = append(w.tasks, t)
	w.byID[t.ID] = t
	return nil
}

func (w *workset) update(ctx context.Context, t *domain.Task) error {
	if w.dryRun {
		return nil
	}
	return w.store.UpdateTask(ctx, t)
}

func (w *workset) remove(ctx context.Context, id string) error {
	if !w.dryRun {
		if err := w.store.DeleteTask(ctx, w.userID, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	w.deleted[id] = true
	return nil
}

// saveLink stores the link of one record.
func (w *workset) saveLink(ctx context.Context, ref domain.RecordRef, link domain.SyncLink) error {
	t, sub := w.subtask(ref)
	if t == nil {
		return fmt.Errorf("save link %s: %w", ref, domain.ErrNotFound)
	}
	if ref.IsSubtask() {
		if sub == nil {
			return fmt.Errorf("save link %s: %w", ref, domain.ErrNotFound)
		}
		sub.Link = link
	} else {
		t.Link = link
	}
	if w.dryRun {
		return nil
	}
	return w.store.UpdateSyncLink(ctx, w.userID, ref, link)
}

// remoteIndex maps every stored remote id to its local record.
func (w *workset) remoteIndex() map[string]domain.RecordRef {
	idx := make(map[string]domain.RecordRef)
	for _, t := range w.live() {
		if t.Link.Linked() {
			idx[t.Link.RemoteTaskID] = domain.TopLevel(t.ID)
		}
		for _, s := range t.Subtasks {
			if s.Link.Linked() {
				idx[s.Link.RemoteTaskID] = domain.SubtaskOf(t.ID, s.ID)
			}
		}
	}
	return idx
}
