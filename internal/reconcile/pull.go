package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/pkg/titlenorm"
)

// pull maps the remote snapshot onto the local store: linked records take
// remote field values, unknown remote tasks become local records.
func (r *runContext) pull(ctx context.Context, lists []string) error {
	c := &r.metrics.Pull
	index := r.work.remoteIndex()

	for _, listID := range lists {
		items := r.snap.tasks(listID)
		// Roots first so children find their parent.
		for _, rt := range items {
			if rt.Parent == "" {
				if err := r.pullRoot(ctx, rt, index, c); err != nil {
					return err
				}
			}
		}
		for _, rt := range items {
			if rt.Parent != "" {
				if err := r.pullChild(ctx, rt, index, c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *runContext) pullRoot(ctx context.Context, rt *domain.RemoteTask, index map[string]domain.RecordRef, c *domain.PhaseCounters) error {
	if ref, ok := index[rt.ID]; ok {
		return r.mapRemote(ctx, ref, rt, c)
	}

	if t := r.unlinkedTaskByTitle(rt); t != nil {
		ref := domain.TopLevel(t.ID)
		return r.pairByTitle(ctx, ref, t.Title, &t.Completed, rt, index, c, func() error {
			return r.work.update(ctx, t)
		}, func(l domain.SyncLink) { t.Link = l })
	}

	t := r.newLocalTask(rt, "")
	if err := r.work.create(ctx, t); err != nil {
		return fmt.Errorf("import remote task %s: %w", rt.ID, err)
	}
	index[rt.ID] = domain.TopLevel(t.ID)
	c.Created++
	return nil
}

func (r *runContext) pullChild(ctx context.Context, rt *domain.RemoteTask, index map[string]domain.RecordRef, c *domain.PhaseCounters) error {
	if ref, ok := index[rt.ID]; ok {
		return r.mapRemote(ctx, ref, rt, c)
	}

	parentRef, ok := index[rt.Parent]
	if !ok || parentRef.IsSubtask() {
		// Parent unknown locally: import as a top-level orphan that remembers
		// its remote parent.
		t := r.newLocalTask(rt, rt.Parent)
		if err := r.work.create(ctx, t); err != nil {
			return fmt.Errorf("import orphan %s: %w", rt.ID, err)
		}
		index[rt.ID] = domain.TopLevel(t.ID)
		c.Created++
		logger.DebugLog(ctx, "imported remote child %s without local parent", rt.ID)
		return nil
	}

	parent := r.work.get(parentRef.TaskID)
	if parent == nil {
		c.Skipped++
		return nil
	}
	key := titlenorm.Normalize(rt.Title)
	for i := range parent.Subtasks {
		s := &parent.Subtasks[i]
		if !s.Link.Linked() && key != "" && titlenorm.Normalize(s.Title) == key {
			ref := domain.SubtaskOf(parent.ID, s.ID)
			return r.pairByTitle(ctx, ref, s.Title, &s.Completed, rt, index, c, func() error {
				return r.work.update(ctx, parent)
			}, func(l domain.SyncLink) { s.Link = l })
		}
	}

	sub := domain.Subtask{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     rt.Title,
		Completed: rt.Completed(),
	}
	sub.Link.MarkSynced(rt.ID, rt.ListID, rt.Parent, r.now())
	parent.Subtasks = append(parent.Subtasks, sub)
	if err := r.work.update(ctx, parent); err != nil {
		return fmt.Errorf("import remote sub-task %s: %w", rt.ID, err)
	}
	index[rt.ID] = domain.SubtaskOf(parent.ID, sub.ID)
	c.Created++
	return nil
}

// pairByTitle links an unlinked local record to rt and OR-merges completion.
func (r *runContext) pairByTitle(ctx context.Context, ref domain.RecordRef, title string, completed *bool, rt *domain.RemoteTask,
	index map[string]domain.RecordRef, c *domain.PhaseCounters, persist func() error, setLink func(domain.SyncLink)) error {
	var link domain.SyncLink
	link.MarkSynced(rt.ID, rt.ListID, rt.Parent, r.now())
	if *completed && !rt.Completed() {
		// The remote still lacks the local completion; push it next pass.
		link.Status = domain.SyncPending
	}
	*completed = *completed || rt.Completed()
	setLink(link)
	if err := persist(); err != nil {
		return fmt.Errorf("pair %s with %s: %w", ref, rt.ID, err)
	}
	index[rt.ID] = ref
	r.titleLinked[ref] = true
	logger.DebugLog(ctx, "paired %s (%q) with remote %s by title", ref, title, rt.ID)
	c.Updated++
	return nil
}

func (r *runContext) unlinkedTaskByTitle(rt *domain.RemoteTask) *domain.Task {
	key := titlenorm.Normalize(rt.Title)
	if key == "" {
		return nil
	}
	for _, t := range r.work.live() {
		if t.Link.Linked() || r.scope.listFor(t) != rt.ListID {
			continue
		}
		if titlenorm.Normalize(t.Title) == key {
			return t
		}
	}
	return nil
}

func (r *runContext) newLocalTask(rt *domain.RemoteTask, remoteParent string) *domain.Task {
	projectID := r.scope.projectForList(rt.ListID)
	t := &domain.Task{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      r.userID,
		ProjectID:   projectID,
		Title:       r.scope.localTitle(projectID, rt.Title),
		Description: DescriptionFromNotes(rt.Notes),
		Completed:   rt.Completed(),
		Subtasks:    []domain.Subtask{},
	}
	if rt.Due != nil {
		d := *rt.Due
		t.Due = &d
	}
	t.Link.MarkSynced(rt.ID, rt.ListID, remoteParent, r.now())
	return t
}

// mapRemote applies remote field values to an already linked record. Records
// with unpushed local changes keep them.
func (r *runContext) mapRemote(ctx context.Context, ref domain.RecordRef, rt *domain.RemoteTask, c *domain.PhaseCounters) error {
	cur := r.work.get(ref.TaskID)
	if cur == nil {
		return nil
	}
	if ref.IsSubtask() {
		if s := cur.Subtask(ref.SubtaskID); s == nil || s.Link.NeedsPush() {
			c.Skipped++
			return nil
		}
	} else if cur.Link.NeedsPush() {
		c.Skipped++
		return nil
	}

	// Re-read so an edit made while this run was in flight is not overwritten.
	t, err := r.work.refresh(ctx, ref.TaskID)
	if err != nil {
		return err
	}
	if t == nil {
		c.Skipped++
		return nil
	}

	var changed bool
	if ref.IsSubtask() {
		s := t.Subtask(ref.SubtaskID)
		if s == nil || s.Link.NeedsPush() || s.Link.RemoteTaskID != rt.ID {
			c.Skipped++
			return nil
		}
		changed = r.mapSubtaskFields(ref, s, rt)
	} else {
		if t.Link.NeedsPush() || t.Link.RemoteTaskID != rt.ID {
			c.Skipped++
			return nil
		}
		changed = r.mapTaskFields(ref, t, rt)
	}
	if !changed {
		return nil
	}
	if err := r.work.update(ctx, t); err != nil {
		return fmt.Errorf("apply remote state to %s: %w", ref, err)
	}
	c.Updated++
	return nil
}

func (r *runContext) mapTaskFields(ref domain.RecordRef, t *domain.Task, rt *domain.RemoteTask) bool {
	changed := false
	if rt.Title != r.scope.remoteTitle(t) {
		if title := r.scope.localTitle(t.ProjectID, rt.Title); title != t.Title && title != "" {
			t.Title = title
			changed = true
		}
	}
	if desc := DescriptionFromNotes(rt.Notes); desc != strings.TrimSpace(t.Description) {
		t.Description = desc
		changed = true
	}
	completed := rt.Completed()
	if r.titleLinked[ref] {
		completed = completed || t.Completed
	}
	if completed != t.Completed {
		t.Completed = completed
		changed = true
	}
	if !domain.SameDate(t.Due, rt.Due) {
		if rt.Due == nil {
			t.Due = nil
		} else {
			d := *rt.Due
			t.Due = &d
		}
		changed = true
	}
	if t.Link.RemoteParentID != rt.Parent {
		t.Link.RemoteParentID = rt.Parent
		changed = true
	}
	return changed
}

func (r *runContext) mapSubtaskFields(ref domain.RecordRef, s *domain.Subtask, rt *domain.RemoteTask) bool {
	changed := false
	if rt.Title != s.Title && rt.Title != "" {
		s.Title = rt.Title
		changed = true
	}
	completed := rt.Completed()
	if r.titleLinked[ref] {
		completed = completed || s.Completed
	}
	if completed != s.Completed {
		s.Completed = completed
		changed = true
	}
	if s.Link.RemoteParentID != rt.Parent {
		s.Link.RemoteParentID = rt.Parent
		changed = true
	}
	return changed
}
