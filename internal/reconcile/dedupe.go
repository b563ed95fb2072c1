package reconcile

import (
	"context"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/pkg/titlenorm"
)

func taskCandidate(t *domain.Task) Candidate {
	return Candidate{Ref: domain.TopLevel(t.ID), Title: t.Title, Completed: t.Completed, Link: t.Link}
}

func subtaskCandidate(t *domain.Task, s *domain.Subtask) Candidate {
	return Candidate{Ref: domain.SubtaskOf(t.ID, s.ID), Title: s.Title, Completed: s.Completed, Link: s.Link}
}

// topLevelClusters groups live top-level tasks by list and normalized title.
func (r *runContext) topLevelClusters() []Cluster[*domain.Task] {
	return Group(r.work.live(), func(t *domain.Task) string {
		if titlenorm.Normalize(t.Title) == "" {
			return ""
		}
		return titlenorm.ScopedKey(r.scope.listFor(t), t.Title)
	})
}

// subtaskClusters groups the sub-tasks of t by normalized title.
func subtaskClusters(t *domain.Task) []Cluster[*domain.Subtask] {
	subs := make([]*domain.Subtask, len(t.Subtasks))
	for i := range t.Subtasks {
		subs[i] = &t.Subtasks[i]
	}
	return Group(subs, func(s *domain.Subtask) string {
		if titlenorm.Normalize(s.Title) == "" {
			return ""
		}
		return titlenorm.ScopedKey(t.ID, s.Title)
	})
}

// dedupe collapses duplicate top-level tasks per list, then duplicate
// sub-tasks per parent.
func (r *runContext) dedupe(ctx context.Context) error {
	c := &r.metrics.Dedupe

	for _, cl := range Duplicates(r.topLevelClusters()) {
		cands := make([]Candidate, len(cl.Members))
		for i, t := range cl.Members {
			cands[i] = taskCandidate(t)
		}
		keep, discard := Select(cands)
		merged := Merge(keep, cands)
		plan := domain.MergePlan{
			Scope:           "list:" + r.scope.listFor(cl.Members[0]),
			Key:             titlenorm.Normalize(keep.Title),
			Keep:            keep.Ref,
			MergedTitle:     merged.Title,
			MergedCompleted: merged.Completed,
		}
		for _, d := range discard {
			plan.Discard = append(plan.Discard, d.Ref)
		}
		r.merges = append(r.merges, plan)

		if err := r.mergeTasks(ctx, keep.Ref.TaskID, discard, merged, c); err != nil {
			return err
		}
	}

	for _, t := range r.work.live() {
		if err := r.dedupeSubtasks(ctx, t, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *runContext) mergeTasks(ctx context.Context, keepID string, discard []Candidate, merged Merged, c *domain.PhaseCounters) error {
	keep, err := r.work.refresh(ctx, keepID)
	if err != nil {
		return err
	}
	if keep == nil {
		c.Skipped++
		return nil
	}

	changed := false
	for _, d := range discard {
		loser, err := r.work.refresh(ctx, d.Ref.TaskID)
		if err != nil {
			return err
		}
		if loser == nil {
			continue
		}
		if r.adoptSubtasks(ctx, keep, loser) {
			changed = true
		}
		if adoptMissingFields(keep, loser) {
			changed = true
		}
		if loser.Link.Linked() && loser.Link.RemoteTaskID != keep.Link.RemoteTaskID {
			r.deleteRemote(ctx, loser.Link, "duplicate of "+keep.ID)
		}
		if err := r.work.remove(ctx, loser.ID); err != nil {
			return fmt.Errorf("delete duplicate %s: %w", loser.ID, err)
		}
		logger.InfoLog(ctx, "merged duplicate task %s (%q) into %s", loser.ID, loser.Title, keep.ID)
		c.Deleted++
	}

	if keep.Title != merged.Title {
		keep.Title = merged.Title
		changed = true
	}
	if merged.Completed && !keep.Completed {
		keep.Completed = true
		changed = true
	}
	if keep.Link.Linked() && merged.LastSyncAt != nil && merged.LastSyncAt.After(keep.Link.SyncedAt()) {
		at := *merged.LastSyncAt
		keep.Link.LastSyncAt = &at
		changed = true
	}
	if !changed {
		return nil
	}
	if err := r.work.update(ctx, keep); err != nil {
		return fmt.Errorf("update survivor %s: %w", keep.ID, err)
	}
	c.Updated++
	r.syncTask(ctx, keep)
	for i := range keep.Subtasks {
		r.syncSubtask(ctx, keep, &keep.Subtasks[i])
	}
	return nil
}

// adoptSubtasks moves the sub-tasks of from onto to. Titles already present
// on to only OR their completion. It reports whether to changed.
func (r *runContext) adoptSubtasks(ctx context.Context, to, from *domain.Task) bool {
	changed := false
	for _, s := range from.Subtasks {
		key := titlenorm.Normalize(s.Title)
		if existing := findSubtask(to, key, ""); existing != nil {
			if s.Completed && !existing.Completed {
				existing.Completed = true
				changed = true
			}
			continue
		}

		moved := s
		if moved.Link.Linked() {
			if to.Link.Linked() && to.Link.RemoteListID == moved.Link.RemoteListID {
				if rt, err := r.moveRemote(ctx, to.Link.RemoteListID, moved.Link.RemoteTaskID, to.Link.RemoteTaskID); err == nil {
					moved.Link.MarkSynced(rt.ID, rt.ListID, rt.Parent, r.now())
				} else {
					if err != errRemoteUnavailable {
						r.warn(ctx, "move of sub-task %s under %s failed: %v", moved.ID, to.ID, err)
					}
					moved.Link.Clear(false)
				}
			} else {
				moved.Link.Clear(false)
			}
		}
		to.Subtasks = append(to.Subtasks, moved)
		changed = true
	}
	return changed
}

// adoptMissingFields fills fields the survivor lacks from a loser.
func adoptMissingFields(to, from *domain.Task) bool {
	changed := false
	if to.Description == "" && from.Description != "" {
		to.Description = from.Description
		changed = true
	}
	if to.Due == nil && from.Due != nil {
		d := *from.Due
		to.Due = &d
		changed = true
	}
	if to.ProjectID == "" && from.ProjectID != "" {
		to.ProjectID = from.ProjectID
		changed = true
	}
	return changed
}

func findSubtask(t *domain.Task, key, skipID string) *domain.Subtask {
	if key == "" {
		return nil
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID != skipID && titlenorm.Normalize(t.Subtasks[i].Title) == key {
			return &t.Subtasks[i]
		}
	}
	return nil
}

func (r *runContext) dedupeSubtasks(ctx context.Context, t *domain.Task, c *domain.PhaseCounters) error {
	clusters := Duplicates(subtaskClusters(t))
	if len(clusters) == 0 {
		return nil
	}

	type merge struct {
		keepID  string
		discard []Candidate
		merged  Merged
	}
	var merges []merge
	for _, cl := range clusters {
		cands := make([]Candidate, len(cl.Members))
		for i, s := range cl.Members {
			cands[i] = subtaskCandidate(t, s)
		}
		keep, discard := Select(cands)
		merged := Merge(keep, cands)
		plan := domain.MergePlan{
			Scope:           "parent:" + t.ID,
			Key:             titlenorm.Normalize(keep.Title),
			Keep:            keep.Ref,
			MergedTitle:     merged.Title,
			MergedCompleted: merged.Completed,
		}
		for _, d := range discard {
			plan.Discard = append(plan.Discard, d.Ref)
		}
		r.merges = append(r.merges, plan)
		merges = append(merges, merge{keepID: keep.Ref.SubtaskID, discard: discard, merged: merged})
	}

	for _, m := range merges {
		keep := t.Subtask(m.keepID)
		if keep == nil {
			continue
		}
		keep.Title = m.merged.Title
		keep.Completed = m.merged.Completed
		keepRemote := keep.Link.RemoteTaskID
		for _, d := range m.discard {
			if d.Link.Linked() && d.Link.RemoteTaskID != keepRemote {
				r.deleteRemote(ctx, d.Link, "duplicate of sub-task "+m.keepID)
			}
			if t.RemoveSubtask(d.Ref.SubtaskID) {
				logger.InfoLog(ctx, "merged duplicate sub-task %s (%q) into %s", d.Ref, d.Title, m.keepID)
				c.Deleted++
			}
		}
	}

	if err := r.work.update(ctx, t); err != nil {
		return fmt.Errorf("update task %s after sub-task merge: %w", t.ID, err)
	}
	c.Updated++
	for _, m := range merges {
		if keep := t.Subtask(m.keepID); keep != nil {
			r.syncSubtask(ctx, t, keep)
		}
	}
	r.syncTask(ctx, t)
	return nil
}
