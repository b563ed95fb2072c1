package reconcile

import (
	"context"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/pkg/titlenorm"
)

// anchorIndex maps a normalized sub-task title to the tasks holding it,
// in first-seen order.
type anchorIndex map[string][]*domain.Task

func buildAnchorIndex(tasks []*domain.Task) anchorIndex {
	idx := make(anchorIndex)
	for _, t := range tasks {
		seen := make(map[string]bool, len(t.Subtasks))
		for _, s := range t.Subtasks {
			key := titlenorm.Normalize(s.Title)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			idx[key] = append(idx[key], t)
		}
	}
	return idx
}

// chooseAnchor applies the auto-all heuristic: most sub-tasks, then most
// recently updated, then first seen.
func chooseAnchor(cands []*domain.Task) *domain.Task {
	best := cands[0]
	for _, c := range cands[1:] {
		switch {
		case len(c.Subtasks) > len(best.Subtasks):
			best = c
		case len(c.Subtasks) == len(best.Subtasks) && c.UpdatedAt.After(best.UpdatedAt):
			best = c
		}
	}
	return best
}

// planMigrations finds top-level tasks that duplicate a sub-task elsewhere
// in the same project. A task that receives migrants is not itself migrated
// in the same pass, and a migrated task never serves as an anchor. In strict
// mode an orphan matching several anchors gets no anchor; it is folded into
// every match instead.
func planMigrations(tasks []*domain.Task, mode string) []domain.MigrationPlan {
	byProject := Group(tasks, func(t *domain.Task) string { return "project:" + t.ProjectID })

	var plans []domain.MigrationPlan
	for _, group := range byProject {
		idx := buildAnchorIndex(group.Members)
		migrated := make(map[string]bool)
		receiving := make(map[string]bool)

		for _, orphan := range group.Members {
			key := titlenorm.Normalize(orphan.Title)
			if key == "" {
				continue
			}
			var cands []*domain.Task
			for _, a := range idx[key] {
				if a.ID != orphan.ID && !migrated[a.ID] {
					cands = append(cands, a)
				}
			}
			if len(cands) == 0 {
				continue
			}

			plan := domain.MigrationPlan{
				ProjectID: orphan.ProjectID,
				Orphan:    domain.TopLevel(orphan.ID),
				Title:     orphan.Title,
			}
			for _, a := range cands {
				plan.Candidates = append(plan.Candidates, domain.TopLevel(a.ID))
			}

			switch {
			case receiving[orphan.ID]:
				plan.Skipped = true
				plan.Reason = "task already received migrated sub-tasks in this pass"
			case len(cands) > 1 && mode != config.ReclassifyAutoAll:
				plan.Reason = "ambiguous anchor, folded into every match"
				migrated[orphan.ID] = true
				if len(orphan.Subtasks) > 0 {
					receiving[cands[0].ID] = true
				}
			default:
				anchor := chooseAnchor(cands)
				plan.Anchor = domain.TopLevel(anchor.ID)
				migrated[orphan.ID] = true
				receiving[anchor.ID] = true
			}
			plans = append(plans, plan)
		}
	}
	return plans
}

// reclassify folds orphan top-level tasks into the anchor sub-task they duplicate.
func (r *runContext) reclassify(ctx context.Context, mode string) error {
	c := &r.metrics.Reclassify
	plans := planMigrations(r.work.live(), mode)
	r.migrations = append(r.migrations, plans...)

	for _, p := range plans {
		if p.Skipped {
			logger.InfoLog(ctx, "not reclassifying %s (%q): %s", p.Orphan, p.Title, p.Reason)
			c.Skipped++
			continue
		}
		migrate := r.migrate
		if p.Anchor.TaskID == "" {
			migrate = r.fold
		}
		if err := migrate(ctx, p, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *runContext) migrate(ctx context.Context, p domain.MigrationPlan, c *domain.PhaseCounters) error {
	anchor, err := r.work.refresh(ctx, p.Anchor.TaskID)
	if err != nil {
		return err
	}
	orphan, err := r.work.refresh(ctx, p.Orphan.TaskID)
	if err != nil {
		return err
	}
	if anchor == nil || orphan == nil {
		c.Skipped++
		return nil
	}
	sub := findSubtask(anchor, titlenorm.Normalize(orphan.Title), "")
	if sub == nil {
		// Concurrent edit removed the matching sub-task.
		c.Skipped++
		return nil
	}
	subID := sub.ID

	completionChanged := orphan.Completed && !sub.Completed
	if completionChanged {
		sub.Completed = true
	}

	// Children of the orphan go first so its remote deletion cannot take them along.
	r.adoptSubtasks(ctx, anchor, orphan)
	sub = anchor.Subtask(subID)

	transferred := false
	if !sub.Link.Linked() && orphan.Link.Linked() && anchor.Link.Linked() &&
		orphan.Link.RemoteListID == anchor.Link.RemoteListID && len(orphan.Subtasks) == 0 {
		rt, err := r.moveRemote(ctx, anchor.Link.RemoteListID, orphan.Link.RemoteTaskID, anchor.Link.RemoteTaskID)
		switch {
		case err == nil:
			sub.Link.MarkSynced(rt.ID, rt.ListID, rt.Parent, r.now())
			transferred = true
		case err != errRemoteUnavailable:
			r.warn(ctx, "link transfer of %s under %s failed: %v", orphan.ID, anchor.ID, err)
		}
	}
	if !transferred && orphan.Link.Linked() && orphan.Link.RemoteTaskID != sub.Link.RemoteTaskID {
		r.deleteRemote(ctx, orphan.Link, "reclassified into "+anchor.ID)
	}

	if err := r.work.update(ctx, anchor); err != nil {
		return fmt.Errorf("update anchor %s: %w", anchor.ID, err)
	}
	if err := r.work.remove(ctx, orphan.ID); err != nil {
		return fmt.Errorf("delete orphan %s: %w", orphan.ID, err)
	}
	logger.InfoLog(ctx, "reclassified %s (%q) into sub-task %s of %s", orphan.ID, orphan.Title, subID, anchor.ID)
	c.Deleted++
	c.Updated++

	if transferred || completionChanged {
		r.syncSubtask(ctx, anchor, anchor.Subtask(subID))
	}
	r.syncTask(ctx, anchor)
	return nil
}

// fold removes an orphan whose title matches sub-tasks on several anchors.
// Its completion is ORed onto every match and its own sub-tasks go to the
// first anchor still present.
func (r *runContext) fold(ctx context.Context, p domain.MigrationPlan, c *domain.PhaseCounters) error {
	orphan, err := r.work.refresh(ctx, p.Orphan.TaskID)
	if err != nil {
		return err
	}
	if orphan == nil {
		c.Skipped++
		return nil
	}
	key := titlenorm.Normalize(orphan.Title)

	type target struct {
		anchor    *domain.Task
		subID     string
		completed bool
		changed   bool
	}
	var targets []target
	for _, ref := range p.Candidates {
		anchor, err := r.work.refresh(ctx, ref.TaskID)
		if err != nil {
			return err
		}
		if anchor == nil {
			continue
		}
		sub := findSubtask(anchor, key, "")
		if sub == nil {
			continue
		}
		tg := target{anchor: anchor, subID: sub.ID}
		if orphan.Completed && !sub.Completed {
			sub.Completed = true
			tg.completed = true
			tg.changed = true
		}
		targets = append(targets, tg)
	}
	if len(targets) == 0 {
		// Concurrent edits removed every matching sub-task.
		c.Skipped++
		return nil
	}

	// Children of the orphan go first so its remote deletion cannot take them along.
	if r.adoptSubtasks(ctx, targets[0].anchor, orphan) {
		targets[0].changed = true
	}
	shared := false
	for _, tg := range targets {
		shared = shared || sharesRemote(tg.anchor, orphan.Link.RemoteTaskID)
	}
	if orphan.Link.Linked() && !shared {
		r.deleteRemote(ctx, orphan.Link, "folded into "+targets[0].anchor.ID)
	}

	for _, tg := range targets {
		if !tg.changed {
			continue
		}
		if err := r.work.update(ctx, tg.anchor); err != nil {
			return fmt.Errorf("update anchor %s: %w", tg.anchor.ID, err)
		}
		c.Updated++
	}
	if err := r.work.remove(ctx, orphan.ID); err != nil {
		return fmt.Errorf("delete orphan %s: %w", orphan.ID, err)
	}
	logger.InfoLog(ctx, "folded %s (%q) into %d matching sub-tasks", orphan.ID, orphan.Title, len(targets))
	c.Deleted++

	for _, tg := range targets {
		if !tg.changed {
			continue
		}
		if tg.completed {
			r.syncSubtask(ctx, tg.anchor, tg.anchor.Subtask(tg.subID))
		}
		r.syncTask(ctx, tg.anchor)
	}
	return nil
}

func sharesRemote(t *domain.Task, remoteID string) bool {
	for _, s := range t.Subtasks {
		if s.Link.RemoteTaskID == remoteID {
			return true
		}
	}
	return false
}
