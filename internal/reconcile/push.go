package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
)

// clearDangling resets links whose remote task a complete listing no longer
// contains. Links synced within the grace period are left alone.
func (r *runContext) clearDangling(ctx context.Context, c *domain.PhaseCounters) error {
	grace := r.policy.DanglingGrace.Std()
	now := r.now()

	check := func(ref domain.RecordRef, link domain.SyncLink) error {
		absent, listGone := r.snap.absent(link)
		if !absent {
			return nil
		}
		if grace > 0 && now.Sub(link.SyncedAt()) < grace {
			logger.DebugLog(ctx, "remote task %s of %s missing but synced recently, keeping", link.RemoteTaskID, ref)
			c.Skipped++
			return nil
		}
		logger.InfoLog(ctx, "clearing dangling remote reference %s of %s", link.RemoteTaskID, ref)
		link.Clear(listGone)
		if err := r.work.saveLink(ctx, ref, link); err != nil {
			return fmt.Errorf("clear link of %s: %w", ref, err)
		}
		c.Cleared++
		return nil
	}

	for _, t := range r.work.live() {
		if err := check(domain.TopLevel(t.ID), t.Link); err != nil {
			return err
		}
		for _, s := range t.Subtasks {
			if err := check(domain.SubtaskOf(t.ID, s.ID), s.Link); err != nil {
				return err
			}
		}
	}
	return nil
}

// push sends pending and failed records to the remote side, top-level tasks
// first so sub-tasks can name their parent.
func (r *runContext) push(ctx context.Context) error {
	c := &r.metrics.Push
	if err := r.clearDangling(ctx, c); err != nil {
		return err
	}

	for _, t := range r.work.live() {
		if !t.Link.NeedsPush() && !(t.Link.Linked() && anySubtaskPending(t)) {
			continue
		}
		if err := r.pushTask(ctx, t, c); err != nil {
			return err
		}
	}

	for _, t := range r.work.live() {
		for i := range t.Subtasks {
			s := &t.Subtasks[i]
			if !s.Link.NeedsPush() {
				continue
			}
			if err := r.pushSubtask(ctx, t, s, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func anySubtaskPending(t *domain.Task) bool {
	for _, s := range t.Subtasks {
		if s.Link.NeedsPush() {
			return true
		}
	}
	return false
}

func (r *runContext) pushTask(ctx context.Context, t *domain.Task, c *domain.PhaseCounters) error {
	ref := domain.TopLevel(t.ID)
	listID := r.scope.listFor(t)
	if listID == "" {
		err := fmt.Errorf("no remote task list available: %w", domain.ErrValidation)
		return r.recordFailure(ctx, c, ref, t.Title, t.Link, err)
	}
	if t.Title == "" {
		err := fmt.Errorf("empty title: %w", domain.ErrValidation)
		return r.recordFailure(ctx, c, ref, t.Title, t.Link, err)
	}

	link := t.Link
	desired := r.scope.desiredTask(t, listID)

	// A stale id falls through to title matching and creation once.
	for attempt := 0; attempt < 2; attempt++ {
		m := r.snap.resolver(listID).Resolve(link, "", t.Title)
		outcome, err := r.applyMatch(ctx, m, listID, "", desired, t.Completed, c)
		if errors.Is(err, domain.ErrRemoteNotFound) && m.Kind != MatchNone {
			r.snap.remove(m.Remote.ID)
			link.Clear(false)
			continue
		}
		if err != nil {
			return r.recordFailure(ctx, c, ref, t.Title, link, err)
		}
		if outcome.skipped {
			c.Skipped++
			return nil
		}
		if outcome.kind == MatchByTitle {
			r.titleLinked[ref] = true
		}
		if !outcome.wrote && link.Status == domain.SyncSynced && link.RemoteTaskID == outcome.remote.ID {
			return nil
		}
		link.MarkSynced(outcome.remote.ID, listID, outcome.remote.Parent, r.now())
		if err := r.work.saveLink(ctx, ref, link); err != nil {
			return fmt.Errorf("save link of %s: %w", ref, err)
		}
		countOutcome(c, outcome)
		return nil
	}
	return r.recordFailure(ctx, c, ref, t.Title, link, fmt.Errorf("remote task vanished twice: %w", domain.ErrRemoteNotFound))
}

func (r *runContext) pushSubtask(ctx context.Context, t *domain.Task, s *domain.Subtask, c *domain.PhaseCounters) error {
	ref := domain.SubtaskOf(t.ID, s.ID)
	if !t.Link.Linked() {
		// Parent has no remote task yet; the next pass picks this up.
		c.Skipped++
		return nil
	}
	if s.Title == "" {
		return r.recordFailure(ctx, c, ref, s.Title, s.Link, fmt.Errorf("empty title: %w", domain.ErrValidation))
	}
	listID := t.Link.RemoteListID
	parentID := t.Link.RemoteTaskID
	link := s.Link

	for attempt := 0; attempt < 2; attempt++ {
		m := r.snap.resolver(listID).Resolve(link, parentID, s.Title)
		desired := desiredSubtask(s, listID, m.Remote)
		outcome, err := r.applyMatch(ctx, m, listID, parentID, desired, s.Completed, c)
		if errors.Is(err, domain.ErrRemoteNotFound) && m.Kind != MatchNone {
			r.snap.remove(m.Remote.ID)
			link.Clear(false)
			continue
		}
		if err != nil {
			return r.recordFailure(ctx, c, ref, s.Title, link, err)
		}
		if outcome.skipped {
			c.Skipped++
			return nil
		}
		if outcome.kind == MatchByTitle {
			r.titleLinked[ref] = true
		}
		link.MarkSynced(outcome.remote.ID, listID, outcome.remote.Parent, r.now())
		if err := r.work.saveLink(ctx, ref, link); err != nil {
			return fmt.Errorf("save link of %s: %w", ref, err)
		}
		countOutcome(c, outcome)
		return nil
	}
	return r.recordFailure(ctx, c, ref, s.Title, link, fmt.Errorf("remote task vanished twice: %w", domain.ErrRemoteNotFound))
}

type pushOutcome struct {
	kind    MatchKind
	remote  *domain.RemoteTask
	created bool
	wrote   bool
	skipped bool
}

func countOutcome(c *domain.PhaseCounters, o pushOutcome) {
	switch {
	case o.created:
		c.Created++
	case o.wrote:
		c.Updated++
	default:
		c.Skipped++
	}
}

// applyMatch performs the remote writes a resolution calls for. parentID is
// the remote parent the record must sit under ("" for top-level).
func (r *runContext) applyMatch(ctx context.Context, m Match, listID, parentID string, desired domain.RemoteTask, completed bool, c *domain.PhaseCounters) (pushOutcome, error) {
	out := pushOutcome{kind: m.Kind}
	switch m.Kind {
	case MatchByID:
		known := m.Remote
		needPatch := !known.Equivalent(desired)
		needMove := known.Parent != parentID
		if (needPatch || needMove) && !r.spend() {
			return pushOutcome{skipped: true}, nil
		}
		if needPatch {
			patched, _, err := r.exec.PatchIfDifferent(ctx, known, desired)
			if err != nil {
				return out, err
			}
			r.snap.put(*patched)
			out.wrote = true
		}
		if needMove {
			if _, err := r.moveRemote(ctx, listID, known.ID, parentID); err != nil {
				return out, err
			}
			out.wrote = true
		}
		out.remote = r.snap.get(known.ID)

	case MatchByTitle:
		// Pair only. The one field pushed is a completion the remote lacks.
		known := m.Remote
		if completed && !known.Completed() {
			if !r.spend() {
				return pushOutcome{skipped: true}, nil
			}
			want := *known
			want.Status = domain.RemoteCompleted
			patched, _, err := r.exec.PatchIfDifferent(ctx, known, want)
			if err != nil {
				return out, err
			}
			r.snap.put(*patched)
			out.wrote = true
		}
		out.remote = r.snap.get(known.ID)
		// Pairing itself is a local write.
		out.wrote = true

	default:
		if !r.spend() {
			return pushOutcome{skipped: true}, nil
		}
		desired.ID = ""
		created, err := r.exec.Create(ctx, listID, parentID, desired)
		if err != nil {
			return out, err
		}
		r.snap.put(*created)
		out.remote = r.snap.get(created.ID)
		out.created = true
		out.wrote = true
	}
	return out, nil
}
