package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/internal/remote"
)

const maxRecordErrors = 100

var errRemoteUnavailable = errors.New("remote service not available")

// runContext carries the state shared by the phases of one run.
type runContext struct {
	userID  string
	policy  config.SyncPolicy
	exec    *remote.Executor
	snap    *snapshot
	scope   *scope
	work    *workset
	metrics *domain.RunMetrics
	now     func() time.Time
	dryRun  bool

	// budget is the number of push mutations left; negative means unlimited.
	budget int
	// titleLinked marks records paired by title during this run.
	titleLinked map[domain.RecordRef]bool

	merges     []domain.MergePlan
	migrations []domain.MigrationPlan
	warnings   []string
}

func (r *runContext) remoteEnabled() bool {
	return r.exec != nil && !r.dryRun
}

// spend takes one unit of the push budget.
func (r *runContext) spend() bool {
	if r.budget < 0 {
		return true
	}
	if r.budget == 0 {
		return false
	}
	r.budget--
	return true
}

func (r *runContext) warn(ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.WarnLog(ctx, "%s", msg)
	r.warnings = append(r.warnings, msg)
}

// recordFailure stores a per-record push failure on the record's link. Auth
// and quota errors are stored too and then returned to abort the run;
// everything else is absorbed.
func (r *runContext) recordFailure(ctx context.Context, c *domain.PhaseCounters, ref domain.RecordRef, title string, link domain.SyncLink, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.Errors++
	link.MarkError(err.Error(), r.policy.MaxErrorMessages)
	logger.WarnLog(ctx, "record %s (%q) failed: %v", ref, title, err)
	if saveErr := r.work.saveLink(ctx, ref, link); saveErr != nil {
		logger.ErrorLog(ctx, "failed to store error state of %s: %v", ref, saveErr)
	}
	if len(r.metrics.RecordErrors) < maxRecordErrors {
		r.metrics.RecordErrors = append(r.metrics.RecordErrors, domain.RecordError{
			Ref:      ref,
			Title:    title,
			Messages: append([]string(nil), link.LastErrors...),
		})
	}
	if errors.Is(err, domain.ErrAuthExpired) || errors.Is(err, domain.ErrQuotaExceeded) {
		return err
	}
	return nil
}

// --- best-effort remote side effects used by dedupe and reclassify ---

// deleteRemote removes a discarded record's remote task. Failures are logged
// and otherwise ignored.
func (r *runContext) deleteRemote(ctx context.Context, link domain.SyncLink, reason string) {
	if !link.Linked() || !r.remoteEnabled() {
		return
	}
	listID := link.RemoteListID
	if known := r.snap.get(link.RemoteTaskID); known != nil {
		listID = known.ListID
	}
	if listID == "" {
		r.warn(ctx, "cannot delete remote task %s (%s): unknown list", link.RemoteTaskID, reason)
		return
	}
	if err := r.exec.Delete(ctx, listID, link.RemoteTaskID); err != nil {
		r.warn(ctx, "remote delete of %s (%s) failed: %v", link.RemoteTaskID, reason, err)
		return
	}
	r.snap.remove(link.RemoteTaskID)
}

// moveRemote re-parents a remote task and updates the snapshot.
func (r *runContext) moveRemote(ctx context.Context, listID, taskID, parentID string) (*domain.RemoteTask, error) {
	if !r.remoteEnabled() {
		return nil, errRemoteUnavailable
	}
	moved, err := r.exec.Move(ctx, listID, taskID, parentID)
	if err != nil {
		return nil, err
	}
	r.snap.put(*moved)
	return r.snap.get(moved.ID), nil
}

// syncTask brings the remote copy of a linked top-level task in line after
// a local merge. On failure the task is left pending for the next push.
func (r *runContext) syncTask(ctx context.Context, t *domain.Task) {
	if !t.Link.Linked() || !r.remoteEnabled() {
		return
	}
	known := r.snap.get(t.Link.RemoteTaskID)
	if known == nil {
		return
	}
	desired := r.scope.desiredTask(t, known.ListID)
	patched, called, err := r.exec.PatchIfDifferent(ctx, known, desired)
	if err != nil {
		r.warn(ctx, "remote update of %s failed, left pending: %v", t.ID, err)
		t.Link.Status = domain.SyncPending
		if saveErr := r.work.saveLink(ctx, domain.TopLevel(t.ID), t.Link); saveErr != nil {
			logger.ErrorLog(ctx, "failed to store link of %s: %v", t.ID, saveErr)
		}
		return
	}
	if called {
		r.snap.put(*patched)
	}
}

// syncSubtask is syncTask for a sub-task.
func (r *runContext) syncSubtask(ctx context.Context, t *domain.Task, sub *domain.Subtask) {
	if !sub.Link.Linked() || !r.remoteEnabled() {
		return
	}
	known := r.snap.get(sub.Link.RemoteTaskID)
	if known == nil {
		return
	}
	desired := desiredSubtask(sub, known.ListID, known)
	patched, called, err := r.exec.PatchIfDifferent(ctx, known, desired)
	if err != nil {
		r.warn(ctx, "remote update of %s/%s failed, left pending: %v", t.ID, sub.ID, err)
		sub.Link.Status = domain.SyncPending
		if saveErr := r.work.saveLink(ctx, domain.SubtaskOf(t.ID, sub.ID), sub.Link); saveErr != nil {
			logger.ErrorLog(ctx, "failed to store link of %s/%s: %v", t.ID, sub.ID, saveErr)
		}
		return
	}
	if called {
		r.snap.put(*patched)
	}
}
