package reconcile

import (
	"context"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/internal/remote"
)

// CleanupOptions configure a one-off dedupe and reclassify pass.
type CleanupOptions struct {
	// DryRun computes the plans without writing anything.
	DryRun bool
	// Mode is strict or auto-all; empty keeps the policy value.
	Mode string
}

// Cleanup runs the dedupe and reclassify phases on their own. A dry run
// never contacts the remote service. An applied cleanup mirrors deletions
// remotely when the remote service is reachable and runs local-only with a
// warning otherwise.
func (o *Orchestrator) Cleanup(ctx context.Context, userID string, opts CleanupOptions) (*domain.CleanupResult, error) {
	mode := o.mode(opts.Mode)
	if mode != config.ReclassifyStrict && mode != config.ReclassifyAutoAll {
		return nil, fmt.Errorf("unknown reclassify mode %q: %w", mode, domain.ErrValidation)
	}
	if !o.lock(userID) {
		return nil, fmt.Errorf("%s: %w", userID, domain.ErrRunInProgress)
	}
	defer o.unlock(userID)

	ctx = logger.WithFields(ctx, map[string]interface{}{"user_id": userID, "dry_run": opts.DryRun})
	m := &domain.RunMetrics{UserID: userID, StartedAt: o.now().UTC()}

	var (
		exec     *remote.Executor
		warnings []string
	)
	if !opts.DryRun {
		svc, err := o.dial(ctx, userID)
		if err == nil {
			exec = remote.NewExecutor(svc, o.execOpts)
		} else {
			warnings = append(warnings, fmt.Sprintf("remote unavailable, cleaning up locally only: %v", err))
			logger.WarnLog(ctx, "remote unavailable for cleanup: %v", err)
		}
	}

	rc, _, err := o.prepare(ctx, m, exec, opts.DryRun)
	if err != nil && exec != nil {
		warnings = append(warnings, fmt.Sprintf("remote snapshot failed, cleaning up locally only: %v", err))
		logger.WarnLog(ctx, "remote snapshot failed for cleanup: %v", err)
		rc, _, err = o.prepare(ctx, m, nil, opts.DryRun)
	}
	if err != nil {
		return nil, err
	}
	rc.warnings = warnings

	if err := rc.dedupe(ctx); err != nil {
		return nil, fmt.Errorf("dedupe: %w", err)
	}
	if err := rc.reclassify(ctx, mode); err != nil {
		return nil, fmt.Errorf("reclassify: %w", err)
	}

	res := &domain.CleanupResult{
		UserID:     userID,
		DryRun:     opts.DryRun,
		Mode:       mode,
		Merges:     rc.merges,
		Migrations: rc.migrations,
		Dedupe:     m.Dedupe,
		Reclassify: m.Reclassify,
		Warnings:   rc.warnings,
	}
	logger.InfoLog(ctx, "cleanup finished: %d merges, %d migrations", len(res.Merges), len(res.Migrations))
	return res, nil
}
