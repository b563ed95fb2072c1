package reconcile

import (
	"context"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/pkg/pipeline"
)

// BatchRunner runs the orchestrator for many users with bounded
// concurrency. One user's failure never affects another's run.
type BatchRunner struct {
	orch        *Orchestrator
	concurrency int
}

// NewBatchRunner creates a BatchRunner. A concurrency below one falls back
// to the policy's concurrency.
func NewBatchRunner(orch *Orchestrator, concurrency int) *BatchRunner {
	if concurrency < 1 {
		concurrency = orch.policy.Concurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchRunner{orch: orch, concurrency: concurrency}
}

// RunUsers syncs every user in userIDs. Results keep the order of userIDs.
func (b *BatchRunner) RunUsers(ctx context.Context, userIDs []string, opts RunOptions) []domain.BatchResult {
	results := make([]domain.BatchResult, len(userIDs))
	for i, id := range userIDs {
		results[i] = domain.BatchResult{UserID: id, Error: context.Canceled.Error()}
	}

	block := pipeline.NewActionBlock(ctx, func(ctx context.Context, i int) error {
		userID := userIDs[i]
		m, err := b.orch.Run(ctx, userID, opts)
		results[i] = domain.BatchResult{UserID: userID, Metrics: m}
		if err != nil {
			results[i].Error = err.Error()
			return fmt.Errorf("user %s: %w", userID, err)
		}
		return nil
	}, pipeline.WithConcurrencyDegree(b.concurrency))

	for i := range userIDs {
		if !block.Post(i) {
			break
		}
	}
	block.Complete()
	if err := block.Wait(); err != nil {
		logger.WarnLog(ctx, "batch finished with failures: %v", err)
	}
	return results
}

// RunAll syncs every user known to the store.
func (b *BatchRunner) RunAll(ctx context.Context, opts RunOptions) ([]domain.BatchResult, error) {
	users, err := b.orch.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	logger.InfoLog(ctx, "batch sync of %d users", len(users))
	return b.RunUsers(ctx, users, opts), nil
}
