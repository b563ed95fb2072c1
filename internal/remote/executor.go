package remote

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/pkg/retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options tune an Executor.
type Options struct {
	MaxAttempts       int
	InitialWait       time.Duration
	MaxWait           time.Duration
	QuotaInitialWait  time.Duration
	CallTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	// ListConcurrency bounds concurrent list fetches for one user.
	ListConcurrency int
	// Sleep replaces the backoff wait. Tests use it to skip real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromPolicy derives executor options from the sync policy.
func OptionsFromPolicy(p config.SyncPolicy) Options {
	return Options{
		MaxAttempts:       p.Retry.MaxAttempts,
		InitialWait:       p.Retry.InitialWait.Std(),
		MaxWait:           p.Retry.MaxWait.Std(),
		QuotaInitialWait:  p.Retry.QuotaInitialWait.Std(),
		CallTimeout:       p.CallTimeout.Std(),
		RequestsPerSecond: p.RateLimit.RequestsPerSecond,
		Burst:             p.RateLimit.Burst,
		PageSize:          p.PageSize,
		ListConcurrency:   2,
	}
}

func (o *Options) setDefaults() {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.InitialWait <= 0 {
		o.InitialWait = 200 * time.Millisecond
	}
	if o.MaxWait < o.InitialWait {
		o.MaxWait = 10 * o.InitialWait
	}
	if o.QuotaInitialWait < o.InitialWait {
		o.QuotaInitialWait = 4 * o.InitialWait
	}
	if o.PageSize < 1 || o.PageSize > 100 {
		o.PageSize = 100
	}
	if o.ListConcurrency < 1 {
		o.ListConcurrency = 1
	}
	if o.Burst < 1 {
		o.Burst = 1
	}
}

// Executor performs remote calls for one user with rate limiting, per-call
// timeouts, bounded retries and pagination.
type Executor struct {
	svc     Service
	opts    Options
	limiter *rate.Limiter
	calls   atomic.Int64
}

// NewExecutor wraps svc.
func NewExecutor(svc Service, opts Options) *Executor {
	opts.setDefaults()
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Executor{
		svc:     svc,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Burst),
	}
}

// Calls is the number of network attempts made so far, retries included.
func (e *Executor) Calls() int64 {
	return e.calls.Load()
}

func (e *Executor) classify(err error) (bool, func(int) time.Duration) {
	switch Classify(err) {
	case domain.ErrTransientNetwork:
		return true, nil
	case domain.ErrQuotaExceeded:
		return true, retry.ExponentialBackoff(e.opts.QuotaInitialWait, 4*e.opts.MaxWait)
	}
	return false, nil
}

// do runs one logical call. A failure is always returned as *CallError.
func (e *Executor) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opts := []retry.Option{
		retry.WithMaxAttempts(e.opts.MaxAttempts),
		retry.WithBackoff(retry.ExponentialBackoff(e.opts.InitialWait, e.opts.MaxWait)),
		retry.WithRetryIf(e.classify),
		retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.WarnLog(ctx, "%s attempt %d failed, retrying in %s: %v", op, attempt, wait, err)
		}),
	}
	if e.opts.Sleep != nil {
		opts = append(opts, retry.WithSleep(e.opts.Sleep))
	}

	attempts, err := retry.Do(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		e.calls.Add(1)
		callCtx := ctx
		if e.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
			defer cancel()
		}
		return fn(callCtx)
	}, opts...)
	if err == nil {
		return nil
	}
	return &CallError{Op: op, Attempts: attempts, Kind: Classify(err), Err: err}
}

// --- Reads ---

// ListTaskLists follows continuation tokens until the listing is exhausted.
func (e *Executor) ListTaskLists(ctx context.Context) ([]domain.RemoteTaskList, error) {
	var out []domain.RemoteTaskList
	seen := make(map[string]bool)
	token := ""
	for {
		var page *TaskListPage
		err := e.do(ctx, OpListTaskLists, func(ctx context.Context) error {
			var err error
			page, err = e.svc.ListTaskLists(ctx, token, e.opts.PageSize)
			return err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextPageToken == "" {
			return out, nil
		}
		if seen[page.NextPageToken] {
			return nil, fmt.Errorf("%s: repeated page token %q", OpListTaskLists, page.NextPageToken)
		}
		seen[page.NextPageToken] = true
		token = page.NextPageToken
	}
}

// ListTasks returns every task of listID across all pages. A page token seen
// twice aborts the listing instead of ingesting a page again.
func (e *Executor) ListTasks(ctx context.Context, listID string) ([]domain.RemoteTask, error) {
	var out []domain.RemoteTask
	seen := make(map[string]bool)
	token := ""
	for {
		var page *TaskPage
		err := e.do(ctx, OpListTasks, func(ctx context.Context) error {
			var err error
			page, err = e.svc.ListTasks(ctx, listID, token, e.opts.PageSize)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", listID, err)
		}
		for _, t := range page.Items {
			if t.Deleted {
				continue
			}
			t.ListID = listID
			out = append(out, t)
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		if seen[page.NextPageToken] {
			return nil, fmt.Errorf("list %s: repeated page token %q", listID, page.NextPageToken)
		}
		seen[page.NextPageToken] = true
		token = page.NextPageToken
	}
}

// ListTasksByList fetches several lists concurrently. Pages within one list
// stay sequential.
func (e *Executor) ListTasksByList(ctx context.Context, listIDs []string) (map[string][]domain.RemoteTask, error) {
	results := make([][]domain.RemoteTask, len(listIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ListConcurrency)
	for i, id := range listIDs {
		i, id := i, id
		g.Go(func() error {
			items, err := e.ListTasks(gctx, id)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]domain.RemoteTask, len(listIDs))
	for i, id := range listIDs {
		out[id] = results[i]
	}
	return out, nil
}

// --- Writes ---

// Create inserts desired under parentID (empty for the list root).
func (e *Executor) Create(ctx context.Context, listID, parentID string, desired domain.RemoteTask) (*domain.RemoteTask, error) {
	var created *domain.RemoteTask
	err := e.do(ctx, OpInsertTask, func(ctx context.Context) error {
		var err error
		created, err = e.svc.InsertTask(ctx, listID, parentID, desired)
		return err
	})
	if err != nil {
		return nil, err
	}
	created.ListID = listID
	return created, nil
}

// PatchIfDifferent updates the remote task only when desired differs from the
// last known state. It reports whether a call was made.
func (e *Executor) PatchIfDifferent(ctx context.Context, known *domain.RemoteTask, desired domain.RemoteTask) (*domain.RemoteTask, bool, error) {
	if known != nil && known.Equivalent(desired) {
		return known, false, nil
	}
	if desired.ID == "" && known != nil {
		desired.ID = known.ID
	}
	if desired.ListID == "" && known != nil {
		desired.ListID = known.ListID
	}

	var patched *domain.RemoteTask
	err := e.do(ctx, OpPatchTask, func(ctx context.Context) error {
		var err error
		patched, err = e.svc.PatchTask(ctx, desired.ListID, desired)
		return err
	})
	if err != nil {
		return nil, true, err
	}
	patched.ListID = desired.ListID
	return patched, true, nil
}

// Delete removes a remote task. A task that is already gone counts as deleted.
func (e *Executor) Delete(ctx context.Context, listID, taskID string) error {
	err := e.do(ctx, OpDeleteTask, func(ctx context.Context) error {
		return e.svc.DeleteTask(ctx, listID, taskID)
	})
	if err != nil && Classify(err) == domain.ErrRemoteNotFound {
		return nil
	}
	return err
}

// Move re-parents a remote task inside its list.
func (e *Executor) Move(ctx context.Context, listID, taskID, parentID string) (*domain.RemoteTask, error) {
	var moved *domain.RemoteTask
	err := e.do(ctx, OpMoveTask, func(ctx context.Context) error {
		var err error
		moved, err = e.svc.MoveTask(ctx, listID, taskID, parentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	moved.ListID = listID
	return moved, nil
}
