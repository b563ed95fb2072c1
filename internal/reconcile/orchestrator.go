package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/internal/remote"
)

// SyncDisabler flags a user whose credentials need re-authorization.
type SyncDisabler interface {
	DisableSync(ctx context.Context, userID, reason string) error
}

// RunOptions override the policy for a single run.
type RunOptions struct {
	// MaxRecords caps push mutations; 0 keeps the policy value.
	MaxRecords int
	// ReclassifyMode is strict or auto-all; empty keeps the policy value.
	ReclassifyMode string
	// Concurrency bounds concurrent list fetches; 0 keeps the policy value.
	Concurrency int
}

// Orchestrator drives per-user reconciliation runs.
type Orchestrator struct {
	store     domain.TaskStore
	dial      remote.Dialer
	policy    config.SyncPolicy
	execOpts  remote.Options
	disabler  SyncDisabler
	observers []domain.RunObserver
	now       func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObservers registers run observers (journal, report sink).
func WithObservers(obs ...domain.RunObserver) Option {
	return func(o *Orchestrator) {
		for _, ob := range obs {
			if ob != nil {
				o.observers = append(o.observers, ob)
			}
		}
	}
}

// WithSyncDisabler sets who is told when a user's grant is no longer valid.
func WithSyncDisabler(d SyncDisabler) Option {
	return func(o *Orchestrator) { o.disabler = d }
}

// WithExecutorOptions overrides the executor options derived from the policy.
func WithExecutorOptions(opts remote.Options) Option {
	return func(o *Orchestrator) { o.execOpts = opts }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(store domain.TaskStore, dial remote.Dialer, policy config.SyncPolicy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		dial:     dial,
		policy:   policy,
		execOpts: remote.OptionsFromPolicy(policy),
		now:      time.Now,
		running:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the sync policy in effect.
func (o *Orchestrator) Policy() config.SyncPolicy {
	return o.policy
}

func (o *Orchestrator) lock(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[userID] {
		return false
	}
	o.running[userID] = true
	return true
}

func (o *Orchestrator) unlock(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, userID)
}

// Run performs one full reconciliation pass for userID. The returned
// metrics are non-nil whenever the run started, including failed runs.
func (o *Orchestrator) Run(ctx context.Context, userID string, opts RunOptions) (metrics *domain.RunMetrics, err error) {
	if mode := o.mode(opts.ReclassifyMode); mode != config.ReclassifyStrict && mode != config.ReclassifyAutoAll {
		return nil, fmt.Errorf("unknown reclassify mode %q: %w", mode, domain.ErrValidation)
	}
	if opts.MaxRecords < 0 || opts.Concurrency < 0 {
		return nil, fmt.Errorf("max records and concurrency must not be negative: %w", domain.ErrValidation)
	}
	if !o.lock(userID) {
		return nil, fmt.Errorf("%s: %w", userID, domain.ErrRunInProgress)
	}
	defer o.unlock(userID)

	m := &domain.RunMetrics{
		RunID:     uuid.NewString(),
		UserID:    userID,
		State:     domain.PhaseIdle,
		StartedAt: o.now().UTC(),
	}
	ctx = logger.WithFields(ctx, map[string]interface{}{"user_id": userID, "run_id": m.RunID})
	if timeout := o.policy.RunTimeout.Std(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var exec *remote.Executor
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("run panicked: %v", p)
		}
		if exec != nil {
			m.RemoteCalls = exec.Calls()
		}
		o.finish(ctx, m, err)
		metrics = m
	}()

	logger.InfoLog(ctx, "sync run started")
	err = o.run(ctx, m, opts, &exec)
	return m, err
}

func (o *Orchestrator) enter(ctx context.Context, m *domain.RunMetrics, p domain.Phase) context.Context {
	m.State = p
	ctx = logger.WithFields(ctx, map[string]interface{}{"phase": string(p)})
	logger.DebugLog(ctx, "entering phase")
	return ctx
}

func (o *Orchestrator) run(ctx context.Context, m *domain.RunMetrics, opts RunOptions, execOut **remote.Executor) error {
	pctx := o.enter(ctx, m, domain.PhasePushingLocal)

	svc, err := o.dial(pctx, m.UserID)
	if err != nil {
		return fmt.Errorf("connect remote: %w", err)
	}
	execOpts := o.execOpts
	if opts.Concurrency > 0 {
		execOpts.ListConcurrency = opts.Concurrency
	}
	exec := remote.NewExecutor(svc, execOpts)
	*execOut = exec

	rc, lists, err := o.prepare(pctx, m, exec, false)
	if err != nil {
		return err
	}
	rc.budget = -1
	if max := opts.MaxRecords; max > 0 {
		rc.budget = max
	} else if o.policy.MaxRecordsPerRun > 0 {
		rc.budget = o.policy.MaxRecordsPerRun
	}

	if err := rc.push(pctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	logger.InfoLog(pctx, "push done: %+v", m.Push)

	pctx = o.enter(ctx, m, domain.PhasePullingRemote)
	if err := rc.pull(pctx, lists); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	logger.InfoLog(pctx, "pull done: %+v", m.Pull)

	pctx = o.enter(ctx, m, domain.PhaseDeduplicating)
	if err := rc.dedupe(pctx); err != nil {
		return fmt.Errorf("dedupe: %w", err)
	}
	logger.InfoLog(pctx, "dedupe done: %+v", m.Dedupe)

	pctx = o.enter(ctx, m, domain.PhaseReclassifying)
	if err := rc.reclassify(pctx, o.mode(opts.ReclassifyMode)); err != nil {
		return fmt.Errorf("reclassify: %w", err)
	}
	logger.InfoLog(pctx, "reclassify done: %+v", m.Reclassify)
	return nil
}

func (o *Orchestrator) mode(override string) string {
	if override != "" {
		return override
	}
	if o.policy.ReclassifyMode != "" {
		return o.policy.ReclassifyMode
	}
	return config.ReclassifyStrict
}

// prepare loads the local records and, when exec is set, the remote snapshot
// of every mapped list. Failing to list remote task lists aborts the run.
func (o *Orchestrator) prepare(ctx context.Context, m *domain.RunMetrics, exec *remote.Executor, dryRun bool) (*runContext, []string, error) {
	projects, err := o.store.ListProjects(ctx, m.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	tasks, err := o.store.ListTasks(ctx, m.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}

	rc := &runContext{
		userID:      m.UserID,
		policy:      o.policy,
		exec:        exec,
		work:        newWorkset(m.UserID, o.store, tasks, dryRun),
		metrics:     m,
		now:         o.now,
		dryRun:      dryRun,
		budget:      -1,
		titleLinked: make(map[domain.RecordRef]bool),
	}
	if exec == nil {
		rc.scope = newScope(o.policy, projects, nil, false)
		rc.snap = emptySnapshot()
		return rc, nil, nil
	}

	lists, err := exec.ListTaskLists(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list remote task lists: %w", err)
	}
	rc.scope = newScope(o.policy, projects, lists, true)
	mapped := rc.scope.mappedLists(tasks)
	byList, err := exec.ListTasksByList(ctx, mapped)
	if err != nil {
		return nil, nil, fmt.Errorf("list remote tasks: %w", err)
	}
	rc.snap = newSnapshot(lists, byList)
	return rc, mapped, nil
}

func (o *Orchestrator) finish(ctx context.Context, m *domain.RunMetrics, err error) {
	m.FinishedAt = o.now().UTC()
	m.Failed = len(m.RecordErrors)
	m.Succeeded = m.Mutations()

	if err != nil {
		m.FailedPhase = m.State
		m.State = domain.PhaseFailed
		m.Error = err.Error()
		m.ErrorKind = domain.ErrorKind(err)
		if errors.Is(err, domain.ErrAuthExpired) {
			m.NeedsReauth = true
			if o.disabler != nil {
				if derr := o.disabler.DisableSync(context.WithoutCancel(ctx), m.UserID, err.Error()); derr != nil {
					logger.ErrorLog(ctx, "failed to disable sync: %v", derr)
				}
			}
		}
		logger.ErrorLog(ctx, "sync run failed in %s: %v", m.FailedPhase, err)
	} else {
		m.State = domain.PhaseDone
		logger.InfoLog(ctx, "sync run done in %s: %d writes, %d record errors", m.Duration(), m.Succeeded, m.Failed)
	}

	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for _, ob := range o.observers {
		if oerr := ob.RunFinished(octx, m); oerr != nil {
			logger.WarnLog(ctx, "run observer failed: %v", oerr)
		}
	}
}
