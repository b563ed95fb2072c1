package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/internal/reconcile"
	"github.com/locvowork/task_reconciler/pkg/googlecloud"
)

// ErrJournalDisabled is returned by ListRuns when no run journal is configured.
var ErrJournalDisabled = errors.New("run journal is not configured")

// RunJournal pages through persisted runs.
type RunJournal interface {
	ListRunsByUser(ctx context.Context, userID string, pageSize int, cursor string) (*googlecloud.RunPage, error)
}

// AuditIndexer stores audit reports for later inspection.
type AuditIndexer interface {
	IndexAudit(ctx context.Context, r *domain.AuditReport) (string, error)
}

type SyncService interface {
	FullSync(ctx context.Context, userID string, opts reconcile.RunOptions) (*domain.RunMetrics, error)
	SyncAll(ctx context.Context, userIDs []string, concurrency int) ([]domain.BatchResult, error)
	Audit(ctx context.Context, userID string, withRemote bool) (*domain.AuditReport, error)
	Cleanup(ctx context.Context, userID string, opts reconcile.CleanupOptions) (*domain.CleanupResult, error)
	ListRuns(ctx context.Context, userID string, pageSize int, cursor string) (*googlecloud.RunPage, error)
}

type syncService struct {
	orch    *reconcile.Orchestrator
	auditor *reconcile.Auditor
	journal RunJournal
	indexer AuditIndexer
}

// NewSyncService builds the facade. journal and indexer may be nil.
func NewSyncService(orch *reconcile.Orchestrator, auditor *reconcile.Auditor, journal RunJournal, indexer AuditIndexer) SyncService {
	return &syncService{orch: orch, auditor: auditor, journal: journal, indexer: indexer}
}

func (s *syncService) FullSync(ctx context.Context, userID string, opts reconcile.RunOptions) (*domain.RunMetrics, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	return s.orch.Run(ctx, userID, opts)
}

func (s *syncService) SyncAll(ctx context.Context, userIDs []string, concurrency int) ([]domain.BatchResult, error) {
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency must not be negative: %w", domain.ErrValidation)
	}
	runner := reconcile.NewBatchRunner(s.orch, concurrency)
	if len(userIDs) == 0 {
		return runner.RunAll(ctx, reconcile.RunOptions{})
	}
	return runner.RunUsers(ctx, userIDs, reconcile.RunOptions{}), nil
}

func (s *syncService) Audit(ctx context.Context, userID string, withRemote bool) (*domain.AuditReport, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	report, err := s.auditor.Audit(ctx, userID, withRemote)
	if err != nil {
		return nil, fmt.Errorf("failed to audit %s: %w", userID, err)
	}
	if s.indexer != nil {
		if _, err := s.indexer.IndexAudit(ctx, report); err != nil {
			logger.WarnLog(ctx, "failed to index audit of %s: %v", userID, err)
		}
	}
	return report, nil
}

func (s *syncService) Cleanup(ctx context.Context, userID string, opts reconcile.CleanupOptions) (*domain.CleanupResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	return s.orch.Cleanup(ctx, userID, opts)
}

func (s *syncService) ListRuns(ctx context.Context, userID string, pageSize int, cursor string) (*googlecloud.RunPage, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	page, err := s.journal.ListRunsByUser(ctx, userID, pageSize, cursor)
	if errors.Is(err, googlecloud.ErrInvalidCursor) {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	return page, err
}
