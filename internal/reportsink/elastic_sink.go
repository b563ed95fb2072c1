package reportsink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/olivere/elastic/v7"
)

var _ domain.RunObserver = (*ElasticSink)(nil)

// runDocument is the indexed form of a finished run.
type runDocument struct {
	*domain.RunMetrics
	DurationMS int64 `json:"duration_ms"`
	Mutations  int   `json:"mutations"`
}

// auditDocument is the indexed form of an audit report.
type auditDocument struct {
	*domain.AuditReport
	Clean bool `json:"clean"`
}

// ElasticSink indexes run metrics and audit reports into Elasticsearch.
type ElasticSink struct {
	client *elastic.Client
	prefix string
}

// Option customizes the underlying elastic client.
type Option = elastic.ClientOptionFunc

// NewElasticSink connects to url. Sniffing and health checks are off so a
// single node behind a proxy works.
func NewElasticSink(url, prefix string, opts ...Option) (*ElasticSink, error) {
	base := []elastic.ClientOptionFunc{
		elastic.SetURL(url),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
		elastic.SetHttpClient(&http.Client{Timeout: 10 * time.Second}),
	}
	client, err := elastic.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create elastic client: %w", err)
	}
	return &ElasticSink{client: client, prefix: prefix}, nil
}

func (s *ElasticSink) RunsIndex() string   { return s.prefix + "-runs" }
func (s *ElasticSink) AuditsIndex() string { return s.prefix + "-audits" }

// RunFinished indexes m under its run id, so a retried notification overwrites.
func (s *ElasticSink) RunFinished(ctx context.Context, m *domain.RunMetrics) error {
	doc := runDocument{
		RunMetrics: m,
		DurationMS: m.Duration().Milliseconds(),
		Mutations:  m.Mutations(),
	}
	_, err := s.client.Index().
		Index(s.RunsIndex()).
		Id(m.RunID).
		BodyJson(doc).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("index run %s: %w", m.RunID, err)
	}
	logger.DebugLog(ctx, "indexed run %s into %s", m.RunID, s.RunsIndex())
	return nil
}

// IndexAudit stores an audit report and returns the document id.
func (s *ElasticSink) IndexAudit(ctx context.Context, r *domain.AuditReport) (string, error) {
	id := uuid.NewString()
	_, err := s.client.Index().
		Index(s.AuditsIndex()).
		Id(id).
		BodyJson(auditDocument{AuditReport: r, Clean: r.Clean()}).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("index audit of %s: %w", r.UserID, err)
	}
	return id, nil
}

// Stop releases the client's background resources.
func (s *ElasticSink) Stop() {
	s.client.Stop()
}
