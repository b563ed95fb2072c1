package reportsink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

func newFakeElastic(t *testing.T, status int) (*httptest.Server, func() []indexRequest) {
	var (
		mu   sync.Mutex
		reqs []indexRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		req := indexRequest{Method: r.Method, Path: r.URL.Path}
		if len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &req.Body))
		}
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception","reason":"bad"},"status":400}`))
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		_, _ = w.Write([]byte(`{"_index":"` + parts[0] + `","_id":"` + parts[len(parts)-1] + `","_version":1,"result":"created"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []indexRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]indexRequest(nil), reqs...)
	}
}

func TestElasticSink_RunFinished(t *testing.T) {
	srv, requests := newFakeElastic(t, http.StatusCreated)
	sink, err := NewElasticSink(srv.URL, "tr")
	require.NoError(t, err)
	defer sink.Stop()

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &domain.RunMetrics{
		RunID:      "run-1",
		UserID:     "u1",
		State:      domain.PhaseDone,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Push:       domain.PhaseCounters{Created: 2},
		Dedupe:     domain.PhaseCounters{Deleted: 1},
	}
	require.NoError(t, sink.RunFinished(context.Background(), m))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/tr-runs/_doc/run-1", reqs[0].Path)
	assert.Equal(t, "u1", reqs[0].Body["user_id"])
	assert.EqualValues(t, 1500, reqs[0].Body["duration_ms"])
	assert.EqualValues(t, 3, reqs[0].Body["mutations"])
}

func TestElasticSink_IndexAudit(t *testing.T) {
	srv, requests := newFakeElastic(t, http.StatusCreated)
	sink, err := NewElasticSink(srv.URL, "tr")
	require.NoError(t, err)
	defer sink.Stop()

	report := &domain.AuditReport{UserID: "u1", Warnings: []string{}}
	id, err := sink.IndexAudit(context.Background(), report)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/tr-audits/_doc/"+id, reqs[0].Path)
	assert.Equal(t, true, reqs[0].Body["clean"])
}

func TestElasticSink_ErrorIsReturned(t *testing.T) {
	srv, _ := newFakeElastic(t, http.StatusBadRequest)
	sink, err := NewElasticSink(srv.URL, "tr")
	require.NoError(t, err)
	defer sink.Stop()

	err = sink.RunFinished(context.Background(), &domain.RunMetrics{RunID: "run-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-2")
}
