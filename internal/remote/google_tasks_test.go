package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

func newTestGoogleTasks(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*GoogleTasks, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			_ = json.Unmarshal(body, &rec.Body)
		}
		seen = append(seen, rec)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	svc, err := tasks.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return NewGoogleTasks(svc), &seen
}

func TestGoogleTasks_ListTasks(t *testing.T) {
	g, seen := newTestGoogleTasks(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"nextPageToken": "p2",
			"items": [
				{"id": "a", "title": "Errands", "status": "needsAction", "updated": "2024-03-01T10:00:00.000Z"},
				{"id": "b", "title": "Buy milk", "status": "completed", "parent": "a", "due": "2024-03-05T00:00:00.000Z"}
			]
		}`)
	})

	page, err := g.ListTasks(context.Background(), "L1", "p1", 100)
	require.NoError(t, err)
	assert.Equal(t, "p2", page.NextPageToken)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "L1", page.Items[0].ListID)
	assert.Equal(t, "a", page.Items[1].Parent)
	assert.True(t, page.Items[1].Completed())
	require.NotNil(t, page.Items[1].Due)
	assert.Equal(t, 5, page.Items[1].Due.Day())

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.True(t, strings.HasSuffix(req.Path, "/lists/L1/tasks"), req.Path)
	assert.Contains(t, req.Query, "pageToken=p1")
	assert.Contains(t, req.Query, "showHidden=true")
	assert.Contains(t, req.Query, "showCompleted=true")
}

func TestGoogleTasks_InsertWithParent(t *testing.T) {
	g, seen := newTestGoogleTasks(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "new", "title": "Buy milk", "status": "needsAction", "parent": "a"}`)
	})

	due := time.Date(2024, 3, 5, 15, 30, 0, 0, time.UTC)
	created, err := g.InsertTask(context.Background(), "L1", "a", domain.RemoteTask{Title: "Buy milk", Due: &due})
	require.NoError(t, err)
	assert.Equal(t, "new", created.ID)

	req := (*seen)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Contains(t, req.Query, "parent=a")
	assert.Equal(t, "2024-03-05T00:00:00Z", req.Body["due"])
	assert.Equal(t, "needsAction", req.Body["status"])
}

func TestGoogleTasks_PatchClearsCompletion(t *testing.T) {
	g, seen := newTestGoogleTasks(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "a", "title": "Errands", "status": "needsAction"}`)
	})

	_, err := g.PatchTask(context.Background(), "L1", domain.RemoteTask{ID: "a", Title: "Errands", Status: domain.RemoteNeedsAction})
	require.NoError(t, err)

	req := (*seen)[0]
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.True(t, strings.HasSuffix(req.Path, "/lists/L1/tasks/a"), req.Path)
	assert.Contains(t, req.Body, "completed")
	assert.Nil(t, req.Body["completed"])
	assert.Contains(t, req.Body, "notes", "empty notes are sent so remote notes get cleared")
	assert.Nil(t, req.Body["due"])
}

func TestGoogleTasks_ErrorsAreClassifiable(t *testing.T) {
	g, _ := newTestGoogleTasks(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": {"code": 429, "message": "Rate Limit Exceeded", "errors": [{"reason": "rateLimitExceeded"}]}}`)
	})

	err := g.DeleteTask(context.Background(), "L1", "a")
	require.Error(t, err)
	assert.Equal(t, domain.ErrQuotaExceeded, Classify(err))
}

func TestGoogleTasks_Move(t *testing.T) {
	g, seen := newTestGoogleTasks(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "b", "title": "Buy milk", "parent": "a"}`)
	})

	moved, err := g.MoveTask(context.Background(), "L1", "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", moved.Parent)
	assert.True(t, strings.HasSuffix((*seen)[0].Path, "/lists/L1/tasks/b/move"))
	assert.Contains(t, (*seen)[0].Query, "parent=a")
}
