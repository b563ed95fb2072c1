package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"
)

// TokenSourceProvider yields per-user OAuth token sources.
type TokenSourceProvider interface {
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
}

// GoogleTasks adapts the Google Tasks API to Service.
type GoogleTasks struct {
	svc *tasks.Service
}

// NewGoogleTasks wraps an already configured tasks.Service.
func NewGoogleTasks(svc *tasks.Service) *GoogleTasks {
	return &GoogleTasks{svc: svc}
}

// NewGoogleDialer returns a Dialer that builds a fresh API client per call.
// Extra client options are appended after the user's token source.
func NewGoogleDialer(tokens TokenSourceProvider, extra ...option.ClientOption) Dialer {
	return func(ctx context.Context, userID string) (Service, error) {
		ts, err := tokens.TokenSource(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("token source for %s: %w", userID, err)
		}
		opts := append([]option.ClientOption{option.WithTokenSource(ts)}, extra...)
		svc, err := tasks.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create tasks service: %w", err)
		}
		return NewGoogleTasks(svc), nil
	}
}

func (g *GoogleTasks) ListTaskLists(ctx context.Context, pageToken string, pageSize int) (*TaskListPage, error) {
	call := g.svc.Tasklists.List().MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	page := &TaskListPage{NextPageToken: resp.NextPageToken}
	for _, l := range resp.Items {
		page.Items = append(page.Items, domain.RemoteTaskList{
			ID:      l.Id,
			Title:   l.Title,
			Updated: parseTime(l.Updated),
		})
	}
	return page, nil
}

func (g *GoogleTasks) ListTasks(ctx context.Context, listID, pageToken string, pageSize int) (*TaskPage, error) {
	call := g.svc.Tasks.List(listID).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	page := &TaskPage{NextPageToken: resp.NextPageToken}
	for _, t := range resp.Items {
		page.Items = append(page.Items, fromAPI(listID, t))
	}
	return page, nil
}

func (g *GoogleTasks) InsertTask(ctx context.Context, listID, parentID string, task domain.RemoteTask) (*domain.RemoteTask, error) {
	call := g.svc.Tasks.Insert(listID, toAPI(task))
	if parentID != "" {
		call = call.Parent(parentID)
	}
	created, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := fromAPI(listID, created)
	return &out, nil
}

func (g *GoogleTasks) PatchTask(ctx context.Context, listID string, task domain.RemoteTask) (*domain.RemoteTask, error) {
	body := toAPI(task)
	body.Id = task.ID
	body.ForceSendFields = []string{"Title", "Notes", "Status"}
	if task.Status != domain.RemoteCompleted {
		body.NullFields = append(body.NullFields, "Completed")
	}
	if task.Due == nil {
		body.NullFields = append(body.NullFields, "Due")
	}
	patched, err := g.svc.Tasks.Patch(listID, task.ID, body).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := fromAPI(listID, patched)
	return &out, nil
}

func (g *GoogleTasks) DeleteTask(ctx context.Context, listID, taskID string) error {
	return g.svc.Tasks.Delete(listID, taskID).Context(ctx).Do()
}

func (g *GoogleTasks) MoveTask(ctx context.Context, listID, taskID, parentID string) (*domain.RemoteTask, error) {
	call := g.svc.Tasks.Move(listID, taskID)
	if parentID != "" {
		call = call.Parent(parentID)
	}
	moved, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := fromAPI(listID, moved)
	return &out, nil
}

func toAPI(t domain.RemoteTask) *tasks.Task {
	out := &tasks.Task{
		Title:  t.Title,
		Notes:  t.Notes,
		Status: string(t.Status),
	}
	if out.Status == "" {
		out.Status = string(domain.RemoteNeedsAction)
	}
	if t.Due != nil {
		// The API stores the date only; time of day is discarded.
		d := t.Due.UTC()
		out.Due = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	return out
}

func fromAPI(listID string, t *tasks.Task) domain.RemoteTask {
	out := domain.RemoteTask{
		ID:       t.Id,
		ListID:   listID,
		Title:    t.Title,
		Notes:    t.Notes,
		Status:   domain.RemoteStatus(t.Status),
		Parent:   t.Parent,
		Position: t.Position,
		Updated:  parseTime(t.Updated),
		Deleted:  t.Deleted,
		Hidden:   t.Hidden,
	}
	if out.Status == "" {
		out.Status = domain.RemoteNeedsAction
	}
	if t.Due != "" {
		if due := parseTime(t.Due); !due.IsZero() {
			out.Due = &due
		}
	}
	return out
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
