// Package remotetest provides an in-memory remote.Service for tests.
package remotetest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/remote"
	"google.golang.org/api/googleapi"
)

var _ remote.Service = (*FakeService)(nil)

// FakeService is a paginating in-memory task service with call counters
// and error injection.
type FakeService struct {
	mu       sync.Mutex
	lists    []domain.RemoteTaskList
	tasks    map[string][]*domain.RemoteTask
	seq      int
	calls    map[string]int
	failures map[string][]error
	now      time.Time
}

func NewFakeService() *FakeService {
	return &FakeService{
		tasks:    make(map[string][]*domain.RemoteTask),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// NotFound is the error the fake returns for unknown ids.
func NotFound() error {
	return &googleapi.Error{Code: http.StatusNotFound, Message: "Not Found"}
}

// RateLimited is a quota error as the real API reports it.
func RateLimited() error {
	return &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}
}

// Unauthorized is an expired-credential error.
func Unauthorized() error {
	return &googleapi.Error{Code: http.StatusUnauthorized, Message: "Invalid Credentials"}
}

// Unavailable is a transient server error.
func Unavailable() error {
	return &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "Backend Error"}
}

// AddList registers a task list.
func (f *FakeService) AddList(id, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, domain.RemoteTaskList{ID: id, Title: title, Updated: f.now})
	if f.tasks[id] == nil {
		f.tasks[id] = nil
	}
}

// AddTask seeds a task directly, bypassing counters. An empty id is assigned.
func (f *FakeService) AddTask(listID string, t domain.RemoteTask) domain.RemoteTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = f.nextID()
	}
	if t.Status == "" {
		t.Status = domain.RemoteNeedsAction
	}
	t.ListID = listID
	if t.Updated.IsZero() {
		t.Updated = f.tick()
	}
	f.tasks[listID] = append(f.tasks[listID], &t)
	return t
}

// RemoveTask deletes a task behind the engine's back.
func (f *FakeService) RemoveTask(listID, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remove(listID, taskID)
}

// Task returns a copy of a stored task.
func (f *FakeService) Task(listID, taskID string) (domain.RemoteTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t := f.find(listID, taskID); t != nil {
		return *t, true
	}
	return domain.RemoteTask{}, false
}

// Tasks returns copies of every task in listID in list order.
func (f *FakeService) Tasks(listID string) []domain.RemoteTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RemoteTask, 0, len(f.tasks[listID]))
	for _, t := range f.tasks[listID] {
		out = append(out, *t)
	}
	return out
}

// FailNext queues errors returned by the next calls of op, one per call.
func (f *FakeService) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// CallCount returns how many times op was invoked.
func (f *FakeService) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// MutationCount is the number of insert, patch, delete and move calls.
func (f *FakeService) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[remote.OpInsertTask] + f.calls[remote.OpPatchTask] + f.calls[remote.OpDeleteTask] + f.calls[remote.OpMoveTask]
}

// ResetCalls zeroes every counter.
func (f *FakeService) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *FakeService) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		err := q[0]
		f.failures[op] = q[1:]
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return nil
}

func (f *FakeService) ListTaskLists(ctx context.Context, pageToken string, pageSize int) (*remote.TaskListPage, error) {
	if err := f.enter(remote.OpListTaskLists); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	start, end, next, err := window(pageToken, pageSize, len(f.lists))
	if err != nil {
		return nil, err
	}
	return &remote.TaskListPage{
		Items:         append([]domain.RemoteTaskList(nil), f.lists[start:end]...),
		NextPageToken: next,
	}, nil
}

func (f *FakeService) ListTasks(ctx context.Context, listID, pageToken string, pageSize int) (*remote.TaskPage, error) {
	if err := f.enter(remote.OpListTasks); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.tasks[listID]
	if !ok {
		return nil, NotFound()
	}
	start, end, next, err := window(pageToken, pageSize, len(items))
	if err != nil {
		return nil, err
	}
	page := &remote.TaskPage{NextPageToken: next}
	for _, t := range items[start:end] {
		page.Items = append(page.Items, *t)
	}
	return page, nil
}

func (f *FakeService) InsertTask(ctx context.Context, listID, parentID string, task domain.RemoteTask) (*domain.RemoteTask, error) {
	if err := f.enter(remote.OpInsertTask); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[listID]; !ok {
		return nil, NotFound()
	}
	if parentID != "" && f.find(listID, parentID) == nil {
		return nil, NotFound()
	}
	task.ID = f.nextID()
	task.ListID = listID
	task.Parent = parentID
	task.Updated = f.tick()
	if task.Status == "" {
		task.Status = domain.RemoteNeedsAction
	}
	stored := task
	f.tasks[listID] = append(f.tasks[listID], &stored)
	return &task, nil
}

func (f *FakeService) PatchTask(ctx context.Context, listID string, task domain.RemoteTask) (*domain.RemoteTask, error) {
	if err := f.enter(remote.OpPatchTask); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.find(listID, task.ID)
	if t == nil {
		return nil, NotFound()
	}
	t.Title = task.Title
	t.Notes = task.Notes
	t.Status = task.Status
	t.Due = task.Due
	t.Updated = f.tick()
	out := *t
	return &out, nil
}

func (f *FakeService) DeleteTask(ctx context.Context, listID, taskID string) error {
	if err := f.enter(remote.OpDeleteTask); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(listID, taskID) == nil {
		return NotFound()
	}
	f.remove(listID, taskID)
	return nil
}

func (f *FakeService) MoveTask(ctx context.Context, listID, taskID, parentID string) (*domain.RemoteTask, error) {
	if err := f.enter(remote.OpMoveTask); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.find(listID, taskID)
	if t == nil || (parentID != "" && f.find(listID, parentID) == nil) {
		return nil, NotFound()
	}
	if parentID != "" {
		if parent := f.find(listID, parentID); parent.Parent != "" {
			return nil, &googleapi.Error{Code: http.StatusBadRequest, Message: "Invalid parent"}
		}
	}
	t.Parent = parentID
	t.Updated = f.tick()
	out := *t
	return &out, nil
}

func (f *FakeService) find(listID, taskID string) *domain.RemoteTask {
	for _, t := range f.tasks[listID] {
		if t.ID == taskID {
			return t
		}
	}
	return nil
}

// remove drops a task and its children, like the real service.
func (f *FakeService) remove(listID, taskID string) {
	kept := f.tasks[listID][:0]
	for _, t := range f.tasks[listID] {
		if t.ID == taskID || t.Parent == taskID {
			continue
		}
		kept = append(kept, t)
	}
	f.tasks[listID] = kept
}

func (f *FakeService) nextID() string {
	f.seq++
	return fmt.Sprintf("r%04d", f.seq)
}

func (f *FakeService) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func window(token string, size, total int) (start, end int, next string, err error) {
	if size <= 0 {
		size = 100
	}
	if token != "" {
		start, err = strconv.Atoi(token)
		if err != nil || start < 0 || start > total {
			return 0, 0, "", &googleapi.Error{Code: http.StatusBadRequest, Message: "Invalid page token"}
		}
	}
	end = start + size
	if end > total {
		end = total
	}
	if end < total {
		next = strconv.Itoa(end)
	}
	return start, end, next, nil
}
