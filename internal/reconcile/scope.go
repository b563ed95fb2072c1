package reconcile

import (
	"sort"
	"strings"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
)

// scope answers which remote list a local record belongs to and how its
// fields render on the remote side.
type scope struct {
	policy        config.SyncPolicy
	projects      map[string]domain.Project
	projectByList map[string]domain.Project
	// lists is nil when the remote listing is unknown (offline cleanup).
	lists       map[string]domain.RemoteTaskList
	listOrder   []string
	defaultList string
}

func newScope(policy config.SyncPolicy, projects []domain.Project, lists []domain.RemoteTaskList, known bool) *scope {
	s := &scope{
		policy:        policy,
		projects:      make(map[string]domain.Project, len(projects)),
		projectByList: make(map[string]domain.Project),
	}
	for _, p := range projects {
		s.projects[p.ID] = p
		if p.RemoteListID != "" {
			if _, taken := s.projectByList[p.RemoteListID]; !taken {
				s.projectByList[p.RemoteListID] = p
			}
		}
	}
	if known {
		s.lists = make(map[string]domain.RemoteTaskList, len(lists))
		for _, l := range lists {
			s.lists[l.ID] = l
			s.listOrder = append(s.listOrder, l.ID)
		}
	}

	switch {
	case policy.DefaultListID != "" && s.hasList(policy.DefaultListID):
		s.defaultList = policy.DefaultListID
	case len(s.listOrder) > 0:
		s.defaultList = s.listOrder[0]
	case !known:
		s.defaultList = policy.DefaultListID
	}
	return s
}

func (s *scope) hasList(id string) bool {
	if id == "" {
		return false
	}
	if s.lists == nil {
		return true
	}
	_, ok := s.lists[id]
	return ok
}

// listFor resolves the list of a top-level task: its link, then its
// project's list, then the default list.
func (s *scope) listFor(t *domain.Task) string {
	if s.hasList(t.Link.RemoteListID) {
		return t.Link.RemoteListID
	}
	if p, ok := s.projects[t.ProjectID]; ok && s.hasList(p.RemoteListID) {
		return p.RemoteListID
	}
	return s.defaultList
}

// mappedLists are the remote lists a user's records can live in, in remote order.
func (s *scope) mappedLists(tasks []domain.Task) []string {
	want := make(map[string]bool)
	if s.defaultList != "" {
		want[s.defaultList] = true
	}
	for _, p := range s.projects {
		if s.hasList(p.RemoteListID) {
			want[p.RemoteListID] = true
		}
	}
	for i := range tasks {
		if s.hasList(tasks[i].Link.RemoteListID) {
			want[tasks[i].Link.RemoteListID] = true
		}
	}

	var out []string
	for _, id := range s.listOrder {
		if want[id] {
			out = append(out, id)
			delete(want, id)
		}
	}
	rest := make([]string, 0, len(want))
	for id := range want {
		rest = append(rest, id)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// projectForList returns the project id mapped to listID, or "".
func (s *scope) projectForList(listID string) string {
	return s.projectByList[listID].ID
}

func (s *scope) titlePrefix(projectID string) string {
	if !s.policy.PrefixProjectInTitle {
		return ""
	}
	p, ok := s.projects[projectID]
	if !ok || p.Name == "" {
		return ""
	}
	return "[" + p.Name + "] "
}

// remoteTitle is the title a top-level task is pushed with.
func (s *scope) remoteTitle(t *domain.Task) string {
	prefix := s.titlePrefix(t.ProjectID)
	if prefix == "" || strings.HasPrefix(t.Title, prefix) {
		return t.Title
	}
	return prefix + t.Title
}

// localTitle maps a remote title back, removing only the project prefix.
func (s *scope) localTitle(projectID, remoteTitle string) string {
	if prefix := s.titlePrefix(projectID); prefix != "" {
		return strings.TrimPrefix(remoteTitle, prefix)
	}
	return remoteTitle
}

// desiredTask is the remote state a top-level task should have.
func (s *scope) desiredTask(t *domain.Task, listID string) domain.RemoteTask {
	return domain.RemoteTask{
		ID:     t.Link.RemoteTaskID,
		ListID: listID,
		Title:  s.remoteTitle(t),
		Notes:  RenderNotes(t.Description, t.Subtasks, s.policy.RenderSubtaskSummary),
		Status: domain.StatusFor(t.Completed),
		Due:    t.Due,
	}
}

// desiredSubtask is the remote state of a sub-task. Notes and due are not
// modeled locally, so the known remote values are carried over.
func desiredSubtask(sub *domain.Subtask, listID string, known *domain.RemoteTask) domain.RemoteTask {
	d := domain.RemoteTask{
		ID:     sub.Link.RemoteTaskID,
		ListID: listID,
		Title:  sub.Title,
		Status: domain.StatusFor(sub.Completed),
	}
	if known != nil {
		d.ID = known.ID
		d.Notes = known.Notes
		d.Due = known.Due
	}
	return d
}
