package reconcile

import (
	"github.com/locvowork/task_reconciler/internal/domain"
)

// snapshot is the last known remote state for one run. Pushes update it so
// later phases see their own writes.
type snapshot struct {
	lists     []domain.RemoteTaskList
	listIDs   map[string]bool
	fetched   map[string]bool
	order     map[string][]string
	byID      map[string]*domain.RemoteTask
	resolvers map[string]*Resolver
}

func newSnapshot(lists []domain.RemoteTaskList, byList map[string][]domain.RemoteTask) *snapshot {
	s := &snapshot{
		lists:     lists,
		listIDs:   make(map[string]bool, len(lists)),
		fetched:   make(map[string]bool, len(byList)),
		order:     make(map[string][]string),
		byID:      make(map[string]*domain.RemoteTask),
		resolvers: make(map[string]*Resolver),
	}
	for _, l := range lists {
		s.listIDs[l.ID] = true
	}
	for listID, items := range byList {
		s.fetched[listID] = true
		for i := range items {
			s.put(items[i])
		}
	}
	return s
}

// emptySnapshot stands in when the remote side is not consulted.
func emptySnapshot() *snapshot {
	return newSnapshot(nil, nil)
}

func (s *snapshot) get(id string) *domain.RemoteTask {
	if id == "" {
		return nil
	}
	return s.byID[id]
}

func (s *snapshot) resolver(listID string) *Resolver {
	r, ok := s.resolvers[listID]
	if !ok {
		r = NewResolver(nil)
		s.resolvers[listID] = r
	}
	return r
}

// put inserts or replaces a remote task.
func (s *snapshot) put(t domain.RemoteTask) {
	if t.Deleted {
		s.remove(t.ID)
		return
	}
	if old, ok := s.byID[t.ID]; ok {
		s.resolver(old.ListID).Remove(old.ID)
		*old = t
		s.resolver(t.ListID).Add(old)
		return
	}
	stored := t
	s.byID[t.ID] = &stored
	s.order[t.ListID] = append(s.order[t.ListID], t.ID)
	s.resolver(t.ListID).Add(&stored)
}

// remove drops a task and, like the remote service, its children.
func (s *snapshot) remove(id string) {
	t, ok := s.byID[id]
	if !ok {
		return
	}
	for _, childID := range s.order[t.ListID] {
		if c := s.byID[childID]; c != nil && c.Parent == id {
			s.resolver(c.ListID).Remove(childID)
			delete(s.byID, childID)
		}
	}
	s.resolver(t.ListID).Remove(id)
	delete(s.byID, id)
}

// tasks returns the live tasks of listID in listing order.
func (s *snapshot) tasks(listID string) []*domain.RemoteTask {
	var out []*domain.RemoteTask
	for _, id := range s.order[listID] {
		if t := s.byID[id]; t != nil && t.ListID == listID {
			out = append(out, t)
		}
	}
	return out
}

// absent reports whether link points at a task that a complete listing did
// not return. listGone is set when the list itself no longer exists.
func (s *snapshot) absent(link domain.SyncLink) (absent, listGone bool) {
	if link.RemoteTaskID == "" || s.byID[link.RemoteTaskID] != nil {
		return false, false
	}
	if link.RemoteListID == "" {
		return true, false
	}
	if !s.listIDs[link.RemoteListID] {
		return true, true
	}
	return s.fetched[link.RemoteListID], false
}
