package reconcile

import (
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/pkg/titlenorm"
)

// MatchKind says how a local record was paired with a remote task.
type MatchKind string

const (
	MatchByID    MatchKind = "byId"
	MatchByTitle MatchKind = "byTitle"
	MatchNone    MatchKind = "none"
)

// Match is the outcome of identity resolution.
type Match struct {
	Remote *domain.RemoteTask
	Kind   MatchKind
}

// Resolver pairs local records with the remote tasks of one list. Id
// matches look at every task of the list; title matches only at tasks under
// the requested parent.
type Resolver struct {
	byID  map[string]*domain.RemoteTask
	byKey map[string][]*domain.RemoteTask
}

// NewResolver indexes candidates.
func NewResolver(candidates []*domain.RemoteTask) *Resolver {
	r := &Resolver{
		byID:  make(map[string]*domain.RemoteTask, len(candidates)),
		byKey: make(map[string][]*domain.RemoteTask, len(candidates)),
	}
	for _, c := range candidates {
		r.Add(c)
	}
	return r
}

// Add indexes one remote task.
func (r *Resolver) Add(t *domain.RemoteTask) {
	if t == nil || t.Deleted {
		return
	}
	r.byID[t.ID] = t
	if titlenorm.Normalize(t.Title) == "" {
		return
	}
	k := titlenorm.ScopedKey(t.Parent, t.Title)
	r.byKey[k] = append(r.byKey[k], t)
}

// Remove drops a remote task from the index.
func (r *Resolver) Remove(id string) {
	t, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	k := titlenorm.ScopedKey(t.Parent, t.Title)
	list := r.byKey[k]
	for i, c := range list {
		if c.ID == id {
			r.byKey[k] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.byKey[k]) == 0 {
		delete(r.byKey, k)
	}
}

// Resolve finds the remote counterpart of a record with the given link and
// title living under parent ("" for top-level). A stored id that resolves
// always wins over a title match. A title match may name a remote task that
// another record is already linked to; dedupe merges those records later in
// the same run.
func (r *Resolver) Resolve(link domain.SyncLink, parent, title string) Match {
	if link.RemoteTaskID != "" {
		if t, ok := r.byID[link.RemoteTaskID]; ok {
			return Match{Remote: t, Kind: MatchByID}
		}
	}
	if titlenorm.Normalize(title) == "" {
		return Match{Kind: MatchNone}
	}
	if cands := r.byKey[titlenorm.ScopedKey(parent, title)]; len(cands) > 0 {
		return Match{Remote: cands[0], Kind: MatchByTitle}
	}
	return Match{Kind: MatchNone}
}
