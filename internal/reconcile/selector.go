package reconcile

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/locvowork/task_reconciler/internal/domain"
)

// Candidate is one member of a duplicate cluster as seen by the selector.
type Candidate struct {
	Ref       domain.RecordRef
	Title     string
	Completed bool
	Link      domain.SyncLink
}

// Select picks the surviving record of a cluster. Preference order: has a
// remote id, latest sync time, longer title, first seen. Discards keep
// their original order.
func Select(cluster []Candidate) (keep Candidate, discard []Candidate) {
	if len(cluster) == 0 {
		return Candidate{}, nil
	}
	order := make([]int, len(cluster))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return better(cluster[order[a]], cluster[order[b]])
	})

	winner := order[0]
	for i, c := range cluster {
		if i != winner {
			discard = append(discard, c)
		}
	}
	return cluster[winner], discard
}

func better(a, b Candidate) bool {
	if a.Link.Linked() != b.Link.Linked() {
		return a.Link.Linked()
	}
	at, bt := a.Link.SyncedAt(), b.Link.SyncedAt()
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return utf8.RuneCountInString(a.Title) > utf8.RuneCountInString(b.Title)
}

// Merged holds the field values the survivor takes from its whole cluster.
type Merged struct {
	Title      string
	Completed  bool
	LastSyncAt *time.Time
}

// Merge computes the merged fields: completion is OR-ed, the title is the
// longest in the cluster (the survivor's on a tie, else first seen), and the
// sync time is the latest one.
func Merge(keep Candidate, cluster []Candidate) Merged {
	m := Merged{Title: keep.Title}
	longest := utf8.RuneCountInString(keep.Title)
	for _, c := range cluster {
		m.Completed = m.Completed || c.Completed
		if n := utf8.RuneCountInString(c.Title); n > longest {
			longest = n
			m.Title = c.Title
		}
		if c.Link.LastSyncAt != nil && (m.LastSyncAt == nil || c.Link.LastSyncAt.After(*m.LastSyncAt)) {
			at := *c.Link.LastSyncAt
			m.LastSyncAt = &at
		}
	}
	return m
}
