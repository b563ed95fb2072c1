package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/internal/remote"
	"github.com/locvowork/task_reconciler/pkg/titlenorm"
)

// Auditor reports duplicates, title collisions and local/remote
// disagreements without changing either side.
type Auditor struct {
	store    domain.TaskStore
	dial     remote.Dialer
	policy   config.SyncPolicy
	execOpts remote.Options
	now      func() time.Time
}

// NewAuditor creates an Auditor. dial may be nil, in which case remote
// checks are reported as unavailable.
func NewAuditor(store domain.TaskStore, dial remote.Dialer, policy config.SyncPolicy) *Auditor {
	return &Auditor{
		store:    store,
		dial:     dial,
		policy:   policy,
		execOpts: remote.OptionsFromPolicy(policy),
		now:      time.Now,
	}
}

// Audit builds the consistency report for userID. Data problems are findings
// in the report; only failing to read the local store is an error. Remote
// failures become warnings.
func (a *Auditor) Audit(ctx context.Context, userID string, withRemote bool) (*domain.AuditReport, error) {
	ctx = logger.WithFields(ctx, map[string]interface{}{"user_id": userID})

	projects, err := a.store.ListProjects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	stored, err := a.store.ListTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	tasks := make([]*domain.Task, len(stored))
	for i := range stored {
		tasks[i] = &stored[i]
	}

	report := &domain.AuditReport{
		UserID:            userID,
		GeneratedAt:       a.now().UTC(),
		TaskCount:         len(tasks),
		Duplicates:        []domain.DuplicateCluster{},
		SubtaskDuplicates: []domain.DuplicateCluster{},
		Collisions:        []domain.TitleCollision{},
		ParentMismatches:  []domain.ParentMismatch{},
		DanglingLinks:     []domain.DanglingLink{},
		RemoteDuplicates:  []domain.RemoteDuplicate{},
		Warnings:          []string{},
	}
	for _, t := range tasks {
		report.SubtaskCount += len(t.Subtasks)
	}

	var snap *snapshot
	sc := newScope(a.policy, projects, nil, false)
	if withRemote {
		snap, sc, err = a.remoteState(ctx, userID, projects, stored)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("remote checks skipped: %v", err))
			logger.WarnLog(ctx, "audit remote checks skipped: %v", err)
			snap = nil
			sc = newScope(a.policy, projects, nil, false)
		}
	}

	report.Duplicates = auditDuplicates(sc, tasks)
	for _, t := range tasks {
		report.SubtaskDuplicates = append(report.SubtaskDuplicates, auditSubtaskDuplicates(t)...)
	}
	report.Collisions = auditCollisions(tasks)

	if snap != nil {
		report.RemoteChecked = true
		auditRemote(report, snap, tasks)
	} else {
		// An imported orphan remembers the remote parent it was found under.
		for _, t := range tasks {
			if t.Link.RemoteParentID != "" {
				report.ParentMismatches = append(report.ParentMismatches, domain.ParentMismatch{
					Ref:          domain.TopLevel(t.ID),
					Title:        t.Title,
					RemoteTaskID: t.Link.RemoteTaskID,
					RemoteParent: t.Link.RemoteParentID,
				})
			}
		}
	}

	logger.InfoLog(ctx, "audit done: %d duplicate clusters, %d sub-task clusters, %d collisions, %d parent mismatches, %d dangling links",
		len(report.Duplicates), len(report.SubtaskDuplicates), len(report.Collisions), len(report.ParentMismatches), len(report.DanglingLinks))
	return report, nil
}

func (a *Auditor) remoteState(ctx context.Context, userID string, projects []domain.Project, tasks []domain.Task) (*snapshot, *scope, error) {
	if a.dial == nil {
		return nil, nil, fmt.Errorf("remote service not configured")
	}
	svc, err := a.dial(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	exec := remote.NewExecutor(svc, a.execOpts)
	lists, err := exec.ListTaskLists(ctx)
	if err != nil {
		return nil, nil, err
	}
	sc := newScope(a.policy, projects, lists, true)
	byList, err := exec.ListTasksByList(ctx, sc.mappedLists(tasks))
	if err != nil {
		return nil, nil, err
	}
	return newSnapshot(lists, byList), sc, nil
}

func member(ref domain.RecordRef, title string, completed bool, link domain.SyncLink) domain.ClusterMember {
	return domain.ClusterMember{Ref: ref, Title: title, Completed: completed, RemoteTaskID: link.RemoteTaskID}
}

func auditDuplicates(sc *scope, tasks []*domain.Task) []domain.DuplicateCluster {
	clusters := Duplicates(Group(tasks, func(t *domain.Task) string {
		if titlenorm.Normalize(t.Title) == "" {
			return ""
		}
		return titlenorm.ScopedKey(sc.listFor(t), t.Title)
	}))
	out := make([]domain.DuplicateCluster, 0, len(clusters))
	for _, cl := range clusters {
		dc := domain.DuplicateCluster{
			Scope: "list:" + sc.listFor(cl.Members[0]),
			Key:   titlenorm.Normalize(cl.Members[0].Title),
		}
		for _, t := range cl.Members {
			dc.Members = append(dc.Members, member(domain.TopLevel(t.ID), t.Title, t.Completed, t.Link))
		}
		out = append(out, dc)
	}
	return out
}

func auditSubtaskDuplicates(t *domain.Task) []domain.DuplicateCluster {
	var out []domain.DuplicateCluster
	for _, cl := range Duplicates(subtaskClusters(t)) {
		dc := domain.DuplicateCluster{
			Scope: "parent:" + t.ID,
			Key:   titlenorm.Normalize(cl.Members[0].Title),
		}
		for _, s := range cl.Members {
			dc.Members = append(dc.Members, member(domain.SubtaskOf(t.ID, s.ID), s.Title, s.Completed, s.Link))
		}
		out = append(out, dc)
	}
	return out
}

// auditCollisions lists every top-level task whose title is a sub-task
// title of another task in the same project.
func auditCollisions(tasks []*domain.Task) []domain.TitleCollision {
	out := []domain.TitleCollision{}
	for _, group := range Group(tasks, func(t *domain.Task) string { return "project:" + t.ProjectID }) {
		idx := buildAnchorIndex(group.Members)
		for _, t := range group.Members {
			key := titlenorm.Normalize(t.Title)
			if key == "" {
				continue
			}
			var anchors []domain.RecordRef
			for _, a := range idx[key] {
				if a.ID != t.ID {
					anchors = append(anchors, domain.TopLevel(a.ID))
				}
			}
			if len(anchors) == 0 {
				continue
			}
			out = append(out, domain.TitleCollision{
				ProjectID: t.ProjectID,
				Key:       key,
				Orphan:    domain.TopLevel(t.ID),
				Title:     t.Title,
				Anchors:   anchors,
			})
		}
	}
	return out
}

func auditRemote(report *domain.AuditReport, snap *snapshot, tasks []*domain.Task) {
	dangling := func(ref domain.RecordRef, title string, link domain.SyncLink) bool {
		if absent, _ := snap.absent(link); absent {
			report.DanglingLinks = append(report.DanglingLinks, domain.DanglingLink{
				Ref:          ref,
				Title:        title,
				RemoteTaskID: link.RemoteTaskID,
				RemoteListID: link.RemoteListID,
			})
			return true
		}
		return false
	}

	for _, t := range tasks {
		ref := domain.TopLevel(t.ID)
		if t.Link.Linked() && !dangling(ref, t.Title, t.Link) {
			if rt := snap.get(t.Link.RemoteTaskID); rt != nil && rt.Parent != "" {
				report.ParentMismatches = append(report.ParentMismatches, domain.ParentMismatch{
					Ref:          ref,
					Title:        t.Title,
					RemoteTaskID: rt.ID,
					RemoteParent: rt.Parent,
				})
			}
		}
		for _, s := range t.Subtasks {
			sref := domain.SubtaskOf(t.ID, s.ID)
			if !s.Link.Linked() || dangling(sref, s.Title, s.Link) {
				continue
			}
			rt := snap.get(s.Link.RemoteTaskID)
			if rt != nil && t.Link.Linked() && rt.Parent != t.Link.RemoteTaskID {
				report.ParentMismatches = append(report.ParentMismatches, domain.ParentMismatch{
					Ref:          sref,
					Title:        s.Title,
					RemoteTaskID: rt.ID,
					LocalParent:  t.Link.RemoteTaskID,
					RemoteParent: rt.Parent,
				})
			}
		}
	}

	for _, l := range snap.lists {
		listID := l.ID
		clusters := Duplicates(Group(snap.tasks(listID), func(rt *domain.RemoteTask) string {
			if titlenorm.Normalize(rt.Title) == "" {
				return ""
			}
			return titlenorm.ScopedKey(listID+"/"+rt.Parent, rt.Title)
		}))
		for _, cl := range clusters {
			rd := domain.RemoteDuplicate{
				ListID: listID,
				Parent: cl.Members[0].Parent,
				Key:    titlenorm.Normalize(cl.Members[0].Title),
			}
			for _, rt := range cl.Members {
				rd.TaskIDs = append(rd.TaskIDs, rt.ID)
			}
			report.RemoteDuplicates = append(report.RemoteDuplicates, rd)
		}
	}
}
