package googlecloud

import (
	"encoding/json"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
)

// SyncRun is the journal entry of one finished reconciliation run.
// Key: SyncRun/<run id>.
type SyncRun struct {
	ID           string    `datastore:"-" json:"id"`
	UserID       string    `datastore:"user_id" json:"user_id"`
	State        string    `datastore:"state" json:"state"`
	FailedPhase  string    `datastore:"failed_phase" json:"failed_phase,omitempty"`
	Error        string    `datastore:"error,noindex" json:"error,omitempty"`
	ErrorKind    string    `datastore:"error_kind" json:"error_kind,omitempty"`
	NeedsReauth  bool      `datastore:"needs_reauth" json:"needs_reauth"`
	StartedAt    time.Time `datastore:"started_at" json:"started_at"`
	FinishedAt   time.Time `datastore:"finished_at" json:"finished_at"`
	Succeeded    int       `datastore:"succeeded" json:"succeeded"`
	Failed       int       `datastore:"failed" json:"failed"`
	RemoteCalls  int64     `datastore:"remote_calls" json:"remote_calls"`
	RecordErrors string    `datastore:"record_errors,noindex" json:"-"` // JSON-encoded []domain.RecordError
}

// SyncPhase holds the counters of one phase. Key: SyncRun/<run id>/SyncPhase/<phase>.
type SyncPhase struct {
	RunID   string `datastore:"-" json:"run_id"`
	Phase   string `datastore:"-" json:"phase"`
	Order   int    `datastore:"order" json:"order"`
	Created int    `datastore:"created" json:"created"`
	Updated int    `datastore:"updated" json:"updated"`
	Deleted int    `datastore:"deleted" json:"deleted"`
	Skipped int    `datastore:"skipped" json:"skipped"`
	Errors  int    `datastore:"errors" json:"errors"`
	Cleared int    `datastore:"cleared" json:"cleared"`
}

var journalPhases = []domain.Phase{
	domain.PhasePushingLocal,
	domain.PhasePullingRemote,
	domain.PhaseDeduplicating,
	domain.PhaseReclassifying,
}

// NewSyncRun flattens run metrics into a run entity and its phase children.
func NewSyncRun(m *domain.RunMetrics) (*SyncRun, []SyncPhase, error) {
	run := &SyncRun{
		ID:          m.RunID,
		UserID:      m.UserID,
		State:       string(m.State),
		FailedPhase: string(m.FailedPhase),
		Error:       m.Error,
		ErrorKind:   m.ErrorKind,
		NeedsReauth: m.NeedsReauth,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		Succeeded:   m.Succeeded,
		Failed:      m.Failed,
		RemoteCalls: m.RemoteCalls,
	}
	if len(m.RecordErrors) > 0 {
		raw, err := json.Marshal(m.RecordErrors)
		if err != nil {
			return nil, nil, err
		}
		run.RecordErrors = string(raw)
	}

	phases := make([]SyncPhase, 0, len(journalPhases))
	for i, p := range journalPhases {
		c := m.Counters(p)
		phases = append(phases, SyncPhase{
			RunID:   m.RunID,
			Phase:   string(p),
			Order:   i,
			Created: c.Created,
			Updated: c.Updated,
			Deleted: c.Deleted,
			Skipped: c.Skipped,
			Errors:  c.Errors,
			Cleared: c.Cleared,
		})
	}
	return run, phases, nil
}

// Metrics rebuilds the run metrics from a run entity and its phases.
func (r *SyncRun) Metrics(phases []SyncPhase) (*domain.RunMetrics, error) {
	m := &domain.RunMetrics{
		RunID:       r.ID,
		UserID:      r.UserID,
		State:       domain.Phase(r.State),
		FailedPhase: domain.Phase(r.FailedPhase),
		Error:       r.Error,
		ErrorKind:   r.ErrorKind,
		NeedsReauth: r.NeedsReauth,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		RemoteCalls: r.RemoteCalls,
	}
	if r.RecordErrors != "" {
		if err := json.Unmarshal([]byte(r.RecordErrors), &m.RecordErrors); err != nil {
			return nil, err
		}
	}
	for _, p := range phases {
		if c := m.Counters(domain.Phase(p.Phase)); c != nil {
			*c = domain.PhaseCounters{
				Created: p.Created,
				Updated: p.Updated,
				Deleted: p.Deleted,
				Skipped: p.Skipped,
				Errors:  p.Errors,
				Cleared: p.Cleared,
			}
		}
	}
	return m, nil
}
