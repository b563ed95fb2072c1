package domain

import "time"

// Phase is a state of the per-user reconciliation state machine.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePushingLocal  Phase = "pushing_local"
	PhasePullingRemote Phase = "pulling_remote"
	PhaseDeduplicating Phase = "deduplicating"
	PhaseReclassifying Phase = "reclassifying"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// PhaseCounters are the per-phase outcome counts.
type PhaseCounters struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
	Cleared int `json:"cleared"`
}

// Mutations is the number of writes counted in c.
func (c PhaseCounters) Mutations() int {
	return c.Created + c.Updated + c.Deleted + c.Cleared
}

// RecordError is the error trail of one record that failed during a run.
type RecordError struct {
	Ref      RecordRef `json:"ref"`
	Title    string    `json:"title"`
	Messages []string  `json:"messages"`
}

// RunMetrics is the payload reported for every finished run.
type RunMetrics struct {
	RunID       string    `json:"run_id"`
	UserID      string    `json:"user_id"`
	State       Phase     `json:"state"`
	FailedPhase Phase     `json:"failed_phase,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	NeedsReauth bool      `json:"needs_reauth"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Push       PhaseCounters `json:"push"`
	Pull       PhaseCounters `json:"pull"`
	Dedupe     PhaseCounters `json:"dedupe"`
	Reclassify PhaseCounters `json:"reclassify"`

	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	RecordErrors []RecordError `json:"record_errors,omitempty"`
	RemoteCalls  int64         `json:"remote_calls"`
}

// Counters returns the counters that belong to phase p, or nil.
func (m *RunMetrics) Counters(p Phase) *PhaseCounters {
	switch p {
	case PhasePushingLocal:
		return &m.Push
	case PhasePullingRemote:
		return &m.Pull
	case PhaseDeduplicating:
		return &m.Dedupe
	case PhaseReclassifying:
		return &m.Reclassify
	}
	return nil
}

// Mutations is the total number of writes across all phases.
func (m *RunMetrics) Mutations() int {
	return m.Push.Mutations() + m.Pull.Mutations() + m.Dedupe.Mutations() + m.Reclassify.Mutations()
}

// Duration is the wall time of the run.
func (m *RunMetrics) Duration() time.Duration {
	if m.FinishedAt.IsZero() {
		return 0
	}
	return m.FinishedAt.Sub(m.StartedAt)
}

// BatchResult is one user's outcome inside a multi-user batch.
type BatchResult struct {
	UserID  string      `json:"user_id"`
	Metrics *RunMetrics `json:"metrics,omitempty"`
	Error   string      `json:"error,omitempty"`
}
