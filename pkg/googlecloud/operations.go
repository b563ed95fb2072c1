package googlecloud

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/datastore"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"google.golang.org/api/iterator"
)

const (
	KindSyncRun   = "SyncRun"
	KindSyncPhase = "SyncPhase"

	defaultPageSize = 20
	maxPageSize     = 100
)

var _ domain.RunObserver = (*Journal)(nil)

// Journal persists finished runs to Datastore.
type Journal struct {
	client *Client
	retry  RetryConfig
}

// NewJournal creates a Journal on top of client.
func NewJournal(client *Client) *Journal {
	return &Journal{client: client, retry: DefaultRetryConfig()}
}

func runKey(runID string) *datastore.Key {
	return datastore.NameKey(KindSyncRun, runID, nil)
}

// RunFinished stores the run and its phase counters in one transaction.
func (j *Journal) RunFinished(ctx context.Context, m *domain.RunMetrics) error {
	if m.RunID == "" {
		return ErrInvalidKey
	}
	run, phases, err := NewSyncRun(m)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", m.RunID, err)
	}

	parent := runKey(run.ID)
	keys := make([]*datastore.Key, len(phases))
	for i, p := range phases {
		keys[i] = datastore.NameKey(KindSyncPhase, p.Phase, parent)
	}

	err = WithRetry(ctx, j.retry, func(ctx context.Context) error {
		_, err := j.client.ds.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
			if _, err := tx.Put(parent, run); err != nil {
				return err
			}
			_, err := tx.PutMulti(keys, phases)
			return err
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("journal run %s: %w", run.ID, err)
	}
	logger.DebugLog(ctx, "journaled run %s (%s)", run.ID, run.State)
	return nil
}

// GetRun loads one run with its phase counters.
func (j *Journal) GetRun(ctx context.Context, runID string) (*domain.RunMetrics, error) {
	key := runKey(runID)
	var run SyncRun
	if err := j.client.ds.Get(ctx, key, &run); err != nil {
		return nil, WrapDatastoreError(err)
	}
	run.ID = runID

	var phases []SyncPhase
	query := datastore.NewQuery(KindSyncPhase).Ancestor(key).Order("order")
	phaseKeys, err := j.client.ds.GetAll(ctx, query, &phases)
	if err != nil {
		return nil, err
	}
	for i, k := range phaseKeys {
		phases[i].RunID = runID
		phases[i].Phase = k.Name
	}
	return run.Metrics(phases)
}

// RunPage is one page of a user's journal, newest first.
type RunPage struct {
	Runs       []SyncRun `json:"runs"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// ListRunsByUser pages through a user's runs with Datastore cursors.
func (j *Journal) ListRunsByUser(ctx context.Context, userID string, pageSize int, cursorStr string) (*RunPage, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := datastore.NewQuery(KindSyncRun).
		Filter("user_id =", userID).
		Order("-started_at").
		Limit(pageSize + 1) // one extra tells whether another page exists

	if cursorStr != "" {
		cursor, err := datastore.DecodeCursor(cursorStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		query = query.Start(cursor)
	}

	page := &RunPage{Runs: []SyncRun{}}
	it := j.client.ds.Run(ctx, query)
	for len(page.Runs) < pageSize {
		var run SyncRun
		key, err := it.Next(&run)
		if errors.Is(err, iterator.Done) {
			return page, nil
		}
		if err != nil {
			return nil, err
		}
		run.ID = key.Name
		page.Runs = append(page.Runs, run)
	}

	cursor, err := it.Cursor()
	if err != nil {
		return nil, err
	}
	var extra SyncRun
	if _, err := it.Next(&extra); errors.Is(err, iterator.Done) {
		return page, nil
	} else if err != nil {
		return nil, err
	}
	page.HasMore = true
	page.NextCursor = cursor.String()
	return page, nil
}
