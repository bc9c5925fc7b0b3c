package workers

import (
	"context"
	"time"

	syncservice "poolvault/internal/services/sync"
	"poolvault/pkg/errors"
)

// ResyncWorker periodically runs a full cache reconciliation against
// the ledger so drift never outlives one interval
type ResyncWorker struct {
	*BaseWorker
	sync *syncservice.Service
}

// NewResyncWorker creates the scheduled resync worker
func NewResyncWorker(syncSvc *syncservice.Service, interval time.Duration, enabled bool) *ResyncWorker {
	return &ResyncWorker{
		BaseWorker: NewBaseWorker("resync", interval, enabled),
		sync:       syncSvc,
	}
}

// Run executes one full resync
func (w *ResyncWorker) Run(ctx context.Context) error {
	start := time.Now()

	result, err := w.sync.FullResync(ctx)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return errors.Wrap(err, "scheduled resync")
	}

	w.RecordRun(time.Since(start))
	w.Log().Debugw("Scheduled resync completed",
		"members_synced", result.MembersSynced,
		"members_purged", result.MembersPurged,
	)
	return nil
}
