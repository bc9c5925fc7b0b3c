package workers

import (
	"context"
	"time"

	"poolvault/internal/services/fees"
	"poolvault/pkg/errors"
)

// FeeAccrualWorker advances the pool's fee accumulators on a fixed
// cadence so elapsed-time fee math never spans more than one interval
type FeeAccrualWorker struct {
	*BaseWorker
	fees *fees.Service
}

// NewFeeAccrualWorker creates the scheduled fee accrual worker
func NewFeeAccrualWorker(feeSvc *fees.Service, interval time.Duration, enabled bool) *FeeAccrualWorker {
	return &FeeAccrualWorker{
		BaseWorker: NewBaseWorker("fee_accrual", interval, enabled),
		fees:       feeSvc,
	}
}

// Run executes one accrual pass
func (w *FeeAccrualWorker) Run(ctx context.Context) error {
	start := time.Now()

	if _, err := w.fees.Accrue(ctx, time.Now().UTC()); err != nil {
		w.RecordError(err, time.Since(start))
		return errors.Wrap(err, "scheduled fee accrual")
	}

	w.RecordRun(time.Since(start))
	return nil
}
