package workers

import (
	"context"
	"time"

	"poolvault/internal/services/valuation"
	"poolvault/pkg/errors"
)

// ValuationWorker keeps the snapshot warm and the observation stream
// flowing even when no caller is hitting the summary endpoint
type ValuationWorker struct {
	*BaseWorker
	valuation *valuation.Service
}

// NewValuationWorker creates the scheduled valuation worker
func NewValuationWorker(valuationSvc *valuation.Service, interval time.Duration, enabled bool) *ValuationWorker {
	return &ValuationWorker{
		BaseWorker: NewBaseWorker("valuation", interval, enabled),
		valuation:  valuationSvc,
	}
}

// Run resolves one pool valuation
func (w *ValuationWorker) Run(ctx context.Context) error {
	start := time.Now()

	view, err := w.valuation.GetPoolSummary(ctx)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return errors.Wrap(err, "scheduled valuation")
	}

	w.RecordRun(time.Since(start))
	w.Log().Debugw("Scheduled valuation resolved",
		"tier", view.Tier,
		"nav_usd", view.TotalValueUSD,
		"share_price", view.SharePriceUSD,
	)
	return nil
}
