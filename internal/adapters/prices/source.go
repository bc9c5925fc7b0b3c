package prices

import (
	"context"

	"github.com/shopspring/decimal"
)

// Source provides USD quotes for pool assets.
// Implementations return errors.ErrPriceUnavailable when no quote exists,
// which the valuation engine treats as a signal to use a lower tier.
type Source interface {
	Name() string
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
