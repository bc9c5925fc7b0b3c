package prices

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"poolvault/pkg/errors"
)

// StaticSource serves quotes from an in-memory table.
// Used in tests and as the seed source when no external feed is wired;
// quotes are updated via Update by whoever owns the feed.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]decimal.Decimal
}

// NewStaticSource creates a source pre-populated with the given quotes
func NewStaticSource(quotes map[string]decimal.Decimal) *StaticSource {
	normalized := make(map[string]decimal.Decimal, len(quotes))
	for symbol, price := range quotes {
		normalized[strings.ToUpper(symbol)] = price
	}
	return &StaticSource{quotes: normalized}
}

// Name returns the source identifier
func (s *StaticSource) Name() string {
	return "static"
}

// Price returns the stored quote for symbol
func (s *StaticSource) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.quotes[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, errors.Wrapf(errors.ErrPriceUnavailable, "no quote for %s", symbol)
	}
	return price, nil
}

// Update replaces the quote for symbol
func (s *StaticSource) Update(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[strings.ToUpper(symbol)] = price
}
