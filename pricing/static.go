package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Static is a fixed-price provider for tests and offline development.
type Static struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStatic creates a static provider seeded with the given prices.
func NewStatic(prices map[string]float64) *Static {
	copied := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		copied[strings.ToUpper(symbol)] = price
	}
	return &Static{prices: copied}
}

// Price returns the configured price for a symbol.
func (s *Static) Price(ctx context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("no static price for %s", symbol)
	}
	return price, nil
}

// SetPrice updates one symbol's price.
func (s *Static) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[strings.ToUpper(symbol)] = price
}
