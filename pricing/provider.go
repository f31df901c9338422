// Package pricing resolves current market prices for portfolio valuation.
// Lookups go through two cache layers before hitting the market data API:
// an in-process ristretto cache for hot symbols and a shared Redis cache so
// multiple instances don't stampede the provider.
package pricing

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-resty/resty/v2"

	"ai-trader-platform/cache"
)

// Provider is the price-lookup interface consumed by the reconciler and the
// API layer.
type Provider interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Quote is one price observation.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// quoteResponse is the market data API's latest-trade payload.
type quoteResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		Price     float64   `json:"p"`
		Timestamp time.Time `json:"t"`
	} `json:"trade"`
}

const (
	hotCacheTTL    = 15 * time.Second
	sharedCacheTTL = time.Minute
)

// Service resolves prices from the market data REST API with layered
// caching.
type Service struct {
	http   *resty.Client
	redis  *cache.RedisClient
	hot    *ristretto.Cache
	apiKey string
	secret string
}

// NewService creates a price service against the given market data base URL.
// redis may be nil; the shared cache layer is skipped then.
func NewService(baseURL, apiKey, secret string, redis *cache.RedisClient) (*Service, error) {
	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000, // ~1k tracked symbols
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("init quote cache: %w", err)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("APCA-API-KEY-ID", apiKey).
		SetHeader("APCA-API-SECRET-KEY", secret)

	return &Service{
		http:   client,
		redis:  redis,
		hot:    hot,
		apiKey: apiKey,
		secret: secret,
	}, nil
}

// Price returns the latest trade price for a symbol.
func (s *Service) Price(ctx context.Context, symbol string) (float64, error) {
	quote, err := s.Quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return quote.Price, nil
}

// Quote returns the latest quote for a symbol, consulting the hot cache,
// then the shared cache, then the market data API.
func (s *Service) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	if cached, ok := s.hot.Get(symbol); ok {
		if quote, ok := cached.(*Quote); ok {
			return quote, nil
		}
	}

	cacheKey := "quote:" + symbol
	if s.redis != nil {
		var quote Quote
		if err := s.redis.Get(ctx, cacheKey, &quote); err == nil && quote.Price > 0 {
			s.hot.SetWithTTL(symbol, &quote, 1, hotCacheTTL)
			return &quote, nil
		}
	}

	quote, err := s.fetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.hot.SetWithTTL(symbol, quote, 1, hotCacheTTL)
	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey, quote, sharedCacheTTL); err != nil {
			log.Printf("⚠️  Failed to cache quote for %s: %v", symbol, err)
		}
	}
	return quote, nil
}

// Put injects a quote into both cache layers. Used by the streaming feed so
// valuation reads served from cache stay near real time.
func (s *Service) Put(ctx context.Context, quote *Quote) {
	if quote == nil || quote.Symbol == "" || quote.Price <= 0 {
		return
	}
	s.hot.SetWithTTL(quote.Symbol, quote, 1, hotCacheTTL)
	if s.redis != nil {
		if err := s.redis.Set(ctx, "quote:"+quote.Symbol, quote, sharedCacheTTL); err != nil {
			log.Printf("⚠️  Failed to cache quote for %s: %v", quote.Symbol, err)
		}
	}
}

// Close releases the in-process cache.
func (s *Service) Close() {
	s.hot.Close()
}

func (s *Service) fetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	var payload quoteResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&payload).
		SetPathParam("symbol", symbol).
		Get("/v2/stocks/{symbol}/trades/latest")
	if err != nil {
		return nil, fmt.Errorf("quote request for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("quote request for %s: status %d: %s", symbol, resp.StatusCode(), resp.String())
	}
	if payload.Trade.Price <= 0 {
		return nil, fmt.Errorf("no trade data for %s", symbol)
	}

	ts := payload.Trade.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Quote{Symbol: symbol, Price: payload.Trade.Price, Timestamp: ts}, nil
}
