package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// streamMessage is one frame from the market data websocket. The feed sends
// arrays of typed messages; only trades ("t") feed the quote cache.
type streamMessage struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S,omitempty"`
	Price     float64   `json:"p,omitempty"`
	Timestamp time.Time `json:"t,omitempty"`
	Message   string    `json:"msg,omitempty"`
}

type streamAuth struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type streamSubscribe struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
}

// Stream maintains a websocket subscription to the market data trade feed
// and pushes every trade into the price service's caches. Optional: when
// disabled the service just resolves prices over REST on demand.
type Stream struct {
	url     string
	apiKey  string
	secret  string
	symbols []string
	service *Service

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewStream creates a quote stream feeding the given price service.
func NewStream(url, apiKey, secret string, symbols []string, service *Service) *Stream {
	return &Stream{
		url:     url,
		apiKey:  apiKey,
		secret:  secret,
		symbols: symbols,
		service: service,
	}
}

// Run connects and consumes the feed until ctx is cancelled, reconnecting
// with exponential backoff on any failure.
func (s *Stream) Run(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connectAndConsume(ctx); err != nil {
			wait := b.Duration()
			log.Printf("⚠️  Quote stream disconnected: %v (reconnecting in %v)", err, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		b.Reset()
	}
}

func (s *Stream) connectAndConsume(ctx context.Context) error {
	header := make(http.Header)
	header.Set("User-Agent", "ai-trader-platform")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
	defer conn.Close()

	// Close the connection when ctx ends so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := s.writeJSON(streamAuth{Action: "auth", Key: s.apiKey, Secret: s.secret}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := s.writeJSON(streamSubscribe{Action: "subscribe", Trades: s.symbols}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("📡 Quote stream subscribed to %d symbols", len(s.symbols))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var messages []streamMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			// Skip malformed frames
			continue
		}

		for _, msg := range messages {
			switch msg.Type {
			case "t":
				s.service.Put(ctx, &Quote{
					Symbol:    msg.Symbol,
					Price:     msg.Price,
					Timestamp: msg.Timestamp,
				})
			case "error":
				return fmt.Errorf("feed error: %s", msg.Message)
			}
		}
	}
}

func (s *Stream) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return s.conn.WriteJSON(v)
}
