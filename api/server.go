package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"ai-trader-platform/bridge"
	"ai-trader-platform/broker"
	"ai-trader-platform/database"
	"ai-trader-platform/llm"
	"ai-trader-platform/pricing"
)

// AgentBridge is the process-lifecycle surface the agent handlers need.
// Satisfied by *bridge.Supervisor; tests inject a fake.
type AgentBridge interface {
	Start(ctx context.Context, agentID int64) (*bridge.AgentStatus, error)
	Stop(ctx context.Context, agentID int64) error
	Status(agentID int64) *bridge.AgentStatus
}

// Server handles HTTP API requests
type Server struct {
	repo       *database.Repository
	reports    *database.ReportDB
	agents     AgentBridge
	reconciler *bridge.Reconciler
	prices     pricing.Provider
	broker     *broker.Client
	analyzer   *llm.Analyzer
	llmEnabled bool

	httpServer *http.Server
}

// NewServer creates a new API server instance. reports, broker and analyzer
// may be nil; their endpoints report service-unavailable then.
func NewServer(repo *database.Repository, reports *database.ReportDB, agents AgentBridge, reconciler *bridge.Reconciler, prices pricing.Provider, brokerClient *broker.Client, analyzer *llm.Analyzer, llmEnabled bool) *Server {
	return &Server{
		repo:       repo,
		reports:    reports,
		agents:     agents,
		reconciler: reconciler,
		prices:     prices,
		broker:     brokerClient,
		analyzer:   analyzer,
		llmEnabled: llmEnabled,
	}
}

// Start starts the HTTP server on the given address. Blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	// User routes
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	mux.HandleFunc("PUT /api/users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)

	// Subscription routes
	mux.HandleFunc("GET /api/subscriptions/plans", s.handleListPlans)
	mux.HandleFunc("POST /api/subscriptions", s.handleCreateSubscription)
	mux.HandleFunc("GET /api/subscriptions/{id}", s.handleGetSubscription)
	mux.HandleFunc("DELETE /api/subscriptions/{id}", s.handleCancelSubscription)

	// Portfolio routes
	mux.HandleFunc("GET /api/portfolios", s.handleListPortfolios)
	mux.HandleFunc("POST /api/portfolios", s.handleCreatePortfolio)
	mux.HandleFunc("GET /api/portfolios/{id}", s.handleGetPortfolio)
	mux.HandleFunc("PUT /api/portfolios/{id}", s.handleUpdatePortfolio)
	mux.HandleFunc("DELETE /api/portfolios/{id}", s.handleDeletePortfolio)
	mux.HandleFunc("POST /api/portfolios/{id}/sync", s.handleSyncPortfolio)
	mux.HandleFunc("GET /api/portfolios/{id}/analysis", s.handlePortfolioAnalysis)

	// Agent routes
	mux.HandleFunc("GET /api/agents/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /api/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("POST /api/agents/{id}/start", s.handleStartAgent)
	mux.HandleFunc("POST /api/agents/{id}/stop", s.handleStopAgent)
	mux.HandleFunc("GET /api/agents/{id}/status", s.handleAgentStatus)
	mux.HandleFunc("GET /api/agents/{id}/performance", s.handleAgentPerformance)

	// Trade routes
	mux.HandleFunc("GET /api/trades", s.handleListTrades)
	mux.HandleFunc("POST /api/trades", s.handleCreateTrade)
	mux.HandleFunc("GET /api/trades/{id}", s.handleGetTrade)

	// Brokerage and market data routes
	mux.HandleFunc("GET /api/broker/account", s.handleBrokerAccount)
	mux.HandleFunc("GET /api/broker/positions", s.handleBrokerPositions)
	mux.HandleFunc("DELETE /api/broker/positions", s.handleCloseAllPositions)
	mux.HandleFunc("GET /api/broker/positions/{symbol}", s.handleBrokerPosition)
	mux.HandleFunc("DELETE /api/broker/positions/{symbol}", s.handleClosePosition)
	mux.HandleFunc("GET /api/broker/orders", s.handleBrokerOrders)
	mux.HandleFunc("GET /api/broker/orders/{id}", s.handleBrokerOrder)
	mux.HandleFunc("GET /api/market/price/{symbol}", s.handleMarketPrice)
	mux.HandleFunc("GET /api/market/clock", s.handleMarketClock)

	// Platform reporting
	mux.HandleFunc("GET /api/stats/overview", s.handleStatsOverview)
	mux.HandleFunc("GET /api/stats/volume", s.handleStatsVolume)

	mux.HandleFunc("GET /health", s.handleHealth)

	// Add middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("🚀 API server starting on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Handlers are distributed across multiple files:
// - handlers_users.go: Users and subscriptions
// - handlers_portfolios.go: Portfolios, sync and AI analysis
// - handlers_agents.go: Agent configs and process lifecycle
// - handlers_trades.go: Trade records and order submission
// - handlers_market.go: Brokerage account and market data
// - handlers_stats.go: Platform reporting
