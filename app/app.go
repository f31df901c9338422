// Package app wires the platform together: storage, caches, market data,
// the agent process bridge and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"ai-trader-platform/api"
	"ai-trader-platform/bridge"
	"ai-trader-platform/broker"
	"ai-trader-platform/cache"
	"ai-trader-platform/config"
	"ai-trader-platform/database"
	"ai-trader-platform/llm"
	"ai-trader-platform/pricing"
)

// App represents the main application
type App struct {
	config *config.Config

	db      *database.Database
	redis   *cache.RedisClient
	repo    *database.Repository
	reports *database.ReportDB

	prices     *pricing.Service
	stream     *pricing.Stream
	broker     *broker.Client
	supervisor *bridge.Supervisor
	reconciler *bridge.Reconciler
	monitor    *bridge.Monitor
	apiServer  *api.Server
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Start starts the application and blocks until shutdown.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database connection
	fmt.Println("🗄️  Connecting to database...")
	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}
	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// 2. Redis connection
	fmt.Println("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if a.redis == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	}

	// 3. Schema and repositories
	a.repo = database.NewRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// Dedicated reporting pool, separate from the ORM connection.
	reports, err := database.NewReportDB(
		a.config.DatabaseHost,
		a.config.DatabasePort,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
		a.config.DatabaseName,
	)
	if err != nil {
		log.Printf("⚠️  Reporting pool unavailable: %v", err)
	} else {
		a.reports = reports
	}

	// 4. Market data
	prices, err := pricing.NewService(
		a.config.MarketData.BaseURL,
		a.config.MarketData.APIKey,
		a.config.MarketData.Secret,
		a.redis,
	)
	if err != nil {
		return fmt.Errorf("pricing service init failed: %w", err)
	}
	a.prices = prices

	if a.config.MarketData.StreamEnabled && len(a.config.MarketData.StreamSymbols) > 0 {
		a.stream = pricing.NewStream(
			a.config.MarketData.StreamURL,
			a.config.MarketData.APIKey,
			a.config.MarketData.Secret,
			a.config.MarketData.StreamSymbols,
			a.prices,
		)
		go a.stream.Run(ctx)
	}

	// 5. Brokerage
	if a.config.Broker.APIKey != "" {
		a.broker = broker.NewClient(a.config.Broker.APIKey, a.config.Broker.Secret, a.config.Broker.Paper)
		mode := "live"
		if a.config.Broker.Paper {
			mode = "paper"
		}
		log.Printf("✅ Brokerage configured (%s trading)", mode)
	} else {
		log.Println("ℹ️  Brokerage not configured, direct orders disabled")
	}

	// 6. Agent process bridge
	materializer := &bridge.Materializer{
		ConfigDir:       a.config.Agent.ConfigDir,
		ModelAPIKey:     a.config.Agent.ModelAPIKey,
		ModelAPIBase:    a.config.Agent.ModelAPIBase,
		AlphaVantageKey: a.config.Agent.AlphaVantageKey,
	}
	launcher := &bridge.ExecLauncher{
		Command: a.config.Agent.ExecutablePath,
		Args:    a.config.Agent.ExecutableArgs,
		WorkDir: a.config.Agent.WorkDir,
		LogDir:  a.config.Agent.LogDir,
	}
	a.supervisor = bridge.NewSupervisor(a.repo, launcher, materializer)
	a.reconciler = bridge.NewReconciler(a.repo, a.prices, a.config.Agent.DataDir)
	a.monitor = bridge.NewMonitor(
		a.supervisor,
		a.reconciler,
		a.repo,
		time.Duration(a.config.Agent.MonitorIntervalSec)*time.Second,
		time.Duration(a.config.Agent.MonitorBackoffSec)*time.Second,
	)

	// 7. LLM analyzer if enabled
	var analyzer *llm.Analyzer
	if a.config.LLM.Enabled {
		client := llm.NewClient(a.config.LLM.Endpoint, a.config.LLM.APIKey, a.config.LLM.Model)
		analyzer = llm.NewAnalyzer(client, cache.NewAnalysisCache(a.redis))
		log.Printf("✅ AI portfolio analysis ENABLED (Model: %s)", a.config.LLM.Model)
	} else {
		log.Println("ℹ️  AI portfolio analysis DISABLED")
	}

	var wg sync.WaitGroup

	// 8. Monitor loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()

	// 9. API server
	a.apiServer = api.NewServer(
		a.repo,
		a.reports,
		a.supervisor,
		a.reconciler,
		a.prices,
		a.broker,
		analyzer,
		a.config.LLM.Enabled,
	)
	go func() {
		if err := a.apiServer.Start(a.config.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️  API server failed: %v", err)
		}
	}()

	// 10. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Stop the monitor loop and quote stream.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		defer close(shutdownComplete)

		if a.apiServer != nil {
			fmt.Println("🌐 Stopping API server...")
			if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("⚠️  API server shutdown: %v", err)
			}
		}

		// The agent processes go down with us; stopping them clears the
		// persisted running flags so the next instance starts clean.
		fmt.Println("🤖 Stopping supervised agents...")
		a.supervisor.StopAll(shutdownCtx)

		if a.prices != nil {
			a.prices.Close()
		}
		if a.reports != nil {
			a.reports.Close()
		}
		if a.redis != nil {
			fmt.Println("🧠 Closing Redis connection...")
			a.redis.Close()
		}
		if a.db != nil {
			fmt.Println("🗄️  Closing database connection...")
			a.db.Close()
		}
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timed out, exiting anyway")
		return shutdownCtx.Err()
	}
}
