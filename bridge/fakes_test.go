package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-trader-platform/database"
	models "ai-trader-platform/database/models_pkg"
)

// fakeHandle is an in-memory Handle so supervisor behavior can be tested
// without spawning real OS processes. Wait never actually sleeps: when the
// process hasn't exited and a timeout was given, it reports the timeout
// immediately.
type fakeHandle struct {
	mu              sync.Mutex
	pid             int
	state           ProcessState
	exitCode        int
	exited          bool
	terminated      bool
	killed          bool
	exitOnTerminate bool
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, state: StateRunning, exitOnTerminate: true}
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) State() ProcessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *fakeHandle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

func (h *fakeHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated = true
	if h.exitOnTerminate && !h.exited {
		h.exited = true
		h.exitCode = 0
		h.state = StateExited
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	if !h.exited {
		h.exited = true
		h.exitCode = -1
		h.state = StateKilled
	}
	return nil
}

func (h *fakeHandle) Wait(timeout time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return nil
	}
	if timeout > 0 {
		return fmt.Errorf("pid %d still running after %v", h.pid, timeout)
	}
	// Unbounded wait only follows a kill in the supervisor, so treat it as
	// the process finally dying.
	h.exited = true
	h.state = StateKilled
	return nil
}

func (h *fakeHandle) simulateExit(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exited = true
	h.exitCode = code
	h.state = StateExited
}

// fakeLauncher hands out preset handles and counts launches.
type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	lastPath string
	err      error
	handles  []*fakeHandle
}

func (l *fakeLauncher) Launch(agentID int64, configPath string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.launches++
	l.lastPath = configPath
	h := newFakeHandle(1000 + int(agentID))
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// memStore is an in-memory implementation of Store, ReconcilerStore and
// MonitorStore.
type memStore struct {
	mu                sync.Mutex
	agents            map[int64]*models.AgentConfig
	portfolios        map[int64]*models.Portfolio
	portfolioByAgent  map[int64]int64
	trades            []*models.Trade
	markRunningErr    error
	markStoppedErr    error
	saveValuationErr  error
	runningFlagWrites int
}

func newMemStore() *memStore {
	return &memStore{
		agents:           make(map[int64]*models.AgentConfig),
		portfolios:       make(map[int64]*models.Portfolio),
		portfolioByAgent: make(map[int64]int64),
	}
}

func (s *memStore) addAgent(cfg *models.AgentConfig) {
	s.agents[cfg.ID] = cfg
}

func (s *memStore) addPortfolio(p *models.Portfolio) {
	s.portfolios[p.ID] = p
	if p.AgentConfigID != nil {
		s.portfolioByAgent[*p.AgentConfigID] = p.ID
	}
}

func (s *memStore) AgentConfig(ctx context.Context, id int64) (*models.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.agents[id]
	if !ok {
		return nil, database.NewNotFoundError("agent config", id)
	}
	copied := *cfg
	return &copied, nil
}

func (s *memStore) PortfolioByAgent(ctx context.Context, agentConfigID int64) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.portfolioByAgent[agentConfigID]
	if !ok {
		return nil, database.NewNotFoundError("portfolio for agent", agentConfigID)
	}
	copied := *s.portfolios[pid]
	return &copied, nil
}

func (s *memStore) Portfolio(ctx context.Context, id int64) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, database.NewNotFoundError("portfolio", id)
	}
	copied := *p
	return &copied, nil
}

func (s *memStore) MarkAgentRunning(ctx context.Context, id int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markRunningErr != nil {
		return s.markRunningErr
	}
	if cfg, ok := s.agents[id]; ok {
		cfg.IsRunning = true
		cfg.LastStartedAt = &startedAt
	}
	s.runningFlagWrites++
	return nil
}

func (s *memStore) MarkAgentStopped(ctx context.Context, id int64, stoppedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markStoppedErr != nil {
		return s.markStoppedErr
	}
	if cfg, ok := s.agents[id]; ok {
		cfg.IsRunning = false
		cfg.LastStoppedAt = &stoppedAt
	}
	return nil
}

func (s *memStore) SavePortfolioValuation(ctx context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveValuationErr != nil {
		return s.saveValuationErr
	}
	stored, ok := s.portfolios[p.ID]
	if !ok {
		return database.NewNotFoundError("portfolio", p.ID)
	}
	stored.Holdings = p.Holdings
	stored.CurrentCash = p.CurrentCash
	stored.TotalValue = p.TotalValue
	stored.TotalReturn = p.TotalReturn
	stored.TotalReturnPct = p.TotalReturnPct
	return nil
}

func (s *memStore) TradeExists(ctx context.Context, portfolioID int64, symbol string, executedAt time.Time, brokerTradeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.PortfolioID != portfolioID {
			continue
		}
		if brokerTradeID != "" {
			if t.BrokerTradeID == brokerTradeID {
				return true, nil
			}
			continue
		}
		if t.Symbol == symbol && t.ExecutedAt != nil && t.ExecutedAt.Equal(executedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) InsertTrade(ctx context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *trade
	s.trades = append(s.trades, &copied)
	return nil
}

func (s *memStore) RunningAgentIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, cfg := range s.agents {
		if cfg.IsRunning {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) PortfolioIDsWithAgentActivity(ctx context.Context, stoppedAfter time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, p := range s.portfolios {
		if p.AgentConfigID == nil {
			continue
		}
		cfg, ok := s.agents[*p.AgentConfigID]
		if !ok {
			continue
		}
		if cfg.IsRunning || (cfg.LastStoppedAt != nil && cfg.LastStoppedAt.After(stoppedAfter)) {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (s *memStore) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

func (s *memStore) agentRunning(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.agents[id]
	return ok && cfg.IsRunning
}

// staticPrices returns a fixed price per symbol, with an optional default.
type staticPrices struct {
	prices       map[string]float64
	defaultPrice float64
}

func (p *staticPrices) Price(ctx context.Context, symbol string) (float64, error) {
	if price, ok := p.prices[symbol]; ok {
		return price, nil
	}
	if p.defaultPrice > 0 {
		return p.defaultPrice, nil
	}
	return 0, fmt.Errorf("no price for %s", symbol)
}
