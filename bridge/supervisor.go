package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	models "ai-trader-platform/database/models_pkg"
)

// stopGracePeriod is how long a terminated process gets to exit on its own
// before it is forcefully killed.
const stopGracePeriod = 10 * time.Second

// ErrAgentInactive is returned when start is requested for an agent whose
// configuration is not active.
var ErrAgentInactive = errors.New("agent configuration is not active")

// SpawnError reports that the trading-agent executable could not be
// launched. Persisted state is untouched when this is returned.
type SpawnError struct {
	AgentID int64
	Err     error
}

// Error implements the error interface
func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn agent %d: %v", e.AgentID, e.Err)
}

// Unwrap returns the underlying error
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Store is the persistence surface the supervisor needs. Satisfied by
// *database.Repository; tests inject an in-memory fake.
type Store interface {
	AgentConfig(ctx context.Context, id int64) (*models.AgentConfig, error)
	PortfolioByAgent(ctx context.Context, agentConfigID int64) (*models.Portfolio, error)
	MarkAgentRunning(ctx context.Context, id int64, startedAt time.Time) error
	MarkAgentStopped(ctx context.Context, id int64, stoppedAt time.Time) error
}

// AgentStatus is the liveness snapshot returned to API callers.
type AgentStatus struct {
	Running       bool       `json:"running"`
	State         string     `json:"state,omitempty"` // active or crashed
	PID           int        `json:"pid,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	UptimeSeconds float64    `json:"uptime_seconds,omitempty"`
}

// ExitedAgent describes a supervised process found dead during a sweep.
type ExitedAgent struct {
	AgentID  int64
	ExitCode int
}

// liveAgent is one entry in the live-process table. In-memory only: a
// supervisor restart presumes every agent not running until proven
// otherwise.
type liveAgent struct {
	handle     Handle
	configPath string
	startedAt  time.Time
}

// Supervisor owns the mapping from agent id to live subprocess. The table
// is mutated only through Start, Stop and ReapExited, all serialized on one
// mutex; no other component touches it.
type Supervisor struct {
	store        Store
	launcher     Launcher
	materializer *Materializer

	mu   sync.Mutex
	live map[int64]*liveAgent
}

// NewSupervisor creates a process supervisor with an empty live table.
func NewSupervisor(store Store, launcher Launcher, materializer *Materializer) *Supervisor {
	return &Supervisor{
		store:        store,
		launcher:     launcher,
		materializer: materializer,
		live:         make(map[int64]*liveAgent),
	}
}

// Start launches the trading-agent process for an agent configuration.
// Idempotent: starting an already-live agent returns its current status
// without spawning a second process. The agent must be active and must
// have a linked portfolio; both are checked before anything is spawned.
func (s *Supervisor) Start(ctx context.Context, agentID int64) (*AgentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.live[agentID]; ok {
		log.Printf("⚠️  Agent %d is already running (pid %d)", agentID, entry.handle.PID())
		return s.statusLocked(agentID), nil
	}

	cfg, err := s.store.AgentConfig(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, ErrAgentInactive
	}

	portfolio, err := s.store.PortfolioByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	configPath, err := s.materializer.Write(cfg, portfolio)
	if err != nil {
		return nil, fmt.Errorf("materialize config for agent %d: %w", agentID, err)
	}

	handle, err := s.launcher.Launch(agentID, configPath)
	if err != nil {
		return nil, &SpawnError{AgentID: agentID, Err: err}
	}

	now := time.Now()
	s.live[agentID] = &liveAgent{
		handle:     handle,
		configPath: configPath,
		startedAt:  now,
	}

	if err := s.store.MarkAgentRunning(ctx, agentID, now); err != nil {
		// The process is real, so the live entry stays; the monitor loop
		// repairs the persisted flag on its next cycle.
		log.Printf("⚠️  Agent %d started (pid %d) but flag commit failed: %v", agentID, handle.PID(), err)
		return nil, fmt.Errorf("agent %d started but status commit failed: %w", agentID, err)
	}

	log.Printf("🚀 Started agent %d (pid %d)", agentID, handle.PID())
	return s.statusLocked(agentID), nil
}

// Stop gracefully stops a running agent: SIGTERM, a bounded wait, then a
// forced kill. Idempotent: stopping an agent that is not live returns
// success and leaves the table unchanged. The live entry is always removed
// and the persisted flag cleared, even if the process had already exited.
func (s *Supervisor) Stop(ctx context.Context, agentID int64) error {
	s.mu.Lock()
	entry, ok := s.live[agentID]
	if !ok {
		s.mu.Unlock()
		log.Printf("⚠️  Agent %d is not running", agentID)
		return nil
	}
	delete(s.live, agentID)
	s.mu.Unlock()

	s.shutdownProcess(agentID, entry.handle)

	if entry.configPath != "" {
		os.Remove(entry.configPath)
	}

	if err := s.store.MarkAgentStopped(ctx, agentID, time.Now()); err != nil {
		return fmt.Errorf("agent %d stopped but status commit failed: %w", agentID, err)
	}

	log.Printf("🛑 Stopped agent %d", agentID)
	return nil
}

// shutdownProcess terminates the process and escalates to kill after the
// grace period. Never fails: an already-exited process is a no-op.
func (s *Supervisor) shutdownProcess(agentID int64, handle Handle) {
	if _, exited := handle.ExitCode(); exited {
		return
	}

	if err := handle.Terminate(); err != nil {
		log.Printf("⚠️  Failed to terminate agent %d: %v", agentID, err)
	}

	if err := handle.Wait(stopGracePeriod); err != nil {
		log.Printf("⚠️  Force killing agent %d", agentID)
		if err := handle.Kill(); err != nil {
			log.Printf("⚠️  Failed to kill agent %d: %v", agentID, err)
		}
		handle.Wait(0)
	}
}

// Status reports the liveness snapshot for one agent. It checks only the
// handle's immediate exit state; discovering a crash and updating storage
// is the monitor loop's job.
func (s *Supervisor) Status(agentID int64) *AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(agentID)
}

func (s *Supervisor) statusLocked(agentID int64) *AgentStatus {
	entry, ok := s.live[agentID]
	if !ok {
		return &AgentStatus{Running: false}
	}

	state := "active"
	if _, exited := entry.handle.ExitCode(); exited {
		state = "crashed"
	}

	startedAt := entry.startedAt
	return &AgentStatus{
		Running:       true,
		State:         state,
		PID:           entry.handle.PID(),
		StartedAt:     &startedAt,
		UptimeSeconds: time.Since(startedAt).Seconds(),
	}
}

// ReapExited removes every live entry whose process has exited and returns
// their ids and exit codes. Persisting the flag flip is the caller's
// (monitor loop's) responsibility.
func (s *Supervisor) ReapExited() []ExitedAgent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []ExitedAgent
	for agentID, entry := range s.live {
		if code, exited := entry.handle.ExitCode(); exited {
			dead = append(dead, ExitedAgent{AgentID: agentID, ExitCode: code})
			delete(s.live, agentID)
		}
	}
	return dead
}

// IsLive reports whether an agent has a live table entry.
func (s *Supervisor) IsLive(agentID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[agentID]
	return ok
}

// LiveAgentIDs returns the ids of all supervised agents.
func (s *Supervisor) LiveAgentIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	return ids
}

// StopAll stops every supervised agent, clearing persisted flags. Used on
// clean shutdown: the processes are going down with us, so the flags must
// not claim otherwise to the next supervisor instance.
func (s *Supervisor) StopAll(ctx context.Context) {
	for _, agentID := range s.LiveAgentIDs() {
		if err := s.Stop(ctx, agentID); err != nil {
			log.Printf("⚠️  Error stopping agent %d during shutdown: %v", agentID, err)
		}
	}
}
