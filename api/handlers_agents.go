package api

import (
	"errors"
	"net/http"

	"ai-trader-platform/bridge"
	"ai-trader-platform/database"
	models "ai-trader-platform/database/models_pkg"
	"ai-trader-platform/database/types"
)

// strategyCatalog is the static list of supported strategy types.
var strategyCatalog = []map[string]string{
	{"type": "aggressive", "description": "High risk tolerance, larger positions, momentum entries"},
	{"type": "balanced", "description": "Moderate risk with diversified positions"},
	{"type": "conservative", "description": "Low risk, small positions, tight stop losses"},
	{"type": "momentum", "description": "Follows price and volume trends"},
	{"type": "value", "description": "Buys underpriced assets, longer holding periods"},
}

// planAgentLimits maps subscription plan to the number of active agents
// allowed.
var planAgentLimits = map[string]int64{
	models.PlanFree:  1,
	models.PlanBasic: 3,
	models.PlanPro:   10,
}

type agentRequest struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	ModelName    *string `json:"model_name"`
	ModelVersion *string `json:"model_version"`

	StrategyType    *string  `json:"strategy_type"`
	RiskLevel       *float64 `json:"risk_level"`
	MaxPositionSize *float64 `json:"max_position_size"`
	StopLossPct     *float64 `json:"stop_loss_pct"`
	TakeProfitPct   *float64 `json:"take_profit_pct"`
	MaxDailyTrades  *int     `json:"max_daily_trades"`

	Market          *string          `json:"market"`
	AllowedSymbols  types.StringList `json:"allowed_symbols"`
	ExcludedSymbols types.StringList `json:"excluded_symbols"`

	UseTechnicalAnalysis *bool `json:"use_technical_analysis"`
	UseSentimentAnalysis *bool `json:"use_sentiment_analysis"`
	UseNewsAnalysis      *bool `json:"use_news_analysis"`

	LiveTrading *bool `json:"live_trading"`
	IsActive    *bool `json:"is_active"`
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"strategies": strategyCatalog})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	userID := getInt64Param(r, "user_id")
	if userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return
	}
	offset, limit := pageParams(r)

	list, err := s.repo.Agents.ListByUser(r.Context(), userID, offset, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agents": list,
		"count":  len(list),
	})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.StrategyType != nil && !validStrategy(*req.StrategyType) {
		respondWithError(w, http.StatusBadRequest, "unknown strategy type", nil)
		return
	}

	if _, err := s.repo.Users.Get(r.Context(), req.UserID); err != nil {
		respondRepoError(w, database.WrapDBError("GetUser", "user", req.UserID, err))
		return
	}

	cfg := &models.AgentConfig{
		UserID:               req.UserID,
		Name:                 req.Name,
		Description:          req.Description,
		ModelName:            "deepseek-chat",
		ModelVersion:         "v3.1",
		StrategyType:         "balanced",
		RiskLevel:            0.5,
		MaxPositionSize:      0.1,
		StopLossPct:          0.05,
		TakeProfitPct:        0.15,
		MaxDailyTrades:       5,
		Market:               "us",
		AllowedSymbols:       req.AllowedSymbols,
		ExcludedSymbols:      req.ExcludedSymbols,
		UseTechnicalAnalysis: true,
		UseSentimentAnalysis: true,
		UseNewsAnalysis:      true,
	}
	applyAgentRequest(cfg, &req)

	if cfg.IsActive {
		if err := s.checkAgentQuota(r, w, req.UserID); err != nil {
			return
		}
	}

	if err := s.repo.Agents.Create(r.Context(), cfg); err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	cfg, err := s.repo.AgentConfig(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	cfg, err := s.repo.AgentConfig(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	var req agentRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.StrategyType != nil && !validStrategy(*req.StrategyType) {
		respondWithError(w, http.StatusBadRequest, "unknown strategy type", nil)
		return
	}

	wasActive := cfg.IsActive
	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Description != "" {
		cfg.Description = req.Description
	}
	if req.AllowedSymbols != nil {
		cfg.AllowedSymbols = req.AllowedSymbols
	}
	if req.ExcludedSymbols != nil {
		cfg.ExcludedSymbols = req.ExcludedSymbols
	}
	applyAgentRequest(cfg, &req)

	if cfg.IsActive && !wasActive {
		if err := s.checkAgentQuota(r, w, cfg.UserID); err != nil {
			return
		}
	}

	if err := s.repo.Agents.Update(r.Context(), cfg); err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	// A supervised process must not outlive its configuration.
	if status := s.agents.Status(id); status.Running {
		respondWithError(w, http.StatusConflict, "agent is running, stop it first", nil)
		return
	}

	if err := s.repo.Agents.Delete(r.Context(), id); err != nil {
		respondRepoError(w, database.WrapDBError("DeleteAgent", "agent config", id, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	status, err := s.agents.Start(r.Context(), id)
	if err != nil {
		var spawnErr *bridge.SpawnError
		switch {
		case database.IsNotFound(err):
			respondWithError(w, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, bridge.ErrAgentInactive):
			respondWithError(w, http.StatusConflict, "agent configuration is not active", nil)
		case errors.As(err, &spawnErr):
			respondWithError(w, http.StatusBadGateway, "failed to launch agent process", err)
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to start agent", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	if err := s.agents.Stop(r.Context(), id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to stop agent", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	if _, err := s.repo.AgentConfig(r.Context(), id); err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.agents.Status(id))
}

func (s *Server) handleAgentPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid agent id", nil)
		return
	}

	cfg, err := s.repo.AgentConfig(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	payload := map[string]interface{}{
		"agent_id":          cfg.ID,
		"total_trades":      cfg.TotalTrades,
		"successful_trades": cfg.SuccessfulTrades,
		"win_rate":          cfg.WinRate,
		"last_started_at":   cfg.LastStartedAt,
		"last_stopped_at":   cfg.LastStoppedAt,
	}

	// Include portfolio returns when the agent drives one.
	if p, err := s.repo.PortfolioByAgent(r.Context(), id); err == nil {
		payload["portfolio_id"] = p.ID
		payload["total_value"] = p.TotalValue
		payload["total_return"] = p.TotalReturn
		payload["total_return_pct"] = p.TotalReturnPct
	}

	respondJSON(w, http.StatusOK, payload)
}

// checkAgentQuota enforces the subscription plan's active-agent limit. On
// violation it writes the error response and returns non-nil.
func (s *Server) checkAgentQuota(r *http.Request, w http.ResponseWriter, userID int64) error {
	limit := planAgentLimits[models.PlanFree]
	if sub, err := s.repo.Subscriptions.GetByUser(r.Context(), userID); err == nil && sub.Status == models.SubscriptionActive {
		if l, ok := planAgentLimits[sub.Plan]; ok {
			limit = l
		}
	}

	active, err := s.repo.Agents.CountActiveByUser(r.Context(), userID)
	if err != nil {
		respondRepoError(w, err)
		return err
	}
	if active >= limit {
		err := errors.New("agent quota exceeded")
		respondWithError(w, http.StatusForbidden, "active agent limit reached for current plan", nil)
		return err
	}
	return nil
}

func applyAgentRequest(cfg *models.AgentConfig, req *agentRequest) {
	if req.ModelName != nil {
		cfg.ModelName = *req.ModelName
	}
	if req.ModelVersion != nil {
		cfg.ModelVersion = *req.ModelVersion
	}
	if req.StrategyType != nil {
		cfg.StrategyType = *req.StrategyType
	}
	if req.RiskLevel != nil {
		cfg.RiskLevel = clamp(*req.RiskLevel, 0, 1)
	}
	if req.MaxPositionSize != nil {
		cfg.MaxPositionSize = clamp(*req.MaxPositionSize, 0.01, 1)
	}
	if req.StopLossPct != nil {
		cfg.StopLossPct = *req.StopLossPct
	}
	if req.TakeProfitPct != nil {
		cfg.TakeProfitPct = *req.TakeProfitPct
	}
	if req.MaxDailyTrades != nil {
		cfg.MaxDailyTrades = *req.MaxDailyTrades
	}
	if req.Market != nil {
		cfg.Market = *req.Market
	}
	if req.UseTechnicalAnalysis != nil {
		cfg.UseTechnicalAnalysis = *req.UseTechnicalAnalysis
	}
	if req.UseSentimentAnalysis != nil {
		cfg.UseSentimentAnalysis = *req.UseSentimentAnalysis
	}
	if req.UseNewsAnalysis != nil {
		cfg.UseNewsAnalysis = *req.UseNewsAnalysis
	}
	if req.LiveTrading != nil {
		cfg.LiveTrading = *req.LiveTrading
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
}

func validStrategy(strategy string) bool {
	for _, s := range strategyCatalog {
		if s["type"] == strategy {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
