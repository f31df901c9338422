package api

import (
	"fmt"
	"log"
	"net/http"

	"ai-trader-platform/database"
	models "ai-trader-platform/database/models_pkg"
	"ai-trader-platform/database/types"
	"ai-trader-platform/llm"
)

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	userID := getInt64Param(r, "user_id")
	if userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return
	}
	offset, limit := pageParams(r)

	list, err := s.repo.Portfolios.ListByUser(r.Context(), userID, offset, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios": list,
		"count":      len(list),
	})
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        int64   `json:"user_id"`
		Name          string  `json:"name"`
		Description   string  `json:"description"`
		InitialCash   float64 `json:"initial_cash"`
		Market        string  `json:"market"`
		AgentConfigID *int64  `json:"agent_config_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.InitialCash <= 0 {
		req.InitialCash = 10000
	}
	if req.Market == "" {
		req.Market = "us"
	}

	if _, err := s.repo.Users.Get(r.Context(), req.UserID); err != nil {
		respondRepoError(w, database.WrapDBError("GetUser", "user", req.UserID, err))
		return
	}
	if req.AgentConfigID != nil {
		if _, err := s.repo.AgentConfig(r.Context(), *req.AgentConfigID); err != nil {
			respondRepoError(w, err)
			return
		}
	}

	p := &models.Portfolio{
		UserID:        req.UserID,
		AgentConfigID: req.AgentConfigID,
		Name:          req.Name,
		Description:   req.Description,
		InitialCash:   req.InitialCash,
		CurrentCash:   req.InitialCash,
		TotalValue:    req.InitialCash,
		Holdings:      types.Holdings{types.CashKey: req.InitialCash},
		Market:        req.Market,
		IsActive:      true,
	}
	if err := s.repo.Portfolios.Create(r.Context(), p); err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid portfolio id", nil)
		return
	}

	p, err := s.repo.Portfolio(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid portfolio id", nil)
		return
	}

	p, err := s.repo.Portfolio(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	var req struct {
		Name          *string `json:"name"`
		Description   *string `json:"description"`
		AgentConfigID *int64  `json:"agent_config_id"`
		IsActive      *bool   `json:"is_active"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name != nil && *req.Name != "" {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.AgentConfigID != nil {
		if _, err := s.repo.AgentConfig(r.Context(), *req.AgentConfigID); err != nil {
			respondRepoError(w, err)
			return
		}
		p.AgentConfigID = req.AgentConfigID
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := s.repo.Portfolios.Update(r.Context(), p); err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid portfolio id", nil)
		return
	}

	if err := s.repo.Portfolios.Delete(r.Context(), id); err != nil {
		respondRepoError(w, database.WrapDBError("DeletePortfolio", "portfolio", id, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleSyncPortfolio triggers an immediate reconciliation of agent log
// files for one portfolio, outside the monitor loop's schedule.
func (s *Server) handleSyncPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid portfolio id", nil)
		return
	}

	result, err := s.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handlePortfolioAnalysis returns AI commentary on the portfolio. With
// ?stream=true the response is streamed as SSE.
func (s *Server) handlePortfolioAnalysis(w http.ResponseWriter, r *http.Request) {
	if !s.llmEnabled || s.analyzer == nil {
		respondWithError(w, http.StatusServiceUnavailable, "AI analysis is not enabled", nil)
		return
	}

	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid portfolio id", nil)
		return
	}

	p, err := s.repo.Portfolio(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	trades, err := s.repo.Trades.ListByPortfolio(r.Context(), id, 0, 20)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	if r.URL.Query().Get("stream") == "true" {
		s.streamAnalysis(w, r, p, trades)
		return
	}

	analysis, err := s.analyzer.AnalyzePortfolio(r.Context(), p, trades)
	if err != nil {
		if err == llm.ErrCooldown {
			respondWithError(w, http.StatusTooManyRequests, "analysis requested too recently, try again shortly", nil)
			return
		}
		respondWithError(w, http.StatusBadGateway, "analysis failed", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": id,
		"analysis":     analysis,
	})
}

func (s *Server) streamAnalysis(w http.ResponseWriter, r *http.Request, p *models.Portfolio, trades []models.Trade) {
	flusher, ok := setupSSE(w)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	err := s.analyzer.AnalyzePortfolioStream(r.Context(), p, trades, func(chunk string) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		log.Printf("❌ Analysis stream for portfolio %d failed: %v", p.ID, err)
		fmt.Fprintf(w, "event: error\ndata: analysis failed\n\n")
		flusher.Flush()
		return
	}

	fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}
