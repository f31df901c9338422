package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"ai-trader-platform/database"
	models "ai-trader-platform/database/models_pkg"
)

type createTradeRequest struct {
	PortfolioID int64   `json:"portfolio_id"`
	Symbol      string  `json:"symbol"`
	TradeType   string  `json:"trade_type"`
	Quantity    float64 `json:"quantity"`
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	portfolioID := getInt64Param(r, "portfolio_id")
	if portfolioID <= 0 {
		respondWithError(w, http.StatusBadRequest, "portfolio_id query parameter is required", nil)
		return
	}
	offset, limit := pageParams(r)

	list, err := s.repo.Trades.ListByPortfolio(r.Context(), portfolioID, offset, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"trades": list,
		"count":  len(list),
	})
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid trade id", nil)
		return
	}

	trade, err := s.repo.Trades.Get(r.Context(), id)
	if err != nil {
		respondRepoError(w, database.WrapDBError("GetTrade", "trade", id, err))
		return
	}
	respondJSON(w, http.StatusOK, trade)
}

// handleCreateTrade submits a direct (non-agent) market order. A pending
// Trade row is written first, then the order goes to the brokerage; the row
// is transitioned to executed or failed based on the submission outcome.
func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var req createTradeRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.TradeType = strings.ToLower(req.TradeType)
	if req.Symbol == "" {
		respondWithError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	if req.TradeType != models.TradeTypeBuy && req.TradeType != models.TradeTypeSell {
		respondWithError(w, http.StatusBadRequest, "trade_type must be buy or sell", nil)
		return
	}
	if req.Quantity <= 0 {
		respondWithError(w, http.StatusBadRequest, "quantity must be positive", nil)
		return
	}

	if _, err := s.repo.Portfolio(r.Context(), req.PortfolioID); err != nil {
		respondRepoError(w, err)
		return
	}

	price, err := s.prices.Price(r.Context(), req.Symbol)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to resolve price", err)
		return
	}

	trade := &models.Trade{
		PortfolioID: req.PortfolioID,
		Symbol:      req.Symbol,
		TradeType:   req.TradeType,
		Quantity:    req.Quantity,
		Price:       price,
		TotalValue:  req.Quantity * price,
		Status:      models.TradeStatusPending,
	}
	if err := s.repo.InsertTrade(r.Context(), trade); err != nil {
		respondRepoError(w, err)
		return
	}

	if s.broker == nil {
		// No brokerage configured: record stays pending for manual handling.
		respondJSON(w, http.StatusAccepted, trade)
		return
	}

	order, err := s.broker.SubmitMarketOrder(r.Context(), req.Symbol, req.TradeType, req.Quantity)
	if err != nil {
		log.Printf("❌ Order submission failed for trade %d: %v", trade.ID, err)
		if uerr := s.repo.Trades.UpdateStatus(r.Context(), trade.ID, models.TradeStatusFailed, nil); uerr != nil {
			log.Printf("⚠️  Failed to mark trade %d failed: %v", trade.ID, uerr)
		}
		trade.Status = models.TradeStatusFailed
		respondWithError(w, http.StatusBadGateway, "order submission failed", err)
		return
	}

	execPrice := order.FilledPrice()
	var execPtr *float64
	if execPrice > 0 {
		execPtr = &execPrice
	}
	now := time.Now()
	if err := s.repo.Trades.MarkExecuted(r.Context(), trade.ID, execPtr, order.ID, now); err != nil {
		respondRepoError(w, database.WrapDBError("MarkTradeExecuted", "trade", trade.ID, err))
		return
	}

	trade.Status = models.TradeStatusExecuted
	trade.ExecutionPrice = execPtr
	trade.ExecutedAt = &now
	trade.BrokerTradeID = order.ID

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"trade": trade,
		"order": order,
	})
}
