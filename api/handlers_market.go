package api

import (
	"net/http"
	"strings"
	"time"
)

func (s *Server) handleBrokerAccount(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	account, err := s.broker.Account(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to fetch account", err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (s *Server) handleBrokerPositions(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	positions, err := s.broker.Positions(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to fetch positions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleBrokerPosition(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		respondWithError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}

	position, err := s.broker.Position(r.Context(), symbol)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to fetch position", err)
		return
	}
	if position == nil {
		respondWithError(w, http.StatusNotFound, "no open position for "+symbol, nil)
		return
	}
	respondJSON(w, http.StatusOK, position)
}

// handleClosePosition liquidates one position at market and returns the
// resulting brokerage order.
func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		respondWithError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}

	order, err := s.broker.ClosePosition(r.Context(), symbol)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to close position", err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleBrokerOrders(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	one := 1
	maxOrders := 500
	limit := getIntParam(r, "limit", 50, &one, &maxOrders)

	orders, err := s.broker.Orders(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to fetch orders", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

func (s *Server) handleBrokerOrder(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	orderID := strings.TrimSpace(r.PathValue("id"))
	if orderID == "" {
		respondWithError(w, http.StatusBadRequest, "order id is required", nil)
		return
	}

	order, err := s.broker.Order(r.Context(), orderID)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to fetch order", err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// handleCloseAllPositions liquidates every open brokerage position at
// market. Emergency stop for the whole account.
func (s *Server) handleCloseAllPositions(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	closed, err := s.broker.CloseAllPositions(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to close positions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"closed": closed,
		"count":  len(closed),
	})
}

func (s *Server) handleMarketPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		respondWithError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}

	price, err := s.prices.Price(r.Context(), symbol)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to resolve price", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"price":     price,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMarketClock(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		respondWithError(w, http.StatusServiceUnavailable, "brokerage is not configured", nil)
		return
	}

	clock, err := s.broker.Clock(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "failed to fetch market clock", err)
		return
	}
	respondJSON(w, http.StatusOK, clock)
}
