package api

import (
	"net/http"
	"time"
)

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondWithError(w, http.StatusServiceUnavailable, "reporting is not configured", nil)
		return
	}

	stats, err := s.reports.PlatformStats(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to compute platform stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatsVolume(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondWithError(w, http.StatusServiceUnavailable, "reporting is not configured", nil)
		return
	}

	one := 1
	max := 365
	days := getIntParam(r, "days", 30, &one, &max)

	volume, err := s.reports.DailyTradeVolume(r.Context(), days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to compute trade volume", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"days":   days,
		"volume": volume,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
