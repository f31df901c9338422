package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"ai-trader-platform/database"
)

// Pagination bounds
const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// getIDParam parses the {id} path segment.
func getIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// getInt64Param retrieves an int64 query parameter or zero
func getInt64Param(r *http.Request, key string) int64 {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return 0
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return 0
	}
	return val
}

// pageParams extracts offset/limit pagination from the query string
func pageParams(r *http.Request) (offset, limit int) {
	zero := 0
	maxLimit := maxPageLimit
	offset = getIntParam(r, "offset", 0, &zero, nil)
	limit = getIntParam(r, "limit", defaultPageLimit, &zero, &maxLimit)
	return offset, limit
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondWithError logs the error and sends a JSON error response
// Use this to avoid exposing internal errors while still logging them
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Printf("API Error [%d]: %s - %v", code, message, err)
	} else {
		log.Printf("API Error [%d]: %s", code, message)
	}
	respondJSON(w, code, map[string]string{"error": message})
}

// respondRepoError maps repository errors onto HTTP statuses: NotFoundError
// becomes 404, ValidationError 400, anything else a hidden 500.
func respondRepoError(w http.ResponseWriter, err error) {
	var validationErr *database.ValidationError
	switch {
	case database.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, validationErr.Error(), nil)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// decodeBody decodes a JSON request body into dest
func decodeBody(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// setupSSE configures the response writer for Server-Sent Events streaming
// Returns the Flusher if supported, or an error if not
func setupSSE(w http.ResponseWriter) (http.Flusher, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return flusher, true
}
