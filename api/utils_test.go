package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIDParam(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/agents/7", nil)
	r.SetPathValue("id", "7")

	id, err := getIDParam(r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestGetIDParamInvalid(t *testing.T) {
	for _, raw := range []string{"", "abc", "-3", "0"} {
		r := httptest.NewRequest("GET", "/api/agents/x", nil)
		r.SetPathValue("id", raw)

		_, err := getIDParam(r)
		assert.Error(t, err, "id %q should be rejected", raw)
	}
}

func TestGetIntParam(t *testing.T) {
	one := 1
	hundred := 100

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing uses default", "", 30},
		{"valid value", "days=7", 7},
		{"non-numeric uses default", "days=week", 30},
		{"below min uses default", "days=0", 30},
		{"above max uses default", "days=999", 30},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/stats/volume?"+tc.query, nil)
			got := getIntParam(r, "days", 30, &one, &hundred)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetInt64Param(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/trades?portfolio_id=42", nil)
	assert.Equal(t, int64(42), getInt64Param(r, "portfolio_id"))

	r = httptest.NewRequest("GET", "/api/trades", nil)
	assert.Zero(t, getInt64Param(r, "portfolio_id"))
}

func TestPageParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/users?offset=10&limit=25", nil)
	offset, limit := pageParams(r)
	assert.Equal(t, 10, offset)
	assert.Equal(t, 25, limit)

	// Oversized limit falls back to the default.
	r = httptest.NewRequest("GET", "/api/users?limit=99999", nil)
	_, limit = pageParams(r)
	assert.Equal(t, defaultPageLimit, limit)
}

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()
	respondJSON(w, 201, map[string]string{"status": "created"})

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"created"}`, w.Body.String())
}
