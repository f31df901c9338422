package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "ai-trader-platform/database/models_pkg"
)

func TestMaterializerWrite(t *testing.T) {
	mat := &Materializer{
		ConfigDir:       t.TempDir(),
		ModelAPIKey:     "sk-test",
		ModelAPIBase:    "https://api.example.com/v1",
		AlphaVantageKey: "av-test",
	}

	cfg := &models.AgentConfig{
		ID:                   7,
		ModelName:            "deepseek-chat",
		StrategyType:         "momentum",
		RiskLevel:            0.7,
		MaxPositionSize:      0.2,
		StopLossPct:          0.05,
		TakeProfitPct:        0.15,
		MaxDailyTrades:       10,
		UseTechnicalAnalysis: true,
		LiveTrading:          false,
	}
	portfolio := &models.Portfolio{ID: 3, CurrentCash: 2500, Market: "us"}

	path, err := mat.Write(cfg, portfolio)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mat.ConfigDir, "agent-7.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc agentConfigDoc
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Len(t, doc.Models, 1)
	assert.Equal(t, "deepseek-chat", doc.Models[0].BaseModel)
	assert.Equal(t, "sk-test", doc.Models[0].APIKey)
	assert.Equal(t, 10, doc.Models[0].MaxDailyRequests)
	assert.True(t, doc.Models[0].Enabled)

	assert.Equal(t, int64(3), doc.Trading.PortfolioID)
	assert.Equal(t, float64(2500), doc.Trading.InitialCash)
	assert.Equal(t, "momentum", doc.Trading.Strategy)
	assert.Equal(t, 0.7, doc.Trading.RiskLevel)

	assert.Equal(t, "us", doc.DataSources.Market)
	assert.Equal(t, "av-test", doc.DataSources.AlphaVantageKey)
	assert.True(t, doc.Execution.PaperTrading)
}

func TestMaterializerOverwrites(t *testing.T) {
	mat := &Materializer{ConfigDir: t.TempDir()}
	cfg := &models.AgentConfig{ID: 7, ModelName: "deepseek-chat", StrategyType: "balanced"}
	portfolio := &models.Portfolio{ID: 3, CurrentCash: 1000}

	path1, err := mat.Write(cfg, portfolio)
	require.NoError(t, err)

	portfolio.CurrentCash = 4200
	path2, err := mat.Write(cfg, portfolio)
	require.NoError(t, err)
	assert.Equal(t, path1, path2, "config path must be stable per agent")

	var doc agentConfigDoc
	data, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(4200), doc.Trading.InitialCash)
}

func TestMaterializerMarketFallback(t *testing.T) {
	mat := &Materializer{ConfigDir: t.TempDir()}

	tests := []struct {
		name            string
		portfolioMarket string
		agentMarket     string
		want            string
	}{
		{"portfolio wins", "cn", "us", "cn"},
		{"agent fallback", "", "cn", "cn"},
		{"default us", "", "", "us"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &models.AgentConfig{ID: 7, Market: tc.agentMarket}
			portfolio := &models.Portfolio{ID: 3, Market: tc.portfolioMarket}

			path, err := mat.Write(cfg, portfolio)
			require.NoError(t, err)

			var doc agentConfigDoc
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(data, &doc))
			assert.Equal(t, tc.want, doc.DataSources.Market)
		})
	}
}

func TestMaterializerLiveTrading(t *testing.T) {
	mat := &Materializer{ConfigDir: t.TempDir()}
	cfg := &models.AgentConfig{ID: 7, LiveTrading: true}
	portfolio := &models.Portfolio{ID: 3}

	path, err := mat.Write(cfg, portfolio)
	require.NoError(t, err)

	var doc agentConfigDoc
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.False(t, doc.Execution.PaperTrading)
}
