package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "localhost", cfg.DatabaseHost)
	assert.Equal(t, "5432", cfg.DatabasePort)
	assert.Equal(t, "6379", cfg.RedisPort)
	assert.True(t, cfg.Broker.Paper, "paper trading must be the default")
	assert.False(t, cfg.LLM.Enabled)
	assert.False(t, cfg.MarketData.StreamEnabled)
	assert.Equal(t, 300, cfg.Agent.MonitorIntervalSec)
	assert.Equal(t, 60, cfg.Agent.MonitorBackoffSec)
	assert.Equal(t, "./agent-configs", cfg.Agent.ConfigDir)
	assert.Equal(t, "./agent-data", cfg.Agent.DataDir)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("AGENT_MONITOR_INTERVAL", "30")
	t.Setenv("BROKER_PAPER", "false")
	t.Setenv("LLM_ENABLED", "true")
	t.Setenv("MARKET_DATA_STREAM_SYMBOLS", "AAPL, MSFT ,NVDA")

	cfg := LoadFromEnv()

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "db.internal", cfg.DatabaseHost)
	assert.Equal(t, 30, cfg.Agent.MonitorIntervalSec)
	assert.False(t, cfg.Broker.Paper)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, cfg.MarketData.StreamSymbols)
}

func TestGetEnvIntBadValue(t *testing.T) {
	t.Setenv("AGENT_MONITOR_INTERVAL", "soon")

	cfg := LoadFromEnv()
	assert.Equal(t, 300, cfg.Agent.MonitorIntervalSec)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b"}, splitCSV("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a , ,b, "))
}
