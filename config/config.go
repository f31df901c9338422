package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// HTTP API
	ListenAddr string

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Market data configuration
	MarketData MarketDataConfig

	// Brokerage configuration
	Broker BrokerConfig

	// Agent process configuration
	Agent AgentConfig

	// LLM configuration
	LLM LLMConfig
}

// MarketDataConfig holds the quote API and stream settings
type MarketDataConfig struct {
	BaseURL       string
	StreamURL     string
	StreamEnabled bool
	StreamSymbols []string
	APIKey        string
	Secret        string
}

// BrokerConfig holds brokerage API credentials
type BrokerConfig struct {
	APIKey string
	Secret string
	Paper  bool
}

// AgentConfig holds the trading-agent process bridge settings
type AgentConfig struct {
	// Executable and its invocation
	ExecutablePath string
	ExecutableArgs []string
	WorkDir        string

	// Directories the bridge owns
	ConfigDir string
	DataDir   string
	LogDir    string

	// Monitor loop timing (seconds)
	MonitorIntervalSec int
	MonitorBackoffSec  int

	// Credentials materialized into agent config files
	ModelAPIKey     string
	ModelAPIBase    string
	AlphaVantageKey string
}

// LLMConfig holds LLM service configuration
type LLMConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Model    string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		ListenAddr: getEnvOrDefault("LISTEN_ADDR", ":8080"),

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "ai_trader"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "ai_trader"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "ai_trader123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// Market data configuration
		MarketData: MarketDataConfig{
			BaseURL:       getEnvOrDefault("MARKET_DATA_URL", "https://data.alpaca.markets"),
			StreamURL:     getEnvOrDefault("MARKET_DATA_STREAM_URL", "wss://stream.data.alpaca.markets/v2/iex"),
			StreamEnabled: getEnvOrDefault("MARKET_DATA_STREAM_ENABLED", "false") == "true",
			StreamSymbols: splitCSV(getEnvOrDefault("MARKET_DATA_STREAM_SYMBOLS", "")),
			APIKey:        os.Getenv("MARKET_DATA_API_KEY"),
			Secret:        os.Getenv("MARKET_DATA_API_SECRET"),
		},

		// Brokerage configuration
		Broker: BrokerConfig{
			APIKey: os.Getenv("BROKER_API_KEY"),
			Secret: os.Getenv("BROKER_API_SECRET"),
			Paper:  getEnvOrDefault("BROKER_PAPER", "true") == "true",
		},

		// Agent process configuration
		Agent: AgentConfig{
			ExecutablePath: getEnvOrDefault("AGENT_EXECUTABLE", "trading-agent"),
			ExecutableArgs: splitCSV(getEnvOrDefault("AGENT_ARGS", "")),
			WorkDir:        getEnvOrDefault("AGENT_WORK_DIR", ""),
			ConfigDir:      getEnvOrDefault("AGENT_CONFIG_DIR", "./agent-configs"),
			DataDir:        getEnvOrDefault("AGENT_DATA_DIR", "./agent-data"),
			LogDir:         getEnvOrDefault("AGENT_LOG_DIR", "./agent-logs"),

			MonitorIntervalSec: getEnvInt("AGENT_MONITOR_INTERVAL", 300),
			MonitorBackoffSec:  getEnvInt("AGENT_MONITOR_BACKOFF", 60),

			ModelAPIKey:     os.Getenv("AGENT_MODEL_API_KEY"),
			ModelAPIBase:    getEnvOrDefault("AGENT_MODEL_API_BASE", "https://api.deepseek.com/v1"),
			AlphaVantageKey: os.Getenv("ALPHA_VANTAGE_API_KEY"),
		},

		// LLM configuration
		LLM: LLMConfig{
			Enabled:  getEnvOrDefault("LLM_ENABLED", "false") == "true",
			Endpoint: getEnvOrDefault("LLM_ENDPOINT", "https://api.deepseek.com/v1"),
			APIKey:   getEnvOrDefault("LLM_API_KEY", ""),
			Model:    getEnvOrDefault("LLM_MODEL", "deepseek-chat"),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitCSV splits a comma separated list, trimming blanks
func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
