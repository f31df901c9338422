package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	models "ai-trader-platform/database/models_pkg"
)

// Materializer turns a stored agent configuration plus its linked portfolio
// into the JSON configuration file the trading-agent executable consumes.
// Pure function of the two records; the only side effect is one file write,
// overwriting any prior file for the same agent.
type Materializer struct {
	ConfigDir string

	// Credentials passed through to the agent process.
	ModelAPIKey     string
	ModelAPIBase    string
	AlphaVantageKey string
}

// agentConfigDoc is the on-disk configuration schema of the trading-agent
// executable.
type agentConfigDoc struct {
	Models      []modelEntry   `json:"models"`
	Trading     tradingSection `json:"trading"`
	DataSources dataSources    `json:"data_sources"`
	Execution   execSection    `json:"execution"`
}

type modelEntry struct {
	Name             string `json:"name"`
	BaseModel        string `json:"basemodel"`
	Signature        string `json:"signature"`
	MaxDailyRequests int    `json:"max_daily_requests"`
	APIKey           string `json:"api_key"`
	APIBase          string `json:"api_base"`
	Enabled          bool   `json:"enabled"`
}

type tradingSection struct {
	PortfolioID          int64   `json:"portfolio_id"`
	InitialCash          float64 `json:"initial_cash"`
	RiskLevel            float64 `json:"risk_level"`
	Strategy             string  `json:"strategy"`
	MaxPositionSize      float64 `json:"max_position_size"`
	StopLossPct          float64 `json:"stop_loss_pct"`
	TakeProfitPct        float64 `json:"take_profit_pct"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
	UseTechnicalAnalysis bool    `json:"use_technical_analysis"`
	UseSentimentAnalysis bool    `json:"use_sentiment_analysis"`
	UseNewsAnalysis      bool    `json:"use_news_analysis"`
}

type dataSources struct {
	AlphaVantageKey string `json:"alpha_vantage_key"`
	Market          string `json:"market"` // us or cn
}

type execSection struct {
	PaperTrading bool   `json:"paper_trading"`
	LoggingLevel string `json:"logging_level"`
}

// ConfigPath returns the stable config file path for an agent id.
func (m *Materializer) ConfigPath(agentID int64) string {
	return filepath.Join(m.ConfigDir, fmt.Sprintf("agent-%d.json", agentID))
}

// Write materializes the configuration file and returns its path. The
// portfolio's current cash becomes the agent's initial capital; the market
// selector follows the portfolio, falling back to the agent config.
func (m *Materializer) Write(cfg *models.AgentConfig, portfolio *models.Portfolio) (string, error) {
	market := portfolio.Market
	if market == "" {
		market = cfg.Market
	}
	if market == "" {
		market = "us"
	}

	maxRequests := cfg.MaxDailyTrades
	if maxRequests <= 0 {
		maxRequests = 50
	}

	doc := agentConfigDoc{
		Models: []modelEntry{
			{
				Name:             fmt.Sprintf("%s-%d", cfg.ModelName, cfg.ID),
				BaseModel:        cfg.ModelName,
				Signature:        fmt.Sprintf("api-agent-%d", cfg.ID),
				MaxDailyRequests: maxRequests,
				APIKey:           m.ModelAPIKey,
				APIBase:          m.ModelAPIBase,
				Enabled:          true,
			},
		},
		Trading: tradingSection{
			PortfolioID:          portfolio.ID,
			InitialCash:          portfolio.CurrentCash,
			RiskLevel:            cfg.RiskLevel,
			Strategy:             cfg.StrategyType,
			MaxPositionSize:      cfg.MaxPositionSize,
			StopLossPct:          cfg.StopLossPct,
			TakeProfitPct:        cfg.TakeProfitPct,
			MaxDailyTrades:       cfg.MaxDailyTrades,
			UseTechnicalAnalysis: cfg.UseTechnicalAnalysis,
			UseSentimentAnalysis: cfg.UseSentimentAnalysis,
			UseNewsAnalysis:      cfg.UseNewsAnalysis,
		},
		DataSources: dataSources{
			AlphaVantageKey: m.AlphaVantageKey,
			Market:          market,
		},
		Execution: execSection{
			PaperTrading: !cfg.LiveTrading,
			LoggingLevel: "INFO",
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal agent %d config: %w", cfg.ID, err)
	}

	if err := os.MkdirAll(m.ConfigDir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	path := m.ConfigPath(cfg.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write agent %d config: %w", cfg.ID, err)
	}
	return path, nil
}
