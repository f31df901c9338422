package llm

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "ai-trader-platform/database/models_pkg"
	"ai-trader-platform/database/types"
)

func TestFormatPortfolioPrompt(t *testing.T) {
	executedAt := time.Date(2026, 8, 27, 14, 30, 0, 0, time.UTC)
	portfolio := &models.Portfolio{
		Name:           "growth",
		InitialCash:    10000,
		CurrentCash:    250,
		TotalValue:     12565,
		TotalReturnPct: 25.65,
		Holdings: types.Holdings{
			"AAPL":        10,
			types.CashKey: 250,
		},
	}
	trades := []models.Trade{
		{
			Symbol:      "AAPL",
			TradeType:   "buy",
			Quantity:    10,
			Price:       150,
			Status:      models.TradeStatusExecuted,
			ExecutedAt:  &executedAt,
			AIReasoning: strings.Repeat("x", 200),
		},
	}

	prompt := FormatPortfolioPrompt(portfolio, trades)

	assert.Contains(t, prompt, "Portfolio: growth")
	assert.Contains(t, prompt, "  - AAPL: 10.0000 shares")
	assert.Contains(t, prompt, "  - CASH: $250.00")
	assert.Contains(t, prompt, "  1. BUY AAPL 10.0000 @ $150.00 on 2026-08-27 (executed)")
	assert.Contains(t, prompt, strings.Repeat("x", 120)+"...")
	assert.NotContains(t, prompt, strings.Repeat("x", 121))
	assert.Contains(t, prompt, "Answer in at most 250 words.")
}

func TestFormatPortfolioPromptCapsTrades(t *testing.T) {
	portfolio := &models.Portfolio{Name: "busy", Holdings: types.Holdings{}}

	trades := make([]models.Trade, 30)
	for i := range trades {
		trades[i] = models.Trade{
			Symbol:    fmt.Sprintf("SYM%d", i),
			TradeType: "buy",
			Quantity:  1,
			Price:     10,
			Status:    models.TradeStatusPending,
		}
	}

	prompt := FormatPortfolioPrompt(portfolio, trades)

	require.Contains(t, prompt, "  20. ")
	assert.NotContains(t, prompt, "  21. ")
}
