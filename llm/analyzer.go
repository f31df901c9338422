package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-trader-platform/cache"
	models "ai-trader-platform/database/models_pkg"
	"ai-trader-platform/database/types"
)

// Prompt sizing limits
const (
	maxTradesInPrompt = 20
	maxPromptWords    = 250
	analysisCacheTTL  = 15 * time.Minute
	analysisCooldown  = time.Minute
)

// ErrCooldown is returned when a portfolio was analyzed too recently.
var ErrCooldown = fmt.Errorf("analysis cooldown active")

// Analyzer produces AI commentary on a portfolio's current state. Results
// are cached per (portfolio, holdings-hash) so an unchanged portfolio never
// triggers a second model call.
type Analyzer struct {
	client *Client
	cache  *cache.AnalysisCache
}

// NewAnalyzer creates a portfolio analyzer. cache may wrap a nil Redis
// client; caching is skipped then.
func NewAnalyzer(client *Client, analysisCache *cache.AnalysisCache) *Analyzer {
	return &Analyzer{client: client, cache: analysisCache}
}

// AnalyzePortfolio returns an AI assessment of the portfolio. Recent trades
// give the model behavioral context; the slice may be empty.
func (a *Analyzer) AnalyzePortfolio(ctx context.Context, portfolio *models.Portfolio, trades []models.Trade) (string, error) {
	hash := cache.GenerateDataHash(portfolio.Holdings)

	if cached, ok := a.cache.Get(ctx, portfolio.ID, hash); ok {
		return cached, nil
	}
	if a.cache.IsInCooldown(ctx, portfolio.ID) {
		return "", ErrCooldown
	}

	prompt := FormatPortfolioPrompt(portfolio, trades)
	analysis, err := a.client.Analyze(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("portfolio analysis: %w", err)
	}

	if err := a.cache.Set(ctx, portfolio.ID, hash, analysis, analysisCacheTTL); err != nil {
		log.Printf("⚠️  Failed to cache analysis for portfolio %d: %v", portfolio.ID, err)
	}
	if err := a.cache.SetCooldown(ctx, portfolio.ID, analysisCooldown); err != nil {
		log.Printf("⚠️  Failed to set analysis cooldown for portfolio %d: %v", portfolio.ID, err)
	}
	return analysis, nil
}

// AnalyzePortfolioStream streams the assessment chunk by chunk. Streamed
// responses bypass the cache.
func (a *Analyzer) AnalyzePortfolioStream(ctx context.Context, portfolio *models.Portfolio, trades []models.Trade, callback StreamCallback) error {
	return a.client.AnalyzeStream(ctx, FormatPortfolioPrompt(portfolio, trades), callback)
}

// FormatPortfolioPrompt renders the portfolio state and recent trades into
// the analysis prompt.
func FormatPortfolioPrompt(portfolio *models.Portfolio, trades []models.Trade) string {
	var sb strings.Builder
	sb.Grow(1024 + len(trades)*120)

	sb.WriteString(fmt.Sprintf("Portfolio: %s\n", portfolio.Name))
	sb.WriteString(fmt.Sprintf("Initial capital: $%.2f\n", portfolio.InitialCash))
	sb.WriteString(fmt.Sprintf("Current cash: $%.2f\n", portfolio.CurrentCash))
	sb.WriteString(fmt.Sprintf("Total value: $%.2f (return %.2f%%)\n", portfolio.TotalValue, portfolio.TotalReturnPct))
	if portfolio.MaxDrawdown != 0 {
		sb.WriteString(fmt.Sprintf("Max drawdown: %.2f%%\n", portfolio.MaxDrawdown))
	}

	sb.WriteString("\nHoldings:\n")
	symbols := portfolio.Holdings.Symbols()
	if len(symbols) == 0 {
		sb.WriteString("  (all cash)\n")
	}
	for _, symbol := range symbols {
		sb.WriteString(fmt.Sprintf("  - %s: %.4f shares\n", symbol, portfolio.Holdings[symbol]))
	}
	if cash := portfolio.Holdings.Cash(); cash > 0 {
		sb.WriteString(fmt.Sprintf("  - %s: $%.2f\n", types.CashKey, cash))
	}

	if len(trades) > 0 {
		sb.WriteString("\nRecent trades (newest first):\n")
		for i, t := range trades {
			if i >= maxTradesInPrompt {
				break
			}
			when := t.CreatedAt.Format("2006-01-02")
			if t.ExecutedAt != nil {
				when = t.ExecutedAt.Format("2006-01-02")
			}
			sb.WriteString(fmt.Sprintf("  %d. %s %s %.4f @ $%.2f on %s (%s)\n",
				i+1, strings.ToUpper(t.TradeType), t.Symbol, t.Quantity, t.Price, when, t.Status))
			if t.AIReasoning != "" {
				sb.WriteString(fmt.Sprintf("     reasoning: %s\n", truncate(t.AIReasoning, 120)))
			}
		}
	}

	sb.WriteString("\nTasks:\n")
	sb.WriteString("1. Assess the allocation: concentration, cash drag, diversification.\n")
	sb.WriteString("2. Evaluate recent trading behavior against the stated reasoning.\n")
	sb.WriteString("3. Name the single biggest risk in this portfolio right now.\n")
	sb.WriteString(fmt.Sprintf("\nAnswer in at most %d words.", maxPromptWords))

	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
