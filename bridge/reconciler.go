package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	models "ai-trader-platform/database/models_pkg"
	"ai-trader-platform/database/types"
)

// Sync result statuses. Missing or empty snapshot data is a benign
// "no_data" outcome, not an error.
const (
	SyncSuccess = "success"
	SyncNoData  = "no_data"
)

// PriceProvider is the external price-lookup collaborator.
type PriceProvider interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// ReconcilerStore is the persistence surface the reconciler needs.
// Satisfied by *database.Repository.
type ReconcilerStore interface {
	Portfolio(ctx context.Context, id int64) (*models.Portfolio, error)
	SavePortfolioValuation(ctx context.Context, p *models.Portfolio) error
	TradeExists(ctx context.Context, portfolioID int64, symbol string, executedAt time.Time, brokerTradeID string) (bool, error)
	InsertTrade(ctx context.Context, trade *models.Trade) error
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Status       string         `json:"status"`
	TotalValue   float64        `json:"total_value,omitempty"`
	Holdings     types.Holdings `json:"holdings,omitempty"`
	TradesSynced int            `json:"trades_synced"`
}

// positionSnapshot is one line of the agent's position.jsonl file. The
// chronologically last line is authoritative for current holdings.
type positionSnapshot struct {
	Timestamp string             `json:"timestamp"`
	Positions map[string]float64 `json:"positions"`
}

// tradeLogRecord is one line of the agent's append-only trade log.
type tradeLogRecord struct {
	TradeID    string   `json:"trade_id,omitempty"`
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"` // buy or sell
	Quantity   float64  `json:"quantity"`
	Price      float64  `json:"price"`
	Total      float64  `json:"total,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// Reconciler imports the snapshot and trade logs the external agent
// processes write into persisted portfolio and trade rows. Existing trade
// rows are never deleted or mutated; reconciliation only inserts.
type Reconciler struct {
	store   ReconcilerStore
	prices  PriceProvider
	dataDir string
}

// NewReconciler creates a log reconciler rooted at dataDir.
func NewReconciler(store ReconcilerStore, prices PriceProvider, dataDir string) *Reconciler {
	return &Reconciler{store: store, prices: prices, dataDir: dataDir}
}

// PortfolioDataDir returns the stable per-portfolio data directory.
func (r *Reconciler) PortfolioDataDir(portfolioID int64) string {
	return filepath.Join(r.dataDir, fmt.Sprintf("portfolio-%d", portfolioID))
}

// Reconcile imports the newest position snapshot and any unseen trade log
// records for one portfolio. Returns a no-data result when the snapshot
// file is absent or empty; the portfolio is left untouched in that case.
func (r *Reconciler) Reconcile(ctx context.Context, portfolioID int64) (*SyncResult, error) {
	portfolio, err := r.store.Portfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	dir := r.PortfolioDataDir(portfolioID)
	snapshots, err := readSnapshots(filepath.Join(dir, "position.jsonl"))
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return &SyncResult{Status: SyncNoData}, nil
	}

	latest := snapshots[len(snapshots)-1]
	holdings := make(types.Holdings, len(latest.Positions))
	for symbol, qty := range latest.Positions {
		holdings[symbol] = qty
	}

	portfolio.Holdings = holdings
	portfolio.CurrentCash = holdings.Cash()

	total := portfolio.CurrentCash
	for _, symbol := range holdings.Symbols() {
		price, err := r.prices.Price(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("price lookup for %s: %w", symbol, err)
		}
		total += holdings[symbol] * price
	}
	portfolio.TotalValue = total
	portfolio.UpdatePerformanceMetrics()

	if err := r.store.SavePortfolioValuation(ctx, portfolio); err != nil {
		return nil, err
	}

	synced, err := r.syncTrades(ctx, portfolioID, dir)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		Status:       SyncSuccess,
		TotalValue:   total,
		Holdings:     holdings,
		TradesSynced: synced,
	}, nil
}

// syncTrades inserts every trade log record not already present in storage.
// Match key: explicit trade id when the record carries one, otherwise
// (symbol, executed timestamp).
func (r *Reconciler) syncTrades(ctx context.Context, portfolioID int64, dir string) (int, error) {
	logFiles, err := filepath.Glob(filepath.Join(dir, "trades*.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("glob trade logs: %w", err)
	}
	sort.Strings(logFiles)

	synced := 0
	for _, path := range logFiles {
		records, err := readTradeLog(path)
		if err != nil {
			return synced, err
		}

		for _, rec := range records {
			executedAt, err := parseLogTimestamp(rec.Timestamp)
			if err != nil {
				log.Printf("⚠️  Skipping trade record with bad timestamp %q in %s", rec.Timestamp, path)
				continue
			}

			exists, err := r.store.TradeExists(ctx, portfolioID, rec.Symbol, executedAt, rec.TradeID)
			if err != nil {
				return synced, err
			}
			if exists {
				continue
			}

			total := rec.Total
			if total == 0 {
				total = rec.Quantity * rec.Price
			}
			execPrice := rec.Price
			trade := &models.Trade{
				PortfolioID:     portfolioID,
				Symbol:          rec.Symbol,
				TradeType:       strings.ToLower(rec.Action),
				Quantity:        rec.Quantity,
				Price:           rec.Price,
				TotalValue:      total,
				Status:          models.TradeStatusExecuted,
				ExecutionPrice:  &execPrice,
				AIReasoning:     rec.Reasoning,
				ConfidenceScore: rec.Confidence,
				ExecutedAt:      &executedAt,
				BrokerTradeID:   rec.TradeID,
			}
			if err := r.store.InsertTrade(ctx, trade); err != nil {
				return synced, err
			}
			synced++
		}
	}
	return synced, nil
}

// readSnapshots parses a position.jsonl file. A missing file yields an
// empty slice; a torn trailing line (the agent may be mid-append) is
// skipped rather than treated as corruption.
func readSnapshots(path string) ([]positionSnapshot, error) {
	lines, err := readJSONLines(path)
	if err != nil {
		return nil, err
	}

	snapshots := make([]positionSnapshot, 0, len(lines))
	for _, line := range lines {
		var snap positionSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func readTradeLog(path string) ([]tradeLogRecord, error) {
	lines, err := readJSONLines(path)
	if err != nil {
		return nil, err
	}

	records := make([]tradeLogRecord, 0, len(lines))
	for _, line := range lines {
		var rec tradeLogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Symbol == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func readJSONLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// parseLogTimestamp accepts both RFC3339 and the executable's zone-less
// second-granularity format.
func parseLogTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
