package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// CashKey is the holdings entry that represents uninvested cash.
const CashKey = "CASH"

// Holdings maps a ticker symbol to a held quantity. The literal key "CASH"
// holds the uninvested cash balance rather than a share count. Stored as a
// JSONB column on portfolios.
type Holdings map[string]float64

// Value implements driver.Valuer for GORM serialization.
func (h Holdings) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal holdings: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for GORM deserialization.
func (h *Holdings) Scan(value interface{}) error {
	if value == nil {
		*h = Holdings{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported holdings column type %T", value)
	}
	if len(data) == 0 {
		*h = Holdings{}
		return nil
	}
	return json.Unmarshal(data, h)
}

// GormDataType tells GORM to use a jsonb column.
func (Holdings) GormDataType() string {
	return "jsonb"
}

// Cash returns the uninvested cash balance.
func (h Holdings) Cash() float64 {
	return h[CashKey]
}

// Symbols returns the held non-cash symbols with positive quantity, sorted
// for deterministic iteration.
func (h Holdings) Symbols() []string {
	symbols := make([]string, 0, len(h))
	for symbol, qty := range h {
		if symbol != CashKey && qty > 0 {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// StringList is a JSON-encoded list of symbols (allowed/excluded lists on
// agent configurations).
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported string list column type %T", value)
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// GormDataType tells GORM to use a jsonb column.
func (StringList) GormDataType() string {
	return "jsonb"
}

// PlatformStats holds aggregate platform counters for the stats endpoint.
type PlatformStats struct {
	TotalUsers        int64   `json:"total_users"`
	ActiveUsers       int64   `json:"active_users"`
	TotalPortfolios   int64   `json:"total_portfolios"`
	RunningAgents     int64   `json:"running_agents"`
	TotalTrades       int64   `json:"total_trades"`
	TradesToday       int64   `json:"trades_today"`
	TotalValueManaged float64 `json:"total_value_managed"`
}

// DailyTradeVolume is one row of the trade-volume-by-day report.
type DailyTradeVolume struct {
	Day        string  `json:"day"`
	TradeCount int64   `json:"trade_count"`
	BuyCount   int64   `json:"buy_count"`
	SellCount  int64   `json:"sell_count"`
	TotalValue float64 `json:"total_value"`
}
