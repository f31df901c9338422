package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver for the reporting pool

	"ai-trader-platform/database/types"
)

// ReportDB is a raw database/sql pool reserved for aggregate reporting
// queries. Keeping reports off the ORM connection avoids starving
// request-path queries when a dashboard aggregate scans the trades table.
type ReportDB struct {
	conn *sql.DB
}

// NewReportDB opens the reporting connection pool
func NewReportDB(host, port, user, password, dbname string) (*ReportDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open reporting database: %w", err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping reporting database: %w", err)
	}

	return &ReportDB{conn: conn}, nil
}

// Close closes the reporting pool
func (r *ReportDB) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// PlatformStats returns the aggregate counters shown on the operator
// dashboard.
func (r *ReportDB) PlatformStats(ctx context.Context) (*types.PlatformStats, error) {
	stats := &types.PlatformStats{}

	err := r.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_active),
			(SELECT COUNT(*) FROM portfolios),
			(SELECT COUNT(*) FROM agent_configs WHERE is_running),
			(SELECT COUNT(*) FROM trades),
			(SELECT COUNT(*) FROM trades WHERE created_at >= CURRENT_DATE),
			(SELECT COALESCE(SUM(total_value), 0) FROM portfolios WHERE is_active)
	`).Scan(
		&stats.TotalUsers,
		&stats.ActiveUsers,
		&stats.TotalPortfolios,
		&stats.RunningAgents,
		&stats.TotalTrades,
		&stats.TradesToday,
		&stats.TotalValueManaged,
	)
	if err != nil {
		return nil, &DBError{Operation: "PlatformStats", Err: err}
	}

	return stats, nil
}

// DailyTradeVolume returns per-day trade counts and value over the last
// `days` days, newest first.
func (r *ReportDB) DailyTradeVolume(ctx context.Context, days int) ([]types.DailyTradeVolume, error) {
	if days <= 0 {
		days = 30
	}

	rows, err := r.conn.QueryContext(ctx, `
		SELECT
			TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE trade_type = 'buy'),
			COUNT(*) FILTER (WHERE trade_type = 'sell'),
			COALESCE(SUM(total_value), 0)
		FROM trades
		WHERE created_at >= CURRENT_DATE - $1::int
		GROUP BY DATE(created_at)
		ORDER BY DATE(created_at) DESC
	`, days)
	if err != nil {
		return nil, &DBError{Operation: "DailyTradeVolume", Err: err}
	}
	defer rows.Close()

	var result []types.DailyTradeVolume
	for rows.Next() {
		var row types.DailyTradeVolume
		if err := rows.Scan(&row.Day, &row.TradeCount, &row.BuyCount, &row.SellCount, &row.TotalValue); err != nil {
			return nil, &DBError{Operation: "DailyTradeVolume scan", Err: err}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
