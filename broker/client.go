// Package broker is the REST client for the brokerage API used for live
// trading: account state, positions, order submission and the market clock.
package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Base URLs for the two trading environments.
const (
	paperBaseURL = "https://paper-api.alpaca.markets"
	liveBaseURL  = "https://api.alpaca.markets"
)

// Order sides and statuses as the brokerage reports them.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderFilled   = "filled"
	OrderCanceled = "canceled"
	OrderRejected = "rejected"
)

// Account is the brokerage account snapshot.
type Account struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Currency       string `json:"currency"`
	Cash           string `json:"cash"`
	BuyingPower    string `json:"buying_power"`
	Equity         string `json:"equity"`
	PortfolioVal   string `json:"portfolio_value"`
	TradingBlocked bool   `json:"trading_blocked"`
}

// CashValue parses the account's cash balance.
func (a *Account) CashValue() float64 {
	v, _ := strconv.ParseFloat(a.Cash, 64)
	return v
}

// EquityValue parses the account's total equity.
func (a *Account) EquityValue() float64 {
	v, _ := strconv.ParseFloat(a.Equity, 64)
	return v
}

// Position is one open brokerage position.
type Position struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	MarketValue   string `json:"market_value"`
	CurrentPrice  string `json:"current_price"`
	UnrealizedPL  string `json:"unrealized_pl"`
}

// Quantity parses the position size.
func (p *Position) Quantity() float64 {
	v, _ := strconv.ParseFloat(p.Qty, 64)
	return v
}

// Order is a brokerage order record.
type Order struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Qty            string     `json:"qty"`
	Type           string     `json:"type"`
	TimeInForce    string     `json:"time_in_force"`
	Status         string     `json:"status"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice *string    `json:"filled_avg_price"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
}

// FilledPrice parses the average fill price, zero when unfilled.
func (o *Order) FilledPrice() float64 {
	if o.FilledAvgPrice == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(*o.FilledAvgPrice, 64)
	return v
}

// Clock is the market clock.
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client is the brokerage REST client. Safe for concurrent use.
type Client struct {
	http *resty.Client
}

// NewClient creates a brokerage client. paper selects the paper-trading
// environment; live keys never touch the paper host and vice versa.
func NewClient(apiKey, secret string, paper bool) *Client {
	baseURL := liveBaseURL
	if paper {
		baseURL = paperBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("APCA-API-KEY-ID", apiKey).
		SetHeader("APCA-API-SECRET-KEY", secret)

	return &Client{http: client}
}

// Account fetches the account snapshot.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.get(ctx, "/v2/account", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Positions lists all open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.get(ctx, "/v2/positions", &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// Position fetches one open position. Returns nil when the symbol has no
// open position.
func (c *Client) Position(ctx context.Context, symbol string) (*Position, error) {
	var position Position
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&position).
		SetError(&apiError{}).
		SetPathParam("symbol", strings.ToUpper(symbol)).
		Get("/v2/positions/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", symbol, err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, respError(resp)
	}
	return &position, nil
}

// SubmitMarketOrder places a day market order. The generated client order id
// makes retried submissions idempotent on the brokerage side.
func (c *Client) SubmitMarketOrder(ctx context.Context, symbol, side string, qty float64) (*Order, error) {
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("invalid order side %q", side)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("invalid order quantity %v", qty)
	}

	req := orderRequest{
		Symbol:        strings.ToUpper(symbol),
		Qty:           strconv.FormatFloat(qty, 'f', -1, 64),
		Side:          side,
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: uuid.NewString(),
	}

	var order Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&order).
		SetError(&apiError{}).
		Post("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	if resp.IsError() {
		return nil, respError(resp)
	}
	return &order, nil
}

// Order fetches one order by id.
func (c *Client) Order(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.get(ctx, "/v2/orders/"+orderID, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Orders lists recent orders, newest first.
func (c *Client) Orders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}

	var orders []Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&orders).
		SetError(&apiError{}).
		SetQueryParams(map[string]string{
			"status":    "all",
			"limit":     strconv.Itoa(limit),
			"direction": "desc",
		}).
		Get("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if resp.IsError() {
		return nil, respError(resp)
	}
	return orders, nil
}

// ClosePosition liquidates one position at market.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	var order Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&order).
		SetError(&apiError{}).
		SetPathParam("symbol", strings.ToUpper(symbol)).
		Delete("/v2/positions/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("close position %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, respError(resp)
	}
	return &order, nil
}

// CloseAllPositions liquidates every open position at market. Returns the
// symbols the brokerage accepted liquidation orders for.
func (c *Client) CloseAllPositions(ctx context.Context) ([]string, error) {
	var results []struct {
		Symbol string `json:"symbol"`
		Status int    `json:"status"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&results).
		SetError(&apiError{}).
		Delete("/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("close all positions: %w", err)
	}
	if resp.IsError() {
		return nil, respError(resp)
	}

	var closed []string
	for _, r := range results {
		if r.Status >= 200 && r.Status < 300 {
			closed = append(closed, r.Symbol)
		}
	}
	return closed, nil
}

// Clock fetches the market clock.
func (c *Client) Clock(ctx context.Context) (*Clock, error) {
	var clock Clock
	if err := c.get(ctx, "/v2/clock", &clock); err != nil {
		return nil, err
	}
	return &clock, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiError{}).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return respError(resp)
	}
	return nil
}

func respError(resp *resty.Response) error {
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Message != "" {
		return fmt.Errorf("brokerage API error %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return fmt.Errorf("brokerage API error %d: %s", resp.StatusCode(), resp.String())
}
