// Package models defines the core data types shared across the risk,
// backtest and walk-forward packages.
package models

import "time"

// Side identifies the direction of a position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a recognized side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ExitReason identifies how a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TP"
	ExitStopLoss   ExitReason = "SL"
	ExitManual     ExitReason = "MANUAL"
)

// Valid reports whether r is a recognized exit reason.
func (r ExitReason) Valid() bool {
	return r == ExitTakeProfit || r == ExitStopLoss || r == ExitManual
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Position is an open trade registered with the risk manager.
type Position struct {
	OrderID      string    `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	EntryPrice   float64   `json:"entry_price"`
	PositionSize float64   `json:"position_size"`
	TakeProfit   float64   `json:"take_profit"`
	StopLoss     float64   `json:"stop_loss"`
	OpenedAt     time.Time `json:"opened_at"`
}

// ClosedTrade is the immutable record of a completed trade.
// Profit is net of entry and exit fees.
type ClosedTrade struct {
	OrderID      string     `json:"order_id" db:"order_id"`
	Symbol       string     `json:"symbol" db:"symbol"`
	Side         Side       `json:"side" db:"side"`
	EntryPrice   float64    `json:"entry_price" db:"entry_price"`
	ExitPrice    float64    `json:"exit_price" db:"exit_price"`
	PositionSize float64    `json:"position_size" db:"position_size"`
	Profit       float64    `json:"profit" db:"profit"`
	Success      bool       `json:"success" db:"success"`
	ExitReason   ExitReason `json:"exit_reason" db:"exit_reason"`
	OpenedAt     time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt     time.Time  `json:"closed_at" db:"closed_at"`
}

// DailyStat aggregates trading activity for one calendar day.
// Date is an ISO date string (YYYY-MM-DD).
type DailyStat struct {
	Date              string  `json:"date"`
	TotalProfit       float64 `json:"total_profit"`
	TradeCount        int     `json:"trade_count"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

// DayKey formats t as the ISO date used to bucket daily statistics.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
