// Package notify decouples trade lifecycle announcements from the risk
// manager. Live and paper runs log them; backtest runs use Nop.
package notify

import (
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/models"
)

// Notifier receives trade lifecycle events.
type Notifier interface {
	TradeOpened(pos models.Position)
	TradeClosed(trade models.ClosedTrade, balance float64)
	TradingHalted(reasons []string)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	log *logging.Logger
}

func NewLogNotifier(log *logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) TradeOpened(pos models.Position) {
	n.log.WithFields(logging.Fields{
		"order_id":      pos.OrderID,
		"symbol":        pos.Symbol,
		"side":          pos.Side,
		"entry_price":   pos.EntryPrice,
		"position_size": pos.PositionSize,
		"take_profit":   pos.TakeProfit,
		"stop_loss":     pos.StopLoss,
	}).Info("trade opened")
}

func (n *LogNotifier) TradeClosed(trade models.ClosedTrade, balance float64) {
	n.log.WithFields(logging.Fields{
		"order_id":    trade.OrderID,
		"exit_reason": trade.ExitReason,
		"exit_price":  trade.ExitPrice,
		"profit":      trade.Profit,
		"success":     trade.Success,
		"balance":     balance,
	}).Info("trade closed")
}

func (n *LogNotifier) TradingHalted(reasons []string) {
	n.log.WithField("reasons", reasons).Warn("trading halted by circuit breaker")
}

// Nop discards all events.
type Nop struct{}

func (Nop) TradeOpened(models.Position)             {}
func (Nop) TradeClosed(models.ClosedTrade, float64) {}
func (Nop) TradingHalted([]string)                  {}
