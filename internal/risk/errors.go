package risk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quantforge/stratlab/internal/models"
)

// ErrTradeNotFound is returned when a close request names an order id
// with no registered open position.
var ErrTradeNotFound = errors.New("trade not found")

// ValidationError reports a malformed trade parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trade parameter: %s %s", e.Field, e.Reason)
}

// ParameterInconsistencyError reports stop-loss and take-profit levels
// that would guarantee a loss for the requested side.
type ParameterInconsistencyError struct {
	Side       models.Side
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
}

func (e *ParameterInconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent levels for %s: entry=%.8f sl=%.8f tp=%.8f", e.Side, e.EntryPrice, e.StopLoss, e.TakeProfit)
}

// TradingNotAllowedError reports that a circuit breaker is active.
type TradingNotAllowedError struct {
	ViolatedLimits []string
	Reasons        []string
}

func (e *TradingNotAllowedError) Error() string {
	return fmt.Sprintf("trading halted: %s", strings.Join(e.ViolatedLimits, ", "))
}

// ConcurrencyLimitError reports that the open-position cap is reached.
type ConcurrencyLimitError struct {
	Active int
	Limit  int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("concurrent trade limit reached: %d of %d positions open", e.Active, e.Limit)
}

// UnachievableRiskRewardError reports that fees consume the entire loss
// budget, leaving no room for a price-based stop.
type UnachievableRiskRewardError struct {
	RequiredLossPct float64
	FeePct          float64
}

func (e *UnachievableRiskRewardError) Error() string {
	return fmt.Sprintf("risk/reward unachievable: fees %.4f%% exceed loss budget %.4f%%", e.FeePct*100, e.RequiredLossPct*100)
}

// InsufficientDataError reports that a computation received fewer data
// points than it needs.
type InsufficientDataError struct {
	What string
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d, need %d", e.What, e.Have, e.Need)
}
