package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/models"
	"github.com/quantforge/stratlab/internal/notify"
)

// Mode tags the manager's execution context. It prefixes order ids so
// records from different contexts never collide.
type Mode string

const (
	ModeLive     Mode = "live"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
)

// TradeRequest is a proposed entry submitted to the manager.
// TakeProfit and StopLoss are optional; zero means "not provided".
type TradeRequest struct {
	Symbol     string
	Side       models.Side
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
	Timestamp  time.Time
}

// Manager owns the trade lifecycle for one run: validation, breaker
// checks, sizing, position registry and balance accounting. All state
// is per-instance; independent runs never share anything.
type Manager struct {
	mode     Mode
	cfg      *config.Config
	log      *logging.Logger
	calc     *Calculator
	tracker  *Tracker
	notifier notify.Notifier

	balance  float64
	active   map[string]*models.Position
	orderSeq int64

	now func() time.Time
}

func NewManager(mode Mode, cfg *config.Config, log *logging.Logger, notifier notify.Notifier) *Manager {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Manager{
		mode:     mode,
		cfg:      cfg,
		log:      log,
		calc:     NewCalculator(cfg, log),
		tracker:  NewTracker(cfg, log),
		notifier: notifier,
		balance:  cfg.Trading.InitialBalance,
		active:   make(map[string]*models.Position),
		now:      time.Now,
	}
}

// SetClock replaces the manager's and tracker's notion of "now".
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
	m.tracker.SetClock(now)
}

func (m *Manager) Balance() float64  { return m.balance }
func (m *Manager) Tracker() *Tracker { return m.tracker }
func (m *Manager) ActiveTrades() int { return len(m.active) }
func (m *Manager) History() []models.ClosedTrade {
	return m.tracker.History()
}

// ActivePosition returns the registered open position for an order id.
func (m *Manager) ActivePosition(orderID string) (*models.Position, bool) {
	pos, ok := m.active[orderID]
	return pos, ok
}

// OpenPositions returns all currently registered positions.
func (m *Manager) OpenPositions() []*models.Position {
	out := make([]*models.Position, 0, len(m.active))
	for _, pos := range m.active {
		out = append(out, pos)
	}
	return out
}

// ExecuteTrade validates the request, consults the circuit breakers,
// resolves the position plan and registers the open position. The
// checks run in that fixed order so a malformed request is reported as
// such even while trading is halted.
func (m *Manager) ExecuteTrade(req TradeRequest) (*models.Position, error) {
	if err := m.validateRequest(req); err != nil {
		return nil, err
	}

	check := m.tracker.CheckRiskLimits()
	if m.balance <= 0 {
		check.fail("balance_depleted", "balance is %.2f", m.balance)
	}
	if !check.TradeAllowed {
		m.notifier.TradingHalted(check.Reasons)
		return nil, &TradingNotAllowedError{ViolatedLimits: check.ViolatedLimits, Reasons: check.Reasons}
	}

	if len(m.active) >= m.cfg.Trading.MaxConcurrentTrades {
		return nil, &ConcurrencyLimitError{Active: len(m.active), Limit: m.cfg.Trading.MaxConcurrentTrades}
	}

	plan, err := m.calc.CalculatePosition(PositionRequest{
		Side:       req.Side,
		EntryPrice: req.EntryPrice,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
		Balance:    m.balance,
		History:    m.tracker.History(),
	})
	if err != nil {
		return nil, fmt.Errorf("position sizing failed: %w", err)
	}

	openedAt := req.Timestamp
	if openedAt.IsZero() {
		openedAt = m.now()
	}

	m.orderSeq++
	pos := &models.Position{
		OrderID:      fmt.Sprintf("%s_%06d", m.mode, m.orderSeq),
		Symbol:       req.Symbol,
		Side:         plan.Side,
		EntryPrice:   plan.EntryPrice,
		PositionSize: plan.PositionSizeUSD,
		TakeProfit:   plan.TakeProfit,
		StopLoss:     plan.StopLoss,
		OpenedAt:     openedAt,
	}
	m.active[pos.OrderID] = pos

	m.log.WithFields(logging.Fields{
		"order_id":        pos.OrderID,
		"side":            pos.Side,
		"position_size":   pos.PositionSize,
		"expected_profit": plan.ExpectedProfit,
		"expected_loss":   plan.ExpectedLoss,
	}).Debug("position registered")
	m.notifier.TradeOpened(*pos)
	return pos, nil
}

// UpdateTradeResult closes a registered position at the given exit
// price, settles the fee-aware net P&L against the balance and records
// the closed trade.
func (m *Manager) UpdateTradeResult(orderID string, exitPrice float64, reason models.ExitReason, closedAt time.Time) (*models.ClosedTrade, error) {
	if exitPrice <= 0 {
		return nil, &ValidationError{Field: "exit_price", Reason: "must be positive"}
	}
	if !reason.Valid() {
		return nil, &ValidationError{Field: "exit_reason", Reason: fmt.Sprintf("unrecognized value %q", reason)}
	}

	pos, ok := m.active[orderID]
	if !ok {
		return nil, fmt.Errorf("close %s: %w", orderID, ErrTradeNotFound)
	}

	if closedAt.IsZero() {
		closedAt = m.now()
	}

	profit := m.calc.NetPnL(pos.EntryPrice, exitPrice, pos.PositionSize, pos.Side, reason)
	trade := models.ClosedTrade{
		OrderID:      pos.OrderID,
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		PositionSize: pos.PositionSize,
		Profit:       profit,
		Success:      profit > 0,
		ExitReason:   reason,
		OpenedAt:     pos.OpenedAt,
		ClosedAt:     closedAt,
	}

	m.balance += profit
	if m.balance < 0 {
		m.log.WithFields(logging.Fields{
			"order_id": orderID,
			"balance":  m.balance,
			"profit":   profit,
		}).Error("balance went negative, clamping to zero")
		m.balance = 0
	}
	if math.IsNaN(m.balance) || math.IsInf(m.balance, 0) {
		m.log.WithField("order_id", orderID).Error("non-finite balance after close, resetting to zero")
		m.balance = 0
	}

	delete(m.active, orderID)
	m.tracker.RecordTrade(trade)
	m.notifier.TradeClosed(trade, m.balance)
	return &trade, nil
}

// validateRequest checks request shape only. Breaker and sizing rules
// come later in the pipeline.
func (m *Manager) validateRequest(req TradeRequest) error {
	if req.EntryPrice <= 0 {
		return &ValidationError{Field: "entry_price", Reason: "must be positive"}
	}
	if !req.Side.Valid() {
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if req.TakeProfit < 0 {
		return &ValidationError{Field: "take_profit", Reason: "must be positive"}
	}
	if req.StopLoss < 0 {
		return &ValidationError{Field: "stop_loss", Reason: "must be positive"}
	}

	if req.TakeProfit != 0 {
		targetPct := math.Abs(req.TakeProfit-req.EntryPrice) / req.EntryPrice
		if targetPct < m.cfg.Validation.MinProfitTargetPct {
			return &ValidationError{Field: "take_profit", Reason: fmt.Sprintf("profit target %.4f%% below minimum %.4f%%", targetPct*100, m.cfg.Validation.MinProfitTargetPct*100)}
		}
		if targetPct > m.cfg.Validation.MaxProfitTargetPct {
			return &ValidationError{Field: "take_profit", Reason: fmt.Sprintf("profit target %.4f%% above maximum %.4f%%", targetPct*100, m.cfg.Validation.MaxProfitTargetPct*100)}
		}
	}

	if req.TakeProfit != 0 && req.StopLoss != 0 {
		wrongSide := false
		switch req.Side {
		case models.SideBuy:
			wrongSide = !(req.StopLoss < req.EntryPrice && req.EntryPrice < req.TakeProfit)
		case models.SideSell:
			wrongSide = !(req.TakeProfit < req.EntryPrice && req.EntryPrice < req.StopLoss)
		}
		if wrongSide {
			return &ParameterInconsistencyError{Side: req.Side, EntryPrice: req.EntryPrice, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit}
		}
	}
	return nil
}
