package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/models"
)

// PositionRequest describes a proposed entry. TakeProfit and StopLoss
// are optional; zero means "not provided".
type PositionRequest struct {
	Side       models.Side
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
	Balance    float64
	History    []models.ClosedTrade
}

// PositionPlan is a fully resolved position: both exit levels and the
// notional size, plus the net outcome of each exit path.
type PositionPlan struct {
	Side            models.Side
	EntryPrice      float64
	TakeProfit      float64
	StopLoss        float64
	PositionSizeUSD float64
	ExpectedProfit  float64
	ExpectedLoss    float64
}

// Calculator resolves position size and missing exit levels from the
// configured risk budget, fees and the account's trade history.
type Calculator struct {
	cfg *config.Config
	log *logging.Logger
}

func NewCalculator(cfg *config.Config, log *logging.Logger) *Calculator {
	return &Calculator{cfg: cfg, log: log}
}

// CalculatePosition resolves a request into a plan. Three shapes are
// supported: both levels given (size from stop distance), take-profit
// only (stop derived from the risk/reward ratio net of fees), and no
// levels (adaptive size, symmetric levels around the entry).
func (c *Calculator) CalculatePosition(req PositionRequest) (*PositionPlan, error) {
	if req.EntryPrice <= 0 {
		return nil, &ValidationError{Field: "entry_price", Reason: "must be positive"}
	}
	side := req.Side
	if !side.Valid() {
		return nil, &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}

	if req.TakeProfit != 0 && req.StopLoss != 0 {
		if err := c.checkLevelConsistency(side, req.EntryPrice, req.StopLoss, req.TakeProfit); err != nil {
			return nil, err
		}
	}

	if !c.statisticsReady(req.History) {
		return c.minimumPlan(req)
	}

	maxRiskUSD := req.Balance * c.cfg.Trading.MaxRiskPerTrade

	var plan *PositionPlan
	var err error
	switch {
	case req.TakeProfit != 0 && req.StopLoss != 0:
		plan, err = c.planFromLevels(req, maxRiskUSD)
	case req.TakeProfit != 0:
		plan, err = c.planFromTakeProfit(req, maxRiskUSD)
	default:
		plan, err = c.planAdaptive(req, maxRiskUSD)
	}
	if err != nil {
		return nil, err
	}

	plan.PositionSizeUSD = c.clampSize(plan.PositionSizeUSD, req.Balance)
	c.fillOutcomes(plan)
	return plan, nil
}

// statisticsReady reports whether the history is large and good enough
// to trust performance-based sizing. Below the bar the calculator
// trades the configured minimum stake.
func (c *Calculator) statisticsReady(history []models.ClosedTrade) bool {
	if len(history) < c.cfg.Adaptive.MinTradesForStats {
		return false
	}
	return winRate(history) >= c.cfg.Adaptive.WinrateThreshold
}

// minimumPlan sizes the trade at min_trade_usd and resolves any missing
// levels from the configured defaults.
func (c *Calculator) minimumPlan(req PositionRequest) (*PositionPlan, error) {
	plan := &PositionPlan{
		Side:            req.Side,
		EntryPrice:      req.EntryPrice,
		TakeProfit:      req.TakeProfit,
		StopLoss:        req.StopLoss,
		PositionSizeUSD: c.cfg.Trading.MinTradeUSD,
	}

	rr := c.cfg.Trading.RiskRewardRatio
	slPct := c.cfg.Trading.DefaultSLPercent
	switch {
	case plan.TakeProfit != 0 && plan.StopLoss != 0:
		// keep as given
	case plan.TakeProfit != 0:
		// derive the stop so the price move alone honors the ratio
		tpPct := math.Abs(plan.TakeProfit-plan.EntryPrice) / plan.EntryPrice
		plan.StopLoss = offsetPrice(plan.EntryPrice, req.Side, -tpPct/rr)
	default:
		plan.StopLoss = offsetPrice(plan.EntryPrice, req.Side, -slPct)
		plan.TakeProfit = offsetPrice(plan.EntryPrice, req.Side, slPct*rr)
	}

	plan.PositionSizeUSD = c.clampSize(plan.PositionSizeUSD, req.Balance)
	c.fillOutcomes(plan)
	return plan, nil
}

// planFromLevels sizes from the stop distance: the stake whose stop-out
// loss, fees included, equals the per-trade risk budget.
func (c *Calculator) planFromLevels(req PositionRequest, maxRiskUSD float64) (*PositionPlan, error) {
	priceRiskPct := math.Abs(req.EntryPrice-req.StopLoss) / req.EntryPrice
	totalRiskPct := priceRiskPct + c.cfg.Fees.EntryFee + c.cfg.Fees.SLFee
	if totalRiskPct <= 0 {
		return nil, &ValidationError{Field: "stop_loss", Reason: "produces zero risk"}
	}

	return &PositionPlan{
		Side:            req.Side,
		EntryPrice:      req.EntryPrice,
		TakeProfit:      req.TakeProfit,
		StopLoss:        req.StopLoss,
		PositionSizeUSD: maxRiskUSD / totalRiskPct,
	}, nil
}

// planFromTakeProfit derives the stop from the risk/reward ratio: the
// net loss at the stop must be the net profit at the target divided by
// the ratio. Fees come off the top of the loss budget, so high fees can
// make the ratio unachievable.
func (c *Calculator) planFromTakeProfit(req PositionRequest, maxRiskUSD float64) (*PositionPlan, error) {
	netProfitPerUSD := c.netExitPnL(req.EntryPrice, req.TakeProfit, 1.0, req.Side, c.cfg.Fees.TPFee)
	if netProfitPerUSD <= 0 {
		return nil, &ValidationError{Field: "take_profit", Reason: "yields no net profit after fees"}
	}

	requiredNetLossPct := netProfitPerUSD / c.cfg.Trading.RiskRewardRatio
	feePct := c.cfg.Fees.EntryFee + c.cfg.Fees.SLFee
	priceLossPct := requiredNetLossPct - feePct
	if priceLossPct <= 0 {
		return nil, &UnachievableRiskRewardError{RequiredLossPct: requiredNetLossPct, FeePct: feePct}
	}

	stopLoss := offsetPrice(req.EntryPrice, req.Side, -priceLossPct)
	totalRiskPct := priceLossPct + feePct

	return &PositionPlan{
		Side:            req.Side,
		EntryPrice:      req.EntryPrice,
		TakeProfit:      req.TakeProfit,
		StopLoss:        stopLoss,
		PositionSizeUSD: maxRiskUSD / totalRiskPct,
	}, nil
}

// planAdaptive sizes from recent performance first, then derives both
// levels so the stop-out loss matches the risk budget at that size.
func (c *Calculator) planAdaptive(req PositionRequest, maxRiskUSD float64) (*PositionPlan, error) {
	size := c.AdaptivePositionSize(req.History, req.Balance)
	if size <= 0 {
		size = c.cfg.Trading.MinTradeUSD
	}

	riskPct := maxRiskUSD / size
	feePct := c.cfg.Fees.EntryFee + c.cfg.Fees.SLFee
	priceRiskPct := riskPct - feePct
	if priceRiskPct <= 0 {
		return nil, &UnachievableRiskRewardError{RequiredLossPct: riskPct, FeePct: feePct}
	}

	rr := c.cfg.Trading.RiskRewardRatio
	return &PositionPlan{
		Side:            req.Side,
		EntryPrice:      req.EntryPrice,
		TakeProfit:      offsetPrice(req.EntryPrice, req.Side, priceRiskPct*rr),
		StopLoss:        offsetPrice(req.EntryPrice, req.Side, -priceRiskPct),
		PositionSizeUSD: size,
	}, nil
}

// AdaptivePositionSize scales a base fraction of the balance by the
// edge over the win-rate threshold, the confidence in the sample size,
// and the current win or loss streak.
func (c *Calculator) AdaptivePositionSize(history []models.ClosedTrade, balance float64) float64 {
	a := c.cfg.Adaptive

	wr := winRate(history)
	performanceScore := (wr - a.WinrateThreshold) / (1 - a.WinrateThreshold)

	confidence := float64(len(history)-a.MinTradesForStats) / float64(a.MaxConfidenceTrades-a.MinTradesForStats)
	confidence = clamp(confidence, 0, 1)
	confidenceWeight := math.Pow(confidence, a.ConfidencePower)

	aggression := a.MinAggression + (a.MaxAggression-a.MinAggression)*confidenceWeight
	coreMultiplier := 1 + performanceScore*aggression
	if coreMultiplier < 0.1 {
		coreMultiplier = 0.1
	}

	streakMultiplier := 1.0
	wins, losses := currentStreaks(history)
	if wins > 0 {
		streakMultiplier = 1 + math.Pow(float64(wins), a.WinstreakPower)*a.WinstreakMultiplier
	} else if losses > 0 {
		streakMultiplier = math.Pow(a.LosingStreakPenalty, float64(losses))
	}

	size := balance * a.BasePercentOfBalance * coreMultiplier * streakMultiplier
	return c.clampSize(size, balance)
}

// NetPnL computes the fee-aware net result of a closed trade. The exit
// fee rate depends on which exit path fired.
func (c *Calculator) NetPnL(entry, exit, sizeUSD float64, side models.Side, reason models.ExitReason) float64 {
	exitFee := c.cfg.Fees.TPFee
	if reason == models.ExitStopLoss {
		exitFee = c.cfg.Fees.SLFee
	}
	return c.netExitPnL(entry, exit, sizeUSD, side, exitFee)
}

// netExitPnL is the decimal core of the P&L math: gross price move on
// the position quantity, minus the entry fee on notional and the exit
// fee on the exit value.
func (c *Calculator) netExitPnL(entry, exit, sizeUSD float64, side models.Side, exitFeeRate float64) float64 {
	entryD := decimal.NewFromFloat(entry)
	exitD := decimal.NewFromFloat(exit)
	sizeD := decimal.NewFromFloat(sizeUSD)

	quantity := sizeD.Div(entryD)
	gross := quantity.Mul(exitD.Sub(entryD))
	if side == models.SideSell {
		gross = gross.Neg()
	}

	entryFee := sizeD.Mul(decimal.NewFromFloat(c.cfg.Fees.EntryFee))
	exitValue := quantity.Mul(exitD)
	exitFee := exitValue.Mul(decimal.NewFromFloat(exitFeeRate))

	net, _ := gross.Sub(entryFee).Sub(exitFee).Float64()
	return net
}

// fillOutcomes computes the net result of each exit path for the plan.
func (c *Calculator) fillOutcomes(plan *PositionPlan) {
	plan.ExpectedProfit = c.netExitPnL(plan.EntryPrice, plan.TakeProfit, plan.PositionSizeUSD, plan.Side, c.cfg.Fees.TPFee)
	plan.ExpectedLoss = c.netExitPnL(plan.EntryPrice, plan.StopLoss, plan.PositionSizeUSD, plan.Side, c.cfg.Fees.SLFee)
}

func (c *Calculator) checkLevelConsistency(side models.Side, entry, sl, tp float64) error {
	ok := false
	switch side {
	case models.SideBuy:
		ok = sl < entry && entry < tp
	case models.SideSell:
		ok = tp < entry && entry < sl
	}
	if !ok {
		return &ParameterInconsistencyError{Side: side, EntryPrice: entry, StopLoss: sl, TakeProfit: tp}
	}
	return nil
}

// clampSize bounds the stake to [min_trade_usd, balance*max_position_multiplier].
// The ceiling wins when the two conflict on a small balance.
func (c *Calculator) clampSize(size, balance float64) float64 {
	if size < c.cfg.Trading.MinTradeUSD {
		size = c.cfg.Trading.MinTradeUSD
	}
	maxSize := balance * c.cfg.Trading.MaxPositionMultiplier
	if size > maxSize {
		size = maxSize
	}
	return size
}

// offsetPrice moves the entry by a signed fraction in the profit
// direction of the side: positive toward profit, negative toward loss.
func offsetPrice(entry float64, side models.Side, pct float64) float64 {
	if side == models.SideSell {
		pct = -pct
	}
	return entry * (1 + pct)
}

func winRate(history []models.ClosedTrade) float64 {
	if len(history) == 0 {
		return 0
	}
	wins := 0
	for _, t := range history {
		if t.Success {
			wins++
		}
	}
	return float64(wins) / float64(len(history))
}

// currentStreaks returns the run of wins or losses at the tail of the
// history. At most one of the two is non-zero.
func currentStreaks(history []models.ClosedTrade) (wins, losses int) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Success {
			if losses > 0 {
				return
			}
			wins++
		} else {
			if wins > 0 {
				return
			}
			losses++
		}
	}
	return
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
