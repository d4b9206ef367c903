// Package config loads and validates the engine configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// ConfigValidationError reports a configuration field that failed its
// bounds check. Validation runs eagerly at load time so a bad config
// never reaches the trading path.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// TradingConfig holds account-level risk limits.
type TradingConfig struct {
	RiskRewardRatio            float64 `mapstructure:"risk_reward_ratio" json:"risk_reward_ratio"`
	InitialBalance             float64 `mapstructure:"initial_balance" json:"initial_balance"`
	MaxDailyDrawdown           float64 `mapstructure:"max_daily_drawdown" json:"max_daily_drawdown"`
	MaxLosingDays              int     `mapstructure:"max_losing_days" json:"max_losing_days"`
	MinTradeUSD                float64 `mapstructure:"min_trade_usd" json:"min_trade_usd"`
	MaxPositionMultiplier      float64 `mapstructure:"max_position_multiplier" json:"max_position_multiplier"`
	MaxRiskPerTrade            float64 `mapstructure:"max_risk_per_trade" json:"max_risk_per_trade"`
	MaxConsecutiveLossesPerDay int     `mapstructure:"max_consecutive_losses_per_day" json:"max_consecutive_losses_per_day"`
	MaxConsecutiveLossesGlobal int     `mapstructure:"max_consecutive_losses_global" json:"max_consecutive_losses_global"`
	DefaultSLPercent           float64 `mapstructure:"default_sl_percent" json:"default_sl_percent"`
	MaxConcurrentTrades        int     `mapstructure:"max_concurrent_trades" json:"max_concurrent_trades"`
}

// FeesConfig holds the fee rates applied to entry and to each exit path,
// expressed as fractions of notional.
type FeesConfig struct {
	EntryFee float64 `mapstructure:"entry_fee" json:"entry_fee"`
	TPFee    float64 `mapstructure:"tp_fee" json:"tp_fee"`
	SLFee    float64 `mapstructure:"sl_fee" json:"sl_fee"`
}

// AdaptiveConfig tunes performance-based position sizing.
type AdaptiveConfig struct {
	MinTradesForStats    int     `mapstructure:"min_trades_for_stats" json:"min_trades_for_stats"`
	MaxConfidenceTrades  int     `mapstructure:"max_confidence_trades" json:"max_confidence_trades"`
	WinrateThreshold     float64 `mapstructure:"winrate_threshold" json:"winrate_threshold"`
	MinAggression        float64 `mapstructure:"min_aggression" json:"min_aggression"`
	MaxAggression        float64 `mapstructure:"max_aggression" json:"max_aggression"`
	BasePercentOfBalance float64 `mapstructure:"base_percent_of_balance" json:"base_percent_of_balance"`
	LosingStreakPenalty  float64 `mapstructure:"losing_streak_penalty" json:"losing_streak_penalty"`
	WinstreakPower       float64 `mapstructure:"winstreak_power" json:"winstreak_power"`
	WinstreakMultiplier  float64 `mapstructure:"winstreak_multiplier" json:"winstreak_multiplier"`
	ConfidencePower      float64 `mapstructure:"confidence_power" json:"confidence_power"`
}

// ValidationConfig bounds trade parameters and statistical acceptance.
type ValidationConfig struct {
	MinProfitTargetPct       float64 `mapstructure:"min_profit_target_pct" json:"min_profit_target_pct"`
	MaxProfitTargetPct       float64 `mapstructure:"max_profit_target_pct" json:"max_profit_target_pct"`
	MinTradesForSignificance int     `mapstructure:"min_trades_for_significance" json:"min_trades_for_significance"`
	SignificanceLevel        float64 `mapstructure:"significance_level" json:"significance_level"`
	MaxCoefficientVariation  float64 `mapstructure:"max_coefficient_variation" json:"max_coefficient_variation"`
}

// WalkForwardConfig controls window splitting.
type WalkForwardConfig struct {
	TrainMonths      int     `mapstructure:"train_months" json:"train_months"`
	ValidationMonths int     `mapstructure:"validation_months" json:"validation_months"`
	TestMonths       int     `mapstructure:"test_months" json:"test_months"`
	StepMonths       int     `mapstructure:"step_months" json:"step_months"`
	MinWindows       int     `mapstructure:"min_windows" json:"min_windows"`
	MinTestScore     float64 `mapstructure:"min_test_score" json:"min_test_score"`
}

// OverfittingConfig tunes overfitting detection and scoring bands.
type OverfittingConfig struct {
	MaxScoreDegradation float64 `mapstructure:"max_score_degradation" json:"max_score_degradation"`
	HighRiskScore       float64 `mapstructure:"high_risk_score" json:"high_risk_score"`
	ModerateRiskScore   float64 `mapstructure:"moderate_risk_score" json:"moderate_risk_score"`
}

// OptimizationConfig controls the per-window parameter search.
type OptimizationConfig struct {
	TrialsPerWindow int   `mapstructure:"trials_per_window" json:"trials_per_window"`
	Seed            int64 `mapstructure:"seed" json:"seed"`
	Workers         int   `mapstructure:"workers" json:"workers"`
}

// Config is the root configuration object.
type Config struct {
	LogLevel     string             `mapstructure:"log_level" json:"log_level"`
	Symbol       string             `mapstructure:"symbol" json:"symbol"`
	Trading      TradingConfig      `mapstructure:"trading" json:"trading"`
	Fees         FeesConfig         `mapstructure:"fees" json:"fees"`
	Adaptive     AdaptiveConfig     `mapstructure:"adaptive" json:"adaptive"`
	Validation   ValidationConfig   `mapstructure:"validation" json:"validation"`
	WalkForward  WalkForwardConfig  `mapstructure:"walk_forward" json:"walk_forward"`
	Overfitting  OverfittingConfig  `mapstructure:"overfitting" json:"overfitting"`
	Optimization OptimizationConfig `mapstructure:"optimization" json:"optimization"`
}

// Default returns a configuration that passes Validate.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Symbol:   "BTCUSDT",
		Trading: TradingConfig{
			RiskRewardRatio:            2.0,
			InitialBalance:             10000,
			MaxDailyDrawdown:           0.05,
			MaxLosingDays:              3,
			MinTradeUSD:                10,
			MaxPositionMultiplier:      0.5,
			MaxRiskPerTrade:            0.01,
			MaxConsecutiveLossesPerDay: 3,
			MaxConsecutiveLossesGlobal: 5,
			DefaultSLPercent:           0.02,
			MaxConcurrentTrades:        1,
		},
		Fees: FeesConfig{
			EntryFee: 0.001,
			TPFee:    0.001,
			SLFee:    0.0005,
		},
		Adaptive: AdaptiveConfig{
			MinTradesForStats:    10,
			MaxConfidenceTrades:  50,
			WinrateThreshold:     0.5,
			MinAggression:        0.5,
			MaxAggression:        2.0,
			BasePercentOfBalance: 0.05,
			LosingStreakPenalty:  0.7,
			WinstreakPower:       1.4,
			WinstreakMultiplier:  0.15,
			ConfidencePower:      0.7,
		},
		Validation: ValidationConfig{
			MinProfitTargetPct:       0.005,
			MaxProfitTargetPct:       0.10,
			MinTradesForSignificance: 20,
			SignificanceLevel:        0.05,
			MaxCoefficientVariation:  5.0,
		},
		WalkForward: WalkForwardConfig{
			TrainMonths:      6,
			ValidationMonths: 2,
			TestMonths:       2,
			StepMonths:       2,
			MinWindows:       3,
			MinTestScore:     0.0,
		},
		Overfitting: OverfittingConfig{
			MaxScoreDegradation: 0.30,
			HighRiskScore:       70,
			ModerateRiskScore:   40,
		},
		Optimization: OptimizationConfig{
			TrialsPerWindow: 50,
			Seed:            42,
			Workers:         4,
		},
	}
}

// Load reads a JSON config file, merges it over Default and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every numeric bound. The first violation is returned
// as a *ConfigValidationError naming the offending field.
func (c *Config) Validate() error {
	t := c.Trading
	switch {
	case t.RiskRewardRatio <= 0:
		return fail("trading.risk_reward_ratio", "must be greater than 0")
	case t.InitialBalance <= 0:
		return fail("trading.initial_balance", "must be greater than 0")
	case t.MaxDailyDrawdown <= 0 || t.MaxDailyDrawdown > 1:
		return fail("trading.max_daily_drawdown", "must be in (0, 1]")
	case t.MaxLosingDays < 1:
		return fail("trading.max_losing_days", "must be at least 1")
	case t.MinTradeUSD <= 0:
		return fail("trading.min_trade_usd", "must be greater than 0")
	case t.MaxPositionMultiplier <= 0:
		return fail("trading.max_position_multiplier", "must be greater than 0")
	case t.MaxRiskPerTrade <= 0 || t.MaxRiskPerTrade > 0.05:
		return fail("trading.max_risk_per_trade", "must be in (0, 0.05]")
	case t.MaxConsecutiveLossesPerDay < 1:
		return fail("trading.max_consecutive_losses_per_day", "must be at least 1")
	case t.MaxConsecutiveLossesGlobal <= t.MaxConsecutiveLossesPerDay:
		return fail("trading.max_consecutive_losses_global", "must exceed max_consecutive_losses_per_day")
	case t.DefaultSLPercent < 0.001 || t.DefaultSLPercent > 0.1:
		return fail("trading.default_sl_percent", "must be in [0.001, 0.1]")
	case t.MaxConcurrentTrades < 1 || t.MaxConcurrentTrades > 10:
		return fail("trading.max_concurrent_trades", "must be in [1, 10]")
	}

	f := c.Fees
	switch {
	case f.EntryFee < 0 || f.EntryFee > 1:
		return fail("fees.entry_fee", "must be in [0, 1]")
	case f.TPFee < 0 || f.TPFee > 1:
		return fail("fees.tp_fee", "must be in [0, 1]")
	case f.SLFee < 0 || f.SLFee > 1:
		return fail("fees.sl_fee", "must be in [0, 1]")
	}

	a := c.Adaptive
	switch {
	case a.MinTradesForStats < 1:
		return fail("adaptive.min_trades_for_stats", "must be at least 1")
	case a.MaxConfidenceTrades <= a.MinTradesForStats:
		return fail("adaptive.max_confidence_trades", "must exceed min_trades_for_stats")
	case a.WinrateThreshold <= 0 || a.WinrateThreshold > 1:
		return fail("adaptive.winrate_threshold", "must be in (0, 1]")
	case a.MinAggression < 0:
		return fail("adaptive.min_aggression", "must be non-negative")
	case a.MaxAggression <= a.MinAggression:
		return fail("adaptive.max_aggression", "must exceed min_aggression")
	case a.BasePercentOfBalance <= 0 || a.BasePercentOfBalance > 0.1:
		return fail("adaptive.base_percent_of_balance", "must be in (0, 0.1]")
	case a.LosingStreakPenalty <= 0 || a.LosingStreakPenalty > 1:
		return fail("adaptive.losing_streak_penalty", "must be in (0, 1]")
	case a.WinstreakPower < 1.0 || a.WinstreakPower > 2.0:
		return fail("adaptive.winstreak_power", "must be in [1.0, 2.0]")
	case a.WinstreakMultiplier < 0.05 || a.WinstreakMultiplier > 0.5:
		return fail("adaptive.winstreak_multiplier", "must be in [0.05, 0.5]")
	case a.ConfidencePower < 0.5 || a.ConfidencePower > 1.0:
		return fail("adaptive.confidence_power", "must be in [0.5, 1.0]")
	}

	val := c.Validation
	switch {
	case val.MinProfitTargetPct <= 0:
		return fail("validation.min_profit_target_pct", "must be greater than 0")
	case val.MaxProfitTargetPct <= val.MinProfitTargetPct:
		return fail("validation.max_profit_target_pct", "must exceed min_profit_target_pct")
	case val.MinTradesForSignificance < 2:
		return fail("validation.min_trades_for_significance", "must be at least 2")
	case val.SignificanceLevel <= 0 || val.SignificanceLevel >= 1:
		return fail("validation.significance_level", "must be in (0, 1)")
	case val.MaxCoefficientVariation <= 0:
		return fail("validation.max_coefficient_variation", "must be greater than 0")
	}

	wf := c.WalkForward
	switch {
	case wf.TrainMonths < 1:
		return fail("walk_forward.train_months", "must be at least 1")
	case wf.ValidationMonths < 0:
		return fail("walk_forward.validation_months", "must be non-negative")
	case wf.TestMonths < 1:
		return fail("walk_forward.test_months", "must be at least 1")
	case wf.StepMonths < 1:
		return fail("walk_forward.step_months", "must be at least 1")
	case wf.MinWindows < 1:
		return fail("walk_forward.min_windows", "must be at least 1")
	}

	o := c.Overfitting
	switch {
	case o.MaxScoreDegradation <= 0 || o.MaxScoreDegradation > 1:
		return fail("overfitting.max_score_degradation", "must be in (0, 1]")
	case o.ModerateRiskScore <= 0 || o.ModerateRiskScore >= o.HighRiskScore:
		return fail("overfitting.moderate_risk_score", "must be positive and below high_risk_score")
	case o.HighRiskScore > 100:
		return fail("overfitting.high_risk_score", "must not exceed 100")
	}

	opt := c.Optimization
	switch {
	case opt.TrialsPerWindow < 1:
		return fail("optimization.trials_per_window", "must be at least 1")
	case opt.Workers < 1:
		return fail("optimization.workers", "must be at least 1")
	}

	return nil
}

func fail(field, reason string) error {
	return &ConfigValidationError{Field: field, Reason: reason}
}
