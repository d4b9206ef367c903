// Command stratlab runs a risk-managed backtest or a full walk-forward
// validation over a CSV candle series.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantforge/stratlab/internal/backtest"
	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/dataset"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/models"
	"github.com/quantforge/stratlab/internal/store"
	"github.com/quantforge/stratlab/internal/strategy"
	"github.com/quantforge/stratlab/internal/walkforward"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to JSON config (defaults used when empty)")
		dataPath   = flag.String("data", "", "path to OHLCV CSV file")
		mode       = flag.String("mode", "walkforward", "run mode: walkforward or backtest")
		dbPath     = flag.String("db", "", "optional sqlite path for trade persistence")
		fast       = flag.Int("fast", 10, "fast period for single-backtest mode")
		slow       = flag.Int("slow", 30, "slow period for single-backtest mode")
		tpPercent  = flag.Float64("tp", 0.03, "take-profit fraction for single-backtest mode")
	)
	flag.Parse()

	log := logging.New()
	defer func() { _ = log.Sync() }()

	if err := run(log, *configPath, *dataPath, *mode, *dbPath, *fast, *slow, *tpPercent); err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run(log *logging.Logger, configPath, dataPath, mode, dbPath string, fast, slow int, tpPercent float64) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	log.SetLevel(cfg.LogLevel)

	if dataPath == "" {
		return fmt.Errorf("-data is required")
	}
	candles, err := dataset.LoadCSV(dataPath)
	if err != nil {
		return err
	}
	log.WithFields(logging.Fields{
		"candles": len(candles),
		"from":    candles[0].Timestamp,
		"to":      candles[len(candles)-1].Timestamp,
	}).Info("dataset loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "backtest":
		return runBacktest(ctx, log, cfg, candles, dbPath, fast, slow, tpPercent)
	case "walkforward":
		return runWalkForward(ctx, log, cfg, candles, dbPath)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func runBacktest(ctx context.Context, log *logging.Logger, cfg *config.Config, candles []models.Candle, dbPath string, fast, slow int, tpPercent float64) error {
	strat, err := strategy.NewSMACross(fast, slow, tpPercent)
	if err != nil {
		return err
	}

	runner := backtest.NewRunner(cfg, strat, log)
	result, err := runner.Run(candles)
	if err != nil {
		return err
	}

	log.WithFields(logging.Fields{
		"run_id":        result.RunID,
		"strategy":      strat.Name(),
		"trades":        len(result.Trades),
		"final_balance": result.FinalBalance,
		"return_pct":    result.Metrics.TotalReturnPct,
		"sharpe":        result.Metrics.SharpeRatio,
		"sortino":       result.Metrics.SortinoRatio,
		"calmar":        result.Metrics.CalmarRatio,
		"max_dd_pct":    result.Metrics.MaxDrawdownPct,
		"win_rate":      result.Metrics.WinRate,
		"rejections":    result.Rejections,
	}).Info("backtest finished")

	return persist(ctx, log, dbPath, result.RunID, result.Trades)
}

func runWalkForward(ctx context.Context, log *logging.Logger, cfg *config.Config, candles []models.Candle, dbPath string) error {
	engine := walkforward.NewEngine(cfg, log, strategy.SMACrossSpace(), strategy.SMACrossFactory)
	report, err := engine.Run(ctx, candles)
	if err != nil {
		return err
	}

	for _, w := range report.Windows {
		entry := log.WithFields(logging.Fields{
			"window":      w.WindowID,
			"train":       w.TrainPeriod,
			"test":        w.TestPeriod,
			"train_score": w.TrainScore,
			"test_score":  w.TestScore,
		})
		if w.Success {
			entry.WithField("params", w.BestParams).Info("window passed")
		} else {
			entry.WithField("reason", w.FailureReason).Warn("window failed")
		}
	}

	log.WithFields(logging.Fields{
		"run_id":              report.RunID,
		"successful_windows":  report.SuccessfulWindows,
		"total_windows":       len(report.Windows),
		"overfitting_score":   report.Analysis.OverfittingScore,
		"risk_band":           report.Analysis.RiskBand,
		"parameter_stability": report.Analysis.ParameterStability,
		"robust_params":       report.RobustParams,
		"robust":              report.Robustness.Robust,
		"rejections":          report.Rejections,
		"elapsed":             report.Elapsed.String(),
	}).Info("walk-forward finished")

	if report.FinalBacktest != nil {
		log.WithFields(logging.Fields{
			"score":      report.FinalBacktest.Score,
			"return_pct": report.FinalBacktest.Metrics.TotalReturnPct,
			"trades":     report.FinalBacktest.Metrics.TradeCount,
		}).Info("final full-series backtest")
		return persist(ctx, log, dbPath, report.RunID, report.FinalBacktest.Trades)
	}
	return nil
}

func persist(ctx context.Context, log *logging.Logger, dbPath, runID string, trades []models.ClosedTrade) error {
	if dbPath == "" || len(trades) == 0 {
		return nil
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.SaveTrades(ctx, runID, trades); err != nil {
		return err
	}
	log.WithFields(logging.Fields{"run_id": runID, "trades": len(trades), "db": dbPath}).Info("trades persisted")
	return nil
}
