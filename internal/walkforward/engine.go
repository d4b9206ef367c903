// Package walkforward runs the full research loop: split the series
// into rolling windows, optimize on each train segment, judge the
// out-of-sample result, and distill robust parameters.
package walkforward

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quantforge/stratlab/internal/backtest"
	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/metrics"
	"github.com/quantforge/stratlab/internal/models"
	"github.com/quantforge/stratlab/internal/stats"
	"github.com/quantforge/stratlab/internal/validation"
	"github.com/quantforge/stratlab/internal/workerpool"
)

// StrategyFactory builds a strategy from a parameter assignment.
type StrategyFactory func(Params) (backtest.Strategy, error)

// FailureReason is the closed set of reasons a window can fail.
type FailureReason string

const (
	FailureNone           FailureReason = ""
	FailureOptimizer      FailureReason = "optimizer_failed"
	FailureQuality        FailureReason = "quality_filter"
	FailureLowTestScore   FailureReason = "low_test_score"
	FailureOverfitting    FailureReason = "overfitting_detected"
	FailureNotSignificant FailureReason = "not_statistically_significant"
)

// Evaluation is one scored backtest of a parameter assignment.
type Evaluation struct {
	Score   float64
	Metrics metrics.Metrics
	Trades  []models.ClosedTrade
	Quality metrics.QualityReason
}

// WindowResult is the complete outcome of one window.
type WindowResult struct {
	WindowID    int
	TrainPeriod string
	TestPeriod  string

	BestParams Params
	TrainScore float64
	ValScore   float64
	TestScore  float64
	TestEval   Evaluation

	OverfittingDetected bool
	StatisticallyValid  bool
	Success             bool
	FailureReason       FailureReason
}

// Report is the outcome of a whole walk-forward run.
type Report struct {
	RunID   string
	Started time.Time
	Elapsed time.Duration

	Windows           []WindowResult
	SuccessfulWindows int
	Rejections        map[FailureReason]int

	Analysis      *validation.Analysis
	RobustParams  Params
	Robustness    validation.RobustnessResult
	FinalBacktest *Evaluation
}

// Engine drives the walk-forward run. All collaborators are injected;
// the engine itself holds no mutable run state.
type Engine struct {
	cfg       *config.Config
	log       *logging.Logger
	space     Space
	factory   StrategyFactory
	validator *stats.Validator
	overfit   *validation.Engine

	newOptimizer func(seed int64) Optimizer
}

func NewEngine(cfg *config.Config, log *logging.Logger, space Space, factory StrategyFactory) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		log:       log,
		space:     space,
		factory:   factory,
		validator: stats.NewValidator(cfg, log),
		overfit:   validation.NewEngine(cfg, log),
		newOptimizer: func(seed int64) Optimizer {
			return NewRandomSearch(seed)
		},
	}
}

// SetOptimizer swaps the per-window optimizer constructor. Each window
// gets its own instance seeded from the run seed and the window id.
func (e *Engine) SetOptimizer(constructor func(seed int64) Optimizer) {
	e.newOptimizer = constructor
}

// Run executes the whole pipeline on the candle series.
func (e *Engine) Run(ctx context.Context, candles []models.Candle) (*Report, error) {
	started := time.Now()

	windows, err := e.SplitWindows(candles)
	if err != nil {
		return nil, fmt.Errorf("walk-forward run: %w", err)
	}
	e.log.WithFields(logging.Fields{
		"windows": len(windows),
		"candles": len(candles),
		"workers": e.cfg.Optimization.Workers,
	}).Info("walk-forward run started")

	results := make([]WindowResult, len(windows))
	pool := workerpool.New(ctx, e.cfg.Optimization.Workers)
	if err := pool.Start(); err != nil {
		return nil, fmt.Errorf("walk-forward run: %w", err)
	}
	for i := range windows {
		i := i
		w := windows[i]
		err := pool.Submit(workerpool.Job{
			ID: w.ID,
			Execute: func(jobCtx context.Context) error {
				results[i] = e.optimizeWindow(jobCtx, w)
				return nil
			},
		})
		if err != nil {
			pool.Cancel()
			return nil, fmt.Errorf("walk-forward run: %w", err)
		}
	}
	pool.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("walk-forward run: %w", ctx.Err())
	}

	report := &Report{
		RunID:      uuid.NewString(),
		Started:    started,
		Windows:    results,
		Rejections: make(map[FailureReason]int),
	}
	for _, r := range results {
		if r.Success {
			report.SuccessfulWindows++
		} else {
			report.Rejections[r.FailureReason]++
		}
	}

	report.Analysis = e.overfit.Analyze(windowScores(results))
	report.RobustParams = e.RobustParameters(results)

	if report.RobustParams != nil {
		fullEval := func(p Params) (float64, error) {
			ev, err := e.evaluate(p, candles)
			if err != nil {
				return 0, err
			}
			return ev.Score, nil
		}

		if ev, err := e.evaluate(report.RobustParams, candles); err == nil {
			report.FinalBacktest = ev
			rng := rand.New(rand.NewSource(e.cfg.Optimization.Seed))
			report.Robustness = e.overfit.Robustness(
				map[string]float64(report.RobustParams), ev.Score, 20, 0.10, rng,
				func(p map[string]float64) (float64, error) { return fullEval(e.normalize(Params(p))) },
			)
		} else {
			e.log.WithError(err).Warn("final backtest with robust parameters failed")
		}
	}

	report.Elapsed = time.Since(started)
	e.log.WithFields(logging.Fields{
		"run_id":     report.RunID,
		"successful": report.SuccessfulWindows,
		"total":      len(results),
		"elapsed":    report.Elapsed.String(),
	}).Info("walk-forward run finished")
	return report, nil
}

// optimizeWindow searches the train segment, then judges the winner on
// the untouched validation and test segments.
func (e *Engine) optimizeWindow(ctx context.Context, w Window) WindowResult {
	result := WindowResult{
		WindowID:    w.ID,
		TrainPeriod: fmt.Sprintf("%s..%s", w.TrainStart.Format("2006-01"), w.ValStart.Format("2006-01")),
		TestPeriod:  fmt.Sprintf("%s..%s", w.TestStart.Format("2006-01"), w.TestEnd.Format("2006-01")),
	}

	optimizer := e.newOptimizer(e.cfg.Optimization.Seed + int64(w.ID))
	objective := func(p Params) (float64, error) {
		ev, err := e.evaluate(p, w.Train)
		if err != nil {
			return 0, err
		}
		return ev.Score, nil
	}

	best, trainScore, err := optimizer.Search(ctx, e.space, objective, e.cfg.Optimization.TrialsPerWindow)
	if err != nil {
		result.FailureReason = FailureOptimizer
		return result
	}
	result.BestParams = best
	result.TrainScore = trainScore

	result.ValScore = trainScore
	if len(w.Val) > 0 {
		if ev, err := e.evaluate(best, w.Val); err == nil {
			result.ValScore = ev.Score
		}
	}

	testEval, err := e.evaluate(best, w.Test)
	if err != nil {
		result.FailureReason = FailureQuality
		return result
	}
	result.TestEval = *testEval
	result.TestScore = testEval.Score

	result.OverfittingDetected = e.overfit.DetectOverfitting(result.TrainScore, result.ValScore, result.TestScore)
	result.StatisticallyValid = e.validator.ValidateTrades(testEval.Trades).Valid

	switch {
	case testEval.Quality != metrics.QualityOK:
		result.FailureReason = FailureQuality
	case result.TestScore <= e.cfg.WalkForward.MinTestScore:
		result.FailureReason = FailureLowTestScore
	case result.OverfittingDetected:
		result.FailureReason = FailureOverfitting
	case !result.StatisticallyValid:
		result.FailureReason = FailureNotSignificant
	default:
		result.Success = true
	}
	return result
}

// evaluate backtests one parameter assignment on one candle slice.
func (e *Engine) evaluate(p Params, candles []models.Candle) (*Evaluation, error) {
	strategy, err := e.factory(p)
	if err != nil {
		return nil, fmt.Errorf("build strategy: %w", err)
	}

	runner := backtest.NewRunner(e.cfg, strategy, logging.NewNop())
	res, err := runner.Run(candles)
	if err != nil {
		return nil, err
	}

	return &Evaluation{
		Score:   metrics.Score(res.Metrics),
		Metrics: res.Metrics,
		Trades:  res.Trades,
		Quality: metrics.CheckQuality(res.Metrics),
	}, nil
}

// RobustParameters distills one assignment from the successful
// windows by a per-parameter marginal vote: group each parameter's
// winning values, pick the group with the best mean test score. A
// single successful window is not consensus, so fewer than two
// yields nil.
func (e *Engine) RobustParameters(results []WindowResult) Params {
	type group struct {
		values []float64
		scores []float64
	}

	votes := make(map[string]map[float64]*group)
	counted := 0
	for _, r := range results {
		if !r.Success || r.BestParams == nil {
			continue
		}
		counted++
		for name, v := range r.BestParams {
			key := math.Round(v*100) / 100
			if votes[name] == nil {
				votes[name] = make(map[float64]*group)
			}
			g := votes[name][key]
			if g == nil {
				g = &group{}
				votes[name][key] = g
			}
			g.values = append(g.values, v)
			g.scores = append(g.scores, r.TestScore)
		}
	}
	if counted < 2 {
		return nil
	}

	out := make(Params, len(votes))
	for name, groups := range votes {
		keys := make([]float64, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Float64s(keys)

		bestMean := math.Inf(-1)
		var bestValue float64
		for _, k := range keys {
			g := groups[k]
			mean := 0.0
			for _, s := range g.scores {
				mean += s
			}
			mean /= float64(len(g.scores))
			if mean > bestMean {
				bestMean = mean
				sum := 0.0
				for _, v := range g.values {
					sum += v
				}
				bestValue = sum / float64(len(g.values))
			}
		}
		out[name] = bestValue
	}
	return e.normalize(out)
}

// normalize snaps parameter values back onto their declared domain:
// integers rounded, bounds clamped, categoricals mapped to the nearest
// declared choice.
func (e *Engine) normalize(p Params) Params {
	out := p.Clone()
	for _, spec := range e.space.Specs {
		v, ok := out[spec.Name]
		if !ok {
			continue
		}
		switch spec.Kind {
		case KindInt:
			v = math.Round(v)
			v = math.Max(spec.Min, math.Min(spec.Max, v))
		case KindCategorical:
			nearest := spec.Choices[0]
			for _, c := range spec.Choices {
				if math.Abs(c-v) < math.Abs(nearest-v) {
					nearest = c
				}
			}
			v = nearest
		default:
			v = math.Max(spec.Min, math.Min(spec.Max, v))
		}
		out[spec.Name] = v
	}
	return out
}

// windowScores collects the evidence for the aggregate analysis from
// the windows that passed the acceptance ladder. Rejected windows carry
// scores that already failed their own checks and would only distort
// the aggregate.
func windowScores(results []WindowResult) []validation.WindowScore {
	out := make([]validation.WindowScore, 0, len(results))
	for _, r := range results {
		if !r.Success || r.BestParams == nil {
			continue
		}
		out = append(out, validation.WindowScore{
			WindowID:   r.WindowID,
			TrainScore: r.TrainScore,
			ValScore:   r.ValScore,
			TestScore:  r.TestScore,
			Params:     map[string]float64(r.BestParams),
			Profitable: r.TestEval.Metrics.TotalProfit > 0,
		})
	}
	return out
}
