// Package validation judges walk-forward output: per-window overfitting
// detection, an aggregate overfitting score, and parameter robustness.
package validation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
)

// WindowScore is the per-window evidence the analyzer consumes.
type WindowScore struct {
	WindowID   int
	TrainScore float64
	ValScore   float64
	TestScore  float64
	Params     map[string]float64
	Profitable bool
}

// Risk bands of the aggregate overfitting score.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// Analysis is the aggregate verdict over all windows.
type Analysis struct {
	OverfittingScore   float64
	RiskBand           string
	ScoreStability     float64
	ParameterStability float64
	ProfitableRatio    float64
	MeanDegradation    float64
	Warnings           []string
}

// Engine evaluates overfitting evidence.
type Engine struct {
	cfg *config.Config
	log *logging.Logger
}

func NewEngine(cfg *config.Config, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{cfg: cfg, log: log}
}

// DetectOverfitting flags a window whose out-of-sample score degrades
// too far from the in-sample one. Non-finite scores always flag: a
// score that cannot be computed cannot be trusted.
func (e *Engine) DetectOverfitting(train, val, test float64) bool {
	for _, s := range []float64{train, val, test} {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return true
		}
	}

	maxDeg := e.cfg.Overfitting.MaxScoreDegradation
	if degradation(val, test) > maxDeg {
		return true
	}
	if degradation(train, test) > maxDeg {
		return true
	}
	if train > 0 && test < 0.6*train {
		return true
	}
	return false
}

// degradation is the relative fall from a to b, zero when a is not a
// meaningful baseline.
func degradation(a, b float64) float64 {
	if a <= 0 {
		return 0
	}
	d := (a - b) / a
	if d < 0 {
		return 0
	}
	return d
}

// Analyze produces the aggregate overfitting score on a 0..100 scale.
// Four components contribute: test-score dispersion (up to 30),
// parameter instability (up to 25), an implausibly high profitable
// ratio (up to 25), and mean train-to-test degradation (up to 20).
func (e *Engine) Analyze(windows []WindowScore) *Analysis {
	out := &Analysis{RiskBand: RiskLow}
	if len(windows) == 0 {
		out.Warnings = append(out.Warnings, "no windows to analyze")
		return out
	}
	if len(windows) < 2 {
		out.Warnings = append(out.Warnings, "not enough windows to judge overfitting")
		return out
	}

	testScores := make([]float64, len(windows))
	degradations := make([]float64, len(windows))
	profitable := 0
	for i, w := range windows {
		testScores[i] = w.TestScore
		degradations[i] = degradation(w.TrainScore, w.TestScore)
		if w.Profitable {
			profitable++
		}
	}

	mean, std := stat.MeanStdDev(testScores, nil)
	cv := 0.0
	if math.Abs(mean) > 1e-12 {
		cv = math.Abs(std / mean)
	}
	out.ScoreStability = cv
	out.ParameterStability = parameterStability(windows)
	out.ProfitableRatio = float64(profitable) / float64(len(windows))
	out.MeanDegradation = stat.Mean(degradations, nil)

	score := math.Min(30, cv*50)
	score += (1 - out.ParameterStability) * 25
	if out.ProfitableRatio > 0.8 {
		score += math.Min(25, (out.ProfitableRatio-0.8)*125)
	}
	score += math.Min(20, out.MeanDegradation*50)
	out.OverfittingScore = math.Min(100, score)

	switch {
	case out.OverfittingScore > e.cfg.Overfitting.HighRiskScore:
		out.RiskBand = RiskHigh
	case out.OverfittingScore >= e.cfg.Overfitting.ModerateRiskScore:
		out.RiskBand = RiskModerate
	}

	if cv > 1 {
		out.Warnings = append(out.Warnings, "test scores vary widely across windows")
	}
	if out.ParameterStability < 0.5 {
		out.Warnings = append(out.Warnings, "selected parameters are unstable across windows")
	}
	if out.ProfitableRatio > 0.9 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%.0f%% of windows profitable, suspiciously high", out.ProfitableRatio*100))
	}
	return out
}

// parameterStability measures how consistently the same parameter
// values win across windows: per parameter one minus the normalized
// dispersion, averaged over parameters.
func parameterStability(windows []WindowScore) float64 {
	if len(windows) < 2 {
		return 1
	}

	values := make(map[string][]float64)
	for _, w := range windows {
		for name, v := range w.Params {
			values[name] = append(values[name], v)
		}
	}
	if len(values) == 0 {
		return 1
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0.0
	for _, name := range names {
		vs := values[name]
		mean, std := stat.MeanStdDev(vs, nil)
		if math.Abs(mean) < 1e-12 {
			if std < 1e-12 {
				total += 1
			}
			continue
		}
		cv := math.Abs(std / mean)
		total += math.Max(0, 1-cv)
	}
	return total / float64(len(names))
}

// RobustnessResult reports how the best parameters behave under noise.
type RobustnessResult struct {
	Variations     int
	BaseScore      float64
	MeanScore      float64
	ScoreCV        float64
	BetterFraction float64
	Robust         bool
}

// Robustness re-evaluates Gaussian-noise variations of the best
// parameters. A robust optimum keeps a similar score in its
// neighborhood and is not dominated by many better neighbors, which
// would mean the search landed on a spike.
func (e *Engine) Robustness(base map[string]float64, baseScore float64, variations int, noiseLevel float64, rng *rand.Rand, eval func(map[string]float64) (float64, error)) RobustnessResult {
	out := RobustnessResult{Variations: variations, BaseScore: baseScore}
	if variations < 2 {
		return out
	}

	scores := make([]float64, 0, variations)
	better := 0
	for i := 0; i < variations; i++ {
		candidate := make(map[string]float64, len(base))
		for name, v := range base {
			candidate[name] = v * (1 + rng.NormFloat64()*noiseLevel)
		}
		score, err := eval(candidate)
		if err != nil {
			continue
		}
		scores = append(scores, score)
		if score > baseScore {
			better++
		}
	}
	if len(scores) < 2 {
		return out
	}

	mean, std := stat.MeanStdDev(scores, nil)
	out.MeanScore = mean
	if math.Abs(mean) > 1e-12 {
		out.ScoreCV = math.Abs(std / mean)
	}
	out.BetterFraction = float64(better) / float64(len(scores))
	out.Robust = out.ScoreCV < 0.5 && out.BetterFraction <= 0.3
	return out
}
