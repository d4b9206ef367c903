package walkforward

import (
	"sort"
	"time"

	"github.com/quantforge/stratlab/internal/models"
	"github.com/quantforge/stratlab/internal/risk"
)

// Window is one contiguous train/validation/test split. Boundaries are
// month-aligned; each segment is [Start, End).
type Window struct {
	ID int

	TrainStart time.Time
	ValStart   time.Time
	TestStart  time.Time
	TestEnd    time.Time

	Train []models.Candle
	Val   []models.Candle
	Test  []models.Candle
}

// SplitWindows cuts the series into month-aligned walk-forward windows
// advancing by the configured step. The number of produced windows is
// floor((totalMonths - windowMonths) / stepMonths) + 1 when the data
// spans at least one full window, and the split fails when fewer than
// min_windows fit.
func (e *Engine) SplitWindows(candles []models.Candle) ([]Window, error) {
	wf := e.cfg.WalkForward

	if len(candles) == 0 {
		return nil, &risk.InsufficientDataError{What: "walk-forward split", Have: 0, Need: 1}
	}

	origin := monthStart(candles[0].Timestamp)
	last := candles[len(candles)-1].Timestamp
	// exclusive upper boundary: the start of the month after the last candle
	endBoundary := monthStart(last).AddDate(0, 1, 0)

	var windows []Window
	for k := 0; ; k++ {
		trainStart := origin.AddDate(0, k*wf.StepMonths, 0)
		valStart := trainStart.AddDate(0, wf.TrainMonths, 0)
		testStart := valStart.AddDate(0, wf.ValidationMonths, 0)
		testEnd := testStart.AddDate(0, wf.TestMonths, 0)
		if testEnd.After(endBoundary) {
			break
		}

		windows = append(windows, Window{
			ID:         len(windows),
			TrainStart: trainStart,
			ValStart:   valStart,
			TestStart:  testStart,
			TestEnd:    testEnd,
			Train:      sliceByTime(candles, trainStart, valStart),
			Val:        sliceByTime(candles, valStart, testStart),
			Test:       sliceByTime(candles, testStart, testEnd),
		})
	}

	if len(windows) < wf.MinWindows {
		return nil, &risk.InsufficientDataError{What: "walk-forward windows", Have: len(windows), Need: wf.MinWindows}
	}
	return windows, nil
}

// sliceByTime returns the candles with Timestamp in [from, to). The
// input must be sorted ascending.
func sliceByTime(candles []models.Candle, from, to time.Time) []models.Candle {
	lo := sort.Search(len(candles), func(i int) bool {
		return !candles[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(candles), func(i int) bool {
		return !candles[i].Timestamp.Before(to)
	})
	return candles[lo:hi]
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
