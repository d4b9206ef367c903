// Package dataset loads OHLCV candle series from CSV files and
// enforces the ordering invariants the replay loop depends on.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/quantforge/stratlab/internal/models"
)

// LoadCSV reads a candle series from a CSV file with the header
// timestamp,open,high,low,close,volume. Timestamps are RFC 3339 or
// unix seconds. The loaded series is validated before being returned.
func LoadCSV(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	candles, err := readCandles(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if err := Validate(candles); err != nil {
		return nil, fmt.Errorf("validate dataset %s: %w", path, err)
	}
	return candles, nil
}

func readCandles(r io.Reader) ([]models.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 6 {
		return nil, fmt.Errorf("expected 6 columns, got %d", len(header))
	}

	var candles []models.Candle
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		values := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
			values[i] = v
		}

		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return candles, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Validate checks the series invariants: strictly ascending unique
// timestamps and internally consistent bars (low <= open/close <= high).
func Validate(candles []models.Candle) error {
	for i, c := range candles {
		if c.High < c.Low {
			return fmt.Errorf("candle %d: high %.8f below low %.8f", i, c.High, c.Low)
		}
		if c.Open > c.High || c.Open < c.Low {
			return fmt.Errorf("candle %d: open %.8f outside [low, high]", i, c.Open)
		}
		if c.Close > c.High || c.Close < c.Low {
			return fmt.Errorf("candle %d: close %.8f outside [low, high]", i, c.Close)
		}
		if i == 0 {
			continue
		}
		prev := candles[i-1].Timestamp
		if !c.Timestamp.After(prev) {
			return fmt.Errorf("candle %d: timestamp %s not after previous %s", i, c.Timestamp, prev)
		}
	}
	return nil
}
