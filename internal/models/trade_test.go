package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSideValid(t *testing.T) {
	assert.True(t, SideBuy.Valid())
	assert.True(t, SideSell.Valid())
	assert.False(t, Side("LONG").Valid())
	assert.False(t, Side("").Valid())
}

func TestExitReasonValid(t *testing.T) {
	assert.True(t, ExitTakeProfit.Valid())
	assert.True(t, ExitStopLoss.Valid())
	assert.True(t, ExitManual.Valid())
	assert.False(t, ExitReason("LIQUIDATION").Valid())
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 03:00 on March 6 in UTC+9 is still March 5 in UTC
	ts := time.Date(2024, 3, 6, 3, 0, 0, 0, loc)
	assert.Equal(t, "2024-03-05", DayKey(ts))
}
