package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/stratlab/internal/backtest"
)

func TestNewEMACrossValidation(t *testing.T) {
	_, err := NewEMACross(10, 5, 0.02)
	require.Error(t, err)

	_, err = NewEMACross(3, 10, -0.01)
	require.Error(t, err)

	s, err := NewEMACross(3, 10, 0.02)
	require.NoError(t, err)
	assert.Equal(t, "ema_cross_3_10", s.Name())
}

func TestEMACrossSignalsOnUpturn(t *testing.T) {
	s, err := NewEMACross(3, 5, 0.02)
	require.NoError(t, err)

	// a sharp jump after a downtrend drags the fast average across
	history := candlesFromCloses(12, 11, 10, 9, 8, 7, 6, 5, 20)
	sig, err := s.Analyze(history)
	require.NoError(t, err)
	assert.Equal(t, backtest.ActionBuy, sig.Action)
	assert.InDelta(t, 20*1.02, sig.TakeProfit, 1e-9)
}

func TestEMACrossHoldsShortHistory(t *testing.T) {
	s, err := NewEMACross(3, 5, 0.02)
	require.NoError(t, err)

	sig, err := s.Analyze(candlesFromCloses(10, 11, 12))
	require.NoError(t, err)
	assert.Equal(t, backtest.ActionHold, sig.Action)
}
