package walkforward

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crossoverSpace() Space {
	return Space{
		Specs: []ParamSpec{
			{Name: "fast", Kind: KindInt, Min: 3, Max: 30},
			{Name: "slow", Kind: KindInt, Min: 10, Max: 100},
			{Name: "tp", Kind: KindFloat, Min: 0.01, Max: 0.08, Step: 0.005},
		},
		Constraint: func(p Params) bool { return p["fast"] < p["slow"] },
	}
}

func TestRandomSearchHonorsBoundsAndConstraint(t *testing.T) {
	search := NewRandomSearch(1)

	var seen []Params
	objective := func(p Params) (float64, error) {
		seen = append(seen, p.Clone())
		return -p["fast"], nil
	}

	best, score, err := search.Search(context.Background(), crossoverSpace(), objective, 50)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, -best["fast"], score)

	for _, p := range seen {
		assert.Less(t, p["fast"], p["slow"])
		assert.GreaterOrEqual(t, p["fast"], 3.0)
		assert.LessOrEqual(t, p["fast"], 30.0)
		assert.GreaterOrEqual(t, p["tp"], 0.01)
		assert.LessOrEqual(t, p["tp"], 0.08)
		assert.Equal(t, p["fast"], float64(int(p["fast"])), "integer parameter stays whole")
	}
}

func TestRandomSearchDeterministicBySeed(t *testing.T) {
	objective := func(p Params) (float64, error) {
		return p["tp"]*100 - p["fast"], nil
	}

	a, scoreA, err := NewRandomSearch(42).Search(context.Background(), crossoverSpace(), objective, 30)
	require.NoError(t, err)
	b, scoreB, err := NewRandomSearch(42).Search(context.Background(), crossoverSpace(), objective, 30)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, scoreA, scoreB)
}

func TestRandomSearchSkipsFailedObjectives(t *testing.T) {
	calls := 0
	objective := func(p Params) (float64, error) {
		calls++
		if calls%2 == 0 {
			return 0, errors.New("no trades")
		}
		return 1.0, nil
	}

	best, score, err := NewRandomSearch(7).Search(context.Background(), crossoverSpace(), objective, 10)
	require.NoError(t, err)
	assert.NotNil(t, best)
	assert.Equal(t, 1.0, score)
}

func TestRandomSearchFailsWhenNothingEvaluates(t *testing.T) {
	objective := func(Params) (float64, error) {
		return 0, errors.New("always broken")
	}

	_, _, err := NewRandomSearch(7).Search(context.Background(), crossoverSpace(), objective, 5)
	require.Error(t, err)
}

func TestRandomSearchUnsatisfiableConstraint(t *testing.T) {
	space := crossoverSpace()
	space.Constraint = func(Params) bool { return false }

	_, _, err := NewRandomSearch(7).Search(context.Background(), space, func(Params) (float64, error) { return 1, nil }, 5)
	require.Error(t, err)
}

func TestRandomSearchEmptySpace(t *testing.T) {
	_, _, err := NewRandomSearch(7).Search(context.Background(), Space{}, func(Params) (float64, error) { return 1, nil }, 5)
	require.Error(t, err)
}

func TestRandomSearchRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewRandomSearch(7).Search(ctx, crossoverSpace(), func(Params) (float64, error) { return 1, nil }, 5)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSampleOneCategorical(t *testing.T) {
	search := NewRandomSearch(7)
	spec := ParamSpec{Name: "mode", Kind: KindCategorical, Choices: []float64{1, 2, 4}}

	for i := 0; i < 100; i++ {
		v := search.sampleOne(spec)
		assert.Contains(t, []float64{1, 2, 4}, v)
	}
}

func TestParamsClone(t *testing.T) {
	p := Params{"fast": 10}
	q := p.Clone()
	q["fast"] = 20
	assert.Equal(t, 10.0, p["fast"])
}
