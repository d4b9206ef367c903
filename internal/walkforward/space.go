package walkforward

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// Params is one concrete parameter assignment. All values are numeric;
// integer parameters carry whole values.
type Params map[string]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Parameter kinds.
const (
	KindInt         = "int"
	KindFloat       = "float"
	KindCategorical = "categorical"
)

// ParamSpec declares one searchable parameter.
type ParamSpec struct {
	Name    string
	Kind    string
	Min     float64
	Max     float64
	Step    float64   // optional grid step for int/float
	Choices []float64 // categorical values
}

// Space is a set of parameter specs plus an optional cross-parameter
// constraint (for example "fast period below slow period").
type Space struct {
	Specs      []ParamSpec
	Constraint func(Params) bool
}

// Objective scores a parameter assignment. Higher is better.
type Objective func(Params) (float64, error)

// Optimizer searches a space for the best-scoring parameters.
type Optimizer interface {
	Search(ctx context.Context, space Space, objective Objective, trials int) (Params, float64, error)
}

// RandomSearch is a seeded uniform random search. It retries samples
// that violate the space constraint and skips trials whose objective
// fails; only a fully failed search is an error.
type RandomSearch struct {
	rng *rand.Rand
}

func NewRandomSearch(seed int64) *RandomSearch {
	return &RandomSearch{rng: rand.New(rand.NewSource(seed))}
}

const constraintRetries = 100

func (r *RandomSearch) Search(ctx context.Context, space Space, objective Objective, trials int) (Params, float64, error) {
	if len(space.Specs) == 0 {
		return nil, 0, fmt.Errorf("empty parameter space")
	}

	var (
		best      Params
		bestScore = math.Inf(-1)
		evaluated int
	)
	for trial := 0; trial < trials; trial++ {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}

		candidate, err := r.sample(space)
		if err != nil {
			return nil, 0, err
		}

		score, err := objective(candidate)
		if err != nil {
			continue
		}
		evaluated++
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	if best == nil {
		return nil, 0, fmt.Errorf("random search: no successful evaluation in %d trials (%d objective calls)", trials, evaluated)
	}
	return best, bestScore, nil
}

func (r *RandomSearch) sample(space Space) (Params, error) {
	for attempt := 0; attempt < constraintRetries; attempt++ {
		p := make(Params, len(space.Specs))
		for _, spec := range space.Specs {
			p[spec.Name] = r.sampleOne(spec)
		}
		if space.Constraint == nil || space.Constraint(p) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("random search: constraint unsatisfiable after %d attempts", constraintRetries)
}

func (r *RandomSearch) sampleOne(spec ParamSpec) float64 {
	switch spec.Kind {
	case KindCategorical:
		return spec.Choices[r.rng.Intn(len(spec.Choices))]
	case KindInt:
		lo, hi := int(spec.Min), int(spec.Max)
		step := 1
		if spec.Step > 1 {
			step = int(spec.Step)
		}
		n := (hi-lo)/step + 1
		return float64(lo + step*r.rng.Intn(n))
	default:
		v := spec.Min + r.rng.Float64()*(spec.Max-spec.Min)
		if spec.Step > 0 {
			v = spec.Min + math.Round((v-spec.Min)/spec.Step)*spec.Step
			if v > spec.Max {
				v = spec.Max
			}
		}
		return v
	}
}
