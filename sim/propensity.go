package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// MeanManhattan returns the Manhattan distance between a and b divided by the
// number of components. Vectors of different (or zero) length are rejected.
func MeanManhattan(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d components", ErrDimensionMismatch, len(a), len(b))
	}
	var d float64
	for k := range a {
		d += math.Abs(a[k] - b[k])
	}
	return d / float64(len(a)), nil
}

// BuildPropensities computes the initial pair propensities of a population.
//
// Every unordered pair (i, j <= i), diagonal included, is scored with
// -selectivity * MeanManhattan(x_i, x_j). The scores go through one softmax
// in row-major order, so the probability of pair (i, j) lands on slot
// TriangleIndex(i, j). Diagonal slots are then zeroed: self-pairs take part
// in the normalization but can never be selected.
//
// Weights that underflow to zero are raised to the smallest positive float64,
// so every off-diagonal pair stays selectable.
//
// The returned normalization constant is the softmax LogSum; the engine uses
// it to rescale time.
func BuildPropensities(features [][]float64, selectivity float64) (*LowerTriangle, float64, error) {
	n := len(features)
	if n == 0 {
		return nil, 0, fmt.Errorf("%w: no agents", ErrInvalidConfig)
	}

	scores := make([]float64, 0, TriangleSize(n))
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			d, err := MeanManhattan(features[i], features[j])
			if err != nil {
				return nil, 0, fmt.Errorf("agents %d and %d: %w", i, j, err)
			}
			scores = append(scores, -selectivity*d)
		}
	}

	sm, err := LogSumExp(scores)
	if err != nil {
		return nil, 0, fmt.Errorf("propensity softmax: %w", err)
	}

	lt := NewLowerTriangle(n)
	underflow := 0
	for i, p := range sm.Probs {
		if p == 0 {
			// far pairs underflow float64 at high selectivity; keep them
			// selectable so the population can still collapse
			p = math.SmallestNonzeroFloat64
			underflow++
		}
		if err := lt.SetAt(i, p); err != nil {
			return nil, 0, err
		}
	}
	if underflow > 0 {
		logrus.Warnf("propensities: %d of %d pair weights underflowed at selectivity %v, clamped to %g",
			underflow, len(sm.Probs), selectivity, math.SmallestNonzeroFloat64)
	}
	for i := 0; i < n; i++ {
		if err := lt.Set(i, i, 0); err != nil {
			return nil, 0, err
		}
	}
	return lt, sm.LogSum, nil
}
