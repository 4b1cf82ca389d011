package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Softmax is the result of a log-sum-exp evaluation over a list of scores.
type Softmax struct {
	Anchor float64   // max(x), subtracted before exponentiation
	LogSum float64   // Anchor + ln(sum(exp(x_i - Anchor)))
	Probs  []float64 // exp(x_i - LogSum), same order as the input
}

// LogSumExp evaluates the numerically stable log-sum-exp of x and the
// categorical distribution it induces.
//
// The max score is used as an anchor so that exp never overflows: every
// shifted exponent is <= 0 and the largest is exactly 1. Inputs that leave no
// finite anchor (empty, NaN, all -Inf, any +Inf) are rejected with
// ErrInvalidInput.
func LogSumExp(x []float64) (Softmax, error) {
	if len(x) == 0 {
		return Softmax{}, fmt.Errorf("%w: log-sum-exp of empty score list", ErrInvalidInput)
	}
	if floats.HasNaN(x) {
		return Softmax{}, fmt.Errorf("%w: log-sum-exp input contains NaN", ErrInvalidInput)
	}
	c := floats.Max(x)
	if math.IsInf(c, 0) {
		return Softmax{}, fmt.Errorf("%w: log-sum-exp anchor is %v", ErrInvalidInput, c)
	}

	var acc float64
	for _, xi := range x {
		acc += math.Exp(xi - c)
	}
	y := c + math.Log(acc)

	probs := make([]float64, len(x))
	for i, xi := range x {
		probs[i] = math.Exp(xi - y)
	}
	return Softmax{Anchor: c, LogSum: y, Probs: probs}, nil
}
