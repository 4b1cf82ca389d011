package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coalescence-sim/coalescence-sim/sim/internal/testutil"
)

func TestLogSumExp_KnownValues(t *testing.T) {
	// GIVEN scores whose exponentials are 1 and 3
	sm, err := LogSumExp([]float64{0, math.Log(3)})
	require.NoError(t, err)

	// THEN the anchor is the max, the log-sum is ln 4 and p = (1/4, 3/4)
	assert.Equal(t, math.Log(3), sm.Anchor)
	assert.InDelta(t, math.Log(4), sm.LogSum, 1e-12)
	assert.InDelta(t, 0.25, sm.Probs[0], 1e-12)
	assert.InDelta(t, 0.75, sm.Probs[1], 1e-12)
}

func TestLogSumExp_ProbabilitiesSumToOne(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
	}{
		{"single", []float64{-3.2}},
		{"uniform", []float64{1, 1, 1, 1}},
		{"spread", []float64{-50, -1, 0, 2.5, 7}},
		{"huge positive", []float64{1e4, 1e4 - 1, 1e4 - 2}},
		{"huge negative", []float64{-1e4, -1e4 - 3}},
		{"with -Inf", []float64{math.Inf(-1), 0, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := LogSumExp(tt.x)
			require.NoError(t, err)
			require.Len(t, sm.Probs, len(tt.x))
			testutil.AssertSumsTo(t, tt.name, sm.Probs, 1.0, 1e-12)
			for i, p := range sm.Probs {
				if p < 0 || p > 1 || math.IsNaN(p) {
					t.Errorf("p[%d] = %v, want in [0, 1]", i, p)
				}
			}
		})
	}
}

func TestLogSumExp_ShiftInvariance(t *testing.T) {
	// GIVEN a score list and the same list shifted by a constant
	x := []float64{-0.3, 0.1, 2, -7}
	const shift = 123.25
	shifted := make([]float64, len(x))
	for i := range x {
		shifted[i] = x[i] + shift
	}

	a, err := LogSumExp(x)
	require.NoError(t, err)
	b, err := LogSumExp(shifted)
	require.NoError(t, err)

	// THEN probabilities are unchanged and the log-sum moves by the shift
	for i := range x {
		assert.InDelta(t, a.Probs[i], b.Probs[i], 1e-12)
	}
	assert.InDelta(t, a.LogSum+shift, b.LogSum, 1e-9)
}

func TestLogSumExp_LargeInputsDoNotOverflow(t *testing.T) {
	sm, err := LogSumExp([]float64{1000, 1000})
	require.NoError(t, err)
	assert.InDelta(t, 1000+math.Ln2, sm.LogSum, 1e-9)
	assert.InDelta(t, 0.5, sm.Probs[0], 1e-12)
}

func TestLogSumExp_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
	}{
		{"empty", nil},
		{"NaN", []float64{0, math.NaN()}},
		{"all -Inf", []float64{math.Inf(-1), math.Inf(-1)}},
		{"+Inf", []float64{0, math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LogSumExp(tt.x)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("LogSumExp(%v) error = %v, want ErrInvalidInput", tt.x, err)
			}
		})
	}
}
