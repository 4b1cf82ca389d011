// Package testutil provides shared float assertion helpers for the sim test
// packages.
package testutil

import (
	"math"
	"testing"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertSumsTo checks that the values add up to want within an absolute
// tolerance.
func AssertSumsTo(t *testing.T, name string, values []float64, want, absTol float64) {
	t.Helper()
	var sum float64
	for _, v := range values {
		sum += v
	}
	if math.Abs(sum-want) > absTol {
		t.Errorf("%s: sum = %v, want %v (tol %v)", name, sum, want, absTol)
	}
}
