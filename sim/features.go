package sim

import (
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// FeatureSource produces the immutable feature vectors of n agents with d
// components each.
type FeatureSource interface {
	Features(n, d int) ([][]float64, error)
}

// FeatureKind names a FeatureSource selectable from configuration.
type FeatureKind string

const (
	FeaturesUniform FeatureKind = "uniform"
	FeaturesSimplex FeatureKind = "simplex"
)

// ValidFeatureKinds is the set of recognized feature kind names.
var ValidFeatureKinds = map[FeatureKind]bool{"": true, FeaturesUniform: true, FeaturesSimplex: true}

// ParseFeatureKind validates a feature kind name. Empty means uniform.
func ParseFeatureKind(name string) (FeatureKind, error) {
	kind := FeatureKind(name)
	if !ValidFeatureKinds[kind] {
		return "", fmt.Errorf("%w: unknown feature kind %q", ErrInvalidConfig, name)
	}
	if kind == "" {
		kind = FeaturesUniform
	}
	return kind, nil
}

func checkShape(n, d int) error {
	if n <= 0 || d <= 0 {
		return fmt.Errorf("%w: need n > 0 and d > 0, got n=%d d=%d", ErrInvalidConfig, n, d)
	}
	return nil
}

// UniformFeatures draws every component uniformly from [0, 1), agent by agent.
type UniformFeatures struct {
	RNG RandomSource
}

// Features draws n vectors of d uniform components.
func (u UniformFeatures) Features(n, d int) ([][]float64, error) {
	if err := checkShape(n, d); err != nil {
		return nil, err
	}
	if u.RNG == nil {
		return nil, fmt.Errorf("%w: uniform features need a random source", ErrInvalidConfig)
	}
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, d)
		for k := range v {
			v[k] = u.RNG.Float64()
		}
		out[i] = v
	}
	return out, nil
}

// SimplexFeatures samples normalized OpenSimplex noise on the grid
// (agent*Frequency, component*Frequency). Neighbouring agents get correlated
// features, which produces spatially clustered populations.
type SimplexFeatures struct {
	Seed      int64
	Frequency float64 // defaults to 0.1 when zero
}

// Features samples n vectors of d noise values.
func (s SimplexFeatures) Features(n, d int) ([][]float64, error) {
	if err := checkShape(n, d); err != nil {
		return nil, err
	}
	freq := s.Frequency
	if freq == 0 {
		freq = 0.1
	}
	noise := opensimplex.NewNormalized(s.Seed)
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, d)
		for k := range v {
			x := noise.Eval2(float64(i)*freq, float64(k)*freq)
			// Eval2 of the normalized generator is in [0, 1]; keep the
			// half-open range uniform features use
			if x >= 1 {
				x = 0.9999999999999999
			}
			v[k] = x
		}
		out[i] = v
	}
	return out, nil
}

// FixedFeatures hands out caller-supplied vectors.
type FixedFeatures [][]float64

// Features returns a copy of the vectors after checking they are n by d.
func (f FixedFeatures) Features(n, d int) ([][]float64, error) {
	if err := checkShape(n, d); err != nil {
		return nil, err
	}
	if len(f) != n {
		return nil, fmt.Errorf("%w: have %d feature vectors, want %d", ErrInvalidConfig, len(f), n)
	}
	out := make([][]float64, n)
	for i, v := range f {
		if len(v) != d {
			return nil, fmt.Errorf("%w: agent %d has %d components, want %d", ErrDimensionMismatch, i, len(v), d)
		}
		out[i] = append([]float64(nil), v...)
	}
	return out, nil
}
