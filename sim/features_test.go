package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformFeatures_DrawsAgentMajor(t *testing.T) {
	// GIVEN two generators with the same seed
	got, err := UniformFeatures{RNG: rand.New(rand.NewSource(3))}.Features(4, 3)
	require.NoError(t, err)
	ref := rand.New(rand.NewSource(3))

	// THEN features are the first N*D draws, agent by agent
	require.Len(t, got, 4)
	for i := range got {
		require.Len(t, got[i], 3)
		for k := range got[i] {
			assert.Equal(t, ref.Float64(), got[i][k])
		}
	}
}

func TestUniformFeatures_NeedsRandomSource(t *testing.T) {
	_, err := UniformFeatures{}.Features(2, 2)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSimplexFeatures_DeterministicAndInRange(t *testing.T) {
	a, err := SimplexFeatures{Seed: 11}.Features(20, 4)
	require.NoError(t, err)
	b, err := SimplexFeatures{Seed: 11}.Features(20, 4)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	for i := range a {
		for k, x := range a[i] {
			if x < 0 || x >= 1 {
				t.Errorf("feature[%d][%d] = %v, want [0, 1)", i, k, x)
			}
		}
	}
}

func TestFixedFeatures_ValidatesShape(t *testing.T) {
	f := FixedFeatures{{0, 1}, {2, 3}}

	got, err := f.Features(2, 2)
	require.NoError(t, err)
	got[0][0] = 99
	assert.Equal(t, 0.0, f[0][0], "Features must return a copy")

	_, err = f.Features(3, 2)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = f.Features(2, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = f.Features(0, 2)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseFeatureKind(t *testing.T) {
	tests := []struct {
		name    string
		want    FeatureKind
		wantErr bool
	}{
		{"", FeaturesUniform, false},
		{"uniform", FeaturesUniform, false},
		{"simplex", FeaturesSimplex, false},
		{"gaussian", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFeatureKind(tt.name)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidConfig, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
	}
}
