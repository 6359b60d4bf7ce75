package prob

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestIsDistribution(t *testing.T) {
	assert.True(t, IsDistribution([]float64{0.5, 0.5}))
	assert.True(t, IsDistribution([]float64{1}))
	assert.True(t, IsDistribution([]float64{0.2, 0.3, 0.5}))

	assert.False(t, IsDistribution(nil))
	assert.False(t, IsDistribution([]float64{0.5, 0.4}))
	assert.False(t, IsDistribution([]float64{-0.1, 1.1}))
	assert.False(t, IsDistribution([]float64{math.NaN(), 1}))
}

func TestIsDistributionTolerance(t *testing.T) {
	// Accumulated float error within SumTolerance still passes
	assert.True(t, IsDistribution([]float64{0.1, 0.2, 0.3, 0.4 + 5e-7}))
	assert.False(t, IsDistribution([]float64{0.1, 0.2, 0.3, 0.4 + 5e-6}))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{2, 6})
	assert.InDelta(t, 0.25, out[0], 1e-12)
	assert.InDelta(t, 0.75, out[1], 1e-12)

	// Zero vectors normalize to uniform rather than dividing by zero
	out = Normalize([]float64{0, 0, 0})
	for _, v := range out {
		assert.InDelta(t, 1.0/3, v, 1e-12)
	}
}

func TestUniform(t *testing.T) {
	assert.Nil(t, Uniform(0))
	assert.True(t, IsDistribution(Uniform(7)))
}

func TestEntropy(t *testing.T) {
	assert.Equal(t, 0.0, Entropy([]float64{1, 0}))
	assert.InDelta(t, math.Log(2), Entropy([]float64{0.5, 0.5}), 1e-12)
}

func TestNormalizedEntropy(t *testing.T) {
	assert.Equal(t, 0.0, NormalizedEntropy([]float64{1}))
	assert.InDelta(t, 1.0, NormalizedEntropy(Uniform(5)), 1e-12)
	assert.InDelta(t, 0.0, NormalizedEntropy([]float64{1, 0, 0}), 1e-12)
}

func TestTotalVariation(t *testing.T) {
	assert.Equal(t, 0.0, TotalVariation([]float64{0.5, 0.5}, []float64{0.5, 0.5}))
	assert.InDelta(t, 1.0, TotalVariation([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, 0.2, TotalVariation([]float64{0.5, 0.5}, []float64{0.3, 0.7}), 1e-12)
}

func TestMax(t *testing.T) {
	v, i := Max([]float64{0.1, 0.7, 0.2})
	assert.Equal(t, 0.7, v)
	assert.Equal(t, 1, i)

	v, i = Max(nil)
	assert.True(t, math.IsInf(v, -1))
	assert.Equal(t, -1, i)
}

func TestNormalizeProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	vecGen := gen.SliceOfN(4, gen.Float64Range(0, 100))

	properties.Property("normalize yields a distribution", prop.ForAll(
		func(vec []float64) bool {
			return IsDistribution(Normalize(vec))
		},
		vecGen,
	))

	properties.Property("total variation is symmetric and bounded", prop.ForAll(
		func(a, b []float64) bool {
			na, nb := Normalize(a), Normalize(b)
			tv := TotalVariation(na, nb)
			return tv >= 0 && tv <= 1+1e-12 &&
				math.Abs(tv-TotalVariation(nb, na)) < 1e-12
		},
		vecGen, vecGen,
	))

	properties.TestingRun(t)
}
