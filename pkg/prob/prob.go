// Package prob provides small numeric helpers for working with discrete
// probability vectors. All distributions in the engine are dense float64
// slices indexed by state.
package prob

import "math"

// SumTolerance is the maximum deviation from 1.0 a probability vector may
// have and still be accepted as a valid distribution.
const SumTolerance = 1e-6

// Sum returns the sum of the vector.
func Sum(vec []float64) float64 {
	total := 0.0
	for _, v := range vec {
		total += v
	}
	return total
}

// IsDistribution reports whether vec is a valid probability distribution:
// non-empty, every entry in [0,1], and summing to 1 within SumTolerance.
func IsDistribution(vec []float64) bool {
	if len(vec) == 0 {
		return false
	}
	for _, v := range vec {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(Sum(vec)-1.0) <= SumTolerance
}

// Normalize returns a copy of vec scaled to sum to 1. A zero vector is
// returned as a uniform distribution so callers never divide by zero.
func Normalize(vec []float64) []float64 {
	out := make([]float64, len(vec))
	total := Sum(vec)
	if total <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(len(vec))
		}
		return out
	}
	for i, v := range vec {
		out[i] = v / total
	}
	return out
}

// Uniform returns the uniform distribution over n states.
func Uniform(n int) []float64 {
	if n <= 0 {
		return nil
	}
	vec := make([]float64, n)
	for i := range vec {
		vec[i] = 1.0 / float64(n)
	}
	return vec
}

// Entropy returns the Shannon entropy of the distribution in nats.
// Zero entries contribute nothing.
func Entropy(vec []float64) float64 {
	h := 0.0
	for _, v := range vec {
		if v > 0 {
			h -= v * math.Log(v)
		}
	}
	return h
}

// NormalizedEntropy returns the entropy scaled into [0,1] by the maximum
// entropy log(n). A vector with fewer than two entries has entropy 0.
func NormalizedEntropy(vec []float64) float64 {
	if len(vec) < 2 {
		return 0
	}
	maxH := math.Log(float64(len(vec)))
	if maxH == 0 {
		return 0
	}
	return Entropy(vec) / maxH
}

// TotalVariation returns the total variation distance between two
// distributions of equal length: half the L1 distance.
func TotalVariation(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		d += math.Abs(a[i] - b[i])
	}
	return d / 2
}

// Max returns the largest entry in the vector and its index.
func Max(vec []float64) (float64, int) {
	best, idx := math.Inf(-1), -1
	for i, v := range vec {
		if v > best {
			best, idx = v, i
		}
	}
	return best, idx
}
