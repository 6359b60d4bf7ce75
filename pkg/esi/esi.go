// Package esi computes the Evidence Sufficiency Index: a composite score
// summarizing how much evidence an inference result rested on and how
// reliable that evidence was. The score travels with every alert so a
// reviewer can tell a well-evidenced high posterior from a thin one.
package esi

import (
	"fmt"
	"math"

	"golang.org/x/exp/maps"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/inference"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

// Label is the categorical sufficiency band of a score.
type Label string

const (
	LabelHigh     Label = "high"
	LabelModerate Label = "moderate"
	LabelLow      Label = "low"
)

// Weights are the component weights of the composite score. They must be
// non-negative and sum to 1.
type Weights struct {
	ActivationRatio     float64 `yaml:"activation_ratio" json:"activation_ratio"`
	MeanConfidence      float64 `yaml:"mean_confidence" json:"mean_confidence"`
	FallbackPenalty     float64 `yaml:"fallback_penalty" json:"fallback_penalty"`
	ContributionEntropy float64 `yaml:"contribution_entropy" json:"contribution_entropy"`
	ClusterDiversity    float64 `yaml:"cluster_diversity" json:"cluster_diversity"`
}

// DefaultWeights weight direct evidence volume and posterior confidence
// highest, with fallback reliance penalized next.
func DefaultWeights() Weights {
	return Weights{
		ActivationRatio:     0.25,
		MeanConfidence:      0.25,
		FallbackPenalty:     0.20,
		ContributionEntropy: 0.15,
		ClusterDiversity:    0.15,
	}
}

// Validate checks the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.ActivationRatio, w.MeanConfidence, w.FallbackPenalty, w.ContributionEntropy, w.ClusterDiversity} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("esi weights: negative or NaN component %v", v)
		}
	}
	sum := w.ActivationRatio + w.MeanConfidence + w.FallbackPenalty + w.ContributionEntropy + w.ClusterDiversity
	if math.Abs(sum-1) > prob.SumTolerance {
		return fmt.Errorf("esi weights sum to %.9f, want 1", sum)
	}
	return nil
}

// Cutoffs map a score onto a label. A score >= High is "high",
// >= Moderate is "moderate", anything below is "low".
type Cutoffs struct {
	High     float64 `yaml:"high" json:"high"`
	Moderate float64 `yaml:"moderate" json:"moderate"`
}

// DefaultCutoffs returns the standard banding.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{High: 0.85, Moderate: 0.65}
}

// Label bands a score.
func (c Cutoffs) Label(score float64) Label {
	switch {
	case score >= c.High:
		return LabelHigh
	case score >= c.Moderate:
		return LabelModerate
	default:
		return LabelLow
	}
}

// Components are the five raw inputs to the composite, each in [0,1].
type Components struct {
	// ActivationRatio is |active nodes| / |evidence nodes|.
	ActivationRatio float64 `json:"activation_ratio"`
	// MeanConfidence is the mean maximum posterior probability across
	// the query nodes.
	MeanConfidence float64 `json:"mean_confidence"`
	// FallbackRatio is |fallback used| / |evidence nodes|. The composite
	// uses its complement.
	FallbackRatio float64 `json:"fallback_ratio"`
	// ContributionEntropy is the normalized Shannon entropy of the
	// per-node contribution values: 1 when evidence is balanced, 0 when
	// a single node carries the result.
	ContributionEntropy float64 `json:"contribution_entropy"`
	// ClusterDiversity is the share of fan-in clusters with at least one
	// active member, 1 for networks without clusters.
	ClusterDiversity float64 `json:"cluster_diversity"`
}

// Result is the scored index with its banding and the component
// breakdown, fully serializable for the audit trail.
type Result struct {
	Score      float64    `json:"score"`
	Label      Label      `json:"label"`
	Components Components `json:"components"`
}

// Calculator computes scores under a fixed weight and cutoff
// configuration.
type Calculator struct {
	weights Weights
	cutoffs Cutoffs
}

// NewCalculator builds a calculator, rejecting invalid weights.
func NewCalculator(weights Weights, cutoffs Cutoffs) (*Calculator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if cutoffs.High < cutoffs.Moderate {
		return nil, fmt.Errorf("esi cutoffs: high %.3f below moderate %.3f", cutoffs.High, cutoffs.Moderate)
	}
	return &Calculator{weights: weights, cutoffs: cutoffs}, nil
}

// NewDefaultCalculator builds a calculator with the default weights and
// cutoffs.
func NewDefaultCalculator() *Calculator {
	c, _ := NewCalculator(DefaultWeights(), DefaultCutoffs())
	return c
}

// Compute scores an inference result against the network it ran on. The
// score is rounded to three decimal places before banding.
func (c *Calculator) Compute(net *network.CompiledNetwork, result *inference.Result) *Result {
	comp := c.components(net, result)
	score := c.weights.ActivationRatio*comp.ActivationRatio +
		c.weights.MeanConfidence*comp.MeanConfidence +
		c.weights.FallbackPenalty*(1-comp.FallbackRatio) +
		c.weights.ContributionEntropy*comp.ContributionEntropy +
		c.weights.ClusterDiversity*comp.ClusterDiversity

	score = math.Round(score*1000) / 1000
	return &Result{
		Score:      score,
		Label:      c.cutoffs.Label(score),
		Components: comp,
	}
}

func (c *Calculator) components(net *network.CompiledNetwork, result *inference.Result) Components {
	evidenceCount := len(net.EvidenceNodes())

	comp := Components{
		MeanConfidence:      meanConfidence(result),
		ContributionEntropy: contributionEntropy(result.Contributions),
		ClusterDiversity:    clusterDiversity(net, result.ActiveNodes),
	}
	if evidenceCount > 0 {
		comp.ActivationRatio = float64(len(result.ActiveNodes)) / float64(evidenceCount)
		comp.FallbackRatio = float64(len(result.FallbackUsed)) / float64(evidenceCount)
	}
	return comp
}

// meanConfidence averages the peak posterior probability over the query
// nodes.
func meanConfidence(result *inference.Result) float64 {
	if len(result.Posteriors) == 0 {
		return 0
	}
	total := 0.0
	for _, post := range result.Posteriors {
		peak, _ := prob.Max(post.Probs)
		total += peak
	}
	return total / float64(len(result.Posteriors))
}

// contributionEntropy normalizes the contribution values into a
// distribution and measures how evenly they spread. A single contributing
// node, or none, scores 0: the result hangs on one piece of evidence.
func contributionEntropy(contributions map[string]float64) float64 {
	if len(contributions) < 2 {
		return 0
	}
	vals := maps.Values(contributions)
	if prob.Sum(vals) <= 0 {
		return 0
	}
	return prob.NormalizedEntropy(prob.Normalize(vals))
}

// clusterDiversity is the fraction of fan-in clusters holding at least
// one active node. Networks without clusters score 1: there is no
// cross-cluster corroboration to ask for.
func clusterDiversity(net *network.CompiledNetwork, active []string) float64 {
	clusters := net.Clusters()
	if len(clusters) == 0 {
		return 1
	}
	hit := make(map[string]struct{})
	for _, id := range active {
		if cl := net.ClusterOf(id); cl != "" {
			hit[cl] = struct{}{}
		}
	}
	return float64(len(hit)) / float64(len(clusters))
}
