// Package inference computes exact posterior marginals over compiled
// evidence networks. Execution is pure: given an immutable network and a
// resolved evidence assignment it touches no shared state, so any number
// of inferences may run concurrently.
package inference

import (
	"context"
	"time"

	"golang.org/x/exp/slices"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/evidence"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

// Posterior is one query node's exact marginal distribution.
type Posterior struct {
	States []string  `json:"states"`
	Probs  []float64 `json:"probs"`
}

// Result is the full, serializable outcome of one inference run. Audit
// fields (active nodes, fallback set, CPT provenance) are always carried,
// whatever the caller does with the posteriors.
type Result struct {
	NetworkHash  string               `json:"network_hash"`
	Posteriors   map[string]Posterior `json:"posteriors"`
	ActiveNodes  []string             `json:"active_nodes"`
	FallbackUsed []string             `json:"fallback_used"`
	// Contributions holds, per active or fallback node, the total
	// variation shift of the primary query posterior when that node's
	// evidence is toggled out.
	Contributions map[string]float64 `json:"contributions"`
	Completeness  float64            `json:"evidence_completeness"`
	CPTRefs       map[string]string  `json:"cpt_refs"`
	CPTVersions   map[string]int     `json:"cpt_versions"`
	Elapsed       time.Duration      `json:"elapsed_ns"`
}

// Executor runs exact inference over compiled networks.
type Executor struct {
	logger logging.Logger
}

// NewExecutor creates an executor.
func NewExecutor(logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Executor{logger: logger}
}

// Infer computes exact posteriors for every query node under the resolved
// evidence, plus the per-node contribution trace. The caller bounds the
// run through ctx; an elapsed deadline surfaces as a TimeoutError with no
// partial state left behind.
func (e *Executor) Infer(ctx context.Context, net *network.CompiledNetwork, res *evidence.Resolved, query []string) (*Result, error) {
	started := time.Now()
	if len(query) == 0 {
		return nil, &evidence.EvidenceError{Reason: "no query nodes given"}
	}

	result := &Result{
		NetworkHash:   net.Hash(),
		Posteriors:    make(map[string]Posterior, len(query)),
		ActiveNodes:   slices.Clone(res.Observed),
		FallbackUsed:  slices.Clone(res.FallbackUsed),
		Contributions: make(map[string]float64),
		Completeness:  res.Completeness,
		CPTRefs:       net.CPTRefs(),
		CPTVersions:   net.CPTVersions(),
	}

	for _, q := range query {
		post, err := marginal(ctx, net, res, q, started)
		if err != nil {
			return nil, err
		}
		node, _ := net.Node(q)
		result.Posteriors[q] = Posterior{
			States: slices.Clone(node.Node.States),
			Probs:  post,
		}
	}

	if err := e.traceContributions(ctx, net, res, query[0], result, started); err != nil {
		return nil, err
	}

	result.Elapsed = time.Since(started)
	e.logger.Debug("inference complete",
		logging.NetworkHash(net.Hash()),
		logging.Int("query_nodes", len(query)),
		logging.Duration("elapsed", result.Elapsed))
	return result, nil
}

// traceContributions measures every evidence node's marginal effect on
// the primary query posterior: the node's evidence is toggled out (an
// observation reverts to the fallback prior, a fallback reverts to the
// node's own CPT) and the posterior shift is recorded.
func (e *Executor) traceContributions(ctx context.Context, net *network.CompiledNetwork, res *evidence.Resolved, primary string, result *Result, started time.Time) error {
	baseline := result.Posteriors[primary].Probs

	for _, id := range res.Observed {
		if err := checkDeadline(ctx, started); err != nil {
			return err
		}
		node, _ := net.Node(id)
		toggled := withoutHard(res, id, node.Node.FallbackPrior)
		post, err := marginal(ctx, net, toggled, primary, started)
		if err != nil {
			return err
		}
		result.Contributions[id] = prob.TotalVariation(baseline, post)
	}

	for _, id := range res.FallbackUsed {
		if err := checkDeadline(ctx, started); err != nil {
			return err
		}
		toggled := withoutSoft(res, id)
		post, err := marginal(ctx, net, toggled, primary, started)
		if err != nil {
			return err
		}
		result.Contributions[id] = prob.TotalVariation(baseline, post)
	}
	return nil
}

// withoutHard copies the resolution with one observation demoted to a
// soft fallback.
func withoutHard(res *evidence.Resolved, id string, fallback []float64) *evidence.Resolved {
	out := cloneResolved(res)
	delete(out.Hard, id)
	out.Soft[id] = slices.Clone(fallback)
	return out
}

// withoutSoft copies the resolution with one fallback substitution
// removed, so the node follows its own CPT.
func withoutSoft(res *evidence.Resolved, id string) *evidence.Resolved {
	out := cloneResolved(res)
	delete(out.Soft, id)
	return out
}

func cloneResolved(res *evidence.Resolved) *evidence.Resolved {
	out := &evidence.Resolved{
		Hard:         make(map[string]int, len(res.Hard)),
		Soft:         make(map[string][]float64, len(res.Soft)),
		Observed:     slices.Clone(res.Observed),
		FallbackUsed: slices.Clone(res.FallbackUsed),
		Completeness: res.Completeness,
	}
	for k, v := range res.Hard {
		out.Hard[k] = v
	}
	for k, v := range res.Soft {
		out.Soft[k] = slices.Clone(v)
	}
	return out
}

// checkDeadline converts context expiry into a TimeoutError.
func checkDeadline(ctx context.Context, started time.Time) error {
	select {
	case <-ctx.Done():
		return &TimeoutError{Elapsed: time.Since(started)}
	default:
		return nil
	}
}
