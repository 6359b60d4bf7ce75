// Package evidence validates raw evidence assignments against a compiled
// network and completes them with fallback priors. Missing evidence is an
// expected condition here, never an error: absent nodes are filled with
// their fallback distribution and recorded, so downstream scoring can see
// exactly how much of the input was real.
package evidence

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
)

// Assignment maps evidence node ids to observed state labels. Partial maps
// are valid; absent keys denote missing evidence.
type Assignment map[string]string

// EvidenceError reports an observation the network cannot accept: an
// unknown node id, a non-evidence node, or a state outside the node's
// declared state space. The offending node id is always carried so the
// caller can correct and retry.
type EvidenceError struct {
	NodeID string
	State  string
	Reason string
}

func (e *EvidenceError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("evidence for node %q: state %q %s", e.NodeID, e.State, e.Reason)
	}
	return fmt.Sprintf("evidence for node %q: %s", e.NodeID, e.Reason)
}

// Resolved is a completed evidence assignment: hard observations by state
// index, soft fallback distributions for everything missing, and the
// bookkeeping the audit trail and sufficiency scoring need.
type Resolved struct {
	// Hard maps observed node ids to their state index.
	Hard map[string]int
	// Soft maps defaulted node ids to their fallback distribution.
	Soft map[string][]float64
	// Observed lists node ids with direct observations, sorted.
	Observed []string
	// FallbackUsed lists node ids completed from fallback priors, sorted.
	FallbackUsed []string
	// Completeness is |observed| / |evidence nodes|, 1 when the network
	// has no evidence nodes.
	Completeness float64
}

// Resolve validates an assignment against the network's evidence nodes
// and fills every gap with the node's fallback prior. Observations for
// unknown or non-evidence nodes fail; missing observations never do.
func Resolve(net *network.CompiledNetwork, obs Assignment) (*Resolved, error) {
	evidenceNodes := net.EvidenceNodes()
	isEvidence := make(map[string]struct{}, len(evidenceNodes))
	for _, id := range evidenceNodes {
		isEvidence[id] = struct{}{}
	}

	for id := range obs {
		node, ok := net.Node(id)
		if !ok {
			return nil, &EvidenceError{NodeID: id, Reason: "unknown node id"}
		}
		if _, ok := isEvidence[id]; !ok {
			return nil, &EvidenceError{NodeID: id, Reason: fmt.Sprintf("node of kind %q cannot carry evidence", node.Node.Kind)}
		}
	}

	res := &Resolved{
		Hard: make(map[string]int),
		Soft: make(map[string][]float64),
	}
	for _, id := range evidenceNodes {
		node, _ := net.Node(id)
		label, ok := obs[id]
		if !ok {
			res.Soft[id] = slices.Clone(node.Node.FallbackPrior)
			res.FallbackUsed = append(res.FallbackUsed, id)
			continue
		}
		idx := node.Node.StateIndex(label)
		if idx < 0 {
			return nil, &EvidenceError{
				NodeID: id,
				State:  label,
				Reason: fmt.Sprintf("is not one of %v", node.Node.States),
			}
		}
		res.Hard[id] = idx
		res.Observed = append(res.Observed, id)
	}

	slices.Sort(res.Observed)
	slices.Sort(res.FallbackUsed)
	if len(evidenceNodes) == 0 {
		res.Completeness = 1
	} else {
		res.Completeness = float64(len(res.Observed)) / float64(len(evidenceNodes))
	}
	return res, nil
}
