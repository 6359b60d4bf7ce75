// Package nodes defines the semantic node types that evidence networks are
// assembled from, and the registry that owns their definitions.
package nodes

import (
	"fmt"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

// Kind classifies the role a node plays in a network.
type Kind string

const (
	// KindEvidence nodes carry externally observed states (or a fallback
	// prior when the observation is missing).
	KindEvidence Kind = "evidence"
	// KindIntermediate nodes are synthesized aggregators inserted by fan-in
	// reduction.
	KindIntermediate Kind = "intermediate"
	// KindOutcome nodes are the query targets of an evaluation.
	KindOutcome Kind = "outcome"
)

// Valid reports whether the kind is one of the recognized values.
func (k Kind) Valid() bool {
	switch k {
	case KindEvidence, KindIntermediate, KindOutcome:
		return true
	}
	return false
}

// Node is one typed variable in an evidence network. Nodes are immutable
// once a network referencing them has been compiled.
type Node struct {
	ID            string    `json:"id" yaml:"id"`
	Kind          Kind      `json:"kind" yaml:"kind"`
	States        []string  `json:"states" yaml:"states"`
	FallbackPrior []float64 `json:"fallback_prior" yaml:"fallback_prior"`
}

// Cardinality returns the number of discrete states.
func (n *Node) Cardinality() int {
	return len(n.States)
}

// StateIndex returns the index of the named state, or -1 if the label is
// not part of the node's state space.
func (n *Node) StateIndex(label string) int {
	for i, s := range n.States {
		if s == label {
			return i
		}
	}
	return -1
}

// Validate checks the structural invariants of a node definition.
func (n *Node) Validate() error {
	if n.ID == "" {
		return &DefinitionError{NodeID: n.ID, Reason: "node id is empty"}
	}
	if !n.Kind.Valid() {
		return &DefinitionError{NodeID: n.ID, Reason: fmt.Sprintf("unknown kind %q", n.Kind)}
	}
	if len(n.States) < 2 {
		return &DefinitionError{NodeID: n.ID, Reason: fmt.Sprintf("need at least 2 states, got %d", len(n.States))}
	}
	seen := make(map[string]struct{}, len(n.States))
	for _, s := range n.States {
		if s == "" {
			return &DefinitionError{NodeID: n.ID, Reason: "empty state label"}
		}
		if _, dup := seen[s]; dup {
			return &DefinitionError{NodeID: n.ID, Reason: fmt.Sprintf("duplicate state label %q", s)}
		}
		seen[s] = struct{}{}
	}
	if len(n.FallbackPrior) != len(n.States) {
		return &DefinitionError{
			NodeID: n.ID,
			Reason: fmt.Sprintf("fallback prior has %d entries for %d states", len(n.FallbackPrior), len(n.States)),
		}
	}
	if !prob.IsDistribution(n.FallbackPrior) {
		return &DefinitionError{
			NodeID: n.ID,
			Reason: fmt.Sprintf("fallback prior sums to %.9f, want 1", prob.Sum(n.FallbackPrior)),
		}
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	cp := &Node{
		ID:            n.ID,
		Kind:          n.Kind,
		States:        make([]string, len(n.States)),
		FallbackPrior: make([]float64, len(n.FallbackPrior)),
	}
	copy(cp.States, n.States)
	copy(cp.FallbackPrior, n.FallbackPrior)
	return cp
}
