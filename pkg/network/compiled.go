package network

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
)

// CompiledNode is one node of a compiled network with its resolved
// conditional table and CPT provenance.
type CompiledNode struct {
	Node    *nodes.Node
	Parents []string
	Table   *cpt.Table

	// Provenance of the table: the library record id and version, or a
	// synthetic marker for fan-in and default tables.
	CPTID      string
	CPTVersion int

	// Cluster names the fan-in cluster this node feeds, if any.
	Cluster string
}

// CompiledNetwork is an immutable snapshot of a built network: node set,
// resolved tables, and a fixed topological order. It holds no mutable
// state and is safe for unlimited concurrent readers.
type CompiledNetwork struct {
	hash        string
	name        string
	specVersion string

	nodes    map[string]*CompiledNode
	order    []string // parents before children
	evidence []string // evidence node ids, sorted
}

// Hash returns the spec hash the network was compiled from.
func (n *CompiledNetwork) Hash() string { return n.hash }

// Name returns the spec name.
func (n *CompiledNetwork) Name() string { return n.name }

// SpecVersion returns the spec version string.
func (n *CompiledNetwork) SpecVersion() string { return n.specVersion }

// Node returns the compiled node with the given id.
func (n *CompiledNetwork) Node(id string) (*CompiledNode, bool) {
	node, ok := n.nodes[id]
	return node, ok
}

// Order returns the topological order, parents before children.
func (n *CompiledNetwork) Order() []string {
	return slices.Clone(n.order)
}

// EvidenceNodes returns the sorted ids of all evidence nodes.
func (n *CompiledNetwork) EvidenceNodes() []string {
	return slices.Clone(n.evidence)
}

// NodeIDs returns all node ids in sorted order.
func (n *CompiledNetwork) NodeIDs() []string {
	ids := maps.Keys(n.nodes)
	slices.Sort(ids)
	return ids
}

// Len returns the number of nodes.
func (n *CompiledNetwork) Len() int { return len(n.nodes) }

// ClusterOf returns the fan-in cluster the node feeds, or "".
func (n *CompiledNetwork) ClusterOf(id string) string {
	if node, ok := n.nodes[id]; ok {
		return node.Cluster
	}
	return ""
}

// Clusters returns the distinct fan-in cluster names in the network.
func (n *CompiledNetwork) Clusters() []string {
	seen := make(map[string]struct{})
	for _, node := range n.nodes {
		if node.Cluster != "" {
			seen[node.Cluster] = struct{}{}
		}
	}
	names := maps.Keys(seen)
	slices.Sort(names)
	return names
}

// CPTVersions maps every node id to the CPT provenance used for it, for
// inclusion in evaluation audit records.
func (n *CompiledNetwork) CPTVersions() map[string]int {
	out := make(map[string]int, len(n.nodes))
	for id, node := range n.nodes {
		out[id] = node.CPTVersion
	}
	return out
}

// CPTRefs maps node ids to the CPT record ids backing them.
func (n *CompiledNetwork) CPTRefs() map[string]string {
	out := make(map[string]string, len(n.nodes))
	for id, node := range n.nodes {
		out[id] = node.CPTID
	}
	return out
}
