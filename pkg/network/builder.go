package network

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/fanin"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

// Builder compiles network specifications against a node registry and CPT
// library. Compiled networks are cached by spec hash, so repeated builds
// of an unchanged spec are free.
type Builder struct {
	registry *nodes.Registry
	library  *cpt.Library
	reducer  *fanin.Reducer
	cache    *Cache
	logger   logging.Logger

	defaultThreshold int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCache installs a shared build cache.
func WithCache(cache *Cache) BuilderOption {
	return func(b *Builder) { b.cache = cache }
}

// WithLogger sets the builder's structured logger.
func WithLogger(logger logging.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// WithDefaultThreshold sets the fan-in threshold applied to specs that do
// not carry their own.
func WithDefaultThreshold(n int) BuilderOption {
	return func(b *Builder) { b.defaultThreshold = n }
}

// NewBuilder creates a builder resolving nodes and CPTs through the given
// registry and library.
func NewBuilder(registry *nodes.Registry, library *cpt.Library, opts ...BuilderOption) *Builder {
	b := &Builder{
		registry: registry,
		library:  library,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = NewCache()
	}
	b.reducer = fanin.NewReducer(b.logger)
	return b
}

// Build compiles a spec into an immutable network. Construction and
// configuration failures are fatal: no partially built network is ever
// returned or cached.
func (b *Builder) Build(spec *Spec) (*CompiledNetwork, error) {
	if spec == nil {
		return nil, &ConfigurationError{Reason: "nil spec"}
	}
	hash, err := spec.Hash()
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	if cached, ok := b.cache.Get(hash); ok {
		b.logger.Debug("network build cache hit", logging.NetworkHash(hash))
		return cached, nil
	}

	nodeSet, pending, err := b.resolveNodes(spec)
	if err != nil {
		return nil, err
	}

	parents, err := b.resolveEdges(spec, nodeSet)
	if err != nil {
		return nil, err
	}

	// Cycles are fatal before any further work
	if err := checkAcyclic(nodeSet, parents); err != nil {
		return nil, err
	}

	bindings, err := b.resolveBindings(spec, nodeSet)
	if err != nil {
		return nil, err
	}

	fixed, clusterOf, err := b.applyFanIn(spec, nodeSet, parents, bindings)
	if err != nil {
		return nil, err
	}

	compiled := make(map[string]*CompiledNode, len(nodeSet))
	for id, node := range nodeSet {
		cn := &CompiledNode{
			Node:    node,
			Parents: slices.Clone(parents[id]),
			Cluster: clusterOf[id],
		}
		if fx, ok := fixed[id]; ok {
			cn.Table, cn.CPTID, cn.CPTVersion = fx.table, fx.cptID, fx.version
		} else if err := b.resolveTable(spec, cn, bindings[id], nodeSet); err != nil {
			return nil, err
		}
		compiled[id] = cn
	}

	ids := maps.Keys(nodeSet)
	slices.Sort(ids)
	children := childAdjacency(ids, parents)
	order, cycle := topologicalOrder(ids, children)
	if cycle != nil {
		// Fan-in rewiring cannot introduce cycles, but guard anyway
		return nil, &ConstructionError{Cycle: cycle}
	}

	// Inline definitions reach the registry only now that the whole build
	// is known good; a failed build leaves no registry state behind.
	for _, def := range pending {
		if err := b.registry.Define(def); err != nil {
			return nil, &ConfigurationError{NodeID: def.ID, Reason: err.Error()}
		}
	}

	evidence := make([]string, 0)
	for _, id := range ids {
		if nodeSet[id].Kind == nodes.KindEvidence {
			evidence = append(evidence, id)
		}
	}

	net := &CompiledNetwork{
		hash:        hash,
		name:        spec.Name,
		specVersion: spec.Version,
		nodes:       compiled,
		order:       order,
		evidence:    evidence,
	}
	b.cache.Put(net)

	b.logger.Info("network compiled",
		logging.NetworkHash(hash),
		logging.String("name", spec.Name),
		logging.Int("nodes", len(compiled)),
		logging.Int("evidence_nodes", len(evidence)))
	return net, nil
}

// resolveNodes materializes every node the spec names. Inline definitions
// are validated into a pending set rather than written to the registry, so
// that a build failing in a later stage leaves the registry untouched;
// Build commits the pending set once the spec is known good.
func (b *Builder) resolveNodes(spec *Spec) (map[string]*nodes.Node, []*nodes.Node, error) {
	if len(spec.Nodes) == 0 {
		return nil, nil, &ConfigurationError{Reason: "spec declares no nodes"}
	}

	nodeSet := make(map[string]*nodes.Node, len(spec.Nodes))
	var pending []*nodes.Node
	for _, ns := range spec.Nodes {
		if _, dup := nodeSet[ns.ID]; dup {
			return nil, nil, &ConstructionError{NodeID: ns.ID, Reason: "node declared twice"}
		}
		if len(ns.States) == 0 {
			node, err := b.registry.Get(ns.ID)
			if err != nil {
				return nil, nil, &ConstructionError{NodeID: ns.ID, Reason: "unknown node reference"}
			}
			nodeSet[ns.ID] = node
			continue
		}

		def := &nodes.Node{
			ID:            ns.ID,
			Kind:          ns.Kind,
			States:        ns.States,
			FallbackPrior: ns.FallbackPrior,
		}
		if err := def.Validate(); err != nil {
			return nil, nil, &ConfigurationError{NodeID: ns.ID, Reason: err.Error()}
		}
		if existing, err := b.registry.Get(ns.ID); err == nil {
			if !nodes.SameDefinition(existing, def) {
				return nil, nil, &ConfigurationError{
					NodeID: ns.ID,
					Reason: fmt.Sprintf("node %q: %v", ns.ID, nodes.ErrAlreadyExists),
				}
			}
			nodeSet[ns.ID] = existing
			continue
		}
		nodeSet[ns.ID] = def
		pending = append(pending, def)
	}
	return nodeSet, pending, nil
}

// resolveEdges validates endpoints and assembles the parent lists in edge
// declaration order.
func (b *Builder) resolveEdges(spec *Spec, nodeSet map[string]*nodes.Node) (map[string][]string, error) {
	parents := make(map[string][]string)
	for _, edge := range spec.Edges {
		if _, ok := nodeSet[edge.Parent]; !ok {
			return nil, &ConstructionError{NodeID: edge.Parent, Reason: "edge references undeclared parent"}
		}
		if _, ok := nodeSet[edge.Child]; !ok {
			return nil, &ConstructionError{NodeID: edge.Child, Reason: "edge references undeclared child"}
		}
		if edge.Parent == edge.Child {
			return nil, &ConstructionError{NodeID: edge.Child, Cycle: []string{edge.Child, edge.Child}}
		}
		if slices.Contains(parents[edge.Child], edge.Parent) {
			return nil, &ConstructionError{
				NodeID: edge.Child,
				Reason: fmt.Sprintf("duplicate edge from %q", edge.Parent),
			}
		}
		parents[edge.Child] = append(parents[edge.Child], edge.Parent)
	}
	return parents, nil
}

// resolveBindings indexes the spec's CPT bindings by child id.
func (b *Builder) resolveBindings(spec *Spec, nodeSet map[string]*nodes.Node) (map[string]*CPTSpec, error) {
	bindings := make(map[string]*CPTSpec, len(spec.CPTs))
	for i := range spec.CPTs {
		binding := &spec.CPTs[i]
		if _, ok := nodeSet[binding.Child]; !ok {
			return nil, &ConfigurationError{NodeID: binding.Child, Reason: "cpt binding references undeclared node"}
		}
		if binding.Ref != "" && binding.Rows != nil {
			return nil, &ConfigurationError{NodeID: binding.Child, Reason: "cpt binding sets both ref and inline rows"}
		}
		if _, dup := bindings[binding.Child]; dup {
			return nil, &ConfigurationError{NodeID: binding.Child, Reason: "multiple cpt bindings for one node"}
		}
		bindings[binding.Child] = binding
	}
	return bindings, nil
}

// fixedTable is a table decided during fan-in reduction.
type fixedTable struct {
	table   *cpt.Table
	cptID   string
	version int
}

// applyFanIn reduces every node whose parent count exceeds the threshold,
// inserting intermediates and rewiring parent lists in place. It returns
// the synthesized tables and the evidence-node -> cluster assignment.
func (b *Builder) applyFanIn(
	spec *Spec,
	nodeSet map[string]*nodes.Node,
	parents map[string][]string,
	bindings map[string]*CPTSpec,
) (map[string]fixedTable, map[string]string, error) {
	fixed := make(map[string]fixedTable)
	clusterOf := make(map[string]string)
	threshold := b.effectiveThreshold(spec)

	childIDs := maps.Keys(parents)
	slices.Sort(childIDs)
	for _, childID := range childIDs {
		parentIDs := parents[childID]
		if len(parentIDs) <= threshold {
			continue
		}
		child := nodeSet[childID]

		clusters, ok := spec.FanIn.Clusters[childID]
		if !ok {
			return nil, nil, &ConfigurationError{
				NodeID: childID,
				Reason: fmt.Sprintf("%d parents exceed fan-in threshold %d and no clusters are configured", len(parentIDs), threshold),
			}
		}
		if _, bound := bindings[childID]; bound {
			return nil, nil, &ConfigurationError{
				NodeID: childID,
				Reason: "reduced node takes its table from fan-in synthesis; remove the explicit cpt binding",
			}
		}

		parentNodes := make([]*nodes.Node, len(parentIDs))
		for i, pid := range parentIDs {
			parentNodes[i] = nodeSet[pid]
		}

		reduction, err := b.reducer.Reduce(child, parentNodes, clusters, spec.FanIn.Children[childID])
		if err != nil {
			return nil, nil, err
		}

		for _, inter := range reduction.Intermediates {
			if _, exists := nodeSet[inter.Node.ID]; exists {
				return nil, nil, &ConstructionError{
					NodeID: inter.Node.ID,
					Reason: "synthesized intermediate collides with a declared node",
				}
			}
			nodeSet[inter.Node.ID] = inter.Node
			parents[inter.Node.ID] = inter.Parents
			fixed[inter.Node.ID] = fixedTable{table: inter.Table, cptID: "fanin:" + inter.Node.ID}
			for _, member := range inter.Parents {
				clusterOf[member] = inter.Node.ID[len(childID)+2:]
			}
		}
		parents[childID] = reduction.ChildParents
		fixed[childID] = fixedTable{table: reduction.ChildTable, cptID: "fanin:" + childID}
	}
	return fixed, clusterOf, nil
}

// effectiveThreshold resolves the fan-in threshold: the spec's own value
// wins, then the builder's configured default.
func (b *Builder) effectiveThreshold(spec *Spec) int {
	if spec.FanIn.Threshold > 0 {
		return spec.FanIn.Threshold
	}
	if b.defaultThreshold > 0 {
		return b.defaultThreshold
	}
	return fanin.DefaultThreshold
}

// resolveTable binds the node's conditional table from the library, an
// inline definition, or the configured default policy.
func (b *Builder) resolveTable(spec *Spec, cn *CompiledNode, binding *CPTSpec, nodeSet map[string]*nodes.Node) error {
	id := cn.Node.ID
	parentCards := make([]int, len(cn.Parents))
	for i, pid := range cn.Parents {
		parentCards[i] = nodeSet[pid].Cardinality()
	}

	switch {
	case binding != nil && binding.Ref != "":
		rec, err := b.library.Get(binding.Ref)
		if err != nil {
			return &ConfigurationError{NodeID: id, Reason: fmt.Sprintf("cpt ref %q: %v", binding.Ref, err)}
		}
		return b.adoptRecord(cn, rec)

	case binding != nil && binding.Rows != nil:
		table := &cpt.Table{ParentCards: parentCards, Rows: binding.Rows}
		if err := checkTable(id, table, cn.Node.Cardinality()); err != nil {
			return err
		}
		cn.Table, cn.CPTID = table, "inline:"+id
		return nil

	case binding != nil:
		// Binding with neither ref nor rows: use the child's current
		// approved record from the library
		rec, err := b.library.CurrentApproved(id)
		if err != nil {
			return &ConfigurationError{NodeID: id, Reason: err.Error()}
		}
		return b.adoptRecord(cn, rec)

	case len(cn.Parents) == 0:
		// Roots fall back to the node's own prior
		cn.Table = &cpt.Table{Rows: [][]float64{slices.Clone(cn.Node.FallbackPrior)}}
		cn.CPTID = "prior:" + id
		return nil

	case spec.StrictCPTs:
		return &ConfigurationError{NodeID: id, Reason: "no cpt configured and strict_cpts is set"}

	default:
		table := &cpt.Table{ParentCards: parentCards}
		rows := table.ExpectedRows()
		table.Rows = make([][]float64, rows)
		for i := 0; i < rows; i++ {
			table.Rows[i] = prob.Uniform(cn.Node.Cardinality())
		}
		cn.Table, cn.CPTID = table, "uniform:"+id
		return nil
	}
}

// adoptRecord attaches a library record to a compiled node, checking that
// the record's child and parent ordering agree with the spec's edges.
func (b *Builder) adoptRecord(cn *CompiledNode, rec *cpt.Record) error {
	id := cn.Node.ID
	if rec.ChildID != id {
		return &ConfigurationError{
			NodeID: id,
			Reason: fmt.Sprintf("cpt record %q is for child %q", rec.ID, rec.ChildID),
		}
	}
	if !slices.Equal(rec.ParentIDs, cn.Parents) {
		return &ConfigurationError{
			NodeID: id,
			Reason: fmt.Sprintf("cpt record %q parents %v do not match edges %v", rec.ID, rec.ParentIDs, cn.Parents),
		}
	}
	cn.Table = rec.Table.Clone()
	cn.CPTID = rec.ID
	cn.CPTVersion = rec.Meta.Version
	return nil
}

// checkTable validates an inline table's shape and row distributions.
func checkTable(id string, table *cpt.Table, childCard int) error {
	if got, want := len(table.Rows), table.ExpectedRows(); got != want {
		return &ConfigurationError{
			NodeID: id,
			Reason: fmt.Sprintf("inline table has %d rows, parent state space requires %d", got, want),
		}
	}
	for i, row := range table.Rows {
		if len(row) != childCard {
			return &ConfigurationError{
				NodeID: id,
				Reason: fmt.Sprintf("inline table row %d has %d entries for %d child states", i, len(row), childCard),
			}
		}
		if !prob.IsDistribution(row) {
			return &ConfigurationError{
				NodeID: id,
				Reason: fmt.Sprintf("inline table row %d sums to %.9f, want 1", i, prob.Sum(row)),
			}
		}
	}
	return nil
}

// checkAcyclic runs cycle detection over the declared edge set.
func checkAcyclic(nodeSet map[string]*nodes.Node, parents map[string][]string) error {
	ids := maps.Keys(nodeSet)
	slices.Sort(ids)
	if _, cycle := topologicalOrder(ids, childAdjacency(ids, parents)); cycle != nil {
		return &ConstructionError{Cycle: cycle}
	}
	return nil
}

// childAdjacency inverts parent lists into child adjacency.
func childAdjacency(ids []string, parents map[string][]string) map[string][]string {
	children := make(map[string][]string, len(ids))
	for child, ps := range parents {
		for _, p := range ps {
			children[p] = append(children[p], child)
		}
	}
	for _, list := range children {
		slices.Sort(list)
	}
	return children
}
