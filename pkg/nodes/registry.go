package nodes

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry owns node definitions by id. Reads vastly outnumber writes:
// definitions are loaded at configuration time and then shared read-only
// across concurrent builds and evaluations.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Define registers a node. The definition is validated before it is
// accepted; an id collision with a different definition is rejected, while
// re-defining an identical node is a no-op.
func (r *Registry) Define(node *Node) error {
	if node == nil {
		return &DefinitionError{Reason: "nil node"}
	}
	if err := node.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nodes[node.ID]; ok {
		if SameDefinition(existing, node) {
			return nil
		}
		return fmt.Errorf("node %q: %w", node.ID, ErrAlreadyExists)
	}
	r.nodes[node.ID] = node.Clone()
	return nil
}

// Get returns the node with the given id.
func (r *Registry) Get(id string) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[id]
	if !ok {
		return nil, NotFoundError(id)
	}
	return node, nil
}

// Has reports whether a node with the given id is defined.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[id]
	return ok
}

// IDs returns all defined node ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := maps.Keys(r.nodes)
	slices.Sort(ids)
	return ids
}

// Len returns the number of defined nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// SameDefinition reports whether two nodes describe the same kind, state
// space and fallback prior.
func SameDefinition(a, b *Node) bool {
	if a.Kind != b.Kind || !slices.Equal(a.States, b.States) {
		return false
	}
	return slices.Equal(a.FallbackPrior, b.FallbackPrior)
}
