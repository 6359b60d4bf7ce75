package network

// Cycle detection and topological ordering via DFS with three-color
// marking: WHITE unvisited, GRAY on the recursion stack, BLACK finished.
// Meeting a GRAY node is a back edge, i.e. a cycle.

const (
	white = 0
	gray  = 1
	black = 2
)

// topologicalOrder returns a parents-before-children ordering of the
// graph, or the first cycle found (as a node id path) when the edge set is
// not acyclic. ids fixes the iteration order so results are deterministic.
func topologicalOrder(ids []string, children map[string][]string) (order []string, cycle []string) {
	color := make(map[string]int, len(ids))
	parent := make(map[string]string, len(ids))
	order = make([]string, 0, len(ids))

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		for _, next := range children[id] {
			switch color[next] {
			case white:
				parent[next] = id
				if c := visit(next); c != nil {
					return c
				}
			case gray:
				// Back edge: walk the parent chain back to the cycle entry
				return extractCycle(next, id, parent)
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if c := visit(id); c != nil {
				return nil, c
			}
		}
	}

	// Post-order pushes children first; reverse for parents-first
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// extractCycle reconstructs the cycle closed by the back edge end -> start
// using the DFS parent pointers.
func extractCycle(start, end string, parent map[string]string) []string {
	cycle := []string{start}
	for current := end; current != start; {
		cycle = append(cycle, current)
		p, ok := parent[current]
		if !ok {
			break
		}
		current = p
	}
	// Reverse so the cycle reads in edge direction, then close it
	for i, j := 1, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return append(cycle, start)
}
