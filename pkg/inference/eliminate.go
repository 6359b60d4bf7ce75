package inference

import (
	"context"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/evidence"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

// marginal computes the exact posterior over one query variable by
// variable elimination with a min-degree ordering. Hard evidence is
// applied by restricting factor scopes; a node completed from its
// fallback prior has its CPT factor replaced by that prior, which keeps
// the fallback a soft observation without double-counting the node.
func marginal(ctx context.Context, net *network.CompiledNetwork, res *evidence.Resolved, query string, started time.Time) ([]float64, error) {
	qnode, ok := net.Node(query)
	if !ok {
		return nil, &evidence.EvidenceError{NodeID: query, Reason: "unknown query node"}
	}

	// A directly observed query has a degenerate posterior
	if state, observed := res.Hard[query]; observed {
		post := make([]float64, qnode.Node.Cardinality())
		post[state] = 1
		return post, nil
	}

	factors := buildFactors(net, res)

	// Restrict every factor on the hard evidence
	for id, state := range res.Hard {
		for i, f := range factors {
			factors[i] = restrict(f, id, state)
		}
	}

	// Eliminate everything but the query variable
	remaining := make(map[string]struct{})
	for _, f := range factors {
		for _, v := range f.vars {
			if v != query {
				remaining[v] = struct{}{}
			}
		}
	}
	for len(remaining) > 0 {
		if err := checkDeadline(ctx, started); err != nil {
			return nil, err
		}
		v := pickMinDegree(remaining, factors)
		factors = eliminate(factors, v)
		delete(remaining, v)
	}

	// Multiply what is left and normalize over the query variable
	result := newFactor([]string{query}, []int{qnode.Node.Cardinality()})
	for i := range result.vals {
		result.vals[i] = 1
	}
	for _, f := range factors {
		result = multiply(result, f)
	}
	if len(result.vars) != 1 {
		result = sumOutAllBut(result, query)
	}
	return prob.Normalize(result.vals), nil
}

// buildFactors converts the network's tables into factors, substituting
// fallback priors for nodes resolved softly.
func buildFactors(net *network.CompiledNetwork, res *evidence.Resolved) []*factor {
	ids := net.Order()
	factors := make([]*factor, 0, len(ids))
	for _, id := range ids {
		node, _ := net.Node(id)

		if dist, soft := res.Soft[id]; soft {
			f := newFactor([]string{id}, []int{node.Node.Cardinality()})
			copy(f.vals, dist)
			factors = append(factors, f)
			continue
		}

		vars := append(slices.Clone(node.Parents), id)
		cards := append(slices.Clone(node.Table.ParentCards), node.Node.Cardinality())
		f := newFactor(vars, cards)
		pos := 0
		for _, row := range node.Table.Rows {
			copy(f.vals[pos:], row)
			pos += len(row)
		}
		factors = append(factors, f)
	}
	return factors
}

// eliminate multiplies every factor mentioning v and sums v out of the
// product.
func eliminate(factors []*factor, v string) []*factor {
	var product *factor
	rest := factors[:0]
	for _, f := range factors {
		if position(f.vars, v) < 0 {
			rest = append(rest, f)
			continue
		}
		if product == nil {
			product = f
		} else {
			product = multiply(product, f)
		}
	}
	if product != nil {
		rest = append(rest, sumOut(product, v))
	}
	return rest
}

// pickMinDegree chooses the remaining variable appearing with the fewest
// distinct neighbors across current factor scopes. Ties break on the
// lexicographically smallest id so elimination is deterministic.
func pickMinDegree(remaining map[string]struct{}, factors []*factor) string {
	candidates := maps.Keys(remaining)
	slices.Sort(candidates)

	best := ""
	bestDegree := -1
	for _, v := range candidates {
		neighbors := make(map[string]struct{})
		for _, f := range factors {
			if position(f.vars, v) < 0 {
				continue
			}
			for _, u := range f.vars {
				if u != v {
					neighbors[u] = struct{}{}
				}
			}
		}
		if bestDegree < 0 || len(neighbors) < bestDegree {
			best, bestDegree = v, len(neighbors)
		}
	}
	return best
}

// sumOutAllBut reduces a factor to a single variable.
func sumOutAllBut(f *factor, keep string) *factor {
	for _, v := range slices.Clone(f.vars) {
		if v != keep {
			f = sumOut(f, v)
		}
	}
	return f
}
