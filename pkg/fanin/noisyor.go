package fanin

import (
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
)

// Activation maps a parent state index onto an activation level in [0,1].
// A binary parent activates fully in its second state; multi-state parents
// activate proportionally along their ordered state space, so "medium"
// evidence exerts partial influence.
func Activation(state, cardinality int) float64 {
	if cardinality <= 1 {
		return 0
	}
	return float64(state) / float64(cardinality-1)
}

// BuildTable constructs the CPT of a binary noisy-OR combination node.
// The leak is the probability of spontaneous activation with every parent
// fully inactive:
//
//	P(inactive | parents) = (1 - leak) * prod_i (1 - influence_i * a_i)
//
// where a_i is parent i's activation level. The multiplicative inactive
// term is what gives the aggregate its explaining-away behavior: once one
// strong parent is active, the residual effect of further parents on the
// already-saturated activation probability shrinks.
func BuildTable(leak float64, parentCards []int, influences []float64) *cpt.Table {
	table := &cpt.Table{
		ParentCards: append([]int(nil), parentCards...),
	}
	rows := table.ExpectedRows()
	table.Rows = make([][]float64, rows)

	for row := 0; row < rows; row++ {
		states := cpt.RowStates(parentCards, row)
		inactive := 1 - leak
		for i, s := range states {
			inactive *= 1 - influences[i]*Activation(s, parentCards[i])
		}
		table.Rows[row] = []float64{inactive, 1 - inactive}
	}
	return table
}

// ExpectedActivation returns the activation level of a parent under a
// distribution over its states. Activation is linear in the state, so the
// expectation can stand in for the state when evidence is soft.
func ExpectedActivation(dist []float64) float64 {
	a := 0.0
	for s, p := range dist {
		a += p * Activation(s, len(dist))
	}
	return a
}
