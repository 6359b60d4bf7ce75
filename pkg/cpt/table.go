package cpt

// Table holds the conditional distributions of a child node given every
// combination of its parents' states. Rows are stored row-major over the
// parent state space with the last parent varying fastest; a table with no
// parents has exactly one row (the child's marginal prior).
type Table struct {
	ParentCards []int       `json:"parent_cards" yaml:"parent_cards"`
	Rows        [][]float64 `json:"rows" yaml:"rows"`
}

// ExpectedRows returns the number of rows the parent cardinalities demand.
func (t *Table) ExpectedRows() int {
	count := 1
	for _, card := range t.ParentCards {
		count *= card
	}
	return count
}

// Row returns the child distribution for the given parent state indices.
func (t *Table) Row(parentStates []int) []float64 {
	return t.Rows[RowIndex(t.ParentCards, parentStates)]
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	cp := &Table{
		ParentCards: make([]int, len(t.ParentCards)),
		Rows:        make([][]float64, len(t.Rows)),
	}
	copy(cp.ParentCards, t.ParentCards)
	for i, row := range t.Rows {
		cp.Rows[i] = make([]float64, len(row))
		copy(cp.Rows[i], row)
	}
	return cp
}

// RowIndex converts parent state indices into a row offset, last parent
// varying fastest.
func RowIndex(cards, states []int) int {
	idx := 0
	for i, s := range states {
		idx = idx*cards[i] + s
	}
	return idx
}

// RowStates is the inverse of RowIndex: it expands a row offset back into
// parent state indices.
func RowStates(cards []int, row int) []int {
	states := make([]int, len(cards))
	for i := len(cards) - 1; i >= 0; i-- {
		states[i] = row % cards[i]
		row /= cards[i]
	}
	return states
}
