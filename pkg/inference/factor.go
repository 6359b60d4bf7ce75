package inference

// factor is a dense table over a set of discrete variables, stored
// row-major with the last variable varying fastest. All variable
// elimination work happens on factors; node CPTs are converted into
// factors over [parents..., child].
type factor struct {
	vars  []string
	cards []int
	vals  []float64
}

func newFactor(vars []string, cards []int) *factor {
	size := 1
	for _, c := range cards {
		size *= c
	}
	return &factor{
		vars:  append([]string(nil), vars...),
		cards: append([]int(nil), cards...),
		vals:  make([]float64, size),
	}
}

// decode expands a linear index into per-variable state indices.
func decode(idx int, cards []int, out []int) {
	for i := len(cards) - 1; i >= 0; i-- {
		out[i] = idx % cards[i]
		idx /= cards[i]
	}
}

// position returns the index of v in vars, or -1.
func position(vars []string, v string) int {
	for i, name := range vars {
		if name == v {
			return i
		}
	}
	return -1
}

// multiply returns the product factor over the union of scopes.
func multiply(a, b *factor) *factor {
	vars := append([]string(nil), a.vars...)
	cards := append([]int(nil), a.cards...)
	for i, v := range b.vars {
		if position(vars, v) < 0 {
			vars = append(vars, v)
			cards = append(cards, b.cards[i])
		}
	}

	res := newFactor(vars, cards)
	posA := make([]int, len(a.vars))
	for i, v := range a.vars {
		posA[i] = position(vars, v)
	}
	posB := make([]int, len(b.vars))
	for i, v := range b.vars {
		posB[i] = position(vars, v)
	}

	assign := make([]int, len(vars))
	for idx := range res.vals {
		decode(idx, cards, assign)
		ia := 0
		for i, p := range posA {
			ia = ia*a.cards[i] + assign[p]
		}
		ib := 0
		for i, p := range posB {
			ib = ib*b.cards[i] + assign[p]
		}
		res.vals[idx] = a.vals[ia] * b.vals[ib]
	}
	return res
}

// sumOut marginalizes a variable out of the factor. Factors without the
// variable are returned unchanged.
func sumOut(f *factor, v string) *factor {
	pos := position(f.vars, v)
	if pos < 0 {
		return f
	}

	vars := make([]string, 0, len(f.vars)-1)
	cards := make([]int, 0, len(f.cards)-1)
	for i, name := range f.vars {
		if i != pos {
			vars = append(vars, name)
			cards = append(cards, f.cards[i])
		}
	}
	res := newFactor(vars, cards)

	assign := make([]int, len(f.vars))
	for idx, val := range f.vals {
		decode(idx, f.cards, assign)
		target := 0
		for i := range f.vars {
			if i != pos {
				target = target*f.cards[i] + assign[i]
			}
		}
		res.vals[target] += val
	}
	return res
}

// restrict conditions the factor on v = state, dropping v from the scope.
// Factors without the variable are returned unchanged.
func restrict(f *factor, v string, state int) *factor {
	pos := position(f.vars, v)
	if pos < 0 {
		return f
	}

	vars := make([]string, 0, len(f.vars)-1)
	cards := make([]int, 0, len(f.cards)-1)
	for i, name := range f.vars {
		if i != pos {
			vars = append(vars, name)
			cards = append(cards, f.cards[i])
		}
	}
	res := newFactor(vars, cards)

	assign := make([]int, len(f.vars))
	for idx, val := range f.vals {
		decode(idx, f.cards, assign)
		if assign[pos] != state {
			continue
		}
		target := 0
		for i := range f.vars {
			if i != pos {
				target = target*f.cards[i] + assign[i]
			}
		}
		res.vals[target] = val
	}
	return res
}
