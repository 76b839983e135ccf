package landscape

// NeighborhoodInclusive returns every location reachable from loc by flipping
// at most budget of the given loci, loc included. The loci must be distinct.
// The result has sum_{k<=budget} C(len(loci), k) entries in a deterministic
// order and depends on nothing but its arguments.
func (l *Landscape) NeighborhoodInclusive(loc uint64, loci []int, budget int) []uint64 {
	out := make([]uint64, 0, NeighborhoodSize(len(loci), budget))
	return l.collect(out, loc, loci, budget)
}

func (l *Landscape) collect(out []uint64, loc uint64, loci []int, budget int) []uint64 {
	if budget <= 0 || len(loci) == 0 {
		return append(out, loc)
	}
	rest := loci[1:]
	out = l.collect(out, l.Toggle(loc, loci[0]), rest, budget-1)
	return l.collect(out, loc, rest, budget)
}

// NeighborhoodSize is sum_{k=0}^{min(budget,n)} C(n, k).
func NeighborhoodSize(n, budget int) int {
	if budget > n {
		budget = n
	}
	if budget < 0 {
		budget = 0
	}
	total, c := 0, 1
	for k := 0; k <= budget; k++ {
		total += c
		c = c * (n - k) / (k + 1)
	}
	return total
}
