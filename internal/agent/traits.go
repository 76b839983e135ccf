package agent

import "sort"

// sampleLoci removes n uniformly drawn loci from pool and returns them in
// ascending order. Pool order is preserved so draws are reproducible.
func sampleLoci(pool *[]int, n int, draw func(int) int) []int {
	out := make([]int, 0, n)
	for i := 0; i < n && len(*pool) > 0; i++ {
		idx := draw(len(*pool))
		out = append(out, (*pool)[idx])
		*pool = append((*pool)[:idx], (*pool)[idx+1:]...)
	}
	sort.Ints(out)
	return out
}

func allLoci(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// union merges two ascending, disjoint-or-not locus lists.
func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func sameLoci(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// covers reports whether every locus of sub is in super. Both are ascending.
func covers(super, sub []int) bool {
	i := 0
	for _, want := range sub {
		for i < len(super) && super[i] < want {
			i++
		}
		if i == len(super) || super[i] != want {
			return false
		}
		i++
	}
	return true
}
