// Package landscape implements the NK fitness landscape: the dependency
// structure between loci, the random contribution table and cached fitness
// evaluation over N-bit locations.
package landscape

import (
	"fmt"
	"strings"
)

// MaxLoci bounds N so that every location fits in a uint64 with headroom.
const MaxLoci = 62

// StructureError reports a malformed dependency matrix.
type StructureError struct {
	Row    int
	Col    int
	Reason string
}

func (e *StructureError) Error() string {
	switch {
	case e.Row < 0:
		return "invalid dependency structure: " + e.Reason
	case e.Col < 0:
		return fmt.Sprintf("invalid dependency structure at row %d: %s", e.Row, e.Reason)
	default:
		return fmt.Sprintf("invalid dependency structure at (%d, %d): %s", e.Row, e.Col, e.Reason)
	}
}

// Structure records which loci influence the contribution of each locus.
// Every locus depends on itself plus exactly K others.
type Structure struct {
	n    int
	k    int
	raw  [][]int
	deps [][]int
}

// NewStructure validates a square 0/1 matrix with a unit diagonal and equal
// row sums. Row i, column j set means locus i depends on locus j.
func NewStructure(matrix [][]int) (*Structure, error) {
	n := len(matrix)
	if n == 0 {
		return nil, &StructureError{Row: -1, Col: -1, Reason: "matrix is empty"}
	}
	if n > MaxLoci {
		return nil, &StructureError{Row: -1, Col: -1, Reason: fmt.Sprintf("N=%d exceeds the maximum of %d loci", n, MaxLoci)}
	}

	k := -1
	for i, row := range matrix {
		if len(row) != n {
			return nil, &StructureError{Row: i, Col: -1, Reason: fmt.Sprintf("row has %d entries, want %d", len(row), n)}
		}
		ones := 0
		for j, v := range row {
			if v != 0 && v != 1 {
				return nil, &StructureError{Row: i, Col: j, Reason: fmt.Sprintf("entry %d is not 0 or 1", v)}
			}
			ones += v
		}
		if row[i] == 0 {
			return nil, &StructureError{Row: i, Col: i, Reason: "missing self-dependency on the diagonal"}
		}
		if k < 0 {
			k = ones - 1
		} else if ones-1 != k {
			return nil, &StructureError{Row: i, Col: -1, Reason: fmt.Sprintf("inconsistent K: row 0 has K=%d, row %d has K=%d", k, i, ones-1)}
		}
	}

	s := &Structure{n: n, k: k, raw: make([][]int, n), deps: make([][]int, n)}
	for i, row := range matrix {
		s.raw[i] = append([]int(nil), row...)
		deps := make([]int, 0, k)
		for j, v := range row {
			if j != i && v == 1 {
				deps = append(deps, j)
			}
		}
		s.deps[i] = deps
	}
	return s, nil
}

func (s *Structure) N() int { return s.n }

func (s *Structure) K() int { return s.k }

// Dependencies returns the loci that locus i depends on, ascending, without i.
func (s *Structure) Dependencies(i int) []int {
	return append([]int(nil), s.deps[i]...)
}

// Matrix returns a copy of the raw 0/1 matrix.
func (s *Structure) Matrix() [][]int {
	out := make([][]int, s.n)
	for i, row := range s.raw {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Clone returns an independent copy, safe to hand to another run.
func (s *Structure) Clone() *Structure {
	c := &Structure{n: s.n, k: s.k, raw: s.Matrix(), deps: make([][]int, s.n)}
	for i := range s.deps {
		c.deps[i] = s.Dependencies(i)
	}
	return c
}

func (s *Structure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "N: %d\nK: %d\n", s.n, s.k)
	for _, row := range s.raw {
		fmt.Fprintln(&b, row)
	}
	return b.String()
}
