package landscape

import (
	"fmt"
	"strings"

	"nkinnov/internal/rng"
)

// MaxK bounds the dependency count so a table row stays addressable.
const MaxK = 30

// ContributionTable holds one random contribution per (locus, value,
// dependency state). States pack the dependency bits most-significant-first
// in dependency-list order.
type ContributionTable struct {
	structure *Structure
	states    int
	values    []float64
}

// NewContributionTable draws N*2*2^K values from src. The draw order is
// locus, then value 0 and 1, then state ascending; it fixes how much of the
// stream the table consumes before agents draw.
func NewContributionTable(s *Structure, src rng.Source) (*ContributionTable, error) {
	if s.K() > MaxK {
		return nil, &StructureError{Row: -1, Col: -1, Reason: fmt.Sprintf("K=%d exceeds the maximum of %d", s.K(), MaxK)}
	}
	states := 1 << s.K()
	t := &ContributionTable{
		structure: s,
		states:    states,
		values:    make([]float64, s.N()*2*states),
	}
	for i := range t.values {
		t.values[i] = src.Float64()
	}
	return t, nil
}

// Value returns the contribution of locus taking value (0 or 1) under the
// given dependency state.
func (t *ContributionTable) Value(locus, value, state int) float64 {
	return t.values[(locus*2+value)*t.states+state]
}

func (t *ContributionTable) States() int { return t.states }

func (t *ContributionTable) String() string {
	var b strings.Builder
	k := t.structure.K()
	for i := 0; i < t.structure.N(); i++ {
		deps := t.structure.Dependencies(i)
		for v := 0; v < 2; v++ {
			for d := 0; d < t.states; d++ {
				bits := make([]int, k)
				for l := 0; l < k; l++ {
					bits[l] = (d >> (k - 1 - l)) & 1
				}
				fmt.Fprintf(&b, "d(%d) = %d | d%v = %v ->\t%v\n", i, v, deps, bits, t.Value(i, v, d))
			}
		}
	}
	return b.String()
}
