package landscape

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"nkinnov/internal/rng"
)

// CacheCapacity is the number of fitness values a landscape remembers.
const CacheCapacity = 1 << 10

// Stats counts fitness lookups served from and missed by the cache.
type Stats struct {
	Hits   uint64
	Misses uint64
}

func (s Stats) Evaluations() uint64 { return s.Hits + s.Misses }

// Landscape evaluates locations against one contribution table. The cache
// only saves work; FitnessOf is a pure function of the location.
type Landscape struct {
	structure *Structure
	table     *ContributionTable
	cache     *lru.Cache[uint64, float64]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New draws a fresh contribution table for s from src.
func New(s *Structure, src rng.Source) (*Landscape, error) {
	table, err := NewContributionTable(s, src)
	if err != nil {
		return nil, err
	}
	return NewWithTable(s, table)
}

func NewWithTable(s *Structure, table *ContributionTable) (*Landscape, error) {
	cache, err := lru.New[uint64, float64](CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("fitness cache: %w", err)
	}
	return &Landscape{structure: s, table: table, cache: cache}, nil
}

func (l *Landscape) N() int { return l.structure.N() }

func (l *Landscape) K() int { return l.structure.K() }

func (l *Landscape) Structure() *Structure { return l.structure }

func (l *Landscape) Table() *ContributionTable { return l.table }

func (l *Landscape) Stats() Stats {
	return Stats{Hits: l.hits.Load(), Misses: l.misses.Load()}
}

// CacheLen reports how many locations are cached.
func (l *Landscape) CacheLen() int { return l.cache.Len() }

// FitnessOf returns the mean contribution of all loci at loc.
func (l *Landscape) FitnessOf(loc uint64) float64 {
	if v, ok := l.cache.Get(loc); ok {
		l.hits.Add(1)
		return v
	}
	l.misses.Add(1)
	v := l.compute(loc)
	l.cache.Add(loc, v)
	return v
}

func (l *Landscape) compute(loc uint64) float64 {
	n := l.structure.N()
	sum := 0.0
	for i := 0; i < n; i++ {
		state := 0
		for _, dep := range l.structure.deps[i] {
			state = state<<1 | l.Bit(loc, dep)
		}
		sum += l.table.Value(i, l.Bit(loc, i), state)
	}
	return sum / float64(n)
}

// Bit returns the value of locus at loc; locus 0 is the most significant of
// the N bits.
func (l *Landscape) Bit(loc uint64, locus int) int {
	return int(loc>>uint(l.structure.N()-1-locus)) & 1
}

// Toggle flips one locus.
func (l *Landscape) Toggle(loc uint64, locus int) uint64 {
	return loc ^ (1 << uint(l.structure.N()-1-locus))
}

// SetBit returns loc with locus forced to value.
func (l *Landscape) SetBit(loc uint64, locus, value int) uint64 {
	if l.Bit(loc, locus) == value {
		return loc
	}
	return l.Toggle(loc, locus)
}

// Size is the number of distinct locations, 2^N.
func (l *Landscape) Size() uint64 { return 1 << uint(l.structure.N()) }

// RandomLocation draws a location uniformly from [0, 2^N).
func (l *Landscape) RandomLocation(src rng.Source) uint64 {
	return uint64(src.Int63n(int64(l.Size())))
}

// Decode expands loc into one 0/1 value per locus.
func (l *Landscape) Decode(loc uint64) []int {
	bits := make([]int, l.structure.N())
	for i := range bits {
		bits[i] = l.Bit(loc, i)
	}
	return bits
}
