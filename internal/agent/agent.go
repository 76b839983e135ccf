// Package agent implements the hill-climbing search behaviour of innovators
// and providers over an NK landscape.
package agent

import (
	"nkinnov/internal/landscape"
	"nkinnov/internal/model"
	"nkinnov/internal/rng"
)

// NoPartner marks an agent that looked for a partner and found none.
const NoPartner = -1

// World is what agents search over: one landscape and the run's random
// stream.
type World struct {
	Landscape *landscape.Landscape
	Rand      rng.Source
}

// Agent is the view coordinators need of either role.
type Agent interface {
	ID() int
	Role() model.Role
	Power() int
	Location() uint64
	Score() float64
	Timestamp() int64
	Phase() model.Phase
	HasFrontier() bool
	FrontierLen() int
	ContinueSearch()
	Wait()
	Record(run int) model.Record
}

// searcher is the state shared by both roles. Visited accumulates over a
// whole phase, so a location tried once is never offered again in that
// phase, even after the agent moves.
type searcher struct {
	world     *World
	id        int
	power     int
	loc       uint64
	score     float64
	timestamp int64
	phase     model.Phase
	visited   map[uint64]struct{}
	frontier  []uint64
}

func (s *searcher) ID() int { return s.id }

func (s *searcher) Power() int { return s.power }

func (s *searcher) Location() uint64 { return s.loc }

func (s *searcher) Score() float64 { return s.score }

func (s *searcher) Timestamp() int64 { return s.timestamp }

func (s *searcher) Phase() model.Phase { return s.phase }

func (s *searcher) HasFrontier() bool { return len(s.frontier) > 0 }

func (s *searcher) FrontierLen() int { return len(s.frontier) }

// Visited reports whether loc was tried in the current phase.
func (s *searcher) Visited(loc uint64) bool {
	_, ok := s.visited[loc]
	return ok
}

// Wait spends one tick without searching.
func (s *searcher) Wait() { s.timestamp++ }

// moveTo places the agent at loc and re-evaluates its score.
func (s *searcher) moveTo(loc uint64) {
	s.loc = loc
	s.score = s.world.Landscape.FitnessOf(loc)
}

// randomize draws a new location and clears all search state.
func (s *searcher) randomize() {
	s.moveTo(s.world.Landscape.RandomLocation(s.world.Rand))
	s.timestamp = 0
	s.phase = model.PhaseNone
	s.visited = nil
	s.frontier = nil
}

// begin opens a phase over loci with the given budget.
func (s *searcher) begin(phase model.Phase, loci []int, power int) {
	s.phase = phase
	s.visited = map[uint64]struct{}{s.loc: {}}
	s.frontier = s.unvisitedAround(s.loc, loci, power)
}

func (s *searcher) unvisitedAround(loc uint64, loci []int, power int) []uint64 {
	all := s.world.Landscape.NeighborhoodInclusive(loc, loci, power)
	out := all[:0]
	for _, cand := range all {
		if _, seen := s.visited[cand]; !seen {
			out = append(out, cand)
		}
	}
	return out
}

// draw removes a uniformly chosen candidate from the frontier and marks it
// visited.
func (s *searcher) draw() uint64 {
	if len(s.frontier) == 0 {
		panic("agent: search step with an empty frontier")
	}
	i := s.world.Rand.Intn(len(s.frontier))
	cand := s.frontier[i]
	last := len(s.frontier) - 1
	s.frontier[i] = s.frontier[last]
	s.frontier = s.frontier[:last]
	s.visited[cand] = struct{}{}
	return cand
}

// climb is one hill-climbing step over loci. Ties move the agent. It
// reports whether the candidate was accepted.
func climb(s *searcher, loci []int, power int) bool {
	cand := s.draw()
	score := s.world.Landscape.FitnessOf(cand)
	accepted := score >= s.score
	if accepted {
		s.loc = cand
		s.score = score
		s.frontier = s.unvisitedAround(cand, loci, power)
	}
	s.timestamp++
	return accepted
}

func (s *searcher) record(run int, role model.Role, partners []int) model.Record {
	return model.Record{
		Run:       run,
		Timestamp: s.timestamp,
		Role:      role,
		AgentID:   s.id,
		Power:     s.power,
		Phase:     s.phase,
		Score:     s.score,
		Partners:  partners,
	}
}
