package agent

import (
	"fmt"

	"nkinnov/internal/model"
)

// Innovator searches over its M and P loci and may ally with another
// innovator or partner with a provider.
type Innovator struct {
	searcher
	mSize, pSize  int
	m, p          []int
	alliancePower int
	partner       int
	partnerSet    bool
}

var _ Agent = (*Innovator)(nil)

// NewInnovator returns an innovator that still needs Reset before use.
func NewInnovator(w *World, id, power, mSize, pSize int) *Innovator {
	return &Innovator{
		searcher: searcher{world: w, id: id, power: power},
		mSize:    mSize,
		pSize:    pSize,
		partner:  NoPartner,
	}
}

func (in *Innovator) Role() model.Role { return model.RoleInnovator }

// M returns the innovator's M loci in ascending order.
func (in *Innovator) M() []int { return append([]int(nil), in.m...) }

// P returns the innovator's P loci in ascending order.
func (in *Innovator) P() []int { return append([]int(nil), in.p...) }

// Reset draws a fresh location, then M, then P from the loci not yet taken.
func (in *Innovator) Reset() {
	in.randomize()
	pool := allLoci(in.world.Landscape.N())
	in.m = sampleLoci(&pool, in.mSize, in.world.Rand.Intn)
	in.p = sampleLoci(&pool, in.pSize, in.world.Rand.Intn)
	in.alliancePower = 0
	in.partner = NoPartner
	in.partnerSet = false
}

func (in *Innovator) traits(phase model.Phase) []int {
	switch phase {
	case model.PhaseM, model.PhaseMagain:
		return in.m
	case model.PhaseP:
		return in.p
	case model.PhaseMandP:
		return union(in.m, in.p)
	default:
		panic(fmt.Sprintf("agent: innovator has no trait set for phase %s", phase))
	}
}

// StartSearch opens phase over the matching trait set and, if firstStep,
// takes one step straight away.
func (in *Innovator) StartSearch(phase model.Phase, firstStep bool) {
	in.begin(phase, in.traits(phase), in.power)
	if firstStep && in.HasFrontier() {
		in.ContinueSearch()
	}
}

// ContinueSearch takes one step of the current phase. It panics on an empty
// frontier.
func (in *Innovator) ContinueSearch() {
	climb(&in.searcher, in.traits(in.phase), in.power)
}

// MixWith returns the current location with P bits taken from other. With
// copyAll every P bit is copied; otherwise each is copied on a fair coin.
func (in *Innovator) MixWith(other uint64, copyAll bool) uint64 {
	land := in.world.Landscape
	out := in.loc
	for _, locus := range in.p {
		if !copyAll && in.world.Rand.Bool() {
			continue
		}
		out = land.SetBit(out, locus, land.Bit(other, locus))
	}
	return out
}

// MoveTo places the innovator at loc without searching.
func (in *Innovator) MoveTo(loc uint64) { in.moveTo(loc) }

// CanAllyWith reports whether both innovators own the same P loci.
func (in *Innovator) CanAllyWith(other *Innovator) bool {
	return sameLoci(in.p, other.p)
}

// CanPartnerWith reports whether p's Q loci cover the innovator's P loci.
func (in *Innovator) CanPartnerWith(p *Provider) bool {
	return covers(p.q, in.p)
}

// SetPartner records the outcome of a partner search; NoPartner means none
// was found.
func (in *Innovator) SetPartner(id int) {
	in.partner = id
	in.partnerSet = true
}

func (in *Innovator) Partner() int { return in.partner }

func (in *Innovator) HasSetPartner() bool { return in.partnerSet }

// IsAllianceKey reports whether the innovator drives its alliance's joint
// search, which is the lower id of the pair.
func (in *Innovator) IsAllianceKey() bool {
	return in.partner != NoPartner && in.id < in.partner
}

// AlliancePower is the joint budget fixed when the alliance search started.
func (in *Innovator) AlliancePower() int { return in.alliancePower }

// BeginAlliance opens the joint P search of key and value with the shared
// budget and takes the key's first step if it has any candidates.
func BeginAlliance(key, value *Innovator, power int) {
	if key.id >= value.id {
		panic(fmt.Sprintf("agent: alliance key %d must have a lower id than %d", key.id, value.id))
	}
	key.alliancePower = power
	value.alliancePower = power
	value.phase = model.PhaseP
	value.visited = map[uint64]struct{}{value.loc: {}}
	value.frontier = nil
	key.begin(model.PhaseP, key.p, power)
	if key.HasFrontier() {
		key.ContinueAllianceSearch(value)
	}
}

// ContinueAllianceSearch takes one joint step. The key draws a P candidate;
// if it does not lower the key's score the partner copies the candidate's P
// bits, and both move only if the partner does not lose either. Both
// timestamps advance. It reports whether the pair moved.
func (in *Innovator) ContinueAllianceSearch(partner *Innovator) bool {
	land := in.world.Landscape
	cand := in.draw()
	score := land.FitnessOf(cand)
	moved := false
	if score >= in.score {
		mixed := partner.MixWith(cand, true)
		mixedScore := land.FitnessOf(mixed)
		if mixedScore >= partner.score {
			in.loc, in.score = cand, score
			partner.loc, partner.score = mixed, mixedScore
			partner.visited[mixed] = struct{}{}
			in.frontier = in.unvisitedAround(cand, in.p, in.alliancePower)
			partner.frontier = partner.unvisitedAround(mixed, partner.p, partner.alliancePower)
			moved = true
		}
	}
	in.timestamp++
	partner.timestamp++
	return moved
}

// Record reports the innovator's state; the partner field is empty until a
// partner other than NoPartner is set.
func (in *Innovator) Record(run int) model.Record {
	var partners []int
	if in.partner != NoPartner {
		partners = []int{in.partner}
	}
	return in.record(run, model.RoleInnovator, partners)
}

func (in *Innovator) String() string {
	return fmt.Sprintf("innovator %d power=%d loc=%d score=%.4f phase=%s M=%v P=%v",
		in.id, in.power, in.loc, in.score, in.phase, in.m, in.p)
}
