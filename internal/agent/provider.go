package agent

import (
	"fmt"

	"nkinnov/internal/model"
)

// Provider searches over its Q loci and serves any innovators it partners
// with.
type Provider struct {
	searcher
	qSize    int
	q        []int
	partners []int
}

var _ Agent = (*Provider)(nil)

// NewProvider returns a provider that still needs Reset before use.
func NewProvider(w *World, id, power, qSize int) *Provider {
	return &Provider{
		searcher: searcher{world: w, id: id, power: power},
		qSize:    qSize,
	}
}

func (p *Provider) Role() model.Role { return model.RoleProvider }

// Q returns the provider's loci in ascending order.
func (p *Provider) Q() []int { return append([]int(nil), p.q...) }

// Reset draws a fresh location then Q, and drops all partners.
func (p *Provider) Reset() {
	p.randomize()
	pool := allLoci(p.world.Landscape.N())
	p.q = sampleLoci(&pool, p.qSize, p.world.Rand.Intn)
	p.partners = nil
}

// StartSearch opens the Q phase and, if firstStep, takes one step.
func (p *Provider) StartSearch(firstStep bool) {
	p.begin(model.PhaseQ, p.q, p.power)
	if firstStep && p.HasFrontier() {
		p.ContinueSearch()
	}
}

// ContinueSearch takes one step over Q. It panics on an empty frontier.
func (p *Provider) ContinueSearch() {
	climb(&p.searcher, p.q, p.power)
}

// CanPartnerWith reports whether the provider's Q loci cover in's P loci.
func (p *Provider) CanPartnerWith(in *Innovator) bool {
	return in.CanPartnerWith(p)
}

// AddPartner appends an innovator id to the partner list.
func (p *Provider) AddPartner(id int) { p.partners = append(p.partners, id) }

func (p *Provider) Partners() []int { return append([]int(nil), p.partners...) }

func (p *Provider) Record(run int) model.Record {
	return p.record(run, model.RoleProvider, p.Partners())
}

func (p *Provider) String() string {
	return fmt.Sprintf("provider %d power=%d loc=%d score=%.4f phase=%s Q=%v partners=%v",
		p.id, p.power, p.loc, p.score, p.phase, p.q, p.partners)
}
