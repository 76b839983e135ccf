package protocol

import (
	"sort"

	"nkinnov/internal/agent"
	"nkinnov/internal/model"
)

// Outsourcing pairs every innovator with its best provider up front. The
// chosen providers wait until every innovator has finished M, then search
// Q; unchosen providers never act.
type Outsourcing struct {
	base
	chosen  []int
	started bool
}

func NewOutsourcing(sim *SimulationContext) *Outsourcing {
	return &Outsourcing{base: base{sim: sim}}
}

func (o *Outsourcing) Strategy() model.Strategy { return model.StrategyOutsourcing }

func (o *Outsourcing) OutputFileName() string { return o.fileName("outsourcing", true) }

func (o *Outsourcing) Setup() {
	o.sim.Reset()
	o.started = false
	seen := map[int]bool{}
	o.chosen = o.chosen[:0]
	for _, in := range o.sim.Innovators {
		id := BestProvider(in, o.sim.Providers)
		in.SetPartner(id)
		if id == agent.NoPartner {
			continue
		}
		o.sim.Providers[id].AddPartner(in.ID())
		if !seen[id] {
			seen[id] = true
			o.chosen = append(o.chosen, id)
		}
	}
	sort.Ints(o.chosen)
}

// Chosen returns the ids of providers that have at least one partner.
func (o *Outsourcing) Chosen() []int { return append([]int(nil), o.chosen...) }

func (o *Outsourcing) Round() []model.Record {
	if !o.providersMayStart() {
		for _, id := range o.chosen {
			p := o.sim.Providers[id]
			p.Wait()
			o.log(p)
		}
		for _, in := range o.sim.Innovators {
			switch {
			case in.HasFrontier():
				in.ContinueSearch()
			case in.Phase() == model.PhaseNone:
				in.StartSearch(model.PhaseM, true)
			default:
				in.Wait()
			}
			o.log(in)
		}
		return o.flush()
	}

	for _, id := range o.chosen {
		o.advanceProvider(o.sim.Providers[id])
	}
	for _, in := range o.sim.Innovators {
		switch {
		case in.HasFrontier():
			in.ContinueSearch()
			o.log(in)
		case in.Phase() == model.PhaseM:
			o.awaitProvider(in)
		default:
			in.Wait()
			o.log(in)
		}
	}
	return o.flush()
}

// providersMayStart latches once every innovator has finished M or moved on
// to Magain.
func (o *Outsourcing) providersMayStart() bool {
	if o.started {
		return true
	}
	for _, in := range o.sim.Innovators {
		if finished(in, model.PhaseM) || in.Phase() == model.PhaseMagain {
			continue
		}
		return false
	}
	o.started = true
	return true
}

func (o *Outsourcing) Done() bool {
	for _, id := range o.chosen {
		if !finished(o.sim.Providers[id], model.PhaseQ) {
			return false
		}
	}
	for _, in := range o.sim.Innovators {
		if !settled(in) {
			return false
		}
	}
	return true
}
