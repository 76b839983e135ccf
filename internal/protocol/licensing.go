package protocol

import (
	"nkinnov/internal/agent"
	"nkinnov/internal/model"
)

// Licensing runs providers and innovators from the first round. An
// innovator picks the best eligible provider when it first finishes M and
// licenses that provider's solution once the provider has finished Q.
type Licensing struct {
	base
}

func NewLicensing(sim *SimulationContext) *Licensing {
	return &Licensing{base: base{sim: sim}}
}

func (l *Licensing) Strategy() model.Strategy { return model.StrategyLicensing }

func (l *Licensing) OutputFileName() string { return l.fileName("licensing", true) }

func (l *Licensing) Setup() { l.sim.Reset() }

func (l *Licensing) Round() []model.Record {
	for _, p := range l.sim.Providers {
		l.advanceProvider(p)
	}
	for _, in := range l.sim.Innovators {
		switch {
		case in.HasFrontier():
			in.ContinueSearch()
			l.log(in)
		case in.Phase() == model.PhaseNone:
			in.StartSearch(model.PhaseM, true)
			l.log(in)
		case in.Phase() == model.PhaseM:
			if !in.HasSetPartner() {
				l.choose(in)
			}
			l.awaitProvider(in)
		default:
			in.Wait()
			l.log(in)
		}
	}
	return l.flush()
}

func (l *Licensing) choose(in *agent.Innovator) {
	id := BestProvider(in, l.sim.Providers)
	in.SetPartner(id)
	if id != agent.NoPartner {
		l.sim.Providers[id].AddPartner(in.ID())
	}
}

func (l *Licensing) Done() bool {
	for _, p := range l.sim.Providers {
		if !finished(p, model.PhaseQ) {
			return false
		}
	}
	for _, in := range l.sim.Innovators {
		if !settled(in) {
			return false
		}
	}
	return true
}
