package protocol

import "nkinnov/internal/model"

// Closed lets every innovator search M, then P, then M and P together,
// on its own.
type Closed struct {
	base
}

func NewClosed(sim *SimulationContext) *Closed {
	return &Closed{base: base{sim: sim}}
}

func (c *Closed) Strategy() model.Strategy { return model.StrategyClosed }

func (c *Closed) OutputFileName() string { return c.fileName("closed", false) }

func (c *Closed) Setup() { c.sim.Reset() }

func (c *Closed) Round() []model.Record {
	for _, in := range c.sim.Innovators {
		switch {
		case in.HasFrontier():
			in.ContinueSearch()
		case in.Phase() == model.PhaseNone:
			in.StartSearch(model.PhaseM, true)
		case in.Phase() == model.PhaseM:
			in.StartSearch(model.PhaseP, true)
		case in.Phase() == model.PhaseP:
			in.StartSearch(model.PhaseMandP, true)
		default:
			in.Wait()
		}
		c.log(in)
	}
	return c.flush()
}

func (c *Closed) Done() bool {
	for _, in := range c.sim.Innovators {
		if !finished(in, model.PhaseMandP) {
			return false
		}
	}
	return true
}
