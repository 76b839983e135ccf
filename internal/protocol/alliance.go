package protocol

import (
	"nkinnov/internal/agent"
	"nkinnov/internal/model"
)

type allianceRole int

const (
	roleSingle allianceRole = iota
	roleKey
	roleValue
)

// Alliance pairs innovators that own the same P loci at random. After both
// partners finish M, the key (lower id) drives a joint P search with a
// shared budget; then both search M again. Unpaired innovators only search
// M. Each pair is logged by its value: the key's record, then its own.
type Alliance struct {
	base
	useMax bool
	roles  []allianceRole
}

// NewAlliance uses the larger partner power when useMax is set and the
// smaller one otherwise.
func NewAlliance(sim *SimulationContext, useMax bool) *Alliance {
	return &Alliance{base: base{sim: sim}, useMax: useMax}
}

func (a *Alliance) Strategy() model.Strategy {
	if a.useMax {
		return model.StrategyAllianceMax
	}
	return model.StrategyAllianceMin
}

func (a *Alliance) OutputFileName() string {
	if a.useMax {
		return a.fileName("alliance_max", false)
	}
	return a.fileName("alliance_min", false)
}

func (a *Alliance) Setup() {
	a.sim.Reset()
	a.pairUp()
}

// pairUp walks innovators in id order. Each unassigned innovator and every
// later one it can ally with form a class; an odd class loses one random
// member to singlehood, the rest are paired by successive random draws.
func (a *Alliance) pairUp() {
	inns := a.sim.Innovators
	draw := a.sim.World.Rand.Intn
	a.roles = make([]allianceRole, len(inns))
	assigned := make([]bool, len(inns))
	for i := range inns {
		if assigned[i] {
			continue
		}
		class := []int{i}
		for j := i + 1; j < len(inns); j++ {
			if !assigned[j] && inns[i].CanAllyWith(inns[j]) {
				class = append(class, j)
			}
		}
		for _, id := range class {
			assigned[id] = true
		}
		if len(class)%2 == 1 {
			id := takeRandom(&class, draw)
			a.roles[id] = roleSingle
			inns[id].SetPartner(agent.NoPartner)
		}
		for len(class) > 0 {
			x := takeRandom(&class, draw)
			y := takeRandom(&class, draw)
			key, value := min(x, y), max(x, y)
			a.roles[key] = roleKey
			a.roles[value] = roleValue
			inns[x].SetPartner(y)
			inns[y].SetPartner(x)
		}
	}
}

// Pairs returns key to value ids.
func (a *Alliance) Pairs() map[int]int {
	out := map[int]int{}
	for id, role := range a.roles {
		if role == roleKey {
			out[id] = a.sim.Innovators[id].Partner()
		}
	}
	return out
}

func (a *Alliance) power(x, y *agent.Innovator) int {
	if a.useMax {
		return max(x.Power(), y.Power())
	}
	return min(x.Power(), y.Power())
}

func (a *Alliance) logInnovator(in *agent.Innovator) {
	switch a.roles[in.ID()] {
	case roleValue:
		a.log(a.sim.Innovators[in.Partner()])
		a.log(in)
	case roleSingle:
		a.log(in)
	}
}

func (a *Alliance) Round() []model.Record {
	inns := a.sim.Innovators
	for _, in := range inns {
		role := a.roles[in.ID()]
		switch {
		case in.Phase() == model.PhaseP:
			if role != roleKey {
				a.logInnovator(in)
				continue
			}
			partner := inns[in.Partner()]
			if in.HasFrontier() {
				in.ContinueAllianceSearch(partner)
			} else {
				in.StartSearch(model.PhaseMagain, true)
				partner.StartSearch(model.PhaseMagain, false)
			}
		case in.HasFrontier():
			in.ContinueSearch()
			a.logInnovator(in)
		case in.Phase() == model.PhaseNone:
			in.StartSearch(model.PhaseM, true)
			a.logInnovator(in)
		case in.Phase() == model.PhaseM && role == roleKey:
			partner := inns[in.Partner()]
			if finished(partner, model.PhaseM) {
				in.MoveTo(in.MixWith(partner.Location(), false))
				partner.MoveTo(partner.MixWith(in.Location(), true))
				agent.BeginAlliance(in, partner, a.power(in, partner))
			} else {
				in.Wait()
			}
		default:
			in.Wait()
			a.logInnovator(in)
		}
	}
	return a.flush()
}

func (a *Alliance) Done() bool {
	for _, in := range a.sim.Innovators {
		if a.roles[in.ID()] == roleSingle {
			if !finished(in, model.PhaseM) {
				return false
			}
			continue
		}
		if !finished(in, model.PhaseMagain) {
			return false
		}
	}
	return true
}
