// Package protocol drives agents through the rounds of each innovation
// strategy and decides when a strategy has finished.
package protocol

import (
	"context"
	"fmt"

	"nkinnov/internal/agent"
	"nkinnov/internal/model"
)

// SimulationContext is everything one run's coordinators share. Agent ids
// equal their positions in Innovators and Providers.
type SimulationContext struct {
	World      *agent.World
	Innovators []*agent.Innovator
	Providers  []*agent.Provider
	Run        int
}

// NewSimulationContext checks that agent ids match their positions.
func NewSimulationContext(w *agent.World, innovators []*agent.Innovator, providers []*agent.Provider, run int) (*SimulationContext, error) {
	for i, in := range innovators {
		if in.ID() != i {
			return nil, fmt.Errorf("innovator at position %d has id %d", i, in.ID())
		}
	}
	for i, p := range providers {
		if p.ID() != i {
			return nil, fmt.Errorf("provider at position %d has id %d", i, p.ID())
		}
	}
	return &SimulationContext{World: w, Innovators: innovators, Providers: providers, Run: run}, nil
}

// Reset redraws every innovator then every provider, in id order.
func (c *SimulationContext) Reset() {
	for _, in := range c.Innovators {
		in.Reset()
	}
	for _, p := range c.Providers {
		p.Reset()
	}
}

// Coordinator runs one strategy over a SimulationContext.
type Coordinator interface {
	Strategy() model.Strategy
	Context() *SimulationContext
	// Setup resets the population and performs any pairing the strategy
	// needs before the first round.
	Setup()
	// Round advances every active agent once and returns the log records in
	// emission order.
	Round() []model.Record
	Done() bool
	OutputFileName() string
}

// Sink receives the records of each round.
type Sink interface {
	Append(records []model.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(records []model.Record) error

func (f SinkFunc) Append(records []model.Record) error { return f(records) }

// New builds the coordinator for strategy.
func New(strategy model.Strategy, ctx *SimulationContext) (Coordinator, error) {
	switch strategy {
	case model.StrategyClosed:
		return NewClosed(ctx), nil
	case model.StrategyLicensing:
		return NewLicensing(ctx), nil
	case model.StrategyOutsourcing:
		return NewOutsourcing(ctx), nil
	case model.StrategyAllianceMax:
		return NewAlliance(ctx, true), nil
	case model.StrategyAllianceMin:
		return NewAlliance(ctx, false), nil
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownStrategy, strategy)
	}
}

// Run sets c up and plays rounds until it is done, handing every round's
// records to sink. A nil sink discards them.
func Run(ctx context.Context, c Coordinator, sink Sink) (model.StrategyResult, error) {
	sim := c.Context()
	before := sim.World.Landscape.Stats()
	c.Setup()

	result := model.StrategyResult{Strategy: c.Strategy(), Stream: c.OutputFileName()}
	for !c.Done() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		records := c.Round()
		result.Rounds++
		result.Records += len(records)
		if sink == nil || len(records) == 0 {
			continue
		}
		if err := sink.Append(records); err != nil {
			return result, fmt.Errorf("append round %d of %s: %w", result.Rounds, c.Strategy(), err)
		}
	}

	after := sim.World.Landscape.Stats()
	result.FitnessEvals = after.Evaluations() - before.Evaluations()
	result.CacheHits = after.Hits - before.Hits
	summarize(&result, sim)
	return result, nil
}

func summarize(result *model.StrategyResult, sim *SimulationContext) {
	result.FinalScores = make([]float64, len(sim.Innovators))
	var total float64
	var ticks int64
	for i, in := range sim.Innovators {
		result.FinalScores[i] = in.Score()
		total += in.Score()
		ticks += in.Timestamp()
		if i == 0 || in.Score() > result.BestScore {
			result.BestScore = in.Score()
		}
	}
	if n := len(sim.Innovators); n > 0 {
		result.MeanScore = total / float64(n)
		result.MeanTimestamp = float64(ticks) / float64(n)
	}
	if len(sim.Providers) > 0 {
		result.ProviderScores = make([]float64, len(sim.Providers))
		for i, p := range sim.Providers {
			result.ProviderScores[i] = p.Score()
		}
	}
}

// BestProvider returns the id of the eligible provider with the strictly
// highest current score, the lowest id winning ties, or agent.NoPartner.
func BestProvider(in *agent.Innovator, providers []*agent.Provider) int {
	best, bestScore := agent.NoPartner, -1.0
	for _, p := range providers {
		if in.CanPartnerWith(p) && p.Score() > bestScore {
			best, bestScore = p.ID(), p.Score()
		}
	}
	return best
}

type base struct {
	sim *SimulationContext
	out []model.Record
}

func (b *base) Context() *SimulationContext { return b.sim }

func (b *base) log(a agent.Agent) { b.out = append(b.out, a.Record(b.sim.Run)) }

func (b *base) flush() []model.Record {
	out := b.out
	b.out = nil
	return out
}

func (b *base) fileName(suffix string, withProviders bool) string {
	land := b.sim.World.Landscape
	name := fmt.Sprintf("o_n%dk%d_x%d", land.N(), land.K(), len(b.sim.Innovators))
	if withProviders {
		name += fmt.Sprintf("y%d", len(b.sim.Providers))
	}
	return name + "_" + suffix + ".txt"
}

// finished reports whether a has exhausted phase.
func finished(a agent.Agent, phase model.Phase) bool {
	return a.Phase() == phase && !a.HasFrontier()
}

// settled is the terminal condition of innovators under licensing and
// outsourcing: done with Magain, or done with M and known to have no partner.
func settled(in *agent.Innovator) bool {
	if finished(in, model.PhaseMagain) {
		return true
	}
	return in.Phase() == model.PhaseM && in.HasSetPartner() && in.Partner() == agent.NoPartner
}

// advanceProvider is a provider's turn: search Q, then wait.
func (b *base) advanceProvider(p *agent.Provider) {
	switch {
	case p.HasFrontier():
		p.ContinueSearch()
	case p.Phase() == model.PhaseNone:
		p.StartSearch(true)
	default:
		p.Wait()
	}
	b.log(p)
}

// awaitProvider is the turn of an innovator that has finished M. Once its
// provider has finished Q it adopts the provider's P bits and searches M
// again; until then, or without a provider, it waits.
func (b *base) awaitProvider(in *agent.Innovator) {
	if in.Partner() == agent.NoPartner {
		in.Wait()
		b.log(in)
		return
	}
	p := b.sim.Providers[in.Partner()]
	if finished(p, model.PhaseQ) {
		in.MoveTo(in.MixWith(p.Location(), true))
		in.StartSearch(model.PhaseMagain, true)
	} else {
		in.Wait()
	}
	b.log(in)
}

// takeRandom removes a uniformly drawn element of ids, keeping the order of
// the rest.
func takeRandom(ids *[]int, draw func(int) int) int {
	i := draw(len(*ids))
	id := (*ids)[i]
	*ids = append((*ids)[:i], (*ids)[i+1:]...)
	return id
}
