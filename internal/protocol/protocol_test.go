package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nkinnov/internal/agent"
	"nkinnov/internal/landscape"
	"nkinnov/internal/model"
	"nkinnov/internal/rng"
)

type innovatorSpec struct{ power, m, p int }

type providerSpec struct{ power, q int }

func ringMatrix(n int) [][]int {
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
		m[i][i] = 1
		m[i][(i+1)%n] = 1
	}
	return m
}

func newTestContext(t *testing.T, n int, seed int64, inns []innovatorSpec, provs []providerSpec) *SimulationContext {
	t.Helper()
	s, err := landscape.NewStructure(ringMatrix(n))
	if err != nil {
		t.Fatalf("structure: %v", err)
	}
	r := rng.New(seed)
	l, err := landscape.New(s, r)
	if err != nil {
		t.Fatalf("landscape: %v", err)
	}
	w := &agent.World{Landscape: l, Rand: r}
	innovators := make([]*agent.Innovator, len(inns))
	for i, spec := range inns {
		innovators[i] = agent.NewInnovator(w, i, spec.power, spec.m, spec.p)
	}
	providers := make([]*agent.Provider, len(provs))
	for i, spec := range provs {
		providers[i] = agent.NewProvider(w, i, spec.power, spec.q)
	}
	sim, err := NewSimulationContext(w, innovators, providers, 1)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	return sim
}

func collect(records *[]model.Record) Sink {
	return SinkFunc(func(batch []model.Record) error {
		*records = append(*records, batch...)
		return nil
	})
}

func mixedPopulation() ([]innovatorSpec, []providerSpec) {
	inns := []innovatorSpec{{1, 3, 2}, {2, 2, 2}, {1, 3, 2}, {2, 4, 3}, {1, 2, 2}}
	provs := []providerSpec{{1, 6}, {2, 8}, {1, 4}}
	return inns, provs
}

func runAll(t *testing.T, seed int64) []string {
	t.Helper()
	inns, provs := mixedPopulation()
	sim := newTestContext(t, 10, seed, inns, provs)
	var lines []string
	for _, strategy := range model.Strategies() {
		c, err := New(strategy, sim)
		if err != nil {
			t.Fatalf("new %s: %v", strategy, err)
		}
		var records []model.Record
		result, err := Run(context.Background(), c, collect(&records))
		if err != nil {
			t.Fatalf("run %s: %v", strategy, err)
		}
		if result.Records != len(records) {
			t.Fatalf("%s: result counts %d records, sink saw %d", strategy, result.Records, len(records))
		}
		if !c.Done() {
			t.Fatalf("%s returned before it was done", strategy)
		}
		lines = append(lines, c.OutputFileName())
		for _, rec := range records {
			lines = append(lines, rec.String())
		}
	}
	return lines
}

func TestEveryStrategyTerminatesDeterministically(t *testing.T) {
	first := runAll(t, 77)
	second := runAll(t, 77)
	if len(first) != len(second) {
		t.Fatalf("line counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("line %d differs:\n%s\n%s", i, first[i], second[i])
		}
	}
	other := runAll(t, 78)
	if strings.Join(first, "\n") == strings.Join(other, "\n") {
		t.Fatalf("different seeds produced identical logs")
	}
}

func TestClosedPhaseSequence(t *testing.T) {
	sim := newTestContext(t, 4, 5, []innovatorSpec{{1, 1, 1}}, nil)
	c := NewClosed(sim)
	var records []model.Record
	if _, err := Run(context.Background(), c, collect(&records)); err != nil {
		t.Fatalf("run: %v", err)
	}
	var phases []model.Phase
	for _, rec := range records {
		if len(phases) == 0 || phases[len(phases)-1] != rec.Phase {
			phases = append(phases, rec.Phase)
		}
	}
	want := []model.Phase{model.PhaseM, model.PhaseP, model.PhaseMandP}
	if len(phases) != len(want) {
		t.Fatalf("phases=%v want=%v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases=%v want=%v", phases, want)
		}
	}
	if got := c.OutputFileName(); got != "o_n4k1_x1_closed.txt" {
		t.Fatalf("file name %q", got)
	}
}

func TestScoresNeverDropWithinAPhase(t *testing.T) {
	inns, provs := mixedPopulation()
	sim := newTestContext(t, 10, 19, inns, provs)
	for _, strategy := range model.Strategies() {
		c, err := New(strategy, sim)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		var records []model.Record
		if _, err := Run(context.Background(), c, collect(&records)); err != nil {
			t.Fatalf("run: %v", err)
		}
		type key struct {
			role model.Role
			id   int
		}
		last := map[key]model.Record{}
		for _, rec := range records {
			k := key{rec.Role, rec.AgentID}
			prev, ok := last[k]
			if ok && prev.Phase == rec.Phase && rec.Score < prev.Score {
				t.Fatalf("%s: %s %d dropped from %v to %v in phase %s",
					strategy, rec.Role, rec.AgentID, prev.Score, rec.Score, rec.Phase)
			}
			if ok && rec.Timestamp < prev.Timestamp {
				t.Fatalf("%s: timestamp went backwards for %s %d", strategy, rec.Role, rec.AgentID)
			}
			last[k] = rec
		}
	}
}

func runAlliance(t *testing.T, sim *SimulationContext, useMax bool) (*Alliance, []model.Record) {
	t.Helper()
	a := NewAlliance(sim, useMax)
	var records []model.Record
	if _, err := Run(context.Background(), a, collect(&records)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return a, records
}

// checkPairLogging verifies that every value record follows its key's and
// that partners keep a constant timestamp offset through the joint search.
// It returns the number of pairs that logged joint steps.
func checkPairLogging(t *testing.T, a *Alliance, records []model.Record) int {
	t.Helper()
	values := map[int]int{}
	for k, v := range a.Pairs() {
		if k >= v {
			t.Fatalf("key %d must be lower than value %d", k, v)
		}
		if !a.sim.Innovators[k].CanAllyWith(a.sim.Innovators[v]) {
			t.Fatalf("pair %d/%d does not share P", k, v)
		}
		values[v] = k
	}
	offset := map[int]int64{}
	for i, rec := range records {
		key, ok := values[rec.AgentID]
		if !ok {
			continue
		}
		if i == 0 || records[i-1].AgentID != key {
			t.Fatalf("value %d logged without its key first", rec.AgentID)
		}
		if rec.Phase != model.PhaseP {
			continue
		}
		d := records[i-1].Timestamp - rec.Timestamp
		if prev, seen := offset[key]; seen && prev != d {
			t.Fatalf("pair %d/%d drifted apart during joint search", key, rec.AgentID)
		}
		offset[key] = d
	}
	return len(offset)
}

func TestAllianceWithSharedEmptyP(t *testing.T) {
	inns := []innovatorSpec{{1, 2, 0}, {2, 2, 0}, {3, 3, 0}, {1, 2, 0}, {2, 3, 0}}
	for _, useMax := range []bool{true, false} {
		sim := newTestContext(t, 10, 31, inns, nil)
		a, records := runAlliance(t, sim, useMax)
		if got := len(a.Pairs()); got != 2 {
			t.Fatalf("five innovators with equal P must form two pairs, got %d", got)
		}
		if got := checkPairLogging(t, a, records); got != 2 {
			t.Fatalf("expected both pairs to log joint steps, got %d", got)
		}
		suffix := "_alliance_min.txt"
		if useMax {
			suffix = "_alliance_max.txt"
		}
		if got := a.OutputFileName(); got != "o_n10k1_x5"+suffix {
			t.Fatalf("file name %q", got)
		}
	}
}

func TestAllianceJointSearch(t *testing.T) {
	// With N=3, M=1 and P=2 there are only three possible P sets, so eight
	// innovators always contain at least one pair.
	inns := make([]innovatorSpec, 8)
	for i := range inns {
		inns[i] = innovatorSpec{power: 1 + i%2, m: 1, p: 2}
	}
	sim := newTestContext(t, 3, 44, inns, nil)
	a, records := runAlliance(t, sim, true)
	if len(a.Pairs()) == 0 {
		t.Fatalf("no pairs formed")
	}
	if got := checkPairLogging(t, a, records); got != len(a.Pairs()) {
		t.Fatalf("%d of %d pairs logged joint steps", got, len(a.Pairs()))
	}
	for id, role := range a.roles {
		in := sim.Innovators[id]
		if role == roleSingle && in.Phase() != model.PhaseM {
			t.Fatalf("single %d ended in %s", id, in.Phase())
		}
		if role != roleSingle && in.Phase() != model.PhaseMagain {
			t.Fatalf("partner %d ended in %s", id, in.Phase())
		}
	}
}

func TestAlliancePowerFollowsMode(t *testing.T) {
	sim := newTestContext(t, 8, 3, []innovatorSpec{{1, 2, 0}, {3, 2, 0}}, nil)
	x, y := sim.Innovators[0], sim.Innovators[1]
	if got := NewAlliance(sim, true).power(x, y); got != 3 {
		t.Fatalf("max power=%d", got)
	}
	if got := NewAlliance(sim, false).power(x, y); got != 1 {
		t.Fatalf("min power=%d", got)
	}
}

func TestBestProviderPicksHighestEligible(t *testing.T) {
	inns := []innovatorSpec{{1, 2, 3}}
	provs := []providerSpec{{1, 8}, {1, 8}, {1, 8}, {1, 0}}
	sim := newTestContext(t, 8, 12, inns, provs)
	sim.Reset()
	in := sim.Innovators[0]

	want, best := agent.NoPartner, -1.0
	for _, p := range sim.Providers {
		if in.CanPartnerWith(p) && p.Score() > best {
			want, best = p.ID(), p.Score()
		}
	}
	if want == agent.NoPartner {
		t.Fatalf("providers over all loci must be eligible")
	}
	if got := BestProvider(in, sim.Providers); got != want {
		t.Fatalf("best=%d want=%d", got, want)
	}
	if got := BestProvider(in, sim.Providers[3:]); got != agent.NoPartner {
		t.Fatalf("empty Q provider chosen: %d", got)
	}
	if got := BestProvider(in, sim.Providers[:1]); got != 0 {
		t.Fatalf("provider 0 must be selectable, got %d", got)
	}
}

func TestLicensingPartnersAreConsistent(t *testing.T) {
	inns, provs := mixedPopulation()
	sim := newTestContext(t, 10, 8, inns, provs)
	l := NewLicensing(sim)
	if _, err := Run(context.Background(), l, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, in := range sim.Innovators {
		if !in.HasSetPartner() {
			t.Fatalf("innovator %d never looked for a provider", in.ID())
		}
		if in.Partner() == agent.NoPartner {
			if in.Phase() != model.PhaseM {
				t.Fatalf("unpartnered innovator %d left M", in.ID())
			}
			continue
		}
		if in.Phase() != model.PhaseMagain {
			t.Fatalf("partnered innovator %d ended in %s", in.ID(), in.Phase())
		}
		found := false
		for _, id := range sim.Providers[in.Partner()].Partners() {
			found = found || id == in.ID()
		}
		if !found {
			t.Fatalf("provider %d does not list innovator %d", in.Partner(), in.ID())
		}
	}
	if got := l.OutputFileName(); got != "o_n10k1_x5y3_licensing.txt" {
		t.Fatalf("file name %q", got)
	}
}

func TestOutsourcingOnlyChosenProvidersAct(t *testing.T) {
	inns, provs := mixedPopulation()
	sim := newTestContext(t, 10, 4, inns, provs)
	o := NewOutsourcing(sim)
	var records []model.Record
	if _, err := Run(context.Background(), o, collect(&records)); err != nil {
		t.Fatalf("run: %v", err)
	}
	chosen := map[int]bool{}
	for _, id := range o.Chosen() {
		chosen[id] = true
	}
	for _, in := range sim.Innovators {
		if id := in.Partner(); id != agent.NoPartner && !chosen[id] {
			t.Fatalf("partner %d of innovator %d not chosen", id, in.ID())
		}
	}
	startedQ := false
	for _, rec := range records {
		if rec.Role != model.RoleProvider {
			if startedQ && rec.Phase == model.PhaseNone {
				t.Fatalf("innovator %d had not started when providers did", rec.AgentID)
			}
			continue
		}
		if !chosen[rec.AgentID] {
			t.Fatalf("unchosen provider %d logged", rec.AgentID)
		}
		if rec.Phase == model.PhaseQ {
			startedQ = true
		}
	}
}

func TestRunStopsOnSinkError(t *testing.T) {
	sim := newTestContext(t, 6, 2, []innovatorSpec{{1, 2, 2}}, nil)
	boom := errors.New("disk full")
	_, err := Run(context.Background(), NewClosed(sim), SinkFunc(func([]model.Record) error { return boom }))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped sink error, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	sim := newTestContext(t, 6, 2, []innovatorSpec{{1, 2, 2}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, NewClosed(sim), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	sim := newTestContext(t, 4, 1, nil, nil)
	if _, err := New(model.Strategy(99), sim); !errors.Is(err, model.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestNewSimulationContextChecksIDs(t *testing.T) {
	sim := newTestContext(t, 4, 1, []innovatorSpec{{1, 1, 1}}, nil)
	bad := []*agent.Innovator{agent.NewInnovator(sim.World, 3, 1, 1, 1)}
	if _, err := NewSimulationContext(sim.World, bad, nil, 0); err == nil {
		t.Fatalf("expected id mismatch error")
	}
}
