// Package simulation runs every case of an experiment: each (case, run) pair
// gets its own landscape, population and random stream, and every strategy
// of the case is played on it in declared order.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nkinnov/internal/agent"
	"nkinnov/internal/config"
	"nkinnov/internal/landscape"
	"nkinnov/internal/metrics"
	"nkinnov/internal/model"
	"nkinnov/internal/protocol"
	"nkinnov/internal/rng"
	"nkinnov/internal/simlog"
	"nkinnov/internal/storage"
)

type Options struct {
	Logger *slog.Logger
	// Sink receives every (run, strategy) log in (case, run, strategy)
	// order. Nil discards records.
	Sink simlog.Sink
	// Store, when set, receives one summary per (case, run).
	Store   storage.Store
	Metrics *metrics.Metrics
	// Workers bounds how many (case, run) pairs execute at once. Zero or
	// less means GOMAXPROCS.
	Workers      int
	ExperimentID string
}

type Runner struct {
	logger  *slog.Logger
	sink    simlog.Sink
	store   storage.Store
	metrics *metrics.Metrics
	workers int
	id      string
}

// Report describes a finished experiment.
type Report struct {
	ExperimentID string
	Summaries    []model.RunSummary
	Records      int
	Rounds       int
	Duration     time.Duration
}

// BestScore is the highest mean innovator score over every strategy run.
func (r Report) BestScore() float64 {
	best := 0.0
	for _, s := range r.Summaries {
		for _, res := range s.Results {
			best = max(best, res.MeanScore)
		}
	}
	return best
}

func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = simlog.Discard
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	id := opts.ExperimentID
	if id == "" {
		id = uuid.NewString()
	}
	return &Runner{
		logger:  logger,
		sink:    sink,
		store:   opts.Store,
		metrics: opts.Metrics,
		workers: workers,
		id:      id,
	}
}

func (r *Runner) ExperimentID() string { return r.id }

func (r *Runner) Workers() int { return r.workers }

type batch struct {
	stream  model.Stream
	records []model.Record
}

type job struct {
	c   *config.Case
	run int

	done    chan struct{}
	err     error
	batches []batch
	summary model.RunSummary
}

// Run executes every case of exp. Pairs run concurrently, but their output
// reaches the sink and the store in (case, run, strategy) order, so the
// bytes written do not depend on the worker count.
func (r *Runner) Run(ctx context.Context, exp *config.Experiment) (Report, error) {
	start := time.Now()
	report := Report{ExperimentID: r.id}

	var jobs []*job
	for i := range exp.Cases {
		c := &exp.Cases[i]
		r.logger.Info("case started",
			"experiment", r.id,
			"case", c.Index,
			"runs", c.Runs,
			"n", c.Structure.N(),
			"k", c.Structure.K(),
			"strategies", fmt.Sprint(c.Strategies),
		)
		for run := 0; run < c.Runs; run++ {
			jobs = append(jobs, &job{c: c, run: run, done: make(chan struct{})})
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(r.workers)

	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for _, j := range jobs {
			g.Go(func() error {
				defer close(j.done)
				if j.err = gctx.Err(); j.err != nil {
					return j.err
				}
				j.err = r.simulate(gctx, j)
				return j.err
			})
		}
	}()

	fail := func(err error) (Report, error) {
		cancel()
		<-launched
		if werr := g.Wait(); werr != nil && err == nil {
			err = werr
		}
		if err == nil {
			err = ctx.Err()
		}
		return report, err
	}

	for _, j := range jobs {
		select {
		case <-j.done:
		case <-gctx.Done():
			return fail(nil)
		}
		if j.err != nil {
			return fail(j.err)
		}
		if err := r.flush(runCtx, j, &report); err != nil {
			return fail(err)
		}
	}
	<-launched
	if err := g.Wait(); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	r.logger.Info("experiment finished",
		"experiment", r.id,
		"cases", len(exp.Cases),
		"runs", len(jobs),
		"records", report.Records,
		"duration", report.Duration,
	)
	return report, nil
}

// flush writes one finished job.
func (r *Runner) flush(ctx context.Context, j *job, report *Report) error {
	for _, b := range j.batches {
		if err := r.sink.AppendRecords(ctx, b.stream, b.records); err != nil {
			return fmt.Errorf("write %s run %d: %w", b.stream, j.run, err)
		}
	}
	if r.store != nil {
		if err := r.store.SaveRunSummary(ctx, j.summary); err != nil {
			return fmt.Errorf("save summary of case %d run %d: %w", j.c.Index, j.run, err)
		}
	}
	for _, res := range j.summary.Results {
		report.Records += res.Records
		report.Rounds += res.Rounds
	}
	report.Summaries = append(report.Summaries, j.summary)
	j.batches = nil
	return nil
}

func (r *Runner) simulate(ctx context.Context, j *job) error {
	started := time.Now()
	c := j.c
	stream := rng.ForRun(j.run)
	sim, err := buildContext(c, j.run, stream)
	if err != nil {
		return fmt.Errorf("case %d run %d: %w", c.Index, j.run, err)
	}

	summary := model.RunSummary{
		ExperimentID: r.id,
		Case:         c.Index,
		Run:          j.run,
		Seed:         stream.Seed(),
		N:            c.Structure.N(),
		K:            c.Structure.K(),
		Innovators:   len(sim.Innovators),
		Providers:    len(sim.Providers),
	}
	storage.Stamp(&summary)

	for _, strategy := range c.Strategies {
		coord, err := protocol.New(strategy, sim)
		if err != nil {
			return err
		}
		var records []model.Record
		result, err := protocol.Run(ctx, coord, protocol.SinkFunc(func(round []model.Record) error {
			records = append(records, round...)
			return nil
		}))
		if err != nil {
			return fmt.Errorf("case %d run %d: %w", c.Index, j.run, err)
		}
		r.metrics.ObserveResult(result)
		r.logger.Debug("strategy finished",
			"case", c.Index,
			"run", j.run,
			"strategy", strategy.String(),
			"rounds", result.Rounds,
			"mean_score", result.MeanScore,
		)
		j.batches = append(j.batches, batch{
			stream:  model.Stream{ExperimentID: r.id, Case: c.Index, Name: coord.OutputFileName()},
			records: records,
		})
		summary.Results = append(summary.Results, result)
	}
	j.summary = summary

	elapsed := time.Since(started)
	r.metrics.ObserveRun(elapsed)
	r.logger.Debug("run finished", "case", c.Index, "run", j.run, "seed", summary.Seed, "elapsed", elapsed)
	return nil
}

// buildContext draws the landscape, then creates the agents of every group
// with ids assigned in declaration order.
func buildContext(c *config.Case, run int, stream *rng.Stream) (*protocol.SimulationContext, error) {
	land, err := landscape.New(c.Structure, stream)
	if err != nil {
		return nil, err
	}
	world := &agent.World{Landscape: land, Rand: stream}

	innovators := make([]*agent.Innovator, 0, c.InnovatorCount())
	for _, g := range c.Innovators {
		for i := 0; i < g.Count; i++ {
			innovators = append(innovators, agent.NewInnovator(world, len(innovators), g.Power, g.M, g.P))
		}
	}
	providers := make([]*agent.Provider, 0, c.ProviderCount())
	for _, g := range c.Providers {
		for i := 0; i < g.Count; i++ {
			providers = append(providers, agent.NewProvider(world, len(providers), g.Power, g.Q))
		}
	}
	return protocol.NewSimulationContext(world, innovators, providers, run)
}

// BuildLandscape returns the landscape run would see for case c.
func BuildLandscape(c config.Case, run int) (*landscape.Landscape, error) {
	if run < 0 {
		return nil, fmt.Errorf("run index must be non-negative, got %d", run)
	}
	return landscape.New(c.Structure, rng.ForRun(run))
}
