package simulation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nkinnov/internal/config"
	"nkinnov/internal/landscape"
	"nkinnov/internal/metrics"
	"nkinnov/internal/model"
	"nkinnov/internal/rng"
	"nkinnov/internal/simlog"
	"nkinnov/internal/storage"
)

const twoCases = `cases:
  - runs: 3
    dependencies:
      - [1, 1, 0, 0, 0, 0]
      - [0, 1, 1, 0, 0, 0]
      - [0, 0, 1, 1, 0, 0]
      - [0, 0, 0, 1, 1, 0]
      - [0, 0, 0, 0, 1, 1]
      - [1, 0, 0, 0, 0, 1]
    strategies: [closed, licensing, outsourcing, alliance_max, alliance_min]
    innovators:
      - {count: 3, power: 1, m: 2, p: 2}
      - {count: 1, power: 2, m: 1, p: 2}
    providers:
      - {count: 2, power: 1, q: 3}
  - runs: 2
    dependencies:
      - [1, 0, 1, 0, 0]
      - [0, 1, 0, 1, 0]
      - [0, 0, 1, 0, 1]
      - [1, 0, 0, 1, 0]
      - [0, 1, 0, 0, 1]
    strategies: [alliance_min, closed]
    innovators:
      - {count: 4, power: 1, m: 1, p: 1}
`

func loadExperiment(t *testing.T) *config.Experiment {
	t.Helper()
	exp, err := config.Parse([]byte(twoCases), config.FormatYAML, t.TempDir())
	require.NoError(t, err)
	return exp
}

func readDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(data)
	}
	return out
}

func runInto(t *testing.T, dir string, workers int) Report {
	t.Helper()
	sink, err := simlog.NewFileSink(dir)
	require.NoError(t, err)
	report, err := New(Options{Sink: sink, Workers: workers, ExperimentID: "exp"}).Run(context.Background(), loadExperiment(t))
	require.NoError(t, err)
	return report
}

func TestRunOutputDoesNotDependOnWorkers(t *testing.T) {
	serialDir, parallelDir := t.TempDir(), t.TempDir()
	serial := runInto(t, serialDir, 1)
	parallel := runInto(t, parallelDir, 4)

	serialFiles := readDir(t, serialDir)
	require.NotEmpty(t, serialFiles)
	assert.Equal(t, serialFiles, readDir(t, parallelDir))
	assert.Equal(t, serial.Records, parallel.Records)
	assert.Equal(t, serial.Summaries, parallel.Summaries)
}

func TestRunWritesFilesPerStrategy(t *testing.T) {
	dir := t.TempDir()
	report := runInto(t, dir, 2)

	files := readDir(t, dir)
	for _, name := range []string{
		"o_n6k1_x4_closed.txt",
		"o_n6k1_x4y2_licensing.txt",
		"o_n6k1_x4y2_outsourcing.txt",
		"o_n6k1_x4_alliance_max.txt",
		"o_n6k1_x4_alliance_min.txt",
		"o_n5k1_x4_alliance_min.txt",
		"o_n5k1_x4_closed.txt",
	} {
		assert.Contains(t, files, name)
	}

	total := 0
	for name := range files {
		records, err := simlog.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		total += len(records)
		for i := 1; i < len(records); i++ {
			assert.LessOrEqual(t, records[i-1].Run, records[i].Run, "%s line %d", name, i+1)
		}
	}
	assert.Equal(t, report.Records, total)
}

func TestRunSummaries(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	m := metrics.New()

	report, err := New(Options{Store: store, Metrics: m, Workers: 3, ExperimentID: "exp"}).Run(context.Background(), loadExperiment(t))
	require.NoError(t, err)
	require.Len(t, report.Summaries, 5)

	wantOrder := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}}
	for i, s := range report.Summaries {
		assert.Equal(t, wantOrder[i], [2]int{s.Case, s.Run})
		assert.Equal(t, rng.SeedForRun(s.Run), s.Seed)
		assert.Equal(t, storage.CurrentSchemaVersion, s.SchemaVersion)
	}
	assert.Len(t, report.Summaries[0].Results, 5)
	assert.Equal(t, 6, report.Summaries[0].N)
	assert.Equal(t, 2, report.Summaries[0].Providers)
	assert.Equal(t, []model.Strategy{model.StrategyAllianceMin, model.StrategyClosed},
		[]model.Strategy{report.Summaries[3].Results[0].Strategy, report.Summaries[3].Results[1].Strategy})
	assert.Greater(t, report.BestScore(), 0.0)

	stored, err := store.ListRunSummaries(context.Background(), "exp")
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.RunsCompleted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StrategyRuns.WithLabelValues("LICENSING")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.StrategyRuns.WithLabelValues("CLOSED")))
}

type failingSink struct {
	calls int
}

func (s *failingSink) AppendRecords(context.Context, model.Stream, []model.Record) error {
	s.calls++
	if s.calls == 2 {
		return errors.New("disk full")
	}
	return nil
}

func TestRunStopsOnSinkError(t *testing.T) {
	sink := &failingSink{}
	_, err := New(Options{Sink: sink, Workers: 2}).Run(context.Background(), loadExperiment(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 2, sink.calls)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{Workers: 2}).Run(ctx, loadExperiment(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDefaults(t *testing.T) {
	r := New(Options{})
	assert.NotEmpty(t, r.ExperimentID())
	assert.Positive(t, r.Workers())
	assert.NotEqual(t, r.ExperimentID(), New(Options{}).ExperimentID())
}

func TestBuildLandscapeMatchesRunStream(t *testing.T) {
	c := loadExperiment(t).Cases[0]
	got, err := BuildLandscape(c, 2)
	require.NoError(t, err)
	want, err := landscape.New(c.Structure, rng.ForRun(2))
	require.NoError(t, err)
	for loc := uint64(0); loc < got.Size(); loc++ {
		require.Equal(t, want.FitnessOf(loc), got.FitnessOf(loc))
	}

	_, err = BuildLandscape(c, -1)
	assert.Error(t, err)
}
