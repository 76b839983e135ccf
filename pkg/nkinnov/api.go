package nkinnov

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"nkinnov/internal/config"
	"nkinnov/internal/metrics"
	"nkinnov/internal/model"
	"nkinnov/internal/rng"
	"nkinnov/internal/simlog"
	"nkinnov/internal/simulation"
	"nkinnov/internal/stats"
	"nkinnov/internal/storage"
)

const (
	defaultOutputDir  = "output"
	defaultReportsDir = "reports"
	defaultExportsDir = "exports"
	defaultDBPath     = "nkinnov.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	OutputDir  string
	ReportsDir string
	ExportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store       storage.Store
	logger      *slog.Logger
	initialized bool

	outputDir  string
	reportsDir string
	exportsDir string
}

type RunRequest struct {
	CaseFile     string
	OutputDir    string
	Workers      int
	ExperimentID string
	// StoreRecords also appends every log record to the client's store.
	StoreRecords bool
	MetricsFile  string
}

type RunSummary struct {
	ExperimentID string
	LogDir       string
	ArtifactsDir string
	Cases        int
	Runs         int
	Records      int
	Rounds       int
	BestScore    float64
	Duration     time.Duration
	Aggregates   []stats.StrategyAggregate
}

type CaseItem struct {
	Index      int
	Source     string
	N          int
	K          int
	Runs       int
	Strategies []model.Strategy
	Innovators int
	Providers  int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	ExperimentID string
	CreatedAtUTC string
	CaseFile     string
	Cases        int
	Runs         int
	Records      int
	Workers      int
	BestScore    float64
	Duration     time.Duration
}

type ExportRequest struct {
	ExperimentID string
	Latest       bool
	OutDir       string
}

type ExportSummary struct {
	ExperimentID string
	Directory    string
}

type RecordsRequest struct {
	ExperimentID string
	Case         int
	Stream       string
	Run          int
	Role         string
	AgentID      int
	Limit        int
}

type FitnessRequest struct {
	CaseFile string
	Case     int
	Run      int
	// Location is a bit string with one character per locus, locus 0 first.
	Location string
	// Loci and Budget, when Budget > 0, also enumerate the neighbours of
	// Location over those loci, Location itself excluded.
	Loci   []int
	Budget int
}

type Neighbor struct {
	Location string
	Fitness  float64
}

type FitnessResult struct {
	N         int
	K         int
	Seed      int64
	Location  string
	Fitness   float64
	Neighbors []Neighbor
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	reportsDir := opts.ReportsDir
	if reportsDir == "" {
		reportsDir = defaultReportsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		outputDir:  outputDir,
		reportsDir: reportsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// Validate loads a case file and describes each case without running it.
func (c *Client) Validate(_ context.Context, path string) ([]CaseItem, error) {
	exp, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	out := make([]CaseItem, 0, len(exp.Cases))
	for _, cs := range exp.Cases {
		info := caseInfo(cs)
		out = append(out, CaseItem(info))
	}
	return out, nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.CaseFile == "" {
		return RunSummary{}, errors.New("run requires a case file")
	}
	if req.OutputDir == "" {
		req.OutputDir = c.outputDir
	}

	exp, err := config.Load(req.CaseFile)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	files, err := simlog.NewFileSink(req.OutputDir)
	if err != nil {
		return RunSummary{}, err
	}
	var sink simlog.Sink = files
	if req.StoreRecords {
		sink = simlog.MultiSink{files, c.store}
	}

	m := metrics.New()
	runner := simulation.New(simulation.Options{
		Logger:       c.logger,
		Sink:         sink,
		Store:        c.store,
		Metrics:      m,
		Workers:      req.Workers,
		ExperimentID: req.ExperimentID,
	})
	report, err := runner.Run(ctx, exp)
	if err != nil {
		return RunSummary{}, err
	}

	cfg := stats.ExperimentConfig{
		ExperimentID: report.ExperimentID,
		CaseFile:     exp.Path,
		OutputDir:    req.OutputDir,
		Workers:      runner.Workers(),
		Cases:        make([]stats.CaseInfo, 0, len(exp.Cases)),
	}
	if req.StoreRecords {
		cfg.Store = storeKindOf(c.store)
	}
	for _, cs := range exp.Cases {
		cfg.Cases = append(cfg.Cases, caseInfo(cs))
	}
	aggregates := stats.Aggregate(report.Summaries)
	artifactsDir, err := stats.WriteExperimentArtifacts(c.reportsDir, stats.ExperimentArtifacts{
		Config:     cfg,
		Summaries:  report.Summaries,
		Aggregates: aggregates,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("write experiment artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(c.reportsDir, stats.RunIndexEntry{
		ExperimentID: report.ExperimentID,
		CaseFile:     exp.Path,
		Cases:        len(exp.Cases),
		Runs:         len(report.Summaries),
		Records:      report.Records,
		Workers:      runner.Workers(),
		BestScore:    report.BestScore(),
		DurationMS:   report.Duration.Milliseconds(),
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, fmt.Errorf("append run index: %w", err)
	}
	if req.MetricsFile != "" {
		if err := m.WriteTextfile(req.MetricsFile); err != nil {
			return RunSummary{}, fmt.Errorf("write metrics: %w", err)
		}
	}

	return RunSummary{
		ExperimentID: report.ExperimentID,
		LogDir:       filepath.Clean(req.OutputDir),
		ArtifactsDir: artifactsDir,
		Cases:        len(exp.Cases),
		Runs:         len(report.Summaries),
		Records:      report.Records,
		Rounds:       report.Rounds,
		BestScore:    report.BestScore(),
		Duration:     report.Duration,
		Aggregates:   aggregates,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.reportsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			ExperimentID: e.ExperimentID,
			CreatedAtUTC: e.CreatedAtUTC,
			CaseFile:     e.CaseFile,
			Cases:        e.Cases,
			Runs:         e.Runs,
			Records:      e.Records,
			Workers:      e.Workers,
			BestScore:    e.BestScore,
			Duration:     time.Duration(e.DurationMS) * time.Millisecond,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.ExperimentID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either experiment id or latest")
	}
	if req.ExperimentID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires experiment id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	id := req.ExperimentID
	if req.Latest {
		latest, err := c.latestExperiment()
		if err != nil {
			return ExportSummary{}, err
		}
		id = latest
	}

	exportedDir, err := stats.ExportExperimentArtifacts(c.reportsDir, id, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{ExperimentID: id, Directory: filepath.Clean(exportedDir)}, nil
}

// Aggregates reads back the per-strategy aggregates of one experiment.
func (c *Client) Aggregates(_ context.Context, experimentID string) ([]stats.StrategyAggregate, error) {
	artifacts, ok, err := stats.ReadExperimentArtifacts(c.reportsDir, experimentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("experiment not found: %s", experimentID)
	}
	return artifacts.Aggregates, nil
}

// Records queries the client's store. Negative Case, Run and AgentID match
// any value.
func (c *Client) Records(ctx context.Context, req RecordsRequest) ([]model.Record, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	query := storage.RecordQuery{
		ExperimentID: req.ExperimentID,
		Case:         req.Case,
		Stream:       req.Stream,
		Run:          req.Run,
		AgentID:      req.AgentID,
		Limit:        req.Limit,
	}
	if req.Role != "" {
		role, err := model.ParseRole(strings.ToUpper(req.Role))
		if err != nil {
			return nil, err
		}
		query.Role = &role
	}
	return c.store.ListRecords(ctx, query)
}

// Summaries returns the stored per-run summaries of one experiment.
func (c *Client) Summaries(ctx context.Context, experimentID string) ([]model.RunSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRunSummaries(ctx, experimentID)
}

// Fitness evaluates one location on the landscape a given run of a case
// would draw.
func (c *Client) Fitness(_ context.Context, req FitnessRequest) (FitnessResult, error) {
	exp, err := config.Load(req.CaseFile)
	if err != nil {
		return FitnessResult{}, err
	}
	if req.Case < 0 || req.Case >= len(exp.Cases) {
		return FitnessResult{}, fmt.Errorf("case %d out of range [0, %d)", req.Case, len(exp.Cases))
	}
	cs := exp.Cases[req.Case]
	land, err := simulation.BuildLandscape(cs, req.Run)
	if err != nil {
		return FitnessResult{}, err
	}
	loc, err := parseLocation(req.Location, land.N())
	if err != nil {
		return FitnessResult{}, err
	}
	for _, locus := range req.Loci {
		if locus < 0 || locus >= land.N() {
			return FitnessResult{}, fmt.Errorf("locus %d out of range [0, %d)", locus, land.N())
		}
	}

	result := FitnessResult{
		N:        land.N(),
		K:        land.K(),
		Seed:     rng.SeedForRun(req.Run),
		Location: formatLocation(land.Decode(loc)),
		Fitness:  land.FitnessOf(loc),
	}
	if req.Budget > 0 {
		for _, n := range land.NeighborhoodInclusive(loc, req.Loci, req.Budget) {
			if n == loc {
				continue
			}
			result.Neighbors = append(result.Neighbors, Neighbor{
				Location: formatLocation(land.Decode(n)),
				Fitness:  land.FitnessOf(n),
			})
		}
	}
	return result, nil
}

func (c *Client) latestExperiment() (string, error) {
	entries, err := stats.ListRunIndex(c.reportsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no experiments available")
	}
	return entries[0].ExperimentID, nil
}

func caseInfo(cs config.Case) stats.CaseInfo {
	return stats.CaseInfo{
		Index:      cs.Index,
		Source:     cs.Source,
		N:          cs.Structure.N(),
		K:          cs.Structure.K(),
		Runs:       cs.Runs,
		Strategies: cs.Strategies,
		Innovators: cs.InnovatorCount(),
		Providers:  cs.ProviderCount(),
	}
}

func storeKindOf(store storage.Store) string {
	if _, ok := store.(*storage.MemoryStore); ok {
		return "memory"
	}
	return "sqlite"
}

func parseLocation(bits string, n int) (uint64, error) {
	if len(bits) != n {
		return 0, fmt.Errorf("location %q must have %d bits", bits, n)
	}
	var loc uint64
	for _, ch := range bits {
		loc <<= 1
		switch ch {
		case '0':
		case '1':
			loc |= 1
		default:
			return 0, fmt.Errorf("location %q may only contain 0 and 1", bits)
		}
	}
	return loc, nil
}

func formatLocation(bits []int) string {
	var b strings.Builder
	for _, v := range bits {
		b.WriteByte(byte('0' + v))
	}
	return b.String()
}
