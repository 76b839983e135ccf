package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"nkinnov/internal/model"
	"nkinnov/internal/storage"
	nkapi "nkinnov/pkg/nkinnov"
)

const (
	defaultReportsDir = "reports"
	defaultExportsDir = "exports"
)

type globalFlags struct {
	logLevel   string
	storeKind  string
	dbPath     string
	reportsDir string
	exportsDir string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "nkinnovctl",
		Short: "Simulate innovation strategies on NK fitness landscapes",
		Long: `nkinnovctl runs innovator and provider agents over NK landscapes under the
CLOSED, LICENSING, OUTSOURCING, ALLIANCE_MAX and ALLIANCE_MIN strategies and
writes one tab-separated log line per agent per round.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors:      true,
		SilenceUsage:       true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&g.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&g.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&g.dbPath, "db-path", "nkinnov.db", "sqlite database path")
	flags.StringVar(&g.reportsDir, "reports-dir", defaultReportsDir, "directory for experiment reports and the run index")
	flags.StringVar(&g.exportsDir, "exports-dir", defaultExportsDir, "directory for exported reports")

	root.AddCommand(
		newRunCommand(g),
		newValidateCommand(g),
		newRunsCommand(g),
		newExportCommand(g),
		newRecordsCommand(g),
		newFitnessCommand(g),
	)
	return root
}

func (g *globalFlags) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func (g *globalFlags) client(cmd *cobra.Command, outputDir string) (*nkapi.Client, error) {
	logger, err := g.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return nkapi.New(nkapi.Options{
		StoreKind:  g.storeKind,
		DBPath:     g.dbPath,
		OutputDir:  outputDir,
		ReportsDir: g.reportsDir,
		ExportsDir: g.exportsDir,
		Logger:     logger,
	})
}

func printerFor(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func newRunCommand(g *globalFlags) *cobra.Command {
	var (
		outputDir    string
		workers      int
		experimentID string
		storeRecords bool
		metricsFile  string
	)
	cmd := &cobra.Command{
		Use:   "run <case-file>",
		Short: "Run every case, run and strategy of a case file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client(cmd, outputDir)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			p := printerFor(cmd)
			p.step("running %s", args[0])
			summary, err := client.Run(cmd.Context(), nkapi.RunRequest{
				CaseFile:     args[0],
				Workers:      workers,
				ExperimentID: experimentID,
				StoreRecords: storeRecords,
				MetricsFile:  metricsFile,
			})
			if err != nil {
				return err
			}

			p.success("experiment %s finished in %s", summary.ExperimentID, summary.Duration.Round(time.Millisecond))
			p.info("cases=%d runs=%d rounds=%s records=%s best_mean_score=%.6f",
				summary.Cases, summary.Runs,
				humanize.Comma(int64(summary.Rounds)), humanize.Comma(int64(summary.Records)),
				summary.BestScore)
			p.info("logs=%s", summary.LogDir)
			p.info("artifacts=%s", summary.ArtifactsDir)
			for _, a := range summary.Aggregates {
				p.info("case=%d strategy=%-12s runs=%d mean=%.6f sd=%.6f best=%.6f rounds=%.1f",
					a.Case, a.Strategy, a.Runs, a.MeanScore, a.StdDevScore, a.BestScore, a.MeanRounds)
			}
			if metricsFile != "" {
				p.info("metrics=%s", metricsFile)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "out", "output", "directory receiving the log files")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent (case, run) pairs; 0 uses every CPU")
	cmd.Flags().StringVar(&experimentID, "experiment-id", "", "experiment id; generated when empty")
	cmd.Flags().BoolVar(&storeRecords, "store-records", false, "also append every log record to the store")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file when done")
	return cmd
}

func newValidateCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <case-file>",
		Short: "Check a case file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			items, err := client.Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p := printerFor(cmd)
			for _, c := range items {
				p.info("case=%d n=%d k=%d runs=%d innovators=%d providers=%d strategies=%s source=%s",
					c.Index, c.N, c.K, c.Runs, c.Innovators, c.Providers, joinStrategies(c.Strategies), c.Source)
			}
			p.success("%s is valid (%d cases)", args[0], len(items))
			return nil
		},
	}
}

func newRunsCommand(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded experiments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			items, err := client.Runs(cmd.Context(), nkapi.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			p := printerFor(cmd)
			if len(items) == 0 {
				p.warning("no experiments recorded in %s", g.reportsDir)
				return nil
			}
			for _, item := range items {
				p.info("%s\t%s\tcases=%d runs=%d records=%s workers=%d best=%.6f duration=%s\t%s",
					item.ExperimentID, relativeTime(item.CreatedAtUTC),
					item.Cases, item.Runs, humanize.Comma(int64(item.Records)), item.Workers,
					item.BestScore, item.Duration, item.CaseFile)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum experiments to list")
	return cmd
}

func newExportCommand(g *globalFlags) *cobra.Command {
	var (
		experimentID string
		latest       bool
		outDir       string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy an experiment's reports to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			exported, err := client.Export(cmd.Context(), nkapi.ExportRequest{
				ExperimentID: experimentID,
				Latest:       latest,
				OutDir:       outDir,
			})
			if err != nil {
				return err
			}
			printerFor(cmd).success("exported %s to %s", exported.ExperimentID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&experimentID, "experiment", "", "experiment id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the newest experiment")
	cmd.Flags().StringVar(&outDir, "out", "", "destination directory; defaults to --exports-dir")
	return cmd
}

func newRecordsCommand(g *globalFlags) *cobra.Command {
	req := nkapi.RecordsRequest{}
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Query log records kept in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			records, err := client.Records(cmd.Context(), req)
			if err != nil {
				return err
			}
			p := printerFor(cmd)
			if len(records) == 0 {
				p.warning("no records matched")
				return nil
			}
			for _, r := range records {
				p.info("%s", r)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ExperimentID, "experiment", "", "experiment id")
	f.IntVar(&req.Case, "case", -1, "case index; -1 matches any")
	f.StringVar(&req.Stream, "stream", "", "log file name, e.g. o_n10k2_x5_closed.txt")
	f.IntVar(&req.Run, "run", -1, "run index; -1 matches any")
	f.StringVar(&req.Role, "role", "", "innovator|provider")
	f.IntVar(&req.AgentID, "agent", -1, "agent id; -1 matches any")
	f.IntVar(&req.Limit, "limit", 100, "maximum records; 0 lists all")
	return cmd
}

func newFitnessCommand(g *globalFlags) *cobra.Command {
	req := nkapi.FitnessRequest{}
	cmd := &cobra.Command{
		Use:   "fitness <case-file>",
		Short: "Evaluate a location on the landscape a run would draw",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client(cmd, "")
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			req.CaseFile = args[0]
			res, err := client.Fitness(cmd.Context(), req)
			if err != nil {
				return err
			}
			p := printerFor(cmd)
			p.info("n=%d k=%d run=%d seed=%d", res.N, res.K, req.Run, res.Seed)
			p.info("%s\t%v", res.Location, res.Fitness)
			for _, n := range res.Neighbors {
				p.info("  %s\t%v", n.Location, n.Fitness)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.Case, "case", 0, "case index")
	f.IntVar(&req.Run, "run", 0, "run index selecting the landscape seed")
	f.StringVar(&req.Location, "location", "", "bit string, locus 0 first")
	f.IntSliceVar(&req.Loci, "loci", nil, "loci to enumerate neighbours over")
	f.IntVar(&req.Budget, "budget", 0, "maximum bit flips per neighbour; 0 skips the neighbourhood")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func joinStrategies(strategies []model.Strategy) string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}

func relativeTime(stamp string) string {
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return stamp
	}
	return humanize.Time(t)
}
