package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"starload/internal/observability"
	"starload/internal/pipeline"
	"starload/internal/queries"
	"starload/internal/ui"
	"starload/internal/warehouse"
	"starload/pkg/errors"
)

type runFlags struct {
	txMode      txModeValue
	dryRun      bool
	check       bool
	metricsFile string
	batchSize   int
}

var (
	fullRunFlags runFlags
	createFlags  runFlags
	etlFlags     runFlags
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drop, create and load every table",
	Long: `Run the full rebuild: drop all seven tables, create them again, stage the
song and event data, insert the songplays fact table and finally the
dimensions. Each stage runs only after the previous one succeeded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, pipeline.FullRebuild, &fullRunFlags)
	},
}

var createTablesCmd = &cobra.Command{
	Use:   "create-tables",
	Short: "Drop and recreate the staging, fact and dimension tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, pipeline.CreateTables, &createFlags)
	},
}

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Stage the raw data and load the star schema into existing tables",
	Long: `Stage the raw data and load the star schema. The tables must exist and be
empty; run 'starload create-tables' first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, pipeline.ETL, &etlFlags)
	},
}

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *runFlags
		loads bool
	}{
		{runCmd, &fullRunFlags, true},
		{createTablesCmd, &createFlags, false},
		{etlCmd, &etlFlags, true},
	} {
		f := c.cmd.Flags()
		f.Var(&c.flags.txMode, "tx", "Transaction boundary: none, stage or batch (default from config)")
		f.BoolVar(&c.flags.dryRun, "dry-run", false, "Print the statements instead of running them")
		f.StringVar(&c.flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
		if c.loads {
			f.BoolVar(&c.flags.check, "check", false, "Run the data-quality checks after loading")
			f.IntVar(&c.flags.batchSize, "batch-size", 0, "Rows per INSERT for client-side staging (default from config)")
		}
		rootCmd.AddCommand(c.cmd)
	}
}

func runPlan(cmd *cobra.Command, plan pipeline.Plan, flags *runFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	mode, err := pipeline.ParseTxMode(cfg.Load.TxMode)
	if err != nil {
		return err
	}
	if flags.txMode.mode != "" {
		mode = flags.txMode.mode
	}
	if flags.batchSize > 0 {
		cfg.Load.BatchSize = flags.batchSize
	}
	dryRun := flags.dryRun || cfg.Load.DryRun

	dialect, err := queries.DialectFor(cfg.Warehouse.Dialect)
	if err != nil {
		return err
	}
	src := sourcesFrom(cfg)
	metrics := observability.NewMetrics()

	if console.Verbose {
		console.VerbosePrintf("Load settings\n")
		console.KeyValue("Dialect", dialect.Name())
		console.KeyValue("Transactions", string(mode))
		console.KeyValue("Stages", strings.Join(lo.Map(plan, func(s queries.Stage, _ int) string { return string(s) }), ", "))
		if !dialect.ServerCopy() {
			console.KeyValue("Batch size", strconv.Itoa(cfg.Load.BatchSize))
		}
	}

	opts := []pipeline.RunnerOption{
		pipeline.WithTxMode(mode),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	}

	var svc *warehouse.Service
	if dryRun {
		opts = append(opts, pipeline.WithDryRun(true, cmd.OutOrStdout()))
	} else {
		svc, err = connect(cmd, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if !dialect.ServerCopy() {
			stager, err := newStager(ctx, cfg, metrics)
			if err != nil {
				return err
			}
			opts = append(opts, pipeline.WithStager(stager))
		}

		if ui.IsTerminal() && !rootFlags.quiet && !rootFlags.verbose {
			bar := ui.NewProgressBar(cmd.OutOrStdout(), countStatements(dialect, plan, src))
			opts = append(opts, pipeline.WithObserver(bar.Observe))
			defer bar.Finish()
		}
	}

	var exec warehouse.Executor
	if svc != nil {
		exec = svc
	}
	report, runErr := pipeline.NewRunner(exec, dialect, src, opts...).Run(ctx, plan)
	if report != nil && !dryRun {
		ui.RenderReport(console.Out(), report)
	}

	if runErr == nil && flags.check && !dryRun {
		runErr = runChecks(cmd, svc, dialect)
	}

	if flags.metricsFile != "" {
		if err := metrics.WriteTextfile(flags.metricsFile); err != nil {
			logger.WarnWithFields("failed to write metrics", map[string]interface{}{
				"path":  flags.metricsFile,
				"error": err,
			})
		}
	}

	if runErr != nil && console.Verbose {
		for code, n := range errors.GetGlobalErrorHandler().GetErrorSummary() {
			console.KeyValue(string(code), fmt.Sprintf("%d recorded", n))
		}
	}

	if runErr == nil && !dryRun {
		console.Success(fmt.Sprintf("%d stages finished on %s", len(plan), dialect.Name()))
	}
	return runErr
}
