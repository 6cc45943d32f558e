package cmd

import (
	"github.com/spf13/cobra"

	"starload/internal/pipeline"
	"starload/internal/queries"
	"starload/internal/ui"
	"starload/internal/warehouse"
)

// tableOrder is the order row counts are shown in
var tableOrder = []string{
	queries.StagingEvents,
	queries.StagingSongs,
	queries.Songplays,
	queries.Users,
	queries.Songs,
	queries.Artists,
	queries.Time,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Count rows and run the data-quality checks on a loaded warehouse",
	Long: `Count the rows of every table and run the data-quality checks: no NULL
keys, no duplicate dimension keys and every songplay resolving to its
dimensions. Exits non-zero when any check finds violations.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dialect, err := queries.DialectFor(cfg.Warehouse.Dialect)
		if err != nil {
			return err
		}

		svc, err := connect(cmd, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		counts, err := svc.CountRows(cmd.Context(), tableOrder)
		if err != nil {
			return err
		}
		console.Section("Row counts")
		ui.RenderCounts(console.Out(), counts, tableOrder)

		return runChecks(cmd, svc, dialect)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// runChecks runs the quality checks and prints their outcome
func runChecks(cmd *cobra.Command, svc *warehouse.Service, dialect queries.Dialect) error {
	report, err := pipeline.RunChecks(cmd.Context(), svc, dialect, logger)
	if err != nil {
		return err
	}
	console.Section("Data-quality checks")
	ui.RenderChecks(console.Out(), report)
	return report.Err()
}
