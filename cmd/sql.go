package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"starload/internal/config"
	"starload/internal/queries"
	"starload/pkg/errors"
)

var sqlFlags struct {
	dialect string
	checks  bool
}

var sqlCmd = &cobra.Command{
	Use:   "sql [stage...]",
	Short: "Print the SQL each stage runs",
	Long: `Print the statements of the given stages, in execution order, without
connecting anywhere. With no stage every stage is printed.

Stages: drop, create, copy, insert-fact, insert-dimensions.

Sources and the IAM role come from the configuration when one is found;
otherwise placeholders are printed.`,
	Example: `  starload sql --dialect redshift copy
  starload sql insert-fact insert-dimensions
  starload sql --checks`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := parseStages(args)
		if err != nil {
			return err
		}

		src := queries.Sources{
			LogData:     "s3://<bucket>/log_data",
			SongData:    "s3://<bucket>/song_data",
			LogJSONPath: "s3://<bucket>/log_json_path.json",
			Region:      queries.DefaultRegion,
			IAMRole:     "arn:aws:iam::<account>:role/<role>",
		}
		dialectName := sqlFlags.dialect

		if cfg, err := config.Load(rootFlags.configFile); err == nil {
			loaded := sourcesFrom(cfg)
			if loaded.LogData != "" {
				src.LogData = loaded.LogData
			}
			if loaded.SongData != "" {
				src.SongData = loaded.SongData
			}
			if loaded.LogJSONPath != "" || cfg.S3.LogData != "" {
				src.LogJSONPath = loaded.LogJSONPath
			}
			if loaded.Region != "" {
				src.Region = loaded.Region
			}
			if loaded.IAMRole != "" {
				src.IAMRole = loaded.IAMRole
			}
			src.StorageIntegration = loaded.StorageIntegration
			if dialectName == "" {
				dialectName = cfg.Warehouse.Dialect
			}
		} else if errors.HasCode(err, errors.ErrCodeConfigNotFound) {
			logger.Debug("no configuration found, printing placeholders")
		} else {
			logger.WarnWithFields("configuration unreadable, printing placeholders", map[string]interface{}{
				"error": err,
			})
		}
		if dialectName == "" {
			dialectName = "redshift"
		}

		dialect, err := queries.DialectFor(dialectName)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if sqlFlags.checks {
			printChecks(out, dialect)
			return nil
		}
		for _, stage := range plan {
			stmts, err := queries.StageStatements(dialect, stage, src)
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				printStatement(out, stmt)
			}
		}
		return nil
	},
}

func init() {
	sqlCmd.Flags().StringVar(&sqlFlags.dialect, "dialect", "", "SQL dialect: redshift, snowflake or sqlite (default from config)")
	sqlCmd.Flags().BoolVar(&sqlFlags.checks, "checks", false, "Print the data-quality checks instead of the load")
	rootCmd.AddCommand(sqlCmd)
}

func printStatement(w io.Writer, stmt queries.Statement) {
	fmt.Fprintf(w, "-- %s (%s)\n", stmt.Name, stmt.Stage)
	if stmt.SQL == "" && stmt.Source != nil {
		fmt.Fprintf(w, "-- client-side load of %s from %s\n\n", stmt.Source.Table, stmt.Source.Path)
		return
	}
	fmt.Fprintf(w, "%s\n\n", stmt.SQL)
}

func printChecks(w io.Writer, dialect queries.Dialect) {
	for _, check := range queries.QualityChecks(dialect) {
		fmt.Fprintf(w, "-- %s: %s\n%s\n\n", check.Name, check.Description, check.SQL)
	}
	fmt.Fprintf(w, "-- join_misses: NextSong events without a matching song\n%s\n\n", queries.JoinMissQuery(dialect))
}
