package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"starload/internal/config"
	"starload/internal/observability"
	"starload/internal/ui"
	"starload/pkg/errors"
	"starload/pkg/models"
)

var (
	rootFlags struct {
		configFile string
		verbose    bool
		quiet      bool
		noColor    bool
		logLevel   string
		logFormat  string
	}

	logger  = observability.NewNopLogger()
	console = ui.NewUI(false, false)

	rootCmd = &cobra.Command{
		Use:   "starload",
		Short: "Load song-play event logs into a star-schema warehouse",
		Long: `starload stages raw JSON song metadata and listening events from S3 and
transforms them into a star schema: the songplays fact table plus the users,
songs, artists and time dimensions.

Redshift and Snowflake load with server-side COPY. SQLite loads client-side
and is meant for local development against a copy of the data.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}
)

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		ui.ShowError(err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configFile, "config", "c", "", "Config file (default: $STARLOAD_CONFIG, ./starload.yaml, ./dwh.cfg, ~/.starload/config.yaml)")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Verbose output and debug logging")
	pf.BoolVarP(&rootFlags.quiet, "quiet", "q", false, "Only print errors")
	pf.BoolVar(&rootFlags.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: console or json (default from config)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if rootFlags.noColor {
		ui.SetColor(false)
	}
	console = ui.NewUI(rootFlags.verbose, rootFlags.quiet)
	console.SetOutput(cmd.OutOrStdout())
	return configureLogger(cmd, models.Logging{})
}

// configureLogger builds the process logger. Flags win over the config file.
func configureLogger(cmd *cobra.Command, fromConfig models.Logging) error {
	level := fromConfig.Level
	if level == "" {
		level = "warn"
	}
	if rootFlags.logLevel != "" {
		level = rootFlags.logLevel
	}
	if rootFlags.verbose {
		level = "debug"
	}

	format := fromConfig.Format
	if rootFlags.logFormat != "" {
		format = rootFlags.logFormat
	}

	l, err := observability.NewLogger(observability.LoggerConfig{
		Level:   level,
		Format:  format,
		Output:  cmd.ErrOrStderr(),
		Service: "starload",
		Version: Version,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid logging flags")
	}
	logger = l
	logger.ReplaceGlobals()
	observability.SetDefaultLogger(logger)
	return nil
}

// loadConfig reads, completes and validates the configuration
func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	cfg, err := config.Load(rootFlags.configFile)
	if err != nil {
		return nil, err
	}
	if err := configureLogger(cmd, cfg.Logging); err != nil {
		return nil, err
	}
	if err := config.ResolvePassword(cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logger.DebugWithFields("configuration loaded", map[string]interface{}{
		"file":    config.ResolveConfigFile(rootFlags.configFile),
		"dialect": cfg.Warehouse.Dialect,
	})
	return cfg, nil
}
