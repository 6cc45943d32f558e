package cmd

import (
	stderrors "errors"

	"github.com/spf13/cobra"

	"starload/internal/common"
	"starload/internal/config"
	"starload/internal/ui"
	"starload/pkg/errors"
	"starload/pkg/models"
)

var (
	initFlags struct {
		output  string
		force   bool
		keyring bool
	}

	// wizardOptions are passed to every wizard the init command starts
	wizardOptions []ui.WizardOption

	// confirmOverwrite asks before an existing file is replaced without --force
	confirmOverwrite = func(path string) (bool, error) {
		if !ui.IsTerminal() {
			return false, nil
		}
		return ui.Confirm("Overwrite "+path+"?", false)
	}
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	Long: `Walk through the warehouse connection, the S3 sources, the IAM role and
the load settings, then write them to a configuration file.

The password is encrypted before it is written. With --keyring it is stored
in the OS keyring instead and left out of the file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initFlags.output, "output", "o", "", "Where to write the configuration (default: --config or ~/.starload/config.yaml)")
	initCmd.Flags().BoolVarP(&initFlags.force, "force", "f", false, "Overwrite an existing configuration file")
	initCmd.Flags().BoolVar(&initFlags.keyring, "keyring", false, "Store the password in the OS keyring instead of the file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := initFlags.output
	if path == "" {
		path = rootFlags.configFile
	}
	if path == "" {
		path = config.GetConfigFile()
	}
	path, err := common.CleanPath(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid output path")
	}

	var base *models.Config
	if common.FileExists(path) {
		overwrite := initFlags.force
		if !overwrite {
			if overwrite, err = confirmOverwrite(path); err != nil {
				return errors.Wrap(err, errors.ErrCodeInvalidInput, "Overwrite prompt failed")
			}
		}
		if !overwrite {
			return errors.New(errors.ErrCodeConfigInvalid, "Configuration file already exists").
				WithContext("path", path).
				WithSuggestions("Pass --force to overwrite it, or --output to write elsewhere")
		}
		if existing, err := config.Load(path); err == nil {
			base = existing
		} else {
			logger.WarnWithFields("existing configuration could not be read, starting empty", map[string]interface{}{
				"path":  path,
				"error": err,
			})
		}
	}

	if !rootFlags.quiet && ui.IsTerminal() {
		ui.ShowLogo()
	}

	opts := append([]ui.WizardOption{ui.WithWizardOutput(console.Out())}, wizardOptions...)
	cfg, err := ui.NewConfigWizard(opts...).Run(base)
	if err != nil {
		if stderrors.Is(err, ui.ErrWizardCancelled) {
			console.Warning("Configuration cancelled, nothing was written")
			return nil
		}
		return err
	}

	applyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if initFlags.keyring && cfg.Warehouse.Password != "" {
		if err := config.StorePassword(cfg.Warehouse, cfg.Warehouse.Password); err != nil {
			return err
		}
		cfg.Warehouse.Password = ""
		console.Success("Password stored in the OS keyring as " + config.SecretAccount(cfg.Warehouse))
	}

	if err := config.Save(cfg, path); err != nil {
		return err
	}

	console.Success("Configuration written to " + path)
	console.Println()
	console.Println("Next steps:")
	console.Printf("  starload sources -c %s      check the song and event files\n", path)
	console.Printf("  starload run -c %s --check  rebuild the warehouse\n", path)
	return nil
}

// applyDefaults fills the settings the wizard does not ask for
func applyDefaults(cfg *models.Config) {
	if cfg.Load.TxMode == "" {
		cfg.Load.TxMode = "stage"
	}
	if cfg.Load.BatchSize <= 0 {
		cfg.Load.BatchSize = config.DefaultBatchSize
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = config.DefaultRegion
	}
	if cfg.Warehouse.Timeout == "" {
		cfg.Warehouse.Timeout = "30m"
	}
	if cfg.Warehouse.Dialect == "redshift" && cfg.Warehouse.SSLMode == "" {
		cfg.Warehouse.SSLMode = "require"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}
