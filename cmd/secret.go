package cmd

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	"starload/internal/config"
	"starload/internal/ui"
	"starload/pkg/errors"
	"starload/pkg/models"
)

var secretFlags struct {
	passwordStdin bool
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the warehouse password in the OS keyring",
	Long: `Store or remove the warehouse password in the OS keyring. A configuration
without a password falls back to the keyring entry for its dialect, user,
endpoint and database.`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the warehouse password in the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := secretTarget()
		if err != nil {
			return err
		}

		var password string
		if secretFlags.passwordStdin {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to read password from stdin")
			}
			password = strings.TrimRight(line, "\r\n")
		} else {
			password, err = ui.Password("Password for "+config.SecretAccount(w)+":", "")
			if err != nil {
				return err
			}
		}
		if password == "" {
			return errors.New(errors.ErrCodeRequiredField, "Password must not be empty")
		}

		if err := config.StorePassword(w, password); err != nil {
			return err
		}
		console.Success("Password stored for " + config.SecretAccount(w))
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the warehouse password from the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := secretTarget()
		if err != nil {
			return err
		}
		if err := config.DeletePassword(w); err != nil {
			return err
		}
		console.Success("Password removed for " + config.SecretAccount(w))
		return nil
	},
}

func init() {
	secretSetCmd.Flags().BoolVar(&secretFlags.passwordStdin, "password-stdin", false, "Read the password from stdin")
	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd)
	rootCmd.AddCommand(secretCmd)
}

// secretTarget returns the warehouse whose keyring entry is managed. The
// configuration is not validated: the password may be the missing piece.
func secretTarget() (models.Warehouse, error) {
	cfg, err := config.Load(rootFlags.configFile)
	if err != nil {
		return models.Warehouse{}, err
	}
	if cfg.Warehouse.Dialect == "sqlite" {
		return models.Warehouse{}, errors.New(errors.ErrCodeInvalidInput, "SQLite needs no password")
	}
	return cfg.Warehouse, nil
}
