package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"starload/internal/common"
	"starload/internal/config"
	"starload/internal/ui"
	"starload/pkg/errors"
	"starload/pkg/models"
)

var encryptConfigFlags struct {
	backup bool
}

var encryptConfigCmd = &cobra.Command{
	Use:   "encrypt-config",
	Short: "Encrypt the warehouse password in the configuration file",
	Long: `Encrypt a plaintext warehouse password in the configuration file using
AES-256-GCM.

The key is derived from STARLOAD_ENCRYPTION_KEY when it is set and from the
host name and home directory otherwise, so an encrypted file only decrypts
on the machine that wrote it unless the variable is shared.

A legacy INI file (dwh.cfg) is rewritten as YAML next to it; the INI file is
left in place.`,
	Args: cobra.NoArgs,
	RunE: runEncryptConfig,
}

var encryptPasswordCmd = &cobra.Command{
	Use:   "encrypt-password",
	Short: "Print an encrypted value for the warehouse.password setting",
	Long: `Read a password from stdin (or a prompt on a terminal) and print it as an
ENC[...] value that can be pasted into the configuration file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if ui.IsTerminal() {
			p, err := ui.Password("Password:", "")
			if err != nil {
				return err
			}
			password = p
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to read password from stdin")
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New(errors.ErrCodeRequiredField, "Password must not be empty")
		}

		encrypted, err := config.EncryptPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), encrypted)
		return nil
	},
}

func init() {
	encryptConfigCmd.Flags().BoolVar(&encryptConfigFlags.backup, "backup", true, "Create a backup of the original file")
	rootCmd.AddCommand(encryptConfigCmd, encryptPasswordCmd)
}

func runEncryptConfig(cmd *cobra.Command, args []string) error {
	path, err := common.CleanPath(config.ResolveConfigFile(rootFlags.configFile))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid config file path")
	}
	console.Info("Reading configuration from " + path)

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigNotFound, "Failed to read config file").
			WithContext("path", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cfg.Warehouse.Password == "" {
		console.Info("No password in the configuration, nothing to encrypt")
		return nil
	}

	target := path
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cfg", ".ini":
		target = strings.TrimSuffix(path, filepath.Ext(path)) + ".yaml"
		console.Warning("INI files cannot hold encrypted values, writing " + target)
	default:
		var raw models.Config
		if err := yaml.Unmarshal(data, &raw); err == nil && config.IsEncrypted(raw.Warehouse.Password) {
			console.Info("Password is already encrypted")
			return nil
		}
	}

	if encryptConfigFlags.backup {
		backup := path + ".backup"
		if err := os.WriteFile(backup, data, common.FilePermissionSecure); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigPermission, "Failed to create backup").
				WithContext("path", backup)
		}
		console.Success("Created backup " + backup)
	}

	if err := config.Save(cfg, target); err != nil {
		return err
	}

	console.Success("Password encrypted in " + target)
	console.Info("Set " + config.EnvEncryptionKey + " to decrypt it on another machine")
	return nil
}
