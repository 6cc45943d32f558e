package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"starload/internal/common"
	"starload/pkg/errors"
	"starload/pkg/models"
)

const (
	// EnvPrefix prefixes every environment override, e.g. STARLOAD_WAREHOUSE_PASSWORD
	EnvPrefix = "STARLOAD"
	// EnvConfigFile points at an explicit configuration file
	EnvConfigFile = "STARLOAD_CONFIG"

	DefaultRegion    = "us-west-2"
	DefaultBatchSize = 1000
)

// Dialects understood by the warehouse layer
var Dialects = []string{"redshift", "snowflake", "sqlite"}

// TxModes understood by the pipeline runner
var TxModes = []string{"none", "stage", "batch"}

// keys lists every configuration key so that each one can be overridden from
// the environment even when the file does not mention it.
var keys = []string{
	"warehouse.dialect", "warehouse.host", "warehouse.port", "warehouse.database",
	"warehouse.user", "warehouse.password", "warehouse.ssl_mode", "warehouse.account",
	"warehouse.warehouse", "warehouse.role", "warehouse.schema", "warehouse.path",
	"warehouse.timeout",
	"s3.log_data", "s3.song_data", "s3.log_jsonpath", "s3.region", "s3.endpoint",
	"s3.anonymous",
	"iam_role.arn", "iam_role.storage_integration",
	"load.tx_mode", "load.batch_size", "load.dry_run",
	"logging.level", "logging.format",
}

// legacyKeys maps the [CLUSTER] section of dwh.cfg onto the warehouse section
var legacyKeys = map[string]string{
	"host":        "host",
	"db_name":     "database",
	"db_user":     "user",
	"db_password": "password",
	"db_port":     "port",
}

// GetConfigPath returns the directory holding the user-level config file
func GetConfigPath() string {
	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		return filepath.Dir(configFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".starload")
}

// GetConfigFile returns the user-level config file path
func GetConfigFile() string {
	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// ResolveConfigFile picks the file to load: the explicit path, then
// $STARLOAD_CONFIG, ./starload.yaml, ./dwh.cfg and finally the user-level file.
func ResolveConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigFile); env != "" {
		return env
	}
	for _, candidate := range []string{"starload.yaml", "dwh.cfg"} {
		if common.FileExists(candidate) {
			return candidate
		}
	}
	return GetConfigFile()
}

// Load reads the configuration. A missing file is only an error when it was
// named explicitly; otherwise defaults and environment overrides apply.
func Load(explicit string) (*models.Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	file := ResolveConfigFile(explicit)
	cleaned, err := common.CleanPath(file)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid config file path").
			WithContext("path", file)
	}

	switch {
	case common.FileExists(cleaned) && isINI(cleaned):
		values, err := readINI(cleaned)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read config file").
				WithContext("path", cleaned)
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to merge config file").
				WithContext("path", cleaned)
		}
	case common.FileExists(cleaned):
		v.SetConfigFile(cleaned)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read config file").
				WithContext("path", cleaned)
		}
	case explicit != "":
		return nil, errors.New(errors.ErrCodeConfigNotFound, "Config file not found").
			WithContext("path", cleaned).
			WithSuggestions("Run 'starload init' to create one")
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decode configuration")
	}
	cfg.Warehouse.Dialect = strings.ToLower(cfg.Warehouse.Dialect)

	if err := DecryptConfigPasswords(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("warehouse.dialect", "redshift")
	v.SetDefault("warehouse.ssl_mode", "require")
	v.SetDefault("warehouse.timeout", "30m")
	v.SetDefault("s3.region", DefaultRegion)
	v.SetDefault("load.tx_mode", "stage")
	v.SetDefault("load.batch_size", DefaultBatchSize)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// readINI loads an INI file such as the legacy dwh.cfg into a nested map.
// Keys of the [CLUSTER] section are renamed into the warehouse section unless
// a [WAREHOUSE] section sets them already.
func readINI(path string) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any)
	section := func(name string) map[string]any {
		m, ok := out[name].(map[string]any)
		if !ok {
			m = make(map[string]any)
			out[name] = m
		}
		return m
	}

	for _, s := range file.Sections() {
		if s.Name() == "cluster" {
			continue
		}
		for _, key := range s.Keys() {
			section(s.Name())[key.Name()] = key.String()
		}
	}

	if cluster, err := file.GetSection("cluster"); err == nil {
		warehouse := section("warehouse")
		for _, key := range cluster.Keys() {
			name, ok := legacyKeys[key.Name()]
			if !ok {
				continue
			}
			if _, set := warehouse[name]; !set {
				warehouse[name] = key.String()
			}
		}
	}

	return out, nil
}

func isINI(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cfg", ".ini":
		return true
	}
	return false
}

func loadDotEnv() {
	if common.FileExists(".env") {
		_ = godotenv.Load(".env")
	}
}

// Save writes cfg as YAML to path (or the user-level file), encrypting the
// warehouse password first.
func Save(cfg *models.Config, path string) error {
	if path == "" {
		path = GetConfigFile()
	}

	out := *cfg
	if err := EncryptConfigPasswords(&out); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigPermission, "failed to create config directory").
			WithContext("path", filepath.Dir(path))
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal config")
	}

	if err := os.WriteFile(path, data, common.FilePermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigPermission, "failed to write config file").
			WithContext("path", path)
	}

	return nil
}

// Exists reports whether a config file would be found without an explicit path
func Exists() bool {
	return common.FileExists(ResolveConfigFile(""))
}

// Validate checks that cfg is complete for its dialect
func Validate(cfg *models.Config) error {
	w := cfg.Warehouse

	if !lo.Contains(Dialects, w.Dialect) {
		return errors.ConfigError("Unsupported warehouse dialect '"+w.Dialect+"'", "warehouse.dialect")
	}

	var required map[string]string
	switch w.Dialect {
	case "redshift":
		required = map[string]string{
			"warehouse.host":     w.Host,
			"warehouse.database": w.Database,
			"warehouse.user":     w.User,
			"iam_role.arn":       cfg.IAMRole.ARN,
		}
	case "snowflake":
		required = map[string]string{
			"warehouse.account":  w.Account,
			"warehouse.database": w.Database,
			"warehouse.user":     w.User,
		}
		if cfg.IAMRole.ARN == "" && cfg.IAMRole.StorageIntegration == "" {
			return missing("iam_role.storage_integration")
		}
	}
	fields := lo.Keys(required)
	sort.Strings(fields)
	for _, field := range fields {
		if required[field] == "" {
			return missing(field)
		}
	}

	if cfg.S3.LogData == "" {
		return missing("s3.log_data")
	}
	if cfg.S3.SongData == "" {
		return missing("s3.song_data")
	}

	if cfg.IAMRole.ARN != "" && !strings.HasPrefix(cfg.IAMRole.ARN, "arn:") {
		return errors.ValidationError("iam_role.arn", cfg.IAMRole.ARN, "bulk loads are authorized by IAM role ARN only").
			WithSuggestions("Use the role ARN, e.g. arn:aws:iam::123456789012:role/dwhRole")
	}

	if !lo.Contains(TxModes, cfg.Load.TxMode) {
		return errors.ConfigError("Unknown transaction mode '"+cfg.Load.TxMode+"'", "load.tx_mode")
	}
	if cfg.Load.BatchSize <= 0 {
		return errors.ValidationError("load.batch_size", cfg.Load.BatchSize, "must be positive")
	}

	if w.Timeout != "" {
		if _, err := time.ParseDuration(w.Timeout); err != nil {
			return errors.ConfigError("Invalid timeout '"+w.Timeout+"'", "warehouse.timeout")
		}
	}

	switch cfg.Logging.Format {
	case "", "json", "console":
	default:
		return errors.ConfigError("Logging format must be json or console", "logging.format")
	}

	return nil
}

func missing(field string) error {
	appErr := errors.ConfigError("Missing required configuration value", field)
	appErr.Code = errors.ErrCodeConfigMissing
	return appErr
}
