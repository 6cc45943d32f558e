package testutil

import (
	"starload/pkg/models"
)

// ConfigBuilder provides a fluent interface for building test configurations
type ConfigBuilder struct {
	config *models.Config
}

// NewConfigBuilder starts from the defaults the loader would apply
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: &models.Config{
			Warehouse: models.Warehouse{SSLMode: "require", Timeout: "30m"},
			S3:        models.S3{Region: "us-west-2"},
			Load:      models.Load{TxMode: "stage", BatchSize: 1000},
			Logging:   models.Logging{Level: "info", Format: "console"},
		},
	}
}

// WithRedshift sets a Redshift cluster
func (b *ConfigBuilder) WithRedshift(host, database, user, password string) *ConfigBuilder {
	b.config.Warehouse.Dialect = "redshift"
	b.config.Warehouse.Host = host
	b.config.Warehouse.Port = 5439
	b.config.Warehouse.Database = database
	b.config.Warehouse.User = user
	b.config.Warehouse.Password = password
	return b
}

// WithSnowflake sets a Snowflake account
func (b *ConfigBuilder) WithSnowflake(account, database, user, password, warehouse string) *ConfigBuilder {
	b.config.Warehouse.Dialect = "snowflake"
	b.config.Warehouse.Account = account
	b.config.Warehouse.Database = database
	b.config.Warehouse.User = user
	b.config.Warehouse.Password = password
	b.config.Warehouse.Warehouse = warehouse
	return b
}

// WithSQLite sets the local engine. An empty path means in-memory.
func (b *ConfigBuilder) WithSQLite(path string) *ConfigBuilder {
	b.config.Warehouse.Dialect = "sqlite"
	b.config.Warehouse.Path = path
	return b
}

// WithS3 sets the source locations
func (b *ConfigBuilder) WithS3(logData, songData, logJSONPath string) *ConfigBuilder {
	b.config.S3.LogData = logData
	b.config.S3.SongData = songData
	b.config.S3.LogJSONPath = logJSONPath
	return b
}

// WithDataset points the sources at a dataset written by WriteDataset
func (b *ConfigBuilder) WithDataset(ds Dataset) *ConfigBuilder {
	return b.WithS3(ds.LogData, ds.SongData, ds.LogJSONPath)
}

// WithRole sets the IAM role used by bulk loads
func (b *ConfigBuilder) WithRole(arn string) *ConfigBuilder {
	b.config.IAMRole.ARN = arn
	return b
}

// WithLoad sets the runner options
func (b *ConfigBuilder) WithLoad(txMode string, batchSize int, dryRun bool) *ConfigBuilder {
	b.config.Load = models.Load{TxMode: txMode, BatchSize: batchSize, DryRun: dryRun}
	return b
}

// Build returns the constructed configuration
func (b *ConfigBuilder) Build() *models.Config {
	return b.config
}

// ConfigScenarios provides pre-built configurations
var ConfigScenarios = struct {
	Redshift  func() *models.Config
	Snowflake func() *models.Config
	Local     func(ds Dataset) *models.Config
	Invalid   func() *models.Config
}{
	Redshift: func() *models.Config {
		return NewConfigBuilder().
			WithRedshift("dwh.abc123.us-west-2.redshift.amazonaws.com", "dev", "awsuser", "Passw0rd").
			WithS3("s3://udacity-dend/log_data", "s3://udacity-dend/song_data", "s3://udacity-dend/log_json_path.json").
			WithRole("arn:aws:iam::123456789012:role/dwhRole").
			Build()
	},

	Snowflake: func() *models.Config {
		cfg := NewConfigBuilder().
			WithSnowflake("myorg-acct", "DWH", "LOADER", "secret", "LOAD_WH").
			WithS3("s3://udacity-dend/log_data", "s3://udacity-dend/song_data", "").
			Build()
		cfg.IAMRole.StorageIntegration = "udacity_s3"
		return cfg
	},

	Local: func(ds Dataset) *models.Config {
		return NewConfigBuilder().WithSQLite("").WithDataset(ds).Build()
	},

	Invalid: func() *models.Config {
		return &models.Config{Warehouse: models.Warehouse{Dialect: "oracle"}}
	},
}
