package models

// Config is the complete starload configuration. The INI layout of the legacy
// dwh.cfg file maps onto the same sections: [WAREHOUSE], [S3], [IAM_ROLE].
type Config struct {
	Warehouse Warehouse `yaml:"warehouse" mapstructure:"warehouse"`
	S3        S3        `yaml:"s3" mapstructure:"s3"`
	IAMRole   IAMRole   `yaml:"iam_role" mapstructure:"iam_role"`
	Load      Load      `yaml:"load" mapstructure:"load"`
	Logging   Logging   `yaml:"logging" mapstructure:"logging"`
}

// Warehouse holds connection settings for the target engine
type Warehouse struct {
	Dialect  string `yaml:"dialect" mapstructure:"dialect"` // "redshift", "snowflake", "sqlite"
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`

	// Snowflake only
	Account   string `yaml:"account" mapstructure:"account"`
	Warehouse string `yaml:"warehouse" mapstructure:"warehouse"`
	Role      string `yaml:"role" mapstructure:"role"`
	Schema    string `yaml:"schema" mapstructure:"schema"`

	// SQLite only: database file, ":memory:" when empty
	Path string `yaml:"path" mapstructure:"path"`

	Timeout string `yaml:"timeout" mapstructure:"timeout"` // e.g. "30m"
}

// S3 describes where the raw JSON logs live
type S3 struct {
	LogData     string `yaml:"log_data" mapstructure:"log_data"`
	SongData    string `yaml:"song_data" mapstructure:"song_data"`
	LogJSONPath string `yaml:"log_jsonpath" mapstructure:"log_jsonpath"`
	Region      string `yaml:"region" mapstructure:"region"`

	// Endpoint overrides the S3 endpoint (MinIO, localstack)
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	// Anonymous reads public buckets without credentials
	Anonymous bool `yaml:"anonymous,omitempty" mapstructure:"anonymous"`
}

// IAMRole is the assumed-role reference used to authorize bulk loads
type IAMRole struct {
	ARN                string `yaml:"arn" mapstructure:"arn"`
	StorageIntegration string `yaml:"storage_integration" mapstructure:"storage_integration"`
}

// Load tunes how the pipeline runs
type Load struct {
	TxMode    string `yaml:"tx_mode" mapstructure:"tx_mode"` // "none", "stage", "batch"
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	DryRun    bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// Logging configures the structured logger
type Logging struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "json" or "console"
}
