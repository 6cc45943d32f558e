package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"starload/internal/observability"
	"starload/pkg/errors"
	"starload/pkg/models"
)

const (
	// DefaultRedshiftPort is used when no port is configured
	DefaultRedshiftPort = 5439
	// DefaultTimeout bounds a single statement
	DefaultTimeout = 30 * time.Minute
	// MemoryPath opens a private in-memory SQLite database
	MemoryPath = ":memory:"
)

// Execer is the subset of *sql.DB, *sql.Conn and *sql.Tx that loads run on
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor runs statements for the pipeline. *Service implements it.
type Executor interface {
	Exec(ctx context.Context, ex Execer, query string) (int64, error)
	QueryInt(ctx context.Context, ex Execer, query string) (int64, error)
	WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error
	DB() *sql.DB
}

var _ Executor = (*Service)(nil)

// Config holds warehouse connection configuration
type Config struct {
	Dialect  string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	Account   string
	Warehouse string
	Role      string
	Schema    string

	Path    string
	Timeout time.Duration
}

// ConfigFromModel converts the [warehouse] section of the configuration
func ConfigFromModel(w models.Warehouse) (Config, error) {
	cfg := Config{
		Dialect:   strings.ToLower(w.Dialect),
		Host:      w.Host,
		Port:      w.Port,
		Database:  w.Database,
		User:      w.User,
		Password:  w.Password,
		SSLMode:   w.SSLMode,
		Account:   w.Account,
		Warehouse: w.Warehouse,
		Role:      w.Role,
		Schema:    w.Schema,
		Path:      w.Path,
		Timeout:   DefaultTimeout,
	}
	if w.Timeout != "" {
		d, err := time.ParseDuration(w.Timeout)
		if err != nil {
			return Config{}, errors.ConfigError("Invalid timeout '"+w.Timeout+"'", "warehouse.timeout")
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// DriverName returns the database/sql driver registered for the dialect
func (c Config) DriverName() (string, error) {
	switch c.Dialect {
	case "redshift":
		return "postgres", nil
	case "snowflake":
		return "snowflake", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", errors.ConfigError("Unsupported warehouse dialect '"+c.Dialect+"'", "warehouse.dialect")
	}
}

// DSN builds the driver connection string
func (c Config) DSN() (string, error) {
	switch c.Dialect {
	case "redshift":
		port := c.Port
		if port == 0 {
			port = DefaultRedshiftPort
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, port, c.User, quoteValue(c.Password), c.Database, sslMode), nil
	case "snowflake":
		return gosnowflake.DSN(&gosnowflake.Config{
			Account:   c.Account,
			User:      c.User,
			Password:  c.Password,
			Database:  c.Database,
			Schema:    c.Schema,
			Warehouse: c.Warehouse,
			Role:      c.Role,
		})
	case "sqlite":
		if c.Path == "" {
			return MemoryPath, nil
		}
		return c.Path, nil
	default:
		return "", errors.ConfigError("Unsupported warehouse dialect '"+c.Dialect+"'", "warehouse.dialect")
	}
}

// Endpoint identifies the warehouse in logs without credentials
func (c Config) Endpoint() string {
	switch c.Dialect {
	case "snowflake":
		return c.Account + "/" + c.Database
	case "sqlite":
		if c.Path == "" {
			return MemoryPath
		}
		return c.Path
	default:
		return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
	}
}

// quoteValue quotes a libpq keyword value when it contains spaces or quotes
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Service runs SQL against the configured warehouse
type Service struct {
	db             *sql.DB
	config         Config
	connected      bool
	logger         *observability.Logger
	errorHandler   *errors.ErrorHandler
	circuitBreaker *errors.CircuitBreaker
	open           func(driver, dsn string) (*sql.DB, error)
}

// NewService creates a new warehouse service
func NewService(config Config, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	return &Service{
		config:         config,
		logger:         logger.WithField("dialect", config.Dialect),
		errorHandler:   errors.GetGlobalErrorHandler(),
		circuitBreaker: errors.NewCircuitBreaker("warehouse", 5, 30*time.Second),
		open:           sql.Open,
	}
}

// NewServiceWithDB wraps an already open database handle
func NewServiceWithDB(db *sql.DB, config Config, logger *observability.Logger) *Service {
	s := NewService(config, logger)
	s.db = db
	s.connected = true
	return s
}

// Config returns the connection configuration
func (s *Service) Config() Config {
	return s.config
}

// DB returns the underlying handle, nil before Connect
func (s *Service) DB() *sql.DB {
	return s.db
}

// Connected reports whether Connect succeeded
func (s *Service) Connected() bool {
	return s.connected
}

// Connect opens and pings the warehouse, retrying transient failures
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	driver, err := s.config.DriverName()
	if err != nil {
		return err
	}
	dsn, err := s.config.DSN()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to build connection string")
	}

	return s.circuitBreaker.Execute(ctx, func() error {
		return errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
			db, err := s.open(driver, dsn)
			if err != nil {
				return errors.ConnectionError("Failed to open warehouse connection", err).
					WithContext("endpoint", s.config.Endpoint())
			}

			if s.config.Dialect == "sqlite" {
				// every connection to :memory: is a separate database
				db.SetMaxOpenConns(1)
			} else {
				db.SetMaxOpenConns(10)
				db.SetMaxIdleConns(5)
				db.SetConnMaxLifetime(10 * time.Minute)
			}

			pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := db.PingContext(pingCtx); err != nil {
				_ = db.Close()

				msg := strings.ToLower(err.Error())
				if strings.Contains(msg, "authentication") || strings.Contains(msg, "password") {
					return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
						WithContext("user", s.config.User).
						WithContext("endpoint", s.config.Endpoint()).
						WithSuggestions(
							"Verify the warehouse user and password",
							"Store the password with 'starload secret set'",
						)
				}

				return errors.ConnectionError("Failed to connect to warehouse", err).
					WithContext("endpoint", s.config.Endpoint()).
					AsRecoverable()
			}

			s.db = db
			s.connected = true
			s.logger.InfoWithFields("connected to warehouse", map[string]interface{}{
				"endpoint": s.config.Endpoint(),
			})
			return nil
		})
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	s.connected = false
	return nil
}

func (s *Service) ensureConnected() error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to database").
			WithSuggestions("Call Connect() before executing SQL")
	}
	return nil
}

// Exec runs one statement on ex (the service's own handle when ex is nil)
// and returns the rows it affected. Drivers that do not report a count
// yield -1.
func (s *Service) Exec(ctx context.Context, ex Execer, query string) (int64, error) {
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	if ex == nil {
		ex = s.db
	}

	execCtx, cancel := s.getContext(ctx)
	defer cancel()

	result, err := ex.ExecContext(execCtx, query)
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return 0, errors.Wrap(err, errors.ErrCodeSQLTimeout, "Statement timed out").
				WithContext("timeout", s.config.Timeout.String())
		}
		return 0, errors.SQLError("Failed to execute statement", query, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return rows, nil
}

// QueryInt runs a query that returns a single integer
func (s *Service) QueryInt(ctx context.Context, ex Execer, query string) (int64, error) {
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	if ex == nil {
		ex = s.db
	}

	queryCtx, cancel := s.getContext(ctx)
	defer cancel()

	var n sql.NullInt64
	if err := ex.QueryRowContext(queryCtx, query).Scan(&n); err != nil {
		return 0, errors.SQLError("Failed to execute query", query, err)
	}
	return n.Int64, nil
}

// CountRows returns SELECT COUNT(*) for each table
func (s *Service) CountRows(ctx context.Context, tables []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		n, err := s.QueryInt(ctx, nil, "SELECT COUNT(*) FROM "+table)
		if err != nil {
			return counts, err
		}
		counts[table] = n
	}
	return counts, nil
}

// WithTransaction runs fn inside a transaction. It commits when fn returns
// nil and rolls back otherwise.
func (s *Service) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}

	txHandler := s.errorHandler.NewTransactionHandler(tx.Rollback)
	return txHandler.Execute(func() error {
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit transaction")
		}
		return nil
	})
}

// TestConnection runs a trivial query
func (s *Service) TestConnection(ctx context.Context) error {
	_, err := s.QueryInt(ctx, nil, "SELECT 1")
	return err
}

func (s *Service) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if s.config.Timeout > 0 {
		return context.WithTimeout(parent, s.config.Timeout)
	}
	return context.WithCancel(parent)
}
