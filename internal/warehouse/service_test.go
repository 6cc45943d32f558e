package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starload/internal/observability"
	"starload/pkg/errors"
	"starload/pkg/models"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewServiceWithDB(db, Config{Dialect: "redshift", Timeout: time.Minute}, observability.NewNopLogger())
	return svc, mock
}

func TestConfigFromModel(t *testing.T) {
	cfg, err := ConfigFromModel(models.Warehouse{
		Dialect:  "Redshift",
		Host:     "dwh.example.com",
		Database: "dev",
		Timeout:  "5m",
	})
	require.NoError(t, err)
	assert.Equal(t, "redshift", cfg.Dialect)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)

	cfg, err = ConfigFromModel(models.Warehouse{Dialect: "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)

	_, err = ConfigFromModel(models.Warehouse{Dialect: "sqlite", Timeout: "soon"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		driver string
		dsn    string
	}{
		{
			name: "redshift defaults",
			config: Config{
				Dialect:  "redshift",
				Host:     "dwh.example.com",
				Database: "dev",
				User:     "awsuser",
				Password: "Passw0rd",
			},
			driver: "postgres",
			dsn:    "host=dwh.example.com port=5439 user=awsuser password=Passw0rd dbname=dev sslmode=require",
		},
		{
			name: "redshift quoted password",
			config: Config{
				Dialect:  "redshift",
				Host:     "localhost",
				Port:     5432,
				Database: "dev",
				User:     "awsuser",
				Password: "it's secret",
				SSLMode:  "disable",
			},
			driver: "postgres",
			dsn:    `host=localhost port=5432 user=awsuser password='it\'s secret' dbname=dev sslmode=disable`,
		},
		{
			name:   "sqlite memory",
			config: Config{Dialect: "sqlite"},
			driver: "sqlite",
			dsn:    ":memory:",
		},
		{
			name:   "sqlite file",
			config: Config{Dialect: "sqlite", Path: "/tmp/dwh.db"},
			driver: "sqlite",
			dsn:    "/tmp/dwh.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, err := tt.config.DriverName()
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)

			dsn, err := tt.config.DSN()
			require.NoError(t, err)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestSnowflakeDSN(t *testing.T) {
	dsn, err := Config{
		Dialect:   "snowflake",
		Account:   "myorg-acct",
		User:      "loader",
		Password:  "secret",
		Database:  "DWH",
		Schema:    "PUBLIC",
		Warehouse: "LOAD_WH",
	}.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "myorg-acct")
	assert.Contains(t, dsn, "loader")
}

func TestUnsupportedDialect(t *testing.T) {
	_, err := Config{Dialect: "oracle"}.DriverName()
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
	_, err = Config{Dialect: "oracle"}.DSN()
	assert.Error(t, err)
}

func TestExecNotConnected(t *testing.T) {
	svc := NewService(Config{Dialect: "redshift"}, observability.NewNopLogger())
	_, err := svc.Exec(context.Background(), nil, "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not connected to database")
}

func TestExec(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec("INSERT INTO users SELECT 1;").WillReturnResult(sqlmock.NewResult(0, 42))

	rows, err := svc.Exec(context.Background(), nil, "INSERT INTO users SELECT 1;")
	require.NoError(t, err)
	assert.Equal(t, int64(42), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecClassifiesErrors(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec("INSERT INTO songplays SELECT 1;").
		WillReturnError(fmt.Errorf(`relation "staging_events" does not exist`))

	_, err := svc.Exec(context.Background(), nil, "INSERT INTO songplays SELECT 1;")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSQLObjectNotFound, errors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecRowsAffectedUnknown(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec("DROP TABLE IF EXISTS users;").
		WillReturnResult(sqlmock.NewErrorResult(fmt.Errorf("not supported")))

	rows, err := svc.Exec(context.Background(), nil, "DROP TABLE IF EXISTS users;")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), rows)
}

func TestQueryInt(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("SELECT COUNT(*) FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(96))
	mock.ExpectQuery("SELECT COUNT(*) FROM songs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(71))

	counts, err := svc.CountRows(context.Background(), []string{"users", "songs"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"users": 96, "songs": 71}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionCommit(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users SELECT 1;").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, err := svc.Exec(context.Background(), tx, "INSERT INTO users SELECT 1;")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollback(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users SELECT 1;").WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := svc.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, err := svc.Exec(context.Background(), tx, "INSERT INTO users SELECT 1;")
		return err
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSQLExecution, errors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectAuthenticationFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(fmt.Errorf("pq: password authentication failed for user \"awsuser\""))
	mock.ExpectClose()

	svc := NewService(Config{Dialect: "redshift", Host: "dwh", Database: "dev", User: "awsuser"}, observability.NewNopLogger())
	opened := 0
	svc.open = func(driver, dsn string) (*sql.DB, error) {
		opened++
		assert.Equal(t, "postgres", driver)
		return db, nil
	}

	err = svc.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthenticationFailed, errors.GetErrorCode(err))
	assert.Equal(t, 1, opened, "authentication failures are not retried")
	assert.False(t, svc.Connected())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectSQLite(t *testing.T) {
	svc := NewService(Config{Dialect: "sqlite"}, observability.NewNopLogger())
	require.NoError(t, svc.Connect(context.Background()))
	defer svc.Close()

	assert.True(t, svc.Connected())
	require.NoError(t, svc.TestConnection(context.Background()))

	_, err := svc.Exec(context.Background(), nil, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	rows, err := svc.Exec(context.Background(), nil, "INSERT INTO t VALUES (1), (2)")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	n, err := svc.QueryInt(context.Background(), nil, "SELECT SUM(id) FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
