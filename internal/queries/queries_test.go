package queries

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starload/pkg/errors"
)

var testSources = Sources{
	LogData:     "s3://udacity-dend/log_data",
	SongData:    "s3://udacity-dend/song_data",
	LogJSONPath: "s3://udacity-dend/log_json_path.json",
	Region:      "us-west-2",
	IAMRole:     "arn:aws:iam::123456789012:role/dwhRole",
}

func mustDialect(t *testing.T, name string) Dialect {
	t.Helper()
	d, err := DialectFor(name)
	require.NoError(t, err)
	return d
}

func names(stmts []Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.Table
	}
	return out
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"redshift", "Snowflake", "sqlite"} {
		d, err := DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(name), d.Name())
	}

	_, err := DialectFor("oracle")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
}

func TestDropTableQueries(t *testing.T) {
	stmts := DropTableQueries(mustDialect(t, "redshift"))

	assert.Equal(t, []string{StagingEvents, StagingSongs, Songplays, Users, Songs, Artists, Time}, names(stmts))
	for _, s := range stmts {
		assert.Equal(t, StageDrop, s.Stage)
		assert.Equal(t, "DROP TABLE IF EXISTS "+s.Table+";", s.SQL)
	}
}

func TestCreateTableQueries(t *testing.T) {
	for _, dialect := range []string{"redshift", "snowflake", "sqlite"} {
		t.Run(dialect, func(t *testing.T) {
			stmts := CreateTableQueries(mustDialect(t, dialect))

			require.Len(t, stmts, 7)
			assert.Equal(t, []string{StagingEvents, StagingSongs, Artists, Users, Songs, Time, Songplays}, names(stmts))
			for _, s := range stmts {
				assert.Equal(t, StageCreate, s.Stage)
				assert.True(t, strings.HasPrefix(s.SQL, "CREATE TABLE "+s.Table+" ("), s.SQL)
				assert.True(t, strings.HasSuffix(s.SQL, ");"), s.SQL)
				assert.NotContains(t, s.SQL, "<no value>")
			}
		})
	}
}

func TestCreateTableWidthPolicy(t *testing.T) {
	stmts := CreateTableQueries(mustDialect(t, "redshift"))
	byTable := map[string]string{}
	for _, s := range stmts {
		byTable[s.Table] = s.SQL
	}

	assert.Contains(t, byTable[Songs], "song_id   VARCHAR(32) PRIMARY KEY")
	assert.Contains(t, byTable[Users], "level      VARCHAR(16) NOT NULL")
	assert.Contains(t, byTable[Songplays], "user_agent  VARCHAR(512) NOT NULL")
	assert.Contains(t, byTable[Songplays], "songplay_id BIGINT IDENTITY(0,1) PRIMARY KEY")
	assert.Contains(t, byTable[StagingEvents], "ts            BIGINT")
	assert.Contains(t, byTable[StagingEvents], "userId        VARCHAR(65535)")

	// coordinates are optional
	assert.Contains(t, byTable[Artists], "latitude  DOUBLE PRECISION,")
	assert.NotContains(t, byTable[Artists], "latitude  DOUBLE PRECISION NOT NULL")
}

func TestCopyTableQueriesRedshift(t *testing.T) {
	stmts, err := CopyTableQueries(mustDialect(t, "redshift"), testSources)
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	assert.Equal(t, []string{StagingSongs, StagingEvents}, names(stmts))

	assert.Equal(t, `COPY staging_songs
FROM 's3://udacity-dend/song_data'
CREDENTIALS 'aws_iam_role=arn:aws:iam::123456789012:role/dwhRole'
JSON 'auto' TRUNCATECOLUMNS
COMPUPDATE OFF
REGION 'us-west-2';`, stmts[0].SQL)

	assert.Equal(t, `COPY staging_events
FROM 's3://udacity-dend/log_data'
CREDENTIALS 'aws_iam_role=arn:aws:iam::123456789012:role/dwhRole'
JSON 's3://udacity-dend/log_json_path.json'
COMPUPDATE OFF
REGION 'us-west-2';`, stmts[1].SQL)

	assert.Equal(t, "s3://udacity-dend/log_json_path.json", stmts[1].Source.JSONPaths)
	assert.True(t, stmts[0].Source.Truncate)
}

func TestCopyTableQueriesRegion(t *testing.T) {
	src := testSources
	src.Region = ""
	stmts, err := CopyTableQueries(mustDialect(t, "redshift"), src)
	require.NoError(t, err)
	assert.Contains(t, stmts[0].SQL, "REGION 'us-west-2'")

	src.Region = "eu-central-1"
	stmts, err = CopyTableQueries(mustDialect(t, "redshift"), src)
	require.NoError(t, err)
	assert.Contains(t, stmts[1].SQL, "REGION 'eu-central-1'")
}

func TestCopyTableQueriesSnowflake(t *testing.T) {
	src := testSources
	src.StorageIntegration = "sparkify_s3"
	stmts, err := CopyTableQueries(mustDialect(t, "snowflake"), src)
	require.NoError(t, err)

	assert.Equal(t, `COPY INTO staging_songs
FROM 's3://udacity-dend/song_data'
STORAGE_INTEGRATION = sparkify_s3
FILE_FORMAT = (TYPE = JSON)
MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE
ON_ERROR = ABORT_STATEMENT
TRUNCATECOLUMNS = TRUE;`, stmts[0].SQL)

	src.StorageIntegration = ""
	stmts, err = CopyTableQueries(mustDialect(t, "snowflake"), src)
	require.NoError(t, err)
	assert.Contains(t, stmts[1].SQL, "CREDENTIALS = (AWS_ROLE = 'arn:aws:iam::123456789012:role/dwhRole')")
	assert.True(t, strings.HasSuffix(stmts[1].SQL, "ON_ERROR = ABORT_STATEMENT;"))
}

func TestCopyTableQueriesClientSide(t *testing.T) {
	src := Sources{LogData: "testdata/log_data", SongData: "testdata/song_data"}
	stmts, err := CopyTableQueries(mustDialect(t, "sqlite"), src)
	require.NoError(t, err)

	for _, s := range stmts {
		assert.Empty(t, s.SQL)
		require.NotNil(t, s.Source)
		assert.Equal(t, s.Table, s.Source.Table)
	}
	assert.Equal(t, "testdata/song_data", stmts[0].Source.Path)
}

func TestCopyTableQueriesValidation(t *testing.T) {
	_, err := CopyTableQueries(mustDialect(t, "redshift"), Sources{LogData: "s3://b/log"})
	assert.Equal(t, errors.ErrCodeRequiredField, errors.GetErrorCode(err))

	_, err = CopyTableQueries(mustDialect(t, "redshift"), Sources{LogData: "s3://b/log", SongData: "s3://b/song"})
	assert.Equal(t, errors.ErrCodeRequiredField, errors.GetErrorCode(err))
}

func TestCopyTableQueriesRedshiftNeedsRole(t *testing.T) {
	src := testSources
	src.IAMRole = ""
	src.StorageIntegration = "S3_INT"

	stmts, err := CopyTableQueries(mustDialect(t, "redshift"), src)
	assert.Equal(t, errors.ErrCodeRequiredField, errors.GetErrorCode(err))
	assert.Empty(t, stmts)

	stmts, err = CopyTableQueries(mustDialect(t, "snowflake"), src)
	require.NoError(t, err)
	for _, s := range stmts {
		assert.Contains(t, s.SQL, "STORAGE_INTEGRATION = S3_INT")
	}
}

func TestQuoteEscapes(t *testing.T) {
	src := testSources
	src.LogData = "s3://bucket/it's"
	stmts, err := CopyTableQueries(mustDialect(t, "redshift"), src)
	require.NoError(t, err)
	assert.Contains(t, stmts[1].SQL, "FROM 's3://bucket/it''s'")
}

func TestInsertTableQueries(t *testing.T) {
	for _, dialect := range []string{"redshift", "snowflake", "sqlite"} {
		t.Run(dialect, func(t *testing.T) {
			stmts := InsertTableQueries(mustDialect(t, dialect))

			assert.Equal(t, []string{Songplays, Users, Songs, Artists, Time}, names(stmts))
			assert.Equal(t, StageInsertFact, stmts[0].Stage)
			for _, s := range stmts[1:] {
				assert.Equal(t, StageInsertDimensions, s.Stage)
			}
			for _, s := range stmts {
				assert.True(t, strings.HasPrefix(s.SQL, "INSERT INTO "+s.Table+" ("), s.SQL)
				assert.Contains(t, s.SQL, "SELECT DISTINCT")
			}
		})
	}
}

func TestInsertFiltersNextSong(t *testing.T) {
	stmts := InsertTableQueries(mustDialect(t, "redshift"))
	assert.Contains(t, stmts[0].SQL, "WHERE se.page = 'NextSong'")
	assert.Contains(t, stmts[1].SQL, "WHERE page = 'NextSong'")
	assert.Contains(t, stmts[4].SQL, "FROM songplays;")
}

func TestInsertUsersLatestLevel(t *testing.T) {
	for _, dialect := range []string{"redshift", "snowflake", "sqlite"} {
		t.Run(dialect, func(t *testing.T) {
			users := InsertTableQueries(mustDialect(t, dialect))[1]
			require.Equal(t, Users, users.Table)

			// events without ts sort last, and " 26" and "26" are one user
			assert.Contains(t, users.SQL,
				"ROW_NUMBER() OVER (PARTITION BY CAST(userId AS INTEGER) ORDER BY ts DESC NULLS LAST, level)")
			assert.Contains(t, users.SQL, "WHERE rn = 1")
		})
	}
}

func TestEpochMillis(t *testing.T) {
	assert.Equal(t, "TIMESTAMP 'epoch' + se.ts * INTERVAL '0.001 second'", mustDialect(t, "redshift").EpochMillis("se.ts"))
	assert.Equal(t, "TO_TIMESTAMP_NTZ(se.ts, 3)", mustDialect(t, "snowflake").EpochMillis("se.ts"))
	assert.Equal(t,
		"strftime('%Y-%m-%d %H:%M:%S', se.ts / 1000, 'unixepoch') || '.' || printf('%03d', se.ts % 1000)",
		mustDialect(t, "sqlite").EpochMillis("se.ts"))
}

func TestDatePart(t *testing.T) {
	rs := mustDialect(t, "redshift")
	assert.Equal(t, "EXTRACT(WEEK FROM start_time)", rs.DatePart("week", "start_time"))
	assert.Equal(t, "((EXTRACT(DOW FROM start_time) + 6) % 7) + 1", rs.DatePart("weekday", "start_time"))

	sf := mustDialect(t, "snowflake")
	assert.Equal(t, "DAYOFWEEKISO(start_time)", sf.DatePart("weekday", "start_time"))
	assert.Equal(t, "WEEKISO(start_time)", sf.DatePart("week", "start_time"))

	lite := mustDialect(t, "sqlite")
	assert.Equal(t, "CAST(strftime('%u', start_time) AS INTEGER)", lite.DatePart("weekday", "start_time"))
}

func TestStageStatements(t *testing.T) {
	d := mustDialect(t, "redshift")

	fact, err := StageStatements(d, StageInsertFact, testSources)
	require.NoError(t, err)
	assert.Equal(t, []string{Songplays}, names(fact))

	dims, err := StageStatements(d, StageInsertDimensions, testSources)
	require.NoError(t, err)
	assert.Equal(t, []string{Users, Songs, Artists, Time}, names(dims))

	_, err = StageStatements(d, Stage("vacuum"), testSources)
	assert.Error(t, err)
}

func TestQualityChecks(t *testing.T) {
	checks := QualityChecks(mustDialect(t, "sqlite"))
	require.Len(t, checks, 13)

	seen := map[string]bool{}
	for _, c := range checks {
		assert.False(t, seen[c.Name], "duplicate check %s", c.Name)
		seen[c.Name] = true
		assert.True(t, strings.HasPrefix(c.SQL, "SELECT COUNT(*)"), c.SQL)
	}
	assert.True(t, seen["users_pk_duplicates"])
	assert.True(t, seen["time_missing"])
	assert.True(t, seen["time_extra"])
	assert.True(t, seen["songplays_orphan_song_id"])
}

func TestJoinMissQuery(t *testing.T) {
	sql := JoinMissQuery(mustDialect(t, "redshift"))
	assert.True(t, strings.HasPrefix(sql, "SELECT COUNT(*)"))
	assert.Contains(t, sql, "NOT EXISTS")
}

func TestStagingColumnsMatchDDL(t *testing.T) {
	d := mustDialect(t, "sqlite")
	for _, stmt := range CreateTableQueries(d) {
		if stmt.Table != StagingEvents && stmt.Table != StagingSongs {
			continue
		}
		cols, err := StagingColumns(stmt.Table)
		require.NoError(t, err)

		var ddl []string
		for _, line := range strings.Split(stmt.SQL, "\n")[1:] {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			ddl = append(ddl, fields[0])
		}
		require.Len(t, ddl, len(cols), stmt.Table)
		for i, col := range cols {
			assert.Equal(t, ddl[i], col.Name)
		}
	}

	_, err := StagingColumns(Users)
	assert.Error(t, err)
}
