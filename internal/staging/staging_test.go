package staging

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/buger/jsonparser"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"starload/internal/observability"
	"starload/internal/queries"
	tu "starload/internal/testutil"
	"starload/pkg/errors"
)

func openStaging(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	d, err := queries.DialectFor("sqlite")
	require.NoError(t, err)
	for _, stmt := range queries.CreateTableQueries(d) {
		if stmt.Table == queries.StagingEvents || stmt.Table == queries.StagingSongs {
			_, err := db.Exec(stmt.SQL)
			require.NoError(t, err)
		}
	}
	return db
}

func TestParseJSONPaths(t *testing.T) {
	paths, err := ParseJSONPaths([]byte(`{"jsonpaths": ["$['artist']", "$.user.id", "$[\"ts\"]", "$['tags'][0]"]}`))
	require.NoError(t, err)
	assert.Equal(t, JSONPaths{{"artist"}, {"user", "id"}, {"ts"}, {"tags", "[0]"}}, paths)

	for _, doc := range []string{
		`{"paths": ["$['artist']"]}`,
		`{"jsonpaths": []}`,
		`{"jsonpaths": [1]}`,
		`{"jsonpaths": ["artist"]}`,
		`{"jsonpaths": ["$['artist"]}`,
		`{"jsonpaths": ["$"]}`,
	} {
		_, err := ParseJSONPaths([]byte(doc))
		assert.True(t, errors.HasCode(err, errors.ErrCodeJSONPathsInvalid), doc)
	}
}

func TestParseSampleJSONPaths(t *testing.T) {
	paths, err := ParseJSONPaths([]byte(tu.JSONPathsDocument()))
	require.NoError(t, err)
	require.Len(t, paths, len(tu.EventColumns))
	assert.Equal(t, []string{"userId"}, paths[len(paths)-1])
}

func TestConvert(t *testing.T) {
	text := queries.Column{Name: "artist", Kind: queries.KindText}
	integer := queries.Column{Name: "ts", Kind: queries.KindInt}
	float := queries.Column{Name: "length", Kind: queries.KindFloat}

	v, err := convert(integer, []byte("1542837407796"), jsonparser.Number, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1542837407796), v)

	v, err = convert(integer, []byte("7.0"), jsonparser.Number, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = convert(integer, []byte(""), jsonparser.String, false)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = convert(integer, []byte("abc"), jsonparser.String, false)
	assert.Error(t, err)

	v, err = convert(float, []byte("269.58322"), jsonparser.Number, false)
	require.NoError(t, err)
	assert.Equal(t, 269.58322, v)

	v, err = convert(text, []byte(`Mozilla\/5.0`), jsonparser.String, false)
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0", v)

	v, err = convert(text, []byte("null"), jsonparser.Null, false)
	require.NoError(t, err)
	assert.Nil(t, v)

	long := strings.Repeat("é", MaxTextBytes)
	_, err = convert(text, []byte(long), jsonparser.String, false)
	assert.Error(t, err)

	v, err = convert(text, []byte(long), jsonparser.String, true)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(v.(string)), MaxTextBytes)
	assert.True(t, strings.HasPrefix(long, v.(string)))
}

func TestReaderListLocal(t *testing.T) {
	ds := tu.WriteDataset(t)
	r := NewReader(nil)

	objects, err := r.List(context.Background(), ds.SongData)
	require.NoError(t, err)
	require.Len(t, objects, len(tu.SongFiles))
	for _, obj := range objects {
		assert.NotContains(t, obj.URI, ".ipynb_checkpoints")
	}
	assert.True(t, objects[0].URI < objects[1].URI)

	single, err := r.List(context.Background(), "file://"+ds.LogJSONPath)
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = r.List(context.Background(), ds.Root+"/missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceNotFound))

	_, err = r.List(context.Background(), "s3://udacity-dend/song_data")
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestLoadSongsAuto(t *testing.T) {
	ds := tu.WriteDataset(t)
	db := openStaging(t)
	metrics := observability.NewMetrics()
	loader := NewLoader(WithMetrics(metrics), WithBatchSize(2), WithLogger(tu.NewTestLogger(t)))

	n, err := loader.Load(context.Background(), db, queries.CopySource{
		Table:    queries.StagingSongs,
		Path:     ds.SongData,
		Truncate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.StagedRows.WithLabelValues(queries.StagingSongs)))

	var nullSongs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM staging_songs WHERE song_id IS NULL`).Scan(&nullSongs))
	assert.Equal(t, 1, nullSongs)

	var (
		title    string
		duration float64
		lat      sql.NullFloat64
	)
	require.NoError(t, db.QueryRow(`SELECT title, duration, artist_latitude FROM staging_songs WHERE song_id = 'SOAFBCP12A8C13CC7D'`).
		Scan(&title, &duration, &lat))
	assert.Equal(t, "Setanta matins", title)
	assert.Equal(t, 269.58322, duration)
	assert.False(t, lat.Valid)
}

func TestLoadEventsWithJSONPaths(t *testing.T) {
	ds := tu.WriteDataset(t)
	db := openStaging(t)

	n, err := NewLoader().Load(context.Background(), db, queries.CopySource{
		Table:     queries.StagingEvents,
		Path:      ds.LogData,
		JSONPaths: ds.LogJSONPath,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(tu.EventLines)), n)

	var (
		ts        int64
		userID    string
		userAgent string
	)
	require.NoError(t, db.QueryRow(`SELECT ts, userId, userAgent FROM staging_events WHERE sessionId = 583 AND itemInSession = 1`).
		Scan(&ts, &userID, &userAgent))
	assert.Equal(t, int64(1542837800000), ts)
	assert.Equal(t, "26", userID)
	assert.True(t, strings.HasPrefix(userAgent, "Mozilla/5.0"))

	var anonymous int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM staging_events WHERE userId = ''`).Scan(&anonymous))
	assert.Equal(t, 1, anonymous)
}

func TestLoadJSONPathsColumnMismatch(t *testing.T) {
	ds := tu.WriteDataset(t)
	db := openStaging(t)
	h := tu.NewTestHelper(t)
	short := h.WriteFile(ds.Root, "short_paths.json", `{"jsonpaths": ["$['artist']"]}`)

	_, err := NewLoader().Load(context.Background(), db, queries.CopySource{
		Table:     queries.StagingEvents,
		Path:      ds.LogData,
		JSONPaths: short,
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeJSONPathsInvalid))
}

func TestLoadMalformedAborts(t *testing.T) {
	db := openStaging(t)
	h := tu.NewTestHelper(t)
	dir := h.TempDir()
	h.WriteFile(dir, "songs/a.json", `{"song_id": "SOA", "title": "A"}`)
	h.WriteFile(dir, "songs/b.json", `{"song_id": "SOB", "title": `)

	_, err := NewLoader().Load(context.Background(), db, queries.CopySource{
		Table: queries.StagingSongs,
		Path:  dir + "/songs",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStagingFailed, errors.GetErrorCode(err))
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceMalformed))
}

func TestLoadEmptySource(t *testing.T) {
	db := openStaging(t)
	dir := tu.NewTestHelper(t).TempDir()

	_, err := NewLoader().Load(context.Background(), db, queries.CopySource{
		Table: queries.StagingSongs,
		Path:  dir,
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceNotFound))
}
