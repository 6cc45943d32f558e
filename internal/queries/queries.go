package queries

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"starload/pkg/errors"
)

//go:embed sql/*.tmpl
var sqlFS embed.FS

var templates = template.Must(template.New("sql").Funcs(template.FuncMap{
	"quote": quote,
}).ParseFS(sqlFS, "sql/*.tmpl"))

// DefaultRegion is the bucket region used when none is configured
const DefaultRegion = "us-west-2"

// quote renders s as a SQL string literal
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Stage names a step of a full load
type Stage string

const (
	StageDrop             Stage = "drop"
	StageCreate           Stage = "create"
	StageCopy             Stage = "copy"
	StageInsertFact       Stage = "insert-fact"
	StageInsertDimensions Stage = "insert-dimensions"
)

// Table names
const (
	StagingEvents = "staging_events"
	StagingSongs  = "staging_songs"
	Songplays     = "songplays"
	Users         = "users"
	Songs         = "songs"
	Artists       = "artists"
	Time          = "time"
)

// Statement is one rendered SQL statement together with what it touches
type Statement struct {
	Name  string
	Table string
	Stage Stage
	SQL   string

	// Source is set on copy statements. When the dialect has no
	// server-side COPY, SQL is empty and the load is done client-side.
	Source *CopySource
}

// CopySource describes one bulk load from object storage
type CopySource struct {
	Table     string
	Path      string
	JSONPaths string // empty means automatic field inference
	Truncate  bool   // truncate over-long strings instead of failing
}

// Sources carries the configuration the bulk loads need
type Sources struct {
	LogData            string
	SongData           string
	LogJSONPath        string
	Region             string
	IAMRole            string
	StorageIntegration string
}

type widths struct {
	ID, Code, Text int
}

type renderData struct {
	D    Dialect
	T    ColumnTypes
	W    widths
	Src  Sources
	Copy CopySource
}

func render(name string, d Dialect, src Sources, cs CopySource) (string, error) {
	var buf bytes.Buffer
	data := renderData{
		D:    d,
		T:    d.Types(),
		W:    widths{ID: IdentifierWidth, Code: CodeWidth, Text: FreeTextWidth},
		Src:  src,
		Copy: cs,
	}
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "Failed to render SQL template").
			WithContext("template", name).
			WithContext("dialect", d.Name())
	}
	return strings.TrimSpace(buf.String()), nil
}

func mustRender(name string, d Dialect) string {
	sql, err := render(name, d, Sources{}, CopySource{})
	if err != nil {
		panic(err)
	}
	return sql
}

// DropTableQueries returns the seven DROP TABLE IF EXISTS statements
func DropTableQueries(d Dialect) []Statement {
	tables := []string{StagingEvents, StagingSongs, Songplays, Users, Songs, Artists, Time}
	out := make([]Statement, 0, len(tables))
	for _, table := range tables {
		out = append(out, Statement{
			Name:  "drop_" + table,
			Table: table,
			Stage: StageDrop,
			SQL:   fmt.Sprintf("DROP TABLE IF EXISTS %s;", table),
		})
	}
	return out
}

// CreateTableQueries returns the staging, dimension and fact table DDL
func CreateTableQueries(d Dialect) []Statement {
	tables := []string{StagingEvents, StagingSongs, Artists, Users, Songs, Time, Songplays}
	out := make([]Statement, 0, len(tables))
	for _, table := range tables {
		out = append(out, Statement{
			Name:  "create_" + table,
			Table: table,
			Stage: StageCreate,
			SQL:   mustRender("create_"+table, d),
		})
	}
	return out
}

// CopyTableQueries returns the two bulk loads, songs first
func CopyTableQueries(d Dialect, src Sources) ([]Statement, error) {
	if src.LogData == "" || src.SongData == "" {
		return nil, errors.New(errors.ErrCodeRequiredField, "Both log and song data locations are required")
	}
	if d.Name() == "redshift" && src.IAMRole == "" {
		return nil, errors.New(errors.ErrCodeRequiredField, "Redshift COPY needs an IAM role ARN").
			WithContext("dialect", d.Name())
	}
	if d.ServerCopy() && src.IAMRole == "" && src.StorageIntegration == "" {
		return nil, errors.New(errors.ErrCodeRequiredField, "Bulk loads need an IAM role or storage integration").
			WithContext("dialect", d.Name())
	}
	if src.Region == "" {
		src.Region = DefaultRegion
	}

	loads := []CopySource{
		{Table: StagingSongs, Path: src.SongData, Truncate: true},
		{Table: StagingEvents, Path: src.LogData, JSONPaths: src.LogJSONPath},
	}

	out := make([]Statement, 0, len(loads))
	for i := range loads {
		cs := loads[i]
		stmt := Statement{
			Name:   "copy_" + cs.Table,
			Table:  cs.Table,
			Stage:  StageCopy,
			Source: &cs,
		}
		if d.ServerCopy() {
			sql, err := render("copy_"+d.Name(), d, src, cs)
			if err != nil {
				return nil, err
			}
			stmt.SQL = sql
		}
		out = append(out, stmt)
	}
	return out, nil
}

// InsertTableQueries returns the transforms: the fact table first, then the
// dimensions. time reads songplays and therefore comes last.
func InsertTableQueries(d Dialect) []Statement {
	out := []Statement{{
		Name:  "insert_" + Songplays,
		Table: Songplays,
		Stage: StageInsertFact,
		SQL:   mustRender("insert_"+Songplays, d),
	}}
	for _, table := range []string{Users, Songs, Artists, Time} {
		out = append(out, Statement{
			Name:  "insert_" + table,
			Table: table,
			Stage: StageInsertDimensions,
			SQL:   mustRender("insert_"+table, d),
		})
	}
	return out
}

// JoinMissQuery counts NextSong events that no staged song matches. Those
// events are left out of songplays.
func JoinMissQuery(d Dialect) string {
	return mustRender("join_misses", d)
}

// StageStatements returns the statements of one stage
func StageStatements(d Dialect, stage Stage, src Sources) ([]Statement, error) {
	switch stage {
	case StageDrop:
		return DropTableQueries(d), nil
	case StageCreate:
		return CreateTableQueries(d), nil
	case StageCopy:
		return CopyTableQueries(d, src)
	case StageInsertFact, StageInsertDimensions:
		var out []Statement
		for _, stmt := range InsertTableQueries(d) {
			if stmt.Stage == stage {
				out = append(out, stmt)
			}
		}
		return out, nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Unknown stage '%s'", stage))
	}
}
