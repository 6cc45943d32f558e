package queries

import (
	"fmt"
	"strings"

	"starload/pkg/errors"
)

// ColumnTypes are the dialect spellings of the column types used by the schema
type ColumnTypes struct {
	Text       string // unbounded staging text
	Float      string
	BigInt     string
	Timestamp  string
	SongplayID string // surrogate key column, including PRIMARY KEY
}

// Dialect renders the parts of the schema that differ between engines
type Dialect interface {
	Name() string
	Types() ColumnTypes
	// EpochMillis converts an epoch-millisecond column to a timestamp
	EpochMillis(col string) string
	// DatePart extracts hour, day, week, month, year or weekday from a
	// timestamp. week is the ISO week; weekday runs 1 (Monday) to 7 (Sunday).
	DatePart(part, col string) string
	// ServerCopy reports whether the engine loads object storage itself
	ServerCopy() bool
}

// Widths of bounded text columns, applied the same way in every table
const (
	IdentifierWidth = 32
	CodeWidth       = 16
	FreeTextWidth   = 512
)

var dialects = map[string]Dialect{
	"redshift":  redshift{},
	"snowflake": snowflake{},
	"sqlite":    sqlite{},
}

// DialectFor looks up a dialect by name
func DialectFor(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Unknown SQL dialect '%s'", name)).
			WithSuggestions("Use one of: redshift, snowflake, sqlite")
	}
	return d, nil
}

type redshift struct{}

func (redshift) Name() string { return "redshift" }

func (redshift) Types() ColumnTypes {
	return ColumnTypes{
		Text:       "VARCHAR(65535)",
		Float:      "DOUBLE PRECISION",
		BigInt:     "BIGINT",
		Timestamp:  "TIMESTAMP",
		SongplayID: "BIGINT IDENTITY(0,1) PRIMARY KEY",
	}
}

func (redshift) EpochMillis(col string) string {
	return fmt.Sprintf("TIMESTAMP 'epoch' + %s * INTERVAL '0.001 second'", col)
}

func (redshift) DatePart(part, col string) string {
	switch part {
	case "weekday":
		// DOW is 0 for Sunday
		return fmt.Sprintf("((EXTRACT(DOW FROM %s) + 6) %% 7) + 1", col)
	default:
		return fmt.Sprintf("EXTRACT(%s FROM %s)", strings.ToUpper(part), col)
	}
}

func (redshift) ServerCopy() bool { return true }

type snowflake struct{}

func (snowflake) Name() string { return "snowflake" }

func (snowflake) Types() ColumnTypes {
	return ColumnTypes{
		Text:       "VARCHAR",
		Float:      "FLOAT",
		BigInt:     "NUMBER(19,0)",
		Timestamp:  "TIMESTAMP_NTZ(3)",
		SongplayID: "NUMBER AUTOINCREMENT START 0 INCREMENT 1 PRIMARY KEY",
	}
}

func (snowflake) EpochMillis(col string) string {
	return fmt.Sprintf("TO_TIMESTAMP_NTZ(%s, 3)", col)
}

func (snowflake) DatePart(part, col string) string {
	fn := map[string]string{
		"hour":    "HOUR",
		"day":     "DAY",
		"week":    "WEEKISO",
		"month":   "MONTH",
		"year":    "YEAR",
		"weekday": "DAYOFWEEKISO",
	}[part]
	return fmt.Sprintf("%s(%s)", fn, col)
}

func (snowflake) ServerCopy() bool { return true }

// sqlite stores timestamps as ISO-8601 text with millisecond precision
type sqlite struct{}

func (sqlite) Name() string { return "sqlite" }

func (sqlite) Types() ColumnTypes {
	return ColumnTypes{
		Text:       "TEXT",
		Float:      "REAL",
		BigInt:     "INTEGER",
		Timestamp:  "TEXT",
		SongplayID: "INTEGER PRIMARY KEY AUTOINCREMENT",
	}
}

func (sqlite) EpochMillis(col string) string {
	return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:%%S', %[1]s / 1000, 'unixepoch') || '.' || printf('%%03d', %[1]s %% 1000)", col)
}

func (sqlite) DatePart(part, col string) string {
	format := map[string]string{
		"hour":    "%H",
		"day":     "%d",
		"week":    "%V",
		"month":   "%m",
		"year":    "%Y",
		"weekday": "%u",
	}[part]
	return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", format, col)
}

func (sqlite) ServerCopy() bool { return false }
