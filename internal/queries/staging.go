package queries

import (
	"fmt"

	"starload/pkg/errors"
)

// ColumnKind is the value class of a staging column
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindFloat
	KindInt
)

// Column is one staging column in table order
type Column struct {
	Name string
	Kind ColumnKind
}

var stagingColumns = map[string][]Column{
	StagingEvents: {
		{"artist", KindText},
		{"auth", KindText},
		{"firstName", KindText},
		{"gender", KindText},
		{"itemInSession", KindInt},
		{"lastName", KindText},
		{"length", KindFloat},
		{"level", KindText},
		{"location", KindText},
		{"method", KindText},
		{"page", KindText},
		{"registration", KindText},
		{"sessionId", KindInt},
		{"song", KindText},
		{"status", KindInt},
		{"ts", KindInt},
		{"userAgent", KindText},
		{"userId", KindText},
	},
	StagingSongs: {
		{"num_songs", KindInt},
		{"artist_id", KindText},
		{"artist_latitude", KindFloat},
		{"artist_longitude", KindFloat},
		{"artist_location", KindText},
		{"artist_name", KindText},
		{"song_id", KindText},
		{"title", KindText},
		{"duration", KindFloat},
		{"year", KindInt},
	},
}

// StagingColumns returns the columns of a staging table in DDL order
func StagingColumns(table string) ([]Column, error) {
	cols, ok := stagingColumns[table]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s is not a staging table", table))
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return out, nil
}
