package queries

import (
	"bytes"
	"fmt"
	"strings"
)

// Check is a data-quality query. It returns a single count that must be zero.
type Check struct {
	Name        string
	Description string
	Table       string
	SQL         string
}

type checkTarget struct {
	Table string
	Key   string
}

// QualityChecks returns the post-load checks: primary keys of the dimensions
// are unique and non-null, every songplay resolves to a song, an artist and a
// user, and time holds exactly the distinct songplay start times.
func QualityChecks(d Dialect) []Check {
	var out []Check

	for _, target := range []checkTarget{{Users, "user_id"}, {Songs, "song_id"}, {Artists, "artist_id"}, {Time, "start_time"}} {
		out = append(out,
			Check{
				Name:        target.Table + "_pk_duplicates",
				Description: fmt.Sprintf("duplicate %s values in %s", target.Key, target.Table),
				Table:       target.Table,
				SQL:         renderCheck("check_pk_duplicates", target),
			},
			Check{
				Name:        target.Table + "_pk_nulls",
				Description: fmt.Sprintf("NULL %s values in %s", target.Key, target.Table),
				Table:       target.Table,
				SQL:         renderCheck("check_pk_nulls", target),
			},
		)
	}

	for _, target := range []checkTarget{{Songs, "song_id"}, {Artists, "artist_id"}, {Users, "user_id"}} {
		out = append(out, Check{
			Name:        "songplays_orphan_" + target.Key,
			Description: fmt.Sprintf("songplays whose %s is missing from %s", target.Key, target.Table),
			Table:       Songplays,
			SQL:         renderCheck("check_orphans", target),
		})
	}

	out = append(out,
		Check{
			Name:        "time_missing",
			Description: "songplay start times absent from time",
			Table:       Time,
			SQL:         renderCheck("check_time_missing", checkTarget{}),
		},
		Check{
			Name:        "time_extra",
			Description: "time rows not backed by a songplay",
			Table:       Time,
			SQL:         renderCheck("check_time_extra", checkTarget{}),
		},
	)

	return out
}

func renderCheck(name string, target checkTarget) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, target); err != nil {
		panic(err)
	}
	return strings.TrimSpace(buf.String())
}
