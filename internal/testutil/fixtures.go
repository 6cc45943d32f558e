package testutil

import (
	"path/filepath"
	"strings"
	"testing"
)

// Dataset locates a small song and event log sample written to disk
type Dataset struct {
	Root        string
	LogData     string
	SongData    string
	LogJSONPath string
}

// Song files, one JSON object each, keyed by their path under song_data.
// TRAAAEF has no song_id but a valid artist.
var SongFiles = map[string]string{
	"A/A/A/TRAAAAW128F429D538.json": `{"num_songs": 1, "artist_id": "ARXR32B1187FB57099", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Elena", "song_id": "SOAFBCP12A8C13CC7D", "title": "Setanta matins", "duration": 269.58322, "year": 0}`,
	"A/A/B/TRAABJL12903CDCF1A.json": `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}`,
	"A/B/A/TRABACN128F425B784.json": `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": 34.05349, "artist_longitude": -118.24532, "artist_location": "", "artist_name": "Casual", "song_id": "SOBBUGU12A8C13E95D", "title": "Setting Fire to Sleeping Giants", "duration": 207.77751, "year": 2004}`,
	"A/B/B/TRAAAEF128F4273421.json": `{"num_songs": 1, "artist_id": "ARMJAGH1187FB546F3", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "The Box Tops", "song_id": null, "title": "Soul Deep", "duration": 148.03546, "year": 1969}`,
}

// EventLines is one day of the event log, one JSON object per line. The
// first line is the reference NextSong event at ts 1542837407796.
var EventLines = []string{
	`{"artist":"Elena","auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":0,"lastName":"Smith","length":269.58322,"level":"free","location":"San Jose-Sunnyvale-Santa Clara, CA","method":"PUT","page":"NextSong","registration":1.541016707796E12,"sessionId":583,"song":"Setanta matins","status":200,"ts":1542837407796,"userAgent":"Mozilla\/5.0 (X11; Linux x86_64) Chrome\/36.0.1985.125","userId":"26"}`,
	`{"artist":"Casual","auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":1,"lastName":"Smith","length":218.93179,"level":"paid","location":"San Jose-Sunnyvale-Santa Clara, CA","method":"PUT","page":"NextSong","registration":1.541016707796E12,"sessionId":583,"song":"I Didn't Mean To","status":200,"ts":1542837800000,"userAgent":"Mozilla\/5.0 (X11; Linux x86_64) Chrome\/36.0.1985.125","userId":"26"}`,
	`{"artist":"Elena","auth":"Logged In","firstName":"Ghost","gender":"F","itemInSession":2,"lastName":"Writer","length":269.58322,"level":"paid","location":"Nowhere","method":"PUT","page":"PUT","registration":1.540919166796E12,"sessionId":12,"song":"Setanta matins","status":200,"ts":1542838000000,"userAgent":"curl","userId":"99"}`,
	`{"artist":"Elena","auth":"Logged Out","firstName":null,"gender":null,"itemInSession":0,"lastName":null,"length":269.58322,"level":"free","location":null,"method":"PUT","page":"NextSong","registration":null,"sessionId":7,"song":"Setanta matins","status":200,"ts":1542838100000,"userAgent":null,"userId":""}`,
	`{"artist":"Nobody","auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":0,"lastName":"Koch","length":100.0,"level":"free","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"PUT","page":"NextSong","registration":1.540758133796E12,"sessionId":818,"song":"Unknown Song","status":200,"ts":1542838200000,"userAgent":"Mozilla\/5.0","userId":"15"}`,
	`{"artist":"Elena","auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":0,"lastName":"Smith","length":269.58322,"level":"free","location":"San Jose-Sunnyvale-Santa Clara, CA","method":"PUT","page":"NextSong","registration":1.541016707796E12,"sessionId":583,"song":"Setanta matins","status":200,"ts":1542837407796,"userAgent":"Mozilla\/5.0 (X11; Linux x86_64) Chrome\/36.0.1985.125","userId":"26"}`,
	`{"artist":"Casual","auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":3,"lastName":"Koch","length":207.77751,"level":"paid","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"PUT","page":"NextSong","registration":1.540758133796E12,"sessionId":902,"song":"Setting Fire to Sleeping Giants","status":200,"ts":1543140000001,"userAgent":"Mozilla\/5.0","userId":"15"}`,
	`{"artist":"Elena","auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":9,"lastName":"Smith","length":269.58322,"level":"paid","location":"San Jose-Sunnyvale-Santa Clara, CA","method":"PUT","page":"NextSong","registration":1.541016707796E12,"sessionId":1200,"song":"Setanta matins","status":200,"ts":1546300799999,"userAgent":"Mozilla\/5.0 (X11; Linux x86_64) Chrome\/36.0.1985.125","userId":"26"}`,
}

// EventColumns is the column order of staging_events
var EventColumns = []string{
	"artist", "auth", "firstName", "gender", "itemInSession", "lastName", "length",
	"level", "location", "method", "page", "registration", "sessionId", "song",
	"status", "ts", "userAgent", "userId",
}

// JSONPathsDocument maps every event field by bracket notation
func JSONPathsDocument() string {
	exprs := make([]string, len(EventColumns))
	for i, col := range EventColumns {
		exprs[i] = `        "$['` + col + `']"`
	}
	return "{\n    \"jsonpaths\": [\n" + strings.Join(exprs, ",\n") + "\n    ]\n}\n"
}

// WriteDataset writes the sample under a temporary directory
func WriteDataset(t *testing.T) Dataset {
	t.Helper()
	h := NewTestHelper(t)
	root := h.TempDir()

	for name, body := range SongFiles {
		h.WriteFile(root, filepath.Join("song_data", name), body+"\n")
	}
	h.WriteFile(root, "song_data/.ipynb_checkpoints/TRAAAAW128F429D538-checkpoint.json", "not json")
	h.WriteFile(root, "log_data/2018/11/2018-11-21-events.json", strings.Join(EventLines, "\n")+"\n")
	h.WriteFile(root, "log_json_path.json", JSONPathsDocument())

	return Dataset{
		Root:        root,
		LogData:     filepath.Join(root, "log_data"),
		SongData:    filepath.Join(root, "song_data"),
		LogJSONPath: filepath.Join(root, "log_json_path.json"),
	}
}
