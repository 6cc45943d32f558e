// Package staging fills the staging tables on engines without a server-side
// bulk load. It follows the semantics of the warehouse COPY: events are mapped
// by a JSONPaths document, songs by case-insensitive key matching.
package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/buger/jsonparser"

	"starload/internal/observability"
	"starload/internal/queries"
	"starload/internal/warehouse"
	"starload/pkg/errors"
)

const (
	// DefaultBatchSize is the number of rows per INSERT statement
	DefaultBatchSize = 1000
	// MaxTextBytes is the widest staging text value
	MaxTextBytes = 65535
	// maxVariables is SQLite's bound-parameter limit
	maxVariables = 32766
)

// Loader copies JSON objects into a staging table
type Loader struct {
	reader    *Reader
	batchSize int
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// Option configures a Loader
type Option func(*Loader)

// WithReader sets where sources are read from
func WithReader(r *Reader) Option {
	return func(l *Loader) { l.reader = r }
}

// WithBatchSize sets the rows per INSERT
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMetrics records staged row counts
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// NewLoader creates a loader reading local paths unless WithReader is given
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		reader:    NewReader(nil),
		batchSize: DefaultBatchSize,
		logger:    observability.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// mapping extracts one row of column values from a source object
type mapping func(obj []byte) ([]any, error)

// Load copies every object under cs.Path into cs.Table and returns the number
// of rows written. Any malformed object aborts the load.
func (l *Loader) Load(ctx context.Context, ex warehouse.Execer, cs queries.CopySource) (int64, error) {
	start := time.Now()

	columns, err := queries.StagingColumns(cs.Table)
	if err != nil {
		return 0, err
	}

	var extract mapping
	if cs.JSONPaths != "" {
		doc, err := l.reader.ReadAll(ctx, cs.JSONPaths)
		if err != nil {
			return 0, err
		}
		paths, err := ParseJSONPaths(doc)
		if err != nil {
			return 0, err
		}
		if len(paths) != len(columns) {
			return 0, errors.New(errors.ErrCodeJSONPathsInvalid,
				fmt.Sprintf("JSONPaths has %d expressions, %s has %d columns", len(paths), cs.Table, len(columns))).
				WithContext("jsonpaths", cs.JSONPaths)
		}
		extract = pathMapping(columns, paths, cs.Truncate)
	} else {
		extract = autoMapping(columns, cs.Truncate)
	}

	objects, err := l.reader.List(ctx, cs.Path)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, errors.New(errors.ErrCodeSourceNotFound, "No source objects found").
			WithContext("location", cs.Path).
			WithContext("table", cs.Table)
	}

	batch := newBatch(ex, cs.Table, columns, l.batchSize)
	for _, obj := range objects {
		if err := l.loadObject(ctx, obj, extract, batch); err != nil {
			return batch.written, errors.Wrap(err, errors.ErrCodeStagingFailed, "Load into "+cs.Table+" failed").
				WithContext("table", cs.Table).
				WithContext("object", obj.URI)
		}
	}
	if err := batch.flush(ctx); err != nil {
		return batch.written, errors.Wrap(err, errors.ErrCodeStagingFailed, "Load into "+cs.Table+" failed").
			WithContext("table", cs.Table)
	}

	if l.metrics != nil {
		l.metrics.StagedRows.WithLabelValues(cs.Table).Add(float64(batch.written))
	}
	l.logger.InfoWithFields("staged objects", map[string]interface{}{
		"table":    cs.Table,
		"objects":  len(objects),
		"rows":     batch.written,
		"duration": time.Since(start).String(),
	})
	return batch.written, nil
}

// loadObject decodes the stream of JSON objects in one file
func (l *Loader) loadObject(ctx context.Context, obj Object, extract mapping, b *batch) error {
	body, err := l.reader.Open(ctx, obj)
	if err != nil {
		return err
	}
	defer body.Close()

	dec := json.NewDecoder(bufio.NewReader(body))
	for n := 0; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, errors.ErrCodeSourceMalformed, "Malformed JSON").
				WithContext("record", n)
		}

		row, err := extract(raw)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSourceMalformed, "Cannot map record").
				WithContext("record", n)
		}
		if err := b.add(ctx, row); err != nil {
			return err
		}
	}
}

func autoMapping(columns []queries.Column, truncate bool) mapping {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		index[strings.ToLower(col.Name)] = i
	}

	return func(obj []byte) ([]any, error) {
		row := make([]any, len(columns))
		err := jsonparser.ObjectEach(obj, func(key, value []byte, dataType jsonparser.ValueType, offset int) error {
			i, ok := index[strings.ToLower(string(key))]
			if !ok {
				return nil
			}
			v, err := convert(columns[i], value, dataType, truncate)
			if err != nil {
				return err
			}
			row[i] = v
			return nil
		})
		return row, err
	}
}

func pathMapping(columns []queries.Column, paths JSONPaths, truncate bool) mapping {
	return func(obj []byte) ([]any, error) {
		if _, dataType, _, err := jsonparser.Get(obj); err != nil || dataType != jsonparser.Object {
			return nil, fmt.Errorf("record is not a JSON object")
		}
		row := make([]any, len(columns))
		for i, keys := range paths {
			value, dataType, _, err := jsonparser.Get(obj, keys...)
			if err == jsonparser.KeyPathNotFoundError {
				continue
			}
			if err != nil {
				return nil, err
			}
			v, err := convert(columns[i], value, dataType, truncate)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		return row, nil
	}
}

// convert turns a JSON value into the Go value bound for col. Empty strings
// in numeric columns load as NULL.
func convert(col queries.Column, value []byte, dataType jsonparser.ValueType, truncate bool) (any, error) {
	if dataType == jsonparser.Null || dataType == jsonparser.NotExist {
		return nil, nil
	}

	text := string(value)
	if dataType == jsonparser.String {
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return nil, err
		}
		text = s
	}

	switch col.Kind {
	case queries.KindInt:
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %q is not an integer", col.Name, text)
		}
		return int64(f), nil
	case queries.KindFloat:
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %q is not a number", col.Name, text)
		}
		return f, nil
	default:
		if len(text) > MaxTextBytes {
			if !truncate {
				return nil, fmt.Errorf("column %s: value is %d bytes, limit is %d", col.Name, len(text), MaxTextBytes)
			}
			text = truncateUTF8(text, MaxTextBytes)
		}
		return text, nil
	}
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// batch buffers rows and writes them with multi-row INSERT statements
type batch struct {
	ex      warehouse.Execer
	prefix  string
	tuple   string
	size    int
	rows    [][]any
	written int64
}

func newBatch(ex warehouse.Execer, table string, columns []queries.Column, size int) *batch {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}
	if limit := maxVariables / len(columns); size > limit {
		size = limit
	}
	return &batch{
		ex:     ex,
		prefix: fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(names, ", ")),
		tuple:  "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")",
		size:   size,
	}
}

func (b *batch) add(ctx context.Context, row []any) error {
	b.rows = append(b.rows, row)
	if len(b.rows) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batch) flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(b.prefix)
	args := make([]any, 0, len(b.rows)*len(b.rows[0]))
	for i, row := range b.rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.tuple)
		args = append(args, row...)
	}

	if _, err := b.ex.ExecContext(ctx, sb.String(), args...); err != nil {
		return errors.SQLError("Failed to insert staged rows", b.prefix, err)
	}
	b.written += int64(len(b.rows))
	b.rows = b.rows[:0]
	return nil
}
