package staging

import (
	"fmt"
	"strings"

	"github.com/buger/jsonparser"

	"starload/pkg/errors"
)

// JSONPaths maps each staging column, in order, to a key path inside the
// source object
type JSONPaths [][]string

// ParseJSONPaths reads a document of the form {"jsonpaths": ["$['artist']", ...]}
func ParseJSONPaths(doc []byte) (JSONPaths, error) {
	var (
		paths    JSONPaths
		innerErr error
	)

	_, err := jsonparser.ArrayEach(doc, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if innerErr != nil {
			return
		}
		if dataType != jsonparser.String {
			innerErr = fmt.Errorf("expression %d is not a string", len(paths))
			return
		}
		expr, err := jsonparser.ParseString(value)
		if err != nil {
			innerErr = err
			return
		}
		keys, err := parseExpression(expr)
		if err != nil {
			innerErr = err
			return
		}
		paths = append(paths, keys)
	}, "jsonpaths")

	if err == nil {
		err = innerErr
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeJSONPathsInvalid, "Invalid JSONPaths document")
	}
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrCodeJSONPathsInvalid, "JSONPaths document has no expressions")
	}
	return paths, nil
}

// parseExpression turns $['a']['b'], $["a"], $.a.b and $['a'][0] into
// jsonparser key paths
func parseExpression(expr string) ([]string, error) {
	rest := strings.TrimSpace(expr)
	if !strings.HasPrefix(rest, "$") {
		return nil, fmt.Errorf("expression %q does not start with $", expr)
	}
	rest = rest[1:]

	var keys []string
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			if end == 0 {
				return nil, fmt.Errorf("expression %q has an empty member name", expr)
			}
			keys = append(keys, rest[:end])
			rest = rest[end:]
		case '[':
			if len(rest) > 1 && (rest[1] == '\'' || rest[1] == '"') {
				quote := rest[1]
				end := strings.IndexByte(rest[2:], quote)
				if end < 0 || len(rest) < end+4 || rest[end+3] != ']' {
					return nil, fmt.Errorf("expression %q has an unterminated member", expr)
				}
				keys = append(keys, rest[2:end+2])
				rest = rest[end+4:]
				continue
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("expression %q has an unterminated index", expr)
			}
			// array index, jsonparser understands "[n]"
			keys = append(keys, rest[:end+1])
			rest = rest[end+1:]
		default:
			return nil, fmt.Errorf("unexpected %q in expression %q", rest[0], expr)
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("expression %q selects the whole object", expr)
	}
	return keys, nil
}
