package staging

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"starload/internal/common"
	"starload/internal/objectstore"
	"starload/pkg/errors"
)

// Reader lists and opens the objects under a source location, either a local
// path or an s3:// prefix
type Reader struct {
	store *objectstore.Store
}

// NewReader creates a reader. store may be nil when only local paths are read.
func NewReader(store *objectstore.Store) *Reader {
	return &Reader{store: store}
}

// Object is one source file
type Object struct {
	URI  string
	Size int64

	bucket, key string
}

// List returns the objects under location sorted by name. A location naming a
// single file yields that file. Hidden files and directories are skipped.
func (r *Reader) List(ctx context.Context, location string) ([]Object, error) {
	if objectstore.IsS3(location) {
		return r.listS3(ctx, location)
	}
	return listLocal(location)
}

func (r *Reader) listS3(ctx context.Context, location string) ([]Object, error) {
	if r.store == nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "S3 sources need an object store").
			WithContext("location", location)
	}
	loc, err := objectstore.ParseURI(location)
	if err != nil {
		return nil, err
	}
	listed, err := r.store.List(ctx, loc)
	if err != nil {
		return nil, err
	}

	out := make([]Object, 0, len(listed))
	for _, obj := range listed {
		if hidden(obj.Key) {
			continue
		}
		out = append(out, Object{
			URI:    objectstore.Location{Bucket: loc.Bucket, Prefix: obj.Key}.String(),
			Size:   obj.Size,
			bucket: loc.Bucket,
			key:    obj.Key,
		})
	}
	return out, nil
}

func listLocal(location string) ([]Object, error) {
	path, err := common.CleanPath(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid source path").
			WithContext("location", location)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceNotFound, "Source not found").
			WithContext("location", location)
	}
	if !info.IsDir() {
		return []Object{{URI: path, Size: info.Size()}}, nil
	}

	var out []Object
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != path && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{URI: p, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceAccess, "Failed to walk source directory").
			WithContext("location", location)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

// Open returns the contents of obj. The caller closes the reader.
func (r *Reader) Open(ctx context.Context, obj Object) (io.ReadCloser, error) {
	if obj.bucket != "" {
		return r.store.Open(ctx, obj.bucket, obj.key)
	}
	f, err := os.Open(obj.URI) // #nosec G304 - path comes from the configured source
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceAccess, "Failed to open source file").
			WithContext("path", obj.URI)
	}
	return f, nil
}

// ReadAll reads a single document such as a JSONPaths file
func (r *Reader) ReadAll(ctx context.Context, location string) ([]byte, error) {
	if objectstore.IsS3(location) {
		if r.store == nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "S3 sources need an object store").
				WithContext("location", location)
		}
		return r.store.Read(ctx, location)
	}

	path, err := common.CleanPath(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid source path").
			WithContext("location", location)
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the configured source
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceNotFound, "Failed to read source file").
			WithContext("path", path)
	}
	return data, nil
}

func hidden(key string) bool {
	for _, part := range strings.Split(key, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
