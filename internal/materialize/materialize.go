// Package materialize writes fetched entries to a destination: a local
// directory tree or an object-storage bucket.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
)

// ErrOutsideRoot is returned when an entry path would resolve outside the
// destination root.
var ErrOutsideRoot = errors.New("materialize: path escapes destination root")

// FilesystemError records a failed filesystem operation on one entry.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("materialize: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// Writer stores the content of one entry at a repository-relative path.
// Implementations must be safe for concurrent use.
type Writer interface {
	Write(ctx context.Context, relPath string, content []byte) error
}

// Destination is a Writer that holds resources until closed.
type Destination interface {
	Writer
	io.Closer
	String() string
}

// Open returns a Destination for dest. A URL with a scheme (mem://,
// file://, s3://, gs://) opens a bucket; anything else is a local directory.
func Open(ctx context.Context, dest string) (Destination, error) {
	if strings.Contains(dest, "://") {
		bkt, err := blob.OpenBucket(ctx, dest)
		if err != nil {
			return nil, fmt.Errorf("open bucket: %w", err)
		}
		return NewBucket(bkt, dest, ""), nil
	}
	return NewDir(dest)
}

// trimRelative strips leading separators so the path is joined under the
// root rather than replacing it.
func trimRelative(relPath string) string {
	return strings.TrimLeft(relPath, `/\`)
}

// Dir writes entries below a local root directory.
type Dir struct {
	root string
}

// NewDir creates a Dir rooted at the absolute form of root. The directory
// itself is created lazily.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &FilesystemError{Op: "resolve", Path: root, Err: err}
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *Dir) Root() string { return d.root }

func (d *Dir) String() string { return d.root }

// Close implements Destination.
func (d *Dir) Close() error { return nil }

// Target returns the filesystem path for relPath, or ErrOutsideRoot when the
// cleaned path leaves the root.
func (d *Dir) Target(relPath string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(trimRelative(relPath), `\`, "/"))
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}

	target := filepath.Join(d.root, rel)
	inside, err := filepath.Rel(d.root, target)
	if err != nil || inside == "." || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, relPath)
	}
	return target, nil
}

// Write stores content at relPath, creating missing directories. The file
// is written to a temporary name and renamed into place so an existing file
// is replaced whole.
func (d *Dir) Write(_ context.Context, relPath string, content []byte) error {
	target, err := d.Target(relPath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return &FilesystemError{Op: "create", Path: target, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &FilesystemError{Op: "write", Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &FilesystemError{Op: "close", Path: target, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return &FilesystemError{Op: "chmod", Path: target, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return &FilesystemError{Op: "rename", Path: target, Err: err}
	}
	return nil
}

// Bucket writes entries as objects into a blob bucket.
type Bucket struct {
	bucket *blob.Bucket
	url    string
	prefix string
}

// NewBucket wraps bkt. Object keys are prefix followed by the entry path
// without its leading separator. The Bucket owns bkt and closes it.
func NewBucket(bkt *blob.Bucket, url, prefix string) *Bucket {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Bucket{bucket: bkt, url: url, prefix: prefix}
}

func (b *Bucket) String() string { return b.url }

// Key returns the object key for relPath.
func (b *Bucket) Key(relPath string) (string, error) {
	rel := strings.ReplaceAll(trimRelative(relPath), `\`, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, relPath)
		}
	}
	return b.prefix + rel, nil
}

// Write stores content as one object, replacing any existing object.
func (b *Bucket) Write(ctx context.Context, relPath string, content []byte) error {
	key, err := b.Key(relPath)
	if err != nil {
		return err
	}
	if err := b.bucket.WriteAll(ctx, key, content, nil); err != nil {
		return &FilesystemError{Op: "put", Path: key, Err: err}
	}
	return nil
}

// Close closes the underlying bucket.
func (b *Bucket) Close() error {
	return b.bucket.Close()
}
