package diskkit

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Disk runs operations against one named disk of a Storage, regardless of
// the Storage's active disk. It is safe for concurrent use.
type Disk struct {
	storage *Storage
	name    string
}

// Name returns the disk name.
func (d *Disk) Name() string {
	return d.name
}

// Adapter returns the disk's adapter, building it if needed.
func (d *Disk) Adapter(ctx context.Context) (FileSystem, error) {
	fs, err := d.storage.resolve(ctx, d.name)
	if err != nil {
		return nil, &StorageError{Op: "adapter", Disk: d.name, Kind: ErrAdapterUnavailable, Err: err}
	}
	return fs, nil
}

func (d *Disk) log(op, path string) logrus.FieldLogger {
	return d.storage.logger.WithFields(logrus.Fields{
		"disk": d.name,
		"op":   op,
		"path": path,
	})
}

// adapter resolves the adapter for op, or returns the error the operation
// should report.
func (d *Disk) adapter(ctx context.Context, op, path string) (FileSystem, error) {
	fs, err := d.storage.resolve(ctx, d.name)
	if err != nil {
		return nil, &StorageError{Op: op, Disk: d.name, Path: path, Kind: ErrAdapterUnavailable, Err: err}
	}
	return fs, nil
}

// classify turns an adapter error into a StorageError, reporting missing
// paths as ErrNotFound.
func (d *Disk) classify(op, path string, err error) error {
	kind := ErrBackend
	if IsNotExist(err) {
		kind = ErrNotFound
	}
	return &StorageError{Op: op, Disk: d.name, Path: path, Kind: kind, Err: err}
}

func (d *Disk) backend(op, path string, err error) error {
	return &StorageError{Op: op, Disk: d.name, Path: path, Kind: ErrBackend, Err: err}
}

func (d *Disk) observe(op string, start time.Time, err error) {
	d.storage.metrics.recordOperation(d.name, op, start, err)
}

// Read returns the full content of path.
// Errors: ErrNotFound, ErrBackend, ErrAdapterUnavailable.
func (d *Disk) Read(ctx context.Context, path string) (data []byte, err error) {
	const op = "read"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, path)
	if err != nil {
		return nil, err
	}

	data, err = fs.ReadAll(ctx, path)
	if err != nil {
		return nil, d.classify(op, path, err)
	}
	return data, nil
}

// Write creates or overwrites path with content. Without WithContentType
// the type is guessed from the path and content.
// Errors: ErrBackend, ErrAdapterUnavailable.
func (d *Disk) Write(ctx context.Context, path string, content []byte, opts ...Option) (err error) {
	const op = "write"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, path)
	if err != nil {
		return err
	}

	if ProcessOptions(opts...).ContentType == "" {
		opts = append(opts, WithContentType(DetectContentType(path, content)))
	}

	if err = fs.Write(ctx, path, bytes.NewReader(content), opts...); err != nil {
		return d.backend(op, path, err)
	}
	return nil
}

// Delete removes the file at path. A missing file is reported, not ignored.
// Errors: ErrNotFound, ErrBackend, ErrAdapterUnavailable.
func (d *Disk) Delete(ctx context.Context, path string) (err error) {
	const op = "delete"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, path)
	if err != nil {
		return err
	}

	if err = fs.Delete(ctx, path); err != nil {
		return d.classify(op, path, err)
	}
	return nil
}

// Exists reports whether a file or directory exists at path. Any failure,
// including an unavailable adapter, is logged and reported as false.
func (d *Disk) Exists(ctx context.Context, path string) bool {
	const op = "exists"
	start := time.Now()

	exists, err := d.exists(ctx, path)
	d.observe(op, start, err)
	if err != nil {
		d.log(op, path).WithError(err).Warn("Error checking existence")
		return false
	}
	return exists
}

func (d *Disk) exists(ctx context.Context, path string) (bool, error) {
	fs, err := d.storage.resolve(ctx, d.name)
	if err != nil {
		return false, err
	}

	ok, err := fs.FileExists(ctx, path)
	if err != nil || ok {
		return ok, err
	}
	return fs.DirExists(ctx, path)
}

// UploadLocalFile copies src, a path on the machine running this process,
// to dst on the disk.
// Errors: ErrLocalRead, ErrBackend, ErrAdapterUnavailable.
func (d *Disk) UploadLocalFile(ctx context.Context, src, dst string) (err error) {
	const op = "upload"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	f, err := os.Open(src)
	if err != nil {
		return &StorageError{Op: op, Disk: d.name, Path: src, Kind: ErrLocalRead, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &StorageError{Op: op, Disk: d.name, Path: src, Kind: ErrLocalRead, Err: err}
	}
	if info.IsDir() {
		return &StorageError{Op: op, Disk: d.name, Path: src, Kind: ErrLocalRead, Err: ErrIsDir}
	}

	fs, err := d.adapter(ctx, op, dst)
	if err != nil {
		return err
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(512)
	tracked := &trackingReader{r: br}

	err = fs.Write(ctx, dst, tracked, WithContentType(DetectContentType(src, head)))
	if tracked.err != nil {
		return &StorageError{Op: op, Disk: d.name, Path: src, Kind: ErrLocalRead, Err: tracked.err}
	}
	if err != nil {
		return d.backend(op, dst, err)
	}
	return nil
}

// trackingReader remembers the first non-EOF read error so an upload can
// tell a failing source from a failing destination.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// List returns the sorted names of the entries directly under dir ("" or
// "/" is the disk root). Any failure is logged and yields an empty slice.
func (d *Disk) List(ctx context.Context, dir string) []string {
	const op = "list"
	start := time.Now()

	entries, err := d.list(ctx, dir)
	d.observe(op, start, err)
	if err != nil {
		entry := d.log(op, dir).WithError(err)
		if IsNotExist(err) {
			entry.Warn("Directory not found")
		} else {
			entry.Error("Error listing directory")
		}
		return []string{}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

func (d *Disk) list(ctx context.Context, dir string) ([]FileInfo, error) {
	fs, err := d.storage.resolve(ctx, d.name)
	if err != nil {
		return nil, err
	}
	return fs.ListContents(ctx, rootIfEmpty(dir), false)
}

// Move renames src to dst. Unless overwrite is set, an existing dst makes
// the move fail. Every failure, including a missing source or an adapter
// without move support, is reported as ErrBackend.
func (d *Disk) Move(ctx context.Context, src, dst string, overwrite bool) (err error) {
	const op = "move"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, src)
	if err != nil {
		return err
	}

	mover, ok := fs.(CanMove)
	if !ok {
		return d.backend(op, src, &PathError{Op: op, Path: src, Err: ErrNotSupported})
	}

	if err = mover.Move(ctx, src, dst, WithOverwrite(overwrite)); err != nil {
		return d.backend(op, src, fmt.Errorf("move to %s: %w", dst, err))
	}
	return nil
}

// Stat returns metadata for the file or directory at path.
// Errors: ErrNotFound, ErrBackend, ErrAdapterUnavailable.
func (d *Disk) Stat(ctx context.Context, path string) (info *FileInfo, err error) {
	const op = "stat"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, path)
	if err != nil {
		return nil, err
	}

	info, err = fs.Stat(ctx, path)
	if err != nil {
		return nil, d.classify(op, path, err)
	}
	return info, nil
}

// MakeDirectory creates dir and any missing parents.
// Errors: ErrBackend, ErrAdapterUnavailable.
func (d *Disk) MakeDirectory(ctx context.Context, dir string) (err error) {
	const op = "mkdir"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, dir)
	if err != nil {
		return err
	}

	if err = fs.CreateDir(ctx, dir); err != nil {
		return d.backend(op, dir, err)
	}
	return nil
}

// DeleteDirectory removes dir and everything below it.
// Errors: ErrNotFound, ErrBackend, ErrAdapterUnavailable.
func (d *Disk) DeleteDirectory(ctx context.Context, dir string) (err error) {
	const op = "rmdir"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, dir)
	if err != nil {
		return err
	}

	if err = fs.DeleteDir(ctx, dir); err != nil {
		return d.classify(op, dir, err)
	}
	return nil
}

// Checksum streams path through the given hash and returns it hex-encoded.
// Errors: ErrNotFound, ErrBackend (also for an unknown algorithm),
// ErrAdapterUnavailable.
func (d *Disk) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (sum string, err error) {
	const op = "checksum"
	defer func(start time.Time) { d.observe(op, start, err) }(time.Now())

	fs, err := d.adapter(ctx, op, path)
	if err != nil {
		return "", err
	}

	sum, err = FileChecksum(ctx, fs, path, algorithm)
	if err != nil {
		return "", d.classify(op, path, err)
	}
	return sum, nil
}

// Find returns the files under dir matching selector, descending into
// subdirectories when recursive is set. Like List it never fails.
func (d *Disk) Find(ctx context.Context, dir string, selector FileSelector, recursive bool) []FileInfo {
	const op = "find"
	start := time.Now()

	files, err := d.find(ctx, dir, selector, recursive)
	d.observe(op, start, err)
	if err != nil {
		d.log(op, dir).WithError(err).Warn("Error searching directory")
		return []FileInfo{}
	}
	if files == nil {
		files = []FileInfo{}
	}
	return files
}

func (d *Disk) find(ctx context.Context, dir string, selector FileSelector, recursive bool) ([]FileInfo, error) {
	fs, err := d.storage.resolve(ctx, d.name)
	if err != nil {
		return nil, err
	}
	return ListWithSelector(ctx, fs, rootIfEmpty(dir), selector, recursive)
}

func rootIfEmpty(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}
