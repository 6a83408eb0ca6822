package diskkit

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

const fakeDriver = "fake"

func init() {
	RegisterDriver(fakeDriver, func(cfg DiskConfig) (FileSystem, error) {
		return newFakeFS(), nil
	})
}

// fakeFS is an in-memory adapter used by the facade tests. Setting failWith
// makes every call fail with that error.
type fakeFS struct {
	mu       sync.Mutex
	files    map[string][]byte
	options  map[string]*Options
	dirs     map[string]bool
	failWith error
	closed   int
	closeErr error
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		files:   make(map[string][]byte),
		options: make(map[string]*Options),
		dirs:    make(map[string]bool),
	}
}

func fakeKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (f *fakeFS) fail() error {
	return f.failWith
}

func (f *fakeFS) isDir(key string) bool {
	if key == "" || f.dirs[key] {
		return true
	}
	for k := range f.files {
		if strings.HasPrefix(k, key+"/") {
			return true
		}
	}
	return false
}

func (f *fakeFS) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	data, err := f.ReadAll(ctx, p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFS) ReadAll(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	data, ok := f.files[fakeKey(p)]
	if !ok {
		return nil, &PathError{Op: "read", Path: p, Err: ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeFS) FileExists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return false, err
	}
	_, ok := f.files[fakeKey(p)]
	return ok, nil
}

func (f *fakeFS) DirExists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return false, err
	}
	return f.isDir(fakeKey(p)), nil
}

func (f *fakeFS) Stat(_ context.Context, p string) (*FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	key := fakeKey(p)
	if data, ok := f.files[key]; ok {
		return &FileInfo{Name: path.Base(key), Path: key, Size: int64(len(data))}, nil
	}
	if f.isDir(key) {
		return &FileInfo{Name: path.Base(key), Path: key, IsDir: true}, nil
	}
	return nil, &PathError{Op: "stat", Path: p, Err: ErrNotExist}
}

func (f *fakeFS) ListContents(_ context.Context, p string, recursive bool) ([]FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}

	dir := fakeKey(p)
	if !f.isDir(dir) {
		return nil, &PathError{Op: "listcontents", Path: p, Err: ErrNotExist}
	}

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := make(map[string]bool)
	var out []FileInfo
	add := func(key string, isDir bool) {
		if seen[key] {
			return
		}
		seen[key] = true
		fi := FileInfo{Name: path.Base(key), Path: key, IsDir: isDir}
		if !isDir {
			fi.Size = int64(len(f.files[key]))
			fi.ModTime = time.Now()
		}
		out = append(out, fi)
	}

	entries := make([]string, 0, len(f.files)+len(f.dirs))
	for k := range f.files {
		entries = append(entries, k)
	}
	for k := range f.dirs {
		entries = append(entries, k+"/")
	}

	for _, k := range entries {
		if !strings.HasPrefix(k, prefix) || k == prefix {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(k, prefix), "/")
		parts := strings.Split(rest, "/")
		for i := range parts {
			if i > 0 && !recursive {
				break
			}
			key := prefix + strings.Join(parts[:i+1], "/")
			isDir := i < len(parts)-1 || strings.HasSuffix(k, "/")
			add(key, isDir)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeFS) Write(_ context.Context, p string, r io.Reader, opts ...Option) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	key := fakeKey(p)
	f.files[key] = data
	f.options[key] = ProcessOptions(opts...)
	return nil
}

func (f *fakeFS) Delete(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	key := fakeKey(p)
	if _, ok := f.files[key]; !ok {
		return &PathError{Op: "delete", Path: p, Err: ErrNotExist}
	}
	delete(f.files, key)
	return nil
}

func (f *fakeFS) CreateDir(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.dirs[fakeKey(p)] = true
	return nil
}

func (f *fakeFS) DeleteDir(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	dir := fakeKey(p)
	if !f.isDir(dir) || dir == "" {
		return &PathError{Op: "deletedir", Path: p, Err: ErrNotExist}
	}
	for k := range f.files {
		if strings.HasPrefix(k, dir+"/") {
			delete(f.files, k)
		}
	}
	for k := range f.dirs {
		if k == dir || strings.HasPrefix(k, dir+"/") {
			delete(f.dirs, k)
		}
	}
	return nil
}

func (f *fakeFS) Move(_ context.Context, src, dst string, opts ...Option) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	srcKey, dstKey := fakeKey(src), fakeKey(dst)
	data, ok := f.files[srcKey]
	if !ok {
		return &PathError{Op: "move", Path: src, Err: ErrNotExist}
	}
	if _, exists := f.files[dstKey]; exists && !ProcessOptions(opts...).Overwrite {
		return &PathError{Op: "move", Path: dst, Err: ErrExist}
	}
	if srcKey == dstKey {
		return nil
	}
	f.files[dstKey] = data
	delete(f.files, srcKey)
	return nil
}

func (f *fakeFS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeFS) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// noMoveFS hides the Move method of the wrapped adapter.
type noMoveFS struct {
	FileSystem
}

var (
	_ FileSystem = (*fakeFS)(nil)
	_ CanMove    = (*fakeFS)(nil)
	_ io.Closer  = (*fakeFS)(nil)
)
