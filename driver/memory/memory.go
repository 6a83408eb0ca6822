package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/diskkit"
)

type memoryFile struct {
	content     []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
}

// Adapter provides an in-memory implementation of diskkit.FileSystem.
// Paths are slash separated and relative to an implicit root; "", "/" and
// "." all name the root.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]time.Time
	maxSize int64 // 0 = unlimited
	size    int64
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory filesystem adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	return &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    map[string]time.Time{"": time.Now()},
		maxSize: maxSize,
	}
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Write implements diskkit.FileWriter
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...diskkit.Option) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p = normalizePath(p)
	if p == "" {
		return &diskkit.PathError{Op: "write", Path: p, Err: diskkit.ErrIsDir}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return &diskkit.PathError{Op: "write", Path: p, Err: err}
	}

	opts := diskkit.ProcessOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[p]; isDir {
		return &diskkit.PathError{Op: "write", Path: p, Err: diskkit.ErrIsDir}
	}
	if err := a.checkParents("write", p); err != nil {
		return err
	}

	newSize := a.size + int64(len(data))
	if existing, ok := a.files[p]; ok {
		newSize -= int64(len(existing.content))
	}
	if a.maxSize > 0 && newSize > a.maxSize {
		return &diskkit.PathError{Op: "write", Path: p, Err: diskkit.ErrNoSpace}
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = diskkit.DetectContentType(p, data)
	}

	a.ensureParentDirs(p)
	a.files[p] = &memoryFile{
		content:     data,
		contentType: contentType,
		metadata:    opts.Metadata,
		modTime:     time.Now(),
	}
	a.size = newSize

	return nil
}

// Read implements diskkit.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	data, err := a.ReadAll(ctx, p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadAll implements diskkit.FileReader. The returned slice is a copy.
func (a *Adapter) ReadAll(ctx context.Context, p string) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, ok := a.files[p]
	if !ok {
		if _, isDir := a.dirs[p]; isDir {
			return nil, &diskkit.PathError{Op: "read", Path: p, Err: diskkit.ErrIsDir}
		}
		return nil, &diskkit.PathError{Op: "read", Path: p, Err: diskkit.ErrNotExist}
	}

	return bytes.Clone(file.content), nil
}

// Delete implements diskkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p = normalizePath(p)

	a.mu.Lock()
	defer a.mu.Unlock()

	file, ok := a.files[p]
	if !ok {
		if _, isDir := a.dirs[p]; isDir {
			return &diskkit.PathError{Op: "delete", Path: p, Err: diskkit.ErrIsDir}
		}
		return &diskkit.PathError{Op: "delete", Path: p, Err: diskkit.ErrNotExist}
	}

	a.size -= int64(len(file.content))
	delete(a.files, p)
	return nil
}

// FileExists implements diskkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.files[normalizePath(p)]
	return ok, nil
}

// DirExists implements diskkit.FileReader
func (a *Adapter) DirExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.dirs[normalizePath(p)]
	return ok, nil
}

// Stat implements diskkit.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*diskkit.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if file, ok := a.files[p]; ok {
		info := fileInfo(p, file)
		return &info, nil
	}
	if modTime, ok := a.dirs[p]; ok {
		info := dirInfo(p, modTime)
		return &info, nil
	}

	return nil, &diskkit.PathError{Op: "stat", Path: p, Err: diskkit.ErrNotExist}
}

func fileInfo(p string, f *memoryFile) diskkit.FileInfo {
	return diskkit.FileInfo{
		Name:        path.Base(p),
		Path:        p,
		Size:        int64(len(f.content)),
		ModTime:     f.modTime,
		ContentType: f.contentType,
		Metadata:    f.metadata,
	}
}

func dirInfo(p string, modTime time.Time) diskkit.FileInfo {
	name := path.Base(p)
	if p == "" {
		name = "/"
	}
	return diskkit.FileInfo{
		Name:    name,
		Path:    p,
		ModTime: modTime,
		IsDir:   true,
	}
}

// ListContents implements diskkit.FileReader. Results are sorted by path.
func (a *Adapter) ListContents(ctx context.Context, p string, recursive bool) ([]diskkit.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.dirs[p]; !ok {
		if _, isFile := a.files[p]; isFile {
			return nil, &diskkit.PathError{Op: "listcontents", Path: p, Err: diskkit.ErrNotDir}
		}
		return nil, &diskkit.PathError{Op: "listcontents", Path: p, Err: diskkit.ErrNotExist}
	}

	var files []diskkit.FileInfo
	for filePath, file := range a.files {
		if isChild(p, filePath, recursive) {
			files = append(files, fileInfo(filePath, file))
		}
	}
	for dirPath, modTime := range a.dirs {
		if dirPath != "" && isChild(p, dirPath, recursive) {
			files = append(files, dirInfo(dirPath, modTime))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// isChild reports whether candidate lies under dir, directly unless
// recursive is set.
func isChild(dir, candidate string, recursive bool) bool {
	rel := candidate
	if dir != "" {
		if !strings.HasPrefix(candidate, dir+"/") {
			return false
		}
		rel = strings.TrimPrefix(candidate, dir+"/")
	}
	if rel == "" {
		return false
	}
	return recursive || !strings.Contains(rel, "/")
}

// CreateDir implements diskkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p = normalizePath(p)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.files[p]; ok {
		return &diskkit.PathError{Op: "createdir", Path: p, Err: diskkit.ErrExist}
	}
	if err := a.checkParents("createdir", p); err != nil {
		return err
	}

	a.ensureParentDirs(p)
	if _, ok := a.dirs[p]; !ok {
		a.dirs[p] = time.Now()
	}
	return nil
}

// DeleteDir implements diskkit.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p = normalizePath(p)
	if p == "" {
		return &diskkit.PathError{Op: "deletedir", Path: p, Err: diskkit.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.dirs[p]; !ok {
		if _, isFile := a.files[p]; isFile {
			return &diskkit.PathError{Op: "deletedir", Path: p, Err: diskkit.ErrNotDir}
		}
		return &diskkit.PathError{Op: "deletedir", Path: p, Err: diskkit.ErrNotExist}
	}

	for filePath, file := range a.files {
		if isChild(p, filePath, true) {
			a.size -= int64(len(file.content))
			delete(a.files, filePath)
		}
	}
	for dirPath := range a.dirs {
		if dirPath == p || isChild(p, dirPath, true) {
			delete(a.dirs, dirPath)
		}
	}

	return nil
}

// Move implements diskkit.CanMove for files. An existing dst is replaced
// only with diskkit.WithOverwrite(true).
func (a *Adapter) Move(ctx context.Context, src, dst string, options ...diskkit.Option) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	src = normalizePath(src)
	dst = normalizePath(dst)
	opts := diskkit.ProcessOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	file, ok := a.files[src]
	if !ok {
		if _, isDir := a.dirs[src]; isDir {
			return &diskkit.PathError{Op: "move", Path: src, Err: diskkit.ErrIsDir}
		}
		return &diskkit.PathError{Op: "move", Path: src, Err: diskkit.ErrNotExist}
	}
	if src == dst {
		if !opts.Overwrite {
			return &diskkit.PathError{Op: "move", Path: dst, Err: diskkit.ErrExist}
		}
		return nil
	}

	if _, isDir := a.dirs[dst]; isDir {
		return &diskkit.PathError{Op: "move", Path: dst, Err: diskkit.ErrIsDir}
	}
	if existing, exists := a.files[dst]; exists {
		if !opts.Overwrite {
			return &diskkit.PathError{Op: "move", Path: dst, Err: diskkit.ErrExist}
		}
		a.size -= int64(len(existing.content))
	}
	if err := a.checkParents("move", dst); err != nil {
		return err
	}

	a.ensureParentDirs(dst)
	file.modTime = time.Now()
	a.files[dst] = file
	delete(a.files, src)

	return nil
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// checkParents fails when an ancestor of p is a file.
// Must be called with lock held.
func (a *Adapter) checkParents(op, p string) error {
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, isFile := a.files[dir]; isFile {
			return &diskkit.PathError{Op: op, Path: p, Err: diskkit.ErrNotDir}
		}
	}
	return nil
}

// ensureParentDirs creates all parent directories for a given path.
// Must be called with lock held.
func (a *Adapter) ensureParentDirs(p string) {
	now := time.Now()
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, ok := a.dirs[dir]; !ok {
			a.dirs[dir] = now
		}
	}
}

// normalizePath cleans p and strips the leading slash. Traversal above the
// root is clamped to the root.
func normalizePath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

var (
	_ diskkit.FileSystem = (*Adapter)(nil)
	_ diskkit.CanMove    = (*Adapter)(nil)
)
