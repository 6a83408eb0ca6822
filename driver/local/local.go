package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gobeaver/diskkit"
)

// Adapter provides a local filesystem implementation of diskkit.FileSystem
// rooted at an absolute, symlink-free directory.
type Adapter struct {
	root string
}

// AdapterOption configures the local adapter.
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	createRoot bool
}

// WithCreateRoot makes New create a missing root directory and its parents.
func WithCreateRoot(create bool) AdapterOption {
	return func(o *adapterOptions) {
		o.createRoot = create
	}
}

// New resolves root to an absolute path with symlinks evaluated. A missing
// root fails with diskkit.ErrNotExist unless WithCreateRoot(true) is given.
func New(root string, options ...AdapterOption) (*Adapter, error) {
	var opts adapterOptions
	for _, opt := range options {
		opt(&opts)
	}

	if root == "" {
		return nil, fmt.Errorf("local root is required")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}

	if opts.createRoot {
		if err := os.MkdirAll(absRoot, 0755); err != nil {
			return nil, fmt.Errorf("create root %q: %w", absRoot, err)
		}
	} else if _, err := os.Stat(absRoot); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("root %q: %w", absRoot, diskkit.ErrNotExist)
	}

	resolved, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", absRoot, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", resolved, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q: %w", resolved, diskkit.ErrNotDir)
	}

	return &Adapter{root: resolved}, nil
}

// Root returns the resolved root directory.
func (a *Adapter) Root() string {
	return a.root
}

// fullPath maps a disk path to a path under root, rejecting escapes.
func (a *Adapter) fullPath(op, path string) (string, error) {
	full := filepath.Join(a.root, filepath.Clean("/"+path))
	if !isPathUnderRoot(a.root, full) {
		return "", &diskkit.PathError{Op: op, Path: path, Err: diskkit.ErrNotAllowed}
	}
	return full, nil
}

func mapError(op, path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &diskkit.PathError{Op: op, Path: path, Err: diskkit.ErrNotExist}
	case errors.Is(err, os.ErrPermission):
		return &diskkit.PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %v", diskkit.ErrPermission, err)}
	default:
		return &diskkit.PathError{Op: op, Path: path, Err: err}
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

// Write implements diskkit.FileWriter. Content goes to a temporary file in
// the target directory which is then renamed over path.
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...diskkit.Option) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	fullPath, err := a.fullPath("write", path)
	if err != nil {
		return err
	}

	if info, err := os.Stat(fullPath); err == nil && info.IsDir() {
		return &diskkit.PathError{Op: "write", Path: path, Err: diskkit.ErrIsDir}
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return mapError("write", path, err)
	}

	tmpPath := filepath.Join(dir, ".diskkit-"+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return mapError("write", path, err)
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return &diskkit.PathError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return &diskkit.PathError{Op: "write", Path: path, Err: err}
	}

	opts := diskkit.ProcessOptions(options...)
	switch opts.Visibility {
	case diskkit.Public:
		err = os.Chmod(tmpPath, 0644)
	case diskkit.Private:
		err = os.Chmod(tmpPath, 0600)
	}
	if err != nil {
		os.Remove(tmpPath)
		return mapError("write", path, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return mapError("write", path, err)
	}

	return nil
}

// Read implements diskkit.FileReader
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	fullPath, err := a.fullPath("read", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("read", path, err)
	}
	if info.IsDir() {
		return nil, &diskkit.PathError{Op: "read", Path: path, Err: diskkit.ErrIsDir}
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, mapError("read", path, err)
	}
	return f, nil
}

// ReadAll implements diskkit.FileReader
func (a *Adapter) ReadAll(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Delete implements diskkit.FileWriter. Directories are not removed.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	fullPath, err := a.fullPath("delete", path)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return mapError("delete", path, err)
	}
	if info.IsDir() {
		return &diskkit.PathError{Op: "delete", Path: path, Err: diskkit.ErrIsDir}
	}

	if err := os.Remove(fullPath); err != nil {
		return mapError("delete", path, err)
	}
	return nil
}

// FileExists implements diskkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	info, err := a.stat(ctx, "fileexists", path)
	if err != nil {
		if diskkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// DirExists implements diskkit.FileReader
func (a *Adapter) DirExists(ctx context.Context, path string) (bool, error) {
	info, err := a.stat(ctx, "direxists", path)
	if err != nil {
		if diskkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (a *Adapter) stat(ctx context.Context, op, path string) (os.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	fullPath, err := a.fullPath(op, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError(op, path, err)
	}
	return info, nil
}

// Stat implements diskkit.FileReader
func (a *Adapter) Stat(ctx context.Context, path string) (*diskkit.FileInfo, error) {
	info, err := a.stat(ctx, "stat", path)
	if err != nil {
		return nil, err
	}

	full, _ := a.fullPath("stat", path)
	fi := toFileInfo(a.relative(full), info)
	if !info.IsDir() {
		fi.ContentType = a.sniff(path)
	}
	return &fi, nil
}

// sniff reads the first bytes of a file when the extension is not enough.
func (a *Adapter) sniff(path string) string {
	full, err := a.fullPath("stat", path)
	if err != nil {
		return ""
	}
	f, err := os.Open(full)
	if err != nil {
		return diskkit.DetectContentType(path, nil)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	return diskkit.DetectContentType(path, head[:n])
}

func toFileInfo(path string, info os.FileInfo) diskkit.FileInfo {
	fi := diskkit.FileInfo{
		Name:    info.Name(),
		Path:    filepath.ToSlash(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if info.IsDir() {
		fi.Size = 0
	} else {
		fi.ContentType = diskkit.DetectContentType(path, nil)
	}
	return fi
}

// ListContents implements diskkit.FileReader. Paths in the result are
// relative to the disk root and use forward slashes.
func (a *Adapter) ListContents(ctx context.Context, path string, recursive bool) ([]diskkit.FileInfo, error) {
	info, err := a.stat(ctx, "listcontents", path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &diskkit.PathError{Op: "listcontents", Path: path, Err: diskkit.ErrNotDir}
	}

	fullPath, _ := a.fullPath("listcontents", path)

	if !recursive {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return nil, mapError("listcontents", path, err)
		}

		files := make([]diskkit.FileInfo, 0, len(entries))
		for _, entry := range entries {
			if isTempFile(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				// Removed between ReadDir and Info
				continue
			}
			files = append(files, toFileInfo(a.relative(filepath.Join(fullPath, entry.Name())), info))
		}
		return files, nil
	}

	var files []diskkit.FileInfo
	err = filepath.WalkDir(fullPath, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if walkPath == fullPath {
			return nil
		}
		if err := checkContext(ctx); err != nil {
			return err
		}
		if isTempFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, toFileInfo(a.relative(walkPath), info))
		return nil
	})
	if err != nil {
		return nil, mapError("listcontents", path, err)
	}

	return files, nil
}

func (a *Adapter) relative(full string) string {
	rel, err := filepath.Rel(a.root, full)
	if err != nil {
		return full
	}
	if rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// CreateDir implements diskkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	fullPath, err := a.fullPath("createdir", path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return mapError("createdir", path, err)
	}
	return nil
}

// DeleteDir implements diskkit.FileWriter. The root itself cannot be deleted.
func (a *Adapter) DeleteDir(ctx context.Context, path string) error {
	info, err := a.stat(ctx, "deletedir", path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &diskkit.PathError{Op: "deletedir", Path: path, Err: diskkit.ErrNotDir}
	}

	fullPath, _ := a.fullPath("deletedir", path)
	if fullPath == a.root {
		return &diskkit.PathError{Op: "deletedir", Path: path, Err: diskkit.ErrNotAllowed}
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return mapError("deletedir", path, err)
	}
	return nil
}

// Move implements diskkit.CanMove. An existing dst is replaced only with
// diskkit.WithOverwrite(true).
func (a *Adapter) Move(ctx context.Context, src, dst string, options ...diskkit.Option) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	srcPath, err := a.fullPath("move", src)
	if err != nil {
		return err
	}
	dstPath, err := a.fullPath("move", dst)
	if err != nil {
		return err
	}

	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return mapError("move", src, err)
	}

	overwrite := diskkit.ProcessOptions(options...).Overwrite
	if srcPath == dstPath {
		if !overwrite {
			return &diskkit.PathError{Op: "move", Path: dst, Err: diskkit.ErrExist}
		}
		return nil
	}

	if dstInfo, err := os.Stat(dstPath); err == nil {
		if !overwrite {
			return &diskkit.PathError{Op: "move", Path: dst, Err: diskkit.ErrExist}
		}
		if dstInfo.IsDir() != srcInfo.IsDir() {
			return &diskkit.PathError{Op: "move", Path: dst, Err: diskkit.ErrIsDir}
		}
		if dstInfo.IsDir() {
			if err := os.RemoveAll(dstPath); err != nil {
				return mapError("move", dst, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return mapError("move", dst, err)
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		if srcInfo.IsDir() {
			return mapError("move", src, err)
		}
		// Cross-device rename: copy then delete
		if err := a.copyFile(srcPath, dstPath, srcInfo.Mode()); err != nil {
			return &diskkit.PathError{Op: "move", Path: dst, Err: err}
		}
		if err := os.Remove(srcPath); err != nil {
			return mapError("move", src, err)
		}
	}

	return nil
}

func (a *Adapter) copyFile(srcPath, dstPath string, mode os.FileMode) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".diskkit-") && strings.HasSuffix(name, ".tmp")
}

var (
	_ diskkit.FileSystem = (*Adapter)(nil)
	_ diskkit.CanMove    = (*Adapter)(nil)
)
