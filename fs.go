package diskkit

import (
	"context"
	"io"
	"time"
)

// FileInfo represents file/directory metadata
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	ModTime     time.Time
	IsDir       bool
	ContentType string
	Metadata    map[string]string
}

// ============================================================================
// Backend Adapter Capability (Interface Segregation)
// ============================================================================

// FileReader provides read-only access to a single storage medium.
type FileReader interface {
	// Read returns a stream for reading file content.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// ReadAll reads entire file into memory.
	ReadAll(ctx context.Context, path string) ([]byte, error)

	// FileExists checks if a file exists at path.
	FileExists(ctx context.Context, path string) (bool, error)

	// DirExists checks if a directory exists at path.
	DirExists(ctx context.Context, path string) (bool, error)

	// Stat returns file/directory metadata.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// ListContents lists directory contents.
	// If recursive is true, includes all descendants.
	ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error)
}

// FileWriter provides write operations.
type FileWriter interface {
	// Write creates or overwrites path with the content of r.
	Write(ctx context.Context, path string, r io.Reader, opts ...Option) error

	// Delete removes a file. Deleting a missing file reports ErrNotExist.
	Delete(ctx context.Context, path string) error

	// CreateDir creates a directory (and parents if needed).
	CreateDir(ctx context.Context, path string) error

	// DeleteDir removes a directory and all contents.
	DeleteDir(ctx context.Context, path string) error
}

// FileSystem is the capability set every backend adapter implements.
// The Storage facade only ever talks to adapters through this interface.
type FileSystem interface {
	FileReader
	FileWriter
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// Use type assertion to check if an adapter supports a capability:
//
//	if mover, ok := fs.(CanMove); ok {
//	    mover.Move(ctx, src, dst, WithOverwrite(true))
//	}

// CanMove indicates the adapter supports moving/renaming files.
// Without WithOverwrite(true) the move fails with ErrExist when dst exists.
type CanMove interface {
	Move(ctx context.Context, src, dst string, opts ...Option) error
}
