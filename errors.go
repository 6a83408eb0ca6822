package diskkit

import (
	"errors"
	"fmt"
)

// Common filesystem errors
var (
	ErrNotExist     = errors.New("file does not exist")
	ErrExist        = errors.New("file already exists")
	ErrPermission   = errors.New("permission denied")
	ErrNotDir       = errors.New("not a directory")
	ErrIsDir        = errors.New("is a directory")
	ErrInvalidName  = errors.New("invalid name")
	ErrNotSupported = errors.New("operation not supported")
	ErrNotAllowed   = errors.New("operation not allowed")
	ErrNoSpace      = errors.New("no space left")
)

// Storage error kinds. Every error returned by a Storage operation is a
// *StorageError whose Kind is one of these.
var (
	// ErrNotFound is reported when the requested path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBackend covers every other backend failure (auth, network, permission, ...).
	ErrBackend = errors.New("backend error")
	// ErrLocalRead is reported when a local source file cannot be read for upload.
	ErrLocalRead = errors.New("local read error")
	// ErrAdapterUnavailable is reported when the disk has no usable adapter.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
)

// Adapter construction errors
var (
	ErrUnsupportedDriver = errors.New("unsupported driver")
	ErrDiskNotConfigured = errors.New("disk not configured")
)

// PathError records an error and the operation and file path that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// NewPathError wraps err with the operation and path that caused it.
func NewPathError(op, path string, err error) *PathError {
	return &PathError{Op: op, Path: path, Err: err}
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// ConfigError reports a disk registry that cannot be loaded.
type ConfigError struct {
	Disk  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Disk != "" && e.Field != "":
		return fmt.Sprintf("config: disk %q: %s: %v", e.Disk, e.Field, e.Err)
	case e.Disk != "":
		return fmt.Sprintf("config: disk %q: %v", e.Disk, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AdapterError reports a failure to construct the adapter for a disk.
type AdapterError struct {
	Disk   string
	Driver string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Driver == "" {
		return fmt.Sprintf("adapter %s: %v", e.Disk, e.Err)
	}
	return fmt.Sprintf("adapter %s (driver %q): %v", e.Disk, e.Driver, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// StorageError is returned by every fail-loud Storage operation.
// errors.Is matches both the Kind and anything in the Err chain.
type StorageError struct {
	Op   string
	Disk string
	Path string
	Kind error
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s:%s: %v", e.Op, e.Disk, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s:%s: %v: %v", e.Op, e.Disk, e.Path, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsNotExist reports whether an error indicates that a file or directory
// does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist) || errors.Is(err, ErrNotFound)
}

// IsExist reports whether an error indicates that a file or directory
// already exists
func IsExist(err error) bool {
	return errors.Is(err, ErrExist)
}

// IsPermission reports whether an error indicates that permission is denied
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsUnavailable reports whether an operation failed because the disk's
// adapter could not be resolved or built.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrAdapterUnavailable)
}
