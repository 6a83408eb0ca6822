package diskkit

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Storage routes file operations to the adapter of the active disk.
//
// Adapters are built lazily the first time a disk is used and cached until
// Evict or Close. A failed build is not cached: the next access on that disk
// tries again. Building is serialised per disk name, so a slow handshake on
// one disk never blocks another.
//
// Use changes the active disk for every caller sharing the Storage.
// Goroutines that need a fixed disk should hold a *Disk from Storage.Disk.
type Storage struct {
	registry    *Registry
	defaultDisk string
	logger      logrus.FieldLogger
	metrics     *Metrics
	factory     DriverFactory

	mu       sync.RWMutex
	active   string
	adapters map[string]FileSystem
	building map[string]*sync.Mutex
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func WithLogger(logger logrus.FieldLogger) StorageOption {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) StorageOption {
	return func(s *Storage) {
		s.metrics = m
	}
}

// WithDefaultDisk overrides the disk selected by Use("") (DefaultDisk).
func WithDefaultDisk(name string) StorageOption {
	return func(s *Storage) {
		if name != "" {
			s.defaultDisk = name
		}
	}
}

// WithDriverFactory replaces the registered driver factories with a single
// factory used for every disk.
func WithDriverFactory(factory DriverFactory) StorageOption {
	return func(s *Storage) {
		s.factory = factory
	}
}

// New creates a Storage over reg. No adapter is built until a disk is used.
func New(reg *Registry, opts ...StorageOption) *Storage {
	s := &Storage{
		registry:    reg,
		defaultDisk: DefaultDisk,
		logger:      logrus.StandardLogger(),
		adapters:    make(map[string]FileSystem),
		building:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.active = s.defaultDisk
	return s
}

// Registry returns the disk registry the Storage was created with.
func (s *Storage) Registry() *Registry {
	return s.registry
}

// Use makes name the active disk, or the default disk when name is empty,
// and builds its adapter if it is not cached yet. Use never fails: an
// unknown disk or a failed build is logged, and later operations on the
// disk report ErrAdapterUnavailable.
func (s *Storage) Use(name string) *Storage {
	if name == "" {
		name = s.defaultDisk
	}

	s.mu.Lock()
	s.active = name
	s.mu.Unlock()

	// Errors are logged by resolve.
	_, _ = s.resolve(context.Background(), name)
	return s
}

// ActiveDisk returns the name of the active disk.
func (s *Storage) ActiveDisk() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Disk returns a handle bound to name. It does not change the active disk
// and does not build anything until an operation runs.
func (s *Storage) Disk(name string) *Disk {
	if name == "" {
		name = s.defaultDisk
	}
	return &Disk{storage: s, name: name}
}

func (s *Storage) current() *Disk {
	return s.Disk(s.ActiveDisk())
}

// Adapter returns the adapter of the active disk, building it if needed.
// Failures are reported as a *StorageError of kind ErrAdapterUnavailable.
func (s *Storage) Adapter(ctx context.Context) (FileSystem, error) {
	return s.current().Adapter(ctx)
}

// Cached reports whether an adapter for name is currently cached.
func (s *Storage) Cached(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.adapters[name]
	return ok
}

// resolve returns the cached adapter for name or builds and caches it.
func (s *Storage) resolve(ctx context.Context, name string) (FileSystem, error) {
	if fs, ok := s.cached(name); ok {
		return fs, nil
	}

	log := s.logger.WithField("disk", name)

	cfg, ok := s.registry.Lookup(name)
	if !ok {
		err := &AdapterError{Disk: name, Err: ErrDiskNotConfigured}
		log.WithError(err).Error("Disk is not configured")
		return nil, err
	}
	log = log.WithField("driver", cfg.Driver)

	lock := s.buildLock(name)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have finished the build while we waited.
	if fs, ok := s.cached(name); ok {
		return fs, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs, err := s.build(cfg)
	s.metrics.recordBuild(name, cfg.Driver, err)
	if err != nil {
		log.WithError(err).Error("Failed to initialize disk")
		return nil, err
	}

	s.mu.Lock()
	s.adapters[name] = fs
	s.mu.Unlock()

	log.Debug("Disk initialized")
	return fs, nil
}

func (s *Storage) build(cfg DiskConfig) (FileSystem, error) {
	if s.factory != nil {
		return buildAdapter(cfg, s.factory)
	}
	return CreateDriver(cfg)
}

func (s *Storage) cached(name string) (FileSystem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fs, ok := s.adapters[name]
	return fs, ok
}

func (s *Storage) buildLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.building[name]
	if !ok {
		lock = &sync.Mutex{}
		s.building[name] = lock
	}
	return lock
}

// Evict drops the cached adapter for name and closes it if it holds
// resources (an SFTP session, for instance). The next access rebuilds it.
// Evicting a disk that is not cached is a no-op.
func (s *Storage) Evict(name string) error {
	lock := s.buildLock(name)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	fs, ok := s.adapters[name]
	delete(s.adapters, name)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := closeAdapter(fs); err != nil {
		s.logger.WithField("disk", name).WithError(err).Warn("Failed to close adapter")
		return &AdapterError{Disk: name, Err: err}
	}
	return nil
}

// Close evicts every cached adapter. The Storage stays usable; disks used
// afterwards are rebuilt.
func (s *Storage) Close() error {
	s.mu.RLock()
	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	s.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := s.Evict(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeAdapter(fs FileSystem) error {
	if c, ok := fs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ============================================================================
// Operations on the active disk
// ============================================================================

// Read returns the content of path on the active disk.
func (s *Storage) Read(ctx context.Context, path string) ([]byte, error) {
	return s.current().Read(ctx, path)
}

// Write creates or overwrites path on the active disk.
func (s *Storage) Write(ctx context.Context, path string, content []byte, opts ...Option) error {
	return s.current().Write(ctx, path, content, opts...)
}

// Delete removes path from the active disk.
func (s *Storage) Delete(ctx context.Context, path string) error {
	return s.current().Delete(ctx, path)
}

// Exists reports whether path exists on the active disk. It never fails.
func (s *Storage) Exists(ctx context.Context, path string) bool {
	return s.current().Exists(ctx, path)
}

// UploadLocalFile copies a file of the local machine to dst on the active disk.
func (s *Storage) UploadLocalFile(ctx context.Context, src, dst string) error {
	return s.current().UploadLocalFile(ctx, src, dst)
}

// List returns the entry names directly under dir on the active disk. It
// never fails.
func (s *Storage) List(ctx context.Context, dir string) []string {
	return s.current().List(ctx, dir)
}

// Move renames src to dst on the active disk.
func (s *Storage) Move(ctx context.Context, src, dst string, overwrite bool) error {
	return s.current().Move(ctx, src, dst, overwrite)
}

// Stat returns metadata for path on the active disk.
func (s *Storage) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return s.current().Stat(ctx, path)
}

// MakeDirectory creates dir and its parents on the active disk.
func (s *Storage) MakeDirectory(ctx context.Context, dir string) error {
	return s.current().MakeDirectory(ctx, dir)
}

// DeleteDirectory removes dir and everything below it on the active disk.
func (s *Storage) DeleteDirectory(ctx context.Context, dir string) error {
	return s.current().DeleteDirectory(ctx, dir)
}

// Checksum hashes the content of path on the active disk.
func (s *Storage) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	return s.current().Checksum(ctx, path, algorithm)
}

// Find lists files under dir on the active disk that match selector. It
// never fails.
func (s *Storage) Find(ctx context.Context, dir string, selector FileSelector, recursive bool) []FileInfo {
	return s.current().Find(ctx, dir, selector, recursive)
}
