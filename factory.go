package diskkit

import (
	"fmt"
	"sort"
	"sync"
)

// DriverFactory builds the adapter for one disk. Driver packages register
// theirs from init().
type DriverFactory func(cfg DiskConfig) (FileSystem, error)

var (
	driverFactories = make(map[string]DriverFactory)
	factoryMutex    sync.RWMutex
)

// RegisterDriver registers a driver factory function under a driver kind.
// Registering the same kind twice replaces the earlier factory.
func RegisterDriver(kind string, factory DriverFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	driverFactories[NormalizeDriver(kind)] = factory
}

// RegisteredDrivers returns the registered driver kinds in sorted order.
func RegisteredDrivers() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()

	kinds := make([]string, 0, len(driverFactories))
	for kind := range driverFactories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// CreateDriver builds the adapter for cfg using the registered factory for
// its driver kind. Disks marked ReadOnly are wrapped in a ReadOnlyFileSystem.
// Every failure is an *AdapterError.
func CreateDriver(cfg DiskConfig) (FileSystem, error) {
	driver := NormalizeDriver(cfg.Driver)

	factoryMutex.RLock()
	factory, exists := driverFactories[driver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, &AdapterError{Disk: cfg.Name, Driver: driver, Err: ErrUnsupportedDriver}
	}

	cfg.Driver = driver
	return buildAdapter(cfg, factory)
}

func buildAdapter(cfg DiskConfig, factory DriverFactory) (fs FileSystem, err error) {
	defer func() {
		if r := recover(); r != nil {
			fs, err = nil, &AdapterError{Disk: cfg.Name, Driver: cfg.Driver, Err: fmt.Errorf("driver panicked: %v", r)}
		}
	}()

	fs, err = factory(cfg)
	if err != nil {
		return nil, &AdapterError{Disk: cfg.Name, Driver: cfg.Driver, Err: err}
	}
	if fs == nil {
		return nil, &AdapterError{Disk: cfg.Name, Driver: cfg.Driver, Err: fmt.Errorf("driver returned no adapter")}
	}

	if cfg.ReadOnly {
		fs = NewReadOnlyFileSystem(fs)
	}
	return fs, nil
}
