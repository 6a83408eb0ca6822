package local

import (
	"fmt"

	"github.com/gobeaver/diskkit"
)

func init() {
	diskkit.RegisterDriver(diskkit.DriverLocal, func(cfg diskkit.DiskConfig) (diskkit.FileSystem, error) {
		if cfg.Local == nil {
			return nil, fmt.Errorf("%w: local params missing", diskkit.ErrDiskNotConfigured)
		}
		return New(cfg.Local.Root, WithCreateRoot(cfg.Local.Create))
	})
}
