package memory

import "github.com/gobeaver/diskkit"

func init() {
	diskkit.RegisterDriver(diskkit.DriverMemory, func(cfg diskkit.DiskConfig) (diskkit.FileSystem, error) {
		var c Config
		if cfg.Memory != nil {
			c.MaxSize = cfg.Memory.MaxSize
		}
		return New(c), nil
	})
}
