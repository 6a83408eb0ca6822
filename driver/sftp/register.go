package sftp

import (
	"fmt"
	"os"

	"github.com/gobeaver/diskkit"
)

func init() {
	diskkit.RegisterDriver(diskkit.DriverSFTP, func(cfg diskkit.DiskConfig) (diskkit.FileSystem, error) {
		if cfg.SFTP == nil || cfg.SFTP.Host == "" {
			return nil, fmt.Errorf("%w: SFTP host is required", diskkit.ErrDiskNotConfigured)
		}

		params := cfg.SFTP
		sftpConfig := Config{
			Host:           params.Host,
			Port:           params.Port,
			Username:       params.Username,
			Password:       params.Password,
			KnownHostsFile: params.KnownHostsFile,
			BasePath:       params.BasePath,
			Timeout:        params.Timeout,
		}

		if params.PrivateKeyFile != "" {
			keyData, err := os.ReadFile(params.PrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			sftpConfig.PrivateKey = keyData
		}

		return New(sftpConfig)
	})
}
