package diskkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

// Driver kinds understood by the built-in adapters.
const (
	DriverLocal  = "local"
	DriverS3     = "s3"
	DriverSFTP   = "sftp"
	DriverMemory = "memory"
)

// DefaultDisk is the disk used when no disk name is given.
const DefaultDisk = "local"

// DefaultEnvPrefix is the variable prefix the diskkit command reads its
// disks from when no registry file is given.
const DefaultEnvPrefix = "DISKKIT_"

var driverAliases = map[string]string{
	"object_storage":  DriverS3,
	"remote_transfer": DriverSFTP,
	"filesystem":      DriverLocal,
}

// NormalizeDriver lowercases a driver name and resolves the generic aliases
// (object_storage, remote_transfer) to the concrete driver kind.
func NormalizeDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if alias, ok := driverAliases[driver]; ok {
		return alias
	}
	return driver
}

// DiskConfig describes one logical disk. Exactly one params block matching
// Driver is expected to be set.
type DiskConfig struct {
	Name     string
	Driver   string
	ReadOnly bool
	Local    *LocalParams
	S3       *S3Params
	SFTP     *SFTPParams
	Memory   *MemoryParams
}

// LocalParams configures the local driver.
type LocalParams struct {
	Root string

	// Create makes the adapter create a missing root instead of failing.
	Create bool
}

// S3Params configures the s3 driver.
type S3Params struct {
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	Endpoint       string
	Prefix         string
	ForcePathStyle bool
}

// SFTPParams configures the sftp driver.
type SFTPParams struct {
	Host           string
	Username       string
	Password       string
	Port           int
	PrivateKeyFile string
	KnownHostsFile string
	BasePath       string
	Timeout        time.Duration
}

// MemoryParams configures the memory driver.
type MemoryParams struct {
	MaxSize int64
}

// Validate checks that the params block required by the driver is present
// and complete. Unknown drivers pass: they are rejected when the adapter is
// built, not when the registry is loaded.
func (c DiskConfig) Validate() error {
	if c.Name == "" {
		return &ConfigError{Field: "name", Err: errors.New("disk name is required")}
	}
	if c.Driver == "" {
		return &ConfigError{Disk: c.Name, Field: "driver", Err: errors.New("driver is required")}
	}

	switch c.Driver {
	case DriverLocal:
		if c.Local == nil || c.Local.Root == "" {
			return &ConfigError{Disk: c.Name, Field: "root", Err: errors.New("root is required for local driver")}
		}
	case DriverS3:
		if c.S3 == nil || c.S3.Bucket == "" {
			return &ConfigError{Disk: c.Name, Field: "s3.bucket", Err: errors.New("bucket is required for s3 driver")}
		}
		// Credentials may come from the default AWS chain, so they are optional
	case DriverSFTP:
		if c.SFTP == nil || c.SFTP.Host == "" {
			return &ConfigError{Disk: c.Name, Field: "sftp.host", Err: errors.New("host is required for sftp driver")}
		}
		if c.SFTP.Username == "" {
			return &ConfigError{Disk: c.Name, Field: "sftp.username", Err: errors.New("username is required for sftp driver")}
		}
		if c.SFTP.Port < 0 || c.SFTP.Port > 65535 {
			return &ConfigError{Disk: c.Name, Field: "sftp.port", Err: fmt.Errorf("invalid port %d", c.SFTP.Port)}
		}
	}

	return nil
}

// Redacted returns a copy with credentials masked, safe to print or log.
func (c DiskConfig) Redacted() DiskConfig {
	out := c
	if c.S3 != nil {
		s3 := *c.S3
		s3.AccessKey = mask(s3.AccessKey)
		s3.SecretKey = mask(s3.SecretKey)
		out.S3 = &s3
	}
	if c.SFTP != nil {
		sftp := *c.SFTP
		sftp.Password = mask(sftp.Password)
		out.SFTP = &sftp
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// EnvConfig is the environment-variable view of the three standard disks:
// "local", "s3" and "sftp_disk".
type EnvConfig struct {
	LocalRoot   string `env:"LOCAL_ROOT,default:/"`
	LocalCreate bool   `env:"LOCAL_CREATE,default:false"`

	S3Bucket         string `env:"S3_BUCKET,default:default-bucket-name"`
	S3Key            string `env:"S3_KEY"`
	S3Secret         string `env:"S3_SECRET"`
	S3Region         string `env:"S3_REGION,default:ap-southeast-1"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE,default:false"`

	SFTPHost     string `env:"SFTP_HOST,default:example.com"`
	SFTPUsername string `env:"SFTP_USERNAME,default:default_user"`
	SFTPPassword string `env:"SFTP_PASSWORD"`
	SFTPPort     int    `env:"SFTP_PORT,default:22"`
}

// GetEnvConfig loads EnvConfig from the environment, reading prefix+NAME for
// every variable. An empty prefix reads the bare names (S3_BUCKET, ...).
func GetEnvConfig(prefix string) (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: prefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Disks translates the environment view into disk configurations.
func (e *EnvConfig) Disks() []DiskConfig {
	return []DiskConfig{
		{
			Name:   "local",
			Driver: DriverLocal,
			Local:  &LocalParams{Root: e.LocalRoot, Create: e.LocalCreate},
		},
		{
			Name:   "s3",
			Driver: DriverS3,
			S3: &S3Params{
				Bucket:         e.S3Bucket,
				AccessKey:      e.S3Key,
				SecretKey:      e.S3Secret,
				Region:         e.S3Region,
				Endpoint:       e.S3Endpoint,
				ForcePathStyle: e.S3ForcePathStyle,
			},
		},
		{
			Name:   "sftp_disk",
			Driver: DriverSFTP,
			SFTP: &SFTPParams{
				Host:     e.SFTPHost,
				Username: e.SFTPUsername,
				Password: e.SFTPPassword,
				Port:     e.SFTPPort,
			},
		},
	}
}
