package diskkit

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Registry maps logical disk names to their configuration. It is built once
// and read-only afterwards; Lookup hands out copies.
type Registry struct {
	disks map[string]DiskConfig
}

// NewRegistry validates and indexes disk configurations.
func NewRegistry(disks ...DiskConfig) (*Registry, error) {
	r := &Registry{disks: make(map[string]DiskConfig, len(disks))}
	for _, d := range disks {
		d.Driver = NormalizeDriver(d.Driver)
		if d.SFTP != nil && d.SFTP.Port == 0 {
			d.SFTP = cloneSFTP(d.SFTP)
			d.SFTP.Port = 22
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.disks[d.Name]; dup {
			return nil, &ConfigError{Disk: d.Name, Err: errors.New("duplicate disk name")}
		}
		r.disks[d.Name] = cloneDisk(d)
	}
	return r, nil
}

// Lookup returns the configuration for a disk.
func (r *Registry) Lookup(name string) (DiskConfig, bool) {
	if r == nil {
		return DiskConfig{}, false
	}
	d, ok := r.disks[name]
	if !ok {
		return DiskConfig{}, false
	}
	return cloneDisk(d), true
}

// Names returns all disk names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.disks))
	for name := range r.disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured disks.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.disks)
}

// ============================================================================
// Loading
// ============================================================================

// registryFile is the on-disk layout:
//
//	disks:
//	  local: { driver: local, root: /data, create: true }
//	  s3:    { driver: s3, s3: { bucket: b, key: k, secret: s, region: r } }
//	  sftp:  { driver: sftp, sftp: { host: h, username: u, password: p, port: 22 } }
//
// DiskConfig marshals to the same layout, so a dumped registry loads back.
type registryFile struct {
	Disks map[string]diskEntry `mapstructure:"disks"`
}

type diskEntry struct {
	Driver   string       `mapstructure:"driver" yaml:"driver"`
	ReadOnly bool         `mapstructure:"read_only" yaml:"read_only,omitempty"`
	Root     string       `mapstructure:"root" yaml:"root,omitempty"`
	Create   bool         `mapstructure:"create" yaml:"create,omitempty"`
	S3       *s3Entry     `mapstructure:"s3" yaml:"s3,omitempty"`
	SFTP     *sftpEntry   `mapstructure:"sftp" yaml:"sftp,omitempty"`
	Memory   *memoryEntry `mapstructure:"memory" yaml:"memory,omitempty"`
}

type s3Entry struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Key            string `mapstructure:"key" yaml:"key,omitempty"`
	Secret         string `mapstructure:"secret" yaml:"secret,omitempty"`
	Region         string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

type sftpEntry struct {
	Host       string        `mapstructure:"host" yaml:"host"`
	Username   string        `mapstructure:"username" yaml:"username"`
	Password   string        `mapstructure:"password" yaml:"password,omitempty"`
	Port       int           `mapstructure:"port" yaml:"port,omitempty"`
	PrivateKey string        `mapstructure:"private_key" yaml:"private_key,omitempty"`
	KnownHosts string        `mapstructure:"known_hosts" yaml:"known_hosts,omitempty"`
	BasePath   string        `mapstructure:"base_path" yaml:"base_path,omitempty"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

type memoryEntry struct {
	MaxSize int64 `mapstructure:"max_size" yaml:"max_size,omitempty"`
}

// LoadRegistry reads a registry file. The format (yaml, json, toml, ...)
// is taken from the file extension.
func LoadRegistry(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to read %s: %w", path, err)}
	}
	return registryFromViper(v)
}

// ParseRegistry parses registry data in the given format ("yaml" if empty).
func ParseRegistry(data []byte, format string) (*Registry, error) {
	if format == "" {
		format = "yaml"
	}
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to parse %s: %w", format, err)}
	}
	return registryFromViper(v)
}

// LoadRegistryFromEnv builds the standard "local", "s3" and "sftp_disk"
// disks from environment variables (see EnvConfig).
func LoadRegistryFromEnv(prefix string) (*Registry, error) {
	cfg, err := GetEnvConfig(prefix)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to load environment: %w", err)}
	}
	return NewRegistry(cfg.Disks()...)
}

func registryFromViper(v *viper.Viper) (*Registry, error) {
	if !v.IsSet("disks") {
		return nil, &ConfigError{Field: "disks", Err: errors.New("no disks section")}
	}

	var file registryFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to decode disks: %w", err)}
	}

	disks := make([]DiskConfig, 0, len(file.Disks))
	for name, entry := range file.Disks {
		disks = append(disks, entry.toDiskConfig(name))
	}
	// Deterministic validation order so the first error is stable
	sort.Slice(disks, func(i, j int) bool { return disks[i].Name < disks[j].Name })

	return NewRegistry(disks...)
}

func (e diskEntry) toDiskConfig(name string) DiskConfig {
	d := DiskConfig{
		Name:     strings.TrimSpace(name),
		Driver:   NormalizeDriver(e.Driver),
		ReadOnly: e.ReadOnly,
	}

	switch d.Driver {
	case DriverLocal:
		d.Local = &LocalParams{Root: e.Root, Create: e.Create}
	case DriverS3:
		if e.S3 != nil {
			d.S3 = &S3Params{
				Bucket:         e.S3.Bucket,
				AccessKey:      e.S3.Key,
				SecretKey:      e.S3.Secret,
				Region:         e.S3.Region,
				Endpoint:       e.S3.Endpoint,
				Prefix:         e.S3.Prefix,
				ForcePathStyle: e.S3.ForcePathStyle,
			}
		}
	case DriverSFTP:
		if e.SFTP != nil {
			d.SFTP = &SFTPParams{
				Host:           e.SFTP.Host,
				Username:       e.SFTP.Username,
				Password:       e.SFTP.Password,
				Port:           e.SFTP.Port,
				PrivateKeyFile: e.SFTP.PrivateKey,
				KnownHostsFile: e.SFTP.KnownHosts,
				BasePath:       e.SFTP.BasePath,
				Timeout:        e.SFTP.Timeout,
			}
		}
	case DriverMemory:
		d.Memory = &MemoryParams{}
		if e.Memory != nil {
			d.Memory.MaxSize = e.Memory.MaxSize
		}
	}

	return d
}

// MarshalYAML writes c in the registry file layout. The name is the key of
// the enclosing disks map and is not part of the entry.
func (c DiskConfig) MarshalYAML() (any, error) {
	e := diskEntry{Driver: c.Driver, ReadOnly: c.ReadOnly}
	if c.Local != nil {
		e.Root = c.Local.Root
		e.Create = c.Local.Create
	}
	if c.S3 != nil {
		e.S3 = &s3Entry{
			Bucket:         c.S3.Bucket,
			Key:            c.S3.AccessKey,
			Secret:         c.S3.SecretKey,
			Region:         c.S3.Region,
			Endpoint:       c.S3.Endpoint,
			Prefix:         c.S3.Prefix,
			ForcePathStyle: c.S3.ForcePathStyle,
		}
	}
	if c.SFTP != nil {
		e.SFTP = &sftpEntry{
			Host:       c.SFTP.Host,
			Username:   c.SFTP.Username,
			Password:   c.SFTP.Password,
			Port:       c.SFTP.Port,
			PrivateKey: c.SFTP.PrivateKeyFile,
			KnownHosts: c.SFTP.KnownHostsFile,
			BasePath:   c.SFTP.BasePath,
			Timeout:    c.SFTP.Timeout,
		}
	}
	if c.Memory != nil {
		e.Memory = &memoryEntry{MaxSize: c.Memory.MaxSize}
	}
	return e, nil
}

func cloneDisk(d DiskConfig) DiskConfig {
	out := d
	if d.Local != nil {
		local := *d.Local
		out.Local = &local
	}
	if d.S3 != nil {
		s3 := *d.S3
		out.S3 = &s3
	}
	if d.SFTP != nil {
		out.SFTP = cloneSFTP(d.SFTP)
	}
	if d.Memory != nil {
		mem := *d.Memory
		out.Memory = &mem
	}
	return out
}

func cloneSFTP(p *SFTPParams) *SFTPParams {
	c := *p
	return &c
}
