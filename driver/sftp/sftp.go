package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/gobeaver/diskkit"
)

// DefaultPort is used when Config.Port is zero.
const DefaultPort = 22

// Adapter provides an SFTP implementation of diskkit.FileSystem
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
	dialable bool
}

// Config holds SFTP connection configuration
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKey     []byte // PEM encoded private key
	KnownHostsFile string
	BasePath       string
	Timeout        time.Duration
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the base path for SFTP operations
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// New creates a new SFTP filesystem adapter. The connection is opened
// immediately; dial or authentication failures are returned.
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		config:   cfg,
		basePath: cfg.BasePath,
		dialable: true,
	}

	for _, option := range options {
		option(adapter)
	}

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if err := adapter.connectLocked(); err != nil {
		return nil, err
	}

	return adapter, nil
}

// NewWithClient wraps an already connected SFTP client. The adapter does
// not reconnect it.
func NewWithClient(client *sftp.Client, basePath string) *Adapter {
	return &Adapter{
		client:   client,
		basePath: basePath,
	}
}

// clientConfig builds the SSH client configuration
func (c Config) clientConfig() (*ssh.ClientConfig, error) {
	sshConfig := &ssh.ClientConfig{
		User:    c.Username,
		Timeout: c.Timeout,
	}

	if c.KnownHostsFile != "" {
		callback, err := knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		sshConfig.HostKeyCallback = callback
	} else {
		sshConfig.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	if len(c.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	if c.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(c.Password))
	}

	if len(sshConfig.Auth) == 0 {
		return nil, errors.New("no authentication method provided")
	}

	return sshConfig, nil
}

// Addr returns the host:port the adapter dials.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// connectLocked establishes SSH and SFTP connections. a.mu must be held.
func (a *Adapter) connectLocked() error {
	sshConfig, err := a.config.clientConfig()
	if err != nil {
		return err
	}

	sshConn, err := ssh.Dial("tcp", a.config.Addr(), sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = sftpClient
	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *Adapter) closeLocked() error {
	var errs []error

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}

	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}

	return errors.Join(errs...)
}

// conn returns a live client, reconnecting when the session was lost.
func (a *Adapter) conn(ctx context.Context) (*sftp.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if !a.dialable {
			return a.client, nil
		}
		if _, err := a.client.Getwd(); err == nil {
			return a.client, nil
		}
		// Connection lost
		_ = a.closeLocked()
	}

	if !a.dialable {
		return nil, errors.New("sftp client is closed")
	}
	if err := a.connectLocked(); err != nil {
		return nil, err
	}
	return a.client, nil
}

// relPath cleans a disk path to its slash-free-at-both-ends form; "" is the root.
func relPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// fullPath maps a disk path under the base path. Paths cannot climb above
// the base path. Without a base path they resolve against the login
// directory.
func (a *Adapter) fullPath(p string) string {
	rel := relPath(p)
	if a.basePath == "" {
		if rel == "" {
			return "."
		}
		return rel
	}
	return path.Join(a.basePath, rel)
}

// Write implements diskkit.FileWriter. Parent directories are created and an
// existing file is replaced.
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...diskkit.Option) error {
	client, err := a.conn(ctx)
	if err != nil {
		return diskkit.NewPathError("write", filePath, err)
	}

	if relPath(filePath) == "" {
		return diskkit.NewPathError("write", filePath, diskkit.ErrIsDir)
	}

	opts := diskkit.ProcessOptions(options...)
	fullPath := a.fullPath(filePath)

	if err := client.MkdirAll(path.Dir(fullPath)); err != nil {
		return mapSFTPError("write", filePath, err)
	}

	file, err := client.Create(fullPath)
	if err != nil {
		return mapSFTPError("write", filePath, err)
	}

	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return mapSFTPError("write", filePath, err)
	}
	if err := file.Close(); err != nil {
		return mapSFTPError("write", filePath, err)
	}

	var perm os.FileMode = 0600
	if opts.Visibility == diskkit.Public {
		perm = 0644
	}
	// Some servers refuse chmod; the content is already written.
	_ = client.Chmod(fullPath, perm)

	return nil
}

// Read implements diskkit.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	client, err := a.conn(ctx)
	if err != nil {
		return nil, diskkit.NewPathError("read", filePath, err)
	}

	fullPath := a.fullPath(filePath)

	info, err := client.Stat(fullPath)
	if err != nil {
		return nil, mapSFTPError("read", filePath, err)
	}
	if info.IsDir() {
		return nil, diskkit.NewPathError("read", filePath, diskkit.ErrIsDir)
	}

	file, err := client.Open(fullPath)
	if err != nil {
		return nil, mapSFTPError("read", filePath, err)
	}

	return file, nil
}

// ReadAll implements diskkit.FileReader
func (a *Adapter) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	rc, err := a.Read(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete implements diskkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, filePath string) error {
	client, err := a.conn(ctx)
	if err != nil {
		return diskkit.NewPathError("delete", filePath, err)
	}

	fullPath := a.fullPath(filePath)

	info, err := client.Stat(fullPath)
	if err != nil {
		return mapSFTPError("delete", filePath, err)
	}
	if info.IsDir() {
		return diskkit.NewPathError("delete", filePath, diskkit.ErrIsDir)
	}

	if err := client.Remove(fullPath); err != nil {
		return mapSFTPError("delete", filePath, err)
	}

	return nil
}

// FileExists implements diskkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	info, err := a.stat(ctx, "fileexists", filePath)
	if err != nil {
		if diskkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// DirExists implements diskkit.FileReader
func (a *Adapter) DirExists(ctx context.Context, dirPath string) (bool, error) {
	info, err := a.stat(ctx, "direxists", dirPath)
	if err != nil {
		if diskkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (a *Adapter) stat(ctx context.Context, op, p string) (os.FileInfo, error) {
	client, err := a.conn(ctx)
	if err != nil {
		return nil, diskkit.NewPathError(op, p, err)
	}

	info, err := client.Stat(a.fullPath(p))
	if err != nil {
		return nil, mapSFTPError(op, p, err)
	}
	return info, nil
}

// Stat implements diskkit.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*diskkit.FileInfo, error) {
	info, err := a.stat(ctx, "stat", filePath)
	if err != nil {
		return nil, err
	}

	rel := relPath(filePath)
	name := path.Base(rel)
	if rel == "" {
		name = "/"
	}

	fi := &diskkit.FileInfo{
		Name:    name,
		Path:    rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !info.IsDir() {
		fi.ContentType = diskkit.DetectContentType(rel, nil)
	}
	return fi, nil
}

// ListContents implements diskkit.FileReader
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]diskkit.FileInfo, error) {
	client, err := a.conn(ctx)
	if err != nil {
		return nil, diskkit.NewPathError("listcontents", dirPath, err)
	}

	fullPath := a.fullPath(dirPath)

	info, err := client.Stat(fullPath)
	if err != nil {
		return nil, mapSFTPError("listcontents", dirPath, err)
	}
	if !info.IsDir() {
		return nil, diskkit.NewPathError("listcontents", dirPath, diskkit.ErrNotDir)
	}

	var files []diskkit.FileInfo
	if err := a.list(ctx, client, fullPath, relPath(dirPath), recursive, &files); err != nil {
		return nil, mapSFTPError("listcontents", dirPath, err)
	}

	return files, nil
}

func (a *Adapter) list(ctx context.Context, client *sftp.Client, fullPath, rel string, recursive bool, results *[]diskkit.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := client.ReadDir(fullPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryRel := path.Join(rel, entry.Name())

		fi := diskkit.FileInfo{
			Name:    entry.Name(),
			Path:    entryRel,
			Size:    entry.Size(),
			ModTime: entry.ModTime(),
			IsDir:   entry.IsDir(),
		}
		if !entry.IsDir() {
			fi.ContentType = diskkit.DetectContentType(entry.Name(), nil)
		}
		*results = append(*results, fi)

		if recursive && entry.IsDir() {
			if err := a.list(ctx, client, path.Join(fullPath, entry.Name()), entryRel, true, results); err != nil {
				return err
			}
		}
	}

	return nil
}

// CreateDir implements diskkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	client, err := a.conn(ctx)
	if err != nil {
		return diskkit.NewPathError("createdir", dirPath, err)
	}

	if err := client.MkdirAll(a.fullPath(dirPath)); err != nil {
		return mapSFTPError("createdir", dirPath, err)
	}

	return nil
}

// DeleteDir implements diskkit.FileWriter, removing the directory and
// everything below it.
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	if relPath(dirPath) == "" {
		return diskkit.NewPathError("deletedir", dirPath, diskkit.ErrNotAllowed)
	}

	client, err := a.conn(ctx)
	if err != nil {
		return diskkit.NewPathError("deletedir", dirPath, err)
	}

	fullPath := a.fullPath(dirPath)

	info, err := client.Stat(fullPath)
	if err != nil {
		return mapSFTPError("deletedir", dirPath, err)
	}
	if !info.IsDir() {
		return diskkit.NewPathError("deletedir", dirPath, diskkit.ErrNotDir)
	}

	if err := removeAll(client, fullPath); err != nil {
		return mapSFTPError("deletedir", dirPath, err)
	}

	return nil
}

// removeAll recursively removes a directory and its contents
func removeAll(client *sftp.Client, dirPath string) error {
	entries, err := client.ReadDir(dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryPath := path.Join(dirPath, entry.Name())
		if entry.IsDir() {
			if err := removeAll(client, entryPath); err != nil {
				return err
			}
		} else if err := client.Remove(entryPath); err != nil {
			return err
		}
	}

	return client.RemoveDirectory(dirPath)
}

// Move implements diskkit.CanMove using the server's rename. An existing
// destination is removed first only with diskkit.WithOverwrite(true).
func (a *Adapter) Move(ctx context.Context, src, dst string, options ...diskkit.Option) error {
	client, err := a.conn(ctx)
	if err != nil {
		return diskkit.NewPathError("move", src, err)
	}

	srcPath := a.fullPath(src)
	dstPath := a.fullPath(dst)
	overwrite := diskkit.ProcessOptions(options...).Overwrite

	if _, err := client.Stat(srcPath); err != nil {
		return mapSFTPError("move", src, err)
	}

	if srcPath == dstPath {
		if !overwrite {
			return diskkit.NewPathError("move", dst, diskkit.ErrExist)
		}
		return nil
	}

	dstInfo, err := client.Stat(dstPath)
	switch {
	case err == nil:
		if !overwrite {
			return diskkit.NewPathError("move", dst, diskkit.ErrExist)
		}
		if dstInfo.IsDir() {
			return diskkit.NewPathError("move", dst, diskkit.ErrIsDir)
		}
		if err := client.Remove(dstPath); err != nil {
			return mapSFTPError("move", dst, err)
		}
	case !isNotExist(err):
		return mapSFTPError("move", dst, err)
	}

	if err := client.MkdirAll(path.Dir(dstPath)); err != nil {
		return mapSFTPError("move", dst, err)
	}

	if err := client.Rename(srcPath, dstPath); err != nil {
		return mapSFTPError("move", src, err)
	}

	return nil
}

func isNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var status *sftp.StatusError
	return errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxNoSuchFile
}

func isPermission(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	var status *sftp.StatusError
	return errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxPermissionDenied
}

// mapSFTPError maps SFTP errors to diskkit errors
func mapSFTPError(op, filePath string, err error) error {
	switch {
	case isNotExist(err):
		return diskkit.NewPathError(op, filePath, diskkit.ErrNotExist)
	case isPermission(err):
		return diskkit.NewPathError(op, filePath, diskkit.ErrPermission)
	default:
		return diskkit.NewPathError(op, filePath, err)
	}
}

var (
	_ diskkit.FileSystem = (*Adapter)(nil)
	_ diskkit.CanMove    = (*Adapter)(nil)
	_ io.Closer          = (*Adapter)(nil)
)
