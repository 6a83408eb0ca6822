package sftp

import (
	"context"
	"io"
	"net"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/diskkit"
)

// newTestAdapter connects an adapter to an in-memory SFTP server.
func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go func() {
		_ = server.Serve()
	}()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	return NewWithClient(client, "/data")
}

func paths(files []diskkit.FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	sort.Strings(out)
	return out
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	require.NoError(t, a.Write(ctx, "docs/a.txt", strings.NewReader("hello")))

	data, err := a.ReadAll(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, a.Write(ctx, "docs/a.txt", strings.NewReader("bye")))
	data, err = a.ReadAll(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data), "write replaces existing content")
}

func TestReadMissing(t *testing.T) {
	a := newTestAdapter(t)
	_, err := a.Read(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, diskkit.ErrNotExist)
}

func TestPathsStayUnderBase(t *testing.T) {
	a := newTestAdapter(t)
	assert.Equal(t, "/data/etc/passwd", a.fullPath("../../etc/passwd"))
	assert.Equal(t, "/data", a.fullPath("/"))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("x")))

	require.NoError(t, a.Delete(ctx, "a.txt"))

	ok, err := a.FileExists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, a.Delete(ctx, "a.txt"), diskkit.ErrNotExist)
}

func TestExistsAndStat(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	require.NoError(t, a.Write(ctx, "docs/a.json", strings.NewReader("{}")))

	ok, err := a.FileExists(ctx, "docs/a.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.FileExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok, "directory is not a file")

	ok, err = a.DirExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := a.Stat(ctx, "docs/a.json")
	require.NoError(t, err)
	assert.Equal(t, "a.json", info.Name)
	assert.Equal(t, "docs/a.json", info.Path)
	assert.Equal(t, int64(2), info.Size)
	assert.Equal(t, "application/json", info.ContentType)

	_, err = a.Stat(ctx, "nope")
	assert.ErrorIs(t, err, diskkit.ErrNotExist)
}

func TestListContents(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	for _, p := range []string{"a.txt", "docs/b.txt", "docs/deep/c.txt"} {
		require.NoError(t, a.Write(ctx, p, strings.NewReader(p)))
	}

	files, err := a.ListContents(ctx, "/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "docs"}, paths(files))

	files, err = a.ListContents(ctx, "docs", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/b.txt", "docs/deep", "docs/deep/c.txt"}, paths(files))

	_, err = a.ListContents(ctx, "a.txt", false)
	assert.ErrorIs(t, err, diskkit.ErrNotDir)

	_, err = a.ListContents(ctx, "missing", false)
	assert.ErrorIs(t, err, diskkit.ErrNotExist)
}

func TestCreateAndDeleteDir(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	require.NoError(t, a.CreateDir(ctx, "x/y"))
	ok, err := a.DirExists(ctx, "x/y")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Write(ctx, "x/y/file.txt", strings.NewReader("x")))
	require.NoError(t, a.DeleteDir(ctx, "x"))

	ok, err = a.DirExists(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, a.DeleteDir(ctx, "/"), diskkit.ErrNotAllowed)
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("renames file", func(t *testing.T) {
		a := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("x")))

		require.NoError(t, a.Move(ctx, "a.txt", "sub/b.txt"))

		ok, err := a.FileExists(ctx, "a.txt")
		require.NoError(t, err)
		assert.False(t, ok)

		data, err := a.ReadAll(ctx, "sub/b.txt")
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
	})

	t.Run("refuses existing destination", func(t *testing.T) {
		a := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("new")))
		require.NoError(t, a.Write(ctx, "b.txt", strings.NewReader("old")))

		assert.ErrorIs(t, a.Move(ctx, "a.txt", "b.txt"), diskkit.ErrExist)

		data, err := a.ReadAll(ctx, "b.txt")
		require.NoError(t, err)
		assert.Equal(t, "old", string(data))
	})

	t.Run("overwrites when asked", func(t *testing.T) {
		a := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("new")))
		require.NoError(t, a.Write(ctx, "b.txt", strings.NewReader("old")))

		require.NoError(t, a.Move(ctx, "a.txt", "b.txt", diskkit.WithOverwrite(true)))

		data, err := a.ReadAll(ctx, "b.txt")
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("missing source", func(t *testing.T) {
		a := newTestAdapter(t)
		assert.ErrorIs(t, a.Move(ctx, "nope", "b.txt"), diskkit.ErrNotExist)
	})

	t.Run("onto itself", func(t *testing.T) {
		a := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("x")))

		assert.ErrorIs(t, a.Move(ctx, "a.txt", "/a.txt"), diskkit.ErrExist)
		require.NoError(t, a.Move(ctx, "a.txt", "a.txt", diskkit.WithOverwrite(true)))

		data, err := a.ReadAll(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	require.NoError(t, a.Close())

	_, err := a.Read(ctx, "a.txt")
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	a := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Write(ctx, "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	t.Run("requires an auth method", func(t *testing.T) {
		_, err := New(Config{Host: "127.0.0.1", Username: "u"})
		assert.ErrorContains(t, err, "no authentication method")
	})

	t.Run("rejects a bad private key", func(t *testing.T) {
		_, err := New(Config{Host: "127.0.0.1", Username: "u", PrivateKey: []byte("not a key")})
		assert.ErrorContains(t, err, "private key")
	})

	t.Run("fails eagerly when host is unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().(*net.TCPAddr)
		require.NoError(t, ln.Close())

		_, err = New(Config{
			Host:     "127.0.0.1",
			Port:     addr.Port,
			Username: "u",
			Password: "p",
			Timeout:  time.Second,
		})
		assert.ErrorContains(t, err, "failed to connect")
	})

	t.Run("defaults port", func(t *testing.T) {
		assert.Equal(t, "files.example.com:22", Config{Host: "files.example.com"}.Addr())
	})
}

func TestRegisteredDriver(t *testing.T) {
	_, err := diskkit.CreateDriver(diskkit.DiskConfig{Name: "sftp_disk", Driver: "remote_transfer"})
	assert.ErrorIs(t, err, diskkit.ErrDiskNotConfigured)
}

var _ io.Closer = (*Adapter)(nil)
