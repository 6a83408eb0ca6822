package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/diskkit"
)

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
	acl         types.ObjectCannedACL
}

// fakeClient is an in-memory bucket answering the calls the adapter makes.
type fakeClient struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]fakeObject
	err     error
	calls   map[string]int

	copySources []string
}

func newFakeClient(bucket string) *fakeClient {
	return &fakeClient{
		bucket:  bucket,
		objects: make(map[string]fakeObject),
		calls:   make(map[string]int),
	}
}

func (c *fakeClient) begin(op string) error {
	c.calls[op]++
	return c.err
}

func (c *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("PutObject"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.objects[aws.ToString(in.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		modTime:     time.Now(),
		acl:         in.ACL,
	}
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetObject"); err != nil {
		return nil, err
	}
	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (c *fakeClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("HeadObject"); err != nil {
		return nil, err
	}
	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modTime),
		Metadata:      obj.metadata,
	}, nil
}

func (c *fakeClient) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DeleteObject"); err != nil {
		return nil, err
	}
	delete(c.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (c *fakeClient) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DeleteObjects"); err != nil {
		return nil, err
	}
	for _, id := range in.Delete.Objects {
		delete(c.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (c *fakeClient) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CopyObject"); err != nil {
		return nil, err
	}
	source := aws.ToString(in.CopySource)
	c.copySources = append(c.copySources, source)

	// S3 decodes the source like a URL path.
	decoded, err := url.PathUnescape(source)
	if err != nil {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: err.Error()}
	}
	srcKey, ok := strings.CutPrefix(decoded, c.bucket+"/")
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	obj, ok := c.objects[srcKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	c.objects[aws.ToString(in.Key)] = obj
	return &s3.CopyObjectOutput{}, nil
}

func (c *fakeClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListObjectsV2"); err != nil {
		return nil, err
	}

	prefix := aws.ToString(in.Prefix)
	delimiter := aws.ToString(in.Delimiter)

	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := make(map[string]bool)
	for _, k := range keys {
		if in.MaxKeys != nil && int32(len(out.Contents)+len(out.CommonPrefixes)) >= *in.MaxKeys {
			break
		}
		rest := k[len(prefix):]
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		obj := c.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modTime),
		})
	}
	return out, nil
}

func newTestAdapter(t *testing.T, options ...AdapterOption) (*Adapter, *fakeClient) {
	t.Helper()
	client := newFakeClient("test-bucket")
	return New(client, "test-bucket", options...), client
}

func TestWriteAndRead(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t)

	err := a.Write(ctx, "/docs/a.txt", strings.NewReader("hello"),
		diskkit.WithContentType("text/plain"),
		diskkit.WithMetadata(map[string]string{"owner": "ops"}),
		diskkit.WithVisibility(diskkit.Public),
	)
	require.NoError(t, err)

	obj, ok := client.objects["docs/a.txt"]
	require.True(t, ok, "object stored under cleaned key")
	assert.Equal(t, "text/plain", obj.contentType)
	assert.Equal(t, "ops", obj.metadata["owner"])
	assert.Equal(t, types.ObjectCannedACLPublicRead, obj.acl)

	data, err := a.ReadAll(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteBuffersUnseekableReader(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t)

	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte("streamed"))
		_ = pw.Close()
	}()

	require.NoError(t, a.Write(ctx, "stream.bin", pr))
	assert.Equal(t, "streamed", string(client.objects["stream.bin"].data))
}

func TestWriteRootRejected(t *testing.T) {
	a, _ := newTestAdapter(t)
	err := a.Write(context.Background(), "/", strings.NewReader("x"))
	assert.ErrorIs(t, err, diskkit.ErrIsDir)
}

func TestPrefix(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t, WithPrefix("/tenant/"))

	require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("x")))
	_, ok := client.objects["tenant/a.txt"]
	assert.True(t, ok)

	files, err := a.ListContents(ctx, "/", false)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Path)
}

func TestReadMissing(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, err := a.Read(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, diskkit.ErrNotExist)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t)
	require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("x")))

	require.NoError(t, a.Delete(ctx, "a.txt"))
	assert.Empty(t, client.objects)

	err := a.Delete(ctx, "a.txt")
	assert.ErrorIs(t, err, diskkit.ErrNotExist)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)
	require.NoError(t, a.Write(ctx, "docs/a.txt", strings.NewReader("x")))

	ok, err := a.FileExists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.FileExists(ctx, "docs/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.DirExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.DirExists(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.DirExists(ctx, "/")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)
	require.NoError(t, a.Write(ctx, "docs/a.txt", strings.NewReader("hello"), diskkit.WithContentType("text/plain")))

	info, err := a.Stat(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Name)
	assert.Equal(t, "docs/a.txt", info.Path)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.False(t, info.IsDir)

	info, err = a.Stat(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	_, err = a.Stat(ctx, "nope")
	assert.ErrorIs(t, err, diskkit.ErrNotExist)
}

func TestListContents(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)
	for _, p := range []string{"a.txt", "docs/b.txt", "docs/deep/c.txt"} {
		require.NoError(t, a.Write(ctx, p, strings.NewReader(p)))
	}
	require.NoError(t, a.CreateDir(ctx, "empty"))

	paths := func(files []diskkit.FileInfo) []string {
		var out []string
		for _, f := range files {
			out = append(out, f.Path)
		}
		sort.Strings(out)
		return out
	}

	files, err := a.ListContents(ctx, "/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "docs", "empty"}, paths(files))

	files, err = a.ListContents(ctx, "docs", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/b.txt", "docs/deep/c.txt"}, paths(files))

	files, err = a.ListContents(ctx, "empty", false)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = a.ListContents(ctx, "missing", false)
	assert.ErrorIs(t, err, diskkit.ErrNotExist)
}

func TestDeleteDir(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t)
	for _, p := range []string{"keep.txt", "docs/a.txt", "docs/deep/b.txt"} {
		require.NoError(t, a.Write(ctx, p, strings.NewReader("x")))
	}

	require.NoError(t, a.DeleteDir(ctx, "docs"))
	assert.Len(t, client.objects, 1)
	assert.Equal(t, 1, client.calls["DeleteObjects"])

	assert.ErrorIs(t, a.DeleteDir(ctx, "docs"), diskkit.ErrNotExist)
	assert.ErrorIs(t, a.DeleteDir(ctx, "/"), diskkit.ErrNotAllowed)
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("moves object", func(t *testing.T) {
		a, client := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("x")))

		require.NoError(t, a.Move(ctx, "a.txt", "b/a.txt"))
		_, srcLeft := client.objects["a.txt"]
		assert.False(t, srcLeft)
		assert.Equal(t, "x", string(client.objects["b/a.txt"].data))
	})

	t.Run("refuses existing destination", func(t *testing.T) {
		a, client := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("new")))
		require.NoError(t, a.Write(ctx, "b.txt", strings.NewReader("old")))

		err := a.Move(ctx, "a.txt", "b.txt")
		assert.ErrorIs(t, err, diskkit.ErrExist)
		assert.Equal(t, "old", string(client.objects["b.txt"].data))
	})

	t.Run("overwrites when asked", func(t *testing.T) {
		a, client := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("new")))
		require.NoError(t, a.Write(ctx, "b.txt", strings.NewReader("old")))

		require.NoError(t, a.Move(ctx, "a.txt", "b.txt", diskkit.WithOverwrite(true)))
		assert.Equal(t, "new", string(client.objects["b.txt"].data))
		assert.Len(t, client.objects, 1)
	})

	t.Run("missing source", func(t *testing.T) {
		a, _ := newTestAdapter(t)
		err := a.Move(ctx, "nope", "b.txt")
		assert.ErrorIs(t, err, diskkit.ErrNotExist)
	})

	t.Run("onto itself", func(t *testing.T) {
		a, client := newTestAdapter(t)
		require.NoError(t, a.Write(ctx, "a.txt", strings.NewReader("x")))

		assert.ErrorIs(t, a.Move(ctx, "a.txt", "a.txt"), diskkit.ErrExist)
		require.NoError(t, a.Move(ctx, "a.txt", "a.txt", diskkit.WithOverwrite(true)))
		assert.Equal(t, "x", string(client.objects["a.txt"].data))
		assert.Zero(t, client.calls["CopyObject"])
	})

	t.Run("keys needing escaping", func(t *testing.T) {
		for _, name := range []string{"100%.txt", "report 2024.pdf", "a+b/ünï.txt", "q?x#y.txt"} {
			a, client := newTestAdapter(t, WithPrefix("up loads"))
			require.NoError(t, a.Write(ctx, name, strings.NewReader(name)))

			require.NoError(t, a.Move(ctx, name, "moved/"+name), name)
			assert.Equal(t, name, string(client.objects["up loads/moved/"+name].data))
			_, srcLeft := client.objects["up loads/"+name]
			assert.False(t, srcLeft, name)
		}
	})
}

func TestCopySource(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"a.txt", "b/a.txt"},
		{"dir/report 2024.pdf", "b/dir/report%202024.pdf"},
		{"100%.txt", "b/100%25.txt"},
		{"q?x#y", "b/q%3Fx%23y"},
		{"ü.txt", "b/%C3%BC.txt"},
	}
	for _, tt := range tests {
		got := copySource("b", tt.key)
		assert.Equal(t, tt.want, got)

		decoded, err := url.PathUnescape(got)
		require.NoError(t, err)
		assert.Equal(t, "b/"+tt.key, decoded)
	}
}

func TestMapS3Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &types.NoSuchKey{}, diskkit.ErrNotExist},
		{"not found", &types.NotFound{}, diskkit.ErrNotExist},
		{"api not found code", &smithy.GenericAPIError{Code: "NotFound"}, diskkit.ErrNotExist},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, diskkit.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapS3Error("read", "a.txt", tt.err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := mapS3Error("read", "a.txt", errors.New("connection reset"))
	assert.False(t, diskkit.IsNotExist(err))
	var pathErr *diskkit.PathError
	assert.ErrorAs(t, err, &pathErr)
}

func TestBackendFailureSurfaces(t *testing.T) {
	a, client := newTestAdapter(t)
	client.err = errors.New("connection refused")

	_, err := a.FileExists(context.Background(), "a.txt")
	require.Error(t, err)
	assert.False(t, diskkit.IsNotExist(err))
}

func TestRegisteredDriver(t *testing.T) {
	_, err := diskkit.CreateDriver(diskkit.DiskConfig{Name: "s3", Driver: diskkit.DriverS3})
	assert.ErrorIs(t, err, diskkit.ErrDiskNotConfigured)
}
