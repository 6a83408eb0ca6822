package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/diskkit"
)

// Client is the subset of *s3.Client the adapter uses.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ Client = (*s3.Client)(nil)

// deleteBatchSize is the DeleteObjects limit per request.
const deleteBatchSize = 1000

// Adapter provides an S3 implementation of diskkit.FileSystem.
// Directories are key prefixes; CreateDir writes a "dir/" marker object.
type Adapter struct {
	client Client
	bucket string
	prefix string
}

// AdapterOption is a function that configures Adapter
type AdapterOption func(*Adapter)

// WithPrefix stores every object under prefix inside the bucket.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates a new S3 filesystem adapter. It performs no network I/O.
func New(client Client, bucket string, options ...AdapterOption) *Adapter {
	a := &Adapter{
		client: client,
		bucket: bucket,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Bucket returns the bucket name.
func (a *Adapter) Bucket() string {
	return a.bucket
}

// relPath cleans a disk path to its slash-free-at-both-ends form; "" is the root.
func relPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// key returns the object key for a disk path.
func (a *Adapter) key(p string) string {
	return a.prefix + relPath(p)
}

// dirKey returns the key prefix of a directory, with a trailing slash
// unless it is the bucket root.
func (a *Adapter) dirKey(p string) string {
	rel := relPath(p)
	if rel == "" {
		return a.prefix
	}
	return a.prefix + rel + "/"
}

// Write implements diskkit.FileWriter
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...diskkit.Option) error {
	opts := diskkit.ProcessOptions(options...)
	key := a.key(filePath)
	if key == a.prefix {
		return diskkit.NewPathError("write", filePath, diskkit.ErrIsDir)
	}

	body, contentLength, err := seekableBody(content)
	if err != nil {
		return diskkit.NewPathError("write", filePath, err)
	}

	input := &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(key),
		Body:              body,
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if contentLength >= 0 {
		input.ContentLength = aws.Int64(contentLength)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		metadata := make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			metadata[k] = v
		}
		input.Metadata = metadata
	}
	switch opts.Visibility {
	case diskkit.Public:
		input.ACL = types.ObjectCannedACLPublicRead
	case diskkit.Private:
		input.ACL = types.ObjectCannedACLPrivate
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return mapS3Error("write", filePath, err)
	}
	return nil
}

// seekableBody returns a body PutObject can sign together with its length,
// buffering readers that cannot seek.
func seekableBody(content io.Reader) (io.Reader, int64, error) {
	switch r := content.(type) {
	case *bytes.Reader:
		return r, int64(r.Len()), nil
	case *strings.Reader:
		return r, int64(r.Len()), nil
	case *os.File:
		info, err := r.Stat()
		if err != nil {
			return nil, -1, err
		}
		pos, _ := r.Seek(0, io.SeekCurrent)
		return r, info.Size() - pos, nil
	case io.ReadSeeker:
		pos, err := r.Seek(0, io.SeekCurrent)
		if err == nil {
			if end, err := r.Seek(0, io.SeekEnd); err == nil {
				if _, err := r.Seek(pos, io.SeekStart); err != nil {
					return nil, -1, err
				}
				return r, end - pos, nil
			}
		}
		return r, -1, nil
	default:
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, -1, err
		}
		return bytes.NewReader(data), int64(len(data)), nil
	}
}

// Read implements diskkit.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(filePath)),
	})
	if err != nil {
		return nil, mapS3Error("read", filePath, err)
	}
	return resp.Body, nil
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

// Delete implements diskkit.FileWriter. S3 deletes are idempotent, so the
// object is looked up first to report missing files.
func (a *Adapter) Delete(ctx context.Context, filePath string) error {
	key := a.key(filePath)

	if _, err := a.head(ctx, key); err != nil {
		return mapS3Error("delete", filePath, err)
	}

	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error("delete", filePath, err)
	}
	return nil
}

func (a *Adapter) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	return a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
}

// FileExists implements diskkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	key := a.key(filePath)
	if key == a.prefix {
		return false, nil
	}

	if _, err := a.head(ctx, key); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapS3Error("fileexists", filePath, err)
	}
	return true, nil
}

// DirExists implements diskkit.FileReader. A directory exists when any
// object, including a marker, has its prefix. The root always exists.
func (a *Adapter) DirExists(ctx context.Context, dirPath string) (bool, error) {
	if relPath(dirPath) == "" {
		return true, nil
	}

	resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(a.dirKey(dirPath)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, mapS3Error("direxists", dirPath, err)
	}

	return len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0, nil
}

// Stat implements diskkit.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*diskkit.FileInfo, error) {
	rel := relPath(filePath)
	if rel != "" {
		resp, err := a.head(ctx, a.key(filePath))
		if err == nil {
			metadata := make(map[string]string, len(resp.Metadata))
			for k, v := range resp.Metadata {
				metadata[k] = v
			}
			return &diskkit.FileInfo{
				Name:        path.Base(rel),
				Path:        rel,
				Size:        aws.ToInt64(resp.ContentLength),
				ModTime:     aws.ToTime(resp.LastModified),
				ContentType: aws.ToString(resp.ContentType),
				Metadata:    metadata,
			}, nil
		}
		if !isNotFound(err) {
			return nil, mapS3Error("stat", filePath, err)
		}
	}

	isDir, err := a.DirExists(ctx, filePath)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, diskkit.NewPathError("stat", filePath, diskkit.ErrNotExist)
	}

	name := path.Base(rel)
	if rel == "" {
		name = "/"
	}
	return &diskkit.FileInfo{Name: name, Path: rel, IsDir: true}, nil
}

// ListContents implements diskkit.FileReader. Without recursive, deeper
// keys are folded into their first path segment and reported as
// directories.
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]diskkit.FileInfo, error) {
	listPrefix := a.dirKey(dirPath)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(listPrefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var (
		files []diskkit.FileInfo
		found bool
		seen  = make(map[string]bool)
	)
	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("listcontents", dirPath, err)
		}

		for _, p := range page.CommonPrefixes {
			found = true
			dir := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), a.prefix), "/")
			if dir == "" || seen[dir] {
				continue
			}
			seen[dir] = true
			files = append(files, diskkit.FileInfo{Name: path.Base(dir), Path: dir, IsDir: true})
		}

		for _, obj := range page.Contents {
			found = true
			key := aws.ToString(obj.Key)
			if key == listPrefix {
				// Directory marker of the listed directory itself
				continue
			}

			rel := strings.TrimPrefix(key, a.prefix)
			if strings.HasSuffix(rel, "/") {
				dir := strings.TrimSuffix(rel, "/")
				if !seen[dir] {
					seen[dir] = true
					files = append(files, diskkit.FileInfo{
						Name:    path.Base(dir),
						Path:    dir,
						ModTime: aws.ToTime(obj.LastModified),
						IsDir:   true,
					})
				}
				continue
			}

			files = append(files, diskkit.FileInfo{
				Name:    path.Base(rel),
				Path:    rel,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	if !found && relPath(dirPath) != "" {
		if exists, _ := a.FileExists(ctx, dirPath); exists {
			return nil, diskkit.NewPathError("listcontents", dirPath, diskkit.ErrNotDir)
		}
		return nil, diskkit.NewPathError("listcontents", dirPath, diskkit.ErrNotExist)
	}

	return files, nil
}

// CreateDir implements diskkit.FileWriter by writing a "dir/" marker object.
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	if relPath(dirPath) == "" {
		return nil
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.dirKey(dirPath)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String("application/x-directory"),
	})
	if err != nil {
		return mapS3Error("createdir", dirPath, err)
	}
	return nil
}

// DeleteDir implements diskkit.FileWriter, removing every object under the
// directory prefix.
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	if relPath(dirPath) == "" {
		return diskkit.NewPathError("deletedir", dirPath, diskkit.ErrNotAllowed)
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.dirKey(dirPath)),
	})

	var keys []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapS3Error("deletedir", dirPath, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	if len(keys) == 0 {
		return diskkit.NewPathError("deletedir", dirPath, diskkit.ErrNotExist)
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		resp, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{
				Objects: keys[start:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return mapS3Error("deletedir", dirPath, err)
		}
		if len(resp.Errors) > 0 {
			first := resp.Errors[0]
			return diskkit.NewPathError("deletedir", dirPath,
				fmt.Errorf("failed to delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message)))
		}
	}

	return nil
}

// Move implements diskkit.CanMove with CopyObject followed by DeleteObject.
// An existing dst is replaced only with diskkit.WithOverwrite(true).
func (a *Adapter) Move(ctx context.Context, src, dst string, options ...diskkit.Option) error {
	srcKey := a.key(src)
	dstKey := a.key(dst)
	overwrite := diskkit.ProcessOptions(options...).Overwrite

	if _, err := a.head(ctx, srcKey); err != nil {
		return mapS3Error("move", src, err)
	}

	if srcKey == dstKey {
		if !overwrite {
			return diskkit.NewPathError("move", dst, diskkit.ErrExist)
		}
		return nil
	}

	if !overwrite {
		_, err := a.head(ctx, dstKey)
		if err == nil {
			return diskkit.NewPathError("move", dst, diskkit.ErrExist)
		}
		if !isNotFound(err) {
			return mapS3Error("move", dst, err)
		}
	}

	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(copySource(a.bucket, srcKey)),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return mapS3Error("move", src, err)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(srcKey),
	})
	if err != nil {
		return mapS3Error("move", src, err)
	}

	return nil
}

// copySource builds the URL-encoded "bucket/key" value CopyObject expects.
func copySource(bucket, key string) string {
	return bucket + "/" + (&url.URL{Path: key}).EscapedPath()
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// mapS3Error maps S3 errors to diskkit errors
func mapS3Error(op, filePath string, err error) error {
	if isNotFound(err) {
		return diskkit.NewPathError(op, filePath, diskkit.ErrNotExist)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
		return diskkit.NewPathError(op, filePath, fmt.Errorf("%w: %v", diskkit.ErrPermission, err))
	}

	return diskkit.NewPathError(op, filePath, err)
}

var (
	_ diskkit.FileSystem = (*Adapter)(nil)
	_ diskkit.CanMove    = (*Adapter)(nil)
)
