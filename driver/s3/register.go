package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gobeaver/diskkit"
)

func init() {
	diskkit.RegisterDriver(diskkit.DriverS3, createS3FileSystem)
}

func createS3FileSystem(cfg diskkit.DiskConfig) (diskkit.FileSystem, error) {
	if cfg.S3 == nil {
		return nil, fmt.Errorf("%w: s3 params missing", diskkit.ErrDiskNotConfigured)
	}

	s3Client, err := createS3Client(cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	var opts []AdapterOption
	if cfg.S3.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.S3.Prefix))
	}

	return New(s3Client, cfg.S3.Bucket, opts...), nil
}

// createS3Client creates an S3 client from the disk params
func createS3Client(params *diskkit.S3Params) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(params.Region),
	)
	if err != nil {
		return nil, err
	}

	// Override with explicit credentials if provided
	if params.AccessKey != "" && params.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		if params.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}
