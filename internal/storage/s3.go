package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config selects the endpoint and credentials. Empty fields fall back to
// the default AWS credential chain and region.
type S3Config struct {
	Endpoint        string `env:"ENDPOINT"`
	Region          string `env:"REGION"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

// uploader is the part of manager.Uploader the store needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3ObjectStore uploads objects to one bucket.
type S3ObjectStore struct {
	bucket   string
	uploader uploader
}

var _ ObjectStore = (*S3ObjectStore)(nil)

// NewS3ObjectStore builds a client for bucket. Path-style addressing is used
// so MinIO and other S3-compatible endpoints work.
func NewS3ObjectStore(ctx context.Context, bucket string, cfg S3Config) (*S3ObjectStore, error) {
	var opts []func(*aws_config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, aws_config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3ObjectStore{bucket: bucket, uploader: manager.NewUploader(client)}, nil
}

func (s *S3ObjectStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to %s: %w", s.Location(key), err)
	}
	return nil
}

func (s *S3ObjectStore) Location(key string) string {
	return "s3://" + s.bucket + "/" + key
}
