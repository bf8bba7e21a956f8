package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/koltyakov/formexport/internal/config"
)

// uploadAPI is the part of manager.Uploader used here
type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// objectAPI is the part of s3.Client used here
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Client wraps AWS S3 operations for formexport
type S3Client struct {
	client   objectAPI
	uploader uploadAPI
	cfg      *config.S3Config
}

// NewS3Client creates a new S3 client from configuration
func NewS3Client(ctx context.Context, cfg *config.S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		// Region is required by AWS SDK but not used for custom endpoints
		if cfg.Region == "" {
			opts = append(opts, awsconfig.WithRegion("us-east-1"))
		}
		// Use static credentials when endpoint is custom
		if cfg.AccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				cfg.SessionToken,
			)))
		}
	}

	// Without a custom endpoint the default AWS credential chain applies
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.IsMinIO()
		}
	})

	// Configure multipart upload with fixed 5MB part size
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = config.DefaultS3PartSize
		u.Concurrency = config.DefaultS3Concurrency
	})

	return &S3Client{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
	}, nil
}

// Bucket returns the destination bucket
func (s *S3Client) Bucket() string {
	return s.cfg.Bucket
}

// UploadStream uploads data from an io.Reader to S3 using multipart upload
func (s *S3Client) UploadStream(ctx context.Context, key, contentType string, r io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 (key=%s): %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in S3
func (s *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}

	_, err := s.client.HeadObject(ctx, input)
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check S3 object existence (key=%s): %w", key, err)
	}

	return true, nil
}

// Delete deletes an object from S3
func (s *S3Client) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}

	_, err := s.client.DeleteObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to delete from S3 (key=%s): %w", key, err)
	}

	return nil
}

// ConnectivityTestKey is the object written and removed by CheckConnection
const ConnectivityTestKey = ".formexport-connectivity-test"

// CheckConnection verifies S3 connectivity and PutObject permissions
// It uploads a small test object and then deletes it
func (s *S3Client) CheckConnection(ctx context.Context) error {
	testKey := s.cfg.Key(ConnectivityTestKey)

	// Try to upload a small object (tests PutObject permission)
	putInput := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(testKey),
		Body:   bytes.NewReader([]byte("connectivity check")),
	}

	_, err := s.client.PutObject(ctx, putInput)
	if err != nil {
		return fmt.Errorf("S3 connection check failed: %w", err)
	}

	// Tests HeadObject permission and read-after-write visibility
	exists, err := s.Exists(ctx, testKey)
	if err != nil {
		return fmt.Errorf("S3 connection check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("S3 connection check failed: test object %s not visible", testKey)
	}

	// Clean up the test object
	if err := s.Delete(ctx, testKey); err != nil {
		return fmt.Errorf("S3 connection check succeeded but cleanup failed: %w", err)
	}

	return nil
}
