// Package s3 provides an S3-compatible BlobStore for the raw upload bucket.
// Resumable transfers use the multipart upload API: parts accumulate
// server-side and nothing is visible under the key until the upload is
// completed, which is what lets a transfer pause, resume and abort cleanly.
package s3

import (
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
	"github.com/aws/smithy-go"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// IsNoSuchBucket reports whether err is the service's missing-bucket error.
// Callers use it to distinguish a misconfigured raw bucket from a transient
// failure.
func IsNoSuchBucket(err error) bool {
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	PresignDuration int    // Duration in seconds for presigned URLs (default: 3600)

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend is an S3-compatible implementation of the mediaingest.BlobStore
// interface.
type Backend struct {
	client          *s3.Client
	bucket          string
	presignClient   *s3.PresignClient
	presignDuration time.Duration
}

// New creates a new S3-compatible storage backend.
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	if config.PresignDuration == 0 {
		config.PresignDuration = 3600 // 1 hour default
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:          client,
		bucket:          config.Bucket,
		presignClient:   s3.NewPresignClient(client),
		presignDuration: time.Duration(config.PresignDuration) * time.Second,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background(), config.Region); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

func (b *Backend) createBucketIfNotExists(ctx context.Context, region string) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, createInput); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload uploads content in one shot.
func (b *Backend) Upload(ctx context.Context, key, contentType string, reader io.Reader) error {
	uploader := manager.NewUploader(b.client)

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return &mediaingest.StorageError{Bucket: b.bucket, Key: key, Op: "upload", Err: err}
	}
	return nil
}

// URL returns a presigned GET URL for the object.
func (b *Backend) URL(ctx context.Context, key string) (string, error) {
	result, err := b.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = b.presignDuration
	})
	if err != nil {
		return "", &mediaingest.StorageError{Bucket: b.bucket, Key: key, Op: "presign", Err: err}
	}
	return result.URL, nil
}

// NewUploadSession starts a multipart upload for the key.
func (b *Backend) NewUploadSession(ctx context.Context, key, contentType string, totalSize int64) (mediaingest.UploadSession, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := b.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, &mediaingest.StorageError{Bucket: b.bucket, Key: key, Op: "create multipart upload", Err: err}
	}

	return &uploadSession{
		backend:  b,
		key:      key,
		uploadID: aws.ToString(result.UploadId),
	}, nil
}

type uploadSession struct {
	backend  *Backend
	key      string
	uploadID string

	parts     []types.CompletedPart
	bytesSent int64
}

func (s *uploadSession) UploadPart(ctx context.Context, reader io.Reader, size int64) error {
	partNumber := int32(len(s.parts) + 1)

	result, err := s.backend.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.backend.bucket),
		Key:           aws.String(s.key),
		UploadId:      aws.String(s.uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          reader,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return &mediaingest.StorageError{Bucket: s.backend.bucket, Key: s.key, Op: "upload part", Err: err}
	}

	s.parts = append(s.parts, types.CompletedPart{
		ETag:       result.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	s.bytesSent += size
	return nil
}

func (s *uploadSession) Complete(ctx context.Context) error {
	_, err := s.backend.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.backend.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: s.parts,
		},
	})
	if err != nil {
		return &mediaingest.StorageError{Bucket: s.backend.bucket, Key: s.key, Op: "complete multipart upload", Err: err}
	}
	return nil
}

func (s *uploadSession) Abort(ctx context.Context) error {
	_, err := s.backend.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.backend.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
	})
	if err != nil {
		return &mediaingest.StorageError{Bucket: s.backend.bucket, Key: s.key, Op: "abort multipart upload", Err: err}
	}
	return nil
}

func (s *uploadSession) BytesSent() int64 {
	return s.bytesSent
}
