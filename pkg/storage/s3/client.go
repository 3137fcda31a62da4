// Package s3 stores audit archives in S3 compatible object storage.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edugatenow/edugate/pkg/storage"
)

var tracer = otel.Tracer("github.com/edugatenow/edugate/pkg/storage/s3")

// API is the subset of the S3 client used here
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Client writes and reads archive objects in one bucket
type Client struct {
	api    API
	bucket string
}

// NewClient loads AWS configuration and makes sure the bucket exists
func NewClient(ctx context.Context, cfg storage.Config) (*Client, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials for MinIO or explicit keys
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	c := NewWithAPI(api, cfg.S3Bucket)
	if err := c.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return c, nil
}

// NewWithAPI wraps an existing S3 API implementation
func NewWithAPI(api API, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

// Bucket returns the configured bucket name
func (c *Client) Bucket() string {
	return c.bucket
}

// PutObject uploads data under key with a sha256 checksum in the metadata
func (c *Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := tracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", key),
			attribute.Int("content.size", len(data)),
		),
	)
	defer span.End()

	hash := sha256.Sum256(data)
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload to s3: %w", err)
	}
	return nil
}

// GetObject returns the object body; callers close it
func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "S3.GetObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get object from s3")
		return nil, fmt.Errorf("failed to get object from s3: %w", err)
	}
	return out.Body, nil
}

// HealthCheck verifies the bucket is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err == nil {
		return nil
	}
	_, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}
