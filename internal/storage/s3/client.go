// Package s3 archives raw firewall log records to object storage so
// the original payloads survive ClickHouse retention.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"waf-sentinel/internal/config"
)

// Client wraps the S3 client for archive uploads.
type Client struct {
	client *s3.Client
	cfg    config.ArchiveConfig
	logger *slog.Logger
}

// NewClient creates an S3 client from the archive configuration.
// Static credentials are used when configured, otherwise the default
// provider chain (IAM role, env, shared config).
func NewClient(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	c := &Client{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
		logger: logger,
	}

	logger.Info("s3 archive client initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"prefix", cfg.Prefix,
	)

	return c, nil
}

// Put uploads one object under the configured prefix.
func (c *Client) Put(ctx context.Context, key, contentType string, data []byte) error {
	fullKey := key
	if c.cfg.Prefix != "" {
		fullKey = c.cfg.Prefix + "/" + key
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3: failed to upload object %s: %w", fullKey, err)
	}

	c.logger.Debug("uploaded object", "key", fullKey, "size", len(data))
	return nil
}
