// Package storage persists pipeline output: image bytes to object
// storage and product records to the relational store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aluiziolira/go-catalog-ingest/models"
)

// S3Config holds configuration for the media uploader.
type S3Config struct {
	Bucket    string
	Region    string // default us-east-1
	Endpoint  string // custom endpoint for S3-compatible storage (MinIO, etc.)
	AccessKey string // optional, uses the default credential chain if empty
	SecretKey string
}

// S3Uploader uploads image bytes and returns addressable URLs. The
// client is stateless and shared across all concurrent units of a run.
type S3Uploader struct {
	client *s3.Client
	config S3Config
}

// NewS3Uploader creates the uploader. A failure here aborts the run
// before any work is dispatched.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO and most S3-compatible storage
		})
	}

	return &S3Uploader{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
	}, nil
}

// Upload puts body at key with an image/jpeg content type. A failed
// upload is reported, never raised: the owning product simply omits
// this image.
func (u *S3Uploader) Upload(ctx context.Context, sourceURL string, body []byte, key string) models.UploadResult {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		slog.Error("s3 upload failed",
			slog.String("key", key),
			slog.String("source_url", sourceURL),
			slog.Any("error", err),
		)
		return models.UploadResult{SourceURL: sourceURL}
	}

	return models.UploadResult{
		SourceURL:      sourceURL,
		DestinationURL: u.objectURL(key),
		Succeeded:      true,
	}
}

func (u *S3Uploader) objectURL(key string) string {
	if u.config.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(u.config.Endpoint, "/"), u.config.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", u.config.Bucket, key)
}

// ImageKey builds the deterministic object key for a product image:
// {category}/{slugified-title}/img_{index}.jpg.
func ImageKey(category, title string, index int) string {
	return fmt.Sprintf("%s/%s/img_%d.jpg", category, SlugifyTitle(title), index)
}

// SlugifyTitle derives the object-key folder from a product title: the
// segment before any "|" separator, trimmed, with spaces and path
// separators replaced by hyphens.
func SlugifyTitle(title string) string {
	slug := strings.TrimSpace(strings.SplitN(title, "|", 2)[0])
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "/", "-")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}
