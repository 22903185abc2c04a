// Package mirror copies written artifacts to S3 compatible object storage.
// Mirroring is best effort: failures are logged and never reach callers.
package mirror

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/config"
)

// Uploader stores the file at localPath under key
type Uploader interface {
	Upload(ctx context.Context, key, localPath string) error
}

// Nop discards uploads
type Nop struct{}

func (Nop) Upload(context.Context, string, string) error { return nil }

// S3 uploads into one bucket under an optional key prefix
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3(ctx context.Context, c config.S3Config) (*S3, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("mirror.s3.bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = c.PathStyle
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})

	return &S3{client: client, bucket: c.Bucket, prefix: c.Prefix}, nil
}

func (s *S3) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   f,
	}
	if ct := contentType(localPath); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *S3) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func contentType(p string) string {
	if filepath.Ext(p) == ".glb" {
		return "model/gltf-binary"
	}
	return mime.TypeByExtension(filepath.Ext(p))
}

// Mirror mirrors files from the output directory, keyed by their path
// relative to it
type Mirror struct {
	uploader Uploader
	root     string
	timeout  time.Duration
	logger   *zap.Logger
}

func New(uploader Uploader, root string, logger *zap.Logger) *Mirror {
	if uploader == nil {
		uploader = Nop{}
	}
	return &Mirror{
		uploader: uploader,
		root:     root,
		timeout:  2 * time.Minute,
		logger:   logger.With(zap.String("component", "mirror")),
	}
}

// Copy uploads the given files and logs failures
func (m *Mirror) Copy(ctx context.Context, paths ...string) {
	if _, ok := m.uploader.(Nop); ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	for _, p := range paths {
		rel, err := filepath.Rel(m.root, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		key := filepath.ToSlash(rel)
		if err := m.uploader.Upload(ctx, key, p); err != nil {
			m.logger.Warn("mirror upload failed", zap.String("key", key), zap.Error(err))
			continue
		}
		m.logger.Debug("mirrored", zap.String("key", key))
	}
}
