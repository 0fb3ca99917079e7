package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"putplace/internal/config"
	"putplace/internal/pp"
)

// S3Store is an object-storage implementation of the ContentStore interface.
// It uses the same two-level shard key scheme as the filesystem store,
// placed under a configurable key prefix:
//
//	s3://<bucket>/<prefix>/e3/e3b0c44298fc1c...
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store creates an S3-backed content store from config. When no static
// credentials are configured the default AWS credential chain is used
// (environment, shared credentials file, instance role). An endpoint
// override supports S3-compatible services.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires s3_bucket to be set")
	}

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	prefix := cfg.S3Prefix
	if prefix == "" {
		prefix = "files"
	}
	prefix = strings.Trim(prefix, "/")

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   prefix,
	}, nil
}

// key returns the sharded object key for a hash.
func (s *S3Store) key(sha256 string) string {
	return s.prefix + "/" + sha256[:2] + "/" + sha256
}

// Store uploads content under its hash. PutObject overwrites are safe:
// content is verified identical by hash before it reaches the store.
func (s *S3Store) Store(ctx context.Context, sha256 string, r io.Reader, size int64) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sha256)),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"sha256": sha256},
	})
	if err != nil {
		return fmt.Errorf("uploading to s3: %w", err)
	}
	return nil
}

// Retrieve copies the content stored under the hash to w.
func (s *S3Store) Retrieve(ctx context.Context, sha256 string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sha256)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("content not found: %s", sha256)
		}
		return fmt.Errorf("fetching from s3: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3 object: %w", err)
	}
	return nil
}

// Exists probes object metadata to report whether content is stored.
func (s *S3Store) Exists(ctx context.Context, sha256 string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sha256)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("probing s3 object: %w", err)
	}
	return true, nil
}

// Delete removes stored content, reporting whether an object was removed.
func (s *S3Store) Delete(ctx context.Context, sha256 string) (bool, error) {
	exists, err := s.Exists(ctx, sha256)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sha256)),
	})
	if err != nil {
		return false, fmt.Errorf("deleting s3 object: %w", err)
	}
	return true, nil
}

// Location returns the s3:// URI content for a hash is (or would be) stored
// at.
func (s *S3Store) Location(sha256 string) string {
	return "s3://" + s.bucket + "/" + s.key(sha256)
}

// Compile-time check that S3Store implements pp.ContentStore
var _ pp.ContentStore = (*S3Store)(nil)
