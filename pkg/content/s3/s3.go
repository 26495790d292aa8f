// Package s3 implements a ContentStore serving documents from an S3 bucket
// (or any S3-compatible service).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/sws/pkg/content"
	"github.com/marmos91/sws/pkg/metrics"
)

// Client is the subset of the S3 API used by the store. *s3.Client
// satisfies it.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3ContentStore serves documents stored as objects.
//
// Path-Based Key Design:
//   - The request path is cleaned and its leading "/" dropped
//   - The configured key prefix is prepended
//   - A directory is any key that has at least one object below "<key>/"
//
// Example:
//
//	Request:    /docs/index.html
//	Key Prefix: "site/"
//	S3 Key:     "site/docs/index.html"
//
// Thread Safety:
// The store holds no mutable state and is safe for concurrent use.
type S3ContentStore struct {
	client    Client
	bucket    string
	keyPrefix string
	metrics   metrics.ContentMetrics
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client.
	Client Client

	// Bucket is the S3 bucket name.
	Bucket string

	// KeyPrefix is prepended to every object key. When set it should end
	// with "/".
	KeyPrefix string

	// Metrics observes every backend call. Nil disables collection.
	Metrics metrics.ContentMetrics
}

// NewS3ContentStore creates a new S3-based content store and verifies that
// the bucket is reachable. The bucket must already exist.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3ContentStore: Initialized S3 content store
//   - error: Returns error if bucket access fails or context is cancelled
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopContentMetrics()
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   m,
	}, nil
}

// observe records the outcome of one backend call. Missing objects are
// expected and do not count as errors.
func (s *S3ContentStore) observe(operation string, start time.Time, err error) {
	if isNotFound(err) {
		err = nil
	}
	s.metrics.ObserveOperation(operation, time.Since(start), err)
}

// objectKey returns the cleaned request path and its object key.
func (s *S3ContentStore) objectKey(p string) (string, string) {
	clean := content.CleanPath(p)
	return clean, s.keyPrefix + strings.TrimPrefix(clean, "/")
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// Stat returns metadata for the object at p, or a directory entry when
// objects exist below p.
func (s *S3ContentStore) Stat(ctx context.Context, p string) (*content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, key := s.objectKey(p)

	if clean != "/" {
		start := time.Now()
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		s.observe("HeadObject", start, err)
		if err == nil {
			return s.fileInfo(clean, head), nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to head object %s: %w", key, err)
		}
	}

	dirPrefix := key
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}
	if clean == "/" {
		dirPrefix = s.keyPrefix
	}

	start := time.Now()
	list, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})
	s.observe("ListObjectsV2", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", dirPrefix, err)
	}
	if len(list.Contents) == 0 && clean != "/" {
		return nil, fmt.Errorf("document %s: %w", clean, content.ErrContentNotFound)
	}

	var modTime time.Time
	if len(list.Contents) > 0 {
		modTime = aws.ToTime(list.Contents[0].LastModified)
	}
	return &content.FileInfo{Path: clean, ModTime: modTime, IsDir: true}, nil
}

func (s *S3ContentStore) fileInfo(clean string, head *s3.HeadObjectOutput) *content.FileInfo {
	ct := aws.ToString(head.ContentType)
	if ct == "" || ct == "binary/octet-stream" || ct == content.DefaultContentType {
		ct = content.DetectContentType(clean, nil)
	}
	return &content.FileInfo{
		Path:        clean,
		Size:        aws.ToInt64(head.ContentLength),
		ModTime:     aws.ToTime(head.LastModified),
		ContentType: ct,
	}
}

// Open streams the object at p. The caller must close the reader.
func (s *S3ContentStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, key := s.objectKey(p)
	if clean == "/" {
		return nil, fmt.Errorf("document %s: %w", clean, content.ErrIsDirectory)
	}

	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.observe("GetObject", start, err)
	if err != nil {
		if isNotFound(err) {
			if info, statErr := s.Stat(ctx, clean); statErr == nil && info.IsDir {
				return nil, fmt.Errorf("document %s: %w", clean, content.ErrIsDirectory)
			}
			return nil, fmt.Errorf("document %s: %w", clean, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return result.Body, nil
}

// Close is a no-op; the S3 client holds no per-store resources.
func (s *S3ContentStore) Close() error {
	return nil
}
