package config

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	awsCredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/pkg/admission"
	"github.com/marmos91/sws/pkg/admission/badger"
	"github.com/marmos91/sws/pkg/content"
	contentS3 "github.com/marmos91/sws/pkg/content/s3"
	"github.com/marmos91/sws/pkg/credentials"
	"github.com/marmos91/sws/pkg/metrics"
	"github.com/marmos91/sws/pkg/server"
	"github.com/mitchellh/mapstructure"
)

// S3Options is the decoded content.s3 section.
type S3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// CreateContentFactory returns the factory the server uses to open a content
// store for each run.
//
// Supported types:
//   - "filesystem": Serves the run's root directory from local disk
//   - "s3": Serves objects under <key_prefix><root>/ in an S3 bucket
//
// For s3 the client is built once here; each run only verifies the bucket.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Complete configuration
//   - contentMetrics: Backend call metrics (nil for none)
func CreateContentFactory(ctx context.Context, cfg *Config, contentMetrics metrics.ContentMetrics) (server.ContentFactory, error) {
	switch cfg.Content.Type {
	case "filesystem":
		return server.FilesystemContent(cfg.Server.UnauthorizedDocument, cfg.Server.ForbiddenDocument), nil
	case "s3":
		return createS3ContentFactory(ctx, cfg.Content.S3, contentMetrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Content.Type)
	}
}

// DecodeS3Options decodes and checks the content.s3 section.
func DecodeS3Options(options map[string]any) (*S3Options, error) {
	var opts S3Options
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}
	if opts.KeyPrefix != "" && !strings.HasSuffix(opts.KeyPrefix, "/") {
		opts.KeyPrefix += "/"
	}
	return &opts, nil
}

// rootPrefix returns the key prefix serving root under base.
func rootPrefix(base, root string) string {
	sub := strings.Trim(path.Clean("/"+root), "/")
	if sub == "" {
		return base
	}
	return base + sub + "/"
}

func createS3ContentFactory(ctx context.Context, options map[string]any, contentMetrics metrics.ContentMetrics) (server.ContentFactory, error) {
	opts, err := DecodeS3Options(options)
	if err != nil {
		return nil, err
	}

	client, err := NewS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("S3 content configured: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)

	return func(ctx context.Context, rootDir string) (content.ContentStore, error) {
		prefix := rootPrefix(opts.KeyPrefix, rootDir)
		store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
			Client:    client,
			Bucket:    opts.Bucket,
			KeyPrefix: prefix,
			Metrics:   contentMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 content store: %w", err)
		}
		logger.Debug("S3 content store serving s3://%s/%s", opts.Bucket, prefix)
		return store, nil
	}, nil
}

// NewS3Client builds an S3 client from the decoded options.
func NewS3Client(ctx context.Context, opts *S3Options) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	// Set credentials if provided, otherwise use default credential chain
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := awsCredentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Document reads are idempotent; retry transient failures generously
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			// MinIO, Localstack, etc.
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// CreateListStore creates the address list store based on configuration.
//
// Supported types:
//   - "memory": Nothing is persisted
//   - "badger": Uses pkg/admission/badger
func CreateListStore(ctx context.Context, cfg *ListStoreConfig) (admission.ListStore, error) {
	switch cfg.Type {
	case "memory":
		return admission.NewMemoryListStore(), nil
	case "badger":
		var storeCfg badger.BadgerListStoreConfig
		if err := mapstructure.Decode(cfg.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode badger list store config: %w", err)
		}
		store, err := badger.NewBadgerListStore(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger list store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown list store type: %q", cfg.Type)
	}
}

// CreateAdmissionController creates the list store and the controller on
// top of it.
func CreateAdmissionController(ctx context.Context, cfg *AdmissionConfig) (*admission.Controller, error) {
	store, err := CreateListStore(ctx, &cfg.Store)
	if err != nil {
		return nil, err
	}

	ctrl, err := admission.New(ctx, admission.Config{
		SampleSize:    cfg.SampleSize,
		TimeThreshold: cfg.TimeThreshold,
		Whitelist:     cfg.Whitelist,
		Blacklist:     cfg.Blacklist,
	}, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create admission controller: %w", err)
	}
	return ctrl, nil
}

// CreateCredentialStore loads the passwd and permissions files.
func CreateCredentialStore(cfg *AuthConfig) (credentials.Store, error) {
	store, err := credentials.LoadFileStore(cfg.PasswdFile, cfg.PermissionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return store, nil
}

// CreateServer wires a server.Server from configuration. The caller owns
// the returned server and must Close it.
func CreateServer(ctx context.Context, cfg *Config, m *MetricsResult) (*server.Server, error) {
	factory, err := CreateContentFactory(ctx, cfg, m.ContentMetrics)
	if err != nil {
		return nil, err
	}

	creds, err := CreateCredentialStore(&cfg.Auth)
	if err != nil {
		return nil, err
	}

	ctrl, err := CreateAdmissionController(ctx, &cfg.Admission)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{
		Web:         cfg.Server.WebConfig,
		Content:     factory,
		Credentials: creds,
		Admission:   ctrl,
		Metrics:     m.WebMetrics,
		Counter:     m.Counter,
	})
	if err != nil {
		_ = ctrl.Close()
		return nil, err
	}
	return srv, nil
}
