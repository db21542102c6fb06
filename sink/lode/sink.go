// Package lode implements a sink that persists message envelopes to a Lode
// dataset on the local filesystem or S3.
//
// Records are Hive-partitioned by day, run_id and message_type and stored as
// JSONL. Each Write produces one Lode snapshot. Every record carries a
// per-run seq so ReadMessages can restore emission order across partitions.
package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/sink"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "cucumber_messages"

// Config identifies where a run's messages are stored.
type Config struct {
	// Dataset is the Lode dataset ID (default: cucumber_messages).
	Dataset string
	// RunID is the run partition value (required).
	RunID string
	// Day overrides the day partition. Empty derives it from each
	// message's UTC timestamp.
	Day string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.RunID == "" {
		return errors.New("lode sink requires a run ID")
	}
	if strings.ContainsAny(c.RunID, "/=") {
		return fmt.Errorf("run ID %q must not contain '/' or '='", c.RunID)
	}
	return nil
}

// Sink writes envelopes to a Lode dataset.
type Sink struct {
	dataset lode.Dataset
	config  Config

	mu sync.Mutex // serializes writes; guards next and resumed
	// next is the seq assigned to the next envelope written.
	next    int64
	resumed bool
}

// NewFS creates a sink with filesystem storage rooted at root.
func NewFS(cfg Config, root string) (*Sink, error) {
	return NewWithFactory(cfg, lode.NewFSFactory(root))
}

// NewWithFactory creates a sink with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewWithFactory(cfg Config, factory lode.StoreFactory) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}

	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, wrapError(err, "init", cfg.Dataset)
	}

	return &Sink{dataset: ds, config: cfg}, nil
}

// NewDataset opens a dataset with the layout and codec the sink writes.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Write persists the batch as one snapshot. Ordering within the batch is
// preserved through each record's seq.
//
// The first Write resumes the run's sequence from records already in the
// dataset, so separate processes appending to one run keep a single order.
// Seq values advance only after a successful write; a batch rewritten after
// a failure gets the same values again.
func (s *Sink) Write(ctx context.Context, envelopes []*messages.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	for _, env := range envelopes {
		if err := env.Validate(); err != nil {
			return fmt.Errorf("lode: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.resumed {
		next, err := nextSeq(ctx, s.dataset, s.config.RunID)
		if err != nil {
			return err
		}
		s.next = next
		s.resumed = true
	}

	records := make([]any, 0, len(envelopes))
	for i, env := range envelopes {
		records = append(records, toMessageRecordMap(env, s.config, s.next+int64(i)))
	}

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return wrapError(err, "write", s.config.Dataset+"/run_id="+s.config.RunID)
	}
	s.next += int64(len(envelopes))
	return nil
}

// Close releases sink resources.
func (s *Sink) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify Sink implements the sink interface.
var _ sink.Sink = (*Sink)(nil)

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// NewS3 creates a sink with S3 storage.
// Uses AWS SDK default credential chain (env vars, shared config, IAM role).
func NewS3(ctx context.Context, cfg Config, s3cfg S3Config) (*Sink, error) {
	factory, err := S3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewWithFactory(cfg, factory)
}

// S3Factory builds a Lode store factory for s3cfg.
func S3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	s3Client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(s3Client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}
