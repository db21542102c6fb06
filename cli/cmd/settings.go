package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/cukemsg/cli/config"
	"github.com/justapithecus/cukemsg/log"
	"github.com/justapithecus/cukemsg/policy"
	"github.com/justapithecus/cukemsg/sink"
	sinklode "github.com/justapithecus/cukemsg/sink/lode"
	"github.com/justapithecus/cukemsg/sink/redis"
	"github.com/justapithecus/cukemsg/sink/stream"
	"github.com/justapithecus/cukemsg/sink/webhook"
	"github.com/justapithecus/cukemsg/wire"
)

// Sink types.
const (
	sinkStdout  = "stdout"
	sinkFile    = "file"
	sinkRedis   = "redis"
	sinkWebhook = "webhook"
	sinkLode    = "lode"
)

// sinkChoice holds resolved sink configuration.
type sinkChoice struct {
	kind    string
	format  string
	path    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
	// retriesSet distinguishes an explicit 0 from "use the sink default".
	retriesSet bool

	dataset     string
	backend     string // "fs" or "s3"
	s3Region    string
	s3Endpoint  string
	s3PathStyle bool
}

// policyChoice holds resolved policy configuration.
type policyChoice struct {
	name           policy.Name
	bufferMessages int
	flushCount     int
	flushInterval  time.Duration
}

// emitSettings is the fully resolved configuration for one emit invocation.
// CLI flags win over config file values, which win over flag defaults.
type emitSettings struct {
	runID    string
	logLevel string
	sink     sinkChoice
	policy   policyChoice
}

// loadConfig loads the file named by --config, or returns nil when unset.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}

// resolveEmitSettings merges cfg (may be nil) with the flags in c and
// validates the result.
func resolveEmitSettings(c *cli.Context, cfg *config.Config) (*emitSettings, error) {
	s := &emitSettings{
		runID:    resolveString(c, "run-id", configVal(cfg, func(c *config.Config) string { return c.RunID })),
		logLevel: resolveString(c, "log-level", configVal(cfg, func(c *config.Config) string { return c.Log.Level })),
	}

	var sc config.SinkConfig
	var pc config.PolicyConfig
	if cfg != nil {
		sc = cfg.Sink
		pc = cfg.Policy
	}

	headers, err := parseHeaders(c.StringSlice("sink-header"))
	if err != nil {
		return nil, err
	}
	if !c.IsSet("sink-header") && len(sc.Headers) > 0 {
		headers = sc.Headers
	}

	s.sink = sinkChoice{
		kind:        resolveString(c, "sink", sc.Type),
		format:      resolveString(c, "sink-format", sc.Format),
		path:        resolveString(c, "sink-path", sc.Path),
		url:         resolveString(c, "sink-url", sc.URL),
		channel:     resolveString(c, "sink-channel", sc.Channel),
		headers:     headers,
		timeout:     resolveDuration(c, "sink-timeout", sc.Timeout.Duration),
		dataset:     resolveString(c, "lode-dataset", sc.Dataset),
		backend:     resolveString(c, "lode-backend", sc.Backend),
		s3Region:    resolveString(c, "lode-s3-region", sc.Region),
		s3Endpoint:  resolveString(c, "lode-s3-endpoint", sc.Endpoint),
		s3PathStyle: resolveBool(c, "lode-s3-path-style", sc.S3PathStyle),
	}
	switch {
	case c.IsSet("sink-retries"):
		s.sink.retries, s.sink.retriesSet = c.Int("sink-retries"), true
	case sc.Retries != nil:
		s.sink.retries, s.sink.retriesSet = *sc.Retries, true
	}

	name, err := policy.ParseName(resolveString(c, "policy", pc.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid --policy: %w", err)
	}
	s.policy = policyChoice{
		name:           name,
		bufferMessages: resolveInt(c, "buffer-messages", pc.BufferMessages),
		flushCount:     resolveInt(c, "flush-count", pc.FlushCount),
		flushInterval:  resolveDuration(c, "flush-interval", pc.FlushInterval.Duration),
	}

	if err := validateSinkChoice(s.sink, s.runID); err != nil {
		return nil, err
	}
	if err := validatePolicyChoice(s.policy); err != nil {
		return nil, err
	}
	return s, nil
}

func validateSinkChoice(choice sinkChoice, runID string) error {
	if choice.retriesSet && choice.retries < 0 {
		return fmt.Errorf("invalid --sink-retries: must be >= 0, got %d", choice.retries)
	}
	switch choice.kind {
	case sinkStdout:
		_, err := wire.ParseFormat(choice.format)
		return err
	case sinkFile:
		if choice.path == "" {
			return fmt.Errorf("file sink requires --sink-path")
		}
		_, err := wire.ParseFormat(choice.format)
		return err
	case sinkRedis:
		if choice.url == "" {
			return fmt.Errorf("redis sink requires --sink-url (e.g. redis://localhost:6379)")
		}
	case sinkWebhook:
		if choice.url == "" {
			return fmt.Errorf("webhook sink requires --sink-url")
		}
	case sinkLode:
		if choice.path == "" {
			return fmt.Errorf("lode sink requires --sink-path (fs: directory, s3: bucket/prefix)")
		}
		if runID == "" {
			return fmt.Errorf("lode sink requires --run-id")
		}
		switch choice.backend {
		case "", "fs", "s3":
		default:
			return fmt.Errorf("invalid --lode-backend: %s (must be fs or s3)", choice.backend)
		}
	default:
		return fmt.Errorf("invalid --sink: %q (must be stdout, file, redis, webhook or lode)", choice.kind)
	}
	return nil
}

func validatePolicyChoice(choice policyChoice) error {
	switch choice.name {
	case policy.NameStrict, policy.NameNoop:
		if choice.bufferMessages > 0 || choice.flushCount > 0 || choice.flushInterval > 0 {
			fmt.Fprintf(os.Stderr, "Warning: buffer/flush settings ignored for %s policy\n", choice.name)
		}
	case policy.NameBuffered:
		if choice.bufferMessages < 0 {
			return fmt.Errorf("invalid --buffer-messages: must be >= 0, got %d", choice.bufferMessages)
		}
	case policy.NameStreaming:
		if choice.flushCount <= 0 && choice.flushInterval <= 0 {
			return fmt.Errorf("streaming policy requires --flush-count > 0 or --flush-interval > 0")
		}
	}
	return nil
}

// buildSink opens the sink described by choice.
func buildSink(ctx context.Context, choice sinkChoice, runID string) (sink.Sink, error) {
	switch choice.kind {
	case sinkStdout:
		format, err := wire.ParseFormat(choice.format)
		if err != nil {
			return nil, err
		}
		return stream.Stdout(format)

	case sinkFile:
		format, err := wire.ParseFormat(choice.format)
		if err != nil {
			return nil, err
		}
		return stream.OpenFile(choice.path, format)

	case sinkRedis:
		retries := redis.DefaultRetries
		if choice.retriesSet {
			retries = choice.retries
		}
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: retries,
		})

	case sinkWebhook:
		retries := webhook.DefaultRetries
		if choice.retriesSet {
			retries = choice.retries
		}
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: retries,
		})

	case sinkLode:
		cfg := sinklode.Config{Dataset: choice.dataset, RunID: runID}
		if choice.backend == "s3" {
			bucket, prefix := sinklode.ParseS3Path(choice.path)
			return sinklode.NewS3(ctx, cfg, sinklode.S3Config{
				Bucket:       bucket,
				Prefix:       prefix,
				Region:       choice.s3Region,
				Endpoint:     choice.s3Endpoint,
				UsePathStyle: choice.s3PathStyle,
			})
		}
		return sinklode.NewFS(cfg, choice.path)

	default:
		return nil, fmt.Errorf("unknown sink: %s", choice.kind)
	}
}

// buildPolicy wraps s in the policy described by choice. The noop policy
// never writes, so s is closed immediately.
func buildPolicy(choice policyChoice, s sink.Sink, logger *log.Logger) (policy.Policy, error) {
	switch choice.name {
	case policy.NameStrict:
		return policy.NewStrictPolicy(s), nil

	case policy.NameBuffered:
		cfg := policy.DefaultBufferedConfig()
		if choice.bufferMessages > 0 {
			cfg.MaxBufferMessages = choice.bufferMessages
		}
		cfg.Logger = logger
		return policy.NewBufferedPolicy(s, cfg)

	case policy.NameStreaming:
		return policy.NewStreamingPolicy(s, policy.StreamingConfig{
			FlushCount:    choice.flushCount,
			FlushInterval: choice.flushInterval,
			Logger:        logger,
		})

	case policy.NameNoop:
		if err := s.Close(); err != nil {
			return nil, err
		}
		return policy.NewNoopPolicy(), nil

	default:
		return nil, fmt.Errorf("unknown policy: %s", choice.name)
	}
}

// parseHeaders parses Key=Value pairs.
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --sink-header %q: expected Key=Value", pair)
		}
		headers[k] = strings.TrimSpace(v)
	}
	return headers, nil
}

// configVal reads a value from cfg, returning the zero value when cfg is nil.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag value if set on the command line, else the
// config value if non-empty, else the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

// resolveInt is resolveString for int flags; a zero config value means unset.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

// resolveBool is resolveString for bool flags; config can only turn a flag on.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

// resolveDuration is resolveString for duration flags.
func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}
