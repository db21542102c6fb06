package config

import (
	"fmt"
	"time"
)

// Config represents a cukemsg.yaml configuration file.
// All values are optional and act as defaults for emit flags.
// CLI flags always override config values.
type Config struct {
	RunID  string       `yaml:"run_id"`
	Sink   SinkConfig   `yaml:"sink"`
	Policy PolicyConfig `yaml:"policy"`
	Log    LogConfig    `yaml:"log"`
}

// SinkConfig selects and configures the message sink.
// Fields apply only to the sink types noted.
type SinkConfig struct {
	// Type is one of stdout, file, redis, webhook, lode.
	Type string `yaml:"type"`
	// Format is the wire format for stdout and file sinks (ndjson, binary).
	Format string `yaml:"format"`

	// Path is the file path (file), the filesystem root (lode, fs backend)
	// or bucket/prefix (lode, s3 backend).
	Path string `yaml:"path"`

	// URL is the Redis URL (redis) or endpoint URL (webhook).
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`

	// Lode settings.
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds policy defaults from the config file.
type PolicyConfig struct {
	Name           string   `yaml:"name"`
	BufferMessages int      `yaml:"buffer_messages"`
	FlushCount     int      `yaml:"flush_count"`
	FlushInterval  Duration `yaml:"flush_interval"`
}

// LogConfig holds logging defaults from the config file.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
