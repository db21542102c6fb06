// Package cmd provides CLI commands for the cukemsg binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/cukemsg/policy"
)

// Shared flags for read-only commands (decode, version).
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for decode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (decode only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// EmitFlags returns the flags shared by every emit subcommand: config file,
// sink selection, policy selection and logging. Message-specific flags are
// appended per subcommand.
func EmitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to cukemsg.yaml config file",
			EnvVars: []string{"CUKEMSG_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID (required for the lode sink; added to logs)",
		},
		&cli.StringFlag{
			Name:  "timestamp",
			Usage: "RFC 3339 instant of the event; must be UTC ('Z' suffix). Default: now",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Suppress the emit summary on stderr",
		},

		// Sink flags
		&cli.StringFlag{
			Name:  "sink",
			Usage: "Sink type: stdout, file, redis, webhook, lode",
			Value: sinkStdout,
		},
		&cli.StringFlag{
			Name:  "sink-format",
			Usage: "Wire format for stdout and file sinks: ndjson, binary",
			Value: "ndjson",
		},
		&cli.StringFlag{
			Name:  "sink-path",
			Usage: "File path (file), root directory (lode fs) or bucket/prefix (lode s3)",
		},
		&cli.StringFlag{
			Name:  "sink-url",
			Usage: "Redis URL (redis) or endpoint URL (webhook)",
		},
		&cli.StringFlag{
			Name:  "sink-channel",
			Usage: "Redis pub/sub channel (redis)",
		},
		&cli.StringSliceFlag{
			Name:  "sink-header",
			Usage: "HTTP header as Key=Value, repeatable (webhook)",
		},
		&cli.DurationFlag{
			Name:  "sink-timeout",
			Usage: "Per-attempt timeout (redis, webhook)",
		},
		&cli.IntFlag{
			Name:  "sink-retries",
			Usage: "Retry attempts after the first failure (redis, webhook)",
		},
		&cli.StringFlag{
			Name:  "lode-dataset",
			Usage: "Lode dataset ID (lode)",
		},
		&cli.StringFlag{
			Name:  "lode-backend",
			Usage: "Lode storage backend: fs or s3",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "lode-s3-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "lode-s3-endpoint",
			Usage: "Custom S3 endpoint URL for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "lode-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},

		// Policy flags
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Ingestion policy: strict, buffered, streaming, noop",
			Value: string(policy.NameStrict),
		},
		&cli.IntFlag{
			Name:  "buffer-messages",
			Usage: "Max buffered messages (buffered policy)",
		},
		&cli.IntFlag{
			Name:  "flush-count",
			Usage: "Flush after N messages (streaming policy)",
		},
		&cli.DurationFlag{
			Name:  "flush-interval",
			Usage: "Flush every interval (streaming policy)",
		},

		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "warn",
		},
	}
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
