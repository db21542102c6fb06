package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/cukemsg/cli/render"
	"github.com/justapithecus/cukemsg/emitter"
	"github.com/justapithecus/cukemsg/factory"
	"github.com/justapithecus/cukemsg/log"
	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/metrics"
)

// Exit codes for emit. Success exits 0.
const (
	exitDeliveryFailure = 1
	exitBuildFailure    = 2
	exitConfigError     = 3
)

// EmitResponse summarizes one emit invocation.
type EmitResponse struct {
	Type      string `json:"type" yaml:"type"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	PickleID  string `json:"pickle_id,omitempty" yaml:"pickle_id,omitempty"`
	Sink      string `json:"sink" yaml:"sink"`
	Policy    string `json:"policy" yaml:"policy"`
	Persisted int64  `json:"persisted" yaml:"persisted"`
	Flushes   int64  `json:"flushes" yaml:"flushes"`
}

// EmitCommand returns the emit command with one subcommand per message type.
// Each invocation builds exactly one message and delivers it through the
// configured policy and sink.
func EmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "emit",
		Usage: "Build one message and deliver it to a sink",
		Subcommands: []*cli.Command{
			{
				Name:   "run-started",
				Usage:  "Emit test_run_started",
				Flags:  EmitFlags(),
				Action: emitAction(emitRunStarted),
			},
			{
				Name:  "case-started",
				Usage: "Emit test_case_started",
				Flags: append(EmitFlags(), &cli.StringFlag{
					Name:     "pickle-id",
					Usage:    "Pickle UUID (any textual UUID form)",
					Required: true,
				}),
				Action: emitAction(emitCaseStarted),
			},
			{
				Name:  "case-finished",
				Usage: "Emit test_case_finished",
				Flags: append(EmitFlags(),
					&cli.StringFlag{
						Name:     "pickle-id",
						Usage:    "Pickle UUID (any textual UUID form)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "status",
						Usage:    "Result status: passed, failed, skipped, pending, undefined, ambiguous, unknown",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "duration",
						Usage: "Elapsed time of the test case",
					},
					&cli.StringFlag{
						Name:  "message",
						Usage: "Failure message",
					},
				),
				Action: emitAction(emitCaseFinished),
			},
			{
				Name:  "run-finished",
				Usage: "Emit test_run_finished",
				Flags: append(EmitFlags(), &cli.BoolFlag{
					Name:  "success",
					Usage: "Whether the run succeeded",
				}),
				Action: emitAction(emitRunFinished),
			},
		},
	}
}

// emitFunc builds and emits one message. It returns the emitted envelope.
type emitFunc func(ctx context.Context, c *cli.Context, em *emitter.Emitter, ts time.Time) (*messages.Envelope, error)

func emitAction(fn emitFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		settings, err := resolveEmitSettings(c, cfg)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		ts, err := parseTimestamp(c.String("timestamp"))
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}

		logger, err := log.NewLogger(log.Config{
			Level:  settings.logLevel,
			Output: os.Stderr,
			RunID:  settings.runID,
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid --log-level: %v", err), exitConfigError)
		}
		defer func() { _ = logger.Sync() }()

		ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		resp, err := emitOne(ctx, c, settings, logger, ts, fn)
		if err != nil {
			return err
		}

		if !c.Bool("quiet") {
			if err := printEmitResponse(os.Stderr, resp); err != nil {
				return err
			}
		}
		return nil
	}
}

// emitOne wires sink, policy and emitter, runs fn and closes everything.
// Errors are returned as cli.Exit values carrying the emit exit code.
func emitOne(ctx context.Context, c *cli.Context, settings *emitSettings, logger *log.Logger, ts time.Time, fn emitFunc) (*EmitResponse, error) {
	s, err := buildSink(ctx, settings.sink, settings.runID)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open %s sink: %v", settings.sink.kind, err), exitDeliveryFailure)
	}
	pol, err := buildPolicy(settings.policy, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, cli.Exit(fmt.Sprintf("failed to create policy: %v", err), exitConfigError)
	}

	collector := metrics.NewCollector(string(settings.policy.name), settings.sink.kind, settings.runID)
	em, err := emitter.New(emitter.Config{Policy: pol, Logger: logger, Metrics: collector})
	if err != nil {
		_ = pol.Close()
		return nil, cli.Exit(err.Error(), exitConfigError)
	}

	env, emitErr := fn(ctx, c, em, ts)
	closeErr := em.Close()

	if emitErr != nil {
		var failure *factory.Failure
		if errors.As(emitErr, &failure) {
			return nil, cli.Exit(fmt.Sprintf("build failed: %v", failure), exitBuildFailure)
		}
		return nil, cli.Exit(fmt.Sprintf("delivery failed: %v", emitErr), exitDeliveryFailure)
	}
	if closeErr != nil {
		return nil, cli.Exit(fmt.Sprintf("delivery failed: %v", closeErr), exitDeliveryFailure)
	}

	snap := collector.Snapshot()
	resp := &EmitResponse{
		Type:      string(env.Type()),
		Timestamp: env.Timestamp().Time().Format(time.RFC3339Nano),
		Sink:      settings.sink.kind,
		Policy:    string(settings.policy.name),
		Persisted: snap.MessagesPersisted,
		Flushes:   snap.Flushes,
	}
	switch {
	case env.TestCaseStarted != nil:
		resp.PickleID = env.TestCaseStarted.PickleID
	case env.TestCaseFinished != nil:
		resp.PickleID = env.TestCaseFinished.PickleID
	}
	return resp, nil
}

func emitRunStarted(ctx context.Context, _ *cli.Context, em *emitter.Emitter, ts time.Time) (*messages.Envelope, error) {
	msg, err := em.RunStarted(ctx, ts)
	if err != nil {
		return nil, err
	}
	return &messages.Envelope{TestRunStarted: &msg}, nil
}

func emitCaseStarted(ctx context.Context, c *cli.Context, em *emitter.Emitter, ts time.Time) (*messages.Envelope, error) {
	id, err := factory.ParsePickleID(c.String("pickle-id"))
	if err != nil {
		return nil, err
	}
	msg, err := em.TestCaseStarted(ctx, id, ts)
	if err != nil {
		return nil, err
	}
	return &messages.Envelope{TestCaseStarted: &msg}, nil
}

func emitCaseFinished(ctx context.Context, c *cli.Context, em *emitter.Emitter, ts time.Time) (*messages.Envelope, error) {
	id, err := factory.ParsePickleID(c.String("pickle-id"))
	if err != nil {
		return nil, err
	}
	status := messages.Status(strings.ToUpper(strings.TrimSpace(c.String("status"))))
	result, err := factory.Unwrap(factory.New().BuildTestResult(status, c.Duration("duration"), c.String("message")))
	if err != nil {
		return nil, err
	}
	msg, err := em.TestCaseFinished(ctx, id, ts, result)
	if err != nil {
		return nil, err
	}
	return &messages.Envelope{TestCaseFinished: &msg}, nil
}

func emitRunFinished(ctx context.Context, c *cli.Context, em *emitter.Emitter, ts time.Time) (*messages.Envelope, error) {
	msg, err := em.RunFinished(ctx, c.Bool("success"), ts)
	if err != nil {
		return nil, err
	}
	return &messages.Envelope{TestRunFinished: &msg}, nil
}

// parseTimestamp parses an RFC 3339 instant. The zone is kept as written so
// the factory can reject anything not expressed in UTC. Empty means now.
func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --timestamp %q: expected RFC 3339 (e.g. 2019-05-09T14:27:48Z)", raw)
	}
	return ts, nil
}

// printEmitResponse writes the summary to w: a table on a terminal, JSON
// otherwise.
func printEmitResponse(w io.Writer, resp *EmitResponse) error {
	format := render.FormatJSON
	if isStderrTTY() {
		format = render.FormatTable
	}
	return render.NewRendererWithWriter(format, false, w).Render(resp)
}
