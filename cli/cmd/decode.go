package cmd

import (
	"fmt"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/cukemsg/cli/reader"
	"github.com/justapithecus/cukemsg/cli/render"
	"github.com/justapithecus/cukemsg/cli/tui"
	sinklode "github.com/justapithecus/cukemsg/sink/lode"
	"github.com/justapithecus/cukemsg/wire"
)

// DecodeCommand returns the decode command.
// Decode reads a stored message stream (a file written by the stdout or file
// sink, or one run of a Lode dataset) and renders it.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode and display a stored message stream",
		ArgsUsage: "[file]",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:    "input-format",
				Aliases: []string{"i"},
				Usage:   "Input wire format: ndjson, binary",
				Value:   "ndjson",
			},
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "Show only the run summary",
			},
			&cli.StringFlag{
				Name:  "lode-path",
				Usage: "Read from a Lode dataset instead of a file (fs: directory, s3: bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "lode-backend",
				Usage: "Lode storage backend: fs or s3",
				Value: "fs",
			},
			&cli.StringFlag{
				Name:  "lode-dataset",
				Usage: "Lode dataset ID",
				Value: sinklode.DefaultDataset,
			},
			&cli.StringFlag{
				Name:  "lode-s3-region",
				Usage: "AWS region for the s3 backend",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run to read from the Lode dataset (empty reads every run)",
			},
		),
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	src, err := decodeSource(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	envs, err := src.Messages(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("decode failed: %v", err), 1)
	}
	report := reader.NewReport(envs)

	if c.Bool("tui") {
		view := tui.ViewMessages
		if c.Bool("summary") {
			view = tui.ViewSummary
		}
		return r.RenderTUI(view, report)
	}

	if c.Bool("summary") {
		return r.Render(report.Summary)
	}
	if r.Format() == render.FormatTable {
		return r.Render(report.Messages)
	}
	return r.Render(report)
}

// decodeSource picks the reader from the arguments: a Lode dataset when
// --lode-path is set, else the file argument.
func decodeSource(c *cli.Context) (reader.Reader, error) {
	if path := c.String("lode-path"); path != "" {
		if c.NArg() > 0 {
			return nil, fmt.Errorf("--lode-path and a file argument are mutually exclusive")
		}
		factory, err := lodeFactory(c, path)
		if err != nil {
			return nil, err
		}
		ds, err := sinklode.NewDataset(c.String("lode-dataset"), factory)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset: %w", err)
		}
		return reader.DatasetReader{Dataset: ds, RunID: c.String("run-id")}, nil
	}

	if c.NArg() < 1 {
		return nil, fmt.Errorf("file required (or --lode-path)")
	}
	format, err := wire.ParseFormat(c.String("input-format"))
	if err != nil {
		return nil, fmt.Errorf("invalid --input-format: %w", err)
	}
	return reader.FileReader{Path: c.Args().First(), Format: format}, nil
}

func lodeFactory(c *cli.Context, path string) (lode.StoreFactory, error) {
	switch backend := c.String("lode-backend"); backend {
	case "", "fs":
		return lode.NewFSFactory(path), nil
	case "s3":
		bucket, prefix := sinklode.ParseS3Path(path)
		return sinklode.S3Factory(c.Context, sinklode.S3Config{
			Bucket: bucket,
			Prefix: prefix,
			Region: c.String("lode-s3-region"),
		})
	default:
		return nil, fmt.Errorf("invalid --lode-backend: %s (must be fs or s3)", backend)
	}
}
