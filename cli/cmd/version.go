package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/cukemsg/cli/render"
	"github.com/justapithecus/cukemsg/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version" yaml:"version"`
	ProtocolVersion string `json:"protocol_version" yaml:"protocol_version"`
	Implementation  string `json:"implementation" yaml:"implementation"`
	Commit          string `json:"commit" yaml:"commit"`
}

// VersionCommand returns the version command.
// The CLI, wire format and message schema share one version.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(newVersionResponse(commit))
	}
}

func newVersionResponse(commit string) VersionResponse {
	return VersionResponse{
		Version:         types.Version,
		ProtocolVersion: types.ProtocolVersion,
		Implementation:  types.ImplementationName,
		Commit:          commit,
	}
}
