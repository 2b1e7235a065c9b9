package command

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiondb/internal/cli/connection"
	"github.com/yndnr/sessiondb/internal/cli/output"
	"github.com/yndnr/sessiondb/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "sessiondb-cli",
		Usage:   "SessionDB command-line client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SessionCommand(),
			SystemCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},

		// Attribute values are JSON and may contain commas.
		DisableSliceFlagSeparator: true,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "SessionDB server address (e.g., localhost:5080)",
			EnvVars: []string{"SESSIONDB_SERVER"},
			Value:   "localhost:5080",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server  string
	Output  output.Format
	Timeout time.Duration
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Server:  c.String("server"),
		Output:  format,
		Timeout: c.Duration("timeout"),
	}
}

// newClient returns an HTTP client for the --server address.
func newClient(c *cli.Context) *connection.HTTPClient {
	g := ParseGlobalFlags(c)
	return connection.NewHTTPClient(g.Server, g.Timeout)
}

// requestContext bounds one command by --timeout.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

// render prints data with the selected formatter.
func render(c *cli.Context, data any) error {
	return output.NewFormatter(ParseGlobalFlags(c).Output).Format(c.App.Writer, data)
}

// isTable reports whether human-oriented output was requested.
func isTable(c *cli.Context) bool {
	return ParseGlobalFlags(c).Output == output.FormatTable
}

// printf writes human-oriented text to the app writer.
func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
