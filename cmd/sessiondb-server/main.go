package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiondb/internal/infra/buildinfo"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// App creates the command-line application.
func App() *cli.App {
	return &cli.App{
		Name:    "sessiondb-server",
		Usage:   "document-backed session store",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"SESSIONDB_CONFIG"},
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server (default)",
				Action: serveAction,
			},
			{
				Name:  "reap",
				Usage: "remove sessions idle longer than --max-age and exit",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "idle time after which a session is removed (default: reaper.max_age)",
					},
				},
				Action: reapAction,
			},
			{
				Name:   "count",
				Usage:  "print the number of stored sessions and exit",
				Action: countAction,
			},
			{
				Name:   "config",
				Usage:  "validate and print the effective configuration with secrets masked",
				Action: configAction,
			},
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, "sessiondb-server "+buildinfo.String())
					return nil
				},
			},
		},
	}
}
