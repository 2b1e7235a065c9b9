package command

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiondb/internal/cli/connection"
)

// StatusSummary mirrors GET /admin/v1/status/summary.
type StatusSummary struct {
	Status   string        `json:"status"`
	Ready    bool          `json:"ready"`
	Version  string        `json:"version"`
	Sessions *int64        `json:"sessions,omitempty"`
	Reaper   *ReaperStatus `json:"reaper,omitempty" table:"-"`
}

// ReaperStatus mirrors the reaper block of the status summary.
type ReaperStatus struct {
	MaxAgeMs int64       `json:"max_age_ms"`
	NextRun  int64       `json:"next_run,omitempty"`
	LastRun  *ReapResult `json:"last_run,omitempty"`
	LastErr  string      `json:"last_error,omitempty"`
}

// ReapResult mirrors POST /admin/v1/sessions/reap.
type ReapResult struct {
	Removed    int64 `json:"removed"`
	MaxAgeMs   int64 `json:"max_age_ms"`
	FinishedAt int64 `json:"finished_at"`
}

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status and session maintenance",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server status summary",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: systemHealth,
			},
			{
				Name:   "ready",
				Usage:  "Check whether the session store is connected",
				Action: systemReady,
			},
			{
				Name:   "count",
				Usage:  "Count stored sessions",
				Action: systemCount,
			},
			{
				Name:  "reap",
				Usage: "Remove sessions idle longer than max age",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "Idle threshold (default: the server's reaper max age)",
					},
				},
				Action: systemReap,
			},
			{
				Name:  "clear",
				Usage: "Remove every session",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: systemClear,
			},
		},
	}
}

func systemStatus(c *cli.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Get(ctx, "/admin/v1/status/summary")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var status StatusSummary
	if err := connection.ParseResponse(resp, &status); err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, &status)
	}
	if err := render(c, &status); err != nil {
		return err
	}
	if rs := status.Reaper; rs != nil {
		printf(c.App.Writer, "\nReaper: max_age=%s", time.Duration(rs.MaxAgeMs)*time.Millisecond)
		if rs.NextRun > 0 {
			printf(c.App.Writer, " next_run=%s", time.UnixMilli(rs.NextRun).UTC().Format(time.RFC3339))
		}
		if rs.LastRun != nil {
			printf(c.App.Writer, " last_removed=%d", rs.LastRun.Removed)
		}
		if rs.LastErr != "" {
			printf(c.App.Writer, " last_error=%q", rs.LastErr)
		}
		printf(c.App.Writer, "\n")
	}
	return nil
}

func systemHealth(c *cli.Context) error {
	return probe(c, "/health")
}

func systemReady(c *cli.Context) error {
	return probe(c, "/ready")
}

func probe(c *cli.Context, path string) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var body map[string]string
	if err := connection.ParseResponse(resp, &body); err != nil {
		return err
	}
	if isTable(c) {
		printf(c.App.Writer, "%s\n", body["status"])
		return nil
	}
	return render(c, body)
}

func systemCount(c *cli.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Get(ctx, "/admin/v1/sessions/count")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := connection.ParseResponse(resp, &body); err != nil {
		return err
	}
	if isTable(c) {
		printf(c.App.Writer, "%d\n", body.Count)
		return nil
	}
	return render(c, &body)
}

func systemReap(c *cli.Context) error {
	req := map[string]any{}
	if c.IsSet("max-age") {
		maxAge := c.Duration("max-age")
		if maxAge < 0 {
			return fmt.Errorf("--max-age must not be negative")
		}
		req["max_age_ms"] = maxAge.Milliseconds()
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Post(ctx, "/admin/v1/sessions/reap", req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var res ReapResult
	if err := connection.ParseResponse(resp, &res); err != nil {
		return err
	}
	if isTable(c) {
		printf(c.App.Writer, "removed %d sessions idle longer than %s\n",
			res.Removed, time.Duration(res.MaxAgeMs)*time.Millisecond)
		return nil
	}
	return render(c, &res)
}

func systemClear(c *cli.Context) error {
	if !c.Bool("force") {
		printf(c.App.Writer, "Remove ALL sessions from %s? [y/N]: ", c.String("server"))
		answer, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			printf(c.App.Writer, "aborted\n")
			return nil
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Delete(ctx, "/admin/v1/sessions")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var res struct {
		Removed int64 `json:"removed"`
	}
	if err := connection.ParseResponse(resp, &res); err != nil {
		return err
	}
	if isTable(c) {
		printf(c.App.Writer, "removed %d sessions\n", res.Removed)
		return nil
	}
	return render(c, &res)
}
