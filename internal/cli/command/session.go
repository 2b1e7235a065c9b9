package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiondb/internal/cli/connection"
)

// Session mirrors the server's session representation.
type Session struct {
	ID         string         `json:"id"`
	LastAccess int64          `json:"last_access"`
	Attributes map[string]any `json:"attributes"`
	Generated  bool           `json:"generated"`
}

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	attrFlag := &cli.StringSliceFlag{
		Name:    "attr",
		Aliases: []string{"a"},
		Usage:   "Attribute as KEY=VALUE; VALUE is parsed as JSON when possible",
	}

	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Manage sessions",
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Generate a new session, optionally with attributes",
				Flags:  []cli.Flag{attrFlag},
				Action: sessionCreate,
			},
			{
				Name:      "get",
				Usage:     "Fetch a session (an unknown id yields a new session)",
				ArgsUsage: "SESSION_ID",
				Action:    sessionGet,
			},
			{
				Name:      "commit",
				Aliases:   []string{"set"},
				Usage:     "Replace a session's attributes and touch it",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					attrFlag,
					&cli.Int64Flag{
						Name:  "last-access",
						Usage: "Last access time in Unix milliseconds (default: now)",
					},
				},
				Action: sessionCommit,
			},
			{
				Name:      "destroy",
				Aliases:   []string{"rm"},
				Usage:     "Delete a session",
				ArgsUsage: "SESSION_ID",
				Action:    sessionDestroy,
			},
		},
	}
}

func sessionCreate(c *cli.Context) error {
	attrs, err := parseAttributes(c.StringSlice("attr"))
	if err != nil {
		return err
	}

	client := newClient(c)
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/sessions", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var sess Session
	if err := connection.ParseResponse(resp, &sess); err != nil {
		return err
	}

	if len(attrs) > 0 {
		resp, err = client.Put(ctx, "/sessions/"+url.PathEscape(sess.ID), map[string]any{"attributes": attrs})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		generated := sess.Generated
		if err := connection.ParseResponse(resp, &sess); err != nil {
			return err
		}
		sess.Generated = generated
	}
	return render(c, &sess)
}

func sessionGet(c *cli.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Get(ctx, "/sessions/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var sess Session
	if err := connection.ParseResponse(resp, &sess); err != nil {
		return err
	}
	return render(c, &sess)
}

func sessionCommit(c *cli.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	attrs, err := parseAttributes(c.StringSlice("attr"))
	if err != nil {
		return err
	}

	body := map[string]any{"attributes": attrs}
	if c.IsSet("last-access") {
		body["last_access"] = c.Int64("last-access")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Put(ctx, "/sessions/"+url.PathEscape(id), body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var sess Session
	if err := connection.ParseResponse(resp, &sess); err != nil {
		return err
	}
	return render(c, &sess)
}

func sessionDestroy(c *cli.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Delete(ctx, "/sessions/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}
	if isTable(c) {
		printf(c.App.Writer, "session %s destroyed\n", id)
		return nil
	}
	return render(c, map[string]string{"id": id})
}

func sessionID(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", fmt.Errorf("session ID required")
	}
	return id, nil
}

// parseAttributes turns KEY=VALUE pairs into an attribute map. VALUE is
// decoded as JSON when it parses, so 42, true and {"a":1} keep their type;
// anything else is a string.
func parseAttributes(pairs []string) (map[string]any, error) {
	attrs := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q, want KEY=VALUE", p)
		}

		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			v = raw
		}
		attrs[key] = v
	}
	return attrs, nil
}
