package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiondb/internal/core/service"
	"github.com/yndnr/sessiondb/internal/server/config"
)

// withStore opens the configured store, waits for the connection and runs
// fn. Used by one-shot commands.
func withStore(c *cli.Context, fn func(ctx context.Context, cfg *config.ServerConfig, store *service.Store) error) error {
	cfg, err := loadConfig(newLoader(c.String("config")))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, closeLog, err := newLogger(config.LogSection{Level: "warn", Format: "text"})
	if err != nil {
		return err
	}
	defer closeLog()

	connector, err := newConnector(cfg, log, nil)
	if err != nil {
		return err
	}

	ctx := c.Context
	store := service.Open(ctx, connector,
		service.WithConnectTimeout(cfg.Store.ConnectTimeout),
		service.WithLogger(log),
	)
	defer store.Close(context.WithoutCancel(ctx))

	if err := store.WaitReady(ctx); err != nil {
		return err
	}
	return fn(ctx, cfg, store)
}

func reapAction(c *cli.Context) error {
	return withStore(c, func(ctx context.Context, cfg *config.ServerConfig, store *service.Store) error {
		maxAge := cfg.Reaper.MaxAge
		if c.IsSet("max-age") {
			maxAge = c.Duration("max-age")
		}
		n, err := store.Reap(ctx, maxAge)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "removed %d sessions idle longer than %s\n", n, maxAge)
		return nil
	})
}

func countAction(c *cli.Context) error {
	return withStore(c, func(ctx context.Context, _ *config.ServerConfig, store *service.Store) error {
		n, err := store.Length(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, n)
		return nil
	})
}
