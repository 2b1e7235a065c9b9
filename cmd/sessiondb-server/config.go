package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiondb/internal/infra/confloader"
	"github.com/yndnr/sessiondb/internal/server/config"
)

// newLoader returns a loader layering defaults, the optional file, and
// SESSIONDB_* environment variables.
func newLoader(configFile string) *confloader.Loader {
	opts := []confloader.Option{confloader.WithDefaults(config.DefaultMap())}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	return confloader.NewLoader(opts...)
}

// loadConfig loads and validates the configuration.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := &config.ServerConfig{}
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configAction(c *cli.Context) error {
	cfg, err := loadConfig(newLoader(c.String("config")))
	if err != nil {
		return err
	}
	out, err := sonic.ConfigStd.MarshalIndent(config.ToMap(config.Sanitize(cfg)), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
