package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiondb/internal/core/service"
	"github.com/yndnr/sessiondb/internal/infra/buildinfo"
	"github.com/yndnr/sessiondb/internal/infra/confloader"
	"github.com/yndnr/sessiondb/internal/infra/shutdown"
	"github.com/yndnr/sessiondb/internal/server/config"
	"github.com/yndnr/sessiondb/internal/server/httpserver"
	"github.com/yndnr/sessiondb/internal/telemetry/logger"
	"github.com/yndnr/sessiondb/internal/telemetry/metric"
)

// sessionCountTimeout bounds the Length call behind the sessions gauge.
const sessionCountTimeout = 5 * time.Second

func serveAction(c *cli.Context) error {
	configFile := c.String("config")
	loader := newLoader(configFile)
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting sessiondb-server",
		"version", info.Version,
		"commit", info.Commit,
		"backend", cfg.Store.Backend,
		"config", configFile)

	reg := metric.NewRegistry()

	connector, err := newConnector(cfg, log, reg.Registerer())
	if err != nil {
		return err
	}

	// 1. Store: connects in the background.
	store := service.Open(c.Context, connector,
		service.WithFailFast(cfg.Store.FailFast),
		service.WithConnectTimeout(cfg.Store.ConnectTimeout),
		service.WithLogger(log.With("component", "store")),
		service.WithMetrics(reg.Store),
	)
	if err := reg.Registerer().Register(metric.NewSessionCollector(store.Length, sessionCountTimeout)); err != nil {
		return fmt.Errorf("register session collector: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)
	shutdownHandler.OnShutdown("store", store.Close)

	// 2. Reaper: scheduled expiry sweeps.
	var reaper *service.Reaper
	if cfg.Reaper.Enabled {
		reaper, err = service.NewReaper(store, service.ReaperConfig{
			Schedule: cfg.Reaper.Schedule,
			MaxAge:   cfg.Reaper.MaxAge,
			Timeout:  cfg.Reaper.Timeout,
		}, log.With("component", "reaper"))
		if err != nil {
			store.Close(context.Background())
			return err
		}
		reaper.Start()
		shutdownHandler.OnShutdown("reaper", reaper.Stop)
	}

	// 3. Config watcher: applies log level changes without a restart.
	if configFile != "" {
		if stop, err := watchConfig(loader, configFile, log); err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error { return stop() })
		}
	}

	// 4. HTTP server: registered last so it stops first.
	routerCfg := &httpserver.RouterConfig{
		Store:       store,
		Metrics:     reg,
		Logger:      log,
		RateLimit:   cfg.Server.HTTP.RateLimit,
		RateBurst:   cfg.Server.HTTP.RateBurst,
		EnableAudit: true,
	}
	if reaper != nil {
		routerCfg.Reaper = reaper
	}
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, httpserver.NewRouter(routerCfg))
	shutdownHandler.OnShutdown("http server", httpServer.Shutdown)

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr)

		var err error
		if cfg.Server.HTTP.TLSCertFile != "" && cfg.Server.HTTP.TLSKeyFile != "" {
			err = httpServer.ListenAndServeTLS(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if err := shutdownHandler.Wait(c.Context); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// watchConfig reloads the configuration file on change and applies the
// settings that can change at runtime.
func watchConfig(loader *confloader.Loader, path string, log logger.Logger) (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.Slog(log)))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(string) {
		cfg := &config.ServerConfig{}
		if err := loader.Reload(cfg); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if !logger.ValidLevel(cfg.Log.Level) {
			log.Warn("config reload: invalid log level ignored", "level", cfg.Log.Level)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()
	return w.Stop, nil
}
