package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/pkg/api"
	"github.com/marmos91/sws/pkg/config"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

type startOptions struct {
	configPath string
	port       int
	root       string
	logLevel   string
}

func newStartCmd() *cobra.Command {
	opts := &startOptions{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start serving documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "configuration file (default $XDG_CONFIG_HOME/sws/config.yaml)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "port to listen on (overrides server.port)")
	cmd.Flags().StringVar(&opts.root, "root", "", "directory to serve (overrides server.root)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides logging.level)")
	return cmd
}

func runStart(cmd *cobra.Command, opts *startOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	// CLI flags take precedence over file and environment
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}
	if cmd.Flags().Changed("root") {
		cfg.Server.Root = opts.root
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	fmt.Println("SWS - Simple Web Server")
	switch {
	case opts.configPath != "":
		logger.Info("Configuration loaded from %s", opts.configPath)
	case config.ConfigExists():
		logger.Info("Configuration loaded from %s", config.GetDefaultConfigPath())
	default:
		logger.Info("No configuration file in %s, using defaults (run 'sws init' to create one)", config.GetConfigDir())
	}
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Content store: %s, root: %s", cfg.Content.Type, cfg.Server.Root)
	logger.Info("Admission: sample_size=%d time_threshold=%v store=%s",
		cfg.Admission.SampleSize, cfg.Admission.TimeThreshold, cfg.Admission.Store.Type)
	logger.Info("Workers: %d, queue: %d, read timeout: %v, write timeout: %v",
		cfg.Server.Workers, cfg.Server.QueueSize, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(cfg)

	srv, err := config.CreateServer(ctx, cfg, m)
	if err != nil {
		return err
	}

	if err := srv.Start(cfg.Server.Root, cfg.Server.Port); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Close(shutdownCtx)
		return err
	}

	// Auxiliary listeners live until the signal context is cancelled
	var aux conc.WaitGroup
	auxErr := make(chan error, 2)

	if m.Server != nil {
		aux.Go(func() {
			if err := m.Server.Start(ctx); err != nil {
				auxErr <- err
			}
		})
	}

	if cfg.Admin.Enabled {
		adminSrv := api.NewServer(cfg.Admin, srv, api.Defaults{
			Root: cfg.Server.Root,
			Port: cfg.Server.Port,
		})
		aux.Go(func() {
			if err := adminSrv.Start(ctx); err != nil {
				auxErr <- err
			}
		})
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	// With the admin API enabled the web server may be stopped and started
	// again at runtime, so only a signal ends the process
	var serverDone <-chan struct{}
	if !cfg.Admin.Enabled {
		serverDone = srv.Done()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-serverDone:
		runErr = srv.Err()
		if runErr != nil {
			logger.Error("Web server stopped: %v", runErr)
		}
	case err := <-auxErr:
		logger.Error("Auxiliary server failed: %v", err)
		runErr = err
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := srv.Close(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout of %v exceeded; exiting with connections still active", cfg.Server.ShutdownTimeout)
		} else {
			logger.Error("Shutdown error: %v", err)
		}
	}
	aux.Wait()

	logger.Info("Shutdown complete in %v", time.Since(start).Round(time.Millisecond))
	return runErr
}
