package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/adapters/builder"
	"github.com/melih/servery/internal/adapters/docker"
	"github.com/melih/servery/internal/adapters/events"
	apihttp "github.com/melih/servery/internal/adapters/http"
	"github.com/melih/servery/internal/adapters/storage"
	"github.com/melih/servery/internal/adapters/templatefile"
	"github.com/melih/servery/internal/config"
	"github.com/melih/servery/internal/core/services"
	applog "github.com/melih/servery/internal/log"
	"github.com/melih/servery/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioning API",
	RunE:  runServe,
}

var envFile string

func init() {
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env",
		"file of KEY=VALUE pairs loaded into the environment before templates are rendered")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Variables from the env file become template variables. Real environment
	// variables win over the file.
	if err := gotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	logger, err := applog.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if wrote, err := config.WriteDefaultConfig(cfgFile); err != nil {
		return err
	} else if wrote {
		logger.Info("wrote default config", zap.String("path", cfgFile))
	}
	if wrote, err := config.WriteDefaultTemplate(cfg.TemplatePath); err != nil {
		return err
	} else if wrote {
		logger.Info("wrote default template", zap.String("path", cfg.TemplatePath))
	}

	// 1. Initialize Adapters (Infrastructure)
	registry, err := storage.Open(storage.Options{
		Backend:  cfg.Registry.Backend,
		Path:     cfg.Registry.Path,
		Cache:    cfg.Registry.Cache,
		CacheTTL: cfg.Registry.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer registry.Close()

	dockerAdapter, err := docker.NewAdapter(docker.Options{
		AppName:     cfg.AppName,
		Host:        cfg.Runtime.DockerHost,
		PullPolicy:  docker.PullPolicy(cfg.Runtime.PullPolicy),
		StopTimeout: cfg.Runtime.StopTimeout,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("initialize docker adapter: %w", err)
	}
	defer dockerAdapter.Close()

	tracing, err := telemetry.NewTracerProvider(telemetry.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		ServiceName: cfg.AppName,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	opts := []services.Option{
		services.WithBuilder(builder.NewBuilderAdapter(dockerAdapter.Client(), logger)),
		services.WithTracer(tracing.Tracer()),
		services.WithLogger(logger),
	}

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
		opts = append(opts, services.WithObserver(metrics))
	}

	if cfg.Events.NatsURL != "" {
		publisher, err := events.NewPublisher(cfg.Events.NatsURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, services.WithEvents(publisher))
	}

	// 2. Core service
	provisioner := services.NewProvisioner(cfg.AppName, registry, dockerAdapter, templatefile.New(cfg.TemplatePath), opts...)

	// 3. HTTP (Interface Adapters)
	routerOpts := apihttp.RouterOptions{AppName: cfg.AppName, Logger: logger}
	if metrics != nil {
		routerOpts.Metrics = metrics
	}
	if cfg.Proxy.Domain != "" {
		routerOpts.Proxy = apihttp.NewProxyHandler(provisioner, cfg.Proxy.Domain, cfg.Proxy.TargetPort, logger)
	}
	app := apihttp.NewRouter(provisioner, routerOpts)

	return serve(app, cfg.ListenAddr, logger)
}

// serve blocks until the listener fails or SIGINT/SIGTERM arrives, then drains
// in-flight requests.
func serve(app *fiber.App, addr string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		errCh <- app.Listen(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info("shutdown initiated", zap.String("signal", sig.String()))
	}

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
