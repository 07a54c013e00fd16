package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rukun/api/internal/application"
	"github.com/rukun/api/internal/config"
	"github.com/rukun/api/internal/env"
	"github.com/rukun/api/internal/logging"
	"github.com/rukun/api/internal/reload"
)

const devBinaryName = "rukun-api-dev"

var signalNotify = signal.Notify

type cliFlags struct {
	overrides config.CLIOverrides
	envFiles  []string
	logLevel  string
}

func parseFlags(args []string) (*cliFlags, error) {
	kingpinApp := kingpin.New("rukun-api", "Rukun API - service bootstrap with liveness and readiness probes")
	dev := kingpinApp.Flag("dev", "Enable auto-reload").Bool()
	var hostSet, portSet bool
	host := kingpinApp.Flag("host", "Host to bind").IsSetByUser(&hostSet).Default("0.0.0.0").String()
	port := kingpinApp.Flag("port", "Port to bind").IsSetByUser(&portSet).Default("8000").Int()
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFiles := kingpinApp.Flag("env-file", "Dotenv file loaded into the environment (repeatable)").Default(".env").Strings()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()

	if _, err := kingpinApp.Parse(args); err != nil {
		return nil, err
	}
	if *logLevel != "" {
		if _, err := zapcore.ParseLevel(*logLevel); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
	}

	flags := &cliFlags{
		overrides: config.CLIOverrides{
			ConfigFile: *configFile,
			Dev:        *dev,
		},
		envFiles: *envFiles,
		logLevel: *logLevel,
	}
	// Only explicit flags override YAML and environment values.
	if hostSet {
		flags.overrides.Host = host
	}
	if portSet {
		flags.overrides.Port = port
	}
	if *logLevel != "" {
		flags.overrides.LogLevel = logLevel
	}
	return flags, nil
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "invalid arguments")

	if _, err := env.Load(flags.envFiles...); err != nil {
		panic(fmt.Sprintf("failed to load env files: %v", err))
	}

	logger, err := logging.New(logging.Options{Level: flags.logLevel, Development: flags.overrides.Dev})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(env.NewReader(logger), &flags.overrides)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// LOG_LEVEL or the YAML file may pick a different level than the flag did.
	if cfg.LogLevel != flags.logLevel {
		_ = logger.Sync()
		rebuilt, err := logging.New(logging.Options{Level: cfg.LogLevel, Development: cfg.Dev})
		if err != nil {
			logger.Fatal("failed to initialize logger", zap.String("level", cfg.LogLevel), zap.Error(err))
		}
		logger = rebuilt
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.Dev {
		runDev(cfg, logger)
		return
	}

	logger.Info("starting API", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	if err := shutdown(app, cfg.ShutdownGracePeriod, logger); err != nil {
		logger.Fatal("server stopped unexpectedly", zap.Error(err))
	}
}

type lifecycle interface {
	Errors() <-chan error
	Shutdown(ctx context.Context) error
}

// shutdown blocks until a termination signal or a serve error. A signal leads
// to a graceful shutdown bounded by timeout; a serve error is returned.
func shutdown(app lifecycle, timeout time.Duration, logger *zap.Logger) error {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-app.Errors():
		if ok && err != nil {
			return err
		}
		return nil
	case <-quit:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logger.Error("forced close failed", zap.Error(err))
	}
	return nil
}

func runDev(cfg config.Config, logger *zap.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := reload.NewWatcher(cfg.Reload.WatchDirs, cfg.Reload.Extensions, cfg.Reload.Debounce, logger)
	if err != nil {
		logger.Fatal("failed to watch sources", zap.Error(err))
	}
	defer func() {
		_ = watcher.Close()
	}()

	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("watcher stopped", zap.Error(err))
		}
	}()

	logger.Info("starting API with auto-reload",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Strings("watch_dirs", cfg.Reload.WatchDirs),
	)

	supervisor := reload.NewSupervisor(
		reload.GoBuild(cfg.Reload.BuildPackage, reload.DefaultBinaryPath(devBinaryName)),
		reload.ExecStart,
		reload.ChildArgs(os.Args[1:]),
		logger,
	)
	if err := supervisor.Run(ctx, watcher.Changes()); err != nil {
		logger.Fatal("supervisor stopped", zap.String("build_package", cfg.Reload.BuildPackage), zap.Error(err))
	}
}
