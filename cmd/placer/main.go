package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/geoarkit/placer/internal/app"
	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/geolocation"
	"github.com/geoarkit/placer/internal/influx"
	"github.com/geoarkit/placer/internal/logging"
	"github.com/geoarkit/placer/internal/presentation"
	"github.com/geoarkit/placer/internal/scheduler"
	"github.com/geoarkit/placer/internal/server"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// AppName names the log file and the GELF facility.
const AppName = "placer"

// Options are the command-line flags.
type Options struct {
	ConfigDir string `short:"c" long:"config-dir" env:"PLACER_CONFIG_DIR" description:"Directory containing placer.cfg.json" default:"."`
	Addr      string `short:"a" long:"addr"       env:"PLACER_ADDR"       description:"Listen address, overrides server.addr"`
	EnvFile   string `short:"e" long:"env-file"   description:"Optional .env file loaded before the config" default:".env"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "placer:", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	sessionStart := time.Now()

	envErr := godotenv.Load(opts.EnvFile)
	cfgErr := config.Load(opts.ConfigDir)
	if cfgErr != nil {
		config.LoadDefaults()
	}

	// current is set once the application context exists; log records carry
	// its session state from then on.
	var current atomic.Pointer[app.App]
	provider := func() []slog.Attr {
		if a := current.Load(); a != nil {
			return a.LogContext()
		}
		return nil
	}

	logs, err := setupLogging(sessionStart, provider)
	if err != nil {
		return err
	}
	defer logs.Close()
	logger, zlog := logs.slog.Logger(), logs.zlog

	if envErr != nil && opts.EnvFile != ".env" {
		logger.Warn("Failed to load env file", "path", opts.EnvFile, "error", envErr)
	}
	if cfgErr != nil {
		logger.Warn("Config file not loaded, using defaults", "dir", opts.ConfigDir, "error", cfgErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := initStorage(config.GetStorageConfig(), logger, zlog)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("Failed to close storage backend", "error", err)
		}
	}()

	registry, err := loadRegistry(ctx, config.GetString("places.snapshot"), backend, logger)
	if err != nil {
		return err
	}

	geoCfg := config.GetGeolocationConfig()
	locator, feed, err := newPositionProvider(geoCfg)
	if err != nil {
		return err
	}
	source := geolocation.NewSource(locator, geolocation.Options{
		Timeout:      geoCfg.Timeout,
		MaximumAge:   geoCfg.MaximumAge,
		HighAccuracy: geoCfg.HighAccuracy,
	}, logger)
	logger.Info("Geolocation provider selected", "provider", geoCfg.Provider)

	schedOpts := []scheduler.Option{
		scheduler.WithInterval(config.GetSchedulerConfig().Interval),
		scheduler.WithLogger(logger),
	}
	if m := initInflux(ctx, zlog); m != nil {
		defer m.Close()
		schedOpts = append(schedOpts, scheduler.WithObserver(m))
	}

	hub := presentation.NewHub(logger)
	if feed != nil {
		// the page is the device locator; it requests fixes with this policy
		hub.SetGeolocationOptions(source.Options())
	}
	sched, err := scheduler.New(registry, source, hub, schedOpts...)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	application, err := app.New(app.Dependencies{
		Registry:     registry,
		Positions:    source,
		Adapter:      hub,
		Scheduler:    sched,
		Backend:      backend,
		Logger:       logger,
		ActionLogger: logging.NewActionLogger(zlog),
	})
	if err != nil {
		return err
	}
	current.Store(application)
	hub.SetHandlers(application.Handlers(feed))

	if err := application.Start(ctx); err != nil {
		return err
	}
	defer application.Stop()

	srvCfg := config.GetServerConfig()
	if opts.Addr != "" {
		srvCfg.Addr = opts.Addr
	}
	srv := server.New(srvCfg.Addr, server.Dependencies{
		App:       application,
		Hub:       hub,
		Clients:   hub.Clients,
		Backend:   backend,
		StaticDir: srvCfg.StaticDir,
		Logger:    zlog,
	})
	errCh, err := srv.Start()
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srvCfg.Addr, err)
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	hub.Close()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}
	return nil
}

type logOutputs struct {
	slog    *logging.SlogManager
	zlog    zerolog.Logger
	closers []io.Closer
}

func (l *logOutputs) Close() {
	for _, c := range l.closers {
		_ = c.Close()
	}
}

func setupLogging(sessionStart time.Time, provider logging.ContextProvider) (*logOutputs, error) {
	level := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")

	out := &logOutputs{slog: logging.NewSlogManager()}

	var file io.Writer
	if logsDir != "" {
		f, err := logging.OpenLogFile(logsDir, AppName, sessionStart)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, f)
		file = io.MultiWriter(os.Stdout, f)
	}

	var extra []slog.Handler
	var zextra []io.Writer
	gl := config.GetGraylogConfig()
	if gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, w)
		extra = append(extra, logging.NewGraylogHandler(w, level))
		zextra = append(zextra, w)
	}

	out.slog.Setup(file, level, provider, extra...)
	out.zlog = logging.NewZerolog(file, level, provider, zextra...)
	return out, nil
}

func initInflux(ctx context.Context, zlog zerolog.Logger) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	backup := filepath.Join(config.GetString("logsDir"), "influx_backup.log.gz")
	m := influx.NewManager(cfg, zlog, backup)
	if err := m.Connect(ctx); err != nil {
		zlog.Warn().Err(err).Msg("InfluxDB telemetry disabled")
		return nil
	}
	return m
}
