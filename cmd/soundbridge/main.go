package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jscyril/soundbridge/internal/audio"
	"github.com/jscyril/soundbridge/internal/bridge"
	"github.com/jscyril/soundbridge/internal/config"
	"github.com/jscyril/soundbridge/internal/logging"
	"github.com/jscyril/soundbridge/internal/registry"
	"github.com/jscyril/soundbridge/internal/ui"
	"github.com/jscyril/soundbridge/pkg/events"
)

var (
	gitCommit  string
	versionTag string
	buildType  string
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		addr       string
		console    bool
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to soundbridge.yaml")
	flag.StringVar(&addr, "addr", "", "Bridge listen address, overrides bridge.addr")
	flag.BoolVar(&console, "console", false, "Run the terminal console")
	flag.BoolVar(&verbose, "verbose", false, "Show debug logs")
	flag.BoolVar(&verbose, "v", false, "Shorthand for --verbose")
	flag.Parse()

	loader := config.NewLoader(configPath, zap.NewNop().Sugar())
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	console = console || cfg.UI.Enabled

	build := buildType
	if build == logging.BuildTypeNone {
		build = cfg.Log.Build
	}
	if console {
		// stderr belongs to the console
		build = logging.BuildTypeRelease
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}

	logger, atomicLevel, err := logging.New(build, level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	named := logger.Named("main")
	named.Debug("Created logger")
	if versionTag != "" || gitCommit != "" {
		named.Infow("Version info", "gitCommit", gitCommit, "versionTag", versionTag, "buildType", build)
	}

	loader.SetLogger(logger)
	loader.Watch(func(updated *config.Config) {
		if verbose {
			return
		}
		l, err := logging.ParseLevel(updated.Log.Level)
		if err != nil {
			named.Warnw("Ignoring invalid log level", "level", updated.Log.Level, "error", err)
			return
		}
		if l != atomicLevel.Level() {
			atomicLevel.SetLevel(l)
			named.Infow("Changed log level", "level", l)
		}
	})

	factory, err := audio.NewFactory(cfg.Audio.Backend, audioOptions(cfg.Audio), logger)
	if err != nil {
		return fmt.Errorf("create %s backend: %w", cfg.Audio.Backend, err)
	}

	bus := events.NewEventBus()
	defer bus.Close()

	opts := []registry.Option{registry.WithEventBus(bus)}
	if cfg.Bundle.Dir != "" {
		opts = append(opts, registry.WithBundle(os.DirFS(cfg.Bundle.Dir)))
	}
	reg := registry.New(factory, logger, opts...)

	module := bridge.NewModule(cfg.Bridge.Name, reg, logger)
	server := bridge.NewServer(module, bus, cfg.Bridge.Origins, logger)

	if addr == "" {
		addr = cfg.Bridge.Addr
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(ctx, addr)
	})

	if console {
		decoder := audio.NewDecoder(cfg.Audio.Formats)
		model := ui.NewModel(ctx, reg, bus.SubscribeAll(), cfg.UI.KeyBindings, decoder.IsSupported, logger)
		g.Go(func() error {
			// Leaving the console shuts the bridge down too
			defer cancel()
			return ui.Run(ctx, model)
		})
	}

	named.Infow("Soundbridge running", "module", module.Name(), "addr", addr, "backend", cfg.Audio.Backend, "console", console)

	if err := g.Wait(); err != nil {
		named.Errorw("Soundbridge stopped with error", "error", err)
		return err
	}

	named.Info("Soundbridge stopped")
	return nil
}

func audioOptions(cfg config.AudioConfig) audio.Options {
	opts := audio.DefaultOptions()
	opts.SampleRate = cfg.SampleRate
	opts.BufferSize = time.Duration(cfg.BufferMS) * time.Millisecond
	opts.ResampleQuality = cfg.ResampleQuality
	if len(cfg.Formats) > 0 {
		opts.Formats = cfg.Formats
	}
	return opts
}
