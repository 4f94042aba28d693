package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/basket/voxmind/internal/agent"
	"github.com/basket/voxmind/internal/bulletin"
	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/channels"
	"github.com/basket/voxmind/internal/config"
	"github.com/basket/voxmind/internal/cron"
	"github.com/basket/voxmind/internal/llm"
	"github.com/basket/voxmind/internal/neural"
	"github.com/basket/voxmind/internal/otel"
	"github.com/basket/voxmind/internal/persistence"
	"github.com/basket/voxmind/internal/skills"
	"github.com/basket/voxmind/internal/telemetry"
	"github.com/basket/voxmind/internal/tui"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func main() {
	headless := flag.Bool("headless", false, "run without the TUI overlay")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	useTUI := cfg.TUI.Enabled && !*headless && isatty.IsTerminal(os.Stdout.Fd())

	// Quiet logs (file-only) under the overlay so the panels stay clean.
	logger, logClose, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, cfg.Quiet || useTUI)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer logClose.Close()
	slog.SetDefault(logger)

	provider, err := otel.Init(ctx, cfg.OTel)
	if err != nil {
		logger.Error("otel init failed", "error", err)
		os.Exit(1)
	}
	defer provider.Shutdown(context.Background())
	metrics, err := otel.NewMetrics(provider.Meter)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}

	store, err := persistence.Open(persistence.DefaultDBPath(cfg.HomeDir))
	if err != nil {
		logger.Error("open action log failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := skills.NewRegistry()
	if err := skills.RegisterBuiltins(registry); err != nil {
		logger.Error("register builtin skills failed", "error", err)
		os.Exit(1)
	}
	loader := &skills.Loader{Dir: cfg.Skills.GeneratedDir, Registry: registry, Log: logger}
	if n, err := loader.Scan(); err != nil {
		logger.Warn("scan generated skills", "error", err)
	} else if n > 0 {
		logger.Info("loaded generated skills", "count", n)
	}
	if err := loader.Watch(ctx); err != nil {
		logger.Warn("watch generated skills", "error", err)
	}

	eventBus := bus.New()
	board := bulletin.NewBoard()
	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		StrongModel: cfg.LLM.StrongModel,
		FastModel:   cfg.LLM.FastModel,
		Timeout:     cfg.LLM.Timeout(),
	}, logger)

	agents, err := agent.NewRegistry(agent.Deps{
		Config:   cfg,
		LLM:      llmClient,
		Registry: registry,
		Loader:   loader,
		Board:    board,
		Bus:      eventBus,
		Neural:   neural.NewClient(cfg.Neural.Addr),
		Store:    store,
		Metrics:  metrics,
		Tracer:   provider.Tracer,
		Log:      logger,
	})
	if err != nil {
		logger.Error("build agents failed", "error", err)
		os.Exit(1)
	}
	agents.Start(ctx)

	if cfg.Telegram.Enabled {
		sinks := make(map[string]channels.ChatSink)
		for name, a := range agents.Agents() {
			sinks[name] = a
		}
		tg := channels.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.AllowedIDs,
			cfg.Telegram.PaidSenders, sinks, eventBus, logger)
		go func() {
			if err := tg.Start(ctx); err != nil {
				logger.Error("telegram channel stopped", "error", err)
			}
		}()
	}

	if len(cfg.Directives) > 0 {
		sinks := make(map[string]cron.DirectiveSink)
		for name, a := range agents.Agents() {
			sinks[name] = a
		}
		sched, err := cron.NewScheduler(cron.Config{
			Directives: cfg.Directives,
			Sinks:      sinks,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("directive scheduler failed", "error", err)
			os.Exit(1)
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	logger.Info("voxmind started",
		"version", Version, "agents", len(cfg.Roles), "tui", useTUI)

	if useTUI {
		feed := tui.NewFeed()
		go feed.Listen(ctx, eventBus)
		if err := tui.Run(ctx, feed.Snapshot); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("overlay exited", "error", err)
		}
		// Quitting the overlay shuts the whole process down.
		stop()
	} else {
		<-ctx.Done()
	}

	agents.Wait()
	logger.Info("voxmind stopped")
}
