package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathlens/mathlens/internal/api"
	"github.com/mathlens/mathlens/internal/completion"
	"github.com/mathlens/mathlens/internal/config"
	"github.com/mathlens/mathlens/internal/db"
	"github.com/mathlens/mathlens/internal/history"
	"github.com/mathlens/mathlens/internal/logging"
	"github.com/mathlens/mathlens/internal/nets"
	"github.com/mathlens/mathlens/internal/notify"
	"github.com/mathlens/mathlens/internal/pipeline"
	"github.com/mathlens/mathlens/internal/playback"
	"github.com/mathlens/mathlens/internal/prompt"
	"github.com/mathlens/mathlens/internal/render"
	"github.com/mathlens/mathlens/internal/script"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger, closer := logging.New(logging.Options{
		Level:   cfg.LogLevel(),
		File:    cfg.LogFile(),
		Journal: cfg.LogJournal(),
		Stdout:  os.Stdout,
	})
	defer closer.Close()

	logger.Info("starting mathlens",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", cfg.DataDir(),
		"provider", cfg.CompletionProvider(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := history.NewRepository(database.Conn())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient, err := nets.NewHTTPClient(cfg.ProxyAddr(), cfg.CompletionTimeout())
	if err != nil {
		return fmt.Errorf("failed to build HTTP client: %w", err)
	}
	if cfg.ProxyAddr() != "" {
		logger.Info("completion calls go through proxy", "proxy", cfg.ProxyAddr())
	}

	client, err := completion.New(ctx, completion.Settings{
		Provider:    cfg.CompletionProvider(),
		APIKey:      cfg.CompletionAPIKey(),
		BaseURL:     cfg.CompletionBaseURL(),
		Model:       cfg.CompletionModel(),
		Temperature: cfg.CompletionTemperature(),
		HTTPClient:  httpClient,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	renderer, err := render.NewRenderer(render.Config{
		ManimPath:    cfg.ManimPath(),
		ScriptsDir:   cfg.ScriptsDir(),
		MediaDir:     cfg.MediaDir(),
		StaticDir:    cfg.StaticDir(),
		Quality:      cfg.RenderQuality(),
		Timeout:      cfg.RenderTimeout(),
		PollAttempts: cfg.PollAttempts(),
		PollInterval: cfg.PollInterval(),
		Publish:      cfg.PublishStatic(),
		Logger:       logger,
	}, render.SubprocessExecutor{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}

	probe := render.NewCachedProbe(renderer, logger)
	probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
	if caps, err := probe.Refresh(probeCtx); err != nil {
		logger.Warn("initial renderer probe failed", "error", err)
	} else if !caps.Available {
		logger.Warn("manim is not available, renders will fail", "error", caps.Error)
	} else {
		logger.Info("renderer detected", "path", caps.Path, "version", caps.Version)
	}
	probeCancel()

	notifier := notify.NewSlackNotifier(cfg.SlackWebhookURL(), nil, logger)
	if notifier.Enabled() {
		logger.Info("slack failure notifications enabled")
	}

	generator := pipeline.New(pipeline.Deps{
		Prompts:    prompt.NewBuilder(cfg.PromptTemplate()),
		Completion: client,
		Repairer:   script.NewRepairer(script.WithDotProductStrip(cfg.RepairStripDot())),
		Renderer:   renderer,
		Ledger:     repo,
		Notifier:   notifier,
		Logger:     logger,
	})

	staticDir := ""
	if cfg.PublishStatic() {
		staticDir = cfg.StaticDir()
	}

	apiServer := api.NewServer(api.ServerConfig{
		Host:                 cfg.Host(),
		Port:                 cfg.Port(),
		StaticDir:            staticDir,
		Generator:            generator,
		Videos:               renderer,
		Playback:             playback.NewServer(logger),
		History:              repo,
		Probe:                probe,
		Provider:             cfg.CompletionProvider(),
		CompletionConfigured: completion.IsConfigured(client),
		CORSOrigins:          cfg.CORSOrigins(),
		APIToken:             cfg.APIToken(),
		Logger:               logger,
		StartTime:            startTime,
		Version:              config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			return err
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
