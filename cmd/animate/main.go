// Command animate renders one question to a video and prints its path.
//
//	animate -q "What is the determinant of a 2x2 matrix?"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mathlens/mathlens/internal/completion"
	"github.com/mathlens/mathlens/internal/config"
	"github.com/mathlens/mathlens/internal/logging"
	"github.com/mathlens/mathlens/internal/nets"
	"github.com/mathlens/mathlens/internal/pipeline"
	"github.com/mathlens/mathlens/internal/prompt"
	"github.com/mathlens/mathlens/internal/render"
	"github.com/mathlens/mathlens/internal/script"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "animate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		question     = flag.String("q", "", "question to animate (defaults to the remaining arguments)")
		templateFile = flag.String("template", "", "prompt template file overriding the default")
		quality      = flag.String("quality", "", "manim quality flag: l, m, h, p or k")
		showScript   = flag.Bool("print-script", false, "also print the generated script path to stderr")
	)
	flag.Parse()

	q := strings.TrimSpace(*question)
	if q == "" {
		q = strings.TrimSpace(strings.Join(flag.Args(), " "))
	}
	if q == "" {
		flag.Usage()
		return errors.New("a question is required")
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer := logging.New(logging.Options{
		Level:  cfg.LogLevel(),
		File:   cfg.LogFile(),
		Stdout: os.Stderr,
	})
	defer closer.Close()

	override := ""
	if *templateFile != "" {
		b, err := os.ReadFile(*templateFile)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		override = string(b)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := nets.NewHTTPClient(cfg.ProxyAddr(), cfg.CompletionTimeout())
	if err != nil {
		return fmt.Errorf("failed to build HTTP client: %w", err)
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
	if !completion.IsConfigured(client) {
		return fmt.Errorf("no API key for provider %q", cfg.CompletionProvider())
	}

	renderQuality := cfg.RenderQuality()
	if *quality != "" {
		renderQuality = *quality
	}

	renderer, err := render.NewRenderer(render.Config{
		ManimPath:    cfg.ManimPath(),
		ScriptsDir:   cfg.ScriptsDir(),
		MediaDir:     cfg.MediaDir(),
		StaticDir:    cfg.StaticDir(),
		Quality:      renderQuality,
		Timeout:      cfg.RenderTimeout(),
		PollAttempts: cfg.PollAttempts(),
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
	}, render.SubprocessExecutor{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}

	generator := pipeline.New(pipeline.Deps{
		Prompts:    prompt.NewBuilder(cfg.PromptTemplate()),
		Completion: client,
		Repairer:   script.NewRepairer(script.WithDotProductStrip(cfg.RepairStripDot())),
		Renderer:   renderer,
		Logger:     logger,
	})

	res, err := generator.Generate(ctx, pipeline.Request{Question: q, PromptTemplate: override})
	if err != nil {
		var rf *render.RenderingFailure
		if errors.As(err, &rf) && rf.StderrTail != "" {
			fmt.Fprintln(os.Stderr, strings.TrimSpace(rf.StderrTail))
		}
		return err
	}

	if *showScript {
		fmt.Fprintln(os.Stderr, res.ScriptPath)
	}
	fmt.Println(res.VideoPath)
	return nil
}
