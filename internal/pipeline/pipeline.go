// Package pipeline turns a math question into a rendered video: it builds
// the prompt, asks the completion service for a script, repairs it and hands
// it to the renderer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mathlens/mathlens/internal/completion"
	"github.com/mathlens/mathlens/internal/history"
	"github.com/mathlens/mathlens/internal/logging"
	"github.com/mathlens/mathlens/internal/notify"
	"github.com/mathlens/mathlens/internal/prompt"
	"github.com/mathlens/mathlens/internal/render"
	"github.com/mathlens/mathlens/internal/script"
)

// Renderer runs a render job to completion.
type Renderer interface {
	Render(ctx context.Context, job render.Job) (*render.Artifact, error)
}

// Ledger records the progress of each request.
type Ledger interface {
	Create(ctx context.Context, g *history.Generation) error
	UpdateStatus(ctx context.Context, id, status string) error
	RecordScript(ctx context.Context, id string, origin script.Origin, fixes []script.Fix, scriptPath string) error
	Complete(ctx context.Context, id string, o history.Outcome) error
	Fail(ctx context.Context, id, code, msg string) error
}

// Request is a single generation request.
type Request struct {
	Question       string
	PromptTemplate string // optional override of the default template
}

// Result describes a successful generation.
type Result struct {
	RequestID      string        `json:"request_id"`
	SceneName      string        `json:"scene_name"`
	ScriptPath     string        `json:"-"`
	VideoPath      string        `json:"-"`
	VideoURL       string        `json:"video_url"`
	StaticVideoURL string        `json:"static_video_url"`
	Origin         script.Origin `json:"origin"`
	Fixes          []script.Fix  `json:"fixes,omitempty"`
}

// Deps are the Generator's collaborators. Ledger and Notifier are optional.
type Deps struct {
	Prompts    *prompt.Builder
	Completion completion.Client
	Repairer   *script.Repairer
	Renderer   Renderer
	Ledger     Ledger
	Notifier   notify.Notifier
	Logger     *slog.Logger

	NewID func() string
}

// Generator runs requests through the pipeline. It holds no per-request
// state and is safe for concurrent use.
type Generator struct {
	d Deps
}

func New(d Deps) *Generator {
	if d.Prompts == nil {
		d.Prompts = prompt.NewBuilder("")
	}
	if d.Repairer == nil {
		d.Repairer = script.NewRepairer()
	}
	if d.NewID == nil {
		d.NewID = NewRequestID
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = logging.WithComponent(d.Logger, "pipeline")
	return &Generator{d: d}
}

// Generate runs req end to end. Failures are recorded and reported to the
// notifier, then returned unchanged.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	id := g.d.NewID()
	scene := SceneName(id)
	logger := logging.WithRequestID(g.d.Logger, id)
	start := time.Now()

	logger.Info("generation started",
		"scene", scene,
		"question", logging.Truncate(question, 120),
		"prompt_override", req.PromptTemplate != "",
	)

	g.ledger(logger, "create", func(l Ledger) error {
		return l.Create(ctx, &history.Generation{
			ID:             id,
			SceneName:      scene,
			Question:       question,
			PromptOverride: strings.TrimSpace(req.PromptTemplate) != "",
			Status:         history.StatusPending,
		})
	})

	res, err := g.run(ctx, logger, id, scene, question, req.PromptTemplate)
	if err != nil {
		g.fail(ctx, logger, id, question, err)
		return nil, err
	}

	logger.Info("generation finished",
		"video_url", res.VideoURL,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (g *Generator) run(ctx context.Context, logger *slog.Logger, id, scene, question, override string) (*Result, error) {
	if g.d.Completion == nil || g.d.Renderer == nil {
		return nil, fmt.Errorf("pipeline is missing its completion client or renderer")
	}

	g.ledger(logger, "status", func(l Ledger) error {
		return l.UpdateStatus(ctx, id, history.StatusGenerating)
	})

	text := g.d.Prompts.Build(question, scene, override)

	raw, err := g.d.Completion.Complete(ctx, text)
	if err != nil {
		return nil, err
	}

	extracted := script.Extract(raw, scene)
	if extracted.Origin == script.OriginPlaceholder {
		logger.Warn("no code in completion, using placeholder script", "completion", logging.Truncate(raw, 200))
	}

	repaired := g.d.Repairer.Repair(extracted.Source)
	for _, fix := range repaired.Fixes {
		logger.Info("repaired script", "rule", fix.Rule, "count", fix.Count)
	}

	g.ledger(logger, "record script", func(l Ledger) error {
		return l.RecordScript(ctx, id, extracted.Origin, repaired.Fixes, "")
	})

	artifact, err := g.d.Renderer.Render(ctx, render.Job{
		RequestID: id,
		Scene:     scene,
		Source:    repaired.Source,
	})
	if err != nil {
		var rf *render.RenderingFailure
		if errors.As(err, &rf) && rf.ScriptPath != "" {
			g.ledger(logger, "record script", func(l Ledger) error {
				return l.RecordScript(context.WithoutCancel(ctx), id, extracted.Origin, repaired.Fixes, rf.ScriptPath)
			})
		}
		return nil, err
	}

	res := &Result{
		RequestID:  id,
		SceneName:  scene,
		ScriptPath: artifact.ScriptPath,
		VideoPath:  artifact.VideoPath,
		VideoURL:   VideoURL(artifact.Stem, scene),
		Origin:     extracted.Origin,
		Fixes:      repaired.Fixes,
	}
	if artifact.StaticPath != "" {
		res.StaticVideoURL = StaticURL(filepath.Base(artifact.StaticPath))
	}

	g.ledger(logger, "complete", func(l Ledger) error {
		if err := l.RecordScript(ctx, id, extracted.Origin, repaired.Fixes, artifact.ScriptPath); err != nil {
			return err
		}
		return l.Complete(ctx, id, history.Outcome{
			VideoPath:      artifact.VideoPath,
			VideoURL:       res.VideoURL,
			StaticVideoURL: res.StaticVideoURL,
			PollAttempts:   artifact.Attempts,
			ExitCode:       artifact.ExitCode,
			Duration:       artifact.Duration,
		})
	})

	return res, nil
}

func (g *Generator) fail(ctx context.Context, logger *slog.Logger, id, question string, err error) {
	code := ErrorCode(err)
	logger.Error("generation failed", "code", code, "error", err)

	// Record and report even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	g.ledger(logger, "fail", func(l Ledger) error {
		return l.Fail(ctx, id, code, err.Error())
	})

	if g.d.Notifier != nil {
		if nerr := g.d.Notifier.NotifyFailure(ctx, notify.Failure{
			RequestID: id,
			Question:  question,
			Code:      code,
			Err:       err,
		}); nerr != nil {
			logger.Warn("failure notification not sent", "error", nerr)
		}
	}
}

// ledger runs fn against the ledger if one is configured. Ledger errors are
// logged and never fail the request.
func (g *Generator) ledger(logger *slog.Logger, op string, fn func(Ledger) error) {
	if g.d.Ledger == nil {
		return
	}
	if err := fn(g.d.Ledger); err != nil {
		logger.Warn("ledger update failed", "op", op, "error", err)
	}
}

// VideoURL is the delivery path of a rendered video.
func VideoURL(stem, scene string) string {
	return "/video/" + stem + "/" + scene + ".mp4"
}

// StaticURL is the delivery path of a published copy.
func StaticURL(name string) string {
	return "/static/" + name
}
