package api

import (
	"time"

	"github.com/mathlens/mathlens/internal/history"
	"github.com/mathlens/mathlens/internal/pipeline"
	"github.com/mathlens/mathlens/internal/render"
	"github.com/mathlens/mathlens/internal/script"
)

type ErrorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	Details      string `json:"details,omitempty"`
	ExpectedPath string `json:"expected_path,omitempty"`
}

type HealthResponse struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	UptimeS    int64                   `json:"uptime_s"`
	Completion CompletionStatus        `json:"completion"`
	Renderer   *RendererStatusResponse `json:"renderer,omitempty"`
}

type CompletionStatus struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
}

type RendererStatusResponse struct {
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

// GenerateRequest is accepted as a form or as JSON. Prompt and
// PromptTemplate are aliases; Prompt wins when both are set.
type GenerateRequest struct {
	Question       string `json:"question" validate:"required,max=2000"`
	Prompt         string `json:"prompt,omitempty" validate:"max=20000"`
	PromptTemplate string `json:"prompt_template,omitempty" validate:"max=20000"`
}

func (r GenerateRequest) Template() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.PromptTemplate
}

type GenerateResponse struct {
	RequestID      string        `json:"request_id"`
	SceneName      string        `json:"scene_name"`
	VideoURL       string        `json:"video_url"`
	StaticVideoURL string        `json:"static_video_url"`
	Origin         script.Origin `json:"origin,omitempty"`
	Fixes          []script.Fix  `json:"fixes,omitempty"`
}

type GenerationResponse struct {
	ID             string       `json:"id"`
	SceneName      string       `json:"scene_name"`
	Question       string       `json:"question"`
	PromptOverride bool         `json:"prompt_override"`
	Status         string       `json:"status"`
	Origin         string       `json:"origin,omitempty"`
	Fixes          []script.Fix `json:"fixes,omitempty"`
	VideoURL       string       `json:"video_url,omitempty"`
	StaticVideoURL string       `json:"static_video_url,omitempty"`
	PollAttempts   int          `json:"poll_attempts,omitempty"`
	ExitCode       *int         `json:"exit_code,omitempty"`
	DurationMs     int64        `json:"duration_ms,omitempty"`
	ErrorCode      string       `json:"error_code,omitempty"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
}

type GenerationsResponse struct {
	Generations []GenerationResponse `json:"generations"`
}

func ResultToResponse(res *pipeline.Result) GenerateResponse {
	return GenerateResponse{
		RequestID:      res.RequestID,
		SceneName:      res.SceneName,
		VideoURL:       res.VideoURL,
		StaticVideoURL: res.StaticVideoURL,
		Origin:         res.Origin,
		Fixes:          res.Fixes,
	}
}

func GenerationToResponse(g *history.Generation) GenerationResponse {
	return GenerationResponse{
		ID:             g.ID,
		SceneName:      g.SceneName,
		Question:       g.Question,
		PromptOverride: g.PromptOverride,
		Status:         g.Status,
		Origin:         g.Origin,
		Fixes:          g.Fixes,
		VideoURL:       g.VideoURL,
		StaticVideoURL: g.StaticVideoURL,
		PollAttempts:   g.PollAttempts,
		ExitCode:       g.ExitCode,
		DurationMs:     g.DurationMs,
		ErrorCode:      g.ErrorCode,
		Error:          g.Error,
		CreatedAt:      g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      g.UpdatedAt.Format(time.RFC3339),
	}
}

func CapabilitiesToResponse(c *render.Capabilities) *RendererStatusResponse {
	if c == nil {
		return nil
	}
	resp := &RendererStatusResponse{
		Available: c.Available,
		Version:   c.Version,
		Error:     c.Error,
	}
	if !c.ProbedAt.IsZero() {
		resp.LastProbeAt = c.ProbedAt.Format(time.RFC3339)
	}
	return resp
}
