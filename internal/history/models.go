// Package history records every generation request and its outcome.
package history

import (
	"time"

	"github.com/mathlens/mathlens/internal/script"
)

// Generation status values.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusRendering  = "rendering"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Generation is one request through the pipeline.
type Generation struct {
	ID             string       `json:"id"`
	SceneName      string       `json:"scene_name"`
	Question       string       `json:"question"`
	PromptOverride bool         `json:"prompt_override"`
	Status         string       `json:"status"`
	Origin         string       `json:"origin,omitempty"`
	Fixes          []script.Fix `json:"fixes,omitempty"`
	ScriptPath     string       `json:"-"`
	VideoPath      string       `json:"-"`
	VideoURL       string       `json:"video_url,omitempty"`
	StaticVideoURL string       `json:"static_video_url,omitempty"`
	PollAttempts   int          `json:"poll_attempts,omitempty"`
	ExitCode       *int         `json:"exit_code,omitempty"`
	DurationMs     int64        `json:"duration_ms,omitempty"`
	ErrorCode      string       `json:"error_code,omitempty"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Outcome is what a successful render adds to a generation.
type Outcome struct {
	VideoPath      string
	VideoURL       string
	StaticVideoURL string
	PollAttempts   int
	ExitCode       int
	Duration       time.Duration
}
