// Package render writes generated scene scripts to disk, runs the Manim CLI
// on them and waits for the resulting video to appear.
package render

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

const (
	maxOutputBytes = 8 * 1024 // tail of stderr/stdout kept for diagnostics

	DefaultQuality      = "l"
	DefaultTimeout      = 5 * time.Minute
	DefaultPollAttempts = 5
	DefaultPollInterval = time.Second
)

// profiles maps a quality flag to the directory Manim renders it into.
var profiles = map[string]string{
	"l": "480p15",
	"m": "720p30",
	"h": "1080p60",
	"p": "1440p60",
	"k": "2160p60",
}

// profileOrder is the lookup order used when the quality is unknown.
var profileOrder = []string{"l", "m", "h", "p", "k"}

// Profile returns the output directory name for a quality flag.
func Profile(quality string) (string, bool) {
	p, ok := profiles[quality]
	return p, ok
}

// Config holds the renderer's configuration.
type Config struct {
	ManimPath    string        // path or name of the manim binary
	ScriptsDir   string        // one generated script per request
	MediaDir     string        // passed to manim as --media_dir
	StaticDir    string        // published copies
	Quality      string        // l, m, h, p or k
	Timeout      time.Duration // upper bound on a single manim run
	PollAttempts int
	PollInterval time.Duration
	Publish      bool
	Logger       *slog.Logger
}

// VideoRoot is where manim writes videos under MediaDir.
func (c Config) VideoRoot() string {
	return filepath.Join(c.MediaDir, "videos")
}

func (c Config) withDefaults() Config {
	if c.ManimPath == "" {
		c.ManimPath = "manim"
	}
	if c.Quality == "" {
		c.Quality = DefaultQuality
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollAttempts < 1 {
		c.PollAttempts = DefaultPollAttempts
	}
	if c.PollInterval < 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// RunResult is the structured outcome of executing a subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StdoutTail string        `json:"stdout_tail,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Job is a single render request.
type Job struct {
	RequestID string
	Scene     string
	Source    string
}

// Artifact describes a rendered video.
type Artifact struct {
	ScriptPath string        `json:"script_path"`
	Stem       string        `json:"stem"`
	VideoPath  string        `json:"video_path"`
	StaticPath string        `json:"static_path,omitempty"`
	Attempts   int           `json:"attempts"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
}

// RenderingFailure reports a video that never appeared.
type RenderingFailure struct {
	Path       string // first candidate path checked
	ScriptPath string
	Attempts   int
	ExitCode   int
	StderrTail string
}

func (e *RenderingFailure) Error() string {
	return fmt.Sprintf("rendered video not found at %s after %d attempts (exit code %d)", e.Path, e.Attempts, e.ExitCode)
}
