package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Renderer turns a scene script into a video file.
type Renderer struct {
	cfg  Config
	exec Executor

	stat  func(string) (fs.FileInfo, error)
	sleep func(context.Context, time.Duration) error
}

// NewRenderer creates the working directories and returns a Renderer that
// runs manim through exec. A nil exec selects SubprocessExecutor.
func NewRenderer(cfg Config, exec Executor) (*Renderer, error) {
	cfg = cfg.withDefaults()
	if _, ok := profiles[cfg.Quality]; !ok {
		return nil, fmt.Errorf("unknown render quality %q", cfg.Quality)
	}

	dirs := []string{cfg.ScriptsDir, cfg.MediaDir}
	if cfg.Publish {
		dirs = append(dirs, cfg.StaticDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			return nil, fmt.Errorf("render directories must be set")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}

	if exec == nil {
		exec = SubprocessExecutor{Logger: cfg.Logger}
	}

	cfg.Logger.Info("renderer initialised",
		"manim", cfg.ManimPath,
		"quality", cfg.Quality,
		"scripts_dir", cfg.ScriptsDir,
		"media_dir", cfg.MediaDir,
	)

	return &Renderer{
		cfg:   cfg,
		exec:  exec,
		stat:  os.Stat,
		sleep: sleepContext,
	}, nil
}

// Config returns the effective configuration.
func (r *Renderer) Config() Config {
	return r.cfg
}

// ScriptPath returns where the script for requestID is written.
func (r *Renderer) ScriptPath(requestID string) string {
	return filepath.Join(r.cfg.ScriptsDir, "scene_"+requestID+".py")
}

// Stem returns the script file name without its extension. Manim names the
// video directory after it.
func Stem(scriptPath string) string {
	base := filepath.Base(scriptPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StaticName returns the published file name for a request.
func StaticName(requestID, scene string) string {
	return requestID + "_" + scene + ".mp4"
}

// Candidates returns the paths a render of scene from stem may land at, in
// lookup order.
func (r *Renderer) Candidates(stem, scene string) []string {
	file := scene + ".mp4"
	root := r.cfg.VideoRoot()
	return []string{
		filepath.Join(root, stem, profiles[r.cfg.Quality], file),
		filepath.Join(root, stem, file),
	}
}

// WriteScript writes source for requestID and returns its path.
func (r *Renderer) WriteScript(requestID, source string) (string, error) {
	path := r.ScriptPath(requestID)
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		return "", fmt.Errorf("cannot write script: %w", err)
	}
	return path, nil
}

// Render writes the job's script, runs manim on it and polls for the video.
// A nonzero exit code is tolerated when the video still appears; otherwise
// a *RenderingFailure is returned.
func (r *Renderer) Render(ctx context.Context, job Job) (*Artifact, error) {
	scriptPath, err := r.WriteScript(job.RequestID, job.Source)
	if err != nil {
		return nil, err
	}
	stem := Stem(scriptPath)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	result := r.exec.Run(runCtx, r.cfg.ManimPath,
		"-q"+r.cfg.Quality,
		"--media_dir", r.cfg.MediaDir,
		scriptPath,
		job.Scene,
	)
	cancel()

	if !result.IsSuccess() {
		r.cfg.Logger.Warn("manim exited with error, checking for output anyway",
			"request_id", job.RequestID,
			"exit_code", result.ExitCode,
		)
	}

	candidates := r.Candidates(stem, job.Scene)
	path, attempts, err := r.poll(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, &RenderingFailure{
			Path:       candidates[0],
			ScriptPath: scriptPath,
			Attempts:   attempts,
			ExitCode:   result.ExitCode,
			StderrTail: result.StderrTail,
		}
	}

	artifact := &Artifact{
		ScriptPath: scriptPath,
		Stem:       stem,
		VideoPath:  path,
		Attempts:   attempts,
		ExitCode:   result.ExitCode,
		Duration:   result.Duration,
	}

	r.cfg.Logger.Info("render complete",
		"request_id", job.RequestID,
		"video", path,
		"attempts", attempts,
	)

	if r.cfg.Publish {
		static, err := r.Publish(path, StaticName(job.RequestID, job.Scene))
		if err != nil {
			return nil, err
		}
		artifact.StaticPath = static
	}

	return artifact, nil
}

// poll checks candidates up to PollAttempts times, sleeping PollInterval
// between attempts. It returns the first existing path, or "" when none
// appeared.
func (r *Renderer) poll(ctx context.Context, candidates []string) (string, int, error) {
	for attempt := 1; attempt <= r.cfg.PollAttempts; attempt++ {
		for _, c := range candidates {
			info, err := r.stat(c)
			if err == nil && info.Mode().IsRegular() {
				return c, attempt, nil
			}
		}
		r.cfg.Logger.Debug("video not present yet", "attempt", attempt, "path", candidates[0])
		if attempt == r.cfg.PollAttempts {
			break
		}
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return "", attempt, err
		}
	}
	return "", r.cfg.PollAttempts, nil
}

// Publish copies src into StaticDir as name, replacing any existing file.
func (r *Renderer) Publish(src, name string) (string, error) {
	dst := filepath.Join(r.cfg.StaticDir, name)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("cannot open rendered video: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(r.cfg.StaticDir, ".publish-*")
	if err != nil {
		return "", fmt.Errorf("cannot create static file: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("cannot copy rendered video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("cannot publish video: %w", err)
	}
	return dst, nil
}

// Locate resolves a /video/<stem>/<file> request against the manim output
// layout: the file directly under the stem directory first, then under each
// quality profile directory.
func (r *Renderer) Locate(stem, file string) (string, error) {
	root := r.cfg.VideoRoot()
	paths := []string{filepath.Join(root, stem, file)}
	if p, ok := profiles[r.cfg.Quality]; ok {
		paths = append(paths, filepath.Join(root, stem, p, file))
	}
	for _, q := range profileOrder {
		if q == r.cfg.Quality {
			continue
		}
		paths = append(paths, filepath.Join(root, stem, profiles[q], file))
	}
	for _, p := range paths {
		if info, err := r.stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRenderingFailure reports whether err is a *RenderingFailure.
func IsRenderingFailure(err error) bool {
	var rf *RenderingFailure
	return errors.As(err, &rf)
}
