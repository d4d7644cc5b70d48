package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Executor runs an external command and reports how it went. A failure to
// start the command is reported as exit code -1.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) RunResult
}

// SubprocessExecutor runs commands with os/exec, capturing bounded tails of
// stdout and stderr.
type SubprocessExecutor struct {
	Logger *slog.Logger
}

func (e SubprocessExecutor) Run(ctx context.Context, name string, args ...string) RunResult {
	start := time.Now()
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxOutputBytes}

	deadline, _ := ctx.Deadline()
	logger.Info("executing command",
		"command", name,
		"args", args,
		"deadline", deadline,
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrBuf.Len() == 0 {
				stderrBuf.WriteString(err.Error())
			}
		}
	}

	result := RunResult{
		ExitCode:   exitCode,
		StdoutTail: stdoutBuf.String(),
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}

	if exitCode != 0 {
		logger.Warn("command failed",
			"command", name,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
	} else {
		logger.Info("command succeeded",
			"command", name,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return result
}

// resolveManim finds the manim binary.
func resolveManim(preferred string) (string, error) {
	if preferred == "" {
		preferred = "manim"
	}
	p, err := exec.LookPath(preferred)
	if err != nil {
		return "", fmt.Errorf("manim binary %q not found: %w", preferred, err)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
