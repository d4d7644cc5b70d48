package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheTTL = 5 * time.Minute
	probeTimeout    = 30 * time.Second
)

// Capabilities reports whether the renderer binary can be run.
type Capabilities struct {
	Available bool      `json:"available"`
	Path      string    `json:"path,omitempty"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
	ProbedAt  time.Time `json:"probed_at"`
}

// Prober checks the renderer installation.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// Probe runs `manim --version`. An unusable binary is reported through
// Capabilities, not as an error; errors mean the probe itself could not run.
func (r *Renderer) Probe(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{ProbedAt: time.Now()}

	path, err := resolveManim(r.cfg.ManimPath)
	if err != nil {
		caps.Error = err.Error()
		return caps, nil
	}
	caps.Path = path

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	result := r.exec.Run(ctx, path, "--version")
	if err := ctx.Err(); err != nil && !result.IsSuccess() {
		return nil, fmt.Errorf("manim probe interrupted: %w", err)
	}
	if !result.IsSuccess() {
		caps.Error = fmt.Sprintf("exit %d: %s", result.ExitCode, truncate(strings.TrimSpace(result.StderrTail), 256))
		return caps, nil
	}

	caps.Available = true
	caps.Version = parseVersion(result.StdoutTail)
	return caps, nil
}

// parseVersion returns the first non-empty line of `manim --version`,
// e.g. "Manim Community v0.18.1".
func parseVersion(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// CachedProbe caches probe results for a fixed TTL so the health endpoint
// does not spawn a process per request.
type CachedProbe struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedProbe creates a caching wrapper around prober.
func NewCachedProbe(prober Prober, logger *slog.Logger) *CachedProbe {
	return &CachedProbe{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (p *CachedProbe) Get(ctx context.Context) (*Capabilities, error) {
	p.mu.RLock()
	if p.cached != nil && time.Since(p.cached.ProbedAt) < p.ttl {
		caps := p.cached
		p.mu.RUnlock()
		return caps, nil
	}
	p.mu.RUnlock()

	return p.Refresh(ctx)
}

// Peek returns the cached value without probing; nil if never probed.
func (p *CachedProbe) Peek() *Capabilities {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cached
}

// Refresh forces a new probe. On failure the stale value is returned if
// one exists.
func (p *CachedProbe) Refresh(ctx context.Context) (*Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	caps, err := p.prober.Probe(ctx)
	if err != nil {
		p.logger.Warn("renderer probe failed", "error", err)
		if p.cached != nil {
			p.logger.Info("returning stale renderer capabilities")
			return p.cached, nil
		}
		return nil, err
	}

	p.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (p *CachedProbe) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
