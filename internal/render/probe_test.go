package render

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	calls int
	caps  *Capabilities
	err   error
}

func (f *fakeProber) Probe(ctx context.Context) (*Capabilities, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c := *f.caps
	c.ProbedAt = time.Now()
	return &c, nil
}

func TestCachedProbe_CachesWithinTTL(t *testing.T) {
	fp := &fakeProber{caps: &Capabilities{Available: true, Version: "Manim Community v0.18.1"}}
	p := NewCachedProbe(fp, testLogger())

	assert.Nil(t, p.Peek())

	first, err := p.Get(context.Background())
	require.NoError(t, err)
	second, err := p.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fp.calls)
	assert.Same(t, first, second)
	assert.Same(t, first, p.Peek())

	p.Invalidate()
	assert.Nil(t, p.Peek())
	_, err = p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fp.calls)
}

func TestCachedProbe_ExpiredEntryReprobes(t *testing.T) {
	fp := &fakeProber{caps: &Capabilities{Available: true}}
	p := NewCachedProbe(fp, testLogger())
	p.ttl = 0

	_, err := p.Get(context.Background())
	require.NoError(t, err)
	_, err = p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fp.calls)
}

func TestCachedProbe_StaleOnError(t *testing.T) {
	fp := &fakeProber{caps: &Capabilities{Available: true, Version: "v1"}}
	p := NewCachedProbe(fp, testLogger())

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	fp.err = errors.New("probe crashed")
	caps, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", caps.Version)

	p.Invalidate()
	_, err = p.Refresh(context.Background())
	assert.Error(t, err)
}

func TestRenderer_Probe(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("no sh on PATH: %v", err)
	}
	fe := &fakeExecutor{result: RunResult{StdoutTail: "\nManim Community v0.18.1\n"}}
	r := newTestRenderer(t, fe, false)
	r.cfg.ManimPath = "sh"

	caps, err := r.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.Available)
	assert.Equal(t, "Manim Community v0.18.1", caps.Version)
	require.Len(t, fe.calls, 1)
	assert.Equal(t, "--version", fe.calls[0][1])
}

func TestRenderer_ProbeFailingBinary(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("no sh on PATH: %v", err)
	}
	fe := &fakeExecutor{result: RunResult{ExitCode: 1, StderrTail: "ModuleNotFoundError: manim"}}
	r := newTestRenderer(t, fe, false)
	r.cfg.ManimPath = "sh"

	caps, err := r.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, caps.Available)
	assert.Contains(t, caps.Error, "ModuleNotFoundError")
}

func TestRenderer_ProbeMissingBinary(t *testing.T) {
	r := newTestRenderer(t, &fakeExecutor{}, false)
	r.cfg.ManimPath = "/nonexistent/manim999"

	caps, err := r.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, caps.Available)
	assert.NotEmpty(t, caps.Error)
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "Manim Community v0.18.1", parseVersion("\n  Manim Community v0.18.1\nextra"))
	assert.Equal(t, "", parseVersion(""))
}
