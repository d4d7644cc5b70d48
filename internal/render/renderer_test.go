package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu     sync.Mutex
	calls  [][]string
	result RunResult
	onRun  func(args []string)
}

func (f *fakeExecutor) Run(ctx context.Context, name string, args ...string) RunResult {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.onRun != nil {
		f.onRun(args)
	}
	return f.result
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRenderer(t *testing.T, exec Executor, publish bool) *Renderer {
	t.Helper()
	dir := t.TempDir()
	r, err := NewRenderer(Config{
		ManimPath:    "manim",
		ScriptsDir:   filepath.Join(dir, "generated_scripts"),
		MediaDir:     filepath.Join(dir, "media"),
		StaticDir:    filepath.Join(dir, "static"),
		Quality:      "l",
		PollAttempts: 5,
		PollInterval: time.Second,
		Publish:      publish,
		Logger:       testLogger(),
	}, exec)
	require.NoError(t, err)
	// Never actually sleep in tests.
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return r
}

func writeVideo(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("fake mp4 bytes"), 0644))
}

func TestRender_Success(t *testing.T) {
	fe := &fakeExecutor{}
	r := newTestRenderer(t, fe, true)
	fe.onRun = func(args []string) {
		writeVideo(t, r.Candidates("scene_abc", "Scene_abc")[0])
	}

	art, err := r.Render(context.Background(), Job{RequestID: "abc", Scene: "Scene_abc", Source: "from manim import *"})
	require.NoError(t, err)

	cfg := r.Config()
	assert.Equal(t, filepath.Join(cfg.ScriptsDir, "scene_abc.py"), art.ScriptPath)
	assert.Equal(t, "scene_abc", art.Stem)
	assert.Equal(t, filepath.Join(cfg.MediaDir, "videos", "scene_abc", "480p15", "Scene_abc.mp4"), art.VideoPath)
	assert.Equal(t, 1, art.Attempts)

	src, err := os.ReadFile(art.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, "from manim import *", string(src))

	require.Len(t, fe.calls, 1)
	assert.Equal(t, []string{"manim", "-ql", "--media_dir", cfg.MediaDir, art.ScriptPath, "Scene_abc"}, fe.calls[0])

	assert.Equal(t, filepath.Join(cfg.StaticDir, "abc_Scene_abc.mp4"), art.StaticPath)
	published, err := os.ReadFile(art.StaticPath)
	require.NoError(t, err)
	assert.Equal(t, "fake mp4 bytes", string(published))
}

func TestRender_NonzeroExitToleratedWhenVideoExists(t *testing.T) {
	fe := &fakeExecutor{result: RunResult{ExitCode: 1, StderrTail: "UserWarning: something"}}
	r := newTestRenderer(t, fe, false)
	fe.onRun = func(args []string) {
		writeVideo(t, r.Candidates("scene_x", "Scene_x")[0])
	}

	art, err := r.Render(context.Background(), Job{RequestID: "x", Scene: "Scene_x", Source: "s"})
	require.NoError(t, err)
	assert.Equal(t, 1, art.ExitCode)
	assert.Empty(t, art.StaticPath)
}

func TestRender_FlatLayoutCandidate(t *testing.T) {
	fe := &fakeExecutor{}
	r := newTestRenderer(t, fe, false)
	fe.onRun = func(args []string) {
		writeVideo(t, filepath.Join(r.Config().VideoRoot(), "scene_f", "Scene_f.mp4"))
	}

	art, err := r.Render(context.Background(), Job{RequestID: "f", Scene: "Scene_f", Source: "s"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Config().VideoRoot(), "scene_f", "Scene_f.mp4"), art.VideoPath)
}

func TestRender_AppearsOnThirdAttempt(t *testing.T) {
	fe := &fakeExecutor{}
	r := newTestRenderer(t, fe, false)

	sleeps := 0
	r.sleep = func(ctx context.Context, d time.Duration) error {
		assert.Equal(t, time.Second, d)
		sleeps++
		if sleeps == 2 {
			writeVideo(t, r.Candidates("scene_late", "Scene_late")[0])
		}
		return nil
	}

	art, err := r.Render(context.Background(), Job{RequestID: "late", Scene: "Scene_late", Source: "s"})
	require.NoError(t, err)
	assert.Equal(t, 3, art.Attempts)
	assert.Equal(t, 2, sleeps)
	assert.FileExists(t, art.VideoPath)
}

func TestRender_NeverAppears(t *testing.T) {
	fe := &fakeExecutor{result: RunResult{ExitCode: 1, StderrTail: "SyntaxError: invalid syntax"}}
	r := newTestRenderer(t, fe, true)

	sleeps := 0
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	_, err := r.Render(context.Background(), Job{RequestID: "gone", Scene: "Scene_gone", Source: "s"})
	require.Error(t, err)

	var rf *RenderingFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, r.Candidates("scene_gone", "Scene_gone")[0], rf.Path)
	assert.Equal(t, 5, rf.Attempts)
	assert.Equal(t, 1, rf.ExitCode)
	assert.Contains(t, rf.StderrTail, "SyntaxError")
	assert.Contains(t, rf.Error(), rf.Path)
	assert.Equal(t, r.ScriptPath("gone"), rf.ScriptPath)
	assert.FileExists(t, rf.ScriptPath)
	assert.Equal(t, 4, sleeps, "no sleep after the final attempt")
	assert.True(t, IsRenderingFailure(err))
}

func TestRender_ContextCanceledDuringPoll(t *testing.T) {
	r := newTestRenderer(t, &fakeExecutor{}, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, Job{RequestID: "c", Scene: "Scene_c", Source: "s"})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRenderingFailure(err))
}

func TestNewRenderer_RejectsUnknownQuality(t *testing.T) {
	dir := t.TempDir()
	_, err := NewRenderer(Config{ScriptsDir: dir, MediaDir: dir, Quality: "z", Logger: testLogger()}, &fakeExecutor{})
	assert.Error(t, err)
}

func TestLocate(t *testing.T) {
	r := newTestRenderer(t, &fakeExecutor{}, false)
	root := r.Config().VideoRoot()

	direct := filepath.Join(root, "scene_a", "Scene_a.mp4")
	writeVideo(t, direct)
	got, err := r.Locate("scene_a", "Scene_a.mp4")
	require.NoError(t, err)
	assert.Equal(t, direct, got)

	nested := filepath.Join(root, "scene_b", "1080p60", "Scene_b.mp4")
	writeVideo(t, nested)
	got, err = r.Locate("scene_b", "Scene_b.mp4")
	require.NoError(t, err)
	assert.Equal(t, nested, got)

	_, err = r.Locate("scene_c", "Scene_c.mp4")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func TestStem(t *testing.T) {
	assert.Equal(t, "scene_abc", Stem("/data/generated_scripts/scene_abc.py"))
	assert.Equal(t, "abc_Scene_abc.mp4", StaticName("abc", "Scene_abc"))
}

func TestProfile(t *testing.T) {
	p, ok := Profile("h")
	assert.True(t, ok)
	assert.Equal(t, "1080p60", p)
	_, ok = Profile("x")
	assert.False(t, ok)
}

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{127, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	assert.Equal(t, "hello", buf.String())

	n, err := lw.Write([]byte(" world of test data"))
	require.NoError(t, err)
	assert.Equal(t, 19, n)
	assert.Equal(t, " test data", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "...world", truncate("hello world", 5))
}

func TestSubprocessExecutor(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("no sh on PATH: %v", err)
	}

	res := SubprocessExecutor{Logger: testLogger()}.Run(context.Background(), sh, "-c", "echo out; echo err >&2; exit 3")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.StdoutTail)
	assert.Equal(t, "err\n", res.StderrTail)

	res = SubprocessExecutor{Logger: testLogger()}.Run(context.Background(), "/nonexistent/manim999")
	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.StderrTail)
}
