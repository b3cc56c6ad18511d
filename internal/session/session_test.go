package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danhyun/perfrec/internal/archive"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

type fakeTool struct {
	writeArtifact bool
	writeDelay    string // sleep argument before writing, e.g. "0.2"
	runFor        string // sleep argument after writing
	exitCode      int
	ignoreSignals bool // survive SIGINT until killed
}

// writeFakeTool renders a shell script that mimics the recorder's CLI
// grammar: it locates --output, optionally writes a trace bundle there
// after a delay, runs for a while, then exits.
func writeFakeTool(t *testing.T, ft fakeTool) string {
	t.Helper()
	trap := "trap 'exit 0' INT TERM"
	tail := fmt.Sprintf("sleep %s\nexit %d\n", ft.runFor, ft.exitCode)
	if ft.ignoreSignals {
		trap = "trap '' INT TERM"
		tail = "while :; do sleep 0.1; done\n"
	}
	write := ""
	if ft.writeArtifact {
		write = fmt.Sprintf(`sleep %s
mkdir -p "$out"
echo samples > "$out/run.core"
echo "recording to $out"
`, ft.writeDelay)
	}
	script := fmt.Sprintf(`#!/bin/sh
%s
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
%s%s`, trap, write, tail)

	path := filepath.Join(t.TempDir(), "fake-xctrace")
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func newTestSession(t *testing.T, ft fakeTool, opts Options) *Session {
	t.Helper()
	opts.ToolPath = writeFakeTool(t, ft)
	if opts.ProfileName == "" {
		opts.ProfileName = "Activity Monitor"
	}
	if opts.DeviceID == "" {
		opts.DeviceID = "udid-test"
	}
	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(t.TempDir(), "perf.trace")
	}
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = 10 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	s := New(opts)
	t.Cleanup(func() { _, _ = s.Stop(true) })
	return s
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, still %s", want, s.State())
}

type closeRecorder struct {
	mu     sync.Mutex
	closed bool
}

func (c *closeRecorder) Write(p []byte) (int, error) { return len(p), nil }

func (c *closeRecorder) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *closeRecorder) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestToolNotFoundClosesToolOutput(t *testing.T) {
	rec := &closeRecorder{}
	s := New(Options{
		ProfileName: "Activity Monitor",
		DeviceID:    "udid-test",
		OutputPath:  filepath.Join(t.TempDir(), "perf.trace"),
		ToolPath:    filepath.Join(t.TempDir(), "missing-tool"),
		ToolOutput:  rec,
	})

	var tnf *ToolNotFoundError
	if err := s.Start(context.Background()); !errors.As(err, &tnf) {
		t.Fatalf("expected ToolNotFoundError, got %v", err)
	}
	if !rec.wasClosed() {
		t.Fatalf("tool output writer should be closed when the tool cannot be resolved")
	}
}

func TestStartConfirmsArtifactAndRunning(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.2", runFor: "5", exitCode: 0}, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatalf("session should be running after Start")
	}
	got := s.OriginalReportPath()
	if got == "" {
		t.Fatalf("report path should exist after Start")
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("reported path missing on disk: %v", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("state = %s, want running", s.State())
	}
}

func TestToolNotFound(t *testing.T) {
	s := New(Options{
		ProfileName: "Activity Monitor",
		DeviceID:    "udid-test",
		OutputPath:  filepath.Join(t.TempDir(), "perf.trace"),
		ToolPath:    "definitely-not-a-real-recorder-binary",
	})
	err := s.Start(context.Background())
	var tnf *ToolNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("expected ToolNotFoundError, got %v", err)
	}
	if s.State() != StateFailedStartup {
		t.Fatalf("state = %s, want failed_startup", s.State())
	}
}

func TestStartupTimeoutNoArtifact(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t,
		fakeTool{writeArtifact: false, runFor: "5", exitCode: 0},
		Options{StartupTimeout: 300 * time.Millisecond, PollInterval: 50 * time.Millisecond})

	start := time.Now()
	err := s.Start(context.Background())
	var ste *StartupTimeoutError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StartupTimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("startup failure took too long: %s", elapsed)
	}
	if s.IsRunning() {
		t.Fatalf("no process handle should survive startup failure")
	}
	if s.OriginalReportPath() != "" {
		t.Fatalf("raw artifact should be cleaned up")
	}
	if ste.Profile != "Activity Monitor" || ste.Device != "udid-test" {
		t.Fatalf("error should name profile and device: %+v", ste)
	}
}

func TestStartupFailsFastWhenToolDiesEarly(t *testing.T) {
	requireUnix(t)
	// Tool exits 1 after 100ms without producing output; the deadline is
	// far away but polling must abort as soon as the process is gone.
	s := newTestSession(t,
		fakeTool{writeArtifact: false, runFor: "0.1", exitCode: 1},
		Options{StartupTimeout: 30 * time.Second, PollInterval: 50 * time.Millisecond})

	start := time.Now()
	err := s.Start(context.Background())
	var ste *StartupTimeoutError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StartupTimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("early death not detected promptly: %s", elapsed)
	}
}

func TestNonZeroExitCleansUpArtifacts(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "0.3", exitCode: 1}, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, s, StateForceTerminated)
	if s.IsRunning() {
		t.Fatalf("session must not be running after abnormal exit")
	}
	if s.OriginalReportPath() != "" {
		t.Fatalf("raw artifact should be deleted after non-zero exit")
	}
	if archive.Exists(s.archiveTarget()) {
		t.Fatalf("archive should be deleted after non-zero exit")
	}
	if got, err := s.Stop(false); err != nil || got != "" {
		t.Fatalf("Stop(false) after abnormal exit = (%q, %v), want empty", got, err)
	}
}

func TestGracefulStopProducesArchive(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "30", exitCode: 0}, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, err := s.Stop(false)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got == "" {
		t.Fatalf("graceful stop should return the archived path")
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("archive missing on disk: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("session still running after stop")
	}

	// Idempotent: a second graceful stop returns the same cached result.
	again, err := s.Stop(false)
	if err != nil || again != got {
		t.Fatalf("second Stop(false) = (%q, %v), want (%q, nil)", again, err, got)
	}
}

func TestGracefulStopTimeout(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t,
		fakeTool{writeArtifact: true, writeDelay: "0.1", ignoreSignals: true},
		Options{StopTimeout: 300 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := s.Stop(false)
	var gst *GracefulStopTimeoutError
	if !errors.As(err, &gst) {
		t.Fatalf("expected GracefulStopTimeoutError, got %v", err)
	}
	// No automatic kill escalation on this path: the recorder is still up.
	if !s.IsRunning() {
		t.Fatalf("graceful-stop timeout must not force-kill the recorder")
	}
	if got, _ := s.Stop(true); got != "" {
		t.Fatalf("forced stop should return empty path, got %q", got)
	}
}

func TestStopForceIdempotentAllStates(t *testing.T) {
	requireUnix(t)

	t.Run("idle", func(t *testing.T) {
		s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "5"}, Options{})
		if got, err := s.Stop(true); err != nil || got != "" {
			t.Fatalf("Stop(true) on idle = (%q, %v)", got, err)
		}
	})

	t.Run("running", func(t *testing.T) {
		s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "30"}, Options{})
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if got, err := s.Stop(true); err != nil || got != "" {
			t.Fatalf("Stop(true) on running = (%q, %v)", got, err)
		}
		if s.OriginalReportPath() != "" || archive.Exists(s.archiveTarget()) {
			t.Fatalf("artifacts should be absent after forced stop")
		}
		// Again on already-stopped.
		if got, err := s.Stop(true); err != nil || got != "" {
			t.Fatalf("repeated Stop(true) = (%q, %v)", got, err)
		}
		if got, err := s.Stop(false); err != nil || got != "" {
			t.Fatalf("Stop(false) after force = (%q, %v), want empty", got, err)
		}
	})

	t.Run("completed-with-archive", func(t *testing.T) {
		s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "30"}, Options{})
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		got, err := s.Stop(false)
		if err != nil || got == "" {
			t.Fatalf("graceful stop = (%q, %v)", got, err)
		}
		if res, err := s.Stop(true); err != nil || res != "" {
			t.Fatalf("Stop(true) after archive = (%q, %v)", res, err)
		}
		if archive.Exists(got) {
			t.Fatalf("archive %q should be deleted by forced stop", got)
		}
	})
}

func TestArchivedReportPathSingleFlight(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "30", exitCode: 0}, Options{})

	var compressions atomic.Int32
	orig := s.archiveFn
	s.archiveFn = func(src, dst string) error {
		compressions.Add(1)
		time.Sleep(100 * time.Millisecond) // widen the race window
		return orig(src, dst)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 8
	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = s.ArchivedReportPath()
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		if paths[i] == "" || paths[i] != paths[0] {
			t.Fatalf("call %d resolved %q, want %q", i, paths[i], paths[0])
		}
	}
	if got := compressions.Load(); got != 1 {
		t.Fatalf("compression ran %d times, want exactly 1", got)
	}
}

func TestArchiveBeforeAndAfterExit(t *testing.T) {
	requireUnix(t)
	// Recording limited to 5s; the fake tool writes the bundle within
	// 200ms and exits zero after about a second.
	s := newTestSession(t,
		fakeTool{writeArtifact: true, writeDelay: "0.2", runFor: "1", exitCode: 0},
		Options{Timeout: 5000 * time.Millisecond})

	var compressions atomic.Int32
	orig := s.archiveFn
	s.archiveFn = func(src, dst string) error {
		compressions.Add(1)
		return orig(src, dst)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	before, err := s.ArchivedReportPath()
	if err != nil || before == "" {
		t.Fatalf("archive before exit = (%q, %v)", before, err)
	}

	waitState(t, s, StateCompleted)

	after, err := s.ArchivedReportPath()
	if err != nil {
		t.Fatalf("archive after exit: %v", err)
	}
	if after != before {
		t.Fatalf("archive path changed across exit: %q vs %q", before, after)
	}
	if got := compressions.Load(); got != 1 {
		t.Fatalf("compression ran %d times, want exactly 1", got)
	}
}

func TestNaturalExitWarmsArchive(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "0.3", exitCode: 0}, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, s, StateCompleted)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if archive.Exists(s.archiveTarget()) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("natural exit should eagerly produce the archive")
}

func TestArchiveFailurePropagatesAndAllowsRetry(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "30"}, Options{})

	boom := errors.New("disk full")
	var calls atomic.Int32
	orig := s.archiveFn
	s.archiveFn = func(src, dst string) error {
		if calls.Add(1) == 1 {
			return boom
		}
		return orig(src, dst)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.ArchivedReportPath(); !errors.Is(err, boom) {
		t.Fatalf("expected archive failure to propagate, got %v", err)
	}
	got, err := s.ArchivedReportPath()
	if err != nil || got == "" {
		t.Fatalf("retry after failure = (%q, %v)", got, err)
	}
}

func TestStartTwiceRejected(t *testing.T) {
	requireUnix(t)
	s := newTestSession(t, fakeTool{writeArtifact: true, writeDelay: "0.1", runFor: "5"}, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("second Start should be rejected")
	}
}

func TestDefaultsApplied(t *testing.T) {
	s := New(Options{ProfileName: "p", DeviceID: "d", OutputPath: "/tmp/x"})
	if s.opts.Timeout != DefaultTimeout {
		t.Fatalf("timeout default not applied: %s", s.opts.Timeout)
	}
	if s.opts.StartupTimeout != DefaultStartupTimeout || s.opts.StopTimeout != DefaultStopTimeout {
		t.Fatalf("deadline defaults not applied: %+v", s.opts)
	}
	if s.reportPath != "/tmp/x"+TraceExt {
		t.Fatalf("trace suffix not enforced: %q", s.reportPath)
	}
	if got := s.archiveTarget(); got != "/tmp/x"+".zip" {
		t.Fatalf("archive target = %q", got)
	}
}
