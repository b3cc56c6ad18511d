package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/danhyun/perfrec/internal/archive"
	"github.com/danhyun/perfrec/internal/logger"
	"github.com/danhyun/perfrec/internal/waitfor"
)

const (
	// DefaultTimeout is the recording time limit handed to the tool when
	// Options.Timeout is unset or non-positive. The tool self-terminates
	// after this duration.
	DefaultTimeout = 5 * time.Minute

	// DefaultStartupTimeout bounds the wait for first evidence that the
	// recorder is alive and writing its trace bundle.
	DefaultStartupTimeout = 30 * time.Second

	// DefaultStopTimeout bounds the wait for exit after a graceful signal.
	DefaultStopTimeout = 15 * time.Second
)

var errRecorderDied = errors.New("recorder exited before producing output")

// Options configure a recording session.
type Options struct {
	ProfileName string        // recording template, e.g. "Activity Monitor"
	DeviceID    string        // device under recording
	OutputPath  string        // raw artifact destination; TraceExt appended if missing
	Timeout     time.Duration // recording time limit passed to the tool
	TargetPID   int           // scope recording to one process; 0 records all

	ToolPath       string // overrides DefaultTool resolution
	StartupTimeout time.Duration
	StopTimeout    time.Duration
	PollInterval   time.Duration // startup readiness poll; 0 uses waitfor's default

	Logger     *slog.Logger   // base logger; session attrs are added
	ToolOutput io.WriteCloser // optional raw output capture, closed on exit
}

// observers are the two callback slots the supervision goroutines invoke:
// one per forwarded output line, one on process exit.
type observers struct {
	output func(stream, line string)
	exit   func(err error)
}

// archiveOp is the memoized archive operation. All callers requesting the
// archived path while one is in flight wait on done and observe the same
// result; it is created at most once per raw-artifact lifetime.
type archiveOp struct {
	done chan struct{}
	path string
	err  error
}

// Session owns one external recorder process, one raw trace bundle and one
// archive of it. All mutable references are guarded by mu; the archive
// check-then-set memoization relies on it.
type Session struct {
	mu          sync.Mutex
	opts        Options
	reportPath  string
	archivePath string // set only after a verified archive exists
	state       State
	started     bool
	cmd         *exec.Cmd
	waitDone    chan struct{} // closed by the exit observer
	archive     *archiveOp
	toolOut     io.WriteCloser
	log         *slog.Logger

	archiveFn func(src, dst string) error
}

// New builds a session bound to an output path and device. Nothing is
// launched until Start.
func New(opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &Session{
		opts:       opts,
		reportPath: normalizeReportPath(opts.OutputPath),
		state:      StateIdle,
		toolOut:    opts.ToolOutput,
		log:        logger.ForSession(opts.Logger, opts.ProfileName, opts.DeviceID),
		archiveFn:  archive.CompressDir,
	}
}

// ProfileName is the identity the registry deduplicates on.
func (s *Session) ProfileName() string { return s.opts.ProfileName }

// DeviceID returns the recorded device's identifier.
func (s *Session) DeviceID() string { return s.opts.DeviceID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the session currently holds a live recorder
// process. Side-effect free.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return pidAlive(cmd.Process.Pid)
}

// Start launches the recorder and blocks until the trace bundle appears on
// disk or the startup deadline expires. On any failure the raw artifact is
// cleaned up and no process handle survives.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		profile := s.opts.ProfileName
		s.mu.Unlock()
		return fmt.Errorf("recording %q was already started", profile)
	}
	s.started = true
	s.state = StateStarting
	s.mu.Unlock()

	tool := s.opts.ToolPath
	if tool == "" {
		tool = DefaultTool
	}
	toolPath, err := exec.LookPath(tool)
	if err != nil {
		s.setState(StateFailedStartup)
		s.closeToolOut()
		return &ToolNotFoundError{Tool: tool, Err: err}
	}

	args := toolArgs(s.opts.ProfileName, s.opts.DeviceID, s.reportPath,
		s.opts.Timeout.Milliseconds(), s.opts.TargetPID)
	// #nosec G204 -- fixed grammar against a resolved tool binary
	cmd := exec.Command(toolPath, args...)
	cmd.SysProcAttr = sysProcAttr()

	obs := s.defaultObservers()
	outW := newLineWriter(func(line string) { obs.output("stdout", line) })
	errW := newLineWriter(func(line string) { obs.output("stderr", line) })
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		s.setState(StateFailedStartup)
		s.closeToolOut()
		return fmt.Errorf("start recorder: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.waitDone = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("recorder launched",
		"pid", cmd.Process.Pid,
		"report", s.reportPath,
		"time_limit_ms", s.opts.Timeout.Milliseconds())

	go s.observeExit(cmd, obs.exit, outW, errW)

	err = waitfor.Until(ctx, s.opts.StartupTimeout, s.opts.PollInterval, func() (bool, error) {
		if archive.Exists(s.reportPath) {
			return true, nil
		}
		if !s.IsRunning() {
			return false, errRecorderDied
		}
		return false, nil
	})
	if err != nil {
		s.enforceTermination()
		s.setState(StateFailedStartup)
		if ctx.Err() != nil {
			return fmt.Errorf("recording startup aborted: %w", ctx.Err())
		}
		return &StartupTimeoutError{
			Profile: s.opts.ProfileName,
			Device:  s.opts.DeviceID,
			Timeout: s.opts.StartupTimeout,
		}
	}

	s.setState(StateRunning)
	s.log.Info("recording confirmed", "report", s.reportPath)
	return nil
}

// Stop ends the recording. force runs forced termination and cleanup and
// always returns "". Otherwise, a non-running session idempotently returns
// the last archived path (or ""), and a running one is signaled gracefully
// and awaited up to the stop deadline before the archive is produced.
func (s *Session) Stop(force bool) (string, error) {
	if force {
		return s.enforceTermination(), nil
	}

	s.mu.Lock()
	cmd := s.cmd
	wd := s.waitDone
	cached := s.archivePath
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		if archive.Exists(cached) {
			return cached, nil
		}
		return "", nil
	}

	s.log.Info("stopping recorder", "pid", cmd.Process.Pid)
	// Best-effort: the recorder may have exited on its own in the meantime.
	_ = interruptProcess(cmd.Process.Pid)

	if wd != nil {
		select {
		case <-wd:
		case <-time.After(s.opts.StopTimeout):
			return "", &GracefulStopTimeoutError{Profile: s.opts.ProfileName, Wait: s.opts.StopTimeout}
		}
	}
	return s.ArchivedReportPath()
}

// OriginalReportPath returns the raw artifact path if it exists on disk
// right now, else "". Pure existence check, never cached.
func (s *Session) OriginalReportPath() string {
	if archive.Exists(s.reportPath) {
		return s.reportPath
	}
	return ""
}

// CachedArchivePath returns the already-produced archive path, or "" when
// none exists yet. It never triggers compression.
func (s *Session) CachedArchivePath() string {
	s.mu.Lock()
	cached := s.archivePath
	s.mu.Unlock()
	if archive.Exists(cached) {
		return cached
	}
	return ""
}

// ArchivedReportPath returns the archive of the trace bundle, creating it
// lazily. Concurrent callers share a single compression; a previously
// produced archive is revalidated against disk before being returned.
// "" with nil error means no artifact is available.
func (s *Session) ArchivedReportPath() (string, error) {
	s.mu.Lock()
	if s.archivePath != "" && archive.Exists(s.archivePath) {
		cached := s.archivePath
		s.mu.Unlock()
		return cached, nil
	}
	if !archive.Exists(s.reportPath) {
		s.mu.Unlock()
		return "", nil
	}
	op := s.archive
	if op == nil {
		op = &archiveOp{done: make(chan struct{})}
		s.archive = op
		src, dst, fn := s.reportPath, s.archiveTarget(), s.archiveFn
		go func() {
			if err := fn(src, dst); err != nil {
				op.err = err
			} else {
				op.path = dst
			}
			close(op.done)
		}()
	}
	s.mu.Unlock()

	<-op.done
	if op.err != nil {
		// A failed attempt must not satisfy later callers; clear the memo
		// so the archive can be retried while the raw artifact remains.
		s.mu.Lock()
		if s.archive == op {
			s.archive = nil
		}
		s.mu.Unlock()
		return "", fmt.Errorf("archive trace %s: %w", s.reportPath, op.err)
	}

	s.mu.Lock()
	s.archivePath = op.path
	path := s.archivePath
	s.mu.Unlock()
	return path, nil
}

// enforceTermination is the forced-termination and cleanup path. It is
// idempotent against concurrent invocation: the live references are taken
// and cleared under lock before any killing or deleting happens, and an
// in-flight archive is always awaited before its target is deleted so a
// write in progress is never ripped out from underneath.
func (s *Session) enforceTermination() string {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	op := s.archive
	s.archive = nil
	s.archivePath = ""
	s.state = StateForceTerminated
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		// The process may already be gone; signal failures are swallowed.
		_ = killProcess(cmd.Process.Pid)
	}
	if op != nil {
		<-op.done
	}
	_ = os.Remove(s.archiveTarget())
	_ = os.RemoveAll(s.reportPath)
	return ""
}

func (s *Session) archiveTarget() string {
	base := s.reportPath
	if strings.HasSuffix(strings.ToLower(base), TraceExt) {
		base = base[:len(base)-len(TraceExt)]
	}
	return base + archive.Ext
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// defaultObservers wires the two callback slots: output lines go to the
// session logger (and the raw capture writer when configured); exit either
// finalizes a successful recording or runs forced cleanup.
func (s *Session) defaultObservers() observers {
	return observers{
		output: func(stream, line string) {
			s.log.Debug("recorder output", "stream", stream, "line", line)
			s.mu.Lock()
			w := s.toolOut
			s.mu.Unlock()
			if w != nil {
				_, _ = fmt.Fprintln(w, line)
			}
		},
		exit: func(err error) {
			if err == nil {
				s.mu.Lock()
				s.cmd = nil
				s.state = StateCompleted
				s.mu.Unlock()
				s.log.Info("recording completed")
				// Warm the archive cache without blocking the exit
				// observer; failures here are logged, never surfaced.
				go func() {
					if _, aerr := s.ArchivedReportPath(); aerr != nil {
						s.log.Warn("trace archive warm-up failed", "error", aerr)
					}
				}()
				return
			}
			code, sig := exitInfo(err)
			s.log.Warn("recorder exited abnormally", "exit_code", code, "signal", sig)
			s.enforceTermination()
		},
	}
}

// observeExit reaps the process, notifies the exit observer, and only then
// releases waiters and the output capture writer.
func (s *Session) observeExit(cmd *exec.Cmd, onExit func(error), outW, errW *lineWriter) {
	err := cmd.Wait()
	outW.flush()
	errW.flush()
	onExit(err)
	s.closeWaitDone()
	s.closeToolOut()
}

func (s *Session) closeWaitDone() {
	s.mu.Lock()
	if s.waitDone != nil {
		close(s.waitDone)
		s.waitDone = nil
	}
	s.mu.Unlock()
}

func (s *Session) closeToolOut() {
	s.mu.Lock()
	w := s.toolOut
	s.toolOut = nil
	s.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
}
