package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danhyun/perfrec/internal/history"
	"github.com/danhyun/perfrec/internal/metrics"
	"github.com/danhyun/perfrec/internal/session"
)

// Registry tracks recording sessions keyed by profile name. It refuses a
// second active recording under the same name and resolves sessions for
// stop and status requests. Lifecycle events go to the configured history
// sinks; failures to persist are never surfaced to recording callers.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	sinks    []history.Sink
	log      *slog.Logger
}

// ErrNotFound marks lookups of profiles with no session.
var ErrNotFound = errors.New("no recording session for profile")

// Status is the queryable snapshot of one session.
type Status struct {
	Profile     string `json:"profile"`
	Device      string `json:"device"`
	State       string `json:"state"`
	Running     bool   `json:"running"`
	ReportPath  string `json:"report_path,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
}

func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{sessions: make(map[string]*session.Session), log: log}
}

// SetHistory configures history sinks.
func (r *Registry) SetHistory(sinks ...history.Sink) {
	r.mu.Lock()
	r.sinks = append([]history.Sink(nil), sinks...)
	r.mu.Unlock()
}

// Begin creates and starts a session for opts.ProfileName. A profile with
// an active recording cannot be started twice; only a session whose
// lifecycle has ended is replaced. The state check (not process liveness)
// is what makes concurrent Begin calls for one profile mutually exclusive:
// the new session occupies the map slot in Idle before its start runs.
func (r *Registry) Begin(ctx context.Context, opts session.Options) (*session.Session, error) {
	r.mu.Lock()
	if prev, ok := r.sessions[opts.ProfileName]; ok && !prev.State().Terminal() {
		r.mu.Unlock()
		return nil, fmt.Errorf("profile %q is already being recorded on device %q", opts.ProfileName, prev.DeviceID())
	}
	s := session.New(opts)
	r.sessions[opts.ProfileName] = s
	r.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		r.mu.Lock()
		if r.sessions[opts.ProfileName] == s {
			delete(r.sessions, opts.ProfileName)
		}
		r.mu.Unlock()
		metrics.IncFailure(opts.ProfileName, failureReason(err))
		r.emit(history.EventFailed, s, err.Error())
		return nil, err
	}

	metrics.IncStart(opts.ProfileName)
	metrics.SetActiveRecordings(r.runningCount())
	r.emit(history.EventStarted, s, "")
	return s, nil
}

// Get returns the session recorded under profile, if any.
func (r *Registry) Get(profile string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[profile]
	return s, ok
}

// Stop ends the named recording. force discards all artifacts; otherwise
// the archived path is returned.
func (r *Registry) Stop(profile string, force bool) (string, error) {
	s, ok := r.Get(profile)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNotFound, profile)
	}

	path, err := s.Stop(force)
	if err != nil {
		metrics.IncFailure(profile, failureReason(err))
		return "", err
	}

	mode := "graceful"
	evt := history.EventCompleted
	if force {
		mode = "forced"
		evt = history.EventForceTerminated
	}
	metrics.IncStop(profile, mode)
	metrics.SetActiveRecordings(r.runningCount())
	r.emit(evt, s, "")
	if path != "" {
		r.emit(history.EventArchived, s, "")
	}
	return path, nil
}

// StopAll force- or gracefully stops every known session, returning the
// first error encountered.
func (r *Registry) StopAll(force bool) error {
	r.mu.Lock()
	profiles := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		profiles = append(profiles, name)
	}
	r.mu.Unlock()

	var firstErr error
	for _, p := range profiles {
		if _, err := r.Stop(p, force); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Report returns the archived artifact for profile, producing it on
// demand, and records how long compression took.
func (r *Registry) Report(profile string) (string, error) {
	s, ok := r.Get(profile)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNotFound, profile)
	}
	begin := time.Now()
	path, err := s.ArchivedReportPath()
	if err != nil {
		return "", err
	}
	if path != "" {
		metrics.ObserveArchiveDuration(profile, time.Since(begin).Seconds())
	}
	return path, nil
}

// Statuses snapshots every known session.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Status{
			Profile:     s.ProfileName(),
			Device:      s.DeviceID(),
			State:       s.State().String(),
			Running:     s.IsRunning(),
			ReportPath:  s.OriginalReportPath(),
			ArchivePath: s.CachedArchivePath(),
		})
	}
	return out
}

// Close stops nothing; it releases the history sinks.
func (r *Registry) Close() error {
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) runningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.IsRunning() {
			n++
		}
	}
	return n
}

func (r *Registry) emit(t history.EventType, s *session.Session, detail string) {
	r.mu.Lock()
	sinks := append([]history.Sink(nil), r.sinks...)
	r.mu.Unlock()
	if len(sinks) == 0 {
		return
	}

	rec := history.Record{
		Profile:     s.ProfileName(),
		Device:      s.DeviceID(),
		State:       s.State().String(),
		ReportPath:  s.OriginalReportPath(),
		ArchivePath: s.CachedArchivePath(),
		Detail:      detail,
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	for _, sink := range sinks {
		if err := sink.Send(context.Background(), evt); err != nil {
			r.log.Warn("history sink rejected event", "event", string(t), "error", err)
		}
	}
}

func failureReason(err error) string {
	switch err.(type) {
	case *session.ToolNotFoundError:
		return "tool_not_found"
	case *session.StartupTimeoutError:
		return "startup_timeout"
	case *session.GracefulStopTimeoutError:
		return "stop_timeout"
	default:
		return "other"
	}
}
