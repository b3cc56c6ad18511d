package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danhyun/perfrec/internal/logger"
	"github.com/danhyun/perfrec/internal/registry"
	"github.com/danhyun/perfrec/internal/session"
)

// Router provides embeddable HTTP handlers for driving recordings.
// Endpoints:
//   POST {basePath}/record       body: recordRequest JSON
//   POST {basePath}/stop         query: profile=...&force=1 (force optional)
//   GET  {basePath}/status       query: profile=... (single) or none (all)
//   GET  {basePath}/report       query: profile=...
//   GET  {basePath}/metrics      Prometheus exposition
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	reg      *registry.Registry
	basePath string
	defaults Defaults
}

// Defaults are applied to record requests that omit the field.
type Defaults struct {
	ToolPath       string
	Device         string
	OutputDir      string
	TimeLimit      time.Duration
	StartupTimeout time.Duration
	StopTimeout    time.Duration
	PollInterval   time.Duration

	Log    logger.Config // enables raw tool-output capture when Dir is set
	Logger *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/v1" results in /v1/record, /v1/stop, /v1/status.
func NewRouter(reg *registry.Registry, basePath string, defaults Defaults) *Router {
	return &Router{reg: reg, basePath: sanitizeBase(basePath), defaults: defaults}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/record", r.handleRecord)
	group.POST("/stop", r.handleStop)
	group.GET("/status", r.handleStatus)
	group.GET("/report", r.handleReport)
	group.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Call the returned server's Close or Shutdown to stop it.
func NewServer(addr, basePath string, reg *registry.Registry, defaults Defaults) (*http.Server, error) {
	r := NewRouter(reg, basePath, defaults)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second, // record blocks until startup confirms
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type recordRequest struct {
	Profile     string `json:"profile"`
	Device      string `json:"device"`
	Output      string `json:"output"`
	TimeLimitMS int64  `json:"time_limit_ms"`
	TargetPID   int    `json:"target_pid"`
}

type recordResp struct {
	Profile    string `json:"profile"`
	Device     string `json:"device"`
	ReportPath string `json:"report_path"`
}

type stopResp struct {
	Profile     string `json:"profile"`
	Forced      bool   `json:"forced"`
	ArchivePath string `json:"archive_path,omitempty"`
}

type reportResp struct {
	Profile     string `json:"profile"`
	ArchivePath string `json:"archive_path"`
}

func (r *Router) handleRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Profile == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "profile required"})
		return
	}
	if !isSafeProfile(req.Profile) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid profile: allowed [A-Za-z0-9 ._-] and no '..' or path separators"})
		return
	}
	device := req.Device
	if device == "" {
		device = r.defaults.Device
	}
	if device == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "device required"})
		return
	}
	output := req.Output
	if output == "" {
		output = defaultOutputPath(r.defaults.OutputDir, req.Profile)
	}
	if !isSafeAbsPath(output) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid output: must be absolute path without traversal"})
		return
	}

	opts := session.Options{
		ProfileName:    req.Profile,
		DeviceID:       device,
		OutputPath:     output,
		Timeout:        time.Duration(req.TimeLimitMS) * time.Millisecond,
		TargetPID:      req.TargetPID,
		ToolPath:       r.defaults.ToolPath,
		StartupTimeout: r.defaults.StartupTimeout,
		StopTimeout:    r.defaults.StopTimeout,
		PollInterval:   r.defaults.PollInterval,
		Logger:         r.defaults.Logger,
		ToolOutput:     r.defaults.Log.ToolOutputWriter(req.Profile),
	}
	if opts.Timeout <= 0 {
		opts.Timeout = r.defaults.TimeLimit
	}

	s, err := r.reg.Begin(c.Request.Context(), opts)
	if err != nil {
		writeJSON(c, statusForStartError(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, recordResp{
		Profile:    s.ProfileName(),
		Device:     s.DeviceID(),
		ReportPath: s.OriginalReportPath(),
	})
}

func (r *Router) handleStop(c *gin.Context) {
	profile := c.Query("profile")
	if profile == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "profile query param required"})
		return
	}
	force := c.Query("force") == "1" || c.Query("force") == "true"

	path, err := r.reg.Stop(profile, force)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, registry.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, stopResp{Profile: profile, Forced: force, ArchivePath: path})
}

func (r *Router) handleStatus(c *gin.Context) {
	profile := c.Query("profile")
	if profile == "" {
		writeJSON(c, http.StatusOK, r.reg.Statuses())
		return
	}
	for _, st := range r.reg.Statuses() {
		if st.Profile == profile {
			writeJSON(c, http.StatusOK, st)
			return
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "no recording session for profile " + profile})
}

func (r *Router) handleReport(c *gin.Context) {
	profile := c.Query("profile")
	if profile == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "profile query param required"})
		return
	}
	path, err := r.reg.Report(profile)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, registry.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	if path == "" {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no report available for profile " + profile})
		return
	}
	writeJSON(c, http.StatusOK, reportResp{Profile: profile, ArchivePath: path})
}

func statusForStartError(err error) int {
	switch err.(type) {
	case *session.ToolNotFoundError:
		return http.StatusInternalServerError
	case *session.StartupTimeoutError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}
