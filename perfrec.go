// Package perfrec manages supervised performance-recording sessions: it
// launches an external trace recorder against a device, confirms startup,
// enforces stop deadlines and archives the resulting trace bundles.
package perfrec

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danhyun/perfrec/internal/config"
	"github.com/danhyun/perfrec/internal/history"
	"github.com/danhyun/perfrec/internal/history/factory"
	"github.com/danhyun/perfrec/internal/logger"
	"github.com/danhyun/perfrec/internal/metrics"
	"github.com/danhyun/perfrec/internal/registry"
	"github.com/danhyun/perfrec/internal/server"
	"github.com/danhyun/perfrec/internal/session"
)

// Session types re-exported for embedding perfrec as a library.
type (
	Options = session.Options
	Session = session.Session
	State   = session.State

	Registry = registry.Registry
	Status   = registry.Status

	Config    = config.FileConfig
	LogConfig = logger.Config

	HistorySink  = history.Sink
	HistoryEvent = history.Event

	ServerDefaults = server.Defaults
)

// Recording defaults.
const (
	DefaultTimeout        = session.DefaultTimeout
	DefaultStartupTimeout = session.DefaultStartupTimeout
	DefaultStopTimeout    = session.DefaultStopTimeout
	DefaultTool           = session.DefaultTool
	TraceExt              = session.TraceExt
)

// New creates a session registry.
func New(log *slog.Logger) *Registry { return registry.New(log) }

// NewSession builds a single unmanaged session. Most callers should go
// through a Registry instead.
func NewSession(opts Options) *Session { return session.New(opts) }

// LoadConfig parses and validates a TOML config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewLogger builds the structured logger writing to w.
func NewLogger(w io.Writer, cfg LogConfig) *slog.Logger { return logger.New(w, cfg) }

// NewHistorySink creates a history sink from a DSN
// (sqlite path, postgres:// or clickhouse:// URL).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// RegisterMetrics registers the recording metrics with the default
// Prometheus registerer. Safe to call multiple times.
func RegisterMetrics() error { return metrics.Register(prometheus.DefaultRegisterer) }

// NewHTTPServer starts the recording API on addr and returns the server.
func NewHTTPServer(addr, basePath string, reg *Registry, defaults ServerDefaults) (*http.Server, error) {
	return server.NewServer(addr, basePath, reg, defaults)
}

// SessionDefaults converts the [recording] config table into session
// option defaults usable by the HTTP server and CLI.
func SessionDefaults(cfg *Config) ServerDefaults {
	d := ServerDefaults{
		ToolPath:  cfg.Tool,
		Device:    cfg.Device,
		OutputDir: cfg.OutputDir,
		Log:       cfg.LoggerConfig(),
	}
	if cfg.Recording != nil {
		d.TimeLimit = cfg.Recording.TimeLimit
		d.StartupTimeout = cfg.Recording.StartupTimeout
		d.StopTimeout = cfg.Recording.StopTimeout
		d.PollInterval = cfg.Recording.PollInterval
	}
	return d
}
