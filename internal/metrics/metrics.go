package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	recordingStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "perfrec",
			Subsystem: "recording",
			Name:      "starts_total",
			Help:      "Number of successfully confirmed recording starts.",
		}, []string{"profile"},
	)
	recordingStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "perfrec",
			Subsystem: "recording",
			Name:      "stops_total",
			Help:      "Number of recording stops by mode (graceful or forced).",
		}, []string{"profile", "mode"},
	)
	recordingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "perfrec",
			Subsystem: "recording",
			Name:      "failures_total",
			Help:      "Number of recording failures by reason.",
		}, []string{"profile", "reason"},
	)
	archiveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "perfrec",
			Subsystem: "recording",
			Name:      "archive_duration_seconds",
			Help:      "Time spent compressing trace bundles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"profile"},
	)
	activeRecordings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "perfrec",
			Subsystem: "recording",
			Name:      "active",
			Help:      "Recordings currently running.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{recordingStarts, recordingStops, recordingFailures, archiveDuration, activeRecordings}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(profile string) {
	if regOK.Load() {
		recordingStarts.WithLabelValues(profile).Inc()
	}
}

func IncStop(profile, mode string) {
	if regOK.Load() {
		recordingStops.WithLabelValues(profile, mode).Inc()
	}
}

func IncFailure(profile, reason string) {
	if regOK.Load() {
		recordingFailures.WithLabelValues(profile, reason).Inc()
	}
}

func ObserveArchiveDuration(profile string, seconds float64) {
	if regOK.Load() {
		archiveDuration.WithLabelValues(profile).Observe(seconds)
	}
}

func SetActiveRecordings(n int) {
	if regOK.Load() {
		activeRecordings.Set(float64(n))
	}
}
