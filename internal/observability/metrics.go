// Package observability exposes the tracker's Prometheus metrics and the
// HTTP endpoint that serves them.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_cycles_total",
		Help: "Control-loop cycles run",
	})
	MotionCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_motion_cycles_total",
		Help: "Cycles on which motion was detected",
	})
	FixAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_fix_attempts_total",
		Help: "Cycles on which a position fix was attempted",
	})
	FixesAchieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_fixes_total",
		Help: "Position fixes achieved",
	})
	ReportsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackerd_reports_queued_total",
		Help: "Reports queued by kind",
	}, []string{"kind"})
	ReportsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_reports_sent_total",
		Help: "Reports published to the uplink",
	})
	ReportsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_reports_failed_total",
		Help: "Report publish attempts that failed",
	})
	ConnectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_connect_failures_total",
		Help: "Uplink connect attempts that failed",
	})
	Fatals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_fatals_total",
		Help: "Structural invariant violations forcing a reset",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackerd_queue_depth",
		Help: "Report records currently queued",
	})
	QueueOverruns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackerd_queue_overruns",
		Help: "Oldest-record overwrites since the last state reset",
	})
	SleepSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackerd_sleep_seconds",
		Help: "Duration of the most recent sleep directive",
	})
)

// StartMetricsServer serves /metrics and /healthz on addr. It blocks, so
// callers run it in a goroutine.
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	_ = http.ListenAndServe(addr, nil)
}
