package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	peersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rsensor",
			Subsystem: "peers",
			Name:      "active",
			Help:      "Currently attached peers.",
		},
	)
	peersAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rsensor",
			Subsystem: "peers",
			Name:      "accepted_total",
			Help:      "Accepted peer connections.",
		},
	)
	peersDetached = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rsensor",
			Subsystem: "peers",
			Name:      "detached_total",
			Help:      "Detached peers by reason.",
		},
		[]string{"reason"},
	)
	framesIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rsensor",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Inbound frames by command.",
		},
		[]string{"command"},
	)
	framesOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rsensor",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Outbound messages by command.",
		},
		[]string{"command"},
	)
	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rsensor",
			Subsystem: "frames",
			Name:      "errors_total",
			Help:      "Inbound frame failures by reason.",
		},
		[]string{"reason"},
	)
	dispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rsensor",
			Subsystem: "dispatch",
			Name:      "failures_total",
			Help:      "Event loop failures that forced a stop.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rsensor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"component", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rsensor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "method", "route", "status"},
	)
)

var knownCommands = map[string]struct{}{
	"sensor-update": {},
	"broadcast":     {},
	"peer-name":     {},
	"jpg":           {},
	"gif":           {},
	"png":           {},
}

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			peersActive,
			peersAccepted,
			peersDetached,
			framesIn,
			framesOut,
			frameErrors,
			dispatchFailures,
			httpRequests,
			httpDuration,
		)
	})
}

func SetPeersActive(n int) {
	RegisterMetrics()
	peersActive.Set(float64(n))
}

func RecordPeerAccepted(active int) {
	RegisterMetrics()
	peersAccepted.Inc()
	peersActive.Set(float64(active))
}

func RecordPeerDetached(reason string, active int) {
	RegisterMetrics()
	peersDetached.WithLabelValues(reason).Inc()
	peersActive.Set(float64(active))
}

func RecordFrameIn(command string) {
	RegisterMetrics()
	framesIn.WithLabelValues(commandLabel(command)).Inc()
}

func RecordFrameOut(command string) {
	RegisterMetrics()
	framesOut.WithLabelValues(commandLabel(command)).Inc()
}

func RecordFrameError(reason string) {
	RegisterMetrics()
	frameErrors.WithLabelValues(reason).Inc()
}

func RecordDispatchFailure() {
	RegisterMetrics()
	dispatchFailures.Inc()
}

func RecordHTTPRequest(component, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(component, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(component, method, route, statusLabel).Observe(duration.Seconds())
}

// Peer-chosen commands are unbounded; fold unknown ones into one label.
func commandLabel(command string) string {
	if _, ok := knownCommands[command]; ok {
		return command
	}
	return "other"
}
