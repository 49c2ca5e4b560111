// Package metrics exposes Prometheus counters/gauges for both nodes:
// frame counts per link, RTT, E-STOP transitions, connection states, and
// video drop/resync counters, plus a /metrics and /ready HTTP endpoint.
// It is a direct, domain-adapted descendant of go-ampio-server's
// internal/metrics — same promauto/promhttp shape, same StartHTTP and
// readiness-function plumbing, CAN-frame counters swapped for
// control/telemetry/video ones, plus a local mirror of the counters
// readable through Snap. Nothing in this module logs Snap periodically.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ropecrew/ropelink/internal/logging"
)

// Prometheus series.
var (
	ControlFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_frames_sent_total",
		Help: "Total authenticated control frames sent.",
	})
	ControlFramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_frames_received_total",
		Help: "Total authenticated control frames accepted.",
	})
	TelemetryFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_sent_total",
		Help: "Total authenticated telemetry frames sent.",
	})
	TelemetryFramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_received_total",
		Help: "Total authenticated telemetry frames accepted.",
	})
	VideoFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_frames_sent_total",
		Help: "Total JPEG frames relayed by the video sender.",
	})
	VideoFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_frames_dropped_total",
		Help: "Total JPEG frames dropped due to backpressure or a dead link.",
	})
	VideoResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_resyncs_total",
		Help: "Total times the video receiver discarded a runaway frame and resynced to the next SOI marker.",
	})
	EstopTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "estop_transitions_total",
		Help: "Total E-STOP latch transitions, labeled by reason.",
	}, []string{"reason"})
	ClearRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "estop_clear_rejections_total",
		Help: "Total rejected E-STOP clear attempts, labeled by rejection reason.",
	}, []string{"reason"})
	GatedDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gated_actuation_drops_total",
		Help: "Total actuation commands discarded because the E-STOP latch was engaged.",
	})
	EstopEngaged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "estop_engaged",
		Help: "1 if the E-STOP latch is currently engaged, 0 if cleared.",
	})
	ControlLinkState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "control_link_state",
		Help: "ControlLink connection state (0=disconnected,1=connecting,2=established,3=draining).",
	})
	TelemetryLinkState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_link_state",
		Help: "TelemetryLink connection state (0=disconnected,1=connecting,2=established,3=draining).",
	})
	VideoLinkState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video_link_state",
		Help: "VideoLink connection state (0=disconnected,1=connecting,2=established,3=draining).",
	})
	RTTMillis = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "control_rtt_milliseconds",
		Help: "Last observed control channel round-trip time, in milliseconds.",
	})
	ControlAgeMillis = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "control_age_milliseconds",
		Help: "Milliseconds since the last accepted authenticated control frame.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"node", "version"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrControlRead    = "control_read"
	ErrControlWrite   = "control_write"
	ErrTelemetryRead  = "telemetry_read"
	ErrTelemetryWrite = "telemetry_write"
	ErrVideoRead      = "video_read"
	ErrVideoWrite     = "video_write"
	ErrActuator       = "actuator"
	ErrSensor         = "sensor"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe
// at /ready on addr. The returned *http.Server is the caller's to
// Shutdown.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, cheap to snapshot via Snap without
// Prometheus scraping.
var (
	localControlSent       uint64
	localControlReceived   uint64
	localTelemetrySent     uint64
	localTelemetryReceived uint64
	localVideoSent         uint64
	localVideoDropped      uint64
	localVideoResyncs      uint64
	localGatedDrops        uint64
	localErrors            uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	ControlSent       uint64
	ControlReceived   uint64
	TelemetrySent     uint64
	TelemetryReceived uint64
	VideoSent         uint64
	VideoDropped      uint64
	VideoResyncs      uint64
	GatedDrops        uint64
	Errors            uint64
}

// Snap returns a point-in-time copy of the local counters.
func Snap() Snapshot {
	return Snapshot{
		ControlSent:       atomic.LoadUint64(&localControlSent),
		ControlReceived:   atomic.LoadUint64(&localControlReceived),
		TelemetrySent:     atomic.LoadUint64(&localTelemetrySent),
		TelemetryReceived: atomic.LoadUint64(&localTelemetryReceived),
		VideoSent:         atomic.LoadUint64(&localVideoSent),
		VideoDropped:      atomic.LoadUint64(&localVideoDropped),
		VideoResyncs:      atomic.LoadUint64(&localVideoResyncs),
		GatedDrops:        atomic.LoadUint64(&localGatedDrops),
		Errors:            atomic.LoadUint64(&localErrors),
	}
}

// IncControlSent/IncControlReceived and friends keep the Prometheus
// series and the cheap local mirror in lockstep, the same pairing the
// teacher's IncSerialRx/IncTCPRx wrappers use.
func IncControlSent()     { ControlFramesSent.Inc(); atomic.AddUint64(&localControlSent, 1) }
func IncControlReceived() { ControlFramesReceived.Inc(); atomic.AddUint64(&localControlReceived, 1) }
func IncTelemetrySent()   { TelemetryFramesSent.Inc(); atomic.AddUint64(&localTelemetrySent, 1) }
func IncTelemetryReceived() {
	TelemetryFramesReceived.Inc()
	atomic.AddUint64(&localTelemetryReceived, 1)
}
func IncVideoSent()    { VideoFramesSent.Inc(); atomic.AddUint64(&localVideoSent, 1) }
func IncVideoDropped() { VideoFramesDropped.Inc(); atomic.AddUint64(&localVideoDropped, 1) }
func IncVideoResync()  { VideoResyncs.Inc(); atomic.AddUint64(&localVideoResyncs, 1) }
func IncGatedDrop()    { GatedDrops.Inc(); atomic.AddUint64(&localGatedDrops, 1) }

func IncEstopTransition(reason string) { EstopTransitions.WithLabelValues(reason).Inc() }
func IncClearRejection(reason string)  { ClearRejections.WithLabelValues(reason).Inc() }

func SetEstopEngaged(engaged bool) {
	if engaged {
		EstopEngaged.Set(1)
		return
	}
	EstopEngaged.Set(0)
}

func SetControlLinkState(n int)    { ControlLinkState.Set(float64(n)) }
func SetTelemetryLinkState(n int)  { TelemetryLinkState.Set(float64(n)) }
func SetVideoLinkState(n int)      { VideoLinkState.Set(float64(n)) }
func SetRTTMillis(ms int64)        { RTTMillis.Set(float64(ms)) }
func SetControlAgeMillis(ms int64) { ControlAgeMillis.Set(float64(ms)) }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers the error
// label series so the first real error does not pay registration
// latency.
func InitBuildInfo(node, version string) {
	BuildInfo.WithLabelValues(node, version).Set(1)
	for _, lbl := range []string{
		ErrControlRead, ErrControlWrite, ErrTelemetryRead, ErrTelemetryWrite,
		ErrVideoRead, ErrVideoWrite, ErrActuator, ErrSensor,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present,
// defaulting to ready so the endpoint never flaps before one is set.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
