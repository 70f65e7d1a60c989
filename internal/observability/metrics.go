package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine labels
const (
	EngineEdge   = "edge"
	EngineGoogle = "gtts"
)

var (
	// HTTP metrics
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_http_requests_total",
		Help: "Total number of HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_gateway_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"route"})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_tts_requests_total",
		Help: "Total number of synthesis requests",
	}, []string{"engine", "status"})

	ttsLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_gateway_tts_latency_seconds",
		Help:    "Synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"engine"})

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_audio_bytes_total",
		Help: "Total audio bytes produced",
	}, []string{"engine"})

	// Voice catalog metrics
	voiceCatalogRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_voice_catalog_requests_total",
		Help: "Total number of voice catalog fetches",
	}, []string{"status"})

	// Temp file metrics
	tempFilesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_gateway_temp_files_active",
		Help: "Number of transient audio files currently on disk",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speech_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SynthesisTimer tracks one synthesis call against one engine
type SynthesisTimer struct {
	engine string
	start  time.Time
}

// StartSynthesis starts timing a synthesis call
func StartSynthesis(engine string) *SynthesisTimer {
	return &SynthesisTimer{engine: engine, start: time.Now()}
}

// Done records latency, outcome and produced bytes
func (t *SynthesisTimer) Done(success bool, bytes int64) {
	ttsLatency.WithLabelValues(t.engine).Observe(time.Since(t.start).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(t.engine, status).Inc()

	if bytes > 0 {
		audioBytes.WithLabelValues(t.engine).Add(float64(bytes))
	}
}

// RecordHTTPRequest records a completed HTTP request
func RecordHTTPRequest(route string, code int, duration time.Duration) {
	httpRequests.WithLabelValues(route, statusLabel(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordVoiceCatalog records a voice catalog fetch
func RecordVoiceCatalog(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	voiceCatalogRequests.WithLabelValues(status).Inc()
}

// TempFileCreated increments the active temp file gauge
func TempFileCreated() {
	tempFilesActive.Inc()
}

// TempFileRemoved decrements the active temp file gauge
func TempFileRemoved() {
	tempFilesActive.Dec()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
