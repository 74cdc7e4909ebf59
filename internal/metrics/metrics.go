package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otogram_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otogram_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otogram_http_active_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// UploadsTotal counts media uploads; kind is "video", "thumbnail" or "avatar".
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otogram_uploads_total",
			Help: "Total number of media uploads by kind and result",
		},
		[]string{"kind", "result"},
	)

	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otogram_upload_bytes_total",
			Help: "Bytes written to the blob store by upload kind",
		},
		[]string{"kind"},
	)

	LikesToggled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otogram_likes_toggled_total",
			Help: "Total number of like toggles by resulting state",
		},
		[]string{"liked"},
	)

	BlobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otogram_blobs_swept_total",
			Help: "Total number of orphaned blobs removed by the sweeper",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "otogram_sweep_duration_seconds",
			Help:    "Duration of orphan sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otogram_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otogram_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight HTTP requests.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordUpload records the outcome of storing one uploaded file.
func RecordUpload(kind string, size int64, err error) {
	if err != nil {
		UploadsTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	UploadsTotal.WithLabelValues(kind, "ok").Inc()
	UploadBytes.WithLabelValues(kind).Add(float64(size))
}

// RecordLikeToggle records the state a toggle left the like in.
func RecordLikeToggle(liked bool) {
	LikesToggled.WithLabelValues(strconv.FormatBool(liked)).Inc()
}

// RecordSweep records a finished sweep and the blobs it removed.
func RecordSweep(removed int, duration time.Duration) {
	BlobsSwept.Add(float64(removed))
	SweepDuration.Observe(duration.Seconds())
}
