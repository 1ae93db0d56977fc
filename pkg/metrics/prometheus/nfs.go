// Package prometheus implements pkg/metrics.NFSMetrics via
// github.com/prometheus/client_golang, grounded on the teacher's
// pkg/metrics/prometheus/badger.go and cache.go.
package prometheus

import (
	"time"

	"github.com/marmos91/graymamba/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// nfsMetrics is the Prometheus-backed implementation of
// metrics.NFSMetrics.
type nfsMetrics struct {
	requests            *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	inFlight             *prometheus.GaugeVec
	bytesTransferred     *prometheus.CounterVec
	operationSize        *prometheus.HistogramVec
	activeConnections    prometheus.Gauge
	connectionsAccepted  prometheus.Counter
	connectionsClosed    prometheus.Counter
	connectionsForced    prometheus.Counter
	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec
}

// NewNFSMetrics constructs a Prometheus-backed metrics.NFSMetrics.
// Returns nil if metrics.InitRegistry has not been called, matching
// the teacher's zero-overhead-when-disabled convention.
func NewNFSMetrics() metrics.NFSMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &nfsMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graymamba_nfs_requests_total",
				Help: "Total NFS requests by procedure, share, and error code",
			},
			[]string{"procedure", "share", "error_code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graymamba_nfs_request_duration_seconds",
				Help:    "NFS request duration by procedure and share",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure", "share"},
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "graymamba_nfs_requests_in_flight",
				Help: "Number of NFS requests currently being processed",
			},
			[]string{"procedure", "share"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graymamba_nfs_bytes_transferred_total",
				Help: "Total bytes transferred by procedure, share, and direction",
			},
			[]string{"procedure", "share", "direction"},
		),
		operationSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graymamba_nfs_operation_size_bytes",
				Help:    "Size of read/write operations by share",
				Buckets: prometheus.ExponentialBuckets(512, 4, 8),
			},
			[]string{"operation", "share"},
		),
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "graymamba_nfs_active_connections",
			Help: "Current number of active NFS connections",
		}),
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "graymamba_nfs_connections_accepted_total",
			Help: "Total NFS connections accepted",
		}),
		connectionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "graymamba_nfs_connections_closed_total",
			Help: "Total NFS connections closed",
		}),
		connectionsForced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "graymamba_nfs_connections_force_closed_total",
			Help: "Total NFS connections force-closed after shutdown timeout",
		}),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graymamba_nfs_cache_hits_total",
				Help: "Total read-path cache hits by share and cache type",
			},
			[]string{"share", "cache_type"},
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graymamba_nfs_cache_misses_total",
				Help: "Total read-path cache misses by share",
			},
			[]string{"share"},
		),
	}
}

func (m *nfsMetrics) RecordRequest(procedure, share string, duration time.Duration, errorCode string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(procedure, share, errorCode).Inc()
	m.requestDuration.WithLabelValues(procedure, share).Observe(duration.Seconds())
}

func (m *nfsMetrics) RecordRequestStart(procedure, share string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(procedure, share).Inc()
}

func (m *nfsMetrics) RecordRequestEnd(procedure, share string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(procedure, share).Dec()
}

func (m *nfsMetrics) RecordBytesTransferred(procedure, share, direction string, bytes uint64) {
	if m == nil {
		return
	}
	m.bytesTransferred.WithLabelValues(procedure, share, direction).Add(float64(bytes))
}

func (m *nfsMetrics) RecordOperationSize(operation, share string, bytes uint64) {
	if m == nil {
		return
	}
	m.operationSize.WithLabelValues(operation, share).Observe(float64(bytes))
}

func (m *nfsMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *nfsMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *nfsMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

func (m *nfsMetrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.connectionsForced.Inc()
}

func (m *nfsMetrics) RecordCacheHit(share, cacheType string, bytes uint64) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(share, cacheType).Inc()
}

func (m *nfsMetrics) RecordCacheMiss(share string, bytes uint64) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(share).Inc()
}
