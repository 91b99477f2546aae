// Package metrics provides Prometheus metrics for the indexer, the updater
// and the remote client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run modes used as the "mode" label.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Error kinds used as the "kind" label of errorsTotal.
const (
	ErrorRemoteFetch = "remote_fetch"
	ErrorDecode      = "decode"
	ErrorStorage     = "storage"
)

var (
	nodesIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveindex_nodes_indexed_total",
			Help: "Nodes written by the full indexer",
		},
		[]string{"kind"},
	)

	nodesDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveindex_nodes_discovered_total",
			Help: "Previously unknown nodes inserted by the incremental updater",
		},
		[]string{"kind"},
	)

	foldersScannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driveindex_folders_scanned_total",
			Help: "Known folders re-listed by the incremental updater",
		},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveindex_errors_total",
			Help: "Indexing errors by kind",
		},
		[]string{"kind"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driveindex_run_duration_seconds",
			Help:    "Duration of indexing runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		},
		[]string{"mode", "result"},
	)

	cacheRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "driveindex_cache_rows",
			Help: "Rows in the local cache by table",
		},
		[]string{"table"},
	)

	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveindex_remote_requests_total",
			Help: "Requests sent to the remote drive API",
		},
		[]string{"method", "status"},
	)

	remoteRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driveindex_remote_request_duration_seconds",
			Help:    "Remote drive API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIndexed counts one node written by the full indexer.
func RecordIndexed(kind string) {
	nodesIndexedTotal.WithLabelValues(kind).Inc()
}

// RecordDiscovered counts one node inserted by the updater.
func RecordDiscovered(kind string) {
	nodesDiscoveredTotal.WithLabelValues(kind).Inc()
}

// RecordFolderScanned counts one folder re-listed by the updater.
func RecordFolderScanned() {
	foldersScannedTotal.Inc()
}

// RecordError counts one error of the given kind.
func RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRun records a finished run.
func RecordRun(mode string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}

	runDuration.WithLabelValues(mode, result).Observe(duration.Seconds())
}

// SetCacheRows publishes current table sizes.
func SetCacheRows(folders, files int) {
	cacheRows.WithLabelValues("folders").Set(float64(folders))
	cacheRows.WithLabelValues("files").Set(float64(files))
}

// RecordRemoteRequest records one remote API attempt. status is 0 when the
// request failed before a response arrived.
func RecordRemoteRequest(method string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}

	remoteRequestsTotal.WithLabelValues(method, label).Inc()
	remoteRequestDuration.Observe(duration.Seconds())
}
