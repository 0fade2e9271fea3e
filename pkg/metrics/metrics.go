package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 存储操作延迟（秒）
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todo_store_op_duration_seconds",
			Help:    "Todo store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"backend", "operation", "status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	UploadURLIssuedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_url_issued_count",
			Help: "Total number of pre-signed upload URLs requested",
		},
		[]string{"status"}, // status: success, failed
	)

	CacheLookupCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todo_cache_lookup_count",
			Help: "Todo list cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)
)

// RecordStoreOp 记录存储操作延迟
func RecordStoreOp(backend, operation string, err error, duration time.Duration) {
	StoreOpDuration.WithLabelValues(backend, operation, status(err)).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementUploadURLIssued(err error) {
	UploadURLIssuedCount.WithLabelValues(status(err)).Inc()
}

func IncrementCacheLookup(result string) {
	CacheLookupCount.WithLabelValues(result).Inc()
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

var SlowQueryCount = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "db_slow_query_count",
		Help: "PostgreSQL queries slower than the tracer threshold",
	},
)

func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}
