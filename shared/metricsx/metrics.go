package metricsx

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeRetry   = "retry"
	OutcomeDropped = "dropped"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Background jobs processed by task type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Background job handler latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_jobs_enqueued_total",
			Help: "Jobs enqueued by the mutation recorder.",
		},
		[]string{"type"},
	)
	enqueueFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_enqueue_failures_total",
			Help: "Jobs the mutation recorder failed to enqueue.",
		},
		[]string{"type"},
	)
	deadJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_dead_total",
			Help: "Jobs that exhausted their retries.",
		},
		[]string{"type"},
	)
	kafkaPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_publish_failures_total",
			Help: "Domain stream publishes that failed.",
		},
		[]string{"topic"},
	)
	unreadCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unread_cache_lookups_total",
			Help: "Unread-count cache lookups by result.",
		},
		[]string{"result"},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpLatency,
			jobsProcessed, jobDuration, jobsEnqueued, enqueueFailures, deadJobs,
			kafkaPublishFailures, unreadCacheLookups, asynqQueueDepth,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func ObserveJob(taskType string, outcome string, d time.Duration) {
	jobsProcessed.WithLabelValues(taskType, outcome).Inc()
	jobDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

func IncJobEnqueued(taskType string) {
	jobsEnqueued.WithLabelValues(taskType).Inc()
}

func IncEnqueueFailure(taskType string) {
	enqueueFailures.WithLabelValues(taskType).Inc()
}

func IncDeadJob(taskType string) {
	deadJobs.WithLabelValues(taskType).Inc()
}

func IncKafkaPublishFailure(topic string) {
	kafkaPublishFailures.WithLabelValues(topic).Inc()
}

func IncUnreadCache(result string) {
	unreadCacheLookups.WithLabelValues(result).Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
