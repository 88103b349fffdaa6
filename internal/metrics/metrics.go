package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"campusevents/internal/campus"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Activity message stages.
const (
	ActivityPublished = "published"
	ActivityConsumed  = "consumed"
	ActivityFailed    = "failed"
)

type Metrics struct {
	operations    *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	activity      *prometheus.CounterVec
	reportCache   *prometheus.CounterVec
	rateLimited   prometheus.Counter
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Name:      "operations_total",
			Help:      "Engine operations by outcome (ok, error kind or internal).",
		}, []string{"operation", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "campus",
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Postgres query latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation", "table", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "campus",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		activity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "activity",
			Name:      "messages_total",
			Help:      "Activity messages by type and stage.",
		}, []string{"type", "stage"}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "report_cache",
			Name:      "lookups_total",
			Help:      "Report cache lookups by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	collectors := []prometheus.Collector{
		m.operations, m.queryDuration, m.httpRequests, m.httpDuration,
		m.activity, m.reportCache, m.rateLimited,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMock creates a no-op Metrics instance for testing.
// The returned Metrics will safely ignore all Record* calls.
func NewMock() *Metrics {
	return &Metrics{}
}

// RecordOperation counts one engine call. Domain errors are labelled by kind.
func (m *Metrics) RecordOperation(operation string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveQuery implements campus.QueryObserver.
func (m *Metrics) ObserveQuery(operation, table string, took time.Duration, err error) {
	if m == nil || m.queryDuration == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.queryDuration.WithLabelValues(operation, table, result).Observe(took.Seconds())
}

func (m *Metrics) RecordActivity(msgType, stage string) {
	if m == nil || m.activity == nil {
		return
	}
	m.activity.WithLabelValues(msgType, stage).Inc()
}

func (m *Metrics) RecordCache(result string) {
	if m == nil || m.reportCache == nil {
		return
	}
	m.reportCache.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.Inc()
}

// GinMiddleware records request count and latency per matched route.
// Unmatched paths share one label so scanners cannot blow up cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil || m.httpRequests == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := campus.KindOf(err); ok {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "internal"
}
