package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "movedesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "movedesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2, 10),
		},
		[]string{"method", "route"},
	)

	quotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "movedesk",
			Subsystem: "pricing",
			Name:      "quotes_total",
			Help:      "Quotes calculated, by caller and outcome.",
		},
		[]string{"source", "result"},
	)

	quoteLines = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "movedesk",
			Subsystem: "pricing",
			Name:      "quote_lines",
			Help:      "Number of priced lines per quote.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	contractsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "movedesk",
			Subsystem: "contracts",
			Name:      "created_total",
			Help:      "Contracts persisted.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		quotesTotal,
		quoteLines,
		contractsCreated,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func RecordQuote(source string, lines int, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	quotesTotal.WithLabelValues(source, result).Inc()
	if err == nil {
		quoteLines.Observe(float64(lines))
	}
}

func RecordContractCreated() {
	contractsCreated.Inc()
}
