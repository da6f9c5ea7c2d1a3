package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/verichain/internal/certledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	vcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verichain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	vcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verichain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	vcCertificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verichain_certifications_total",
		Help: "Total certifications issued since start.",
	})

	vcLedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verichain_ledger_size",
		Help: "Certifications currently retained in the ledger.",
	})

	vcClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verichain_classifications_total",
		Help: "Total image classifications by result.",
	}, []string{"result"})

	vcClassifierProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verichain_classifier_probes_total",
		Help: "Total classifier readiness probes by result.",
	}, []string{"result"})

	vcClassifierLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verichain_classifier_loaded",
		Help: "1 when the classifier model is loaded, 0 otherwise.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		vcRequestsTotal.WithLabelValues(method, path, status).Inc()
		vcRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordCertification records an issued certification and the ledger size after it.
func RecordCertification(_ certledger.Record, ledgerSize int) {
	vcCertificationsTotal.Inc()
	vcLedgerSize.Set(float64(ledgerSize))
}

// RecordClassification records a classification attempt.
func RecordClassification(success bool) {
	vcClassificationsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordClassifierProbe records a classifier readiness probe.
func RecordClassifierProbe(success bool) {
	vcClassifierProbesTotal.WithLabelValues(resultLabel(success)).Inc()
}

// SetClassifierLoaded sets the classifier loaded gauge.
func SetClassifierLoaded(loaded bool) {
	if loaded {
		vcClassifierLoaded.Set(1)
	} else {
		vcClassifierLoaded.Set(0)
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
