package monitoring

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the HTTP metrics of a service and prefixes every
// metric it creates with the service name.
type MetricsCollector struct {
	prefix     string
	registerer prometheus.Registerer
	handler    http.Handler

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	inFlight            prometheus.Gauge
}

// NewMetricsCollector registers on the default Prometheus registry.
func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	return newMetricsCollector(serviceName, version, commit, prometheus.DefaultRegisterer, promhttp.Handler())
}

// NewMetricsCollectorWithRegistry registers on reg so tests stay off the global registry.
func NewMetricsCollectorWithRegistry(serviceName, version, commit string, reg *prometheus.Registry) *MetricsCollector {
	return newMetricsCollector(serviceName, version, commit, reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func newMetricsCollector(serviceName, version, commit string, reg prometheus.Registerer, handler http.Handler) *MetricsCollector {
	mc := &MetricsCollector{
		prefix:     strings.ReplaceAll(serviceName, "-", "_"),
		registerer: reg,
		handler:    handler,
	}
	mc.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: mc.name("http_requests_total"),
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "endpoint", "status"})
	mc.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    mc.name("http_request_duration_seconds"),
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
	mc.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: mc.name("http_requests_in_flight"),
		Help: "HTTP requests currently being served",
	})
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: mc.name("build_info"),
		Help: "Build version and commit",
	}, []string{"version", "commit"})

	reg.MustRegister(mc.httpRequestsTotal, mc.httpRequestDuration, mc.inFlight, info)
	info.WithLabelValues(version, commit).Set(1)
	return mc
}

func (mc *MetricsCollector) name(metric string) string {
	return mc.prefix + "_" + metric
}

// MetricsMiddleware records request counts and latency keyed by the matched route.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		mc.inFlight.Inc()
		defer mc.inFlight.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := c.Request.Method
		mc.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		mc.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	return gin.WrapH(mc.handler)
}

func (mc *MetricsCollector) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: mc.name(name), Help: help}, labels)
	mc.registerer.MustRegister(counter)
	return counter
}

func (mc *MetricsCollector) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: mc.name(name), Help: help}, labels)
	mc.registerer.MustRegister(gauge)
	return gauge
}

// NewHistogram uses prometheus.DefBuckets when buckets is nil.
func (mc *MetricsCollector) NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: mc.name(name), Help: help, Buckets: buckets}, labels)
	mc.registerer.MustRegister(histogram)
	return histogram
}
