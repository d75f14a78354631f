package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service registry. It satisfies license.Observer and
// middleware.HTTPObserver.
type Collector struct {
	registry *prometheus.Registry

	activations     *prometheus.CounterVec
	deactivations   *prometheus.CounterVec
	licensesCreated prometheus.Counter
	auditDropped    prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{registry: reg}

	c.activations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "licensing_activation_attempts_total",
		Help: "Activation attempts by result (created, reused or error code)",
	}, []string{"result"})
	reg.MustRegister(c.activations)

	c.deactivations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "licensing_deactivations_total",
		Help: "Deactivation requests by result (deactivated, noop or error code)",
	}, []string{"result"})
	reg.MustRegister(c.deactivations)

	c.licensesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "licensing_licenses_created_total",
		Help: "Licenses provisioned by brands",
	})
	reg.MustRegister(c.licensesCreated)

	c.auditDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "licensing_audit_dropped_total",
		Help: "Audit entries lost because neither the queue nor the spool accepted them",
	})
	reg.MustRegister(c.auditDropped)

	c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "licensing_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(c.httpDuration)

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return c
}

// RegisterDB exports connection pool stats of db.
func (c *Collector) RegisterDB(db *sql.DB) {
	c.registry.MustRegister(collectors.NewDBStatsCollector(db, "licensing"))
}

func (c *Collector) ObserveActivation(result string) {
	c.activations.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveDeactivation(result string) {
	c.deactivations.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveLicenseCreated() {
	c.licensesCreated.Inc()
}

func (c *Collector) AuditDropped() {
	c.auditDropped.Inc()
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
