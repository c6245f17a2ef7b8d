package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphummel/service_report/internal/warranty"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_report_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_report_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_report_http_requests_in_flight",
		Help: "Current number of HTTP requests being processed.",
	})

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_report_notifications_total",
			Help: "Warranty reminder sends by outcome (sent, already_sent, cancelled, error).",
		},
		[]string{"outcome"},
	)

	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_report_exports_total",
			Help: "JPEG report exports by outcome (ok, image_unavailable, error).",
		},
		[]string{"outcome"},
	)
)

// WarrantySource is the subset of warranty.Monitor needed to collect
// warranty metrics.
type WarrantySource interface {
	Snapshots() map[string]warranty.Snapshot
}

// DispatchCounter is the subset of db.DB needed to report recorded dispatches.
type DispatchCounter interface {
	CountDispatches() (int, error)
}

// warrantyCollector reads the monitor on each scrape so the gauges always
// reflect the current memoized evaluation.
type warrantyCollector struct {
	source       WarrantySource
	daysDesc     *prometheus.Desc
	progressDesc *prometheus.Desc
	statusDesc   *prometheus.Desc
}

func newWarrantyCollector(src WarrantySource) *warrantyCollector {
	return &warrantyCollector{
		source: src,
		daysDesc: prometheus.NewDesc(
			"service_report_warranty_days_remaining",
			"Whole days until the warranty expires; zero or negative once expired.",
			[]string{"service_id"},
			nil,
		),
		progressDesc: prometheus.NewDesc(
			"service_report_warranty_progress_percent",
			"Elapsed share of the warranty period, 0 to 100.",
			[]string{"service_id"},
			nil,
		),
		statusDesc: prometheus.NewDesc(
			"service_report_warranty_status",
			"1 for the current warranty status of each service.",
			[]string{"service_id", "status"},
			nil,
		),
	}
}

func (c *warrantyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.daysDesc
	ch <- c.progressDesc
	ch <- c.statusDesc
}

func (c *warrantyCollector) Collect(ch chan<- prometheus.Metric) {
	for id, s := range c.source.Snapshots() {
		ch <- prometheus.MustNewConstMetric(c.daysDesc, prometheus.GaugeValue, float64(s.DaysRemaining), id)
		ch <- prometheus.MustNewConstMetric(c.progressDesc, prometheus.GaugeValue, s.ProgressPercent, id)
		ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue, 1, id, string(s.Status))
	}
}

// dispatchCollector queries the dispatch log on each scrape.
type dispatchCollector struct {
	store DispatchCounter
	desc  *prometheus.Desc
}

func (c *dispatchCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *dispatchCollector) Collect(ch chan<- prometheus.Metric) {
	n, err := c.store.CountDispatches()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n))
}

func newDispatchCollector(store DispatchCounter) *dispatchCollector {
	return &dispatchCollector{
		store: store,
		desc: prometheus.NewDesc(
			"service_report_dispatches_recorded",
			"Number of reminder dispatches recorded since startup.",
			nil,
			nil,
		),
	}
}

// Register registers all metrics with the default Prometheus registry.
// Call once at startup after the monitor and database are initialised.
func Register(src WarrantySource, store DispatchCounter) {
	prometheus.MustRegister(
		// Standard Go runtime and process metrics
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		// HTTP service metrics
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,

		// Application metrics
		notificationsTotal,
		exportsTotal,
		newWarrantyCollector(src),
		newDispatchCollector(store),
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveNotification counts one reminder send with the given outcome.
func ObserveNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveExport counts one export attempt with the given outcome.
func ObserveExport(outcome string) {
	exportsTotal.WithLabelValues(outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an http.Handler to record HTTP metrics.
// pattern should be the route pattern string (e.g. "/api/v1/reports/{id}")
// so the path label has bounded cardinality.
func Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			httpRequestsInFlight.Dec()
			status := strconv.Itoa(rw.status)
			httpRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(rw, r)
	})
}
