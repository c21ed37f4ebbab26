package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa las métricas Prometheus de la aplicación.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	productsLastRun prometheus.Gauge
	droppedRecords  *prometheus.CounterVec
}

// NewMetrics inicializa el registry y las métricas base.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmaguirre_http_requests_total",
		Help: "Cantidad de solicitudes HTTP por ruta y código.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "farmaguirre_http_request_duration_seconds",
		Help:    "Duración de solicitudes HTTP por ruta.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmaguirre_kpi_runs_total",
		Help: "Corridas de cálculo KPI por resultado.",
	}, []string{"outcome"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "farmaguirre_kpi_run_duration_seconds",
		Help:    "Duración de cada corrida de cálculo KPI.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	products := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "farmaguirre_kpi_products_last_run",
		Help: "Productos calculados en la última corrida exitosa.",
	})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmaguirre_ingest_dropped_records_total",
		Help: "Registros descartados durante la ingesta, por motivo.",
	}, []string{"reason"})
	registry.MustRegister(requests, duration, runs, runDuration, products, dropped)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		runsTotal:       runs,
		runDuration:     runDuration,
		productsLastRun: products,
		droppedRecords:  dropped,
	}
}

// Handler devuelve el http.Handler para el endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware registra métricas para cada solicitud HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveRun registra el resultado y la duración de una corrida KPI.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration, productCount int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	if outcome == "succeeded" {
		m.productsLastRun.Set(float64(productCount))
	}
}

// CountDropped acumula registros descartados en la ingesta por motivo.
func (m *Metrics) CountDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedRecords.WithLabelValues(reason).Add(float64(n))
}

// Registerer expone el registry para métricas adicionales.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
