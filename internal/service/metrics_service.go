package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shuleplus/grading-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the engine. It
// owns its registry so embedding applications can mount the handler wherever
// they expose observability.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	classificationsTotal  *prometheus.CounterVec
	aggregationsTotal     *prometheus.CounterVec
	aggregationDuration   prometheus.Histogram
	divisionsTotal        *prometheus.CounterVec
	validationErrorsTotal prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	classificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_classifications_total",
		Help: "Total marks-to-grade classifications",
	}, []string{"level", "grade"})

	aggregationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_aggregations_total",
		Help: "Total student aggregations computed",
	}, []string{"level"})

	aggregationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grading_aggregation_duration_seconds",
		Help:    "Duration of single-student aggregations in seconds",
		Buckets: prometheus.DefBuckets,
	})

	divisionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_divisions_total",
		Help: "Division classifications by band",
	}, []string{"level", "division"})

	validationErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grading_validation_errors_total",
		Help: "Total validation errors raised to callers",
	})

	registry.MustRegister(classificationsTotal, aggregationsTotal, aggregationDuration, divisionsTotal, validationErrorsTotal)

	return &MetricsService{
		registry:              registry,
		handler:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		classificationsTotal:  classificationsTotal,
		aggregationsTotal:     aggregationsTotal,
		aggregationDuration:   aggregationDuration,
		divisionsTotal:        divisionsTotal,
		validationErrorsTotal: validationErrorsTotal,
	}
}

// Registry exposes the underlying registry for embedding applications.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the scrape endpoint for this registry.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// ObserveClassification records one marks-to-grade conversion.
func (m *MetricsService) ObserveClassification(level models.EducationLevel, grade models.Grade) {
	if m == nil {
		return
	}
	m.classificationsTotal.WithLabelValues(string(level), string(grade)).Inc()
}

// ObserveAggregation records one student aggregation and its duration.
func (m *MetricsService) ObserveAggregation(level models.EducationLevel, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.aggregationsTotal.WithLabelValues(string(level)).Inc()
	m.aggregationDuration.Observe(elapsed.Seconds())
}

// ObserveDivision records one division classification.
func (m *MetricsService) ObserveDivision(level models.EducationLevel, division models.Division) {
	if m == nil {
		return
	}
	m.divisionsTotal.WithLabelValues(string(level), string(division)).Inc()
}

// ObserveValidationError counts an error surfaced to a caller.
func (m *MetricsService) ObserveValidationError() {
	if m == nil {
		return
	}
	m.validationErrorsTotal.Inc()
}
