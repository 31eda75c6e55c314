package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "urbanfix_pipeline_duration_seconds",
			Help:    "End-to-end complaint analysis pipeline duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"status"},
	)

	PipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbanfix_pipeline_steps_total",
			Help: "Pipeline stage outcomes",
		},
		[]string{"step", "status"},
	)

	PipelineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbanfix_pipeline_critical_failures_total",
			Help: "Critical pipeline failures by failing stage",
		},
		[]string{"stage"},
	)

	SeverityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "urbanfix_severity_score",
			Help:    "Distribution of severity scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbanfix_llm_fallbacks_total",
			Help: "Fallback records produced instead of LLM output",
		},
		[]string{"component", "reason"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbanfix_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "urbanfix_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model", "status"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "urbanfix_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	DepartmentSuggestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbanfix_department_suggestions_total",
			Help: "Department suggestions by decision source",
		},
		[]string{"source"},
	)

	WeatherCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urbanfix_weather_cache_hits_total",
			Help: "Weather context cache hits",
		},
	)

	WeatherCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urbanfix_weather_cache_misses_total",
			Help: "Weather context cache misses",
		},
	)

	QueueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urbanfix_queue_messages_total",
			Help: "Complaint queue deliveries by outcome",
		},
		[]string{"result"},
	)
)

// Init registers collectors with the default registry; safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			PipelineDuration,
			PipelineStepsTotal,
			PipelineFailures,
			SeverityScore,
			FallbacksTotal,
			LLMTokensUsed,
			LLMRequestDuration,
			CircuitState,
			DepartmentSuggestions,
			WeatherCacheHits,
			WeatherCacheMisses,
			QueueMessagesTotal,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
