// Package metrics provides Prometheus metrics export for the chat engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports engine metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Chat metrics
	chatLatency  *prometheus.HistogramVec
	chatRequests *prometheus.CounterVec
	activeChats  prometheus.Gauge

	// Intent metrics
	intentDecisions *prometheus.CounterVec

	// Tool call metrics
	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec

	// Retrieval metrics
	retrievals    *prometheus.CounterVec
	retrievedDocs *prometheus.HistogramVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Summarizer metrics
	summarizations *prometheus.CounterVec

	// LLM token metrics
	llmTokensUsed *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mallchat",
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "Chat request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"intent", "mode"},
	)

	e.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat requests",
		},
		[]string{"intent", "mode", "status"},
	)

	e.activeChats = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mallchat",
			Subsystem: "chat",
			Name:      "active",
			Help:      "Number of in-flight chat requests",
		},
	)

	e.intentDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "intent",
			Name:      "decisions_total",
			Help:      "Intent classifications by decision method",
		},
		[]string{"intent", "method"},
	)

	e.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool_name", "status"},
	)

	e.toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mallchat",
			Subsystem: "tools",
			Name:      "latency_seconds",
			Help:      "Tool call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"tool_name"},
	)

	e.retrievals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Knowledge retrieval requests",
		},
		[]string{"collection", "status"},
	)

	e.retrievedDocs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mallchat",
			Subsystem: "retrieval",
			Name:      "documents",
			Help:      "Documents returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"collection"},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	e.summarizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "summary",
			Name:      "runs_total",
			Help:      "Summarizer runs by outcome",
		},
		[]string{"outcome"},
	)

	e.llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mallchat",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mallchat",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model", "provider"},
	)

	registry.MustRegister(
		e.chatLatency,
		e.chatRequests,
		e.activeChats,
		e.intentDecisions,
		e.toolCalls,
		e.toolLatency,
		e.retrievals,
		e.retrievedDocs,
		e.cacheHits,
		e.cacheMisses,
		e.summarizations,
		e.llmTokensUsed,
		e.llmLatency,
	)

	return e
}

// RecordChatRequest records a completed chat request.
func (e *PrometheusExporter) RecordChatRequest(intent, mode string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	e.chatRequests.WithLabelValues(intent, mode, status).Inc()
	e.chatLatency.WithLabelValues(intent, mode).Observe(latency.Seconds())
}

// RecordIntentDecision records how an intent was decided
// (attachment, keyword, cache, llm, history_fallback, default).
func (e *PrometheusExporter) RecordIntentDecision(intent, method string) {
	e.intentDecisions.WithLabelValues(intent, method).Inc()
}

// RecordToolCall records a tool call.
func (e *PrometheusExporter) RecordToolCall(toolName string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.toolCalls.WithLabelValues(toolName, status).Inc()
	e.toolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
}

// RecordRetrieval records a knowledge retrieval.
func (e *PrometheusExporter) RecordRetrieval(collection string, docs int, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.retrievals.WithLabelValues(collection, status).Inc()
	e.retrievedDocs.WithLabelValues(collection).Observe(float64(docs))
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordSummarization records a summarizer run (success, fallback, skipped).
func (e *PrometheusExporter) RecordSummarization(outcome string) {
	e.summarizations.WithLabelValues(outcome).Inc()
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	e.llmTokensUsed.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordLLMLatency records LLM request latency.
func (e *PrometheusExporter) RecordLLMLatency(model, provider string, latency time.Duration) {
	e.llmLatency.WithLabelValues(model, provider).Observe(latency.Seconds())
}

// IncActiveChats marks one more in-flight chat request.
func (e *PrometheusExporter) IncActiveChats() {
	e.activeChats.Inc()
}

// DecActiveChats marks one finished chat request.
func (e *PrometheusExporter) DecActiveChats() {
	e.activeChats.Dec()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}
