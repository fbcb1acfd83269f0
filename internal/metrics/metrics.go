package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the planner
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // OptimizerRuns counts route optimisations by mode and outcome
    OptimizerRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Route optimisations by transport mode and outcome."},
        []string{"mode", "outcome"},
    )
    OptimizerPasses = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "optimizer_passes", Help: "2-opt passes per optimisation.", Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 500, 1000}},
    )
    OptimizerEfficiency = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "optimizer_efficiency_score", Help: "Efficiency score of optimised routes.", Buckets: []float64{50, 75, 90, 95, 100}},
    )

    // SuggestionLookups counts suggestion cache lookups by result (hit, miss, fallback)
    SuggestionLookups = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "suggestion_lookups_total", Help: "Suggestion lookups by result."},
        []string{"result"},
    )
    // ProviderCalls counts calls to external providers by provider and status
    ProviderCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "provider_calls_total", Help: "External provider calls by provider and status."},
        []string{"provider", "status"},
    )
    ProviderLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "provider_latency_ms", Help: "External provider latency in ms.", Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}},
        []string{"provider"},
    )

    // Transitions counts trip/day lifecycle events by outcome (ok, rejected)
    Transitions = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "lifecycle_transitions_total", Help: "Trip and day lifecycle transitions."},
        []string{"entity", "event", "outcome"},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the planner registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests, HTTPDuration)
        Registry.MustRegister(OptimizerRuns, OptimizerPasses, OptimizerEfficiency)
        Registry.MustRegister(SuggestionLookups, ProviderCalls, ProviderLatency)
        Registry.MustRegister(Transitions, WebhookDeliveries)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
