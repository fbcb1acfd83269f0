package llm

import (
	"log"
	"strconv"

	"tripplanner/internal/metrics"
)

// CallEvent describes one Generate call.
type CallEvent struct {
	Task      Task
	Model     string
	LatencyMs int64
	Success   bool
	ErrorCode string
}

type Observer interface {
	OnCall(CallEvent)
}

type NoopObserver struct{}

func (NoopObserver) OnCall(CallEvent) {}

// LogObserver logs every call with the standard logger.
type LogObserver struct{}

func (LogObserver) OnCall(e CallEvent) {
	status := "ok"
	if !e.Success {
		status = "err:" + e.ErrorCode
	}
	log.Printf("[llm] task=%s model=%s latency_ms=%s status=%s", e.Task, e.Model, strconv.FormatInt(e.LatencyMs, 10), status)
}

// MetricsObserver feeds provider call counters and latencies.
type MetricsObserver struct{}

func (MetricsObserver) OnCall(e CallEvent) {
	status := "ok"
	if !e.Success {
		status = e.ErrorCode
	}
	provider := "llm_" + string(e.Task)
	metrics.ProviderCalls.WithLabelValues(provider, status).Inc()
	metrics.ProviderLatency.WithLabelValues(provider).Observe(float64(e.LatencyMs))
}

// Observers fans an event out to several observers.
type Observers []Observer

func (os Observers) OnCall(e CallEvent) {
	for _, o := range os {
		o.OnCall(e)
	}
}
