// Copyright 2025 Renegade Studio
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus-backed counter/histogram set fed by the
// event bus (spec.md §4.8). One Metrics is created per process and
// registered against a single registry so /metrics scrapes stay cheap.
type Metrics struct {
	registry *prometheus.Registry

	toolExecutionCount    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolExecutionErrors   *prometheus.CounterVec

	llmResponseCount      *prometheus.CounterVec
	llmResponseErrorCount *prometheus.CounterVec
	llmResponseDuration   *prometheus.HistogramVec

	memorySearchDuration *prometheus.HistogramVec
	memoryWriteCount     *prometheus.CounterVec
}

// NewMetrics builds and registers the collector set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolExecutionCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "tool",
			Name:      "execution_total",
			Help:      "Total tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matrix",
			Subsystem: "tool",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		toolExecutionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "tool",
			Name:      "execution_errors_total",
			Help:      "Tool execution errors by tool name.",
		}, []string{"tool"}),
		llmResponseCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "llm",
			Name:      "response_total",
			Help:      "Total LLM responses by provider.",
		}, []string{"provider", "model"}),
		llmResponseErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "llm",
			Name:      "response_error_total",
			Help:      "LLM response errors by provider.",
		}, []string{"provider", "model"}),
		llmResponseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matrix",
			Subsystem: "llm",
			Name:      "response_duration_seconds",
			Help:      "LLM round-trip latency, including tool-calling iterations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider", "model"}),
		memorySearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matrix",
			Subsystem: "memory",
			Name:      "search_duration_seconds",
			Help:      "Vector-store search latency during memory decisions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store"}),
		memoryWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix",
			Subsystem: "memory",
			Name:      "write_total",
			Help:      "Knowledge memory writes by decision outcome (add/update/delete/none).",
		}, []string{"decision"}),
	}

	m.registry.MustRegister(
		m.toolExecutionCount,
		m.toolExecutionDuration,
		m.toolExecutionErrors,
		m.llmResponseCount,
		m.llmResponseErrorCount,
		m.llmResponseDuration,
		m.memorySearchDuration,
		m.memoryWriteCount,
	)
	return m
}

// Registry exposes the underlying prometheus.Registry for HTTP
// exposition (e.g. promhttp.HandlerFor).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordToolExecution(tool string, ok bool, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "error"
		m.toolExecutionErrors.WithLabelValues(tool).Inc()
	}
	m.toolExecutionCount.WithLabelValues(tool, outcome).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) RecordLLMResponse(provider, model string, err error, d time.Duration) {
	m.llmResponseCount.WithLabelValues(provider, model).Inc()
	if err != nil {
		m.llmResponseErrorCount.WithLabelValues(provider, model).Inc()
	}
	m.llmResponseDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

func (m *Metrics) RecordMemorySearch(store string, d time.Duration) {
	m.memorySearchDuration.WithLabelValues(store).Observe(d.Seconds())
}

func (m *Metrics) RecordMemoryWrite(decision string) {
	m.memoryWriteCount.WithLabelValues(decision).Inc()
}

// Subscribe wires Metrics up to a Bus so tool-execution-error and
// memory-operation-failure events update counters without every
// producer needing a direct Metrics reference.
func (m *Metrics) Subscribe(bus *Bus) {
	bus.Subscribe(EventToolExecutionError, func(env Envelope) {
		if tool, ok := env.Data.(string); ok {
			m.toolExecutionErrors.WithLabelValues(tool).Inc()
		}
	})
	bus.Subscribe(EventMemoryOperationFail, func(env Envelope) {
		m.memoryWriteCount.WithLabelValues("failed").Inc()
	})
}
