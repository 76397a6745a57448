// Copyright 2025 Kadir Pekel
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

package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records run, model, tool and delegation measurements.
type Metrics interface {
	RecordRun(ctx context.Context, agent string, duration time.Duration, steps, tokens int, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordDelegation(ctx context.Context, subagent string, filesChanged int, err error)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// PrometheusMetrics records measurements through OpenTelemetry instruments
// exported to Prometheus. A zero value records nothing.
type PrometheusMetrics struct {
	runDuration    metric.Float64Histogram
	runsTotal      metric.Int64Counter
	runErrorsTotal metric.Int64Counter
	runSteps       metric.Int64Histogram
	runTokensTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	delegationsTotal     metric.Int64Counter
	delegationErrors     metric.Int64Counter
	delegationFilesTotal metric.Int64Counter

	httpDuration      metric.Float64Histogram
	httpRequestsTotal metric.Int64Counter
}

func (m *PrometheusMetrics) RecordRun(ctx context.Context, agent string, duration time.Duration, steps, tokens int, err error) {
	if m == nil || m.runDuration == nil || m.runsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(AttrAgentName, agent))
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
	m.runsTotal.Add(ctx, 1, attrs)
	m.runSteps.Record(ctx, int64(steps), attrs)

	if tokens > 0 {
		m.runTokensTotal.Add(ctx, int64(tokens), attrs)
	}
	if err != nil {
		m.runErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrAgentName, agent),
			attribute.String(AttrErrorType, ErrorType(err)),
		))
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(AttrLLMModel, model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)

	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(AttrToolName, tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCallsTotal.Add(ctx, 1, attrs)

	if err != nil {
		m.toolErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrToolName, tool),
			attribute.String(AttrErrorType, ErrorType(err)),
		))
	}
}

func (m *PrometheusMetrics) RecordDelegation(ctx context.Context, subagent string, filesChanged int, err error) {
	if m == nil || m.delegationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(AttrSubAgent, subagent))
	m.delegationsTotal.Add(ctx, 1, attrs)
	if filesChanged > 0 {
		m.delegationFilesTotal.Add(ctx, int64(filesChanged), attrs)
	}
	if err != nil {
		m.delegationErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPPath, route),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
}

// SetGlobalMetrics replaces the process-wide recorder. Nil restores the no-op.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if m == nil {
		m = NoopMetrics{}
	}
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

var _ Metrics = (*PrometheusMetrics)(nil)
