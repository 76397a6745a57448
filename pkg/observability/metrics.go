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
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

// InitMetrics creates the instruments on a dedicated Prometheus registry and
// returns the recorder together with the handler serving that registry.
// When metrics are disabled the recorder is a zero PrometheusMetrics and the
// handler is nil.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, http.Handler, *sdkmetric.MeterProvider, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil, nil, nil
	}
	cfg.SetDefaults()

	registry := prometheus.NewRegistry()
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))
	meter := meterProvider.Meter(cfg.Namespace)
	name := func(s string) string { return cfg.Namespace + "_" + s }

	b := &instrumentBuilder{meter: meter}
	m := &PrometheusMetrics{
		runDuration:    b.histogram(name("run_duration_seconds"), "Agent run duration in seconds"),
		runsTotal:      b.counter(name("runs"), "Total agent runs"),
		runErrorsTotal: b.counter(name("run_errors"), "Total failed agent runs"),
		runSteps:       b.intHistogram(name("run_steps"), "Model steps per run"),
		runTokensTotal: b.counter(name("run_tokens"), "Total tokens used by runs"),

		llmDuration:     b.histogram(name("llm_request_duration_seconds"), "LLM request duration in seconds"),
		llmInputTokens:  b.counter(name("llm_tokens_input"), "Total input tokens sent to the model"),
		llmOutputTokens: b.counter(name("llm_tokens_output"), "Total output tokens from the model"),
		llmErrorsTotal:  b.counter(name("llm_errors"), "Total model errors"),

		toolDuration:    b.histogram(name("tool_execution_duration_seconds"), "Tool execution duration in seconds"),
		toolCallsTotal:  b.counter(name("tool_calls"), "Total tool calls"),
		toolErrorsTotal: b.counter(name("tool_errors"), "Total failed tool calls"),

		delegationsTotal:     b.counter(name("delegations"), "Total sub-agent delegations"),
		delegationErrors:     b.counter(name("delegation_errors"), "Total failed delegations"),
		delegationFilesTotal: b.counter(name("delegation_files_changed"), "Total files changed by sub-agents"),

		httpDuration:      b.histogram(name("http_request_duration_seconds"), "HTTP request duration in seconds"),
		httpRequestsTotal: b.counter(name("http_requests"), "Total HTTP requests"),
	}
	if b.err != nil {
		_ = meterProvider.Shutdown(ctx)
		return nil, nil, nil, b.err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, meterProvider, nil
}

// instrumentBuilder keeps the first instrument creation error.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) intHistogram(name, desc string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return h
}

// ErrorType classifies err for metric and span attributes.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, state.ErrValidation):
		return "validation"
	case errors.Is(err, state.ErrNotFound):
		return "not_found"
	case errors.Is(err, state.ErrAmbiguousMatch):
		return "ambiguous_match"
	case errors.Is(err, state.ErrNoMatch):
		return "no_match"
	case errors.Is(err, state.ErrToolNotPermitted):
		return "tool_not_permitted"
	case errors.Is(err, state.ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
