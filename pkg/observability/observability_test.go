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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/state"
)

func TestConfig_DefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Endpoint)
	assert.True(t, cfg.Tracing.IsInsecure())
	require.NoError(t, cfg.Validate())

	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "zipkin"
	assert.Error(t, cfg.Validate())

	cfg.Tracing.Exporter = "memory"
	cfg.Tracing.SamplingRate = 2
	assert.Error(t, cfg.Validate())
}

func TestPrometheusMetrics_ZeroValueIsSafe(t *testing.T) {
	ctx := context.Background()
	metrics := &PrometheusMetrics{}

	metrics.RecordRun(ctx, "main", 100*time.Millisecond, 3, 150, nil)
	metrics.RecordLLMCall(ctx, "gemini-2.0-flash", 500*time.Millisecond, 100, 50, nil)
	metrics.RecordToolExecution(ctx, "write_file", 10*time.Millisecond, nil)
	metrics.RecordDelegation(ctx, "research-agent", 2, nil)
	metrics.RecordHTTPRequest(ctx, "GET", "/runs", 200, time.Millisecond)

	var nilMetrics *PrometheusMetrics
	nilMetrics.RecordRun(ctx, "main", 0, 0, 0, nil)
}

func TestInitMetrics_ServesPrometheus(t *testing.T) {
	ctx := context.Background()
	metrics, handler, mp, err := InitMetrics(ctx, MetricsConfig{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, handler)
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	metrics.RecordToolExecution(ctx, "write_file", 10*time.Millisecond, nil)
	metrics.RecordToolExecution(ctx, "read_file", 10*time.Millisecond, &state.NotFoundError{Path: "x"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_tool_calls")
	assert.Contains(t, string(body), "test_tool_errors")
	assert.Contains(t, string(body), `error_type="not_found"`)
}

func TestInitMetrics_Disabled(t *testing.T) {
	metrics, handler, mp, err := InitMetrics(context.Background(), MetricsConfig{})
	require.NoError(t, err)
	assert.NotNil(t, metrics)
	assert.Nil(t, handler)
	assert.Nil(t, mp)
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&state.ValidationError{Field: "x"}, "validation"},
		{&state.NotFoundError{Path: "x"}, "not_found"},
		{&state.AmbiguousMatchError{Path: "x", Count: 2}, "ambiguous_match"},
		{&state.NoMatchError{Path: "x"}, "no_match"},
		{&state.ToolNotPermittedError{Tool: "x"}, "tool_not_permitted"},
		{&state.BudgetExceededError{Kind: state.BudgetSteps}, "budget_exceeded"},
		{context.Canceled, "canceled"},
		{io.EOF, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.err))
		})
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.StartRun(context.Background(), "main", "run-1")
	assert.NotNil(t, ctx)
	RecordError(span, io.EOF)
	span.End()
}

func TestMemoryExporter_SpansForRun(t *testing.T) {
	ctx := context.Background()
	tp, debug, err := InitTracerProvider(ctx, TracingConfig{Enabled: true, Exporter: "memory"})
	require.NoError(t, err)
	require.NotNil(t, debug)

	tracer := NewTracer(tp)

	runCtx, runSpan := tracer.StartRun(ctx, "main", "run-1")
	_, llmSpan := tracer.StartLLMCall(runCtx, "scripted", 1)
	AddLLMUsage(llmSpan, 10, 5)
	llmSpan.End()
	_, toolSpan := tracer.StartToolExecution(runCtx, "read_file", "call-1")
	RecordError(toolSpan, &state.NotFoundError{Path: "x"})
	toolSpan.End()
	runSpan.End()

	_, other := tracer.StartRun(ctx, "main", "run-2")
	other.End()

	spans := debug.SpansForRun("run-1")
	require.Len(t, spans, 3)
	assert.Equal(t, SpanLLMCall, spans[0].Name)
	assert.Equal(t, "10", spans[0].Attributes[AttrLLMTokensInput])
	assert.Equal(t, "Error", spans[1].Status)
	assert.Equal(t, "not_found", spans[1].Attributes[AttrErrorType])
	assert.Equal(t, SpanAgentRun, spans[2].Name)

	assert.Len(t, debug.GetSpansByName(SpanAgentRun), 2)

	debug.WithMaxSize(1)
	_, s := tracer.StartRun(ctx, "main", "run-3")
	s.End()
	assert.Equal(t, 1, debug.Count())
}

func TestHTTPMiddleware(t *testing.T) {
	ctx := context.Background()
	metrics, handler, mp, err := InitMetrics(ctx, MetricsConfig{Enabled: true, Namespace: "mw"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(nil, metrics))
	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	out := httptest.NewRecorder()
	handler.ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, out.Body.String(), `http_path="/runs/{id}"`)
}

func TestGlobalMetrics(t *testing.T) {
	assert.NotNil(t, GetGlobalMetrics())

	SetGlobalMetrics(&PrometheusMetrics{})
	_, ok := GetGlobalMetrics().(*PrometheusMetrics)
	assert.True(t, ok)

	SetGlobalMetrics(nil)
	_, ok = GetGlobalMetrics().(NoopMetrics)
	assert.True(t, ok)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{
		Tracing: TracingConfig{Enabled: true, Exporter: "memory"},
		Metrics: MetricsConfig{Enabled: true, Namespace: "mgr"},
	})
	require.NoError(t, m.Initialize(ctx))
	assert.NotNil(t, m.MetricsHandler())
	assert.NotNil(t, m.DebugExporter())
	assert.Equal(t, "/metrics", m.MetricsPath())
	require.NoError(t, m.Shutdown(ctx))

	noop := NoopManager()
	assert.Nil(t, noop.MetricsHandler())
	_, span := noop.Tracer().StartRun(ctx, "a", "b")
	span.End()
}
