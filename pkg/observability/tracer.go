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
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/teddynote-lab/deep-agents-from-scratch"

// InitTracerProvider builds the tracer provider for cfg and installs it
// globally. The memory exporter is returned so callers can inspect spans;
// it is nil for the other exporters.
func InitTracerProvider(ctx context.Context, cfg TracingConfig) (trace.TracerProvider, *DebugExporter, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), nil, nil
	}
	cfg.SetDefaults()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithResource(res),
	}

	var debug *DebugExporter
	switch cfg.Exporter {
	case "memory":
		debug = NewDebugExporter()
		opts = append(opts, sdktrace.WithSyncer(debug))

	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))

	default:
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.IsInsecure() {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, debug, nil
}

// Tracer starts the spans of a run. A nil Tracer starts no-op spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from a provider.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// Start starts a span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartRun starts the span covering a whole agent run.
func (t *Tracer) StartRun(ctx context.Context, agent, runID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanAgentRun, trace.WithAttributes(
		attribute.String(AttrAgentName, agent),
		attribute.String(AttrRunID, runID),
	))
}

// StartLLMCall starts the span of one model call.
func (t *Tracer) StartLLMCall(ctx context.Context, model string, step int) (context.Context, trace.Span) {
	return t.Start(ctx, SpanLLMCall,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrLLMModel, model),
			attribute.Int(AttrStep, step),
		),
	)
}

// StartToolExecution starts the span of one tool call.
func (t *Tracer) StartToolExecution(ctx context.Context, tool, callID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanToolExecution, trace.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.String(AttrToolCallID, callID),
	))
}

// StartDelegation starts the span of a sub-agent delegation.
func (t *Tracer) StartDelegation(ctx context.Context, subagent string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanDelegation, trace.WithAttributes(
		attribute.String(AttrSubAgent, subagent),
	))
}

// AddLLMUsage records token usage on span.
func AddLLMUsage(span trace.Span, input, output int) {
	span.SetAttributes(
		attribute.Int(AttrLLMTokensInput, input),
		attribute.Int(AttrLLMTokensOutput, output),
	)
}

// RecordError marks span as failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorType, ErrorType(err)))
}
