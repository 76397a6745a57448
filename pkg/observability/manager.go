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

// Package observability wires OpenTelemetry tracing and Prometheus metrics
// into runs, tool calls, delegations and the HTTP API.
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Manager owns the tracer and meter providers of the process.
type Manager struct {
	config Config
	mu     sync.RWMutex

	tracerProvider trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         *Tracer
	metrics        Metrics
	metricsHandler http.Handler
	debug          *DebugExporter
}

// NewManager creates a Manager. Call Initialize before use.
func NewManager(cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{
		config:  cfg,
		tracer:  NewTracer(nil),
		metrics: NoopMetrics{},
	}
}

// Initialize creates the providers and installs the metrics recorder globally.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.config.Validate(); err != nil {
		return err
	}

	tp, debug, err := InitTracerProvider(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp
	m.tracer = NewTracer(tp)
	m.debug = debug

	metrics, handler, mp, err := InitMetrics(ctx, m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics
	m.metricsHandler = handler
	m.meterProvider = mp

	SetGlobalMetrics(m.metrics)
	return nil
}

// Tracer returns the run tracer.
func (m *Manager) Tracer() *Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracer
}

// Metrics returns the metrics recorder.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are
// disabled.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsHandler
}

// MetricsPath is the path the metrics handler should be mounted on.
func (m *Manager) MetricsPath() string {
	return m.config.Metrics.Endpoint
}

// DebugExporter returns the in-memory span exporter, or nil.
func (m *Manager) DebugExporter() *DebugExporter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.debug
}

// Shutdown flushes and stops the providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		errs = append(errs, spt.Shutdown(ctx))
	}
	if m.meterProvider != nil {
		errs = append(errs, m.meterProvider.Shutdown(ctx))
	}
	SetGlobalMetrics(nil)
	return errors.Join(errs...)
}
