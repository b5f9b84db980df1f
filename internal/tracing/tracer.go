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

// Package tracing sets up a process-wide OpenTelemetry tracer for the
// LLM call loop and tool execution. There is no OTLP exporter wired in
// (the corpus's exporter packages aren't part of this module's
// dependency set); spans are created and sampled but stay in-process,
// which is enough to exercise the SDK's span/attribute surface and
// gives any future exporter a ready-made TracerProvider to attach to.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls tracer construction. Disabled is the common case for
// tests and the one-shot CLI; a long-running server turns it on.
type Config struct {
	ServiceName    string
	Enabled        bool
	SampleFraction float64
}

var (
	initOnce sync.Once
	tracer   trace.Tracer
)

// Init builds the global TracerProvider once per process. Later calls
// are no-ops, so the first caller's Config wins; this differs from
// otel.SetTracerProvider, where the last call wins.
func Init(cfg Config) {
	initOnce.Do(func() {
		if !cfg.Enabled {
			tracer = trace.NewNoopTracerProvider().Tracer("matrix")
			return
		}

		sampler := sdktrace.TraceIDRatioBased(cfg.SampleFraction)
		if cfg.SampleFraction <= 0 {
			sampler = sdktrace.AlwaysSample()
		}

		res := resource.NewSchemaless(attribute.String("service.name", serviceName(cfg)))
		provider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sampler),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
		tracer = provider.Tracer("matrix")
	})
}

func serviceName(cfg Config) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return "matrix"
}

// Tracer returns the process tracer, defaulting to a no-op tracer if
// Init was never called (unit tests that never enable tracing).
func Tracer() trace.Tracer {
	if tracer == nil {
		return trace.NewNoopTracerProvider().Tracer("matrix")
	}
	return tracer
}

// StartSpan opens a span under the given name with the supplied
// attributes, grounded on the span-per-call-site pattern the teacher
// uses around its own provider calls.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
