/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics provides the OpenTelemetry-based metrics exporter for
// the mounter runtime. It bridges OTEL instruments onto the
// controller-runtime Prometheus registry so they show up on the same
// /metrics endpoint as everything else in the process.
package metrics

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var meter metric.Meter

// Exporter implements mounter.Metrics over a set of OTEL instruments.
// It is constructed once per process by InitOTLPExporter.
type Exporter struct {
	mu sync.Mutex

	lastChildWatchCount int64
	childWatchCount     metric.Int64UpDownCounter
	syncChildToParent   metric.Int64Counter
	syncParentToChild   metric.Int64Counter
	echoDropped         metric.Int64Counter
	malformedMount      metric.Int64Counter
}

// InitOTLPExporter initializes the OTLP-to-Prometheus bridge and returns
// an Exporter ready to pass to mounter.WithMetrics, plus a shutdown func.
func InitOTLPExporter(ctx context.Context) (*Exporter, func(context.Context) error, error) {
	exp, err := prometheus.New(
		prometheus.WithRegisterer(ctrlmetrics.Registry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(provider)
	meter = provider.Meter("mounter")

	e := &Exporter{}

	e.childWatchCount, err = meter.Int64UpDownCounter("mounter_child_watch_count",
		metric.WithDescription("number of child watches currently active across all mounted parents"))
	if err != nil {
		return nil, nil, err
	}
	e.syncChildToParent, err = meter.Int64Counter("mounter_sync_child_to_parent_total",
		metric.WithDescription("child -> parent mount entry sync attempts, by outcome"))
	if err != nil {
		return nil, nil, err
	}
	e.syncParentToChild, err = meter.Int64Counter("mounter_sync_parent_to_child_total",
		metric.WithDescription("parent -> child intent sync attempts, by outcome"))
	if err != nil {
		return nil, nil, err
	}
	e.echoDropped, err = meter.Int64Counter("mounter_echo_dropped_total",
		metric.WithDescription("watch events recognized as the runtime's own echo and suppressed, by direction"))
	if err != nil {
		return nil, nil, err
	}
	e.malformedMount, err = meter.Int64Counter("mounter_malformed_mount_entries_total",
		metric.WithDescription("spec.mount entries skipped for failing to parse"))
	if err != nil {
		return nil, nil, err
	}

	return e, func(context.Context) error { return nil }, nil
}

// ChildWatchCount reports the current number of live child watches for
// one Mounter. The UpDownCounter only accepts deltas, so the exporter
// tracks the last value it saw per-process.
func (e *Exporter) ChildWatchCount(n int) {
	e.mu.Lock()
	delta := int64(n) - e.lastChildWatchCount
	e.lastChildWatchCount = int64(n)
	e.mu.Unlock()
	if delta != 0 {
		e.childWatchCount.Add(context.Background(), delta)
	}
}

func (e *Exporter) SyncChildToParent(outcome string) {
	e.syncChildToParent.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (e *Exporter) SyncParentToChild(outcome string) {
	e.syncParentToChild.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (e *Exporter) EchoDropped(direction string) {
	e.echoDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("direction", direction)))
}

func (e *Exporter) MalformedMount(n int) {
	if n <= 0 {
		return
	}
	e.malformedMount.Add(context.Background(), int64(n))
}
