// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("treasury.store")

// Store outcomes.
const (
	outcomeIndexed  = "indexed"
	outcomeSidecar  = "sidecar"
	outcomeImported = "imported"
	outcomeFailed   = "failed"
)

var (
	storesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "stores_total",
		Help:      "Store requests by outcome.",
	}, []string{"outcome"})

	flightsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "flights_coalesced_total",
		Help:      "Store requests that joined an orchestration already in flight.",
	})

	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "imports_total",
		Help:      "Importer invocations by result.",
	}, []string{"result"})

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "treasury",
		Name:      "import_duration_seconds",
		Help:      "Wall time of single importer invocations.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	flightsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "treasury",
		Name:      "flights_active",
		Help:      "Orchestrations currently running.",
	})
)
