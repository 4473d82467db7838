// Package metrics exposes the prometheus instruments the external scheduler
// and on-call use to watch the dunning sweep.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_runs_total",
		Help: "Completed dunning sweep passes",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_sweep_duration_seconds",
		Help:    "Latency distribution of full sweep passes",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	InvoicesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_invoices_processed_total",
		Help: "Overdue invoices inspected across all sweeps",
	})

	InvoicesEscalated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_invoices_escalated_total",
		Help: "Reminder escalations performed across all sweeps",
	})

	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_failures_total",
		Help: "Per-invoice failures that were logged and skipped",
	})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_notify_failures_total",
		Help: "Reminder notifications that could not be dispatched",
	})
)
