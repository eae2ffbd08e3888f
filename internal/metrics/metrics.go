// Package metrics holds the Prometheus instruments shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts collector HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datenstrom_collector_requests_total",
		Help: "Collector HTTP requests by route and status code.",
	}, []string{"route", "status"})

	// PayloadsWritten counts raw payload frames written to the raw lane.
	PayloadsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datenstrom_collector_payloads_written_total",
		Help: "Raw payload frames written to the raw sink.",
	})

	// PayloadsSplit counts ingests that needed more than one frame.
	PayloadsSplit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datenstrom_collector_payloads_split_total",
		Help: "Oversized payloads split into multiple frames.",
	})

	// BatchesProcessed counts worker batches by lane.
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datenstrom_worker_batches_total",
		Help: "Source batches processed by the worker loop.",
	}, []string{"lane"})

	// EventsEmitted counts atomic events written to the events lane.
	EventsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datenstrom_worker_events_emitted_total",
		Help: "Atomic events written to the events sink.",
	})

	// ErrorPayloads counts records routed to the errors lane.
	ErrorPayloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datenstrom_worker_error_payloads_total",
		Help: "Payloads routed to the errors sink, by failure kind.",
	}, []string{"kind"})

	// BatchDuration observes worker batch processing time.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datenstrom_worker_batch_duration_seconds",
		Help:    "Time spent processing one source batch.",
		Buckets: prometheus.DefBuckets,
	})

	// SinkErrors counts failed sink writes by transport.
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datenstrom_sink_errors_total",
		Help: "Failed sink writes by transport.",
	}, []string{"transport"})
)
