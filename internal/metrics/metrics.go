// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opentalk_signaling"

var (
	RunnersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runners_active",
		Help:      "Number of live signaling runners.",
	})

	RunnerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runner_exits_total",
		Help:      "Runner terminations by close reason.",
	}, []string{"reason"})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_frames_received_total",
		Help:      "Inbound websocket frames by module namespace.",
	}, []string{"namespace"})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_frames_dropped_total",
		Help:      "Outbound frames dropped because the client was too slow.",
	})

	ExchangePublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exchange_published_total",
		Help:      "Messages published to the exchange.",
	})

	ExchangeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exchange_dropped_total",
		Help:      "Exchange deliveries dropped on a full subscriber queue.",
	})

	LockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lock_wait_seconds",
		Help:      "Time spent acquiring storage locks.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"lock"})

	TicketsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_issued_total",
		Help:      "Tickets issued by participant kind.",
	}, []string{"kind"})

	ReportJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_jobs_total",
		Help:      "Report generation jobs by outcome.",
	}, []string{"outcome"})
)
