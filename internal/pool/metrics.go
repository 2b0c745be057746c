package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSlots = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "banana",
		Subsystem: "pool",
		Name:      "slots",
		Help:      "Session slots by lifecycle state.",
	}, []string{"state"})

	metricSlotsBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "banana",
		Subsystem: "pool",
		Name:      "slots_busy",
		Help:      "Active session slots currently held by a task.",
	})

	metricAcquire = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banana",
		Subsystem: "pool",
		Name:      "acquire_total",
		Help:      "Session acquisitions by outcome.",
	}, []string{"outcome"})

	metricAcquireWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "banana",
		Subsystem: "pool",
		Name:      "acquire_wait_seconds",
		Help:      "Time spent waiting for a free session.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5min
	})

	metricProvision = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banana",
		Subsystem: "pool",
		Name:      "provision_total",
		Help:      "Session provisioning attempts by outcome.",
	}, []string{"outcome"})

	metricTeardown = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banana",
		Subsystem: "pool",
		Name:      "teardown_total",
		Help:      "Session teardowns by reason.",
	}, []string{"reason"})
)

const (
	reasonClose      = "close"
	reasonIdle       = "idle"
	reasonLowBalance = "low_balance"
	reasonDead       = "dead"
	reasonAbandoned  = "abandoned"
)
