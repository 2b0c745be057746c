package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banana",
		Subsystem: "task",
		Name:      "total",
		Help:      "Orchestrated tasks by kind and outcome.",
	}, []string{"kind", "outcome"})

	metricTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "banana",
		Subsystem: "task",
		Name:      "duration_seconds",
		Help:      "End-to-end task duration including provisioning and retries.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~17min
	}, []string{"kind"})

	metricLowBalance = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "banana",
		Subsystem: "task",
		Name:      "low_balance_retries_total",
		Help:      "Attempts that hit a low-balance session and were retried.",
	})
)
