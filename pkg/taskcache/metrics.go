// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pftwallet_taskcache"

// Refresh iteration outcomes.
const (
	outcomeActive = "active"
	outcomeIdle   = "idle"
	outcomeError  = "error"
)

// Eviction reasons.
const (
	evictCleared = "cleared"
	evictIdle    = "idle"
)

// Metrics holds the task cache collectors. A nil *Metrics records nothing.
type Metrics struct {
	sessions          prometheus.Gauge
	refreshLoops      prometheus.Gauge
	refreshIterations *prometheus.CounterVec
	messagesApplied   prometheus.Counter
	syncDuration      *prometheus.HistogramVec
	evictions         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Number of accounts currently cached",
		}),
		refreshLoops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_loops",
			Help:      "Number of running refresh loops",
		}),
		refreshIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_iterations_total",
			Help:      "Refresh loop iterations by outcome",
		}, []string{"outcome"}),
		messagesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_applied_total",
			Help:      "Messages applied to account aggregates",
		}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of backfills and catch-up syncs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evictions_total",
			Help:      "Sessions removed from the cache by reason",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.sessions,
		m.refreshLoops,
		m.refreshIterations,
		m.messagesApplied,
		m.syncDuration,
		m.evictions,
	)
	return m
}

func (m *Metrics) setSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

func (m *Metrics) loopStarted() {
	if m != nil {
		m.refreshLoops.Inc()
	}
}

func (m *Metrics) loopStopped() {
	if m != nil {
		m.refreshLoops.Dec()
	}
}

func (m *Metrics) iteration(outcome string) {
	if m != nil {
		m.refreshIterations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) applied(n int) {
	if m != nil && n > 0 {
		m.messagesApplied.Add(float64(n))
	}
}

func (m *Metrics) synced(kind string, d time.Duration) {
	if m != nil {
		m.syncDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) evicted(reason string) {
	if m != nil {
		m.evictions.WithLabelValues(reason).Inc()
	}
}
