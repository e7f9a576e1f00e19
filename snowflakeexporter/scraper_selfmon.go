// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	cycleSuccess = "success"
	cycleSkipped = "skipped"
	cycleFailed  = "failed"
)

// selfMetrics describes the exporter itself, not the warehouse.
type selfMetrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Gauge
	lastSuccess   prometheus.Gauge
	queries       prometheus.Counter
	queryErrors   *prometheus.CounterVec
}

func newSelfMetrics() *selfMetrics {
	m := &selfMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snowflake_exporter_cycles_total",
			Help: "Collection cycles by result",
		}, []string{"result"}),
		cycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snowflake_exporter_cycle_duration_seconds",
			Help: "Duration of the last collection cycle",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snowflake_exporter_last_success_timestamp_seconds",
			Help: "Unix time of the last fully successful collection cycle",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snowflake_exporter_queries_total",
			Help: "Catalog queries executed",
		}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snowflake_exporter_query_errors_total",
			Help: "Catalog queries that failed, by metric",
		}, []string{"metric"}),
	}
	// Expose every result from the first scrape on.
	for _, r := range []string{cycleSuccess, cycleSkipped, cycleFailed} {
		m.cycles.WithLabelValues(r)
	}
	return m
}

func (m *selfMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.cycles, m.cycleDuration, m.lastSuccess, m.queries, m.queryErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *selfMetrics) observeCycle(result string, started time.Time) {
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Set(time.Since(started).Seconds())
	if result == cycleSuccess {
		m.lastSuccess.SetToCurrentTime()
	}
}
