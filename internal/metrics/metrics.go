// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the watchdog agent.
// No cardinality explosion: command ids, viewer ids and wall ids never
// appear as label values.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusPublishTotal counts bus publishes by topic class and outcome.
	BusPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vu_watchdog_bus_publish_total",
		Help: "Total number of bus publishes, by topic class and outcome.",
	}, []string{"topic", "outcome"})

	// BrokerSwitchTotal counts explicit broker switches.
	BrokerSwitchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vu_watchdog_broker_switch_total",
		Help: "Total number of explicit broker switches.",
	})

	// CommandTotal counts processed commands by type and terminal status.
	CommandTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vu_watchdog_command_total",
		Help: "Total number of processed commands, by type and terminal ack status.",
	}, []string{"type", "status"})

	// CollectorFailureTotal counts probe failures by collector.
	CollectorFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vu_watchdog_collector_failure_total",
		Help: "Total number of collector probe failures, by collector.",
	}, []string{"collector"})

	// EventTotal counts emitted events by severity.
	EventTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vu_watchdog_event_total",
		Help: "Total number of emitted watchdog events, by severity.",
	}, []string{"severity"})

	// ActiveConditions tracks the number of currently active health conditions.
	ActiveConditions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vu_watchdog_active_conditions",
		Help: "Current number of active health conditions.",
	})

	// Mode tracks the operational mode as an ordinal
	// (0=STARTING 1=READY 2=DEGRADED 3=CRITICAL 4=SHUTTING_DOWN).
	Mode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vu_watchdog_mode",
		Help: "Current operational mode ordinal.",
	})

	// Viewers tracks the number of attached stream viewers.
	Viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vu_watchdog_stream_viewers",
		Help: "Current number of attached stream viewers.",
	})

	// EngineSpawnTotal counts media-engine process spawns by cause.
	EngineSpawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vu_watchdog_engine_spawn_total",
		Help: "Total number of media engine spawns, by cause.",
	}, []string{"cause"})
)

// RecordPublish increments the bus publish counter.
func RecordPublish(topicClass, outcome string) {
	BusPublishTotal.WithLabelValues(topicClass, outcome).Inc()
}

// RecordCommand increments the command counter for a terminal ack.
func RecordCommand(cmdType, status string) {
	CommandTotal.WithLabelValues(cmdType, status).Inc()
}

// RecordCollectorFailure increments the probe failure counter.
func RecordCollectorFailure(collector string) {
	CollectorFailureTotal.WithLabelValues(collector).Inc()
}
