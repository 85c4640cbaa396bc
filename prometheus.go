package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metric collectors for the slot
// engine and the operators
type PrometheusMetrics struct {
	// Slot timing metrics (with 'mode' label)
	slotsStartedTotal     *prometheus.CounterVec // Total slots started
	slotDriftMs           *prometheus.GaugeVec   // Timer drift of the last slot boundary in ms
	windowsScheduledTotal *prometheus.CounterVec // Decode windows handed to the decode queue
	windowsDroppedTotal   *prometheus.CounterVec // Decode windows dropped on buffer/queue errors

	// Decode metrics (with 'mode' label)
	decodedMessagesTotal *prometheus.CounterVec // Parsed messages delivered to operators

	// Operator metrics (with 'operator' label)
	transmitRequestsTotal *prometheus.CounterVec // Transmit requests emitted
	qsosCompletedTotal    *prometheus.CounterVec // Completed contacts logged

	// Logbook metrics
	workedQueryTimeouts prometheus.Counter // Worked-before queries that timed out

	// WebSocket metrics
	wsConnectionsTotal  prometheus.Counter // Total WebSocket connections established
	wsActiveConnections prometheus.Gauge   // Currently active WebSocket connections
	wsMessagesSentTotal prometheus.Counter // Total messages sent to WebSocket clients
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		slotsStartedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8engine_slots_started_total",
				Help: "Total number of time slots started",
			},
			[]string{"mode"},
		),
		slotDriftMs: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ft8engine_slot_drift_ms",
				Help: "Timer drift of the most recent slot boundary in milliseconds",
			},
			[]string{"mode"},
		),
		windowsScheduledTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8engine_decode_windows_scheduled_total",
				Help: "Total decode windows handed to the decode queue",
			},
			[]string{"mode"},
		),
		windowsDroppedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8engine_decode_windows_dropped_total",
				Help: "Total decode windows dropped due to buffer or queue errors",
			},
			[]string{"mode"},
		),
		decodedMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8engine_decoded_messages_total",
				Help: "Total parsed messages delivered to operators",
			},
			[]string{"mode"},
		),
		transmitRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8engine_transmit_requests_total",
				Help: "Total transmit requests emitted by operators",
			},
			[]string{"operator"},
		),
		qsosCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8engine_qsos_completed_total",
				Help: "Total completed contacts logged by operators",
			},
			[]string{"operator"},
		),
		workedQueryTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ft8engine_worked_query_timeouts_total",
				Help: "Total worked-before logbook queries that timed out",
			},
		),
		wsConnectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ft8engine_ws_connections_total",
				Help: "Total WebSocket connections established",
			},
		),
		wsActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ft8engine_ws_active_connections",
				Help: "Currently active WebSocket connections",
			},
		),
		wsMessagesSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ft8engine_ws_messages_sent_total",
				Help: "Total messages sent to WebSocket clients",
			},
		),
	}
	return pm
}

// RecordSlotStart records one slot boundary and its measured drift
func (pm *PrometheusMetrics) RecordSlotStart(mode string, driftMs int64) {
	pm.slotsStartedTotal.WithLabelValues(mode).Inc()
	pm.slotDriftMs.WithLabelValues(mode).Set(float64(driftMs))
}

// RecordWindowScheduled records a decode window handed to the queue
func (pm *PrometheusMetrics) RecordWindowScheduled(mode string) {
	pm.windowsScheduledTotal.WithLabelValues(mode).Inc()
}

// RecordWindowDropped records a decode window lost to an error
func (pm *PrometheusMetrics) RecordWindowDropped(mode string) {
	pm.windowsDroppedTotal.WithLabelValues(mode).Inc()
}

// RecordDecodedMessages records parsed messages delivered to operators
func (pm *PrometheusMetrics) RecordDecodedMessages(mode string, count int) {
	pm.decodedMessagesTotal.WithLabelValues(mode).Add(float64(count))
}

// RecordTransmitRequest records one transmit request from an operator
func (pm *PrometheusMetrics) RecordTransmitRequest(operatorID string) {
	pm.transmitRequestsTotal.WithLabelValues(operatorID).Inc()
}

// RecordQSOCompleted records one completed contact
func (pm *PrometheusMetrics) RecordQSOCompleted(operatorID string) {
	pm.qsosCompletedTotal.WithLabelValues(operatorID).Inc()
}

// RecordWorkedQueryTimeout records a worked-before query that timed out
func (pm *PrometheusMetrics) RecordWorkedQueryTimeout() {
	pm.workedQueryTimeouts.Inc()
}

// RecordWSConnection records a new WebSocket connection
func (pm *PrometheusMetrics) RecordWSConnection() {
	pm.wsConnectionsTotal.Inc()
	pm.wsActiveConnections.Inc()
}

// RecordWSDisconnect records a closed WebSocket connection
func (pm *PrometheusMetrics) RecordWSDisconnect() {
	pm.wsActiveConnections.Dec()
}

// RecordWSMessageSent records one message sent to a WebSocket client
func (pm *PrometheusMetrics) RecordWSMessageSent() {
	pm.wsMessagesSentTotal.Inc()
}
