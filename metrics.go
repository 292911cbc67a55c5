package psnnode

import (
	"sync/atomic"
	"time"
)

// Metrics tracks the operational statistics of the sensing node core across
// wakes. A single instance is expected to live for the process lifetime of a
// simulator or test harness; a real platform adapter would persist it or
// export it via its own telemetry path.
type Metrics struct {
	// Wake/boot lifecycle
	ColdBoots               atomic.Uint64
	AwaitingInstructionsOps atomic.Uint64
	OperationalWakes        atomic.Uint64

	// Protocol exchanges
	InstructionsFetched  atomic.Uint64
	InstructionsNoSession atomic.Uint64
	InstructionsFailed   atomic.Uint64

	ObservationsSent      atomic.Uint64
	ObservationsNoSession atomic.Uint64
	ObservationsFailed    atomic.Uint64

	SubscribeTimeouts atomic.Uint64
	RequestTimeouts   atomic.Uint64

	// Ring behavior
	RingPushes   atomic.Uint64
	RingOverflow atomic.Uint64

	// Connection-attempt accounting (supplemented feature): one-second polls
	// consumed by a bring-up attempt (network, server, subscribe and
	// get_instructions) on a cold boot or AwaitingInstructions wake.
	ConnectionPolls atomic.Uint64

	StartTime atomic.Int64 // process start, UnixNano
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordColdBoot records entry into the ColdBoot procedure.
func (m *Metrics) RecordColdBoot() { m.ColdBoots.Add(1) }

// RecordAwaitingInstructions records one AwaitingInstructions retry wake.
func (m *Metrics) RecordAwaitingInstructions() { m.AwaitingInstructionsOps.Add(1) }

// RecordOperationalWake records one Operational-state wake.
func (m *Metrics) RecordOperationalWake() { m.OperationalWakes.Add(1) }

// RecordInstructionsResult records the outcome of a get_instructions exchange.
func (m *Metrics) RecordInstructionsResult(result ProtocolResult) {
	switch result {
	case ResultSuccess:
		m.InstructionsFetched.Add(1)
	case ResultNoSession:
		m.InstructionsNoSession.Add(1)
	case ResultFail:
		m.InstructionsFailed.Add(1)
	}
}

// RecordObservationResult records the outcome of a send_observation exchange.
func (m *Metrics) RecordObservationResult(result ProtocolResult) {
	switch result {
	case ResultSuccess:
		m.ObservationsSent.Add(1)
	case ResultNoSession:
		m.ObservationsNoSession.Add(1)
	case ResultFail:
		m.ObservationsFailed.Add(1)
	}
}

// RecordSubscribeTimeout records a subscribe acknowledgement deadline expiry.
func (m *Metrics) RecordSubscribeTimeout() { m.SubscribeTimeouts.Add(1) }

// RecordRequestTimeout records a request deadline expiry while Awaiting.
func (m *Metrics) RecordRequestTimeout() { m.RequestTimeouts.Add(1) }

// RecordRingPush records one push onto the ObservationRing, and whether it
// forced an overflow eviction of the oldest retained element.
func (m *Metrics) RecordRingPush(overflowed bool) {
	m.RingPushes.Add(1)
	if overflowed {
		m.RingOverflow.Add(1)
	}
}

// RecordConnectionPolls records the number of one-second polls a bring-up
// attempt consumed waiting on network/server/subscribe/get_instructions.
func (m *Metrics) RecordConnectionPolls(n uint64) { m.ConnectionPolls.Add(n) }

// MetricsSnapshot is a point-in-time copy of Metrics suitable for logging or
// export without holding a reference to the live counters.
type MetricsSnapshot struct {
	ColdBoots               uint64
	AwaitingInstructionsOps uint64
	OperationalWakes        uint64

	InstructionsFetched   uint64
	InstructionsNoSession uint64
	InstructionsFailed    uint64

	ObservationsSent      uint64
	ObservationsNoSession uint64
	ObservationsFailed    uint64

	SubscribeTimeouts uint64
	RequestTimeouts   uint64

	RingPushes   uint64
	RingOverflow uint64

	ConnectionPolls uint64

	UptimeNs uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ColdBoots:               m.ColdBoots.Load(),
		AwaitingInstructionsOps: m.AwaitingInstructionsOps.Load(),
		OperationalWakes:        m.OperationalWakes.Load(),
		InstructionsFetched:     m.InstructionsFetched.Load(),
		InstructionsNoSession:   m.InstructionsNoSession.Load(),
		InstructionsFailed:      m.InstructionsFailed.Load(),
		ObservationsSent:        m.ObservationsSent.Load(),
		ObservationsNoSession:   m.ObservationsNoSession.Load(),
		ObservationsFailed:      m.ObservationsFailed.Load(),
		SubscribeTimeouts:       m.SubscribeTimeouts.Load(),
		RequestTimeouts:         m.RequestTimeouts.Load(),
		RingPushes:              m.RingPushes.Load(),
		RingOverflow:            m.RingOverflow.Load(),
		ConnectionPolls:         m.ConnectionPolls.Load(),
		UptimeNs:                uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
}

// Reset resets all metrics counters. Useful for testing.
func (m *Metrics) Reset() {
	m.ColdBoots.Store(0)
	m.AwaitingInstructionsOps.Store(0)
	m.OperationalWakes.Store(0)
	m.InstructionsFetched.Store(0)
	m.InstructionsNoSession.Store(0)
	m.InstructionsFailed.Store(0)
	m.ObservationsSent.Store(0)
	m.ObservationsNoSession.Store(0)
	m.ObservationsFailed.Store(0)
	m.SubscribeTimeouts.Store(0)
	m.RequestTimeouts.Store(0)
	m.RingPushes.Store(0)
	m.RingOverflow.Store(0)
	m.ConnectionPolls.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
}

// Observer allows pluggable metrics collection, independent of the concrete
// Metrics implementation.
type Observer interface {
	ObserveInstructionsResult(result ProtocolResult)
	ObserveObservationResult(result ProtocolResult)
	ObserveRingPush(overflowed bool)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveInstructionsResult(ProtocolResult) {}
func (NoOpObserver) ObserveObservationResult(ProtocolResult)  {}
func (NoOpObserver) ObserveRingPush(bool)                     {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveInstructionsResult(result ProtocolResult) {
	o.metrics.RecordInstructionsResult(result)
}

func (o *MetricsObserver) ObserveObservationResult(result ProtocolResult) {
	o.metrics.RecordObservationResult(result)
}

func (o *MetricsObserver) ObserveRingPush(overflowed bool) {
	o.metrics.RecordRingPush(overflowed)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
