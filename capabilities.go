// Package psnnode implements the core of a battery-powered environmental
// sensing node: a boot/wake state machine that samples a sensor, batches
// readings into a bounded ring, and exchanges them with a server over a
// pub/sub transport between bouts of deep sleep. Hardware and platform
// concerns (sensor acquisition, RTC, persistent storage, network transport,
// sleep/wake) are modeled as external capabilities the core consumes through
// the interfaces re-exported below; a real deployment supplies concrete
// drivers (internal/configstore, internal/serialrepl, internal/transport),
// while testing.go supplies in-memory mocks of each.
//
// The interfaces and domain types themselves live in internal/corestate so
// that internal/orchestrator (which psnnode.go wires up) can depend on them
// without importing this package back.
package psnnode

import "github.com/henryshunt/psn-node-go/internal/corestate"

type (
	// Clock is the RTC capability: reading the current time, programming the
	// next wake alarm, and arming the GPIO wake source the alarm pulses.
	Clock = corestate.Clock

	// Sensor is one acquisition channel (air temperature, relative humidity,
	// battery voltage). Sample reports ok=false rather than a sentinel value
	// when a reading could not be taken, mirroring a real driver's boolean
	// read gate.
	Sensor = corestate.Sensor

	// ConfigStore is the persistent-configuration capability, standing in
	// for the flash-backed preferences namespace of a real device.
	ConfigStore = corestate.ConfigStore

	// Transport is the pub/sub fabric capability the ProtocolClient drives.
	Transport = corestate.Transport

	// Power is the sleep/wake capability. Each call is the last step of a
	// wake: the orchestrator does nothing after it returns.
	Power = corestate.Power

	// Configuration is the node's persistent network/server configuration,
	// loaded once on cold boot (spec.md §3, §6).
	Configuration = corestate.Configuration

	// BootMode is the node's coarse lifecycle state, persisted across sleep.
	BootMode = corestate.BootMode

	// ProtocolResult is the outcome of a ProtocolClient exchange (spec.md
	// §4.3.2).
	ProtocolResult = corestate.ProtocolResult
)

const (
	BootModeColdBoot             = corestate.BootModeColdBoot
	BootModeAwaitingInstructions = corestate.BootModeAwaitingInstructions
	BootModeOperational          = corestate.BootModeOperational

	ResultSuccess   = corestate.ResultSuccess
	ResultNoSession = corestate.ResultNoSession
	ResultFail      = corestate.ResultFail
	ResultTimeout   = corestate.ResultTimeout
)
