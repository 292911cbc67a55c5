// Package constants holds the compile-time tunables of the sensing node core.
package constants

import "time"

// RingCapacity is the fixed capacity of the persistent ObservationRing.
const RingCapacity = 205

// AlarmThresholdDefault is the guard window between programming an alarm and
// the earliest moment it is allowed to fire.
const AlarmThresholdDefault = 2 * time.Second

// SerialTimeout bounds how long cold boot waits for the first serial byte
// before concluding provisioning mode was not requested.
const SerialTimeout = 5 * time.Second

// SerialCommandMaxLen is the longest line the provisioning REPL will accept.
const SerialCommandMaxLen = 200

// MaxInstructionsChecks bounds the number of AwaitingInstructions retries
// before the node gives up and sleeps permanently.
const MaxInstructionsChecks = 15

// AwaitingInstructionsRetryInterval is the coarse retry cadence while the
// node has configuration and clock but no Instructions yet.
const AwaitingInstructionsRetryInterval = 60 * time.Second

// PollInterval is the cadence at which the orchestrator polls the protocol
// client's pending-request state while awaiting a response.
const PollInterval = 1 * time.Second

// NetworkTimeoutMin and NetworkTimeoutMax bound the configurable network and
// logger timeouts (seconds).
const (
	NetworkTimeoutMin = 1
	NetworkTimeoutMax = 13
)

// ServerPortMin is the lowest allowed server port (spec requires >= 1024).
const ServerPortMin = 1024

// AllowedIntervalMinutes is the fixed allow-list of sampling intervals.
var AllowedIntervalMinutes = []int{1, 2, 5, 10, 15, 20, 30}

// Epoch2000Offset converts between Unix epoch seconds and the firmware's
// original January 1st 2000 epoch, preserved here only for adapters that
// need to interoperate with devices provisioned against the original epoch.
const Epoch2000Offset = 946684800

// NetworkSSIDMaxLen, ServerAddressMaxLen, CredentialMaxLen bound the
// Configuration string fields.
const (
	NetworkSSIDMaxLen   = 31
	ServerAddressMaxLen = 31
	CredentialMaxLen    = 63
)
