package psnnode

import "github.com/henryshunt/psn-node-go/internal/constants"

// Re-export the compile-time tunables for the public API.
const (
	RingCapacity                      = constants.RingCapacity
	AlarmThresholdDefault             = constants.AlarmThresholdDefault
	SerialTimeout                     = constants.SerialTimeout
	SerialCommandMaxLen               = constants.SerialCommandMaxLen
	MaxInstructionsChecks             = constants.MaxInstructionsChecks
	AwaitingInstructionsRetryInterval = constants.AwaitingInstructionsRetryInterval
	PollInterval                      = constants.PollInterval
	NetworkTimeoutMin                 = constants.NetworkTimeoutMin
	NetworkTimeoutMax                 = constants.NetworkTimeoutMax
	ServerPortMin                     = constants.ServerPortMin
)

// AllowedIntervalMinutes is the fixed allow-list of sampling intervals.
var AllowedIntervalMinutes = constants.AllowedIntervalMinutes
