// Package corestate holds the domain model shared by internal/orchestrator,
// internal/protocol, internal/serialrepl and internal/configstore: the five
// external capability interfaces the node depends on and the entities that
// survive deep sleep. It exists so those packages and the root psnnode
// package (which re-exports
// everything here as its public API, the same way root constants.go
// re-exports internal/constants) can share one definition without an import
// cycle: psnnode imports internal/orchestrator, so the types orchestrator
// needs cannot themselves live in psnnode.
package corestate

import (
	"context"
	"fmt"
	"time"

	"github.com/henryshunt/psn-node-go/internal/constants"
	"github.com/henryshunt/psn-node-go/internal/instructions"
	"github.com/henryshunt/psn-node-go/internal/ring"
)

// Clock is the RTC capability: reading the current time, programming the
// next wake alarm, and arming the GPIO wake source the alarm pulses.
type Clock interface {
	// Now returns the current time and whether the RTC holds a valid time.
	// valid=false models an uninitialized or battery-dead RTC.
	Now(ctx context.Context) (t time.Time, valid bool, err error)
	SetAlarm(ctx context.Context, at time.Time) error
	EnableGPIOWake(ctx context.Context) error
	// EnableAlarmOutput arms the RTC's alarm-pulse output pin, done once on
	// cold boot after the RTC is confirmed to hold a valid time. A real RTC
	// leaves this pin disabled out of reset, so every cold boot must turn it
	// on before the first SetAlarm can wake the device from deep sleep.
	EnableAlarmOutput(ctx context.Context) error
	// SetTime sets the RTC's wall-clock time and marks it valid, used only by
	// the provisioning REPL's WRITE_TIME command.
	SetTime(ctx context.Context, t time.Time) error
}

// Sensor is one acquisition channel (air temperature, relative humidity,
// battery voltage). Sample reports ok=false rather than a sentinel value when
// a reading could not be taken, mirroring a real driver's boolean read gate.
type Sensor interface {
	Sample(ctx context.Context) (value float64, ok bool)
}

// ConfigStore is the persistent-configuration capability, standing in for
// the flash-backed preferences namespace of a real device.
type ConfigStore interface {
	Load(ctx context.Context) (Configuration, error)
	Save(ctx context.Context, cfg Configuration) error
}

// Transport is the pub/sub fabric capability the ProtocolClient drives.
// Subscribe acknowledgement and inbound messages are delivered via the
// callbacks registered with SetCallbacks. A callback may run synchronously
// from inside Subscribe or a peer's Publish (as InProcess and the MQTT
// transport do for the subscribe ack) or from a background IO task.
type Transport interface {
	Connect(ctx context.Context, addr string, port uint16, timeout time.Duration) error
	Subscribe(ctx context.Context, topic string) (packetID uint16, err error)
	Publish(ctx context.Context, topic string, payload []byte) error
	SetCallbacks(onSubAck func(packetID uint16), onMessage func(topic string, payload []byte))
	Disconnect()
}

// Power is the sleep/wake capability. Each call is the last step of a wake:
// the orchestrator does nothing after it returns. A real adapter powers the
// device down, so the call only "returns" on the next boot; in this Go model
// an implementation (such as MockPower or the simulator's) returns at once
// and the caller of Node.Wake starts the next wake itself.
type Power interface {
	DeepSleepUntilGPIO(ctx context.Context) error
	DeepSleepForever(ctx context.Context) error
}

// Configuration is the node's persistent network/server configuration,
// loaded once on cold boot.
type Configuration struct {
	NetworkSSID        string
	NetworkEnterprise  bool
	NetworkUsername    string // enterprise only
	NetworkPassword    string
	ServerAddress      string
	ServerPort         uint16
	NetworkTimeoutSecs uint8
	LoggerTimeoutSecs  uint8
}

// Validate enforces the field bounds and cross-field invariant: string
// fields are length-bounded, the server port is >= 1024, both timeouts fall
// in [1,13], and an enterprise network requires non-empty credentials.
func (c Configuration) Validate() error {
	if len(c.NetworkSSID) == 0 || len(c.NetworkSSID) > constants.NetworkSSIDMaxLen {
		return fmt.Errorf("configuration: network ssid length out of bounds")
	}
	if len(c.NetworkUsername) > constants.CredentialMaxLen {
		return fmt.Errorf("configuration: network username too long")
	}
	if len(c.NetworkPassword) > constants.CredentialMaxLen {
		return fmt.Errorf("configuration: network password too long")
	}
	if len(c.ServerAddress) == 0 || len(c.ServerAddress) > constants.ServerAddressMaxLen {
		return fmt.Errorf("configuration: server address length out of bounds")
	}
	if c.ServerPort < constants.ServerPortMin {
		return fmt.Errorf("configuration: server port %d below minimum %d", c.ServerPort, constants.ServerPortMin)
	}
	if c.NetworkTimeoutSecs < constants.NetworkTimeoutMin || c.NetworkTimeoutSecs > constants.NetworkTimeoutMax {
		return fmt.Errorf("configuration: network timeout %d out of range [%d,%d]",
			c.NetworkTimeoutSecs, constants.NetworkTimeoutMin, constants.NetworkTimeoutMax)
	}
	if c.LoggerTimeoutSecs < constants.NetworkTimeoutMin || c.LoggerTimeoutSecs > constants.NetworkTimeoutMax {
		return fmt.Errorf("configuration: logger timeout %d out of range [%d,%d]",
			c.LoggerTimeoutSecs, constants.NetworkTimeoutMin, constants.NetworkTimeoutMax)
	}
	if c.NetworkEnterprise {
		if c.NetworkUsername == "" || c.NetworkPassword == "" {
			return fmt.Errorf("configuration: enterprise network requires username and password")
		}
	}
	return nil
}

// BootMode is the node's coarse lifecycle state, persisted across sleep and
// transitioning forward only within a single power cycle.
type BootMode int

const (
	BootModeColdBoot BootMode = iota
	BootModeAwaitingInstructions
	BootModeOperational
)

func (b BootMode) String() string {
	switch b {
	case BootModeColdBoot:
		return "ColdBoot"
	case BootModeAwaitingInstructions:
		return "AwaitingInstructions"
	case BootModeOperational:
		return "Operational"
	default:
		return "Unknown"
	}
}

// ProtocolResult is the outcome of a ProtocolClient exchange.
type ProtocolResult int

const (
	ResultSuccess ProtocolResult = iota
	ResultNoSession
	ResultFail
	ResultTimeout
)

func (r ProtocolResult) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultNoSession:
		return "NoSession"
	case ResultFail:
		return "Fail"
	case ResultTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// PersistentContext is the sleep-preserved state of a single node: everything
// that must survive deep sleep, gathered into one value a platform adapter
// is responsible for
// placing into (or reloading from) sleep-preserved memory. Ephemeral state —
// PendingRequest, Transport handles — is deliberately not part of this type;
// it is recreated fresh on every wake.
type PersistentContext struct {
	MAC string

	Config Configuration

	Mode              BootMode
	InstructionsRetry int

	Instructions instructions.Instructions
	HasInstructions bool

	Ring *ring.Ring

	// CorrIDCounter is the ProtocolClient's monotonic correlation id. It
	// persists only across sleep and is reset to zero on cold boot.
	CorrIDCounter uint16
}

// NewPersistentContext allocates a fresh context with an empty ring of the
// given capacity, as happens once on cold boot.
func NewPersistentContext(capacity int) *PersistentContext {
	return &PersistentContext{Ring: ring.New(capacity)}
}
