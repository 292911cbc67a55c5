// Package psnnode implements the firmware core of a battery-powered
// environmental sensing node: a boot/wake state machine that coordinates
// sensor sampling, a persistent observation ring buffer, a pub/sub
// request/response protocol client, alarm scheduling arithmetic, and a
// serial provisioning REPL, all built around state that survives deep sleep.
//
// The package is platform-agnostic. A caller supplies Clock, Sensor,
// ConfigStore, Transport and Power implementations (real hardware adapters
// or the Mock* types in testing.go) and drives the state machine one wake at
// a time via Node.Wake, or continuously via Node.Run.
package psnnode

import (
	"context"
	"fmt"

	"github.com/henryshunt/psn-node-go/internal/corestate"
	"github.com/henryshunt/psn-node-go/internal/logging"
	"github.com/henryshunt/psn-node-go/internal/orchestrator"
)

// Sensors groups the three acquisition channels a Node samples each
// Operational wake. A nil entry models a channel the platform doesn't wire up.
type Sensors struct {
	AirTemperature Sensor
	RelHumidity    Sensor
	BatteryVoltage Sensor
}

// Deps is everything a Node needs from its platform.
type Deps struct {
	Clock       Clock
	Sensors     Sensors
	ConfigStore ConfigStore
	// NewTransport builds a fresh ephemeral Transport handle for each wake
	// that needs one (cold boot bring-up, AwaitingInstructions retries, and
	// Operational delivery all create and tear down their own handle).
	NewTransport func() Transport
	Power        Power
	// MAC resolves the device's MAC address once, on cold boot.
	MAC func(ctx context.Context) (string, error)
	// Serial is the provisioning port; nil disables the REPL.
	Serial SerialPort
	// Observer receives every wake's instructions/observation/ring-push
	// results as they're recorded, for a caller wiring in its own telemetry
	// (e.g. Prometheus) alongside or instead of Metrics. Defaults to a
	// MetricsObserver feeding the Node's own Metrics.
	Observer Observer
}

// SerialPort is the minimal read/write capability the provisioning REPL
// needs from a serial adapter.
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Node wires a single sensing node's persistent state to an Orchestrator,
// tracking Metrics across repeated wakes for the lifetime of the process.
type Node struct {
	orch       *orchestrator.Orchestrator
	pc         *corestate.PersistentContext
	metrics    *Metrics
	obs        Observer
	log        *logging.Logger
	terminated bool
}

// NewNode creates a Node with a fresh PersistentContext (BootModeColdBoot,
// empty ring) — the state of a device powering on for the very first time.
func NewNode(deps Deps) *Node {
	metrics := NewMetrics()
	obs := deps.Observer
	if obs == nil {
		obs = NewMetricsObserver(metrics)
	}
	return &Node{
		orch: orchestrator.New(orchestrator.Deps{
			Clock: deps.Clock,
			Sensors: orchestrator.Sensors{
				AirTemperature: deps.Sensors.AirTemperature,
				RelHumidity:    deps.Sensors.RelHumidity,
				BatteryVoltage: deps.Sensors.BatteryVoltage,
			},
			ConfigStore:  deps.ConfigStore,
			NewTransport: func() corestate.Transport { return deps.NewTransport() },
			Power:        deps.Power,
			MAC:          deps.MAC,
			Serial:       deps.Serial,
		}),
		pc:      corestate.NewPersistentContext(RingCapacity),
		metrics: metrics,
		obs:     obs,
		log:     logging.Default().With("component", "node"),
	}
}

// Resume creates a Node around an already-persisted context, modeling a wake
// from deep sleep rather than a fresh power-on. A platform adapter is
// responsible for reloading pc from its sleep-preserved memory beforehand.
func Resume(deps Deps, pc *corestate.PersistentContext) *Node {
	n := NewNode(deps)
	n.pc = pc
	return n
}

// PersistentContext exposes the node's current persisted state, for a
// platform adapter to write back to sleep-preserved memory after a wake.
func (n *Node) PersistentContext() *corestate.PersistentContext { return n.pc }

// Metrics returns the node's running metrics.
func (n *Node) Metrics() *Metrics { return n.metrics }

// Mode reports the node's current BootMode.
func (n *Node) Mode() BootMode { return n.pc.Mode }

// Wake runs exactly one wake of the boot/wake state machine and folds the
// outcome into the node's Metrics.
func (n *Node) Wake(ctx context.Context) error {
	switch n.pc.Mode {
	case BootModeColdBoot:
		n.metrics.RecordColdBoot()
	case BootModeAwaitingInstructions:
		n.metrics.RecordAwaitingInstructions()
	case BootModeOperational:
		n.metrics.RecordOperationalWake()
	}

	outcome, err := n.orch.Wake(ctx, n.pc)
	n.recordOutcome(outcome)
	if err != nil {
		return fmt.Errorf("psnnode: wake failed: %w", err)
	}
	if outcome.Err != nil {
		return fmt.Errorf("psnnode: wake failed: %w", outcome.Err)
	}
	return nil
}

func (n *Node) recordOutcome(outcome orchestrator.WakeOutcome) {
	if outcome.InstructionsResult != nil {
		n.obs.ObserveInstructionsResult(*outcome.InstructionsResult)
		if *outcome.InstructionsResult == ResultTimeout {
			n.metrics.RecordSubscribeTimeout()
		}
	}
	for _, r := range outcome.ObservationResults {
		n.obs.ObserveObservationResult(r)
	}
	for _, overflowed := range outcome.RingOverflows {
		n.obs.ObserveRingPush(overflowed)
	}
	if outcome.ConnectionPolls > 0 {
		n.metrics.RecordConnectionPolls(uint64(outcome.ConnectionPolls))
	}
	if outcome.Sleep == orchestrator.SleepForever {
		n.terminated = true
		n.log.Warn("node sleeping permanently", "reason", outcome.TerminalReason, "error", outcome.Err)
	}
}

// Terminated reports whether the node has reached a permanent-sleep state
// from which only a manual reset recovers.
func (n *Node) Terminated() bool { return n.terminated }

// Run drives the node through repeated wakes until ctx is cancelled or a
// wake sleeps forever, modeling the continuous power-cycle loop a platform
// adapter's main() would otherwise implement as "wake, run one cycle, sleep,
// repeat until reset". Each iteration's error is logged, not returned,
// except when the wake itself signals a permanent sleep — then Run returns
// nil, since that is the node's designed terminal state, not a failure.
func (n *Node) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := n.Wake(ctx); err != nil {
			n.log.Error("wake error", "mode", n.pc.Mode, "error", err)
		}
		if n.terminated {
			return nil
		}
	}
}
