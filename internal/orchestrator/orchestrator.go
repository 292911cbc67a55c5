// Package orchestrator implements the boot/wake state machine that
// coordinates every other concern of the sensing node core:
// it inspects the persisted BootMode on each wake and dispatches to the
// ColdBoot, AwaitingInstructions or Operational procedure, composing the
// Clock/Alarm arithmetic, ObservationRing, ProtocolClient and provisioning
// REPL along the way.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/henryshunt/psn-node-go/internal/clockmath"
	"github.com/henryshunt/psn-node-go/internal/constants"
	"github.com/henryshunt/psn-node-go/internal/corestate"
	"github.com/henryshunt/psn-node-go/internal/instructions"
	"github.com/henryshunt/psn-node-go/internal/logging"
	"github.com/henryshunt/psn-node-go/internal/observation"
	"github.com/henryshunt/psn-node-go/internal/protocol"
	"github.com/henryshunt/psn-node-go/internal/serialrepl"
)

// Sensors groups the three acquisition channels an Observation samples.
// A nil entry models a channel the platform doesn't wire up.
type Sensors struct {
	AirTemperature corestate.Sensor
	RelHumidity    corestate.Sensor
	BatteryVoltage corestate.Sensor
}

// Deps is everything the orchestrator needs from the platform, recreated (or
// at least re-validated) on every wake, as distinct from the PersistentContext
// it operates on, which survives sleep.
type Deps struct {
	Clock       corestate.Clock
	Sensors     Sensors
	ConfigStore corestate.ConfigStore
	// NewTransport builds a fresh ephemeral Transport handle for this wake.
	NewTransport func() corestate.Transport
	Power        corestate.Power
	// MAC captures the device's MAC address on cold boot, formatted as
	// six lowercase hex bytes joined by colons.
	MAC func(ctx context.Context) (string, error)
	// Serial is the provisioning port; nil disables the REPL entirely
	// (e.g. in a headless simulation), since SERIAL_TIMEOUT still elapses
	// with no port attached.
	Serial io.ReadWriter
}

// SleepKind records which of the two terminal sleep calls a wake ended with,
// for the caller's logging/metrics.
type SleepKind int

const (
	SleepNone SleepKind = iota
	SleepGPIO
	SleepForever
)

func (s SleepKind) String() string {
	switch s {
	case SleepGPIO:
		return "gpio"
	case SleepForever:
		return "forever"
	default:
		return "none"
	}
}

// WakeOutcome summarizes one Wake call for the caller's logging and metrics,
// without the orchestrator needing to depend on any particular metrics type.
type WakeOutcome struct {
	StartMode   BootModeAlias
	EndMode     BootModeAlias
	Sleep       SleepKind
	Provisioned bool

	InstructionsResult *corestate.ProtocolResult
	ObservationResults []corestate.ProtocolResult
	RingOverflows      []bool

	ConnectionPolls int
	TerminalReason  string // set only when Sleep == SleepForever
	// Err is the structured cause of a SleepForever outcome, nil otherwise.
	Err error
}

// BootModeAlias avoids a stutter of corestate.BootMode in the struct above
// while keeping WakeOutcome trivially convertible by callers.
type BootModeAlias = corestate.BootMode

// Orchestrator runs the boot/wake state machine once per call to Wake.
type Orchestrator struct {
	deps Deps
	log  *logging.Logger
}

// New creates an Orchestrator over deps.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps, log: logging.Default().With("component", "orchestrator")}
}

// Wake runs exactly one wake of the boot/wake state machine, mutating pc in
// place to reflect the new persisted state. pc is the zero value (freshly
// allocated via corestate.NewPersistentContext) on the very first call.
func (o *Orchestrator) Wake(ctx context.Context, pc *corestate.PersistentContext) (WakeOutcome, error) {
	out := WakeOutcome{StartMode: pc.Mode}
	var err error

	switch pc.Mode {
	case corestate.BootModeColdBoot:
		err = o.coldBoot(ctx, pc, &out)
	case corestate.BootModeAwaitingInstructions:
		err = o.awaitingInstructions(ctx, pc, &out)
	case corestate.BootModeOperational:
		err = o.operational(ctx, pc, &out)
	default:
		err = fmt.Errorf("orchestrator: unknown boot mode %v", pc.Mode)
	}

	out.EndMode = pc.Mode
	return out, err
}

// coldBoot captures the MAC, loads and validates the persisted
// configuration, optionally enters the provisioning REPL, then attempts
// bring-up and transitions to AwaitingInstructions or Operational.
func (o *Orchestrator) coldBoot(ctx context.Context, pc *corestate.PersistentContext, out *WakeOutcome) error {
	o.log.Info("cold boot")

	mac, err := o.deps.MAC(ctx)
	if err != nil {
		return o.sleepForever(ctx, out, corestate.WrapError("ColdBoot", corestate.ErrCodeMACUnavailable, err))
	}
	pc.MAC = mac

	cfg, err := o.deps.ConfigStore.Load(ctx)
	if err != nil {
		o.log.Error("configstore unreadable", "error", err)
		return o.sleepForever(ctx, out, corestate.WrapError("ColdBoot", corestate.ErrCodeConfigUnreadable, err))
	}
	pc.Config = cfg

	if o.deps.Serial != nil {
		entered, err := o.runProvisioning(ctx, pc)
		if err != nil {
			o.log.Warn("provisioning REPL error", "error", err)
		}
		if entered {
			out.Provisioned = true
			out.Sleep = SleepNone
			return nil
		}
	}

	if err := pc.Config.Validate(); err != nil {
		o.log.Error("configuration invalid", "error", err)
		return o.sleepForever(ctx, out, corestate.WrapError("ColdBoot", corestate.ErrCodeConfigInvalid, err))
	}

	now, valid, err := o.deps.Clock.Now(ctx)
	if err != nil || !valid {
		o.log.Error("rtc invalid on cold boot")
		return o.sleepForever(ctx, out, corestate.NewError("ColdBoot", corestate.ErrCodeClockInvalid, "rtc invalid"))
	}

	if err := o.deps.Clock.EnableAlarmOutput(ctx); err != nil {
		o.log.Error("clock alarm output enable failed", "error", err)
		return o.sleepForever(ctx, out, corestate.WrapError("ColdBoot", corestate.ErrCodeClockInvalid, err))
	}

	ins, result, polls, bringUpErr := o.bringUp(ctx, pc)
	out.InstructionsResult = &result
	out.ConnectionPolls = polls

	if bringUpErr != nil || !isSuccess(result) {
		pc.Mode = corestate.BootModeAwaitingInstructions
		pc.InstructionsRetry = 0
		return o.sleepRetry(ctx, out, now)
	}

	pc.Mode = corestate.BootModeOperational
	pc.InstructionsRetry = 0
	pc.Instructions = ins
	pc.HasInstructions = true
	return o.sleepFirstObservation(ctx, out, now, ins)
}

// awaitingInstructions retries bring-up on a cold-boot failure until
// MaxInstructionsChecks is exhausted, then sleeps forever.
func (o *Orchestrator) awaitingInstructions(ctx context.Context, pc *corestate.PersistentContext, out *WakeOutcome) error {
	now, valid, err := o.deps.Clock.Now(ctx)
	if err != nil || !valid {
		return o.sleepForever(ctx, out, corestate.NewError("AwaitingInstructions", corestate.ErrCodeClockInvalid, "rtc invalid"))
	}

	pc.InstructionsRetry++

	ins, result, polls, bringUpErr := o.bringUp(ctx, pc)
	out.InstructionsResult = &result
	out.ConnectionPolls = polls

	if bringUpErr == nil && isSuccess(result) {
		pc.Mode = corestate.BootModeOperational
		pc.InstructionsRetry = 0
		pc.Instructions = ins
		pc.HasInstructions = true
		return o.sleepFirstObservation(ctx, out, now, ins)
	}

	if pc.InstructionsRetry < constants.MaxInstructionsChecks {
		return o.sleepRetry(ctx, out, now)
	}
	return o.sleepForever(ctx, out, corestate.NewError("AwaitingInstructions", corestate.ErrCodeInstructionsExhausted, "instructions retries exhausted"))
}

// operational samples sensors, pushes to the ring, and batches a
// delivery to the logging server once BatchSize observations are queued.
func (o *Orchestrator) operational(ctx context.Context, pc *corestate.PersistentContext, out *WakeOutcome) error {
	now, valid, err := o.deps.Clock.Now(ctx)
	if err != nil || !valid {
		return o.sleepForever(ctx, out, corestate.NewError("Operational", corestate.ErrCodeClockInvalid, "rtc invalid"))
	}

	interval := time.Duration(pc.Instructions.IntervalMinutes) * time.Minute
	nextAlarm := now.Add(interval)
	if err := o.deps.Clock.SetAlarm(ctx, nextAlarm); err != nil {
		o.log.Warn("set alarm failed", "error", err)
	}

	obs := o.sample(ctx, now)
	overflowed := pc.Ring.Push(obs)
	out.RingOverflows = append(out.RingOverflows, overflowed)

	if pc.Ring.Len() < pc.Instructions.BatchSize {
		return o.sleepGPIO(ctx, out)
	}

	transport := o.deps.NewTransport()
	networkTimeout := time.Duration(pc.Config.NetworkTimeoutSecs) * time.Second
	if err := transport.Connect(ctx, pc.Config.ServerAddress, pc.Config.ServerPort, networkTimeout); err != nil {
		o.log.Warn("transport connect failed; retaining observations", "error", err)
		return o.sleepGPIO(ctx, out)
	}
	defer transport.Disconnect()

	client := protocol.NewClient(transport, pc.MAC, pc.CorrIDCounter)
	subResult, err := client.Subscribe(ctx, networkTimeout)
	pc.CorrIDCounter = client.CorrIDCounter()
	if err != nil || subResult != corestate.ResultSuccess {
		o.log.Warn("subscribe failed; retaining observations", "result", subResult)
		return o.sleepGPIO(ctx, out)
	}

	loggerTimeout := time.Duration(pc.Config.LoggerTimeoutSecs) * time.Second
	for !pc.Ring.IsEmpty() {
		curNow, curValid, curErr := o.deps.Clock.Now(ctx)
		if curErr != nil || !curValid {
			break
		}
		if nextAlarm.Sub(curNow) < loggerTimeout+constants.AlarmThresholdDefault {
			break
		}

		peeked, ok := pc.Ring.PeekOldest()
		if !ok {
			break
		}
		body, err := observation.Serialize(peeked, pc.Instructions.StreamID)
		if err != nil {
			o.log.Error("observation serialize failed", "error", err)
			break
		}

		result, newIns, err := client.SendObservation(ctx, body, loggerTimeout)
		pc.CorrIDCounter = client.CorrIDCounter()
		out.ObservationResults = append(out.ObservationResults, result)
		if err != nil {
			break
		}

		switch result {
		case corestate.ResultSuccess:
			pc.Ring.PopOldest()
			if newIns != nil {
				pc.Instructions = *newIns
			}
		case corestate.ResultNoSession:
			pc.Ring.PopOldest()
			return o.sleepForever(ctx, out, corestate.NewError("Operational", corestate.ErrCodeNoSession, "server reported no session"))
		default: // Fail
			return o.sleepGPIO(ctx, out)
		}
	}

	return o.sleepGPIO(ctx, out)
}

func (o *Orchestrator) sample(ctx context.Context, now time.Time) observation.Observation {
	obs := observation.Observation{Time: now}
	if o.deps.Sensors.AirTemperature != nil {
		if v, ok := o.deps.Sensors.AirTemperature.Sample(ctx); ok {
			obs.AirTemp = &v
		}
	}
	if o.deps.Sensors.RelHumidity != nil {
		if v, ok := o.deps.Sensors.RelHumidity.Sample(ctx); ok {
			obs.RelHumidity = &v
		}
	}
	if o.deps.Sensors.BatteryVoltage != nil {
		if v, ok := o.deps.Sensors.BatteryVoltage.Sample(ctx); ok {
			obs.BatteryVoltage = &v
		}
	}
	return obs
}

// bringUp attempts network connect, subscribe and get_instructions in one
// shot. It always tears the transport handle back down before returning,
// since a fresh one is built on every attempt: a failed client is never
// reused.
func (o *Orchestrator) bringUp(ctx context.Context, pc *corestate.PersistentContext) (instructions.Instructions, corestate.ProtocolResult, int, error) {
	started := time.Now()
	transport := o.deps.NewTransport()
	defer transport.Disconnect()

	networkTimeout := time.Duration(pc.Config.NetworkTimeoutSecs) * time.Second
	if err := transport.Connect(ctx, pc.Config.ServerAddress, pc.Config.ServerPort, networkTimeout); err != nil {
		return instructions.Instructions{}, corestate.ResultFail, polls(started), err
	}

	client := protocol.NewClient(transport, pc.MAC, pc.CorrIDCounter)
	subResult, err := client.Subscribe(ctx, networkTimeout)
	pc.CorrIDCounter = client.CorrIDCounter()
	if err != nil {
		return instructions.Instructions{}, corestate.ResultFail, polls(started), err
	}
	if subResult != corestate.ResultSuccess {
		return instructions.Instructions{}, corestate.ResultFail, polls(started), nil
	}

	loggerTimeout := time.Duration(pc.Config.LoggerTimeoutSecs) * time.Second
	ins, result, err := client.GetInstructions(ctx, loggerTimeout)
	pc.CorrIDCounter = client.CorrIDCounter()
	return ins, result, polls(started), err
}

func polls(started time.Time) int {
	elapsed := time.Since(started)
	n := int(elapsed / constants.PollInterval)
	if elapsed%constants.PollInterval != 0 {
		n++
	}
	return n
}

func isSuccess(r corestate.ProtocolResult) bool { return r == corestate.ResultSuccess }

func (o *Orchestrator) runProvisioning(ctx context.Context, pc *corestate.PersistentContext) (bool, error) {
	entered, rest, err := serialrepl.AwaitEntry(ctx, o.deps.Serial, constants.SerialTimeout)
	if err != nil || !entered {
		return false, err
	}
	err = serialrepl.Serve(ctx, o.deps.Serial, rest, pc.MAC, o.deps.ConfigStore, o.deps.Clock)
	return true, err
}

func (o *Orchestrator) sleepForever(ctx context.Context, out *WakeOutcome, cause *corestate.Error) error {
	out.Sleep = SleepForever
	out.TerminalReason = cause.Error()
	out.Err = cause
	o.log.Warn("sleeping permanently", "op", cause.Op, "code", cause.Code, "error", cause)
	return o.deps.Power.DeepSleepForever(ctx)
}

func (o *Orchestrator) sleepGPIO(ctx context.Context, out *WakeOutcome) error {
	out.Sleep = SleepGPIO
	if err := o.deps.Clock.EnableGPIOWake(ctx); err != nil {
		return err
	}
	return o.deps.Power.DeepSleepUntilGPIO(ctx)
}

// sleepRetry programs the coarse AwaitingInstructions retry alarm and sleeps
// with GPIO wake armed.
func (o *Orchestrator) sleepRetry(ctx context.Context, out *WakeOutcome, now time.Time) error {
	alarm := now.Add(constants.AwaitingInstructionsRetryInterval)
	if err := o.deps.Clock.SetAlarm(ctx, alarm); err != nil {
		o.log.Warn("set retry alarm failed", "error", err)
	}
	return o.sleepGPIO(ctx, out)
}

// sleepFirstObservation programs the first-observation alarm and sleeps
// with GPIO wake armed.
func (o *Orchestrator) sleepFirstObservation(ctx context.Context, out *WakeOutcome, now time.Time, ins instructions.Instructions) error {
	first := clockmath.FirstAlignedTime(now, time.Duration(ins.IntervalMinutes)*time.Minute, constants.AlarmThresholdDefault)
	if err := o.deps.Clock.SetAlarm(ctx, first); err != nil {
		o.log.Warn("set first-observation alarm failed", "error", err)
	}
	return o.sleepGPIO(ctx, out)
}
