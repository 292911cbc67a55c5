package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/henryshunt/psn-node-go/internal/corestate"
	"github.com/henryshunt/psn-node-go/internal/instructions"
	"github.com/henryshunt/psn-node-go/internal/transport"
	"github.com/stretchr/testify/require"
)

type stubClock struct {
	now        time.Time
	valid      bool
	alarm      time.Time
	alarmSet   bool
	gpioArmed  bool
	alarmOutOn bool
}

func (c *stubClock) Now(context.Context) (time.Time, bool, error) { return c.now, c.valid, nil }
func (c *stubClock) SetAlarm(_ context.Context, at time.Time) error {
	c.alarm = at
	c.alarmSet = true
	return nil
}
func (c *stubClock) EnableGPIOWake(context.Context) error    { c.gpioArmed = true; return nil }
func (c *stubClock) EnableAlarmOutput(context.Context) error { c.alarmOutOn = true; return nil }
func (c *stubClock) SetTime(_ context.Context, t time.Time) error {
	c.now = t
	c.valid = true
	return nil
}

type stubSensor struct{ value float64 }

func (s stubSensor) Sample(context.Context) (float64, bool) { return s.value, true }

type stubPower struct {
	gpioCalls    int
	foreverCalls int
}

func (p *stubPower) DeepSleepUntilGPIO(context.Context) error { p.gpioCalls++; return nil }
func (p *stubPower) DeepSleepForever(context.Context) error   { p.foreverCalls++; return nil }

func validConfig() corestate.Configuration {
	return corestate.Configuration{
		NetworkSSID: "lab", ServerAddress: "logger", ServerPort: 1883,
		NetworkTimeoutSecs: 2, LoggerTimeoutSecs: 2,
	}
}

// fakeServer answers get_session/observation requests the way a logging
// server would, over a paired InProcess transport.
type fakeServer struct {
	t        *testing.T
	mac      string
	conn     *transport.InProcess
	interval int
	batch    int
}

func attachFakeServer(t *testing.T, mac string, device *transport.InProcess, interval, batch int) *fakeServer {
	srv := transport.NewInProcess()
	transport.Pair(device, srv)
	require.NoError(t, srv.Connect(context.Background(), "logger", 1883, time.Second))
	s := &fakeServer{t: t, mac: mac, conn: srv, interval: interval, batch: batch}
	s.conn.SetCallbacks(nil, s.onMessage)
	return s
}

func (s *fakeServer) onMessage(topic string, payload []byte) {
	var body string
	if string(payload) == "get_session" {
		body = `{"session_id":7,"interval":` + itoa(s.interval) + `,"batch_size":` + itoa(s.batch) + `}`
	} else {
		body = "ok"
	}
	require.NoError(s.t, s.conn.Publish(context.Background(), topic, []byte(body)))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

func baseDeps(t *testing.T, store corestate.ConfigStore, clock corestate.Clock, power corestate.Power) (Deps, *transport.InProcess) {
	device := transport.NewInProcess()
	return Deps{
		Clock: clock,
		Sensors: Sensors{
			AirTemperature: stubSensor{20},
			RelHumidity:    stubSensor{50},
			BatteryVoltage: stubSensor{3.7},
		},
		ConfigStore:  store,
		NewTransport: func() corestate.Transport { return device },
		Power:        power,
		MAC:          func(context.Context) (string, error) { return "a1:b2:c3:d4:e5:f6", nil },
	}, device
}

func TestColdBootSuccessTransitionsToOperational(t *testing.T) {
	store := &testConfigStore{cfg: validConfig(), loaded: true}
	clock := &stubClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), valid: true}
	power := &stubPower{}

	deps, device := baseDeps(t, store, clock, power)
	attachFakeServer(t, "a1:b2:c3:d4:e5:f6", device, 5, 3)

	orch := New(deps)
	pc := corestate.NewPersistentContext(10)

	outcome, err := orch.Wake(context.Background(), pc)
	require.NoError(t, err)
	require.Equal(t, corestate.BootModeOperational, pc.Mode)
	require.Equal(t, SleepGPIO, outcome.Sleep)
	require.True(t, pc.HasInstructions)
	require.Equal(t, 5, pc.Instructions.IntervalMinutes)
	require.Equal(t, 1, power.gpioCalls)
}

func TestColdBootMissingConfigSleepsForever(t *testing.T) {
	store := &testConfigStore{} // nothing persisted
	clock := &stubClock{now: time.Now(), valid: true}
	power := &stubPower{}

	deps, _ := baseDeps(t, store, clock, power)
	orch := New(deps)
	pc := corestate.NewPersistentContext(10)

	outcome, err := orch.Wake(context.Background(), pc)
	require.NoError(t, err)
	require.Equal(t, SleepForever, outcome.Sleep)
	require.Equal(t, 1, power.foreverCalls)
}

func TestColdBootBringUpFailureEntersAwaitingInstructions(t *testing.T) {
	store := &testConfigStore{cfg: validConfig(), loaded: true}
	clock := &stubClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), valid: true}
	power := &stubPower{}

	// No fake server attached: subscribe succeeds (InProcess acks locally)
	// but get_instructions will time out waiting for a response.
	deps, _ := baseDeps(t, store, clock, power)
	orch := New(deps)
	pc := corestate.NewPersistentContext(10)

	outcome, err := orch.Wake(context.Background(), pc)
	require.NoError(t, err)
	require.Equal(t, corestate.BootModeAwaitingInstructions, pc.Mode)
	require.Equal(t, SleepGPIO, outcome.Sleep)
}

func TestAwaitingInstructionsExhaustsRetriesAndSleepsForever(t *testing.T) {
	store := &testConfigStore{cfg: validConfig(), loaded: true}
	clock := &stubClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), valid: true}
	power := &stubPower{}
	deps, _ := baseDeps(t, store, clock, power)
	orch := New(deps)

	pc := corestate.NewPersistentContext(10)
	pc.Mode = corestate.BootModeAwaitingInstructions
	pc.InstructionsRetry = 14 // one short of MaxInstructionsChecks (15)

	outcome, err := orch.Wake(context.Background(), pc)
	require.NoError(t, err)
	require.Equal(t, SleepForever, outcome.Sleep)
}

func TestOperationalBatchesBeforeSending(t *testing.T) {
	store := &testConfigStore{cfg: validConfig(), loaded: true}
	clock := &stubClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), valid: true}
	power := &stubPower{}
	deps, _ := baseDeps(t, store, clock, power)
	orch := New(deps)

	pc := corestate.NewPersistentContext(10)
	pc.Mode = corestate.BootModeOperational
	pc.Instructions = instructionsFixture(5, 3)
	pc.HasInstructions = true

	outcome, err := orch.Wake(context.Background(), pc)
	require.NoError(t, err)
	require.Equal(t, 1, pc.Ring.Len())
	require.Empty(t, outcome.ObservationResults) // below batch size, nothing sent
}

func TestOperationalSendsWhenBatchFull(t *testing.T) {
	store := &testConfigStore{cfg: validConfig(), loaded: true}
	clock := &stubClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), valid: true}
	power := &stubPower{}
	deps, device := baseDeps(t, store, clock, power)
	attachFakeServer(t, "a1:b2:c3:d4:e5:f6", device, 5, 1)

	orch := New(deps)
	pc := corestate.NewPersistentContext(10)
	pc.Mode = corestate.BootModeOperational
	pc.Instructions = instructionsFixture(5, 1)
	pc.HasInstructions = true

	outcome, err := orch.Wake(context.Background(), pc)
	require.NoError(t, err)
	require.NotEmpty(t, outcome.ObservationResults)
	require.Equal(t, corestate.ResultSuccess, outcome.ObservationResults[0])
	require.True(t, pc.Ring.IsEmpty())
}

func instructionsFixture(interval, batch int) instructions.Instructions {
	return instructions.Instructions{StreamID: 1, IntervalMinutes: interval, BatchSize: batch}
}

// testConfigStore is a minimal corestate.ConfigStore for orchestrator tests,
// distinct from internal/configstore's YAML-backed adapter under test there.
type testConfigStore struct {
	cfg    corestate.Configuration
	loaded bool
}

func (s *testConfigStore) Load(context.Context) (corestate.Configuration, error) {
	if !s.loaded {
		return corestate.Configuration{}, fmt.Errorf("configstore: nothing persisted")
	}
	return s.cfg, nil
}

func (s *testConfigStore) Save(_ context.Context, cfg corestate.Configuration) error {
	s.cfg = cfg
	s.loaded = true
	return nil
}
