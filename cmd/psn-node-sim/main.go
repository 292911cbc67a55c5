// Command psn-node-sim drives a psnnode.Node through repeated wakes against
// simulated capabilities — a software clock/alarm, synthetic sensors, an
// in-process pub/sub peer standing in for the logging server, and a
// YAML-backed ConfigStore — for local experimentation without real hardware,
// the way the teacher's cmd/ublk-mem wires a concrete backend.Memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/henryshunt/psn-node-go"
	"github.com/henryshunt/psn-node-go/internal/configstore"
	"github.com/henryshunt/psn-node-go/internal/logging"
	"github.com/henryshunt/psn-node-go/internal/transport"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "psn-node-sim.yaml", "path to the persisted Configuration file")
		mac        = flag.String("mac", "02:00:00:00:00:01", "simulated device MAC address")
		wakes      = flag.Int("wakes", 0, "stop after this many wakes (0 = run until permanent sleep or signal)")
		verbose    = flag.Bool("v", false, "verbose logging")
		ssid       = flag.String("ssid", "lab-network", "network SSID written to a fresh config file")
		interval   = flag.Int("interval", 5, "interval_minutes instructions handed out by the simulated server")
		batch      = flag.Int("batch", 3, "batch_size instructions handed out by the simulated server")
		streamID   = flag.Int("stream", 1, "stream id handed out by the simulated server")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logrus.DebugLevel
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	store := configstore.NewFileStore(*configPath)
	if _, err := store.Load(context.Background()); err != nil {
		seed := psnnode.Configuration{
			NetworkSSID:        *ssid,
			ServerAddress:      "sim-logger",
			ServerPort:         1883,
			NetworkTimeoutSecs: 5,
			LoggerTimeoutSecs:  5,
		}
		if err := store.Save(context.Background(), seed); err != nil {
			logger.Error("failed to seed configuration", "error", err)
			os.Exit(1)
		}
		logger.Info("seeded fresh configuration", "path", *configPath)
	}

	clock := newSimClock(time.Now().UTC())
	server := newSimServer(*interval, *batch, *streamID)

	node := psnnode.NewNode(psnnode.Deps{
		Clock: clock,
		Sensors: psnnode.Sensors{
			AirTemperature: sensorFunc(func(t time.Time) (float64, bool) {
				return 18 + 4*math.Sin(float64(t.Unix())/600), true
			}),
			RelHumidity: sensorFunc(func(t time.Time) (float64, bool) {
				return 55 + 10*math.Cos(float64(t.Unix())/900), true
			}),
			BatteryVoltage: sensorFunc(func(time.Time) (float64, bool) {
				return 3.7, true
			}),
		},
		ConfigStore: store,
		NewTransport: func() psnnode.Transport {
			client := transport.NewInProcess()
			transport.Pair(client, server.endpoint())
			return client
		},
		Power: &simPower{clock: clock},
		MAC:   func(context.Context) (string, error) { return *mac, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	count := 0
	for {
		select {
		case <-ctx.Done():
			printSnapshot(node)
			return
		default:
		}

		if err := node.Wake(ctx); err != nil {
			logger.Error("wake error", "error", err)
		}
		count++
		logger.Info("wake complete", "n", count, "mode", node.Mode())

		if node.Terminated() {
			logger.Warn("node reached permanent sleep; stopping")
			printSnapshot(node)
			return
		}
		if *wakes > 0 && count >= *wakes {
			printSnapshot(node)
			return
		}
	}
}

func printSnapshot(node *psnnode.Node) {
	snap := node.Metrics().Snapshot()
	fmt.Printf("cold_boots=%d awaiting=%d operational=%d instructions_ok=%d observations_ok=%d ring_overflow=%d\n",
		snap.ColdBoots, snap.AwaitingInstructionsOps, snap.OperationalWakes,
		snap.InstructionsFetched, snap.ObservationsSent, snap.RingOverflow)
}

type sensorFunc func(time.Time) (float64, bool)

func (f sensorFunc) Sample(ctx context.Context) (float64, bool) { return f(time.Now()) }

// simServer stands in for the logging server side of the protocol: it hands
// out fixed Instructions to get_session requests and acknowledges every
// observation delivery with "ok".
type simServer struct {
	ep              *transport.InProcess
	interval, batch, streamID int
}

func newSimServer(interval, batch, streamID int) *simServer {
	s := &simServer{ep: transport.NewInProcess(), interval: interval, batch: batch, streamID: streamID}
	s.ep.SetCallbacks(nil, s.onMessage)
	_ = s.ep.Connect(context.Background(), "", 0, time.Second)
	return s
}

func (s *simServer) endpoint() *transport.InProcess { return s.ep }

func (s *simServer) onMessage(topic string, payload []byte) {
	mac, corrID, ok := splitRequestTopic(topic)
	if !ok {
		return
	}

	var response string
	if string(payload) == "get_session" {
		response = fmt.Sprintf(`{"session_id":%d,"interval":%d,"batch_size":%d}`, s.streamID, s.interval, s.batch)
	} else {
		response = "ok"
	}

	responseTopic := fmt.Sprintf("nodes/%s/inbound/%d", mac, corrID)
	_ = s.ep.Publish(context.Background(), responseTopic, []byte(response))
}

// splitRequestTopic extracts the mac and trailing correlation id from an
// outbound/reports topic, e.g. "nodes/<mac>/outbound/<corrid>".
func splitRequestTopic(topic string) (mac string, corrID uint16, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "nodes" {
		return "", 0, false
	}
	var n int
	_, err := fmt.Sscanf(parts[3], "%d", &n)
	if err != nil {
		return "", 0, false
	}
	return parts[1], uint16(n), true
}

// simClock is a software RTC: Now reports the simulator's own advancing
// clock, never wall-clock time, so a run can be driven far faster or slower
// than real time by how simPower advances it between wakes.
type simClock struct {
	now        time.Time
	alarm      time.Time
	alarmSet   bool
	gpioArmed  bool
	alarmOutOn bool
}

func newSimClock(start time.Time) *simClock { return &simClock{now: start} }

func (c *simClock) Now(context.Context) (time.Time, bool, error) { return c.now, true, nil }

func (c *simClock) SetAlarm(_ context.Context, at time.Time) error {
	c.alarm = at
	c.alarmSet = true
	return nil
}

func (c *simClock) EnableGPIOWake(context.Context) error {
	c.gpioArmed = true
	return nil
}

func (c *simClock) EnableAlarmOutput(context.Context) error {
	c.alarmOutOn = true
	return nil
}

func (c *simClock) SetTime(_ context.Context, t time.Time) error {
	c.now = t
	return nil
}

// advance jumps the simulated clock forward to the next programmed alarm, or
// by one second if no alarm was set this wake.
func (c *simClock) advance() {
	if c.alarmSet && c.alarm.After(c.now) {
		c.now = c.alarm
	} else {
		c.now = c.now.Add(time.Second)
	}
	c.alarmSet = false
}

// simPower is the Power capability for the simulator: instead of actually
// powering the device down, it advances simClock to the next alarm and
// returns immediately, letting main's loop drive the next wake right away.
type simPower struct {
	clock *simClock
}

func (p *simPower) DeepSleepUntilGPIO(context.Context) error {
	p.clock.advance()
	return nil
}

func (p *simPower) DeepSleepForever(context.Context) error {
	return nil
}
