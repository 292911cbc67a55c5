package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/henryshunt/psn-node-go/internal/transport"
	"github.com/stretchr/testify/require"
)

const testMAC = "a1:b2:c3:d4:e5:f6"

// fakeServer answers a device's InProcess transport the way a logging
// service would, without a real broker.
type fakeServer struct {
	t    *testing.T
	mac  string
	conn *transport.InProcess
}

func newFakeServer(t *testing.T, mac string, device *transport.InProcess) *fakeServer {
	srv := transport.NewInProcess()
	transport.Pair(device, srv)
	require.NoError(t, srv.Connect(context.Background(), "broker", 1883, time.Second))
	return &fakeServer{t: t, mac: mac, conn: srv}
}

func (s *fakeServer) replyOnOutbound(corrID uint16, body string) {
	s.conn.SetCallbacks(nil, func(topic string, payload []byte) {
		if topic == OutboundTopic(s.mac, corrID) {
			require.NoError(s.t, s.conn.Publish(context.Background(), topic, []byte(body)))
		}
	})
}

func newClient(t *testing.T) (*Client, *transport.InProcess) {
	device := transport.NewInProcess()
	require.NoError(t, device.Connect(context.Background(), "broker", 1883, time.Second))
	c := NewClient(device, testMAC, 0)
	return c, device
}

func TestSubscribeSuccess(t *testing.T) {
	c, _ := newClient(t)
	result, err := c.Subscribe(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "Success", result.String())
}

func TestGetInstructionsSuccess(t *testing.T) {
	c, device := newClient(t)
	srv := newFakeServer(t, testMAC, device)
	srv.replyOnOutbound(0, `{"session_id":7,"interval":5,"batch_size":3}`)

	ins, result, err := c.GetInstructions(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "Success", result.String())
	require.Equal(t, 7, ins.StreamID)
	require.Equal(t, 5, ins.IntervalMinutes)
	require.Equal(t, 3, ins.BatchSize)
}

func TestGetInstructionsNoSession(t *testing.T) {
	c, device := newClient(t)
	srv := newFakeServer(t, testMAC, device)
	srv.replyOnOutbound(0, "no_session")

	_, result, err := c.GetInstructions(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "NoSession", result.String())
}

func TestGetInstructionsMalformedIsFail(t *testing.T) {
	c, device := newClient(t)
	srv := newFakeServer(t, testMAC, device)
	srv.replyOnOutbound(0, `{"interval":999,"batch_size":3,"session_id":1}`)

	_, result, err := c.GetInstructions(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "Fail", result.String())
}

func TestGetInstructionsTimeout(t *testing.T) {
	c, _ := newClient(t) // no server paired: publish succeeds, nothing ever replies
	start := time.Now()
	_, result, err := c.GetInstructions(context.Background(), 300*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "Fail", result.String())
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestSendObservationSuccessWithPiggybackedInstructions(t *testing.T) {
	c, device := newClient(t)
	srv := newFakeServer(t, testMAC, device)
	srv.conn.SetCallbacks(nil, func(topic string, payload []byte) {
		if topic == ReportsTopic(testMAC, 0) {
			_ = srv.conn.Publish(context.Background(), topic, []byte(`{"session_id":9,"interval":10,"batch_size":5}`))
		}
	})

	result, ins, err := c.SendObservation(context.Background(), []byte(`{"session_id":1}`), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "Success", result.String())
	require.NotNil(t, ins)
	require.Equal(t, 9, ins.StreamID)
}

func TestSendObservationNoSession(t *testing.T) {
	c, device := newClient(t)
	srv := newFakeServer(t, testMAC, device)
	srv.conn.SetCallbacks(nil, func(topic string, payload []byte) {
		if topic == ReportsTopic(testMAC, 0) {
			_ = srv.conn.Publish(context.Background(), topic, []byte("no_session"))
		}
	})

	result, ins, err := c.SendObservation(context.Background(), []byte(`{}`), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "NoSession", result.String())
	require.Nil(t, ins)
}

// TestCorrelationMismatchIgnored verifies a response tagged with a stale
// correlation id is discarded, and the request times out.
func TestCorrelationMismatchIgnored(t *testing.T) {
	c, device := newClient(t)
	srv := newFakeServer(t, testMAC, device)
	srv.conn.SetCallbacks(nil, func(topic string, payload []byte) {
		// Reply on the wrong correlation id (41 instead of the expected 0).
		_ = srv.conn.Publish(context.Background(), ReportsTopic(testMAC, 41), []byte("ok"))
	})

	result, _, err := c.SendObservation(context.Background(), []byte(`{}`), 300*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "Fail", result.String())
}

func TestSingleInFlightRejected(t *testing.T) {
	c, _ := newClient(t)
	c.mu.Lock()
	c.awaiting = true
	c.kind = KindObservation
	c.mu.Unlock()

	_, _, err := c.GetInstructions(context.Background(), time.Second)
	require.Error(t, err)
}
