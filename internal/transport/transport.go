// Package transport provides the pub/sub Transport capability consumed by
// internal/protocol. The default build uses an in-process mock (below); a
// real github.com/eclipse/paho.mqtt.golang-backed port is available with
// `-tags mqtt` (see mqtt.go / mqtt_stub.go).
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InProcess is a Transport that loops publishes back to a registered peer
// instead of talking to a real broker, useful for integration tests that
// want two ProtocolClient-shaped ends talking to each other without a broker.
type InProcess struct {
	mu sync.Mutex

	connected bool
	peer      *InProcess

	onSubAck  func(packetID uint16)
	onMessage func(topic string, payload []byte)

	nextPacketID uint16
}

// NewInProcess creates a disconnected in-process transport.
func NewInProcess() *InProcess {
	return &InProcess{nextPacketID: 1}
}

// Pair connects two InProcess transports so a Publish on one topic from one
// side is delivered as an inbound message on the other.
func Pair(a, b *InProcess) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()

	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (t *InProcess) Connect(ctx context.Context, addr string, port uint16, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *InProcess) Subscribe(ctx context.Context, topic string) (uint16, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return 0, fmt.Errorf("transport: subscribe before connect")
	}
	id := t.nextPacketID
	t.nextPacketID++
	cb := t.onSubAck
	t.mu.Unlock()

	// No separate broker round-trip is modeled: a subscribe either succeeds
	// at the transport level immediately (mirroring mqtt.go's real
	// token.Wait()-then-callback shape) or it returns an error above.
	if cb != nil {
		cb(id)
	}
	return id, nil
}

func (t *InProcess) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return fmt.Errorf("transport: publish before connect")
	}
	peer := t.peer
	t.mu.Unlock()

	if peer == nil {
		return nil
	}
	peer.mu.Lock()
	cb := peer.onMessage
	peer.mu.Unlock()
	if cb != nil {
		cb(topic, payload)
	}
	return nil
}

func (t *InProcess) SetCallbacks(onSubAck func(packetID uint16), onMessage func(topic string, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSubAck = onSubAck
	t.onMessage = onMessage
}

func (t *InProcess) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}
