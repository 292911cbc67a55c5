//go:build !mqtt

package transport

import (
	"context"
	"fmt"
	"time"
)

// MQTT is available when built with -tags mqtt.
type MQTT struct{}

// NewMQTT is available when built with -tags mqtt.
func NewMQTT(clientID string) (*MQTT, error) {
	return nil, fmt.Errorf("transport: real mqtt not enabled; build with -tags mqtt")
}

func (t *MQTT) Connect(ctx context.Context, addr string, port uint16, timeout time.Duration) error {
	return fmt.Errorf("transport: real mqtt not enabled")
}

func (t *MQTT) Subscribe(ctx context.Context, topic string) (uint16, error) {
	return 0, fmt.Errorf("transport: real mqtt not enabled")
}

func (t *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	return fmt.Errorf("transport: real mqtt not enabled")
}

func (t *MQTT) SetCallbacks(onSubAck func(packetID uint16), onMessage func(topic string, payload []byte)) {
}

func (t *MQTT) Disconnect() {}
