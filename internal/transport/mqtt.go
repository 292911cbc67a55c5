//go:build mqtt

// Package transport: real MQTT backing, built with -tags mqtt.
package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT is a Transport backed by a real paho.mqtt.golang client.
type MQTT struct {
	client mqtt.Client

	onSubAck  func(packetID uint16)
	onMessage func(topic string, payload []byte)
}

// NewMQTT creates an unconnected MQTT transport for the given client id.
func NewMQTT(clientID string) (*MQTT, error) {
	return &MQTT{}, nil
}

func (t *MQTT) Connect(ctx context.Context, addr string, port uint16, timeout time.Duration) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", addr, port)).
		SetConnectTimeout(timeout).
		SetAutoReconnect(false)

	opts.SetDefaultPublishHandler(func(c mqtt.Client, msg mqtt.Message) {
		if t.onMessage != nil {
			t.onMessage(msg.Topic(), msg.Payload())
		}
	})

	t.client = mqtt.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("transport: connect timed out")
	}
	return token.Error()
}

func (t *MQTT) Subscribe(ctx context.Context, topic string) (uint16, error) {
	token := t.client.Subscribe(topic, 0, func(c mqtt.Client, msg mqtt.Message) {
		if t.onMessage != nil {
			t.onMessage(msg.Topic(), msg.Payload())
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return 0, err
	}
	if t.onSubAck != nil {
		t.onSubAck(0)
	}
	return 0, nil
}

func (t *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	token := t.client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

func (t *MQTT) SetCallbacks(onSubAck func(packetID uint16), onMessage func(topic string, payload []byte)) {
	t.onSubAck = onSubAck
	t.onMessage = onMessage
}

func (t *MQTT) Disconnect() {
	if t.client != nil {
		t.client.Disconnect(250)
	}
}
