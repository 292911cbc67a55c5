// Package protocol implements ProtocolClient: a thin request/response layer
// above a pub/sub Transport that provides exactly-one-in-flight,
// correlation-by-id, bounded-time call semantics.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/henryshunt/psn-node-go/internal/constants"
	"github.com/henryshunt/psn-node-go/internal/corestate"
	"github.com/henryshunt/psn-node-go/internal/instructions"
	"github.com/henryshunt/psn-node-go/internal/logging"
)

// Kind identifies which request is outstanding.
type Kind int

const (
	KindNone Kind = iota
	KindSubscribe
	KindInstructions
	KindObservation
)

func (k Kind) String() string {
	switch k {
	case KindSubscribe:
		return "Subscribe"
	case KindInstructions:
		return "Instructions"
	case KindObservation:
		return "Observation"
	default:
		return "None"
	}
}

// InboundTopic is the wildcard subscription the node subscribes to once per
// power cycle; every response (to any request kind) arrives on some subtopic
// of it.
func InboundTopic(mac string) string { return fmt.Sprintf("nodes/%s/inbound/#", mac) }

// OutboundTopic is where get_instructions requests are published.
func OutboundTopic(mac string, corrID uint16) string {
	return fmt.Sprintf("nodes/%s/outbound/%d", mac, corrID)
}

// ReportsTopic is where observation deliveries are published.
func ReportsTopic(mac string, corrID uint16) string {
	return fmt.Sprintf("nodes/%s/reports/%d", mac, corrID)
}

// Client is a single-threaded-cooperative request/response layer over a
// Transport. Only one request may be outstanding at a time; the transport's
// background IO task delivers responses via the small set of fields guarded
// by mu, and Client's exported methods block the caller (sleeping between
// fixed-cadence polls) until a response arrives or the deadline expires.
type Client struct {
	transport corestate.Transport
	mac       string
	logger    *logging.Logger

	poll time.Duration

	mu              sync.Mutex
	awaiting        bool
	kind            Kind
	corrID          uint16 // outstanding correlation id (Instructions/Observation)
	subPacket       uint16 // outstanding subscribe packet id
	subPacketKnown  bool   // subPacket has been assigned the id Subscribe() returned
	subAckSeen      bool   // an onSubAck fired before subPacketKnown, e.g. a synchronous transport
	pendingSubAckID uint16 // packet id carried by a subAckSeen ack, for matching once subPacketKnown
	respBody        []byte
	respReady       bool
	subAcked        bool

	nextCorrID uint16 // monotonic counter; persists across sleep, resets on cold boot
}

// NewClient creates a protocol client over transport for the given device
// MAC, seeding its correlation-id counter from the persisted value (zero on
// cold boot).
func NewClient(transport corestate.Transport, mac string, corrIDCounter uint16) *Client {
	c := &Client{
		transport:  transport,
		mac:        mac,
		logger:     logging.Default().With("component", "protocol"),
		poll:       constants.PollInterval,
		nextCorrID: corrIDCounter,
	}
	transport.SetCallbacks(c.onSubAck, c.onMessage)
	return c
}

// CorrIDCounter returns the current correlation-id counter, for the
// orchestrator to persist back into PersistentContext after the wake.
func (c *Client) CorrIDCounter() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextCorrID
}

// onSubAck may fire synchronously from inside transport.Subscribe, before
// Subscribe() has learned the packet id it returned, so the match against
// subPacket is deferred to whichever of the two happens second.
func (c *Client) onSubAck(packetID uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.awaiting || c.kind != KindSubscribe {
		return
	}
	c.pendingSubAckID = packetID
	c.subAckSeen = true
	if c.subPacketKnown && packetID == c.subPacket {
		c.subAcked = true
	}
}

func (c *Client) onMessage(topic string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.awaiting || (c.kind != KindInstructions && c.kind != KindObservation) {
		return
	}
	corrID, ok := trailingCorrID(topic)
	if !ok || corrID != c.corrID {
		// Correlation mismatch: discarded without side effect.
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.respBody = cp
	c.respReady = true
}

func trailingCorrID(topic string) (uint16, bool) {
	idx := strings.LastIndexByte(topic, '/')
	if idx < 0 || idx+1 >= len(topic) {
		return 0, false
	}
	v, err := strconv.ParseUint(topic[idx+1:], 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// Subscribe subscribes to the node's inbound wildcard topic and waits for the
// transport-level subscribe acknowledgement, up to timeout.
func (c *Client) Subscribe(ctx context.Context, timeout time.Duration) (corestate.ProtocolResult, error) {
	c.mu.Lock()
	if c.awaiting {
		c.mu.Unlock()
		return corestate.ResultFail, fmt.Errorf("protocol: request already in flight (%s)", c.kind)
	}
	// The request must be marked outstanding before transport.Subscribe is
	// called: both InProcess and MQTT invoke onSubAck synchronously from
	// inside Subscribe(), before the packet id it returns is known here.
	c.awaiting = true
	c.kind = KindSubscribe
	c.subAcked = false
	c.subPacketKnown = false
	c.subAckSeen = false
	c.mu.Unlock()

	packetID, err := c.transport.Subscribe(ctx, InboundTopic(c.mac))
	if err != nil {
		c.mu.Lock()
		c.awaiting = false
		c.kind = KindNone
		c.mu.Unlock()
		return corestate.ResultFail, err
	}

	c.mu.Lock()
	c.subPacket = packetID
	c.subPacketKnown = true
	if c.subAckSeen && c.pendingSubAckID == packetID {
		c.subAcked = true
	}
	c.mu.Unlock()

	acked := c.wait(ctx, timeout, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.subAcked
	})

	c.mu.Lock()
	c.awaiting = false
	c.kind = KindNone
	c.mu.Unlock()

	if !acked {
		c.logger.Warn("subscribe timed out", "mac", c.mac, "timeout", timeout)
		return corestate.ResultTimeout, nil
	}
	return corestate.ResultSuccess, nil
}

// GetInstructions publishes "get_session" on the outbound topic and waits for
// a response, up to timeout.
func (c *Client) GetInstructions(ctx context.Context, timeout time.Duration) (instructions.Instructions, corestate.ProtocolResult, error) {
	corrID, err := c.beginRequest(ctx, KindInstructions)
	if err != nil {
		return instructions.Instructions{}, corestate.ResultFail, err
	}

	if err := c.transport.Publish(ctx, OutboundTopic(c.mac, corrID), []byte("get_session")); err != nil {
		c.endRequest()
		return instructions.Instructions{}, corestate.ResultFail, err
	}

	body, ok := c.awaitResponse(ctx, timeout)
	c.endRequest()
	if !ok {
		return instructions.Instructions{}, corestate.ResultFail, nil
	}

	text := strings.TrimSpace(string(body))
	if text == "no_session" {
		return instructions.Instructions{}, corestate.ResultNoSession, nil
	}
	ins, err := instructions.Parse(body)
	if err != nil {
		c.logger.Warn("malformed get_instructions response", "error", err)
		return instructions.Instructions{}, corestate.ResultFail, nil
	}
	return ins, corestate.ResultSuccess, nil
}

// SendObservation publishes an already-serialized observation on the reports
// topic and waits for a response, up to timeout. A response may piggy-back
// fresh Instructions, returned non-nil only when it parses and validates.
func (c *Client) SendObservation(ctx context.Context, body []byte, timeout time.Duration) (corestate.ProtocolResult, *instructions.Instructions, error) {
	corrID, err := c.beginRequest(ctx, KindObservation)
	if err != nil {
		return corestate.ResultFail, nil, err
	}

	if err := c.transport.Publish(ctx, ReportsTopic(c.mac, corrID), body); err != nil {
		c.endRequest()
		return corestate.ResultFail, nil, err
	}

	resp, ok := c.awaitResponse(ctx, timeout)
	c.endRequest()
	if !ok {
		return corestate.ResultFail, nil, nil
	}

	text := strings.TrimSpace(string(resp))
	switch text {
	case "ok":
		return corestate.ResultSuccess, nil, nil
	case "no_session":
		return corestate.ResultNoSession, nil, nil
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(resp, &fields) == nil {
		recognized := false
		for _, key := range []string{"session", "session_id", "stream_id", "streamId", "interval", "batch_size"} {
			if _, ok := fields[key]; ok {
				recognized = true
			}
		}
		if recognized {
			ins, err := instructions.Parse(resp)
			if err != nil {
				// Recognizable instructions payload that fails validation: treat
				// the delivery as Success but do not replace the active
				// Instructions.
				c.logger.Warn("observation response carried invalid instructions", "error", err)
				return corestate.ResultSuccess, nil, nil
			}
			return corestate.ResultSuccess, &ins, nil
		}
	}
	return corestate.ResultFail, nil, nil
}

func (c *Client) beginRequest(ctx context.Context, kind Kind) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.awaiting {
		return 0, fmt.Errorf("protocol: request already in flight (%s)", c.kind)
	}
	corrID := c.nextCorrID
	c.nextCorrID++
	c.awaiting = true
	c.kind = kind
	c.corrID = corrID
	c.respReady = false
	c.respBody = nil
	return corrID, nil
}

func (c *Client) endRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaiting = false
	c.kind = KindNone
}

func (c *Client) awaitResponse(ctx context.Context, timeout time.Duration) ([]byte, bool) {
	ready := c.wait(ctx, timeout, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.respReady
	})
	if !ready {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.respBody, true
}

// wait polls cond at c.poll cadence until it reports true, ctx is done, or
// timeout elapses. This is the orchestrator's "poll these fields after each
// request" loop folded into the client so callers just
// block; no unbounded wait is ever taken.
func (c *Client) wait(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if cond() {
				return true
			}
			if time.Now().After(deadline) {
				return false
			}
		}
	}
}

// Reset clears any in-flight request without waiting for it, for a caller
// that decides the transport is no longer usable: a disconnect while
// Awaiting resolves the pending request as Fail and frees the slot. The
// orchestrator does not call it; it builds a fresh Client on every wake.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaiting = false
	c.kind = KindNone
	c.respReady = false
	c.respBody = nil
}
