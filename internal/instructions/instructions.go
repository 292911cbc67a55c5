// Package instructions implements the Instructions entity: the server-issued
// triple that tells the orchestrator how often to sample and how many
// observations to batch before transmitting, together with the lenient
// parsing rules the protocol client applies to a get_instructions response.
package instructions

import (
	"encoding/json"
	"fmt"

	"github.com/henryshunt/psn-node-go/internal/constants"
)

// Instructions is the active sampling contract for a stream. It is replaced
// atomically on any successful server exchange and otherwise persists across
// sleep unchanged.
type Instructions struct {
	StreamID        int
	IntervalMinutes int
	BatchSize       int
}

// wireInstructions accepts any of the field-name spellings seen in existing
// servers (session, session_id, stream_id, streamId) rather than picking one.
type wireInstructions struct {
	Session         *int `json:"session"`
	SessionID       *int `json:"session_id"`
	StreamID        *int `json:"stream_id"`
	StreamIDCamel   *int `json:"streamId"`
	IntervalMinutes *int `json:"interval"`
	BatchSize       *int `json:"batch_size"`
}

// Parse decodes and validates a get_instructions response body. It accepts
// any of the stream-id spellings above but otherwise requires every field and
// enforces the interval allow-list and batch-size bound.
func Parse(data []byte) (Instructions, error) {
	var w wireInstructions
	if err := json.Unmarshal(data, &w); err != nil {
		return Instructions{}, fmt.Errorf("instructions: invalid json: %w", err)
	}

	streamID := firstNonNil(w.Session, w.SessionID, w.StreamID, w.StreamIDCamel)
	if streamID == nil {
		return Instructions{}, fmt.Errorf("instructions: missing stream id")
	}
	if *streamID < 0 {
		return Instructions{}, fmt.Errorf("instructions: negative stream id %d", *streamID)
	}

	if w.IntervalMinutes == nil {
		return Instructions{}, fmt.Errorf("instructions: missing interval")
	}
	if w.BatchSize == nil {
		return Instructions{}, fmt.Errorf("instructions: missing batch_size")
	}

	ins := Instructions{
		StreamID:        *streamID,
		IntervalMinutes: *w.IntervalMinutes,
		BatchSize:       *w.BatchSize,
	}
	if err := Validate(ins); err != nil {
		return Instructions{}, err
	}
	return ins, nil
}

func firstNonNil(candidates ...*int) *int {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// Validate reports whether ins satisfies the interval allow-list and
// batch-size bound. A zero-value Instructions is never valid.
func Validate(ins Instructions) error {
	if !allowedInterval(ins.IntervalMinutes) {
		return fmt.Errorf("instructions: interval %d not in allow-list %v", ins.IntervalMinutes, constants.AllowedIntervalMinutes)
	}
	if ins.BatchSize < 1 || ins.BatchSize > constants.RingCapacity {
		return fmt.Errorf("instructions: batch_size %d out of range [1,%d]", ins.BatchSize, constants.RingCapacity)
	}
	if ins.StreamID < 0 {
		return fmt.Errorf("instructions: negative stream id %d", ins.StreamID)
	}
	return nil
}

func allowedInterval(minutes int) bool {
	for _, v := range constants.AllowedIntervalMinutes {
		if v == minutes {
			return true
		}
	}
	return false
}
