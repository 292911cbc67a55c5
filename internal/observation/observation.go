// Package observation implements the Observation entity: one timestamped
// sensor sample set, together with its bit-exact wire JSON representation.
// The sentinel value -99 that the original firmware used on its wire and in
// its C structs never appears in this package: absent readings are plain nil
// pointers in memory and JSON null on the wire.
package observation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Observation is one sample set. A nil field means the corresponding sensor
// could not be read this wake; it serializes as JSON null rather than the
// sentinel -99 used on the original firmware's wire.
type Observation struct {
	Time           time.Time
	AirTemp        *float64 // degrees Celsius
	RelHumidity    *float64 // percent
	BatteryVoltage *float64 // volts
}

// wireObservation mirrors the bit-exact key order of the wire format:
//
//	{"session_id":<int>,"time":"YYYY-MM-DDTHH:MM:SSZ","airt":<%.1f|null>,"relh":<%.1f|null>,"batv":<%.2f|null>}
type wireObservation struct {
	SessionID int             `json:"session_id"`
	Time      string          `json:"time"`
	AirTemp   json.RawMessage `json:"airt"`
	RelHum    json.RawMessage `json:"relh"`
	BatteryV  json.RawMessage `json:"batv"`
}

// Serialize renders obs as the exact JSON form the logging service expects,
// tagged with the stream's current session/stream id.
func Serialize(obs Observation, sessionID int) ([]byte, error) {
	w := wireObservation{
		SessionID: sessionID,
		Time:      obs.Time.UTC().Format("2006-01-02T15:04:05Z"),
		AirTemp:   formatScalar(obs.AirTemp, 1),
		RelHum:    formatScalar(obs.RelHumidity, 1),
		BatteryV:  formatScalar(obs.BatteryVoltage, 2),
	}
	// encoding/json marshals struct fields in declaration order, which is
	// what gives us the bit-exact key order the wire format requires.
	return json.Marshal(w)
}

func formatScalar(v *float64, precision int) json.RawMessage {
	if v == nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(fmt.Sprintf("%.*f", precision, *v))
}

// Parse reverses Serialize, used by tests and by any adapter that needs to
// read back a previously-serialized observation.
func Parse(data []byte) (Observation, int, error) {
	var w wireObservation
	if err := json.Unmarshal(data, &w); err != nil {
		return Observation{}, 0, fmt.Errorf("observation: invalid json: %w", err)
	}

	t, err := time.Parse("2006-01-02T15:04:05Z", w.Time)
	if err != nil {
		return Observation{}, 0, fmt.Errorf("observation: invalid time: %w", err)
	}

	obs := Observation{Time: t}
	obs.AirTemp, err = parseScalar(w.AirTemp)
	if err != nil {
		return Observation{}, 0, err
	}
	obs.RelHumidity, err = parseScalar(w.RelHum)
	if err != nil {
		return Observation{}, 0, err
	}
	obs.BatteryVoltage, err = parseScalar(w.BatteryV)
	if err != nil {
		return Observation{}, 0, err
	}

	return obs, w.SessionID, nil
}

func parseScalar(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("observation: invalid scalar %q: %w", raw, err)
	}
	return &v, nil
}
