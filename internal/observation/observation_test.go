package observation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestSerializeKeyOrderAndNulls(t *testing.T) {
	obs := Observation{
		Time:        time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC),
		AirTemp:     f(21.456),
		RelHumidity: nil,
		BatteryVoltage: f(3.7),
	}

	data, err := Serialize(obs, 7)
	require.NoError(t, err)

	want := `{"session_id":7,"time":"2024-06-01T10:05:00Z","airt":21.5,"relh":null,"batv":3.70}`
	require.JSONEq(t, want, string(data))
	require.Equal(t, want, string(data)) // key order matters, not just JSON-equivalence
}

func TestSerializeAllSentinel(t *testing.T) {
	obs := Observation{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	data, err := Serialize(obs, 1)
	require.NoError(t, err)
	require.Equal(t, `{"session_id":1,"time":"2024-01-01T00:00:00Z","airt":null,"relh":null,"batv":null}`, string(data))
}

func TestRoundTrip(t *testing.T) {
	obs := Observation{
		Time:           time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC),
		AirTemp:        f(21.5),
		RelHumidity:    f(55.0),
		BatteryVoltage: f(3.70),
	}

	data, err := Serialize(obs, 42)
	require.NoError(t, err)

	got, sessionID, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, 42, sessionID)
	require.True(t, got.Time.Equal(obs.Time))
	require.InDelta(t, *obs.AirTemp, *got.AirTemp, 0.01)
	require.InDelta(t, *obs.RelHumidity, *got.RelHumidity, 0.01)
	require.InDelta(t, *obs.BatteryVoltage, *got.BatteryVoltage, 0.01)
}

func TestParseNullFieldsRoundTrip(t *testing.T) {
	data := []byte(`{"session_id":3,"time":"2024-01-01T00:00:00Z","airt":null,"relh":null,"batv":null}`)
	obs, sessionID, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, 3, sessionID)
	require.Nil(t, obs.AirTemp)
	require.Nil(t, obs.RelHumidity)
	require.Nil(t, obs.BatteryVoltage)
}
