package instructions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAcceptsAllFieldSpellings(t *testing.T) {
	cases := []string{
		`{"session_id":7,"interval":5,"batch_size":3}`,
		`{"session":7,"interval":5,"batch_size":3}`,
		`{"stream_id":7,"interval":5,"batch_size":3}`,
		`{"streamId":7,"interval":5,"batch_size":3}`,
	}
	for _, body := range cases {
		ins, err := Parse([]byte(body))
		require.NoError(t, err, body)
		require.Equal(t, Instructions{StreamID: 7, IntervalMinutes: 5, BatchSize: 3}, ins)
	}
}

func TestParseRejectsMissingStreamID(t *testing.T) {
	_, err := Parse([]byte(`{"interval":5,"batch_size":3}`))
	require.Error(t, err)
}

func TestParseRejectsDisallowedInterval(t *testing.T) {
	_, err := Parse([]byte(`{"session_id":1,"interval":3,"batch_size":3}`))
	require.Error(t, err)
}

func TestParseRejectsOutOfRangeBatchSize(t *testing.T) {
	_, err := Parse([]byte(`{"session_id":1,"interval":5,"batch_size":0}`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"session_id":1,"interval":5,"batch_size":206}`))
	require.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	require.Error(t, err)
}

func TestParseRejectsNegativeStreamID(t *testing.T) {
	_, err := Parse([]byte(`{"session_id":-1,"interval":5,"batch_size":3}`))
	require.Error(t, err)
}

func TestValidateAllowsEveryAllowListEntry(t *testing.T) {
	for _, interval := range []int{1, 2, 5, 10, 15, 20, 30} {
		err := Validate(Instructions{StreamID: 1, IntervalMinutes: interval, BatchSize: 1})
		require.NoError(t, err)
	}
}

func TestValidateBatchSizeBoundary(t *testing.T) {
	require.NoError(t, Validate(Instructions{StreamID: 1, IntervalMinutes: 1, BatchSize: 205}))
	require.Error(t, Validate(Instructions{StreamID: 1, IntervalMinutes: 1, BatchSize: 206}))
}
