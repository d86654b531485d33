package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDRoundTripsNumericID(t *testing.T) {
	var id RequestID
	require.NoError(t, id.UnmarshalJSON([]byte(`42`)))
	b, err := id.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "42", string(b))
	assert.Equal(t, "42", id.String())
}

func TestRequestIDRoundTripsStringID(t *testing.T) {
	var id RequestID
	require.NoError(t, id.UnmarshalJSON([]byte(`"abc-123"`)))
	assert.Equal(t, "abc-123", id.String())
}

func TestRequestIDZeroValueMarshalsNull(t *testing.T) {
	var id RequestID
	b, err := id.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
	assert.Equal(t, "", id.String())
}

func TestResponseMessageRoundTrip(t *testing.T) {
	var id RequestID
	require.NoError(t, id.UnmarshalJSON([]byte(`"r1"`)))
	resp := ResponseMessage{JsonRPC: "2.0", ID: id, Result: json.RawMessage(`{"ok":true}`)}
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded ResponseMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "r1", decoded.ID.String())
}
