package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameValid(t *testing.T) {
	frame, ferr := parseFrame([]byte(`{"action":"ping","request_id":114514,"data":{"x":1}}`))
	require.Nil(t, ferr)
	assert.Equal(t, "ping", frame.Action)
	assert.Equal(t, 114514, frame.RequestID)
	assert.JSONEq(t, `{"x":1}`, string(frame.Data))
}

func TestParseFrameDefaultsRequestIDToZero(t *testing.T) {
	frame, ferr := parseFrame([]byte(`{"action":"ping"}`))
	require.Nil(t, ferr)
	assert.Equal(t, 0, frame.RequestID)
}

func TestParseFrameRejects(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantMessage   string
		wantRequestID int
	}{
		{"truncated json", `{"action":`, "Malformed JSON content", 0},
		{"json null", `null`, "Malformed JSON content", 0},
		{"array body", `[1,2,3]`, "Invalid JSON content", 0},
		{"string body", `"ping"`, "Invalid JSON content", 0},
		{"string request_id", `{"action":"ping","request_id":"7"}`, "Invalid request_id", 0},
		{"fractional request_id", `{"action":"ping","request_id":1.5}`, "Invalid request_id", 0},
		{"whole float request_id", `{"action":"ping","request_id":7.0}`, "Invalid request_id", 0},
		{"exponent request_id", `{"action":"ping","request_id":1e2}`, "Invalid request_id", 0},
		{"null request_id", `{"action":"ping","request_id":null}`, "Invalid request_id", 0},
		{"missing action", `{"request_id":7}`, "No action specified", 0},
		{"numeric action", `{"action":5,"request_id":7}`, "Invalid action type", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ferr := parseFrame([]byte(tt.raw))
			require.NotNil(t, ferr)
			assert.Equal(t, 400, ferr.code)
			assert.Equal(t, tt.wantMessage, ferr.message)
			assert.Equal(t, tt.wantRequestID, ferr.requestID)
		})
	}
}
