package ws

import (
	"encoding/json"
)

// inboundFrame is a validated client frame envelope.
type inboundFrame struct {
	Action    string
	RequestID int
	Data      json.RawMessage
}

// resultFrame is the success and push envelope. Pushed events carry
// RequestID 0; replies echo the request's id.
type resultFrame struct {
	Action    string      `json:"action"`
	OK        bool        `json:"ok"`
	Data      interface{} `json:"data"`
	RequestID int         `json:"request_id"`
}

// errorFrame rejects one inbound frame without affecting the connection.
type errorFrame struct {
	Action    string `json:"action"`
	OK        bool   `json:"ok"`
	Code      int    `json:"code"`
	Error     string `json:"error"`
	RequestID int    `json:"request_id"`
}

type frameError struct {
	code      int
	requestID int
	message   string
}

// parseFrame validates the raw envelope. request_id is validated before
// action so a bad action can still echo a usable correlation id; frames whose
// envelope cannot be trusted at all are answered with request_id 0.
func parseFrame(raw []byte) (inboundFrame, *frameError) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return inboundFrame{}, &frameError{code: 400, requestID: 0, message: "Malformed JSON content"}
	}
	if decoded == nil {
		return inboundFrame{}, &frameError{code: 400, requestID: 0, message: "Malformed JSON content"}
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return inboundFrame{}, &frameError{code: 400, requestID: 0, message: "Invalid JSON content"}
	}

	// Re-extract the raw tokens so request_id can be held to integer literal
	// syntax and data handed to action handlers undecoded.
	var envelope struct {
		RequestID json.RawMessage `json:"request_id"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return inboundFrame{}, &frameError{code: 400, requestID: 0, message: "Malformed JSON content"}
	}

	requestID := 0
	if v, present := obj["request_id"]; present {
		// Decoding the raw token into an int rejects floats that happen to
		// be whole-valued, like 7.0 or 1e2, along with every non-number.
		if v == nil || json.Unmarshal(envelope.RequestID, &requestID) != nil {
			return inboundFrame{}, &frameError{code: 400, requestID: 0, message: "Invalid request_id"}
		}
	}

	v, present := obj["action"]
	if !present {
		return inboundFrame{}, &frameError{code: 400, requestID: 0, message: "No action specified"}
	}
	action, isString := v.(string)
	if !isString {
		return inboundFrame{}, &frameError{code: 400, requestID: requestID, message: "Invalid action type"}
	}

	return inboundFrame{Action: action, RequestID: requestID, Data: envelope.Data}, nil
}
