// Package protocol defines the gateway WebSocket protocol (version 3):
// the req/res/event frame envelope, the connect handshake payloads, and the
// event names the gateway emits.
package protocol

import "encoding/json"

// ProtocolVersion is the protocol version this client speaks. The client
// offers it as both minProtocol and maxProtocol during the handshake.
const ProtocolVersion = 3

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is the envelope for every message on the wire. Which fields are
// populated depends on Type.
type Frame struct {
	Type string `json:"type"`

	// Request/response correlation id.
	ID string `json:"id,omitempty"`

	// Request fields.
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields.
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	// Event fields. Seq is a per-connection monotonic counter; zero means
	// the event carries no sequence number.
	Event        string        `json:"event,omitempty"`
	Seq          *int64        `json:"seq,omitempty"`
	StateVersion *StateVersion `json:"stateVersion,omitempty"`
}

// ErrorShape represents an error carried in an ok:false response.
type ErrorShape struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// StateVersion tracks server-side state generation counters.
type StateVersion struct {
	Presence int64 `json:"presence,omitempty"`
	Health   int64 `json:"health,omitempty"`
}

// IsRequest reports whether the frame is a request.
func (f *Frame) IsRequest() bool { return f.Type == FrameTypeRequest }

// IsResponse reports whether the frame is a response.
func (f *Frame) IsResponse() bool { return f.Type == FrameTypeResponse }

// IsEvent reports whether the frame is an event.
func (f *Frame) IsEvent() bool { return f.Type == FrameTypeEvent }

// Succeeded reports whether a response frame carries ok:true.
func (f *Frame) Succeeded() bool { return f.OK != nil && *f.OK }

// NewRequest creates a request frame, marshaling params.
func NewRequest(id, method string, params interface{}) (*Frame, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// Decode parses a raw wire message into a Frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ParsePayload parses the frame payload into the given struct.
func (f *Frame) ParsePayload(v interface{}) error {
	if f.Payload == nil {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}
