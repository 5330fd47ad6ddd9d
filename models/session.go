package models

import (
	// Go Internal Packages
	"encoding/json"
)

// Session event types recorded by the protocol engine.
const (
	EventConnect      = "TCP CONNECT"
	EventSendJSON     = "send-json"
	EventRecvJSON     = "recv-json"
	EventUnhandled    = "Unhandled"
	EventLateFrame    = "late-frame"
	EventInvalidFrame = "invalid-frame"
)

// SessionEvent is one entry of the wire level log a protocol session
// returns to its caller.
type SessionEvent struct {
	Time string          `json:"time"`
	Type string          `json:"type"`
	Note string          `json:"note,omitempty"`
	Hex  string          `json:"hex,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}
