package proto

import (
	"encoding/json"
	"fmt"
)

// Frame is the envelope for every message exchanged with the core.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	TypeAuth       = "auth"
	TypeAuthResult = "auth_result"
	TypeSubscribe  = "subscribe"
	TypeLine       = "line"
	TypeCommand    = "command"
	TypeControl    = "control"

	ControlPing    = "ping"
	ControlPong    = "pong"
	ControlSession = "session"
	ControlBuffer  = "buffer"

	LineMessage = "message"
	LineJoin    = "join"
	LinePart    = "part"
	LineNotice  = "notice"
	LineTopic   = "topic"
)

// NewFrame marshals data into a frame of the given type.
func NewFrame(typ string, data any) (Frame, error) {
	if data == nil {
		return Frame{Type: typ}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return Frame{Type: typ, Data: raw}, nil
}

// Decode unmarshals the frame payload into v. Unknown fields are ignored.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no data", f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return nil
}

// AuthData is sent by the client right after connecting.
// Either Pass or Token is set.
type AuthData struct {
	User     string `json:"user"`
	Pass     string `json:"pass,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// AuthResultData is the core's answer to AuthData.
type AuthResultData struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Target addresses a buffer on the wire.
type Target struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
}

// SubscribeData asks the core to stream deltas for the listed targets.
type SubscribeData struct {
	Targets []Target `json:"targets"`
}

// LineData is one buffer line on the wire.
type LineData struct {
	TS     int64  `json:"ts"`
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	User   string `json:"user,omitempty"`
	Text   string `json:"text,omitempty"`
	Reason string `json:"reason,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// LineDeltaData appends a line to a buffer.
type LineDeltaData struct {
	Target Target   `json:"target"`
	Line   LineData `json:"line"`
}

// CommandData is a user action forwarded to the core.
type CommandData struct {
	ID     string `json:"id,omitempty"`
	Target Target `json:"target"`
	Text   string `json:"text"`
}

// ControlData carries keepalives and session metadata.
type ControlData struct {
	Kind   string  `json:"kind"`
	Target *Target `json:"target,omitempty"`
	Name   string  `json:"name,omitempty"`
	Value  string  `json:"value,omitempty"`
}
