// Package control defines the operator-to-robot command payload and its
// wire codec. The payload travels inside an authenticated wire.Frame's
// body as JSON, the way go-ampio-server's internal/cnl frames carry a
// CAN ID + length + data blob — here the "data blob" is a small tagged
// variant instead of fixed-width CAN bytes, so plain encoding/json
// replaces cnl's fixed binary layout.
package control

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the Command variant. Unlike the other kinds,
// KindUnknown is never produced by an operator; Decode manufactures it
// for any "type" value it doesn't recognize so callers can log and drop
// without treating the frame as malformed.
type Kind string

const (
	KindEmergencyStop Kind = "emergency_stop"
	KindPing          Kind = "ping"
	KindClampOpen     Kind = "clamp_open"
	KindClampClose    Kind = "clamp_close"
	KindCameraSelect  Kind = "camera_select"
	KindInputEvent    Kind = "input_event"
	KindSetpoint      Kind = "setpoint"
	KindUnknown       Kind = "unknown"
)

// Command is the decoded form of every control payload. Only the fields
// relevant to Kind are populated; the rest carry their zero value.
type Command struct {
	Kind Kind `json:"type"`

	// EmergencyStop
	Engage  bool   `json:"engage,omitempty"`
	Confirm string `json:"confirm,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// Ping
	Ts  float64 `json:"ts,omitempty"`
	Seq uint64  `json:"seq,omitempty"`

	// CameraSelect
	CameraID uint8 `json:"camera_id,omitempty"`

	// InputEvent — treated as an opaque routed command; the exact
	// vocabulary of Kind/Index/Value belongs to the Actuator collaborator.
	InputKind  string  `json:"input_kind,omitempty"`
	InputIndex int     `json:"input_index,omitempty"`
	InputValue float64 `json:"input_value,omitempty"`

	// Setpoint — scalar setpoints share one shape: a name and a value.
	SetpointName  string  `json:"setpoint_name,omitempty"`
	SetpointValue float64 `json:"setpoint_value,omitempty"`

	// RawType preserves the original "type" string when Kind is
	// KindUnknown, so the drop can be logged with useful context.
	RawType string `json:"-"`
}

var knownKinds = map[Kind]bool{
	KindEmergencyStop: true,
	KindPing:          true,
	KindClampOpen:     true,
	KindClampClose:    true,
	KindCameraSelect:  true,
	KindInputEvent:    true,
	KindSetpoint:      true,
}

// Decode parses a JSON control payload. A syntactically invalid payload
// is a real decode error; a syntactically valid payload naming an
// unrecognized "type" decodes successfully to KindUnknown, matching the
// policy that unknown is not the same failure class as malformed.
func Decode(payload []byte) (Command, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Command{}, fmt.Errorf("control: decode: %w", err)
	}

	kind := Kind(probe.Type)
	if !knownKinds[kind] {
		return Command{Kind: KindUnknown, RawType: probe.Type}, nil
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("control: decode %s: %w", kind, err)
	}
	return cmd, nil
}

// Encode serializes cmd back to its wire JSON form.
func Encode(cmd Command) ([]byte, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("control: encode %s: %w", cmd.Kind, err)
	}
	return b, nil
}
