package apiclient

import (
	"bytes"
	"encoding/json"
)

// Envelope is the {success, data, message} wrapper every backend response is
// expected to follow.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e *Envelope) HasData() bool {
	if e == nil {
		return false
	}
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// decodeEnvelope tolerates bodies that are empty, not JSON, or JSON without
// the envelope keys. A body without a "success" key is treated as a bare
// payload and wrapped.
func decodeEnvelope(raw []byte) *Envelope {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &Envelope{Success: true}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		if json.Valid(raw) {
			// Bare array or scalar payload.
			return &Envelope{Success: true, Data: json.RawMessage(raw)}
		}
		return &Envelope{Success: true}
	}

	if _, ok := fields["success"]; !ok {
		if _, ok := fields["data"]; !ok {
			return &Envelope{Success: true, Data: json.RawMessage(raw)}
		}
	}

	env := &Envelope{Success: true}
	if s, ok := fields["success"]; ok {
		_ = json.Unmarshal(s, &env.Success)
	}
	if d, ok := fields["data"]; ok {
		env.Data = d
	}
	if m, ok := fields["message"]; ok {
		_ = json.Unmarshal(m, &env.Message)
	}
	return env
}
