package sscma

import (
	"encoding/json"
	"fmt"
)

// Frame is one decoded unit of the wire protocol. Data carries the raw,
// name-dependent payload; it is decoded further only where a caller knows
// the expected shape.
type Frame struct {
	Type FrameType       `json:"type"`
	Name string          `json:"name"`
	Code Code            `json:"code"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeError reports that a byte span could not be parsed as a frame.
// It is distinct from a timeout: the line carried bytes, they just were not
// valid JSON, so callers may retry immediately instead of re-waiting.
type DecodeError struct {
	Text string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sscma: decode frame %.64q: %v", e.Text, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeFrame parses one assembled frame. The input is the trimmed text
// between the reply lead and the end marker, inclusive of the braces.
func DecodeFrame(text string) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		return nil, &DecodeError{Text: text, Err: err}
	}
	return &f, nil
}

// DataString returns the payload as a string if it is a JSON string.
func (f *Frame) DataString() (string, bool) {
	var s string
	if len(f.Data) == 0 || json.Unmarshal(f.Data, &s) != nil {
		return "", false
	}
	return s, true
}

// DataObject unmarshals the payload into v. It returns false when the frame
// has no payload or the payload does not fit v's shape.
func (f *Frame) DataObject(v any) bool {
	if len(f.Data) == 0 {
		return false
	}
	return json.Unmarshal(f.Data, v) == nil
}
