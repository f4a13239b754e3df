package sscma

import (
	"encoding/base64"
	"encoding/json"
)

// Box is one detected object. Coordinates are the box center; W and H are
// full width and height in pixels.
type Box struct {
	X      int
	Y      int
	W      int
	H      int
	Score  int
	Target int
}

// Left returns the x coordinate of the box's left edge.
func (b Box) Left() float64 { return float64(b.X) - float64(b.W)/2 }

// Right returns the x coordinate of the box's right edge.
func (b Box) Right() float64 { return float64(b.X) + float64(b.W)/2 }

// Top returns the y coordinate of the box's top edge.
func (b Box) Top() float64 { return float64(b.Y) - float64(b.H)/2 }

// Bottom returns the y coordinate of the box's bottom edge.
func (b Box) Bottom() float64 { return float64(b.Y) + float64(b.H)/2 }

// Class is one classification result.
type Class struct {
	Score  int
	Target int
}

// Point is one detected point.
type Point struct {
	X      int
	Y      int
	Score  int
	Target int
}

// Keypoint is a detected box together with its skeleton points.
type Keypoint struct {
	Box    Box
	Points []Point
}

// Perf holds the per-stage inference timings in milliseconds.
type Perf struct {
	Preprocess  int
	Inference   int
	Postprocess int
}

// Results is the current inference result set. Each field is replaced or
// cleared independently by every applied INVOKE/SAMPLE event, so no field is
// ever left stale from a previous invocation.
type Results struct {
	Boxes     []Box
	Classes   []Class
	Points    []Point
	Keypoints []Keypoint
	Perf      Perf
	Image     []byte
}

// eventData mirrors the payload of an inference event. Fields are kept raw
// so each can be validated independently.
type eventData struct {
	Perf      json.RawMessage `json:"perf"`
	Boxes     json.RawMessage `json:"boxes"`
	Classes   json.RawMessage `json:"classes"`
	Points    json.RawMessage `json:"points"`
	Keypoints json.RawMessage `json:"keypoints"`
	Image     json.RawMessage `json:"image"`
}

// Apply materializes an inference event into the result set. Frames that are
// not INVOKE or SAMPLE events, and events without a payload, leave the
// results untouched. For an inference event every field is refreshed: a
// payload field that is absent or not the expected shape clears the
// corresponding result rather than leaving the previous snapshot visible.
func (r *Results) Apply(f *Frame) {
	if f.Type != TypeEvent {
		return
	}
	if f.Name != EventInvoke && f.Name != EventSample {
		return
	}
	var data eventData
	if !f.DataObject(&data) {
		return
	}

	r.Perf = Perf{}
	if p := decodeTuples(data.Perf, 3); len(p) > 0 {
		r.Perf = Perf{Preprocess: p[0][0], Inference: p[0][1], Postprocess: p[0][2]}
	} else if p, ok := decodeTuple(data.Perf, 3); ok {
		r.Perf = Perf{Preprocess: p[0], Inference: p[1], Postprocess: p[2]}
	}

	r.Boxes = nil
	for _, t := range decodeTuples(data.Boxes, 6) {
		r.Boxes = append(r.Boxes, boxFromTuple(t))
	}

	r.Classes = nil
	for _, t := range decodeTuples(data.Classes, 2) {
		r.Classes = append(r.Classes, Class{Score: t[0], Target: t[1]})
	}

	r.Points = nil
	for _, t := range decodeTuples(data.Points, 4) {
		r.Points = append(r.Points, pointFromTuple(t))
	}

	r.Keypoints = decodeKeypoints(data.Keypoints)

	r.Image = nil
	var b64 string
	if len(data.Image) > 0 && json.Unmarshal(data.Image, &b64) == nil {
		if img, err := base64.StdEncoding.DecodeString(b64); err == nil {
			r.Image = img
		}
	}
}

func boxFromTuple(t []int) Box {
	return Box{X: t[0], Y: t[1], W: t[2], H: t[3], Score: t[4], Target: t[5]}
}

func pointFromTuple(t []int) Point {
	return Point{X: t[0], Y: t[1], Score: t[2], Target: t[3]}
}

// decodeTuple parses raw as a flat integer sequence of at least n elements.
func decodeTuple(raw json.RawMessage, n int) ([]int, bool) {
	var t []int
	if len(raw) == 0 || json.Unmarshal(raw, &t) != nil || len(t) < n {
		return nil, false
	}
	return t, true
}

// decodeTuples parses raw as a sequence of integer tuples, dropping entries
// shorter than n. A field that is not a sequence yields nil.
func decodeTuples(raw json.RawMessage, n int) [][]int {
	var rows [][]int
	if len(raw) == 0 || json.Unmarshal(raw, &rows) != nil {
		return nil
	}
	var out [][]int
	for _, row := range rows {
		if len(row) >= n {
			out = append(out, row)
		}
	}
	return out
}

// decodeKeypoints parses the keypoints field. Each entry is a two-element
// sequence: the box tuple and a sequence of point tuples. Malformed entries
// are dropped; a malformed field clears the result.
func decodeKeypoints(raw json.RawMessage) []Keypoint {
	var entries [][]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil {
		return nil
	}
	var out []Keypoint
	for _, entry := range entries {
		if len(entry) < 2 {
			continue
		}
		boxTuple, ok := decodeTuple(entry[0], 6)
		if !ok {
			continue
		}
		kp := Keypoint{Box: boxFromTuple(boxTuple)}
		for _, t := range decodeTuples(entry[1], 4) {
			kp.Points = append(kp.Points, pointFromTuple(t))
		}
		out = append(out, kp)
	}
	return out
}
