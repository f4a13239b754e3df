package sscma_test

import (
	"bytes"
	"testing"

	"visionlab.dev/visiongw/sscma"
)

func mustFrame(t *testing.T, text string) *sscma.Frame {
	t.Helper()
	f, err := sscma.DecodeFrame(text)
	if err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	return f
}

func TestApplyBoxes(t *testing.T) {
	var r sscma.Results
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"boxes":[[10,20,5,5,90,0]]}}`))

	if len(r.Boxes) != 1 {
		t.Fatalf("got %d boxes, want 1", len(r.Boxes))
	}
	b := r.Boxes[0]
	if b.X != 10 || b.Y != 20 || b.W != 5 || b.H != 5 || b.Score != 90 || b.Target != 0 {
		t.Errorf("unexpected box: %+v", b)
	}
	if b.Left() != 7.5 || b.Right() != 12.5 || b.Top() != 17.5 || b.Bottom() != 22.5 {
		t.Errorf("edges = %v/%v/%v/%v, want 7.5/12.5/17.5/22.5",
			b.Left(), b.Right(), b.Top(), b.Bottom())
	}
}

func TestApplyClearsAbsentFields(t *testing.T) {
	var r sscma.Results
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"boxes":[[10,20,5,5,90,0]],"classes":[[80,1]]}}`))
	if len(r.Boxes) != 1 || len(r.Classes) != 1 {
		t.Fatalf("setup failed: %+v", r)
	}

	// Next event carries only perf; boxes and classes must be cleared even
	// though perf is present and valid.
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"perf":[7,120,3]}}`))
	if len(r.Boxes) != 0 {
		t.Errorf("boxes not cleared: %+v", r.Boxes)
	}
	if len(r.Classes) != 0 {
		t.Errorf("classes not cleared: %+v", r.Classes)
	}
	want := sscma.Perf{Preprocess: 7, Inference: 120, Postprocess: 3}
	if r.Perf != want {
		t.Errorf("perf = %+v, want %+v", r.Perf, want)
	}
}

func TestApplyPerfNestedShape(t *testing.T) {
	// Some firmware revisions wrap the perf tuple in an outer sequence.
	var r sscma.Results
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"perf":[[8,365,1]]}}`))
	want := sscma.Perf{Preprocess: 8, Inference: 365, Postprocess: 1}
	if r.Perf != want {
		t.Errorf("perf = %+v, want %+v", r.Perf, want)
	}
}

func TestApplyWrongShapeClears(t *testing.T) {
	var r sscma.Results
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"points":[[1,2,3,4]]}}`))
	if len(r.Points) != 1 {
		t.Fatalf("setup failed: %+v", r.Points)
	}

	// points present but not a sequence of tuples
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"points":"nope"}}`))
	if len(r.Points) != 0 {
		t.Errorf("points not cleared on wrong shape: %+v", r.Points)
	}
}

func TestApplyKeypoints(t *testing.T) {
	var r sscma.Results
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"keypoints":[[[50,60,10,20,95,0],[[51,61,90,0],[52,62,85,1]]]]}}`))

	if len(r.Keypoints) != 1 {
		t.Fatalf("got %d keypoints, want 1", len(r.Keypoints))
	}
	kp := r.Keypoints[0]
	if kp.Box.X != 50 || kp.Box.Score != 95 {
		t.Errorf("unexpected keypoint box: %+v", kp.Box)
	}
	if len(kp.Points) != 2 || kp.Points[1].X != 52 || kp.Points[1].Target != 1 {
		t.Errorf("unexpected keypoint points: %+v", kp.Points)
	}
}

func TestApplyImage(t *testing.T) {
	var r sscma.Results
	// "aGVsbG8=" is base64 for "hello"
	r.Apply(mustFrame(t, `{"type":1,"name":"SAMPLE","code":0,"data":{"image":"aGVsbG8="}}`))
	if !bytes.Equal(r.Image, []byte("hello")) {
		t.Errorf("image = %q, want %q", r.Image, "hello")
	}

	r.Apply(mustFrame(t, `{"type":1,"name":"SAMPLE","code":0,"data":{"perf":[1,2,3]}}`))
	if r.Image != nil {
		t.Errorf("image not cleared: %q", r.Image)
	}
}

func TestApplyIgnoresOtherFrames(t *testing.T) {
	var r sscma.Results
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0,"data":{"boxes":[[10,20,5,5,90,0]]}}`))

	// Response frames, unrelated events and events without data must leave
	// the result set untouched.
	r.Apply(mustFrame(t, `{"type":0,"name":"INVOKE","code":0,"data":{"boxes":[]}}`))
	r.Apply(mustFrame(t, `{"type":1,"name":"SUPERVISOR","code":0,"data":{"boxes":[]}}`))
	r.Apply(mustFrame(t, `{"type":1,"name":"INVOKE","code":0}`))

	if len(r.Boxes) != 1 {
		t.Errorf("boxes changed by non-result frame: %+v", r.Boxes)
	}
}
