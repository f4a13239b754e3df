package sscma_test

import (
	"errors"
	"testing"

	"visionlab.dev/visiongw/sscma"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType sscma.FrameType
		wantName string
		wantCode sscma.Code
	}{
		{
			name:     "ID response",
			input:    `{"type":0,"name":"ID","code":0,"data":"ABC123"}`,
			wantType: sscma.TypeResponse,
			wantName: "ID",
			wantCode: sscma.CodeOK,
		},
		{
			name:     "invoke event",
			input:    `{"type":1,"name":"INVOKE","code":0,"data":{"boxes":[[10,20,5,5,90,0]]}}`,
			wantType: sscma.TypeEvent,
			wantName: "INVOKE",
			wantCode: sscma.CodeOK,
		},
		{
			name:     "log line",
			input:    `{"type":2,"name":"AT","code":2,"data":"unknown command"}`,
			wantType: sscma.TypeLog,
			wantName: "AT",
			wantCode: sscma.CodeLog,
		},
		{
			name:     "response without data",
			input:    `{"type":0,"name":"RST","code":0}`,
			wantType: sscma.TypeResponse,
			wantName: "RST",
			wantCode: sscma.CodeOK,
		},
		{
			name:     "device error code",
			input:    `{"type":0,"name":"MODEL","code":5}`,
			wantType: sscma.TypeResponse,
			wantName: "MODEL",
			wantCode: sscma.CodeInvalidArg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := sscma.DecodeFrame(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", f.Type, tt.wantType)
			}
			if f.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", f.Name, tt.wantName)
			}
			if f.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", f.Code, tt.wantCode)
			}
		})
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing closing brace", `{"type":0,"name":"ID","code":0`},
		{"not JSON at all", "garbage on the line"},
		{"empty input", ""},
		{"wrong field type", `{"type":"zero","name":"ID","code":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := sscma.DecodeFrame(tt.input)
			if f != nil {
				t.Error("expected nil frame for malformed input")
			}
			var de *sscma.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		tag  string
		want string
	}{
		{"bare query", "ID?", "", "AT+ID?\r\n"},
		{"command with args", "INVOKE=1,0,0", "", "AT+INVOKE=1,0,0\r\n"},
		{"tagged command", "INVOKE=1,0,0", "T1", "AT+T1@INVOKE=1,0,0\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(sscma.FormatCommand(tt.cmd, tt.tag))
			if got != tt.want {
				t.Errorf("FormatCommand(%q, %q) = %q, want %q", tt.cmd, tt.tag, got, tt.want)
			}
		})
	}
}

func TestBareName(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"INVOKE=1,0,0", "INVOKE"},
		{"INVOKE", "INVOKE"},
		{"ID?", "ID"},
		{"NAME", "NAME"},
		{`ACTION="save_jpeg()"`, "ACTION"},
	}

	for _, tt := range tests {
		if got := sscma.BareName(tt.cmd); got != tt.want {
			t.Errorf("BareName(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestDataString(t *testing.T) {
	f, err := sscma.DecodeFrame(`{"type":0,"name":"ID","code":0,"data":"ABC123"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := f.DataString()
	if !ok || s != "ABC123" {
		t.Errorf("DataString() = %q, %v; want %q, true", s, ok, "ABC123")
	}

	f, err = sscma.DecodeFrame(`{"type":0,"name":"INFO","code":0,"data":{"info":"xyz"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.DataString(); ok {
		t.Error("DataString() should fail for an object payload")
	}
	var obj struct {
		Info string `json:"info"`
	}
	if !f.DataObject(&obj) || obj.Info != "xyz" {
		t.Errorf("DataObject() = %+v, want Info=xyz", obj)
	}
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code sscma.Code
		want string
	}{
		{sscma.CodeOK, "OK"},
		{sscma.CodeTimeout, "TIMEOUT"},
		{sscma.CodeInvalidArg, "INVALID_ARG"},
		{sscma.CodeUnknown, "UNKNOWN"},
		{sscma.Code(42), "code(42)"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%d).String() = %q, want %q", int(tt.code), got, tt.want)
		}
	}
}
