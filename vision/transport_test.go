package vision

import (
	"context"
	"testing"

	"go.bug.st/serial"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	if err == nil {
		t.Error("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "vision: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Error("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "vision: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_DefaultMode(t *testing.T) {
	// Opening a nonexistent port must fail, but only after argument
	// validation passes; this exercises the default mode path.
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	transport, err := dialer.Dial(context.Background())
	if err == nil {
		t.Error("expected error for nonexistent port")
	}
	if transport != nil {
		t.Error("expected nil transport for nonexistent port")
	}
}

func TestSerialDialer_CustomMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
		Mode:     &serial.Mode{BaudRate: 115200},
	}

	transport, err := dialer.Dial(context.Background())
	if err == nil {
		t.Error("expected error for nonexistent port")
	}
	if transport != nil {
		t.Error("expected nil transport for nonexistent port")
	}
}
