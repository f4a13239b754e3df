package vision

import (
	"errors"
	"fmt"

	"visionlab.dev/visiongw/sscma"
)

var (
	// ErrNoDialer is returned when a Device is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order
	// to establish a connection to the vision module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a
	// Device that has not been successfully initialized.
	ErrNotInitialized = errors.New("device not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Device that
	// has already been closed.
	ErrAlreadyClosed = errors.New("device already closed")

	// ErrBufferExhausted is returned when the response buffer fills up
	// before a frame end marker is found.
	//
	// This is a configuration error, not a transient condition: the buffer
	// must be sized larger than the biggest expected frame (image-carrying
	// SAMPLE/INVOKE events in particular). Retrying will not help; resize
	// the buffer via ResizeBuffer or the config builder.
	ErrBufferExhausted = errors.New("response buffer exhausted before frame end")
)

// DeviceError reports a non-OK result code from the device for operations
// that return a value rather than a code.
type DeviceError struct {
	// Op names the failed operation, e.g. "query ID".
	Op string
	// Code is the device-reported result code.
	Code sscma.Code
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: device returned %s", e.Op, e.Code)
}
