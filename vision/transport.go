package vision

import (
	"context"
	"errors"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=vision

// Transport represents an established byte stream to the vision module.
//
// A Transport is assumed to be already connected and ready for use. Reads
// must only be issued after BytesAvailable reports data, and must return
// whatever is buffered without blocking for more. Typical implementations
// are serial ports or in-memory fakes used for testing.
type Transport interface {
	// Write sends bytes to the device.
	Write(p []byte) (n int, err error)
	// Read fills p with buffered bytes. It is only called when
	// BytesAvailable has reported a non-zero count.
	Read(p []byte) (n int, err error)
	// BytesAvailable reports how many bytes can be read without waiting
	// for the device. It may block briefly to poll the underlying port.
	BytesAvailable() (int, error)
	// Close releases the underlying connection.
	Close() error
}

// Dialer opens a Transport to a vision module.
//
// Dialer abstracts how the connection is created (serial port, emulator,
// test double) and is used during device construction only.
type Dialer interface {
	// Dial creates and returns a connected Transport. It should respect
	// cancellation and deadlines provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is the UART rate the Grove Vision AI V2 ships with.
const DefaultBaudRate = 921600

// serialPollTimeout bounds a single port read while polling for data. The
// device firmware assumes a short UART timeout, so frames are assembled from
// many small reads rather than one blocking read.
const serialPollTimeout = 10 * time.Millisecond

// SerialDialer opens a vision module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0".
	PortName string
	// BaudRate defaults to DefaultBaudRate when zero.
	BaudRate int
	// Mode optionally overrides the full port mode; BaudRate is ignored
	// when Mode is set.
	Mode *serial.Mode
}

// Dial opens and configures the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("vision: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("vision: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{BaudRate: baud}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(serialPollTimeout); err != nil {
		port.Close()
		return nil, err
	}
	port.ResetInputBuffer()

	return &serialTransport{port: port}, nil
}

// serialTransport adapts a serial.Port to the Transport interface. The
// serial package has no in-waiting query, so BytesAvailable performs one
// short timed read into a stash that the next Read drains.
type serialTransport struct {
	port  serial.Port
	stash []byte
	tmp   [512]byte
}

func (t *serialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *serialTransport) BytesAvailable() (int, error) {
	if len(t.stash) > 0 {
		return len(t.stash), nil
	}
	n, err := t.port.Read(t.tmp[:])
	if err != nil {
		return 0, err
	}
	t.stash = append(t.stash[:0], t.tmp[:n]...)
	return len(t.stash), nil
}

func (t *serialTransport) Read(p []byte) (int, error) {
	if len(t.stash) > 0 {
		n := copy(p, t.stash)
		t.stash = t.stash[n:]
		return n, nil
	}
	return t.port.Read(p)
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}
