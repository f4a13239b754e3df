package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"visionlab.dev/visiongw/sscma"
)

// longQueryTimeout is the wait for identity queries whose answer the device
// assembles lazily (NAME?, VER?, INFO? can take a couple of seconds after a
// model switch).
const longQueryTimeout = 3 * time.Second

// idlePollDelay is slept when the transport reports no buffered bytes, so
// the fetch loop does not spin a core while waiting for the UART.
const idlePollDelay = time.Millisecond

// Device drives a Grove Vision AI V2 module over its AT protocol.
//
// A Device owns its transport, its fixed response buffer and the current
// result set exclusively. It is poll-driven and single-owner: no background
// goroutines, no locking, and at most one command/wait cycle may be in
// flight at a time. Callers that share a Device across goroutines must
// serialize access themselves.
type Device struct {
	// transport provides the byte stream to the module
	transport Transport
	// config contains the device configuration settings
	config Config
	// logger receives wire-level debug traces
	logger *slog.Logger
	// closed indicates the device has been shut down
	closed bool

	// buf is the fixed response buffer, reused for every frame
	buf []byte
	// wr is the current write index into buf
	wr int
	// pendingStart/pendingEnd delimit bytes already read that belong to a
	// frame beyond the one last returned; equal values mean no remainder
	pendingStart int
	pendingEnd   int

	// lastSent holds the exact request bytes, kept for retries
	lastSent []byte
	// lastFrame is the most recently decoded frame
	lastFrame *sscma.Frame

	// results is the current inference result set
	results sscma.Results

	// cached identity fields; empty means not yet queried
	id      string
	name    string
	version string
	info    string

	// now is the monotonic clock used for all deadline math
	now func() time.Time
}

// New creates a Device with the given configuration. It dials the transport
// and discards any stale bytes the module may have emitted before we
// attached.
func New(ctx context.Context, config Config) (*Device, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	d := &Device{
		transport: transport,
		config:    config,
		logger:    config.logger,
		buf:       make([]byte, config.bufferSize),
		now:       time.Now,
	}
	d.drainInput()
	return d, nil
}

// Close shuts down the device and closes the transport. After Close the
// device cannot be reused.
func (d *Device) Close() error {
	if d.closed {
		return ErrAlreadyClosed
	}
	d.closed = true
	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}

// BufferSize returns the response buffer capacity.
func (d *Device) BufferSize() int { return len(d.buf) }

// ResizeBuffer drops the response buffer and allocates a new one of n bytes.
// Any partially assembled frame and pending remainder are discarded. The
// buffer must exceed the largest expected single frame or fetches will fail
// with ErrBufferExhausted.
func (d *Device) ResizeBuffer(n int) {
	d.buf = nil
	d.buf = make([]byte, n)
	d.wr = 0
	d.pendingStart, d.pendingEnd = 0, 0
}

// Read-only result accessors. The returned slices are refreshed in place by
// every applied inference event and are valid until the next Invoke/Sample.

// Boxes returns the detection boxes from the latest inference event.
func (d *Device) Boxes() []sscma.Box { return d.results.Boxes }

// Classes returns the classification results from the latest inference event.
func (d *Device) Classes() []sscma.Class { return d.results.Classes }

// Points returns the point detections from the latest inference event.
func (d *Device) Points() []sscma.Point { return d.results.Points }

// Keypoints returns the keypoint detections from the latest inference event.
func (d *Device) Keypoints() []sscma.Keypoint { return d.results.Keypoints }

// Perf returns the inference stage timings from the latest inference event.
func (d *Device) Perf() sscma.Perf { return d.results.Perf }

// Image returns the decoded image bytes from the latest capture event, or
// nil when the latest event carried none.
func (d *Device) Image() []byte { return d.results.Image }

// LastResponse returns the most recent response frame, or nil.
func (d *Device) LastResponse() *sscma.Frame { return d.lastFrame }

// send formats and writes a request line, remembering the exact bytes for a
// possible retry.
func (d *Device) send(cmd, tag string) error {
	if d.closed {
		return ErrAlreadyClosed
	}
	if d.transport == nil {
		return ErrNotInitialized
	}
	d.lastSent = sscma.FormatCommand(cmd, tag)
	d.logger.Debug("send command", "cmd", cmd, "tag", tag)
	_, err := d.transport.Write(d.lastSent)
	return err
}

// resend rewrites the last request bytes unchanged.
func (d *Device) resend() error {
	if len(d.lastSent) == 0 {
		return ErrNotInitialized
	}
	_, err := d.transport.Write(d.lastSent)
	return err
}

// fetchFrame assembles the next complete frame from the transport, bounded
// by the given deadline.
//
// A pending remainder from a previous read is consumed first: it is moved to
// the buffer head and re-scanned, so a complete frame queued behind an
// earlier one is returned without touching the transport, while a partial
// remainder is completed by subsequent reads. Otherwise bytes are polled
// from the transport into the fixed buffer until the end marker appears.
//
// Returns ok=false when the deadline passes without a complete frame; this
// is not an error, merely "no frame yet". Filling the buffer without finding
// the marker is ErrBufferExhausted.
func (d *Device) fetchFrame(deadline time.Time) (text string, ok bool, err error) {
	if d.pendingEnd > d.pendingStart {
		d.wr = copy(d.buf, d.buf[d.pendingStart:d.pendingEnd])
	} else {
		d.wr = 0
	}
	d.pendingStart, d.pendingEnd = 0, 0

	marker := []byte(sscma.EndMarker)
	for {
		if i := bytes.Index(d.buf[:d.wr], marker); i >= 0 {
			end := i + len(marker)
			text := strings.TrimSpace(string(d.buf[:end]))
			if end < d.wr {
				d.pendingStart, d.pendingEnd = end, d.wr
			}
			return text, true, nil
		}
		if d.wr == len(d.buf) {
			return "", false, ErrBufferExhausted
		}
		if !d.now().Before(deadline) {
			// Keep whatever arrived so far; the next fetch resumes the
			// partial frame instead of dropping it.
			if d.wr > 0 {
				d.pendingStart, d.pendingEnd = 0, d.wr
			}
			return "", false, nil
		}

		n, err := d.transport.BytesAvailable()
		if err != nil {
			return "", false, err
		}
		if n == 0 {
			time.Sleep(idlePollDelay)
			continue
		}
		m, err := d.transport.Read(d.buf[d.wr:])
		if err != nil {
			return "", false, err
		}
		d.wr += m
	}
}

// waitFor polls for the frame that answers cmd, dispatching everything else
// that arrives in the meantime.
//
// Event frames are applied to the result set and never end the wait. Log
// frames are passed through: a log line ends the wait immediately and its
// code is returned to the caller, even while waiting for an unrelated
// command. A frame matching the expected type and the command's bare name
// (argument part and query marker stripped, since responses echo only the
// name) returns its code. Any other frame is discarded and the wait
// continues.
//
// A frame that fails to decode is returned as a *sscma.DecodeError so the
// caller can retry the whole command instead of re-waiting a full timeout
// on line noise. Deadline exhaustion returns CodeTimeout with a nil error.
//
// Only one wait may be in progress at a time.
func (d *Device) waitFor(typ sscma.FrameType, cmd string, timeout time.Duration) (sscma.Code, error) {
	want := sscma.BareName(cmd)
	deadline := d.now().Add(timeout)

	for d.now().Before(deadline) {
		text, ok, err := d.fetchFrame(deadline)
		if err != nil {
			return sscma.CodeIO, err
		}
		if !ok {
			continue
		}

		frame, err := sscma.DecodeFrame(text)
		if err != nil {
			return sscma.CodeTimeout, err
		}
		d.logger.Debug("frame received", "type", frame.Type, "name", frame.Name, "code", frame.Code)

		switch frame.Type {
		case sscma.TypeResponse:
			// Only the latest response is retained; events and logs are
			// discarded once dispatched.
			d.lastFrame = frame
		case sscma.TypeEvent:
			d.results.Apply(frame)
		case sscma.TypeLog:
			return frame.Code, nil
		}

		if frame.Type == typ && sscma.BareName(frame.Name) == want {
			return frame.Code, nil
		}
		// Unrelated frame interleaved on the wire; discard it and keep
		// waiting for the one we asked for.
	}
	return sscma.CodeTimeout, nil
}

// absorbDecode maps a decode failure to a timeout code at the facade
// boundary. Transport and buffer-exhaustion errors pass through unchanged.
func absorbDecode(code sscma.Code, err error) (sscma.Code, error) {
	var de *sscma.DecodeError
	if errors.As(err, &de) {
		return sscma.CodeTimeout, nil
	}
	return code, err
}

func boolArg(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Invoke runs inference times times (0 means forever). With diffOnly the
// device reports only frames that differ from the previous one; with
// resultOnly it suppresses the image in the event payload.
//
// The command is acknowledged with a quick response frame and answered with
// an event frame carrying the results. A non-OK acknowledgement code is
// returned unchanged without waiting for the event phase. On success the
// result accessors reflect the new inference results.
//
// A non-nil error is returned only for transport failures and buffer
// exhaustion; everything else is expressed in the code.
func (d *Device) Invoke(times int, diffOnly, resultOnly bool, timeout time.Duration) (sscma.Code, error) {
	cmd := fmt.Sprintf("%s=%d,%d,%d", sscma.CmdInvoke, times, boolArg(diffOnly), boolArg(resultOnly))
	if err := d.send(cmd, ""); err != nil {
		return sscma.CodeIO, err
	}

	code, err := d.waitFor(sscma.TypeResponse, cmd, d.config.ackTimeout)
	code, err = absorbDecode(code, err)
	if err != nil {
		return code, err
	}
	if code != sscma.CodeOK {
		return code, nil
	}

	code, err = d.waitFor(sscma.TypeEvent, sscma.CmdInvoke, timeout)
	return absorbDecode(code, err)
}

// Sample captures times frames from the sensor. It follows the same
// acknowledge-then-event cycle as Invoke; on success Image holds the
// captured frame.
func (d *Device) Sample(times int, timeout time.Duration) (sscma.Code, error) {
	cmd := fmt.Sprintf("%s=%d", sscma.CmdSample, times)
	if err := d.send(cmd, ""); err != nil {
		return sscma.CodeIO, err
	}

	code, err := d.waitFor(sscma.TypeResponse, cmd, d.config.ackTimeout)
	code, err = absorbDecode(code, err)
	if err != nil {
		return code, err
	}
	if code != sscma.CodeOK {
		return code, nil
	}

	code, err = d.waitFor(sscma.TypeEvent, sscma.CmdSample, timeout)
	return absorbDecode(code, err)
}

// queryString sends a query command and returns its response payload. A
// string payload is returned as-is; any other payload shape is returned as
// its compact JSON text.
func (d *Device) queryString(op, cmd string, timeout time.Duration) (string, error) {
	if err := d.send(cmd, ""); err != nil {
		return "", err
	}
	code, err := d.waitFor(sscma.TypeResponse, cmd, timeout)
	code, err = absorbDecode(code, err)
	if err != nil {
		return "", err
	}
	if code != sscma.CodeOK {
		return "", &DeviceError{Op: op, Code: code}
	}
	if s, ok := d.lastFrame.DataString(); ok {
		return s, nil
	}
	return string(d.lastFrame.Data), nil
}

// ID returns the device identifier. With cache, a previously fetched value
// is returned without touching the transport; without it the device is
// re-queried and the cache overwritten.
func (d *Device) ID(cache bool) (string, error) {
	if cache && d.id != "" {
		return d.id, nil
	}
	v, err := d.queryString("query ID", sscma.CmdID, d.config.atTimeout)
	if err != nil {
		return "", err
	}
	d.id = v
	return v, nil
}

// Name returns the device model name, cached like ID.
func (d *Device) Name(cache bool) (string, error) {
	if cache && d.name != "" {
		return d.name, nil
	}
	v, err := d.queryString("query name", sscma.CmdName, longQueryTimeout)
	if err != nil {
		return "", err
	}
	d.name = v
	return v, nil
}

// Version returns the firmware version report, cached like ID. The device
// answers with an object (AT API, software and hardware revisions), which is
// returned as its JSON text.
func (d *Device) Version(cache bool) (string, error) {
	if cache && d.version != "" {
		return d.version, nil
	}
	v, err := d.queryString("query version", sscma.CmdVersion, longQueryTimeout)
	if err != nil {
		return "", err
	}
	d.version = v
	return v, nil
}

// Info returns the loaded model's info payload, cached like ID. The payload
// is a base64 string the device stores alongside the model; use ModelInfo to
// decode it.
func (d *Device) Info(cache bool) (string, error) {
	if cache && d.info != "" {
		return d.info, nil
	}
	if err := d.send(sscma.CmdInfo, ""); err != nil {
		return "", err
	}
	code, err := d.waitFor(sscma.TypeResponse, sscma.CmdInfo, longQueryTimeout)
	code, err = absorbDecode(code, err)
	if err != nil {
		return "", err
	}
	if code != sscma.CodeOK {
		return "", &DeviceError{Op: "query info", Code: code}
	}

	var data struct {
		Info string `json:"info"`
	}
	switch {
	case d.lastFrame.DataObject(&data):
		d.info = data.Info
	default:
		if s, ok := d.lastFrame.DataString(); ok {
			d.info = s
		} else {
			d.info = string(d.lastFrame.Data)
		}
	}
	return d.info, nil
}

// ModelInfo holds the model metadata stored on the device.
type ModelInfo struct {
	// Raw is the payload exactly as the device sent it.
	Raw string
	// Fields is the decoded base64+JSON content. It is nil when the
	// payload does not decode, in which case Raw is all there is.
	Fields map[string]any
}

// ModelInfo fetches and decodes the model metadata. A payload that is not
// valid base64 JSON degrades to Fields == nil rather than an error.
func (d *Device) ModelInfo(cache bool) (ModelInfo, error) {
	raw, err := d.Info(cache)
	if err != nil {
		return ModelInfo{}, err
	}
	mi := ModelInfo{Raw: raw}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return mi, nil
	}
	var fields map[string]any
	if json.Unmarshal(decoded, &fields) == nil {
		mi.Fields = fields
	}
	return mi, nil
}

// PerformCommand sends an arbitrary AT command and waits for its response,
// returning the device's result code.
//
// The full send+wait cycle is retried, with the identical request bytes,
// when the response fails to decode -- transient line noise should not cost
// the caller a manual retry. The attempt count is bounded by the configured
// MaxRetries, after which CodeTimeout is returned. A legitimate
// device-reported error code is never retried.
func (d *Device) PerformCommand(cmd, tag string) (sscma.Code, error) {
	for attempt := 0; attempt < d.config.maxRetries; attempt++ {
		var err error
		if attempt == 0 {
			err = d.send(cmd, tag)
		} else {
			err = d.resend()
		}
		if err != nil {
			return sscma.CodeIO, err
		}

		code, err := d.waitFor(sscma.TypeResponse, cmd, d.config.atTimeout)
		var de *sscma.DecodeError
		if errors.As(err, &de) {
			d.logger.Debug("retrying after decode failure", "cmd", cmd, "attempt", attempt+1)
			continue
		}
		return code, err
	}
	return sscma.CodeTimeout, nil
}

// CleanActions clears the device's configured action expression.
func (d *Device) CleanActions() (sscma.Code, error) {
	return d.PerformCommand(sscma.CmdAction+`=""`, "")
}

// SaveJPEG makes the device store the current frame as a JPEG on its
// internal flash.
func (d *Device) SaveJPEG() (sscma.Code, error) {
	return d.PerformCommand(fmt.Sprintf(`%s="%s"`, sscma.CmdAction, sscma.ActionSaveJPEG), "")
}

// Reset reboots the device.
func (d *Device) Reset() (sscma.Code, error) {
	return d.PerformCommand(sscma.CmdReset, "")
}

// Break stops a running continuous invoke.
func (d *Device) Break() (sscma.Code, error) {
	return d.PerformCommand(sscma.CmdBreak, "")
}

// SelectModel activates the model with the given id.
func (d *Device) SelectModel(id int) (sscma.Code, error) {
	return d.PerformCommand(fmt.Sprintf("%s=%d", sscma.CmdModel, id), "")
}

// SelectSensor enables the sensor with the given id.
func (d *Device) SelectSensor(id int) (sscma.Code, error) {
	return d.PerformCommand(fmt.Sprintf("%s=%d,1,0", sscma.CmdSensor, id), "")
}

// SetTScore sets the detection score threshold in percent.
func (d *Device) SetTScore(threshold int) (sscma.Code, error) {
	return d.PerformCommand(fmt.Sprintf("%s=%d", sscma.CmdTScore, threshold), "")
}

// SetTIOU sets the non-max-suppression IoU threshold in percent.
func (d *Device) SetTIOU(threshold int) (sscma.Code, error) {
	return d.PerformCommand(fmt.Sprintf("%s=%d", sscma.CmdTIOU, threshold), "")
}

// Status queries the device status register.
func (d *Device) Status() (sscma.Code, error) {
	return d.PerformCommand(sscma.CmdStat, "")
}

// drainInput discards bytes the module buffered before we attached, so the
// first fetch does not trip over a half-transmitted frame.
func (d *Device) drainInput() {
	var scratch [256]byte
	for i := 0; i < 64; i++ {
		n, err := d.transport.BytesAvailable()
		if err != nil || n == 0 {
			return
		}
		if _, err := d.transport.Read(scratch[:]); err != nil {
			return
		}
	}
}
